package storage

import (
	"encoding/json"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (snapshot json + delivery jsonl)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// SubscriptionRecord is the persisted shape of one push subscription.
// Keep it compact and schema-stable; the snapshot must round-trip losslessly
// across restarts.
type SubscriptionRecord struct {
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

// EndpointOutcome is the per-endpoint result of one delivery attempt.
type EndpointOutcome struct {
	Endpoint string `json:"endpoint"`
	Status   string `json:"status"` // "sent" | "failed" | "gone"
	Error    string `json:"error,omitempty"`
}

// DeliveryRecord is one append-only audit entry: a payload dispatched to one
// user and what happened per endpoint.
type DeliveryRecord struct {
	ID      string          `json:"id"`
	UserID  string          `json:"user_id"`
	Payload json.RawMessage `json:"payload,omitempty"`
	SentAt  time.Time       `json:"sent_at"`

	// Skipped marks records where no endpoint attempt was made
	// ("quiet-hours", "no-subscriptions").
	Skipped  string            `json:"skipped,omitempty"`
	Outcomes []EndpointOutcome `json:"outcomes,omitempty"`
}
