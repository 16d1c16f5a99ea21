package dispatch

import "time"

// Config controls the dispatch engine.
type Config struct {
	Workers     int           // bulk fan-out pool size
	RatePerSec  int           // per-process send rate (token bucket)
	BulkTimeout time.Duration // overall deadline for SendToMany; 0 disables
}

// Skip reasons recorded when no endpoint attempt is made.
const (
	SkipQuietHours      = "quiet-hours"
	SkipNoSubscriptions = "no-subscriptions"
)

// EndpointError is one failed delivery attempt.
type EndpointError struct {
	Endpoint string
	Err      string
}

// Outcome is the result of dispatching one payload to one user.
type Outcome struct {
	Sent    int
	Failed  int
	Skipped string // non-empty when the gate (or an empty registry) stopped the send
	Errors  []EndpointError
}

// UserError is a user whose dispatch failed at the user level (panic,
// deadline) during a bulk send.
type UserError struct {
	UserID string
	Err    string
}

// BulkOutcome aggregates a SendToMany fan-out. Total always equals the number
// of requested users; one user's failure never hides the others' counts.
type BulkOutcome struct {
	Total  int
	Sent   int
	Failed int
	Errors []UserError
}
