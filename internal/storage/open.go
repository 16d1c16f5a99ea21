package storage

import (
	"context"
	"errors"
	"strings"

	logx "nutripush/pkg/logx"
)

// Store is the minimal persistence API used by the registry and the dispatch
// engine.
//
// SaveSubscriptions replaces the whole snapshot; implementations must
// serialize snapshot writes so concurrent saves never interleave partially.
type Store interface {
	SaveSubscriptions(ctx context.Context, snap map[string][]SubscriptionRecord) error
	LoadSubscriptions(ctx context.Context) (map[string][]SubscriptionRecord, error)

	AppendDelivery(ctx context.Context, rec DeliveryRecord) error
	// Deliveries returns a reverse-chronological page of one user's records.
	Deliveries(ctx context.Context, userID string, limit, offset int) ([]DeliveryRecord, error)

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
