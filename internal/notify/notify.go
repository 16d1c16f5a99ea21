// Package notify is the caller-facing surface of the push pipeline. It ties
// the subscription registry, the dispatch engine and the delivery history
// behind one small API so embedding code never touches the internals
// directly.
package notify

import (
	"context"
	"time"

	"nutripush/internal/dispatch"
	"nutripush/internal/producer"
	"nutripush/internal/registry"
	"nutripush/internal/storage"
	"nutripush/pkg/logx"
)

type Service struct {
	reg    *registry.Registry
	engine *dispatch.Engine
	store  storage.Store // nil when persistence is disabled
	log    logx.Logger
}

func New(reg *registry.Registry, engine *dispatch.Engine, store storage.Store, log logx.Logger) *Service {
	return &Service{
		reg:    reg,
		engine: engine,
		store:  store,
		log:    log.With(logx.String("component", "notify")),
	}
}

// Subscribe registers a browser push subscription for a user. Re-registering
// an endpoint the user already has is a no-op and reports created=false.
func (s *Service) Subscribe(ctx context.Context, userID string, sub registry.Subscription) (created bool, err error) {
	return s.reg.Add(ctx, userID, sub)
}

// Unsubscribe drops one endpoint. It reports whether the endpoint existed.
func (s *Service) Unsubscribe(ctx context.Context, userID, endpoint string) bool {
	return s.reg.Remove(ctx, userID, endpoint)
}

// UnsubscribeAll drops every endpoint a user has registered.
func (s *Service) UnsubscribeAll(ctx context.Context, userID string) bool {
	return s.reg.RemoveAll(ctx, userID)
}

// Subscriptions returns a copy of the user's current endpoints.
func (s *Service) Subscriptions(userID string) []registry.Subscription {
	return s.reg.List(userID)
}

// Send delivers an arbitrary payload to one user, subject to the same quiet
// hours and pruning rules as scheduled notifications.
func (s *Service) Send(ctx context.Context, userID string, payload producer.Payload) dispatch.Outcome {
	return s.engine.Send(ctx, userID, payload)
}

// SendCustom delivers a plain title/body notification to one user.
func (s *Service) SendCustom(ctx context.Context, userID, title, body string) dispatch.Outcome {
	return s.engine.Send(ctx, userID, producer.Custom(title, body, time.Now()))
}

// SendBulk fans one payload out to many users. Per-user failures are isolated
// and reported in the outcome.
func (s *Service) SendBulk(ctx context.Context, userIDs []string, payload producer.Payload) dispatch.BulkOutcome {
	return s.engine.SendToMany(ctx, userIDs, payload)
}

// History returns a reverse-chronological page of a user's delivery records.
// It fails with storage.ErrDisabled when no persistence layer is configured.
func (s *Service) History(ctx context.Context, userID string, limit, offset int) ([]storage.DeliveryRecord, error) {
	if s.store == nil {
		return nil, storage.ErrDisabled
	}
	return s.store.Deliveries(ctx, userID, limit, offset)
}
