package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"nutripush/internal/eventbus"
	"nutripush/internal/producer"
	"nutripush/internal/profile"
	"nutripush/internal/push"
	"nutripush/internal/registry"
	"nutripush/internal/storage"
	logx "nutripush/pkg/logx"
)

// Engine fans one payload out to every endpoint a user has registered,
// classifies the outcomes, prunes endpoints the protocol reports gone, and
// writes one audit record per dispatch.
//
// It is safe for concurrent use.
type Engine struct {
	mu  sync.Mutex
	cfg Config

	reg      *registry.Registry
	client   push.Client
	profiles profile.Store
	store    storage.Store // audit sink; nil disables
	bus      eventbus.Bus
	log      logx.Logger

	limiter *rate.Limiter

	now func() time.Time
}

func New(cfg Config, reg *registry.Registry, client push.Client, profiles profile.Store, store storage.Store, bus eventbus.Bus, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	e := &Engine{
		reg:      reg,
		client:   client,
		profiles: profiles,
		store:    store,
		bus:      bus,
		log:      log,
		now:      time.Now,
	}
	e.applyLocked(cfg)
	return e
}

func (e *Engine) Apply(cfg Config) {
	e.mu.Lock()
	e.applyLocked(cfg)
	e.mu.Unlock()
}

func (e *Engine) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 20
	}
	e.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	e.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Send dispatches one payload to every endpoint userID has registered.
//
// Quiet hours abort the whole dispatch before any attempt (all-or-nothing per
// user); the skip is still recorded. An endpoint the protocol reports gone is
// pruned from the registry before Send returns. Other failures are recorded
// but not retried here; the next scheduled trigger is the natural retry.
func (e *Engine) Send(ctx context.Context, userID string, payload producer.Payload) Outcome {
	now := e.now()

	raw, err := json.Marshal(payload)
	if err != nil {
		// A payload that cannot serialize reaches no endpoint.
		e.log.Error("payload marshal failed", logx.String("user", userID), logx.Err(err))
		return Outcome{Failed: 1, Errors: []EndpointError{{Err: err.Error()}}}
	}

	subs := e.reg.List(userID)
	if len(subs) == 0 {
		e.audit(ctx, storage.DeliveryRecord{
			ID:      uuid.NewString(),
			UserID:  userID,
			Payload: raw,
			SentAt:  now,
			Skipped: SkipNoSubscriptions,
		})
		return Outcome{Skipped: SkipNoSubscriptions}
	}

	if e.inQuietHours(ctx, userID, now) {
		e.audit(ctx, storage.DeliveryRecord{
			ID:      uuid.NewString(),
			UserID:  userID,
			Payload: raw,
			SentAt:  now,
			Skipped: SkipQuietHours,
		})
		e.publish(eventbus.TypeDeliverySkipped, map[string]any{"user": userID, "reason": SkipQuietHours})
		return Outcome{Skipped: SkipQuietHours}
	}

	var out Outcome
	outcomes := make([]storage.EndpointOutcome, 0, len(subs))
	for _, sub := range subs {
		status, errStr := e.sendOne(ctx, userID, sub, raw)
		outcomes = append(outcomes, storage.EndpointOutcome{
			Endpoint: sub.Endpoint,
			Status:   status,
			Error:    errStr,
		})
		if status == "sent" {
			out.Sent++
		} else {
			out.Failed++
			out.Errors = append(out.Errors, EndpointError{Endpoint: sub.Endpoint, Err: errStr})
		}
	}

	e.audit(ctx, storage.DeliveryRecord{
		ID:       uuid.NewString(),
		UserID:   userID,
		Payload:  raw,
		SentAt:   now,
		Outcomes: outcomes,
	})

	if out.Failed > 0 {
		e.publish(eventbus.TypeDeliveryFailed, map[string]any{"user": userID, "sent": out.Sent, "failed": out.Failed})
	} else {
		e.publish(eventbus.TypeDeliverySent, map[string]any{"user": userID, "sent": out.Sent})
	}
	return out
}

func (e *Engine) sendOne(ctx context.Context, userID string, sub registry.Subscription, raw []byte) (status, errStr string) {
	// Snapshot mutable dependencies to avoid races with Apply().
	e.mu.Lock()
	lim := e.limiter
	e.mu.Unlock()

	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return "failed", err.Error()
		}
	}

	err := e.client.Send(ctx, sub, raw)
	if err == nil {
		return "sent", ""
	}

	if push.IsGone(err) {
		// The endpoint is permanently dead; prune it right away so the next
		// dispatch never tries it again.
		e.reg.Remove(ctx, userID, sub.Endpoint)
		e.log.Info("pruned dead endpoint", logx.String("user", userID), logx.String("endpoint", sub.Endpoint))
		e.publish(eventbus.TypePruned, map[string]any{"user": userID, "endpoint": sub.Endpoint})
		return "gone", err.Error()
	}

	e.log.Warn("push send failed", logx.String("user", userID), logx.String("endpoint", sub.Endpoint), logx.Err(err))
	return "failed", err.Error()
}

func (e *Engine) inQuietHours(ctx context.Context, userID string, now time.Time) bool {
	if e.profiles == nil {
		return false
	}
	qh, err := e.profiles.QuietHours(ctx, userID)
	if err != nil {
		// A broken profile store must not silence notifications.
		e.log.Warn("quiet hours lookup failed", logx.String("user", userID), logx.Err(err))
		return false
	}
	return qh.Contains(now)
}

func (e *Engine) audit(ctx context.Context, rec storage.DeliveryRecord) {
	if e.store == nil {
		return
	}
	if err := e.store.AppendDelivery(ctx, rec); err != nil {
		e.log.Warn("delivery audit append failed", logx.String("user", rec.UserID), logx.Err(err))
	}
}

func (e *Engine) publish(typ string, data any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Type: typ, Data: data})
}
