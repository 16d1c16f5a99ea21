package registry

import (
	"context"
	"errors"
	"strings"
	"sync"

	"nutripush/internal/storage"
	logx "nutripush/pkg/logx"
)

// ErrInvalid rejects malformed subscriptions before they reach memory or disk.
var ErrInvalid = errors.New("invalid subscription: endpoint and keys are required")

// Keys carries the client key material needed to encrypt a push message.
type Keys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Subscription is one device endpoint registered by a user.
type Subscription struct {
	Endpoint string `json:"endpoint"`
	Keys     Keys   `json:"keys"`
}

// Registry owns the durable set of push endpoints per user.
//
// In-memory state is authoritative for the process lifetime. Every mutation
// persists a best-effort snapshot through the store; write failures are
// logged and swallowed, so state written since the last successful snapshot
// is lost on restart.
//
// Mutations for one user are serialized by a per-user lock, so a List can
// never observe a half-applied prune. Different users mutate in parallel.
type Registry struct {
	log   logx.Logger
	store storage.Store // nil disables persistence

	mu    sync.RWMutex
	users map[string]*userSet

	// saveMu serializes snapshot builds+writes so a slow write can never be
	// overtaken by an older snapshot.
	saveMu sync.Mutex
}

type userSet struct {
	mu   sync.Mutex
	subs []Subscription
}

func New(ctx context.Context, store storage.Store, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Registry{
		log:   log,
		store: store,
		users: map[string]*userSet{},
	}
	r.rehydrate(ctx)
	return r
}

func (r *Registry) rehydrate(ctx context.Context) {
	if r.store == nil {
		return
	}
	snap, err := r.store.LoadSubscriptions(ctx)
	if err != nil {
		r.log.Warn("subscription snapshot load failed; starting empty", logx.Err(err))
		return
	}
	total := 0
	for userID, recs := range snap {
		subs := make([]Subscription, 0, len(recs))
		for _, rec := range recs {
			subs = append(subs, Subscription{
				Endpoint: rec.Endpoint,
				Keys:     Keys{P256dh: rec.P256dh, Auth: rec.Auth},
			})
		}
		if len(subs) > 0 {
			r.users[userID] = &userSet{subs: subs}
			total += len(subs)
		}
	}
	if total > 0 {
		r.log.Info("subscriptions rehydrated", logx.Int("users", len(r.users)), logx.Int("endpoints", total))
	}
}

func validate(sub Subscription) error {
	if strings.TrimSpace(sub.Endpoint) == "" ||
		strings.TrimSpace(sub.Keys.P256dh) == "" ||
		strings.TrimSpace(sub.Keys.Auth) == "" {
		return ErrInvalid
	}
	return nil
}

func (r *Registry) set(userID string, create bool) *userSet {
	if create {
		r.mu.Lock()
		defer r.mu.Unlock()
		us := r.users[userID]
		if us == nil {
			us = &userSet{}
			r.users[userID] = us
		}
		return us
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.users[userID]
}

// Add registers an endpoint for a user. It is idempotent: adding an endpoint
// that already exists for that user is a no-op reporting false.
func (r *Registry) Add(ctx context.Context, userID string, sub Subscription) (bool, error) {
	if err := validate(sub); err != nil {
		return false, err
	}
	us := r.set(userID, true)

	us.mu.Lock()
	for _, existing := range us.subs {
		if existing.Endpoint == sub.Endpoint {
			us.mu.Unlock()
			return false, nil
		}
	}
	us.subs = append(us.subs, sub)
	us.mu.Unlock()

	r.persist(ctx, "add", userID)
	return true, nil
}

// Remove deletes one endpoint. Absent state is a boolean no-op.
func (r *Registry) Remove(ctx context.Context, userID, endpoint string) bool {
	us := r.set(userID, false)
	if us == nil {
		return false
	}

	us.mu.Lock()
	removed := false
	for i, sub := range us.subs {
		if sub.Endpoint == endpoint {
			us.subs = append(us.subs[:i], us.subs[i+1:]...)
			removed = true
			break
		}
	}
	us.mu.Unlock()

	if removed {
		r.persist(ctx, "remove", userID)
	}
	return removed
}

// RemoveAll drops every endpoint a user has. Reports whether any existed.
func (r *Registry) RemoveAll(ctx context.Context, userID string) bool {
	us := r.set(userID, false)
	if us == nil {
		return false
	}

	us.mu.Lock()
	existed := len(us.subs) > 0
	us.subs = nil
	us.mu.Unlock()

	if existed {
		r.persist(ctx, "remove_all", userID)
	}
	return existed
}

// List returns the user's subscriptions in insertion order. The returned
// slice is a copy; callers may hold it across concurrent mutations.
func (r *Registry) List(userID string) []Subscription {
	us := r.set(userID, false)
	if us == nil {
		return nil
	}
	us.mu.Lock()
	defer us.mu.Unlock()
	if len(us.subs) == 0 {
		return nil
	}
	return append([]Subscription(nil), us.subs...)
}

// Count reports the number of endpoints registered for a user.
func (r *Registry) Count(userID string) int {
	us := r.set(userID, false)
	if us == nil {
		return 0
	}
	us.mu.Lock()
	defer us.mu.Unlock()
	return len(us.subs)
}

func (r *Registry) persist(ctx context.Context, op, userID string) {
	if r.store == nil {
		return
	}
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	if err := r.store.SaveSubscriptions(ctx, r.snapshot()); err != nil {
		// Best-effort durability: memory stays authoritative and the caller's
		// operation still reports success.
		r.log.Warn("subscription snapshot write failed",
			logx.String("op", op), logx.String("user", userID), logx.Err(err))
	}
}

func (r *Registry) snapshot() map[string][]storage.SubscriptionRecord {
	r.mu.RLock()
	users := make(map[string]*userSet, len(r.users))
	for id, us := range r.users {
		users[id] = us
	}
	r.mu.RUnlock()

	snap := make(map[string][]storage.SubscriptionRecord, len(users))
	for id, us := range users {
		us.mu.Lock()
		if len(us.subs) == 0 {
			us.mu.Unlock()
			continue
		}
		recs := make([]storage.SubscriptionRecord, 0, len(us.subs))
		for _, sub := range us.subs {
			recs = append(recs, storage.SubscriptionRecord{
				Endpoint: sub.Endpoint,
				P256dh:   sub.Keys.P256dh,
				Auth:     sub.Keys.Auth,
			})
		}
		us.mu.Unlock()
		snap[id] = recs
	}
	return snap
}
