package schedule

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"nutripush/internal/dispatch"
	"nutripush/internal/eventbus"
	"nutripush/internal/profile"
	"nutripush/pkg/logx"
)

// Config controls the trigger loop. Overrides remaps a built-in rule's
// firing time by name; the value is either "HH:MM" (daily) or a cron spec.
type Config struct {
	Enabled   bool              `json:"enabled"`
	Tick      time.Duration     `json:"tick"`
	Timezone  string            `json:"timezone"`
	Workers   int               `json:"workers"`
	QueueSize int               `json:"queue_size"`
	Overrides map[string]string `json:"overrides"`
}

// Clock abstracts time.Now so tests can drive the evaluator directly.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// ruleState tracks the firing status of one rule. firing stays true until
// every per-user job of the current activation has finished, so a slow
// activation never overlaps the next matching tick of the same rule.
type ruleState struct {
	rule Rule

	mu       sync.Mutex
	firing   bool
	lastFire time.Time // truncated to the minute
}

type fireJob struct {
	rs     *ruleState
	userID string
	now    time.Time
	wg     *sync.WaitGroup
}

// Service walks a declarative rule table on a fixed tick and hands matching
// rules to a bounded worker pool. It never backfills: ticks that were missed
// while the process was down are simply gone.
type Service struct {
	cfg      Config
	log      logx.Logger
	loc      *time.Location
	clock    Clock
	profiles profile.Store
	engine   *dispatch.Engine
	bus      eventbus.Bus

	rules []*ruleState
	queue chan fireJob
}

func New(cfg Config, rules []Rule, profiles profile.Store, engine *dispatch.Engine, bus eventbus.Bus, log logx.Logger) (*Service, error) {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Minute
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}

	loc := time.Local
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("schedule: timezone %q: %w", cfg.Timezone, err)
		}
		loc = l
	}

	byName := make(map[string]int, len(rules))
	states := make([]*ruleState, len(rules))
	for i, r := range rules {
		byName[r.Name] = i
		states[i] = &ruleState{rule: r}
	}
	for name, raw := range cfg.Overrides {
		i, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("schedule: override for unknown rule %q", name)
		}
		rec, err := ParseOverride(raw)
		if err != nil {
			return nil, fmt.Errorf("schedule: override %q: %w", name, err)
		}
		states[i].rule.When = rec
	}

	return &Service{
		cfg:      cfg,
		log:      log.With(logx.String("component", "schedule")),
		loc:      loc,
		clock:    systemClock{},
		profiles: profiles,
		engine:   engine,
		bus:      bus,
		rules:    states,
		queue:    make(chan fireJob, cfg.QueueSize),
	}, nil
}

// Run blocks until ctx is canceled. It owns the worker pool for the whole
// lifetime of the loop.
func (s *Service) Run(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.log.Info("scheduler disabled")
		return nil
	}

	var workers sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			s.worker(ctx)
		}()
	}

	s.log.Info("scheduler started",
		logx.Duration("tick", s.cfg.Tick),
		logx.Int("rules", len(s.rules)),
		logx.Int("workers", s.cfg.Workers),
		logx.String("timezone", s.loc.String()))

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			workers.Wait()
			return ctx.Err()
		case <-ticker.C:
			s.evaluate(ctx, s.clock.Now())
		}
	}
}

// evaluate is the cheap per-tick pass: match every rule against the current
// minute and spin off an activation for each hit. Duplicate ticks inside the
// same minute and still-running activations are skipped.
func (s *Service) evaluate(ctx context.Context, now time.Time) {
	local := now.In(s.loc)
	minute := local.Truncate(time.Minute)

	for _, rs := range s.rules {
		if !rs.rule.When.Matches(local) {
			continue
		}
		rs.mu.Lock()
		if rs.firing || rs.lastFire.Equal(minute) {
			busy := rs.firing
			rs.mu.Unlock()
			if busy {
				s.log.Warn("rule still running, skipping activation",
					logx.String("rule", rs.rule.Name))
			}
			continue
		}
		rs.firing = true
		rs.lastFire = minute
		rs.mu.Unlock()

		go s.fire(ctx, rs, local)
	}
}

// fire resolves the eligible audience for one rule activation and fans the
// per-user work out over the queue. Any failure here is scoped to the rule.
func (s *Service) fire(ctx context.Context, rs *ruleState, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("rule activation panicked",
				logx.String("rule", rs.rule.Name),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())))
		}
		rs.mu.Lock()
		rs.firing = false
		rs.mu.Unlock()
	}()

	users, err := s.profiles.UserIDs(ctx)
	if err != nil {
		s.log.Error("resolving users failed",
			logx.String("rule", rs.rule.Name), logx.Err(err))
		return
	}

	eligible := make([]string, 0, len(users))
	for _, u := range users {
		prefs, err := s.profiles.Preferences(ctx, u)
		if err != nil {
			s.log.Warn("reading preferences failed, skipping user",
				logx.String("rule", rs.rule.Name),
				logx.String("user", u), logx.Err(err))
			continue
		}
		if prefs.Enabled(rs.rule.Pref) {
			eligible = append(eligible, u)
		}
	}

	s.bus.Publish(eventbus.Event{
		Type: eventbus.TypeRuleFired,
		Data: map[string]any{"rule": rs.rule.Name, "users": len(eligible)},
	})
	s.log.Info("rule fired",
		logx.String("rule", rs.rule.Name),
		logx.Int("eligible", len(eligible)))

	var wg sync.WaitGroup
	for _, u := range eligible {
		wg.Add(1)
		select {
		case s.queue <- fireJob{rs: rs, userID: u, now: now, wg: &wg}:
		case <-ctx.Done():
			wg.Done()
			return
		}
	}
	wg.Wait()
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.queue:
			s.runJob(ctx, job)
		}
	}
}

// runJob builds and dispatches one user's payload. A panicking or failing
// builder only costs that user; the rest of the activation proceeds.
func (s *Service) runJob(ctx context.Context, job fireJob) {
	defer job.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("rule builder panicked",
				logx.String("rule", job.rs.rule.Name),
				logx.String("user", job.userID),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())))
		}
	}()

	payload, err := job.rs.rule.Build(ctx, job.userID, job.now)
	if err != nil {
		s.log.Warn("building payload failed",
			logx.String("rule", job.rs.rule.Name),
			logx.String("user", job.userID), logx.Err(err))
		return
	}
	s.engine.Send(ctx, job.userID, payload)
}
