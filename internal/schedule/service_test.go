package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"nutripush/internal/dispatch"
	"nutripush/internal/eventbus"
	"nutripush/internal/producer"
	"nutripush/internal/profile"
	"nutripush/internal/registry"
	logx "nutripush/pkg/logx"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type recordClient struct {
	mu    sync.Mutex
	sends []string
}

func (c *recordClient) Send(_ context.Context, sub registry.Subscription, _ []byte) error {
	c.mu.Lock()
	c.sends = append(c.sends, sub.Endpoint)
	c.mu.Unlock()
	return nil
}

func (c *recordClient) attempts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sends...)
}

type staticProfiles struct {
	users []string
	prefs map[string]profile.Preferences
}

func (p *staticProfiles) UserIDs(context.Context) ([]string, error) {
	return append([]string(nil), p.users...), nil
}

func (p *staticProfiles) Preferences(_ context.Context, userID string) (profile.Preferences, error) {
	return p.prefs[userID], nil
}

func (p *staticProfiles) QuietHours(context.Context, string) (profile.QuietHours, error) {
	return profile.QuietHours{}, nil
}

type fixture struct {
	client *recordClient
	prof   *staticProfiles
	svc    *Service
	clock  *fakeClock
	cancel context.CancelFunc
	done   chan struct{}
}

func startFixture(t *testing.T, cfg Config, rules []Rule, now time.Time) *fixture {
	t.Helper()
	ctx := context.Background()

	client := &recordClient{}
	prof := &staticProfiles{
		users: []string{"u1", "u2"},
		prefs: map[string]profile.Preferences{},
	}
	reg := registry.New(ctx, nil, logx.Nop())
	for _, u := range prof.users {
		if _, err := reg.Add(ctx, u, registry.Subscription{
			Endpoint: "ep-" + u,
			Keys:     registry.Keys{P256dh: "p", Auth: "a"},
		}); err != nil {
			t.Fatalf("add subscription: %v", err)
		}
	}
	engine := dispatch.New(dispatch.Config{RatePerSec: 1000}, reg, client, prof, nil, nil, logx.Nop())

	cfg.Enabled = true
	if cfg.Tick == 0 {
		cfg.Tick = 2 * time.Millisecond
	}
	cfg.Timezone = "UTC"
	svc, err := New(cfg, rules, prof, engine, eventbus.New(), logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	clk := &fakeClock{t: now}
	svc.clock = clk

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Run(runCtx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &fixture{client: client, prof: prof, svc: svc, clock: clk, cancel: cancel, done: done}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func simpleRule(name, pref string, rec Recurrence) Rule {
	return Rule{
		Name: name,
		Pref: pref,
		When: rec,
		Build: func(_ context.Context, _ string, now time.Time) (producer.Payload, error) {
			return producer.WaterReminder(now), nil
		},
	}
}

func TestServiceFiresMatchingRuleOncePerMinute(t *testing.T) {
	t.Parallel()
	rec, _ := Daily("08:00")
	fx := startFixture(t, Config{}, []Rule{simpleRule("test", "", rec)},
		time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC))

	waitFor(t, func() bool { return len(fx.client.attempts()) == 2 })

	// Many ticks land in the same minute; the rule must not fire again.
	time.Sleep(30 * time.Millisecond)
	if got := fx.client.attempts(); len(got) != 2 {
		t.Fatalf("rule fired more than once in a minute: %v", got)
	}

	// The next matching minute fires again.
	fx.clock.Set(time.Date(2025, 6, 3, 8, 0, 0, 0, time.UTC))
	waitFor(t, func() bool { return len(fx.client.attempts()) == 4 })
}

func TestServiceSkipsNonMatchingMinutes(t *testing.T) {
	t.Parallel()
	rec, _ := Daily("08:00")
	fx := startFixture(t, Config{}, []Rule{simpleRule("test", "", rec)},
		time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC))

	time.Sleep(30 * time.Millisecond)
	if got := fx.client.attempts(); len(got) != 0 {
		t.Fatalf("no sends expected at 09:30, got %v", got)
	}
}

func TestServiceHonorsPreferenceGate(t *testing.T) {
	t.Parallel()
	rec, _ := Daily("12:00")
	fx := startFixture(t, Config{}, []Rule{simpleRule("test", "water_reminders", rec)},
		time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC))
	// u2 opted out; u1 has no explicit preference, which counts as enabled.
	fx.prof.prefs["u2"] = profile.Preferences{"water_reminders": false}

	waitFor(t, func() bool {
		got := fx.client.attempts()
		return len(got) == 1 && got[0] == "ep-u1"
	})
}

func TestServiceIsolatesBuilderFailures(t *testing.T) {
	t.Parallel()
	rec, _ := Daily("10:00")
	rule := Rule{
		Name: "test",
		When: rec,
		Build: func(_ context.Context, userID string, now time.Time) (producer.Payload, error) {
			if userID == "u1" {
				return producer.Payload{}, errors.New("aggregation backend down")
			}
			return producer.WaterReminder(now), nil
		},
	}
	fx := startFixture(t, Config{}, []Rule{rule},
		time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC))

	waitFor(t, func() bool {
		got := fx.client.attempts()
		return len(got) == 1 && got[0] == "ep-u2"
	})
}

func TestNewRejectsUnknownOverride(t *testing.T) {
	t.Parallel()
	rec, _ := Daily("08:00")
	_, err := New(Config{Overrides: map[string]string{"nope": "09:00"}},
		[]Rule{simpleRule("test", "", rec)}, &staticProfiles{}, nil, eventbus.New(), logx.Nop())
	if err == nil {
		t.Fatal("override for unknown rule should error")
	}

	_, err = New(Config{Overrides: map[string]string{"test": "banana"}},
		[]Rule{simpleRule("test", "", rec)}, &staticProfiles{}, nil, eventbus.New(), logx.Nop())
	if err == nil {
		t.Fatal("unparsable override should error")
	}
}

func TestOverrideRemapsRuleTime(t *testing.T) {
	t.Parallel()
	rec, _ := Daily("08:00")
	fx := startFixture(t, Config{Overrides: map[string]string{"test": "09:30"}},
		[]Rule{simpleRule("test", "", rec)},
		time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC))

	waitFor(t, func() bool { return len(fx.client.attempts()) == 2 })
}

func TestDisabledServiceReturnsImmediately(t *testing.T) {
	t.Parallel()
	rec, _ := Daily("08:00")
	svc, err := New(Config{Enabled: false}, []Rule{simpleRule("test", "", rec)},
		&staticProfiles{}, nil, eventbus.New(), logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("disabled Run should return nil, got %v", err)
	}
}

func TestDefaultRulesTable(t *testing.T) {
	t.Parallel()
	rules, err := DefaultRules(nil)
	if err != nil {
		t.Fatalf("DefaultRules: %v", err)
	}
	byName := map[string]Rule{}
	for _, r := range rules {
		byName[r.Name] = r
	}

	checks := []struct {
		name    string
		pref    string
		matches time.Time
	}{
		{"meal.breakfast", profile.PrefMealReminders, time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)},
		{"meal.lunch", profile.PrefMealReminders, time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)},
		{"meal.dinner", profile.PrefMealReminders, time.Date(2025, 6, 2, 18, 0, 0, 0, time.UTC)},
		{"water", profile.PrefWaterReminders, time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)},
		{"exercise", profile.PrefExerciseReminders, time.Date(2025, 6, 2, 17, 0, 0, 0, time.UTC)},
		{"summary.daily", profile.PrefDailySummary, time.Date(2025, 6, 2, 20, 0, 0, 0, time.UTC)},
		{"summary.weekly", profile.PrefWeeklySummary, time.Date(2025, 6, 1, 19, 0, 0, 0, time.UTC)}, // a Sunday
		{"tip.morning", profile.PrefNutritionTips, time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)},
		{"tip.afternoon", profile.PrefNutritionTips, time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)},
		{"tip.evening", profile.PrefNutritionTips, time.Date(2025, 6, 2, 19, 30, 0, 0, time.UTC)},
	}
	for _, c := range checks {
		r, ok := byName[c.name]
		if !ok {
			t.Fatalf("rule %q missing", c.name)
		}
		if r.Pref != c.pref {
			t.Fatalf("rule %q pref = %q, want %q", c.name, r.Pref, c.pref)
		}
		if !r.When.Matches(c.matches) {
			t.Fatalf("rule %q should match %s", c.name, c.matches.Format("Mon 15:04"))
		}
	}

	// The water rule must stay inside waking hours.
	water := byName["water"]
	if water.When.Matches(time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)) ||
		water.When.Matches(time.Date(2025, 6, 2, 22, 0, 0, 0, time.UTC)) {
		t.Fatal("water rule fired outside 09:00-21:00")
	}
}
