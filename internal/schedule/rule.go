package schedule

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"nutripush/internal/producer"
)

// Builder produces the payload a rule sends to one eligible user.
// Builders must be side-effect free; they may read pre-aggregated inputs.
type Builder func(ctx context.Context, userID string, now time.Time) (producer.Payload, error)

// Rule binds a recurrence to a producer, gated by a preference key.
// Rules are declarative values: loaded once, immutable for the process
// lifetime, and evaluated by the service's single tick loop.
type Rule struct {
	Name  string
	Pref  string // profile preference key; empty means not gated
	When  Recurrence
	Build Builder
}

// Recurrence decides whether a rule fires at a given wall-clock minute.
type Recurrence struct {
	spec string

	sched    cron.Schedule // daily/weekly/cron kinds
	interval *intervalSpec // fixed-interval-of-hours kind
}

type intervalSpec struct {
	everyHours        int
	fromH, fromM, toH int
}

func (r Recurrence) String() string { return r.spec }

// Matches reports whether the rule is due at now's minute. Granularity is
// one minute; sub-minute precision does not exist for reminders.
func (r Recurrence) Matches(now time.Time) bool {
	m := now.Truncate(time.Minute)
	if r.sched != nil {
		return r.sched.Next(m.Add(-time.Second)).Equal(m)
	}
	if iv := r.interval; iv != nil {
		if now.Minute() != iv.fromM {
			return false
		}
		h := now.Hour()
		if h < iv.fromH || h > iv.toH {
			return false
		}
		return (h-iv.fromH)%iv.everyHours == 0
	}
	return false
}

// Daily fires once per day at "HH:MM".
func Daily(at string) (Recurrence, error) {
	h, m, err := parseHHMM(at)
	if err != nil {
		return Recurrence{}, err
	}
	return Cron(fmt.Sprintf("%d %d * * *", m, h))
}

// Weekly fires once per week on the given weekday at "HH:MM".
func Weekly(weekday time.Weekday, at string) (Recurrence, error) {
	h, m, err := parseHHMM(at)
	if err != nil {
		return Recurrence{}, err
	}
	return Cron(fmt.Sprintf("%d %d * * %d", m, h, int(weekday)))
}

// Cron fires per a standard 5-field cron spec (descriptors like @daily work
// too). Used directly for config overrides.
func Cron(spec string) (Recurrence, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return Recurrence{}, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return Recurrence{spec: spec, sched: sched}, nil
}

// HourlyBetween fires every everyHours hours within the daily window
// [from, to], at from's minute. HourlyBetween(1, "09:00", "21:00") is the
// classic waking-hours water reminder.
func HourlyBetween(everyHours int, from, to string) (Recurrence, error) {
	if everyHours <= 0 {
		return Recurrence{}, fmt.Errorf("interval hours must be positive, got %d", everyHours)
	}
	fromH, fromM, err := parseHHMM(from)
	if err != nil {
		return Recurrence{}, err
	}
	toH, _, err := parseHHMM(to)
	if err != nil {
		return Recurrence{}, err
	}
	if toH < fromH {
		return Recurrence{}, fmt.Errorf("interval window %s-%s may not wrap midnight", from, to)
	}
	return Recurrence{
		spec:     fmt.Sprintf("every %dh %s-%s", everyHours, from, to),
		interval: &intervalSpec{everyHours: everyHours, fromH: fromH, fromM: fromM, toH: toH},
	}, nil
}

// ParseOverride accepts either "HH:MM" (daily) or a cron spec. Used for
// per-rule time overrides from config.
func ParseOverride(raw string) (Recurrence, error) {
	raw = strings.TrimSpace(raw)
	if _, _, err := parseHHMM(raw); err == nil {
		return Daily(raw)
	}
	return Cron(raw)
}

func parseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
