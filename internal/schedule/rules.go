package schedule

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"nutripush/internal/metrics"
	"nutripush/internal/producer"
	"nutripush/internal/profile"
)

// DefaultRules is the built-in reminder table: meal reminders around
// conventional meal times, waking-hours water reminders, summaries in the
// evening, and a few nutrition tips spread over the day. Times are
// overridable per rule via config.
func DefaultRules(m metrics.Store) ([]Rule, error) {
	// One shared source for tip rotation; builders may run concurrently.
	var tipMu sync.Mutex
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	tip := func(ctx context.Context, userID string, now time.Time) (producer.Payload, error) {
		tipMu.Lock()
		defer tipMu.Unlock()
		return producer.NutritionTip(rng, now), nil
	}

	meal := func(kind producer.Meal) Builder {
		return func(ctx context.Context, userID string, now time.Time) (producer.Payload, error) {
			return producer.MealReminder(kind, now), nil
		}
	}

	specs := []struct {
		name  string
		pref  string
		at    func() (Recurrence, error)
		build Builder
	}{
		{"meal.breakfast", profile.PrefMealReminders,
			func() (Recurrence, error) { return Daily("08:00") }, meal(producer.Breakfast)},
		{"meal.lunch", profile.PrefMealReminders,
			func() (Recurrence, error) { return Daily("12:00") }, meal(producer.Lunch)},
		{"meal.dinner", profile.PrefMealReminders,
			func() (Recurrence, error) { return Daily("18:00") }, meal(producer.Dinner)},

		{"water", profile.PrefWaterReminders,
			func() (Recurrence, error) { return HourlyBetween(1, "09:00", "21:00") },
			func(ctx context.Context, userID string, now time.Time) (producer.Payload, error) {
				return producer.WaterReminder(now), nil
			}},

		{"exercise", profile.PrefExerciseReminders,
			func() (Recurrence, error) { return Daily("17:00") },
			func(ctx context.Context, userID string, now time.Time) (producer.Payload, error) {
				return producer.ExerciseReminder("", now), nil
			}},

		{"summary.daily", profile.PrefDailySummary,
			func() (Recurrence, error) { return Daily("20:00") },
			func(ctx context.Context, userID string, now time.Time) (producer.Payload, error) {
				totals, err := m.DailyTotals(ctx, userID, now)
				if err != nil {
					return producer.Payload{}, err
				}
				return producer.DailySummary(totals, now), nil
			}},

		{"summary.weekly", profile.PrefWeeklySummary,
			func() (Recurrence, error) { return Weekly(time.Sunday, "19:00") },
			func(ctx context.Context, userID string, now time.Time) (producer.Payload, error) {
				totals, err := m.WeeklyTotals(ctx, userID, now)
				if err != nil {
					return producer.Payload{}, err
				}
				return producer.WeeklySummary(totals, now), nil
			}},

		{"tip.morning", profile.PrefNutritionTips,
			func() (Recurrence, error) { return Daily("10:00") }, tip},
		{"tip.afternoon", profile.PrefNutritionTips,
			func() (Recurrence, error) { return Daily("15:00") }, tip},
		{"tip.evening", profile.PrefNutritionTips,
			func() (Recurrence, error) { return Daily("19:30") }, tip},
	}

	rules := make([]Rule, 0, len(specs))
	for _, sp := range specs {
		rec, err := sp.at()
		if err != nil {
			return nil, err
		}
		rules = append(rules, Rule{Name: sp.name, Pref: sp.pref, When: rec, Build: sp.build})
	}
	return rules, nil
}
