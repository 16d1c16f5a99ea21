package profile

import "context"

// Preference keys gating the trigger rules. A key that is absent from a
// user's preferences counts as enabled; only an explicit false disables it.
const (
	PrefMealReminders     = "meal_reminders"
	PrefWaterReminders    = "water_reminders"
	PrefExerciseReminders = "exercise_reminders"
	PrefNutritionTips     = "nutrition_tips"
	PrefDailySummary      = "daily_summary"
	PrefWeeklySummary     = "weekly_summary"
)

type Preferences map[string]bool

// Enabled reports whether a notification class is allowed for this user.
func (p Preferences) Enabled(key string) bool {
	v, ok := p[key]
	if !ok {
		return true
	}
	return v
}

// Store is the read-side contract against the user profile backend.
// QuietHours returns the zero value when the user has no window configured.
type Store interface {
	UserIDs(ctx context.Context) ([]string, error)
	Preferences(ctx context.Context, userID string) (Preferences, error)
	QuietHours(ctx context.Context, userID string) (QuietHours, error)
}
