package producer

import (
	"fmt"
	"math"
	"time"

	"nutripush/internal/metrics"
)

func DailySummary(t metrics.DailyTotals, now time.Time) Payload {
	body := fmt.Sprintf("You logged %d meals and %.0f kcal today.", t.Meals, t.Calories)
	if t.CalorieGoal > 0 {
		body = fmt.Sprintf("You logged %d meals and %.0f of %.0f kcal today.", t.Meals, t.Calories, t.CalorieGoal)
	}
	p := newPayload("daily_summary", "view_dashboard",
		"Daily Summary 📊", body, now)
	p.Data["url"] = "/dashboard"
	return p
}

func WeeklySummary(t metrics.WeeklyTotals, now time.Time) Payload {
	p := newPayload("weekly_summary", "view_summary",
		"Weekly Summary 📊",
		fmt.Sprintf("This week: %d meals, %.0f kcal on average, %d minutes of exercise. Check out the details!",
			t.Meals, t.AvgCalories, t.ExerciseMinutes),
		now)
	p.Data["url"] = "/summary/weekly"
	return p
}

// CalorieProgress tiers the user's progress toward their daily calorie goal.
// The percentage is rounded to the nearest integer before tiering, so 74.9%
// reports as "Almost There".
func CalorieProgress(consumed, goal float64, now time.Time) Payload {
	var pct int
	if goal > 0 {
		pct = int(math.Round(consumed / goal * 100))
	}

	var title, body string
	switch {
	case pct >= 100:
		title = "Goal Achieved! 🎉"
		body = fmt.Sprintf("You've reached %d%% of your daily calorie goal.", pct)
	case pct >= 75:
		title = "Almost There"
		body = fmt.Sprintf("You're at %d%% of your daily calorie goal.", pct)
	case pct >= 50:
		title = "Halfway There"
		body = fmt.Sprintf("You're at %d%% of your daily calorie goal. Keep it up!", pct)
	default:
		title = "Calorie Goal Update"
		body = fmt.Sprintf("You've logged %d%% of your daily calorie goal so far.", pct)
	}

	p := newPayload("calorie_update", "view_dashboard", title, body, now)
	p.Data["percentage"] = pct
	return p
}
