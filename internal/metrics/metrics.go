package metrics

import (
	"context"
	"time"
)

// DailyTotals is the pre-aggregated food/water log for one user and day.
type DailyTotals struct {
	Calories    float64 `json:"calories"`
	CalorieGoal float64 `json:"calorie_goal"`
	WaterML     int     `json:"water_ml"`
	Meals       int     `json:"meals"`
}

// WeeklyTotals is the pre-aggregated food/exercise log for one user and week.
type WeeklyTotals struct {
	Calories        float64 `json:"calories"`
	AvgCalories     float64 `json:"avg_calories"`
	Meals           int     `json:"meals"`
	ExerciseMinutes int     `json:"exercise_minutes"`
	DaysLogged      int     `json:"days_logged"`
}

// Store is the read-only contract against the food/exercise log backend.
// The pipeline never writes through it; summary producers are its only
// consumers.
type Store interface {
	DailyTotals(ctx context.Context, userID string, day time.Time) (DailyTotals, error)
	WeeklyTotals(ctx context.Context, userID string, weekEnding time.Time) (WeeklyTotals, error)
}
