package producer

import (
	"fmt"
	"time"
)

// Payload is one notification's renderable content. Immutable once produced;
// every producer in this package is a pure function of its inputs.
type Payload struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Icon  string         `json:"icon,omitempty"`
	Badge string         `json:"badge,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

const (
	defaultIcon  = "/static/icons/icon-192.png"
	defaultBadge = "/static/icons/badge-72.png"
)

func newPayload(typ, action, title, body string, now time.Time) Payload {
	return Payload{
		Title: title,
		Body:  body,
		Icon:  defaultIcon,
		Badge: defaultBadge,
		Data: map[string]any{
			"type":      typ,
			"action":    action,
			"timestamp": now.Format(time.RFC3339),
		},
	}
}

// Meal identifies which meal a reminder is about.
type Meal string

const (
	Breakfast Meal = "breakfast"
	Lunch     Meal = "lunch"
	Dinner    Meal = "dinner"
)

func MealReminder(meal Meal, now time.Time) Payload {
	p := newPayload("meal_reminder", "log_meal",
		"Time to Eat! 🍽️",
		fmt.Sprintf("Don't forget to log your %s.", meal),
		now)
	p.Data["meal"] = string(meal)
	return p
}

func WaterReminder(now time.Time) Payload {
	return newPayload("water_reminder", "log_water",
		"Stay Hydrated! 💧",
		"Time to drink some water. Stay hydrated throughout the day!",
		now)
}

func ExerciseReminder(kind string, now time.Time) Payload {
	body := "Get active! Your body will thank you."
	if kind != "" {
		body = fmt.Sprintf("Time for some %s. Your body will thank you!", kind)
	}
	p := newPayload("exercise_reminder", "log_exercise",
		"Time to Move! 🏃‍♂️", body, now)
	if kind != "" {
		p.Data["exercise"] = kind
	}
	return p
}

// Custom wraps caller-supplied text in the standard payload shape. Used by
// the facade for one-off notifications outside the rule table.
func Custom(title, body string, now time.Time) Payload {
	return newPayload("custom", "open_app", title, body, now)
}

func FoodSuggestion(food string, now time.Time) Payload {
	p := newPayload("food_suggestion", "view_suggestion",
		"Food Suggestion 🥗",
		fmt.Sprintf("Based on your goals, consider adding %s to your diet.", food),
		now)
	p.Data["food"] = food
	return p
}

func Achievement(message string, now time.Time) Payload {
	return newPayload("achievement", "view_achievements",
		"Achievement Unlocked! 🏆",
		fmt.Sprintf("Congratulations! %s", message),
		now)
}
