package producer

import (
	"math/rand"
	"time"
)

// Tips corpus. A tip is chosen uniformly at random; repeats are allowed.
var nutritionTips = []string{
	"Drink a glass of water before meals to help control appetite.",
	"Include protein in every meal to stay full longer.",
	"Choose whole fruits over fruit juice for more fiber.",
	"Eat a variety of colorful vegetables for different nutrients.",
	"Plan your meals ahead to avoid unhealthy choices.",
	"Read nutrition labels to make informed food choices.",
	"Cook at home more often to control ingredients.",
	"Practice mindful eating - eat slowly and enjoy your food.",
	"Include healthy fats like avocado and nuts in your diet.",
	"Don't skip breakfast - it jumpstarts your metabolism.",
}

// NutritionTip picks one tip using the given source. Callers own the source;
// tests pass a seeded one for determinism.
func NutritionTip(r *rand.Rand, now time.Time) Payload {
	tip := nutritionTips[r.Intn(len(nutritionTips))]
	return newPayload("nutrition_tip", "view_tip", "Nutrition Tip 💡", tip, now)
}
