package profile

import (
	"testing"
	"time"
)

func at(hh, mm int) time.Time {
	return time.Date(2025, 3, 10, hh, mm, 0, 0, time.UTC)
}

func TestQuietHoursContains(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		q    QuietHours
		t    time.Time
		want bool
	}{
		{"inside same-day window", QuietHours{"13:00", "15:00"}, at(14, 0), true},
		{"start is inclusive", QuietHours{"13:00", "15:00"}, at(13, 0), true},
		{"end is inclusive", QuietHours{"13:00", "15:00"}, at(15, 0), true},
		{"just before start", QuietHours{"13:00", "15:00"}, at(12, 59), false},
		{"just after end", QuietHours{"13:00", "15:00"}, at(15, 1), false},

		{"wrap covers late evening", QuietHours{"22:00", "07:00"}, at(23, 30), true},
		{"wrap covers early morning", QuietHours{"22:00", "07:00"}, at(6, 0), true},
		{"wrap excludes midday", QuietHours{"22:00", "07:00"}, at(12, 0), false},
		{"wrap start inclusive", QuietHours{"22:00", "07:00"}, at(22, 0), true},
		{"wrap end inclusive", QuietHours{"22:00", "07:00"}, at(7, 0), true},
		{"wrap just past end", QuietHours{"22:00", "07:00"}, at(7, 1), false},

		{"empty window never matches", QuietHours{}, at(3, 0), false},
		{"missing end never matches", QuietHours{Start: "22:00"}, at(23, 0), false},
		{"garbage never matches", QuietHours{"2a:00", "07:00"}, at(23, 0), false},
		{"out-of-range hour never matches", QuietHours{"25:00", "07:00"}, at(3, 0), false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.q.Contains(tt.t); got != tt.want {
				t.Fatalf("Contains(%s) = %v, want %v", tt.t.Format("15:04"), got, tt.want)
			}
		})
	}
}

func TestQuietHoursIsZero(t *testing.T) {
	t.Parallel()
	if !(QuietHours{}).IsZero() {
		t.Fatal("empty window should be zero")
	}
	if (QuietHours{Start: "22:00", End: "07:00"}).IsZero() {
		t.Fatal("configured window should not be zero")
	}
}

func TestPreferencesDefaultEnabled(t *testing.T) {
	t.Parallel()
	p := Preferences{PrefWaterReminders: false}
	if p.Enabled(PrefWaterReminders) {
		t.Fatal("explicit false should disable")
	}
	if !p.Enabled(PrefMealReminders) {
		t.Fatal("missing key should count as enabled")
	}
	var nilPrefs Preferences
	if !nilPrefs.Enabled(PrefNutritionTips) {
		t.Fatal("nil preferences should count as enabled")
	}
}
