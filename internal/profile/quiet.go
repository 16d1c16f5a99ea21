package profile

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// QuietHours is a per-user daily do-not-disturb window. Both bounds are
// "HH:MM" wall-clock times; the window may wrap midnight.
type QuietHours struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (q QuietHours) IsZero() bool {
	return strings.TrimSpace(q.Start) == "" && strings.TrimSpace(q.End) == ""
}

// Contains reports whether t's time of day falls inside the window.
//
// A missing or partial window never suppresses anything, and neither does an
// unparsable one. When start > end the window wraps midnight, so 22:00-07:00
// covers 23:30 but not 12:00.
func (q QuietHours) Contains(t time.Time) bool {
	startH, startM, err := parseHHMM(q.Start)
	if err != nil {
		return false
	}
	endH, endM, err := parseHHMM(q.End)
	if err != nil {
		return false
	}

	cur := t.Hour()*60 + t.Minute()
	start := startH*60 + startM
	end := endH*60 + endM

	if start <= end {
		return cur >= start && cur <= end
	}
	return cur >= start || cur <= end
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
