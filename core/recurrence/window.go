package recurrence

import (
	"fmt"
	"strings"
	"time"
)

// Window is the period over which a per-recipient send limit applies.
type Window string

const (
	WindowNone   Window = "none"
	WindowDaily  Window = "daily"
	WindowWeekly Window = "weekly"
)

func ParseWindow(s string) (Window, error) {
	switch w := Window(strings.ToLower(strings.TrimSpace(s))); w {
	case "", WindowNone:
		return WindowNone, nil
	case WindowDaily, WindowWeekly:
		return w, nil
	default:
		return WindowNone, fmt.Errorf("invalid send limit %q", s)
	}
}

// Limited reports whether w restricts sends at all.
func (w Window) Limited() bool {
	return w == WindowDaily || w == WindowWeekly
}

// WindowStart returns the inclusive start of the window ending at now:
// the start of now's calendar day (daily) or now minus 7 days (weekly).
// ok is false for WindowNone.
func WindowStart(w Window, now time.Time) (start time.Time, ok bool) {
	switch w {
	case WindowDaily:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), true
	case WindowWeekly:
		return now.Add(-7 * 24 * time.Hour), true
	default:
		return time.Time{}, false
	}
}
