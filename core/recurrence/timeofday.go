package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is the wall-clock instant within an enabled day at which a task fires.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// InvalidTime never fires. Unparsable persisted values map to it.
var InvalidTime = TimeOfDay{Hour: -1, Minute: -1}

// ParseTimeOfDay parses "HH:MM" (24h clock).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || len(parts[0]) == 0 || len(parts[0]) > 2 || len(parts[1]) != 2 {
		return InvalidTime, fmt.Errorf("invalid time of day %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return InvalidTime, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return InvalidTime, fmt.Errorf("invalid minute in %q", s)
	}
	t := TimeOfDay{Hour: h, Minute: m}
	if !t.Valid() {
		return InvalidTime, fmt.Errorf("time of day %q out of range", s)
	}
	return t, nil
}

// MustParseTimeOfDay is ParseTimeOfDay for literals; it panics on error.
func MustParseTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour <= 23 && t.Minute >= 0 && t.Minute <= 59
}

func (t TimeOfDay) String() string {
	if !t.Valid() {
		return ""
	}
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On returns the instant of t on the calendar day of d, in d's location.
func (t TimeOfDay) On(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour, t.Minute, 0, 0, d.Location())
}
