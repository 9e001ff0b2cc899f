package recurrence

import (
	"fmt"
	"strings"
	"time"
)

// Weekdays is a 7-bit set of week days. Bit 0 is Monday, bit 6 is Sunday.
type Weekdays uint8

const (
	Monday Weekdays = 1 << iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday

	AllWeekdays = Monday | Tuesday | Wednesday | Thursday | Friday | Saturday | Sunday
)

var dayNames = [7]string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

// bit maps a time.Weekday (Sunday = 0) to its Weekdays bit.
func bit(wd time.Weekday) Weekdays {
	return 1 << ((uint(wd) + 6) % 7)
}

func WeekdaysOf(days ...time.Weekday) Weekdays {
	var w Weekdays
	for _, d := range days {
		w |= bit(d)
	}
	return w
}

// ParseWeekdays parses a comma separated list of day names ("mon,wed" or "monday, wednesday").
// An empty string is the empty set.
func ParseWeekdays(s string) (Weekdays, error) {
	var w Weekdays
	for _, tok := range strings.Split(s, ",") {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" {
			continue
		}
		found := false
		for i, name := range dayNames {
			if tok == name || (len(tok) > 3 && strings.HasPrefix(strings.ToLower(time.Weekday((i+1)%7).String()), tok)) {
				w |= 1 << uint(i)
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("invalid week day %q", tok)
		}
	}
	return w, nil
}

func (w Weekdays) Has(wd time.Weekday) bool { return w&bit(wd) != 0 }

func (w Weekdays) Empty() bool { return w&AllWeekdays == 0 }

// Names lists the set's day names, Monday first.
func (w Weekdays) Names() []string {
	names := make([]string, 0, 7)
	for i, name := range dayNames {
		if w&(1<<uint(i)) != 0 {
			names = append(names, name)
		}
	}
	return names
}

func (w Weekdays) String() string { return strings.Join(w.Names(), ",") }

// Bitmask renders the set the way the LMS stores it: seven 0/1 flags, Monday first.
func (w Weekdays) Bitmask() string {
	var b strings.Builder
	for i := 0; i < 7; i++ {
		if w&(1<<uint(i)) != 0 {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}
