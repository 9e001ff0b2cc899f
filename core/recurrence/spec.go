package recurrence

import (
	"time"

	"github.com/volatiletech/null/v8"
)

// scanDays covers a full week plus one day, so that a matching weekday whose
// time has already passed today is found again next week.
const scanDays = 8

// Spec describes when a task recurs.
type Spec struct {
	Enabled   bool      `json:"enabled"`
	Days      Weekdays  `json:"-"`
	Time      TimeOfDay `json:"-"`
	StartDate time.Time `json:"start_date"`
	EndDate   null.Time `json:"end_date"`
	LastRun   null.Time `json:"last_run"`
	NextRun   null.Time `json:"next_run"`
}

// NextRun computes the earliest fire time strictly after max(ref, LastRun) that falls on
// one of the selected days at its time of day, within [StartDate, EndDate].
// Calendar days are those of ref's location.
// ok is false when nothing fires again (disabled, no days, invalid time, expired).
func NextRun(spec Spec, ref time.Time) (next time.Time, ok bool) {
	if !spec.Enabled || spec.Days.Empty() || !spec.Time.Valid() {
		return time.Time{}, false
	}
	loc := ref.Location()

	base := ref
	if spec.LastRun.Valid && spec.LastRun.Time.After(base) {
		base = spec.LastRun.Time.In(loc)
	}

	// no run can precede StartDate: begin the scan on its day when it lies ahead.
	from := base
	if spec.StartDate.After(from) {
		from = spec.StartDate.In(loc)
	}

	y, m, d := from.Date()
	for i := 0; i < scanDays; i++ {
		c := time.Date(y, m, d+i, spec.Time.Hour, spec.Time.Minute, 0, 0, loc)
		if !spec.Days.Has(c.Weekday()) {
			continue
		}
		if !c.After(base) {
			continue
		}
		if c.Before(spec.StartDate) {
			continue
		}
		if spec.EndDate.Valid && c.After(spec.EndDate.Time) {
			return time.Time{}, false
		}
		return c, true
	}
	return time.Time{}, false
}

// IsDue reports whether spec is eligible to fire at now. A null NextRun is always due.
func IsDue(spec Spec, now time.Time) bool {
	if !spec.Enabled {
		return false
	}
	if spec.StartDate.After(now) {
		return false
	}
	if spec.EndDate.Valid && spec.EndDate.Time.Before(now) {
		return false
	}
	return !spec.NextRun.Valid || !spec.NextRun.Time.After(now)
}

// Fireable reports whether spec's configuration can produce a run at all.
// A null NextRun makes IsDue true; Fireable keeps such a spec from firing when it is
// merely misconfigured (no days or an invalid time) or exhausted. Only a spec that
// has never run treats a null NextRun as due.
func Fireable(spec Spec) bool {
	return spec.Enabled && !spec.Days.Empty() && spec.Time.Valid() && !Exhausted(spec)
}

// Exhausted reports whether spec has run and no run remains in its window.
func Exhausted(spec Spec) bool {
	return spec.LastRun.Valid && !spec.NextRun.Valid
}

// MarkRun records a successful firing at runTime and recomputes NextRun from it.
func MarkRun(spec Spec, runTime time.Time) Spec {
	spec.LastRun = null.TimeFrom(runTime)
	spec.NextRun = nullTime(NextRun(spec, runTime))
	return spec
}

// Rebase carries the run bookkeeping of done over to current, a newer configuration of
// the same spec. A run recorded in done is marked on current; otherwise current is kept.
func Rebase(current, done Spec) Spec {
	if done.LastRun.Valid && !SameTime(done.LastRun, current.LastRun) {
		return MarkRun(current, done.LastRun.Time)
	}
	return current
}

// SameConfig reports whether a and b schedule alike, ignoring run bookkeeping.
func SameConfig(a, b Spec) bool {
	return a.Enabled == b.Enabled && a.Days == b.Days && a.Time == b.Time &&
		a.StartDate.Equal(b.StartDate) && SameTime(a.EndDate, b.EndDate)
}

// Refresh recomputes the cached NextRun; it must follow every mutation of spec.
func Refresh(spec Spec, now time.Time) Spec {
	spec.NextRun = nullTime(NextRun(spec, now))
	return spec
}

// Expired reports whether the end date has passed.
func Expired(spec Spec, now time.Time) bool {
	return spec.EndDate.Valid && spec.EndDate.Time.Before(now)
}

// SameTime reports whether a and b are both null or hold the same instant.
func SameTime(a, b null.Time) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Time.Equal(b.Time)
}

func nullTime(t time.Time, ok bool) null.Time {
	if !ok {
		return null.Time{}
	}
	return null.TimeFrom(t)
}
