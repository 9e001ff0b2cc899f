package inmemdb

import (
	"strings"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/danileyton/epicereport-sub000/core"
	"github.com/danileyton/epicereport-sub000/core/recurrence"
)

// claimable mirrors the SQL claim condition.
func claimable(lockedBy null.String, lockedAt, storedLastRun, lastRun null.Time, now time.Time, ttl time.Duration) bool {
	if lockedBy.Valid && lockedAt.Valid && !lockedAt.Time.Before(now.Add(-ttl)) {
		return false
	}
	return recurrence.SameTime(storedLastRun, lastRun)
}

// dueBefore orders due rows: null next run first, then oldest next run, then id.
func dueBefore(a, b recurrence.Spec, aID, bID int64) bool {
	switch {
	case !a.NextRun.Valid && b.NextRun.Valid:
		return true
	case a.NextRun.Valid && !b.NextRun.Valid:
		return false
	case a.NextRun.Valid && !a.NextRun.Time.Equal(b.NextRun.Time):
		return a.NextRun.Time.Before(b.NextRun.Time)
	}
	return aID < bID
}

func dueAt(spec recurrence.Spec, now time.Time) bool {
	return spec.Enabled && (!spec.NextRun.Valid || !spec.NextRun.Time.After(now))
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// ordered applies the first ordering understood by less; ids break ties.
func ordered(orderings []core.DBOrdering, less func(field string) (int, bool)) bool {
	for _, ord := range orderings {
		cmp, ok := less(ord.Field)
		if !ok || cmp == 0 {
			continue
		}
		if ord.Ascending {
			return cmp < 0
		}
		return cmp > 0
	}
	cmp, _ := less("id")
	return cmp < 0
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpNullTime(a, b null.Time) int {
	switch {
	case !a.Valid && !b.Valid:
		return 0
	case !a.Valid:
		return -1
	case !b.Valid:
		return 1
	}
	return cmpInt(a.Time.UnixNano(), b.Time.UnixNano())
}
