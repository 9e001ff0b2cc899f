package recurrence

import (
	"testing"
	"time"

	"github.com/volatiletech/null/v8"
)

func date(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func monWed8() Spec {
	return Spec{
		Enabled:   true,
		Days:      Monday | Wednesday,
		Time:      MustParseTimeOfDay("08:00"),
		StartDate: date(2024, 1, 1, 0, 0),
	}
}

func TestNextRun(t *testing.T) {
	expiring := monWed8()
	expiring.EndDate = null.TimeFrom(date(2024, 1, 5, 0, 0))

	ranToday := monWed8()
	ranToday.LastRun = null.TimeFrom(date(2024, 1, 3, 8, 0))

	future := monWed8()
	future.StartDate = date(2024, 3, 1, 0, 0) // a Friday

	lateStart := monWed8()
	lateStart.StartDate = date(2024, 1, 3, 9, 0)

	disabled := monWed8()
	disabled.Enabled = false

	noDays := monWed8()
	noDays.Days = 0

	badTime := monWed8()
	badTime.Time = InvalidTime

	endsOnRun := monWed8()
	endsOnRun.EndDate = null.TimeFrom(date(2024, 1, 8, 8, 0))

	tests := []struct {
		name   string
		spec   Spec
		ref    time.Time
		want   time.Time
		wantOk bool
	}{
		{name: "A: today already passed", spec: monWed8(), ref: date(2024, 1, 3, 10, 0), want: date(2024, 1, 8, 8, 0), wantOk: true},
		{name: "B: later today", spec: monWed8(), ref: date(2024, 1, 3, 6, 0), want: date(2024, 1, 3, 8, 0), wantOk: true},
		{name: "C: window expired", spec: expiring, ref: date(2024, 1, 6, 0, 0)},
		{name: "exactly at fire time is not future", spec: monWed8(), ref: date(2024, 1, 3, 8, 0), want: date(2024, 1, 8, 8, 0), wantOk: true},
		{name: "last run ahead of clock", spec: ranToday, ref: date(2024, 1, 3, 7, 59), want: date(2024, 1, 8, 8, 0), wantOk: true},
		{name: "start date far ahead", spec: future, ref: date(2024, 1, 3, 10, 0), want: date(2024, 3, 4, 8, 0), wantOk: true},
		{name: "start date later the same day", spec: lateStart, ref: date(2024, 1, 3, 6, 0), want: date(2024, 1, 8, 8, 0), wantOk: true},
		{name: "end date inclusive", spec: endsOnRun, ref: date(2024, 1, 4, 0, 0), want: date(2024, 1, 8, 8, 0), wantOk: true},
		{name: "disabled", spec: disabled, ref: date(2024, 1, 3, 6, 0)},
		{name: "no days", spec: noDays, ref: date(2024, 1, 3, 6, 0)},
		{name: "invalid time", spec: badTime, ref: date(2024, 1, 3, 6, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NextRun(tt.spec, tt.ref)
			if ok != tt.wantOk {
				t.Fatalf("NextRun() ok = %v, want %v (got %v)", ok, tt.wantOk, got)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("NextRun() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextRun_EverySingleDay(t *testing.T) {
	ref := date(2024, 1, 3, 10, 0) // Wednesday, after 08:00
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		spec := monWed8()
		spec.Days = WeekdaysOf(wd)
		got, ok := NextRun(spec, ref)
		if !ok {
			t.Fatalf("NextRun(%v) found no run", wd)
		}
		if got.Weekday() != wd {
			t.Errorf("NextRun(%v) weekday = %v", wd, got.Weekday())
		}
		if !got.After(ref) || got.Sub(ref) > 7*24*time.Hour {
			t.Errorf("NextRun(%v) = %v, not within the following week", wd, got)
		}
	}
}

func TestNextRun_Properties(t *testing.T) {
	windowed := monWed8()
	windowed.Days = Monday | Friday | Sunday
	windowed.Time = MustParseTimeOfDay("23:45")
	windowed.StartDate = date(2024, 1, 10, 12, 0)
	windowed.EndDate = null.TimeFrom(date(2024, 2, 2, 0, 0))

	specs := []Spec{monWed8(), windowed}
	for i, spec := range specs {
		var prev time.Time
		for ref := date(2023, 12, 25, 0, 0); ref.Before(date(2024, 2, 10, 0, 0)); ref = ref.Add(37 * time.Minute) {
			got, ok := NextRun(spec, ref)
			if !ok {
				continue
			}
			// P4 future-only
			if !got.After(ref) {
				t.Fatalf("spec %d: NextRun(%v) = %v, not after ref", i, ref, got)
			}
			// P5 respects window
			if got.Before(spec.StartDate) || (spec.EndDate.Valid && got.After(spec.EndDate.Time)) {
				t.Fatalf("spec %d: NextRun(%v) = %v, outside window", i, ref, got)
			}
			// P3 monotonicity
			if got.Before(prev) {
				t.Fatalf("spec %d: NextRun(%v) = %v, earlier than previous %v", i, ref, got, prev)
			}
			prev = got
		}
	}
}

func TestNextRun_NoDaysOrDisabledNeverFires(t *testing.T) {
	refs := []time.Time{date(2020, 1, 1, 0, 0), date(2024, 1, 3, 6, 0), date(2030, 6, 15, 12, 30)}
	for _, ref := range refs {
		noDays := monWed8()
		noDays.Days = 0
		noDays.LastRun = null.TimeFrom(ref.Add(-time.Hour))
		if _, ok := NextRun(noDays, ref); ok {
			t.Errorf("NextRun(no days, %v) fired", ref)
		}
		disabled := monWed8()
		disabled.Enabled = false
		disabled.Days = AllWeekdays
		if _, ok := NextRun(disabled, ref); ok {
			t.Errorf("NextRun(disabled, %v) fired", ref)
		}
	}
}

func TestNextRun_Location(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	spec := monWed8()
	// 2024-01-02T22:30Z is already Wednesday 01:30 in UTC+3
	ref := time.Date(2024, 1, 2, 22, 30, 0, 0, time.UTC).In(loc)
	got, ok := NextRun(spec, ref)
	if !ok {
		t.Fatal("NextRun() found no run")
	}
	want := time.Date(2024, 1, 3, 8, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("NextRun() = %v, want %v", got, want)
	}
}

func TestMarkRun(t *testing.T) {
	runTime := date(2024, 1, 3, 8, 0)
	spec := MarkRun(monWed8(), runTime)

	if !spec.LastRun.Valid || !spec.LastRun.Time.Equal(runTime) {
		t.Errorf("MarkRun() LastRun = %v, want %v", spec.LastRun, runTime)
	}
	want, _ := NextRun(spec, runTime)
	if !spec.NextRun.Valid || !spec.NextRun.Time.Equal(want) {
		t.Errorf("MarkRun() NextRun = %v, want %v", spec.NextRun, want)
	}
	if !want.Equal(date(2024, 1, 8, 8, 0)) {
		t.Errorf("MarkRun() next = %v, want following monday", want)
	}

	expired := monWed8()
	expired.EndDate = null.TimeFrom(date(2024, 1, 4, 0, 0))
	if got := MarkRun(expired, runTime); got.NextRun.Valid {
		t.Errorf("MarkRun(expired) NextRun = %v, want null", got.NextRun)
	}
}

func TestRebase(t *testing.T) {
	monday := date(2024, 1, 8, 8, 0)
	read := monWed8()
	edited := monWed8()
	edited.Days = Friday
	edited = Refresh(edited, date(2024, 1, 3, 10, 0))

	got := Rebase(edited, MarkRun(read, monday))
	if got.Days != Friday || !got.LastRun.Time.Equal(monday) || !got.NextRun.Time.Equal(date(2024, 1, 12, 8, 0)) {
		t.Errorf("Rebase(run) = days %v, last %v, next %v", got.Days, got.LastRun, got.NextRun)
	}
	if !SameConfig(got, edited) || SameConfig(got, read) {
		t.Errorf("Rebase(run) configuration is not the edited one")
	}

	if got = Rebase(edited, read); got != edited {
		t.Errorf("Rebase(no run) = %+v; want the edited spec", got)
	}
}

func TestRefresh(t *testing.T) {
	spec := monWed8()
	spec.NextRun = null.TimeFrom(date(2024, 1, 1, 8, 0)) // stale
	spec = Refresh(spec, date(2024, 1, 3, 10, 0))
	if !spec.NextRun.Valid || !spec.NextRun.Time.Equal(date(2024, 1, 8, 8, 0)) {
		t.Errorf("Refresh() NextRun = %v", spec.NextRun)
	}

	spec.Enabled = false
	if spec = Refresh(spec, date(2024, 1, 3, 10, 0)); spec.NextRun.Valid {
		t.Errorf("Refresh(disabled) NextRun = %v, want null", spec.NextRun)
	}
}

func TestIsDue(t *testing.T) {
	now := date(2024, 1, 3, 8, 5)

	withNext := func(next time.Time) Spec {
		s := monWed8()
		s.NextRun = null.TimeFrom(next)
		return s
	}
	notStarted := monWed8()
	notStarted.StartDate = date(2024, 1, 4, 0, 0)
	ended := monWed8()
	ended.EndDate = null.TimeFrom(date(2024, 1, 3, 8, 0))
	endsNow := monWed8()
	endsNow.EndDate = null.TimeFrom(now)
	disabled := monWed8()
	disabled.Enabled = false

	tests := []struct {
		name string
		spec Spec
		want bool
	}{
		{name: "E: null next run is due", spec: monWed8(), want: true},
		{name: "next run passed", spec: withNext(date(2024, 1, 3, 8, 0)), want: true},
		{name: "next run now", spec: withNext(now), want: true},
		{name: "next run ahead", spec: withNext(date(2024, 1, 8, 8, 0))},
		{name: "not started", spec: notStarted},
		{name: "ended", spec: ended},
		{name: "ends now", spec: endsNow, want: true},
		{name: "disabled", spec: disabled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDue(tt.spec, now); got != tt.want {
				t.Errorf("IsDue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFireable(t *testing.T) {
	lastInWindow := monWed8()
	lastInWindow.EndDate = null.TimeFrom(date(2024, 1, 9, 23, 0))
	lastInWindow = MarkRun(lastInWindow, date(2024, 1, 8, 8, 0))
	noDays := monWed8()
	noDays.Days = 0
	badTime := monWed8()
	badTime.Time = InvalidTime
	disabled := monWed8()
	disabled.Enabled = false

	tests := []struct {
		name string
		spec Spec
		want bool
	}{
		{name: "never computed", spec: monWed8(), want: true},
		{name: "has next run", spec: Refresh(monWed8(), date(2024, 1, 3, 10, 0)), want: true},
		{name: "ran, next run left", spec: MarkRun(monWed8(), date(2024, 1, 3, 8, 0)), want: true},
		{name: "ran its last run in window", spec: lastInWindow},
		{name: "no days", spec: noDays},
		{name: "invalid time", spec: badTime},
		{name: "disabled", spec: disabled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Fireable(tt.spec); got != tt.want {
				t.Errorf("Fireable() = %v, want %v", got, tt.want)
			}
		})
	}

	// still inside its window, so it is due by NextRun alone
	now := date(2024, 1, 8, 8, 5)
	if !IsDue(lastInWindow, now) {
		t.Fatalf("IsDue(lastInWindow) = false, want true")
	}
	if IsDue(lastInWindow, now) && Fireable(lastInWindow) {
		t.Errorf("spec after its last in-window run would fire again")
	}
}

func TestStatusOf(t *testing.T) {
	now := date(2024, 1, 3, 10, 0)

	waiting := Refresh(monWed8(), now)
	due := monWed8()
	due.NextRun = null.TimeFrom(date(2024, 1, 3, 8, 0))
	noDays := monWed8()
	noDays.Days = 0
	noDays = Refresh(noDays, now)
	expired := monWed8()
	expired.EndDate = null.TimeFrom(date(2024, 1, 2, 0, 0))
	disabled := monWed8()
	disabled.Enabled = false
	lastInWindow := monWed8()
	lastInWindow.EndDate = null.TimeFrom(date(2024, 1, 3, 23, 0))
	lastInWindow = MarkRun(lastInWindow, date(2024, 1, 3, 8, 0))

	tests := []struct {
		name string
		spec Spec
		want Status
	}{
		{name: "ran its last run in window", spec: lastInWindow, want: StatusExpired},
		{name: "waiting", spec: waiting, want: StatusWaiting},
		{name: "due", spec: due, want: StatusDue},
		{name: "misconfigured", spec: noDays, want: StatusMisconfigured},
		{name: "expired", spec: expired, want: StatusExpired},
		{name: "disabled", spec: disabled, want: StatusDisabled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StatusOf(tt.spec, now)
			if got != tt.want {
				t.Errorf("StatusOf() = %v, want %v", got, tt.want)
			}
			if (got.Warning() != "") != (tt.want == StatusMisconfigured) {
				t.Errorf("Warning() = %q for %v", got.Warning(), got)
			}
		})
	}
}

func TestWindowStart(t *testing.T) {
	now := date(2024, 1, 3, 0, 1)

	start, ok := WindowStart(WindowDaily, now)
	if !ok || !start.Equal(date(2024, 1, 3, 0, 0)) {
		t.Errorf("WindowStart(daily) = %v, %v", start, ok)
	}
	// D: yesterday 23:59 is outside today's window
	if yesterday := date(2024, 1, 2, 23, 59); !yesterday.Before(start) {
		t.Errorf("WindowStart(daily) = %v includes %v", start, yesterday)
	}

	start, ok = WindowStart(WindowWeekly, now)
	if !ok || !start.Equal(now.Add(-7*24*time.Hour)) {
		t.Errorf("WindowStart(weekly) = %v, %v", start, ok)
	}

	if _, ok = WindowStart(WindowNone, now); ok {
		t.Error("WindowStart(none) ok = true")
	}
}
