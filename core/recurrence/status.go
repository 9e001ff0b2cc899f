package recurrence

import "time"

// Status is the display state of a spec.
type Status string

const (
	StatusDisabled Status = "disabled"
	// StatusMisconfigured is an enabled spec with no next run that has not expired:
	// it will never fire (no days, bad time, or a window that ends before the next match).
	StatusMisconfigured Status = "misconfigured"
	StatusExpired       Status = "expired"
	StatusWaiting       Status = "waiting"
	StatusDue           Status = "due"
)

const misconfiguredWarning = "this schedule is enabled but will never run: check its days, time and date range"

// StatusOf derives spec's status at now from its cached NextRun.
func StatusOf(spec Spec, now time.Time) Status {
	switch {
	case !spec.Enabled:
		return StatusDisabled
	case Expired(spec, now), Exhausted(spec) && spec.EndDate.Valid:
		return StatusExpired
	case IsDue(spec, now) && spec.NextRun.Valid:
		return StatusDue
	case !spec.NextRun.Valid:
		return StatusMisconfigured
	default:
		return StatusWaiting
	}
}

// Warning returns the user facing warning for s, if any.
func (s Status) Warning() string {
	if s == StatusMisconfigured {
		return misconfiguredWarning
	}
	return ""
}
