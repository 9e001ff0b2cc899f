package core

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/danileyton/epicereport-sub000/core/recurrence"
)

var ErrEndBeforeStart = errors.New("end date must be after start date")

// NewRecurrence holds the scheduling fields of a create payload.
type NewRecurrence struct {
	Days      []string   `json:"days" validate:"weekdays"`
	SendTime  string     `json:"send_time" validate:"required,hhmm"`
	StartDate time.Time  `json:"start_date" validate:"required"`
	EndDate   *time.Time `json:"end_date"`
	Enabled   *bool      `json:"enabled"` // defaults to true
}

// Spec converts validated input to a recurrence.Spec. NextRun is left null.
func (nr NewRecurrence) Spec() (recurrence.Spec, error) {
	if err := CheckDateRange(nr.StartDate, nr.EndDate); err != nil {
		return recurrence.Spec{}, err
	}
	days, err := parseDays(nr.Days)
	if err != nil {
		return recurrence.Spec{}, err
	}
	tod, err := parseSendTime(nr.SendTime)
	if err != nil {
		return recurrence.Spec{}, err
	}
	enabled := true
	if nr.Enabled != nil {
		enabled = *nr.Enabled
	}
	return recurrence.Spec{
		Enabled:   enabled,
		Days:      days,
		Time:      tod,
		StartDate: nr.StartDate.UTC(),
		EndDate:   null.TimeFromPtr(utcPtr(nr.EndDate)),
	}, nil
}

// UpdateRecurrence holds the scheduling fields of an update payload; nil fields are left untouched.
type UpdateRecurrence struct {
	Days         *[]string  `json:"days" validate:"omitempty,weekdays"`
	SendTime     *string    `json:"send_time" validate:"omitempty,hhmm"`
	StartDate    *time.Time `json:"start_date"`
	EndDate      *time.Time `json:"end_date"`
	ClearEndDate bool       `json:"clear_end_date"`
}

// Apply returns spec with the provided fields replaced.
// changed reports whether any field affecting the next run was modified.
func (ur UpdateRecurrence) Apply(spec recurrence.Spec) (_ recurrence.Spec, changed bool, err error) {
	if ur.Days != nil {
		days, err := parseDays(*ur.Days)
		if err != nil {
			return spec, false, err
		}
		changed = changed || days != spec.Days
		spec.Days = days
	}
	if ur.SendTime != nil {
		tod, err := parseSendTime(*ur.SendTime)
		if err != nil {
			return spec, false, err
		}
		changed = changed || tod != spec.Time
		spec.Time = tod
	}
	if ur.StartDate != nil {
		start := ur.StartDate.UTC()
		changed = changed || !start.Equal(spec.StartDate)
		spec.StartDate = start
	}
	if ur.ClearEndDate {
		changed = changed || spec.EndDate.Valid
		spec.EndDate = null.Time{}
	} else if ur.EndDate != nil {
		end := ur.EndDate.UTC()
		changed = changed || !spec.EndDate.Valid || !end.Equal(spec.EndDate.Time)
		spec.EndDate = null.TimeFrom(end)
	}
	if err := CheckDateRange(spec.StartDate, spec.EndDate.Ptr()); err != nil {
		return spec, false, err
	}
	return spec, changed, nil
}

func CheckDateRange(start time.Time, end *time.Time) error {
	if end != nil && !end.After(start) {
		return NewValidationError(ErrEndBeforeStart, FieldError{Field: "end_date", Error: ErrEndBeforeStart.Error()})
	}
	return nil
}

func parseDays(days []string) (recurrence.Weekdays, error) {
	wd, err := recurrence.ParseWeekdays(strings.Join(days, ","))
	if err != nil {
		return 0, NewValidationError(err, FieldError{Field: "days", Error: err.Error()})
	}
	return wd, nil
}

func parseSendTime(s string) (recurrence.TimeOfDay, error) {
	tod, err := recurrence.ParseTimeOfDay(s)
	if err != nil {
		return recurrence.InvalidTime, NewValidationError(err, FieldError{Field: "send_time", Error: err.Error()})
	}
	return tod, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
