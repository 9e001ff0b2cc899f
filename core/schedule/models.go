package schedule

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/danileyton/epicereport-sub000/core"
	"github.com/danileyton/epicereport-sub000/core/recurrence"
)

// Recipient receives the reports of a Schedule.
type Recipient struct {
	ID         int64  `json:"id"`
	ScheduleID int64  `json:"schedule_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
}

// Schedule periodically emails course progress reports to its recipients.
type Schedule struct {
	ID         int64
	Name       string
	CourseID   int64
	Subject    string
	Message    string
	Recurrence recurrence.Spec
	Recipients []Recipient
	CreatedBy  int64
	CreatedAt  time.Time // UTC
	UpdatedAt  time.Time // UTC

	// claim bookkeeping, owned by the runner
	LockedBy null.String
	LockedAt null.Time
}

func (s Schedule) Status(now time.Time) recurrence.Status {
	return recurrence.StatusOf(s.Recurrence, now)
}

// NewRecipient contains information needed to add a Recipient.
type NewRecipient struct {
	Name  string `json:"name" validate:"max=255"`
	Email string `json:"email" validate:"required,email"`
}

func (nr *NewRecipient) clean() {
	nr.Name = core.CleanString(nr.Name)
	nr.Email = core.CleanString(nr.Email, true /* lower */)
}

func (nr *NewRecipient) Validate(validate *validator.Validate) error {
	nr.clean()
	return validate.Struct(nr)
}

// NewSchedule contains information needed to create a new Schedule.
type NewSchedule struct {
	Name       string         `json:"name" validate:"required,max=255"`
	CourseID   int64          `json:"course_id" validate:"required,gt=0"`
	Subject    string         `json:"subject" validate:"max=255"`
	Message    string         `json:"message"`
	Recipients []NewRecipient `json:"recipients" validate:"dive"`
	CreatedBy  int64          `json:"-"`

	core.NewRecurrence
}

func (ns *NewSchedule) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Subject = core.CleanString(ns.Subject)
	for i := range ns.Recipients {
		ns.Recipients[i].clean()
	}
	if err := validate.Struct(ns); err != nil {
		return err
	}
	return core.CheckDateRange(ns.StartDate, ns.EndDate)
}

// UpdateSchedule defines what information may be provided to modify an existing Schedule.
// nil fields are left untouched.
type UpdateSchedule struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=255"`
	CourseID *int64  `json:"course_id" validate:"omitempty,gt=0"`
	Subject  *string `json:"subject" validate:"omitempty,max=255"`
	Message  *string `json:"message"`

	core.UpdateRecurrence
}

func (us *UpdateSchedule) Validate(validate *validator.Validate) error {
	if us.Name != nil {
		name := core.CleanString(*us.Name)
		us.Name = &name
	}
	if us.Subject != nil {
		subj := core.CleanString(*us.Subject)
		us.Subject = &subj
	}
	return validate.Struct(us)
}

type QueryFilter struct {
	Search   string `query:"search"`
	CourseID int64  `query:"course_id"`
	Enabled  *bool  `query:"enabled"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.CourseID == 0 && qf.Enabled == nil
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
