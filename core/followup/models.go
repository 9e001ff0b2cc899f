package followup

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/danileyton/epicereport-sub000/core"
	"github.com/danileyton/epicereport-sub000/core/recurrence"
)

// Followup periodically reminds the participants of a course who have not yet
// answered a feedback survey (or completed the course when no feedback is set).
type Followup struct {
	ID         int64
	Name       string
	CourseID   int64
	FeedbackID null.Int64
	Subject    string
	Message    string
	// SendLimit caps how often a single participant is reminded.
	SendLimit  recurrence.Window
	Recurrence recurrence.Spec
	CreatedBy  int64
	CreatedAt  time.Time // UTC
	UpdatedAt  time.Time // UTC

	LockedBy null.String
	LockedAt null.Time
}

func (f Followup) Status(now time.Time) recurrence.Status {
	return recurrence.StatusOf(f.Recurrence, now)
}

// NewFollowup contains information needed to create a new Followup.
type NewFollowup struct {
	Name       string `json:"name" validate:"required,max=255"`
	CourseID   int64  `json:"course_id" validate:"required,gt=0"`
	FeedbackID *int64 `json:"feedback_id" validate:"omitempty,gt=0"`
	Subject    string `json:"subject" validate:"required,max=255"`
	Message    string `json:"message" validate:"required"`
	SendLimit  string `json:"send_limit" validate:"sendlimit"`
	CreatedBy  int64  `json:"-"`

	core.NewRecurrence
}

func (nf *NewFollowup) Validate(validate *validator.Validate) error {
	nf.Name = core.CleanString(nf.Name)
	nf.Subject = core.CleanString(nf.Subject)
	nf.Message = core.CleanString(nf.Message)
	nf.SendLimit = core.CleanString(nf.SendLimit, true /* lower */)
	if err := validate.Struct(nf); err != nil {
		return err
	}
	return core.CheckDateRange(nf.StartDate, nf.EndDate)
}

// UpdateFollowup defines what information may be provided to modify an existing Followup.
// nil fields are left untouched.
type UpdateFollowup struct {
	Name          *string `json:"name" validate:"omitempty,min=1,max=255"`
	CourseID      *int64  `json:"course_id" validate:"omitempty,gt=0"`
	FeedbackID    *int64  `json:"feedback_id" validate:"omitempty,gt=0"`
	ClearFeedback bool    `json:"clear_feedback"`
	Subject       *string `json:"subject" validate:"omitempty,min=1,max=255"`
	Message       *string `json:"message" validate:"omitempty,min=1"`
	SendLimit     *string `json:"send_limit" validate:"omitempty,sendlimit"`

	core.UpdateRecurrence
}

func (uf *UpdateFollowup) Validate(validate *validator.Validate) error {
	for _, s := range []*string{uf.Name, uf.Subject, uf.Message} {
		if s != nil {
			*s = core.CleanString(*s)
		}
	}
	if uf.SendLimit != nil {
		*uf.SendLimit = core.CleanString(*uf.SendLimit, true /* lower */)
	}
	return validate.Struct(uf)
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
