package delivery

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/danileyton/epicereport-sub000/core/report"
)

// MaxRetries bounds the attempts made for one delivery, the first one included.
const MaxRetries = 3

type Kind string

const (
	KindSchedule Kind = "schedule"
	KindFollowup Kind = "followup"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// error codes recorded on failed logs
const (
	CodeBuildFailed      = "build_failed"
	CodeRenderFailed     = "render_failed"
	CodeSendFailed       = "send_failed"
	CodeInvalidRecipient = "invalid_recipient"
	CodeSpecNotFound     = "spec_not_found"
	CodeCancelled        = "cancelled"
	CodeObsolete         = "obsolete"
)

// Log records one recipient's delivery for one firing.
type Log struct {
	ID           int64
	FiringID     string
	Kind         Kind
	SpecID       int64
	TargetID     int64 // schedule recipient id or LMS user id
	Recipient    string
	Status       Status
	ErrorCode    string
	ErrorMessage string
	Attempts     int
	SentAt       null.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (l Log) Retryable(maxAttempts int) bool {
	return l.Status == StatusFailed && l.Attempts < maxAttempts
}

// Envelope is everything a Dispatcher needs to deliver one message.
type Envelope struct {
	Kind          Kind
	SpecID        int64
	SpecName      string
	CourseName    string
	Subject       string
	Message       string
	TargetID      int64
	RecipientName string
	Recipient     string // email address
	Artifacts     []report.Artifact
}

// Result is the outcome of Dispatcher.Send. Dispatchers never panic on delivery errors.
type Result struct {
	Success      bool
	ErrorCode    string
	ErrorMessage string
}

func Sent() Result {
	return Result{Success: true}
}

func Failed(code string, err error) Result {
	res := Result{ErrorCode: code}
	if err != nil {
		res.ErrorMessage = err.Error()
	}
	return res
}

type QueryFilter struct {
	Kind     Kind   `query:"kind"`
	SpecID   int64  `query:"spec_id"`
	FiringID string `query:"firing_id"`
	Status   Status `query:"status"`
	Limit    int    `query:"limit"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Kind == "" && qf.SpecID == 0 && qf.FiringID == "" && qf.Status == "" && qf.Limit == 0
}
