package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/danileyton/epicereport-sub000/core/delivery"
	"github.com/danileyton/epicereport-sub000/core/followup"
	"github.com/danileyton/epicereport-sub000/core/lms"
	"github.com/danileyton/epicereport-sub000/core/recurrence"
	"github.com/danileyton/epicereport-sub000/core/report"
	"github.com/danileyton/epicereport-sub000/core/schedule"
)

type recipient struct {
	targetID int64
	name     string
	email    string
}

// firing adapts a schedule or a followup to a single firing path.
type firing struct {
	kind       delivery.Kind
	specID     int64
	name       string
	courseID   int64
	subject    string
	message    string
	createdBy  int64
	spec       recurrence.Spec
	limit      recurrence.Window
	withReport bool

	recipients func(ctx context.Context) ([]recipient, error)
	claim      func(ctx context.Context, token string, now time.Time, ttl time.Duration) (bool, error)
	complete   func(ctx context.Context, token string, spec recurrence.Spec) error
}

func (r *Runner) scheduleFiring(sch schedule.Schedule) *firing {
	return &firing{
		kind:       delivery.KindSchedule,
		specID:     sch.ID,
		name:       sch.Name,
		courseID:   sch.CourseID,
		subject:    sch.Subject,
		message:    sch.Message,
		createdBy:  sch.CreatedBy,
		spec:       sch.Recurrence,
		limit:      recurrence.WindowNone,
		withReport: true,
		recipients: func(context.Context) ([]recipient, error) {
			return scheduleRecipients(sch), nil
		},
		claim: func(ctx context.Context, token string, now time.Time, ttl time.Duration) (bool, error) {
			return r.schedules.Claim(ctx, sch, token, now, ttl)
		},
		complete: func(ctx context.Context, token string, spec recurrence.Spec) error {
			return r.schedules.Complete(ctx, sch.ID, token, spec)
		},
	}
}

func (r *Runner) followupFiring(fu followup.Followup) *firing {
	return &firing{
		kind:      delivery.KindFollowup,
		specID:    fu.ID,
		name:      fu.Name,
		courseID:  fu.CourseID,
		subject:   fu.Subject,
		message:   fu.Message,
		createdBy: fu.CreatedBy,
		spec:      fu.Recurrence,
		limit:     fu.SendLimit,
		recipients: func(ctx context.Context) ([]recipient, error) {
			return r.followupRecipients(ctx, fu)
		},
		claim: func(ctx context.Context, token string, now time.Time, ttl time.Duration) (bool, error) {
			return r.followups.Claim(ctx, fu, token, now, ttl)
		},
		complete: func(ctx context.Context, token string, spec recurrence.Spec) error {
			return r.followups.Complete(ctx, fu.ID, token, spec)
		},
	}
}

func scheduleRecipients(sch schedule.Schedule) []recipient {
	rcpts := make([]recipient, 0, len(sch.Recipients))
	for _, rc := range sch.Recipients {
		rcpts = append(rcpts, recipient{targetID: rc.ID, name: rc.Name, email: rc.Email})
	}
	return rcpts
}

func (r *Runner) followupRecipients(ctx context.Context, fu followup.Followup) ([]recipient, error) {
	participants, err := r.lms.PendingParticipants(ctx, fu.CourseID, fu.FeedbackID)
	if err != nil {
		return nil, err
	}
	rcpts := make([]recipient, 0, len(participants))
	for _, p := range participants {
		rcpts = append(rcpts, recipient{targetID: p.UserID, name: p.FullName(), email: p.Email})
	}
	return rcpts, nil
}

func (f *firing) envelope(course lms.Course, rcpt recipient, artifacts []report.Artifact) delivery.Envelope {
	subject := f.subject
	if subject == "" {
		subject = fmt.Sprintf("%s: %s", f.name, courseName(course))
	}
	return delivery.Envelope{
		Kind:          f.kind,
		SpecID:        f.specID,
		SpecName:      f.name,
		CourseName:    courseName(course),
		Subject:       subject,
		Message:       f.message,
		TargetID:      rcpt.targetID,
		RecipientName: rcpt.name,
		Recipient:     rcpt.email,
		Artifacts:     artifacts,
	}
}

func courseName(c lms.Course) string {
	if c.FullName != "" {
		return c.FullName
	}
	if c.ShortName != "" {
		return c.ShortName
	}
	return fmt.Sprintf("course #%d", c.ID)
}
