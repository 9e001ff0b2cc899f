// Package lms describes the read-only view of the learning management system
// (courses, participants and their progress) used to build reports and followups.
package lms

import (
	"context"
	"errors"
	"time"

	"github.com/volatiletech/null/v8"
)

var ErrCourseNotFound = errors.New("course not found")

type (
	Course struct {
		ID        int64
		ShortName string
		FullName  string
	}

	Participant struct {
		UserID    int64
		FirstName string
		LastName  string
		Email     string
	}

	// ProgressRow is one participant's progress in a course.
	ProgressRow struct {
		Participant
		EnrolledAt          time.Time
		LastAccess          null.Time
		CompletedActivities int
		TotalActivities     int
		CompletedAt         null.Time
	}

	Reader interface {
		GetCourse(ctx context.Context, courseID int64) (Course, error)
		// CourseProgress lists every active participant of a course, ordered by last then first name.
		CourseProgress(ctx context.Context, courseID int64) ([]ProgressRow, error)
		// PendingParticipants lists the active participants that have not answered feedbackID,
		// or that have not completed the course when feedbackID is null.
		PendingParticipants(ctx context.Context, courseID int64, feedbackID null.Int64) ([]Participant, error)
	}
)

func (p Participant) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// Percent returns the share of completed activities, 0 when the course has none.
func (r ProgressRow) Percent() float64 {
	if r.TotalActivities == 0 {
		return 0
	}
	return float64(r.CompletedActivities) * 100 / float64(r.TotalActivities)
}
