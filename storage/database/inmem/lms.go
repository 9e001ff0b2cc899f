package inmemdb

import (
	"context"
	"sort"
	"sync"

	"github.com/volatiletech/null/v8"

	"github.com/danileyton/epicereport-sub000/core/lms"
)

// LMS is an in-memory lms.Reader seeded by hand.
type LMS struct {
	mu        sync.RWMutex
	courses   map[int64]lms.Course
	progress  map[int64][]lms.ProgressRow
	feedbacks map[int64]map[int64]bool // feedbackID -> answered user ids
	failing   map[int64]error
}

var _ lms.Reader = (*LMS)(nil)

func NewLMS() *LMS {
	return &LMS{
		courses:   make(map[int64]lms.Course),
		progress:  make(map[int64][]lms.ProgressRow),
		feedbacks: make(map[int64]map[int64]bool),
		failing:   make(map[int64]error),
	}
}

func (l *LMS) AddCourse(c lms.Course, rows ...lms.ProgressRow) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.courses[c.ID] = c
	l.progress[c.ID] = append(l.progress[c.ID], rows...)
}

// Answer records that userID answered feedbackID.
func (l *LMS) Answer(feedbackID, userID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.feedbacks[feedbackID] == nil {
		l.feedbacks[feedbackID] = make(map[int64]bool)
	}
	l.feedbacks[feedbackID][userID] = true
}

// Fail makes every read of courseID return err (nil clears it).
func (l *LMS) Fail(courseID int64, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.failing, courseID)
		return
	}
	l.failing[courseID] = err
}

func (l *LMS) GetCourse(_ context.Context, courseID int64) (lms.Course, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if err := l.failing[courseID]; err != nil {
		return lms.Course{}, err
	}
	c, ok := l.courses[courseID]
	if !ok {
		return lms.Course{}, lms.ErrCourseNotFound
	}
	return c, nil
}

func (l *LMS) CourseProgress(_ context.Context, courseID int64) ([]lms.ProgressRow, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if err := l.failing[courseID]; err != nil {
		return nil, err
	}
	if _, ok := l.courses[courseID]; !ok {
		return nil, lms.ErrCourseNotFound
	}
	rows := append([]lms.ProgressRow(nil), l.progress[courseID]...)
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].LastName != rows[j].LastName {
			return rows[i].LastName < rows[j].LastName
		}
		return rows[i].FirstName < rows[j].FirstName
	})
	return rows, nil
}

func (l *LMS) PendingParticipants(ctx context.Context, courseID int64, feedbackID null.Int64) ([]lms.Participant, error) {
	rows, err := l.CourseProgress(ctx, courseID)
	if err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []lms.Participant
	for _, r := range rows {
		if feedbackID.Valid {
			if l.feedbacks[feedbackID.Int64][r.UserID] {
				continue
			}
		} else if r.CompletedAt.Valid {
			continue
		}
		out = append(out, r.Participant)
	}
	return out, nil
}
