package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/danileyton/epicereport-sub000/core"
	"github.com/danileyton/epicereport-sub000/core/recurrence"
	"github.com/danileyton/epicereport-sub000/core/schedule"
)

type scheduleRepository struct {
	db *DB
}

var _ schedule.Repository = (*scheduleRepository)(nil)

func NewScheduleRepository(db *DB) schedule.Repository {
	return &scheduleRepository{db: db}
}

// load copies a stored schedule along with its recipients; callers hold the lock.
func (repo *scheduleRepository) load(sch *schedule.Schedule) schedule.Schedule {
	out := *sch
	out.Recipients = nil
	for _, r := range repo.db.recipients {
		if r.ScheduleID == sch.ID {
			out.Recipients = append(out.Recipients, *r)
		}
	}
	sort.Slice(out.Recipients, func(i, j int) bool { return out.Recipients[i].ID < out.Recipients[j].ID })
	return out
}

func (repo *scheduleRepository) CreateSchedule(_ context.Context, sch schedule.Schedule) (schedule.Schedule, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	sch.ID = repo.db.nextPK()
	rcpts := make([]schedule.Recipient, len(sch.Recipients))
	for i, r := range sch.Recipients {
		r.ID = repo.db.nextPK()
		r.ScheduleID = sch.ID
		rcpts[i] = r
		repo.db.recipients[r.ID] = &rcpts[i]
	}
	stored := sch
	stored.Recipients = nil
	repo.db.schedules[sch.ID] = &stored
	return repo.load(&stored), nil
}

func (repo *scheduleRepository) GetSchedule(_ context.Context, id int64) (schedule.Schedule, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if sch, ok := repo.db.schedules[id]; ok {
		return repo.load(sch), nil
	}
	return schedule.Schedule{}, schedule.ErrNotFound
}

func (repo *scheduleRepository) QuerySchedules(_ context.Context, filter *schedule.QueryFilter, ordering []core.DBOrdering) ([]schedule.Schedule, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	schs := make([]schedule.Schedule, 0, len(repo.db.schedules))
	for _, sch := range repo.db.schedules {
		if filter != nil {
			if filter.Search != "" && !containsFold(sch.Name, filter.Search) && !containsFold(sch.Subject, filter.Search) {
				continue
			}
			if filter.CourseID != 0 && sch.CourseID != filter.CourseID {
				continue
			}
			if filter.Enabled != nil && sch.Recurrence.Enabled != *filter.Enabled {
				continue
			}
		}
		schs = append(schs, repo.load(sch))
	}
	sort.Slice(schs, func(i, j int) bool {
		a, b := schs[i], schs[j]
		return ordered(ordering, func(field string) (int, bool) {
			switch field {
			case "id":
				return cmpInt(a.ID, b.ID), true
			case "name":
				return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)), true
			case "course_id":
				return cmpInt(a.CourseID, b.CourseID), true
			case "next_run":
				return cmpNullTime(a.Recurrence.NextRun, b.Recurrence.NextRun), true
			case "last_run":
				return cmpNullTime(a.Recurrence.LastRun, b.Recurrence.LastRun), true
			case "created_at":
				return cmpInt(a.CreatedAt.UnixNano(), b.CreatedAt.UnixNano()), true
			}
			return 0, false
		})
	})
	return schs, nil
}

func (repo *scheduleRepository) UpdateSchedule(_ context.Context, sch schedule.Schedule) (schedule.Schedule, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.schedules[sch.ID]
	if !ok {
		return schedule.Schedule{}, schedule.ErrNotFound
	}
	// the run bookkeeping and the lock belong to the runner
	spec := sch.Recurrence
	spec.LastRun = orig.Recurrence.LastRun

	orig.Name = sch.Name
	orig.CourseID = sch.CourseID
	orig.Subject = sch.Subject
	orig.Message = sch.Message
	orig.Recurrence = spec
	orig.UpdatedAt = sch.UpdatedAt
	return repo.load(orig), nil
}

func (repo *scheduleRepository) DeleteSchedule(_ context.Context, id int64) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.schedules[id]; !ok {
		return schedule.ErrNotFound
	}
	delete(repo.db.schedules, id)
	for rid, r := range repo.db.recipients {
		if r.ScheduleID == id {
			delete(repo.db.recipients, rid)
		}
	}
	return nil
}

func (repo *scheduleRepository) AddRecipient(_ context.Context, rcpt schedule.Recipient) (schedule.Recipient, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.schedules[rcpt.ScheduleID]; !ok {
		return schedule.Recipient{}, schedule.ErrNotFound
	}
	for _, r := range repo.db.recipients {
		if r.ScheduleID == rcpt.ScheduleID && r.Email == rcpt.Email {
			return schedule.Recipient{}, schedule.ErrRecipientExists
		}
	}
	rcpt.ID = repo.db.nextPK()
	repo.db.recipients[rcpt.ID] = &rcpt
	return rcpt, nil
}

func (repo *scheduleRepository) RemoveRecipient(_ context.Context, scheduleID, recipientID int64) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	r, ok := repo.db.recipients[recipientID]
	if !ok || r.ScheduleID != scheduleID {
		return schedule.ErrRecipientNotFound
	}
	delete(repo.db.recipients, recipientID)
	return nil
}

func (repo *scheduleRepository) FindDueSchedules(_ context.Context, now time.Time) ([]schedule.Schedule, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var due []schedule.Schedule
	for _, sch := range repo.db.schedules {
		if dueAt(sch.Recurrence, now) {
			due = append(due, repo.load(sch))
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return dueBefore(due[i].Recurrence, due[j].Recurrence, due[i].ID, due[j].ID)
	})
	return due, nil
}

func (repo *scheduleRepository) ClaimSchedule(_ context.Context, id int64, token string, lastRun null.Time, now time.Time, ttl time.Duration) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	sch, ok := repo.db.schedules[id]
	if !ok || !claimable(sch.LockedBy, sch.LockedAt, sch.Recurrence.LastRun, lastRun, now, ttl) {
		return false, nil
	}
	sch.LockedBy = null.StringFrom(token)
	sch.LockedAt = null.TimeFrom(now.UTC())
	return true, nil
}

func (repo *scheduleRepository) CompleteSchedule(_ context.Context, id int64, token string, spec recurrence.Spec) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	sch, ok := repo.db.schedules[id]
	if !ok || !sch.LockedBy.Valid || sch.LockedBy.String != token || !recurrence.SameConfig(sch.Recurrence, spec) {
		return false, nil
	}
	sch.Recurrence.LastRun = spec.LastRun
	sch.Recurrence.NextRun = spec.NextRun
	sch.LockedBy = null.String{}
	sch.LockedAt = null.Time{}
	return true, nil
}
