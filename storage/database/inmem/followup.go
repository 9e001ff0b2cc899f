package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/danileyton/epicereport-sub000/core"
	"github.com/danileyton/epicereport-sub000/core/followup"
	"github.com/danileyton/epicereport-sub000/core/recurrence"
)

type followupRepository struct {
	db *DB
}

var _ followup.Repository = (*followupRepository)(nil)

func NewFollowupRepository(db *DB) followup.Repository {
	return &followupRepository{db: db}
}

func (repo *followupRepository) CreateFollowup(_ context.Context, fu followup.Followup) (followup.Followup, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	fu.ID = repo.db.nextPK()
	stored := fu
	repo.db.followups[fu.ID] = &stored
	return fu, nil
}

func (repo *followupRepository) GetFollowup(_ context.Context, id int64) (followup.Followup, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if fu, ok := repo.db.followups[id]; ok {
		return *fu, nil
	}
	return followup.Followup{}, followup.ErrNotFound
}

func (repo *followupRepository) QueryFollowups(_ context.Context, filter *followup.QueryFilter, ordering []core.DBOrdering) ([]followup.Followup, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	fus := make([]followup.Followup, 0, len(repo.db.followups))
	for _, fu := range repo.db.followups {
		if filter != nil {
			if filter.Search != "" && !containsFold(fu.Name, filter.Search) && !containsFold(fu.Subject, filter.Search) {
				continue
			}
			if filter.CourseID != 0 && fu.CourseID != filter.CourseID {
				continue
			}
			if filter.Enabled != nil && fu.Recurrence.Enabled != *filter.Enabled {
				continue
			}
		}
		fus = append(fus, *fu)
	}
	sort.Slice(fus, func(i, j int) bool {
		a, b := fus[i], fus[j]
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
	return fus, nil
}

func (repo *followupRepository) UpdateFollowup(_ context.Context, fu followup.Followup) (followup.Followup, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.followups[fu.ID]
	if !ok {
		return followup.Followup{}, followup.ErrNotFound
	}
	spec := fu.Recurrence
	spec.LastRun = orig.Recurrence.LastRun

	orig.Name = fu.Name
	orig.CourseID = fu.CourseID
	orig.FeedbackID = fu.FeedbackID
	orig.Subject = fu.Subject
	orig.Message = fu.Message
	orig.SendLimit = fu.SendLimit
	orig.Recurrence = spec
	orig.UpdatedAt = fu.UpdatedAt
	return *orig, nil
}

func (repo *followupRepository) DeleteFollowup(_ context.Context, id int64) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.followups[id]; !ok {
		return followup.ErrNotFound
	}
	delete(repo.db.followups, id)
	return nil
}

func (repo *followupRepository) FindDueFollowups(_ context.Context, now time.Time) ([]followup.Followup, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var due []followup.Followup
	for _, fu := range repo.db.followups {
		if dueAt(fu.Recurrence, now) {
			due = append(due, *fu)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return dueBefore(due[i].Recurrence, due[j].Recurrence, due[i].ID, due[j].ID)
	})
	return due, nil
}

func (repo *followupRepository) ClaimFollowup(_ context.Context, id int64, token string, lastRun null.Time, now time.Time, ttl time.Duration) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	fu, ok := repo.db.followups[id]
	if !ok || !claimable(fu.LockedBy, fu.LockedAt, fu.Recurrence.LastRun, lastRun, now, ttl) {
		return false, nil
	}
	fu.LockedBy = null.StringFrom(token)
	fu.LockedAt = null.TimeFrom(now.UTC())
	return true, nil
}

func (repo *followupRepository) CompleteFollowup(_ context.Context, id int64, token string, spec recurrence.Spec) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	fu, ok := repo.db.followups[id]
	if !ok || !fu.LockedBy.Valid || fu.LockedBy.String != token || !recurrence.SameConfig(fu.Recurrence, spec) {
		return false, nil
	}
	fu.Recurrence.LastRun = spec.LastRun
	fu.Recurrence.NextRun = spec.NextRun
	fu.LockedBy = null.String{}
	fu.LockedAt = null.Time{}
	return true, nil
}
