package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/danileyton/epicereport-sub000/core"
	"github.com/danileyton/epicereport-sub000/core/delivery"
)

var errDuplicateLog = errors.New("duplicate delivery log for firing and target")

type deliveryRepository struct {
	db *DB
}

var _ delivery.Repository = (*deliveryRepository)(nil)

func NewDeliveryRepository(db *DB) delivery.Repository {
	return &deliveryRepository{db: db}
}

func (repo *deliveryRepository) CreateLog(_ context.Context, l delivery.Log) (delivery.Log, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, other := range repo.db.logs {
		if other.FiringID == l.FiringID && other.TargetID == l.TargetID {
			return delivery.Log{}, errDuplicateLog
		}
	}
	l.ID = repo.db.nextPK()
	stored := l
	repo.db.logs[l.ID] = &stored
	return l, nil
}

func (repo *deliveryRepository) UpdateLog(_ context.Context, l delivery.Log) (delivery.Log, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.logs[l.ID]
	if !ok {
		return delivery.Log{}, delivery.ErrNotFound
	}
	orig.Status = l.Status
	orig.ErrorCode = l.ErrorCode
	orig.ErrorMessage = l.ErrorMessage
	orig.Attempts = l.Attempts
	orig.SentAt = l.SentAt
	orig.UpdatedAt = l.UpdatedAt
	return *orig, nil
}

func (repo *deliveryRepository) GetLog(_ context.Context, id int64) (delivery.Log, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if l, ok := repo.db.logs[id]; ok {
		return *l, nil
	}
	return delivery.Log{}, delivery.ErrNotFound
}

func (repo *deliveryRepository) QueryLogs(_ context.Context, filter *delivery.QueryFilter, ordering []core.DBOrdering) ([]delivery.Log, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	logs := make([]delivery.Log, 0, len(repo.db.logs))
	for _, l := range repo.db.logs {
		if filter != nil {
			if filter.Kind != "" && l.Kind != filter.Kind {
				continue
			}
			if filter.SpecID != 0 && l.SpecID != filter.SpecID {
				continue
			}
			if filter.FiringID != "" && l.FiringID != filter.FiringID {
				continue
			}
			if filter.Status != "" && l.Status != filter.Status {
				continue
			}
		}
		logs = append(logs, *l)
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "id"}}
	}
	sort.Slice(logs, func(i, j int) bool {
		a, b := logs[i], logs[j]
		return ordered(ordering, func(field string) (int, bool) {
			switch field {
			case "id":
				return cmpInt(a.ID, b.ID), true
			case "created_at":
				return cmpInt(a.CreatedAt.UnixNano(), b.CreatedAt.UnixNano()), true
			case "updated_at":
				return cmpInt(a.UpdatedAt.UnixNano(), b.UpdatedAt.UnixNano()), true
			case "sent_at":
				return cmpNullTime(a.SentAt, b.SentAt), true
			case "attempts":
				return cmpInt(int64(a.Attempts), int64(b.Attempts)), true
			}
			return 0, false
		})
	})
	if filter != nil && filter.Limit > 0 && len(logs) > filter.Limit {
		logs = logs[:filter.Limit]
	}
	return logs, nil
}

func (repo *deliveryRepository) CountSent(_ context.Context, kind delivery.Kind, specID, targetID int64, from, to time.Time) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	// the store keeps second precision
	from, to = from.Truncate(time.Second), to.Truncate(time.Second)
	n := 0
	for _, l := range repo.db.logs {
		if l.Kind != kind || l.SpecID != specID || l.TargetID != targetID || l.Status != delivery.StatusSent || !l.SentAt.Valid {
			continue
		}
		at := l.SentAt.Time.Truncate(time.Second)
		if at.Before(from) || at.After(to) {
			continue
		}
		n++
	}
	return n, nil
}

func (repo *deliveryRepository) QueryRetryable(_ context.Context, maxAttempts int) ([]delivery.Log, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var logs []delivery.Log
	for _, l := range repo.db.logs {
		if l.Retryable(maxAttempts) {
			logs = append(logs, *l)
		}
	}
	sort.Slice(logs, func(i, j int) bool {
		if !logs[i].CreatedAt.Equal(logs[j].CreatedAt) {
			return logs[i].CreatedAt.Before(logs[j].CreatedAt)
		}
		return logs[i].ID < logs[j].ID
	})
	return logs, nil
}
