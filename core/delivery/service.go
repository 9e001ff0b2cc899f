package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/danileyton/epicereport-sub000/core"
	"github.com/danileyton/epicereport-sub000/core/recurrence"
)

var ErrNotFound = errors.New("delivery log not found")

type (
	Dispatcher interface {
		Send(ctx context.Context, env Envelope) Result
	}

	Repository interface {
		CreateLog(ctx context.Context, l Log) (Log, error)
		UpdateLog(ctx context.Context, l Log) (Log, error)
		GetLog(ctx context.Context, id int64) (Log, error)
		QueryLogs(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Log, error)
		// CountSent counts the sent logs of (kind, specID, targetID) with from <= sentAt <= to.
		CountSent(ctx context.Context, kind Kind, specID, targetID int64, from, to time.Time) (int, error)
		// QueryRetryable returns failed logs with fewer than maxAttempts attempts, oldest first.
		QueryRetryable(ctx context.Context, maxAttempts int) ([]Log, error)
	}

	Service struct {
		repo       Repository
		maxRetries int
	}
)

func NewService(repo Repository, conf *core.Config) *Service {
	maxRetries := MaxRetries
	if conf != nil && conf.Runner.MaxRetries > 0 {
		maxRetries = conf.Runner.MaxRetries
	}
	return &Service{repo: repo, maxRetries: maxRetries}
}

func (svc *Service) MaxRetries() int { return svc.maxRetries }

// Record writes the log of the first attempt to deliver env within a firing.
func (svc *Service) Record(ctx context.Context, firingID string, env Envelope, res Result, now time.Time) (Log, error) {
	l := Log{
		FiringID:  firingID,
		Kind:      env.Kind,
		SpecID:    env.SpecID,
		TargetID:  env.TargetID,
		Recipient: env.Recipient,
		CreatedAt: now.UTC(),
	}
	applyResult(&l, res, now)
	return svc.repo.CreateLog(ctx, l)
}

// RecordRetry updates l with the outcome of another attempt.
func (svc *Service) RecordRetry(ctx context.Context, l Log, res Result, now time.Time) (Log, error) {
	applyResult(&l, res, now)
	return svc.repo.UpdateLog(ctx, l)
}

// Abandon marks l as failed for good: it is no longer retried.
func (svc *Service) Abandon(ctx context.Context, l Log, code, msg string, now time.Time) (Log, error) {
	l.Status = StatusFailed
	l.ErrorCode = code
	l.ErrorMessage = msg
	if l.Attempts < svc.maxRetries {
		l.Attempts = svc.maxRetries
	}
	l.UpdatedAt = now.UTC()
	return svc.repo.UpdateLog(ctx, l)
}

func applyResult(l *Log, res Result, now time.Time) {
	l.Attempts++
	l.UpdatedAt = now.UTC()
	if res.Success {
		l.Status = StatusSent
		l.ErrorCode = ""
		l.ErrorMessage = ""
		l.SentAt.SetValid(now.UTC())
		return
	}
	l.Status = StatusFailed
	l.ErrorCode = res.ErrorCode
	l.ErrorMessage = res.ErrorMessage
}

// HasReachedLimit reports whether targetID already received a message of (kind, specID)
// within the window ending at now. Calendar days are those of now's location.
func (svc *Service) HasReachedLimit(ctx context.Context, kind Kind, specID, targetID int64, window recurrence.Window, now time.Time) (bool, error) {
	from, ok := recurrence.WindowStart(window, now)
	if !ok {
		return false, nil
	}
	n, err := svc.repo.CountSent(ctx, kind, specID, targetID, from, now)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (svc *Service) Get(ctx context.Context, id int64) (Log, error) {
	return svc.repo.GetLog(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]Log, error) {
	return svc.repo.QueryLogs(ctx, filter, ordering)
}

// Retryable returns the failed logs still within the retry budget.
func (svc *Service) Retryable(ctx context.Context) ([]Log, error) {
	return svc.repo.QueryRetryable(ctx, svc.maxRetries)
}
