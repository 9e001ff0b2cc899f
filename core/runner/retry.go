package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/danileyton/epicereport-sub000/core/delivery"
	"github.com/danileyton/epicereport-sub000/core/followup"
	"github.com/danileyton/epicereport-sub000/core/schedule"
)

// RetryStats summarizes a retry sweep.
type RetryStats struct {
	Retried   int
	Sent      int
	Failed    int
	Abandoned int
}

func (s RetryStats) String() string {
	return fmt.Sprintf("retried=%d sent=%d failed=%d abandoned=%d", s.Retried, s.Sent, s.Failed, s.Abandoned)
}

type specKey struct {
	kind   delivery.Kind
	specID int64
}

// RetrySweep resends failed deliveries that are still within the retry budget.
// It never runs inside a polling pass: both share the pass lock.
func (r *Runner) RetrySweep(ctx context.Context, now time.Time) (RetryStats, error) {
	var stats RetryStats

	unlock, ok, err := r.locker.TryLock(ctx)
	if err != nil {
		return stats, errors.Wrap(err, "acquiring pass lock")
	}
	if !ok {
		return stats, ErrLocked
	}
	defer unlock()

	now = now.In(r.loc)
	logs, err := r.deliveries.Retryable(ctx)
	if err != nil {
		return stats, errors.Wrap(err, "loading retryable deliveries")
	}

	keys := make([]specKey, 0)
	groups := make(map[specKey][]delivery.Log)
	for _, l := range logs {
		k := specKey{l.Kind, l.SpecID}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], l)
	}

	for _, k := range keys {
		if ctx.Err() != nil {
			break
		}
		if err := r.retrySpec(ctx, k, groups[k], now, &stats); err != nil {
			r.logger.Error(fmt.Sprintf("retrying %s #%d: %v", k.kind, k.specID, err), err)
		}
	}
	return stats, nil
}

func (r *Runner) retrySpec(ctx context.Context, k specKey, logs []delivery.Log, now time.Time, stats *RetryStats) error {
	f, err := r.loadFiring(ctx, k)
	if err != nil {
		if errors.Cause(err) != schedule.ErrNotFound && errors.Cause(err) != followup.ErrNotFound {
			return err
		}
		for _, l := range logs {
			if _, err := r.deliveries.Abandon(ctx, l, delivery.CodeSpecNotFound, err.Error(), now); err != nil {
				return err
			}
			stats.Abandoned++
		}
		return nil
	}

	recipients, err := f.recipients(ctx)
	if err != nil {
		return errors.Wrap(err, "loading recipients")
	}
	byTarget := make(map[int64]recipient, len(recipients))
	for _, rcpt := range recipients {
		byTarget[rcpt.targetID] = rcpt
	}

	course, err := r.lms.GetCourse(ctx, f.courseID)
	if err != nil {
		return errors.Wrap(err, "loading course")
	}
	artifacts, buildErr := r.buildArtifacts(ctx, f, now)

	for _, l := range logs {
		rcpt, ok := byTarget[l.TargetID]
		if ok && f.limit.Limited() {
			reached, err := r.deliveries.HasReachedLimit(ctx, f.kind, f.specID, l.TargetID, f.limit, now)
			if err != nil {
				return err
			}
			ok = !reached
		}
		if !ok {
			if _, err := r.deliveries.Abandon(ctx, l, delivery.CodeObsolete, "recipient is no longer targeted", now); err != nil {
				return err
			}
			stats.Abandoned++
			continue
		}

		res := delivery.Failed(delivery.CodeBuildFailed, buildErr)
		if buildErr == nil {
			res = r.dispatcher.Send(ctx, f.envelope(course, rcpt, artifacts))
		}
		if _, err := r.deliveries.RecordRetry(ctx, l, res, now); err != nil {
			return err
		}
		stats.Retried++
		if res.Success {
			stats.Sent++
		} else {
			stats.Failed++
		}
	}
	return nil
}

func (r *Runner) loadFiring(ctx context.Context, k specKey) (*firing, error) {
	switch k.kind {
	case delivery.KindSchedule:
		sch, err := r.schedules.Get(ctx, k.specID)
		if err != nil {
			return nil, err
		}
		return r.scheduleFiring(sch), nil
	case delivery.KindFollowup:
		fu, err := r.followups.Get(ctx, k.specID)
		if err != nil {
			return nil, err
		}
		return r.followupFiring(fu), nil
	default:
		return nil, errors.Errorf("unknown delivery kind %q", k.kind)
	}
}
