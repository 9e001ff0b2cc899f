package runner

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/danileyton/epicereport-sub000/core"
	"github.com/danileyton/epicereport-sub000/core/delivery"
	"github.com/danileyton/epicereport-sub000/core/followup"
	"github.com/danileyton/epicereport-sub000/core/lms"
	"github.com/danileyton/epicereport-sub000/core/recurrence"
	"github.com/danileyton/epicereport-sub000/core/report"
	"github.com/danileyton/epicereport-sub000/core/schedule"
)

var (
	// ErrLocked is returned when another polling pass holds the pass lock.
	ErrLocked = errors.New("another polling pass is running")

	newFiringID = uuid.NewString // mockable
)

type (
	// Locker serializes polling passes across processes.
	Locker interface {
		// TryLock acquires the pass lock without waiting. ok is false when it is held elsewhere.
		TryLock(ctx context.Context) (unlock func(), ok bool, err error)
	}

	// FiringResult summarizes one firing of a due schedule or followup.
	FiringResult struct {
		Kind          delivery.Kind
		SpecID        int64
		FiringID      string
		DueRecipients int
		Sent          int
		Failed        int
		Skipped       int   // recipients that reached their send limit
		Err           error // firing level failure; it stays due when this happens before sending
	}

	Runner struct {
		schedules  *schedule.Service
		followups  *followup.Service
		deliveries *delivery.Service
		builder    report.Builder
		lms        lms.Reader
		dispatcher delivery.Dispatcher
		locker     Locker
		logger     core.Logger
		workers    int64
		lockTTL    time.Duration
		loc        *time.Location
	}

	Deps struct {
		Schedules  *schedule.Service
		Followups  *followup.Service
		Deliveries *delivery.Service
		Builder    report.Builder
		LMS        lms.Reader
		Dispatcher delivery.Dispatcher
		Locker     Locker
		Logger     core.Logger
	}
)

func New(deps Deps, conf *core.Config) *Runner {
	workers := int64(conf.Runner.Workers)
	if workers < 1 {
		workers = 1
	}
	lockTTL := conf.Runner.LockTTL
	if lockTTL <= 0 {
		lockTTL = time.Hour
	}
	locker := deps.Locker
	if locker == nil {
		locker = NewMutexLocker()
	}
	return &Runner{
		schedules:  deps.Schedules,
		followups:  deps.Followups,
		deliveries: deps.Deliveries,
		builder:    deps.Builder,
		lms:        deps.LMS,
		dispatcher: deps.Dispatcher,
		locker:     locker,
		logger:     deps.Logger,
		workers:    workers,
		lockTTL:    lockTTL,
		loc:        conf.Location(),
	}
}

func (fr FiringResult) String() string {
	s := fmt.Sprintf("%s #%d (%s): due=%d sent=%d failed=%d skipped=%d",
		fr.Kind, fr.SpecID, fr.FiringID, fr.DueRecipients, fr.Sent, fr.Failed, fr.Skipped)
	if fr.Err != nil {
		s += " error=" + fr.Err.Error()
	}
	return s
}

// Poll fires every schedule and followup due at now, oldest next run first.
// An error loading due specs fails the whole pass; errors of a single firing are
// reported in its FiringResult and do not stop the others.
func (r *Runner) Poll(ctx context.Context, now time.Time) ([]FiringResult, error) {
	unlock, ok, err := r.locker.TryLock(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "acquiring pass lock")
	}
	if !ok {
		return nil, ErrLocked
	}
	defer unlock()

	now = now.In(r.loc)
	firings, err := r.dueFirings(ctx, now)
	if err != nil {
		return nil, err
	}

	results := make([]FiringResult, 0, len(firings))
	for _, f := range firings {
		if ctx.Err() != nil {
			break
		}
		res, fired := r.fire(ctx, f, now)
		if !fired {
			continue
		}
		if res.Err != nil {
			r.logger.Error(fmt.Sprintf("firing %s #%d: %v", res.Kind, res.SpecID, res.Err), res.Err)
		} else {
			r.logger.Info("fired " + res.String())
		}
		results = append(results, res)
	}
	return results, nil
}

func (r *Runner) dueFirings(ctx context.Context, now time.Time) ([]*firing, error) {
	schs, err := r.schedules.FindDue(ctx, now)
	if err != nil {
		return nil, errors.Wrap(err, "finding due schedules")
	}
	fus, err := r.followups.FindDue(ctx, now)
	if err != nil {
		return nil, errors.Wrap(err, "finding due followups")
	}

	firings := make([]*firing, 0, len(schs)+len(fus))
	for _, sch := range schs {
		firings = append(firings, r.scheduleFiring(sch))
	}
	for _, fu := range fus {
		firings = append(firings, r.followupFiring(fu))
	}
	sort.SliceStable(firings, func(i, j int) bool {
		a, b := firings[i].spec.NextRun, firings[j].spec.NextRun
		if !a.Valid || !b.Valid {
			return !a.Valid && b.Valid
		}
		return a.Time.Before(b.Time)
	})
	return firings, nil
}

// fire runs one firing. fired is false when another runner holds the claim.
func (r *Runner) fire(ctx context.Context, f *firing, now time.Time) (res FiringResult, fired bool) {
	res = FiringResult{Kind: f.kind, SpecID: f.specID, FiringID: newFiringID()}

	ok, err := f.claim(ctx, res.FiringID, now, r.lockTTL)
	if err != nil {
		res.Err = errors.Wrap(err, "claiming")
		return res, true
	}
	if !ok {
		r.logger.Debug(fmt.Sprintf("%s #%d already claimed", f.kind, f.specID))
		return res, false
	}
	// bookkeeping must survive a cancelled poll
	bgCtx := context.WithoutCancel(ctx)

	if stale(f.spec) {
		r.logger.Warn(fmt.Sprintf("%s #%d: stale next run %v, recomputing", f.kind, f.specID, f.spec.NextRun.Time))
		res.Err = errors.Wrap(f.complete(bgCtx, res.FiringID, recurrence.Refresh(f.spec, now)), "completing")
		return res, true
	}

	recipients, err := f.recipients(ctx)
	if err == nil {
		recipients, res.Skipped, err = r.applySendLimit(ctx, f, recipients, now)
	}
	if err != nil {
		res.Err = errors.Wrap(err, "loading recipients")
		r.release(bgCtx, f, res.FiringID)
		return res, true
	}
	res.DueRecipients = len(recipients)

	if len(recipients) > 0 {
		course, err := r.lms.GetCourse(ctx, f.courseID)
		if err != nil {
			res.Err = errors.Wrap(err, "loading course")
			r.release(bgCtx, f, res.FiringID)
			return res, true
		}
		artifacts, buildErr := r.buildArtifacts(ctx, f, now)
		res.Sent, res.Failed, err = r.sendAll(ctx, bgCtx, f, course, artifacts, buildErr, recipients, res.FiringID, now)
		if err != nil {
			res.Err = errors.Wrap(err, "recording deliveries")
		}
	}

	if err := f.complete(bgCtx, res.FiringID, recurrence.MarkRun(f.spec, now)); err != nil && res.Err == nil {
		res.Err = errors.Wrap(err, "completing")
	}
	return res, true
}

// stale reports a cached next run that does not follow the last run.
func stale(spec recurrence.Spec) bool {
	return spec.NextRun.Valid && spec.LastRun.Valid && !spec.NextRun.Time.After(spec.LastRun.Time)
}

// release drops the claim without recording a run, leaving it due.
func (r *Runner) release(ctx context.Context, f *firing, token string) {
	if err := f.complete(ctx, token, f.spec); err != nil {
		r.logger.Error(fmt.Sprintf("releasing %s #%d: %v", f.kind, f.specID, err), err)
	}
}

func (r *Runner) applySendLimit(ctx context.Context, f *firing, recipients []recipient, now time.Time) ([]recipient, int, error) {
	if !f.limit.Limited() {
		return recipients, 0, nil
	}
	kept := recipients[:0:0]
	skipped := 0
	for _, rcpt := range recipients {
		reached, err := r.deliveries.HasReachedLimit(ctx, f.kind, f.specID, rcpt.targetID, f.limit, now)
		if err != nil {
			return nil, 0, err
		}
		if reached {
			skipped++
			continue
		}
		kept = append(kept, rcpt)
	}
	return kept, skipped, nil
}

// buildArtifacts builds the firing's artifacts once; every recipient shares them.
func (r *Runner) buildArtifacts(ctx context.Context, f *firing, now time.Time) ([]report.Artifact, error) {
	if !f.withReport {
		return nil, nil
	}
	return r.builder.Build(ctx, report.Target{
		CourseID:    f.courseID,
		Title:       f.name,
		RequestedBy: f.createdBy,
		At:          now,
	})
}

// sendAll delivers to every recipient in parallel and records exactly one log per recipient.
// A build error fails every recipient without sending.
func (r *Runner) sendAll(ctx, bgCtx context.Context, f *firing, course lms.Course, artifacts []report.Artifact, buildErr error,
	recipients []recipient, firingID string, now time.Time) (sent, failed int, err error) {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)
	record := func(env delivery.Envelope, res delivery.Result) {
		_, recErr := r.deliveries.Record(bgCtx, firingID, env, res, now)
		mu.Lock()
		defer mu.Unlock()
		if res.Success {
			sent++
		} else {
			failed++
		}
		if recErr != nil && firstErr == nil {
			firstErr = recErr
		}
	}

	sem := semaphore.NewWeighted(r.workers)
	for _, rcpt := range recipients {
		env := f.envelope(course, rcpt, artifacts)
		if buildErr != nil {
			record(env, delivery.Failed(delivery.CodeBuildFailed, buildErr))
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			record(env, delivery.Failed(delivery.CodeCancelled, err))
			continue
		}
		wg.Add(1)
		go func(env delivery.Envelope) {
			defer sem.Release(1)
			defer wg.Done()
			record(env, r.dispatcher.Send(ctx, env))
		}(env)
	}
	wg.Wait()
	return sent, failed, firstErr
}
