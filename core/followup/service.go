package followup

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/danileyton/epicereport-sub000/core"
	"github.com/danileyton/epicereport-sub000/core/recurrence"
)

var (
	// errors
	ErrNotFound = errors.New("followup not found")

	nowFunc = time.Now // mockable
)

// maxCompleteAttempts bounds Complete's retries against concurrent edits.
const maxCompleteAttempts = 3

type (
	Repository interface {
		CreateFollowup(ctx context.Context, fu Followup) (Followup, error)
		GetFollowup(ctx context.Context, id int64) (Followup, error)
		// QueryFollowups applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on Followup.Name or Followup.Subject.
		QueryFollowups(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Followup, error)
		// UpdateFollowup saves every column of fu except its claim bookkeeping and last run.
		UpdateFollowup(ctx context.Context, fu Followup) (Followup, error)
		DeleteFollowup(ctx context.Context, id int64) error

		// FindDueFollowups returns enabled followups with a null or passed next run,
		// oldest next run first (nulls first).
		FindDueFollowups(ctx context.Context, now time.Time) ([]Followup, error)
		// ClaimFollowup behaves like schedule.Repository.ClaimSchedule.
		ClaimFollowup(ctx context.Context, id int64, token string, lastRun null.Time, now time.Time, ttl time.Duration) (bool, error)
		CompleteFollowup(ctx context.Context, id int64, token string, spec recurrence.Spec) (bool, error)
	}

	Service struct {
		repo     Repository
		validate *validator.Validate
		loc      *time.Location
	}
)

func NewService(repo Repository, validate *validator.Validate, conf *core.Config) *Service {
	return &Service{repo: repo, validate: validate, loc: conf.Location()}
}

// Now returns the current time in the site timezone.
func (svc *Service) Now() time.Time {
	return nowFunc().In(svc.loc)
}

func (svc *Service) Create(ctx context.Context, nf NewFollowup) (Followup, error) {
	if err := nf.Validate(svc.validate); err != nil {
		return Followup{}, err
	}
	spec, err := nf.Spec()
	if err != nil {
		return Followup{}, err
	}
	limit, _ := recurrence.ParseWindow(nf.SendLimit) // validated
	now := svc.Now()
	return svc.repo.CreateFollowup(ctx, Followup{
		Name:       nf.Name,
		CourseID:   nf.CourseID,
		FeedbackID: null.Int64FromPtr(nf.FeedbackID),
		Subject:    nf.Subject,
		Message:    nf.Message,
		SendLimit:  limit,
		Recurrence: recurrence.Refresh(spec, now),
		CreatedBy:  nf.CreatedBy,
		CreatedAt:  now.UTC(),
		UpdatedAt:  now.UTC(),
	})
}

func (svc *Service) Get(ctx context.Context, id int64) (Followup, error) {
	return svc.repo.GetFollowup(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]Followup, error) {
	if filter != nil {
		filter.Clean()
	}
	return svc.repo.QueryFollowups(ctx, filter, ordering)
}

// Update applies uf to the followup, recomputing the next run when a scheduling field changed.
func (svc *Service) Update(ctx context.Context, id int64, uf UpdateFollowup) (Followup, error) {
	if err := uf.Validate(svc.validate); err != nil {
		return Followup{}, err
	}
	fu, err := svc.repo.GetFollowup(ctx, id)
	if err != nil {
		return Followup{}, err
	}

	if uf.Name != nil {
		fu.Name = *uf.Name
	}
	if uf.CourseID != nil {
		fu.CourseID = *uf.CourseID
	}
	if uf.ClearFeedback {
		fu.FeedbackID = null.Int64{}
	} else if uf.FeedbackID != nil {
		fu.FeedbackID = null.Int64From(*uf.FeedbackID)
	}
	if uf.Subject != nil {
		fu.Subject = *uf.Subject
	}
	if uf.Message != nil {
		fu.Message = *uf.Message
	}
	if uf.SendLimit != nil {
		fu.SendLimit, _ = recurrence.ParseWindow(*uf.SendLimit) // validated
	}

	spec, changed, err := uf.Apply(fu.Recurrence)
	if err != nil {
		return Followup{}, err
	}
	now := svc.Now()
	if changed {
		spec = recurrence.Refresh(spec, now)
	}
	fu.Recurrence = spec
	fu.UpdatedAt = now.UTC()
	return svc.repo.UpdateFollowup(ctx, fu)
}

// SetEnabled enables or disables a followup. Disabling clears the next run;
// enabling computes it from now.
func (svc *Service) SetEnabled(ctx context.Context, id int64, enabled bool) (Followup, error) {
	fu, err := svc.repo.GetFollowup(ctx, id)
	if err != nil {
		return Followup{}, err
	}
	if fu.Recurrence.Enabled == enabled {
		return fu, nil
	}
	now := svc.Now()
	fu.Recurrence.Enabled = enabled
	fu.Recurrence = recurrence.Refresh(fu.Recurrence, now)
	fu.UpdatedAt = now.UTC()
	return svc.repo.UpdateFollowup(ctx, fu)
}

func (svc *Service) Delete(ctx context.Context, id int64) error {
	return svc.repo.DeleteFollowup(ctx, id)
}

func (svc *Service) FindDue(ctx context.Context, now time.Time) ([]Followup, error) {
	candidates, err := svc.repo.FindDueFollowups(ctx, now)
	if err != nil {
		return nil, err
	}
	due := make([]Followup, 0, len(candidates))
	for _, fu := range candidates {
		if recurrence.IsDue(fu.Recurrence, now) && recurrence.Fireable(fu.Recurrence) {
			due = append(due, fu)
		}
	}
	return due, nil
}

// RecomputeAll refreshes every stale cached next run, leaving due followups alone.
func (svc *Service) RecomputeAll(ctx context.Context) (int, error) {
	all, err := svc.repo.QueryFollowups(ctx, nil, nil)
	if err != nil {
		return 0, err
	}
	now := svc.Now()
	fixed := 0
	for _, fu := range all {
		if recurrence.IsDue(fu.Recurrence, now) && recurrence.Fireable(fu.Recurrence) {
			continue
		}
		refreshed := recurrence.Refresh(fu.Recurrence, now)
		if recurrence.SameTime(refreshed.NextRun, fu.Recurrence.NextRun) {
			continue
		}
		fu.Recurrence = refreshed
		fu.UpdatedAt = now.UTC()
		if _, err := svc.repo.UpdateFollowup(ctx, fu); err != nil {
			return fixed, err
		}
		fixed++
	}
	return fixed, nil
}

// Claim takes the firing lock of fu for token. It fails when another runner holds it
// or when fu was fired since it was read.
func (svc *Service) Claim(ctx context.Context, fu Followup, token string, now time.Time, ttl time.Duration) (bool, error) {
	return svc.repo.ClaimFollowup(ctx, fu.ID, token, fu.Recurrence.LastRun, now, ttl)
}

// Complete persists the run bookkeeping of spec and releases the lock held by token.
// When the followup was edited during the firing, the bookkeeping is rebased onto the
// edited configuration so the edit survives with a next run computed from it.
func (svc *Service) Complete(ctx context.Context, id int64, token string, spec recurrence.Spec) error {
	for attempt := 0; attempt < maxCompleteAttempts; attempt++ {
		ok, err := svc.repo.CompleteFollowup(ctx, id, token, spec)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		cur, err := svc.repo.GetFollowup(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return core.ErrClaimLost
		}
		if err != nil {
			return err
		}
		if !cur.LockedBy.Valid || cur.LockedBy.String != token {
			return core.ErrClaimLost
		}
		spec = recurrence.Rebase(cur.Recurrence, spec)
	}
	return core.ErrClaimLost
}
