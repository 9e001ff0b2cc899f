package schedule

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
	ErrNotFound          = errors.New("schedule not found")
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrRecipientExists   = errors.New("this email is already a recipient of the schedule")

	nowFunc = time.Now // mockable
)

// maxCompleteAttempts bounds Complete's retries against concurrent edits.
const maxCompleteAttempts = 3

type (
	Repository interface {
		// CreateSchedule inserts sch and its recipients.
		CreateSchedule(ctx context.Context, sch Schedule) (Schedule, error)
		GetSchedule(ctx context.Context, id int64) (Schedule, error)
		// QuerySchedules applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on Schedule.Name or Schedule.Subject.
		QuerySchedules(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Schedule, error)
		// UpdateSchedule saves every column of sch except its recipients and claim bookkeeping.
		UpdateSchedule(ctx context.Context, sch Schedule) (Schedule, error)
		DeleteSchedule(ctx context.Context, id int64) error

		AddRecipient(ctx context.Context, rcpt Recipient) (Recipient, error)
		RemoveRecipient(ctx context.Context, scheduleID, recipientID int64) error

		// FindDueSchedules returns enabled schedules with a null or passed next run,
		// oldest next run first (nulls first), recipients included.
		FindDueSchedules(ctx context.Context, now time.Time) ([]Schedule, error)
		// ClaimSchedule takes the firing lock of a schedule.
		// It fails (false) when another runner holds a lock younger than ttl or
		// when the schedule's last run differs from lastRun (it was fired meanwhile).
		ClaimSchedule(ctx context.Context, id int64, token string, lastRun null.Time, now time.Time, ttl time.Duration) (bool, error)
		// CompleteSchedule persists the run bookkeeping of spec and releases the lock held by token.
		CompleteSchedule(ctx context.Context, id int64, token string, spec recurrence.Spec) (bool, error)
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

func (svc *Service) Create(ctx context.Context, ns NewSchedule) (Schedule, error) {
	if err := ns.Validate(svc.validate); err != nil {
		return Schedule{}, err
	}
	spec, err := ns.Spec()
	if err != nil {
		return Schedule{}, err
	}
	now := svc.Now()
	sch := Schedule{
		Name:       ns.Name,
		CourseID:   ns.CourseID,
		Subject:    ns.Subject,
		Message:    ns.Message,
		Recurrence: recurrence.Refresh(spec, now),
		CreatedBy:  ns.CreatedBy,
		CreatedAt:  now.UTC(),
		UpdatedAt:  now.UTC(),
	}
	seen := make(map[string]bool, len(ns.Recipients))
	for _, nr := range ns.Recipients {
		if seen[nr.Email] {
			continue
		}
		seen[nr.Email] = true
		sch.Recipients = append(sch.Recipients, Recipient{Name: nr.Name, Email: nr.Email})
	}
	return svc.repo.CreateSchedule(ctx, sch)
}

func (svc *Service) Get(ctx context.Context, id int64) (Schedule, error) {
	return svc.repo.GetSchedule(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]Schedule, error) {
	if filter != nil {
		filter.Clean()
	}
	return svc.repo.QuerySchedules(ctx, filter, ordering)
}

// Update applies us to the schedule. The next run is recomputed only when a scheduling
// field changed, so that editing a due schedule's text does not skip its pending run.
func (svc *Service) Update(ctx context.Context, id int64, us UpdateSchedule) (Schedule, error) {
	if err := us.Validate(svc.validate); err != nil {
		return Schedule{}, err
	}
	sch, err := svc.repo.GetSchedule(ctx, id)
	if err != nil {
		return Schedule{}, err
	}

	if us.Name != nil {
		sch.Name = *us.Name
	}
	if us.CourseID != nil {
		sch.CourseID = *us.CourseID
	}
	if us.Subject != nil {
		sch.Subject = *us.Subject
	}
	if us.Message != nil {
		sch.Message = *us.Message
	}

	spec, changed, err := us.Apply(sch.Recurrence)
	if err != nil {
		return Schedule{}, err
	}
	now := svc.Now()
	if changed {
		spec = recurrence.Refresh(spec, now)
	}
	sch.Recurrence = spec
	sch.UpdatedAt = now.UTC()
	return svc.repo.UpdateSchedule(ctx, sch)
}

// SetEnabled enables or disables a schedule. Disabling clears the next run;
// enabling computes it from now.
func (svc *Service) SetEnabled(ctx context.Context, id int64, enabled bool) (Schedule, error) {
	sch, err := svc.repo.GetSchedule(ctx, id)
	if err != nil {
		return Schedule{}, err
	}
	if sch.Recurrence.Enabled == enabled {
		return sch, nil
	}
	now := svc.Now()
	sch.Recurrence.Enabled = enabled
	sch.Recurrence = recurrence.Refresh(sch.Recurrence, now)
	sch.UpdatedAt = now.UTC()
	return svc.repo.UpdateSchedule(ctx, sch)
}

func (svc *Service) Delete(ctx context.Context, id int64) error {
	return svc.repo.DeleteSchedule(ctx, id)
}

func (svc *Service) AddRecipient(ctx context.Context, scheduleID int64, nr NewRecipient) (Recipient, error) {
	if err := nr.Validate(svc.validate); err != nil {
		return Recipient{}, err
	}
	sch, err := svc.repo.GetSchedule(ctx, scheduleID)
	if err != nil {
		return Recipient{}, err
	}
	for _, r := range sch.Recipients {
		if r.Email == nr.Email {
			return Recipient{}, core.NewValidationError(ErrRecipientExists, core.FieldError{Field: "email", Error: ErrRecipientExists.Error()})
		}
	}
	return svc.repo.AddRecipient(ctx, Recipient{ScheduleID: scheduleID, Name: nr.Name, Email: nr.Email})
}

func (svc *Service) RemoveRecipient(ctx context.Context, scheduleID, recipientID int64) error {
	return svc.repo.RemoveRecipient(ctx, scheduleID, recipientID)
}

// FindDue returns the schedules due at now. The store pre-filters on next run;
// the recurrence engine has the final word (date range, misconfiguration).
func (svc *Service) FindDue(ctx context.Context, now time.Time) ([]Schedule, error) {
	candidates, err := svc.repo.FindDueSchedules(ctx, now)
	if err != nil {
		return nil, err
	}
	due := make([]Schedule, 0, len(candidates))
	for _, sch := range candidates {
		if recurrence.IsDue(sch.Recurrence, now) && recurrence.Fireable(sch.Recurrence) {
			due = append(due, sch)
		}
	}
	return due, nil
}

// RecomputeAll refreshes the cached next run of every schedule whose stored value
// disagrees with the engine (e.g. after a timezone change). Returns the number of fixed schedules.
// Schedules that are currently due are left alone so that their pending run still fires.
func (svc *Service) RecomputeAll(ctx context.Context) (int, error) {
	all, err := svc.repo.QuerySchedules(ctx, nil, nil)
	if err != nil {
		return 0, err
	}
	now := svc.Now()
	fixed := 0
	for _, sch := range all {
		if recurrence.IsDue(sch.Recurrence, now) && recurrence.Fireable(sch.Recurrence) {
			continue
		}
		refreshed := recurrence.Refresh(sch.Recurrence, now)
		if recurrence.SameTime(refreshed.NextRun, sch.Recurrence.NextRun) {
			continue
		}
		sch.Recurrence = refreshed
		sch.UpdatedAt = now.UTC()
		if _, err := svc.repo.UpdateSchedule(ctx, sch); err != nil {
			return fixed, err
		}
		fixed++
	}
	return fixed, nil
}

// Claim takes the firing lock of sch for token. It fails when another runner holds it
// or when sch was fired since it was read.
func (svc *Service) Claim(ctx context.Context, sch Schedule, token string, now time.Time, ttl time.Duration) (bool, error) {
	return svc.repo.ClaimSchedule(ctx, sch.ID, token, sch.Recurrence.LastRun, now, ttl)
}

// Complete persists the run bookkeeping of spec and releases the lock held by token.
// When the schedule was edited during the firing, the bookkeeping is rebased onto the
// edited configuration so the edit survives with a next run computed from it.
func (svc *Service) Complete(ctx context.Context, id int64, token string, spec recurrence.Spec) error {
	for attempt := 0; attempt < maxCompleteAttempts; attempt++ {
		ok, err := svc.repo.CompleteSchedule(ctx, id, token, spec)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		cur, err := svc.repo.GetSchedule(ctx, id)
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
