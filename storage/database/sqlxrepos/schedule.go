package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/danileyton/epicereport-sub000/core"
	"github.com/danileyton/epicereport-sub000/core/recurrence"
	"github.com/danileyton/epicereport-sub000/core/schedule"
)

const scheduleColumns = "id, name, course_id, subject, message, enabled, days, send_time, start_date, end_date," +
	" last_run, next_run, locked_by, locked_at, created_by, created_at, updated_at"

var scheduleOrderColumns = map[string]string{
	"id":         "id",
	"name":       "name",
	"course_id":  "course_id",
	"next_run":   "next_run",
	"last_run":   "last_run",
	"created_at": "created_at",
}

type scheduleRow struct {
	ID        int64  `db:"id"`
	Name      string `db:"name"`
	CourseID  int64  `db:"course_id"`
	Subject   string `db:"subject"`
	Message   string `db:"message"`
	CreatedBy int64  `db:"created_by"`
	CreatedAt int64  `db:"created_at"`
	UpdatedAt int64  `db:"updated_at"`
	recurrenceRow
	lockColumns
}

type recipientRow struct {
	ID         int64  `db:"id"`
	ScheduleID int64  `db:"schedule_id"`
	Name       string `db:"name"`
	Email      string `db:"email"`
}

type scheduleRepository struct {
	db *sqlx.DB
}

var _ schedule.Repository = (*scheduleRepository)(nil)

func NewScheduleRepository(db *sqlx.DB) *scheduleRepository {
	return &scheduleRepository{db: db}
}

func (repo *scheduleRepository) CreateSchedule(ctx context.Context, sch schedule.Schedule) (schedule.Schedule, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return schedule.Schedule{}, errors.Wrap(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()

	row := boilSchedule(sch)
	id, err := insertReturningID(ctx, tx,
		"INSERT INTO schedules (name, course_id, subject, message, enabled, days, send_time, start_date, end_date,"+
			" last_run, next_run, created_by, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		row.Name, row.CourseID, row.Subject, row.Message, row.Enabled, row.Days, row.SendTime, row.StartDate, row.EndDate,
		row.LastRun, row.NextRun, row.CreatedBy, row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return schedule.Schedule{}, errors.Wrap(err, "inserting schedule")
	}
	sch.ID = id

	for i, r := range sch.Recipients {
		r.ScheduleID = id
		if r, err = insertRecipient(ctx, tx, r); err != nil {
			return schedule.Schedule{}, err
		}
		sch.Recipients[i] = r
	}

	if err = tx.Commit(); err != nil {
		return schedule.Schedule{}, errors.Wrap(err, "committing schedule")
	}
	return sch, nil
}

func (repo *scheduleRepository) GetSchedule(ctx context.Context, id int64) (schedule.Schedule, error) {
	var row scheduleRow
	q := repo.db.Rebind("SELECT " + scheduleColumns + " FROM schedules WHERE id = ?")
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return schedule.Schedule{}, trapNoRowsErr(err, schedule.ErrNotFound, "selecting schedule")
	}
	schs, err := repo.withRecipients(ctx, []scheduleRow{row})
	if err != nil {
		return schedule.Schedule{}, err
	}
	return schs[0], nil
}

func (repo *scheduleRepository) QuerySchedules(ctx context.Context, filter *schedule.QueryFilter, ordering []core.DBOrdering) ([]schedule.Schedule, error) {
	var w where
	if filter != nil && !filter.IsEmpty() {
		if filter.Search != "" {
			arg := likeArg(filter.Search)
			w.add("(LOWER(name) LIKE ? OR LOWER(subject) LIKE ?)", arg, arg)
		}
		if filter.CourseID != 0 {
			w.add("course_id = ?", filter.CourseID)
		}
		if filter.Enabled != nil {
			w.add("enabled = ?", *filter.Enabled)
		}
	}
	q := "SELECT " + scheduleColumns + " FROM schedules" + w.String() +
		" ORDER BY " + core.OrderBy(ordering, scheduleOrderColumns, "id ASC")

	var rows []scheduleRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting schedules")
	}
	return repo.withRecipients(ctx, rows)
}

func (repo *scheduleRepository) UpdateSchedule(ctx context.Context, sch schedule.Schedule) (schedule.Schedule, error) {
	row := boilSchedule(sch)
	q := repo.db.Rebind("UPDATE schedules SET name = ?, course_id = ?, subject = ?, message = ?, enabled = ?, days = ?," +
		" send_time = ?, start_date = ?, end_date = ?, next_run = ?, updated_at = ? WHERE id = ?")
	res, err := repo.db.ExecContext(ctx, q,
		row.Name, row.CourseID, row.Subject, row.Message, row.Enabled, row.Days,
		row.SendTime, row.StartDate, row.EndDate, row.NextRun, row.UpdatedAt, row.ID,
	)
	if err != nil {
		return schedule.Schedule{}, errors.Wrap(err, "updating schedule")
	}
	if n, err := res.RowsAffected(); err != nil {
		return schedule.Schedule{}, errors.Wrap(err, "updating schedule")
	} else if n == 0 {
		return schedule.Schedule{}, schedule.ErrNotFound
	}
	return sch, nil
}

func (repo *scheduleRepository) DeleteSchedule(ctx context.Context, id int64) error {
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind("DELETE FROM schedules WHERE id = ?"), id)
	if err != nil {
		return errors.Wrap(err, "deleting schedule")
	}
	if n, err := res.RowsAffected(); err != nil {
		return errors.Wrap(err, "deleting schedule")
	} else if n == 0 {
		return schedule.ErrNotFound
	}
	return nil
}

func (repo *scheduleRepository) AddRecipient(ctx context.Context, rcpt schedule.Recipient) (schedule.Recipient, error) {
	return insertRecipient(ctx, repo.db, rcpt)
}

func (repo *scheduleRepository) RemoveRecipient(ctx context.Context, scheduleID, recipientID int64) error {
	q := repo.db.Rebind("DELETE FROM schedule_recipients WHERE id = ? AND schedule_id = ?")
	res, err := repo.db.ExecContext(ctx, q, recipientID, scheduleID)
	if err != nil {
		return errors.Wrap(err, "deleting recipient")
	}
	if n, err := res.RowsAffected(); err != nil {
		return errors.Wrap(err, "deleting recipient")
	} else if n == 0 {
		return schedule.ErrRecipientNotFound
	}
	return nil
}

func (repo *scheduleRepository) FindDueSchedules(ctx context.Context, now time.Time) ([]schedule.Schedule, error) {
	q := repo.db.Rebind("SELECT " + scheduleColumns + " FROM schedules" +
		" WHERE enabled = ? AND (next_run IS NULL OR next_run <= ?)" +
		" ORDER BY CASE WHEN next_run IS NULL THEN 0 ELSE 1 END, next_run ASC, id ASC")

	var rows []scheduleRow
	if err := repo.db.SelectContext(ctx, &rows, q, true, now.Unix()); err != nil {
		return nil, errors.Wrap(err, "selecting due schedules")
	}
	return repo.withRecipients(ctx, rows)
}

func (repo *scheduleRepository) ClaimSchedule(ctx context.Context, id int64, token string, lastRun null.Time, now time.Time, ttl time.Duration) (bool, error) {
	ok, err := claim(ctx, repo.db, "schedules", id, token, lastRun, now, ttl)
	if err != nil {
		return false, errors.Wrap(err, "claiming schedule")
	}
	return ok, nil
}

func (repo *scheduleRepository) CompleteSchedule(ctx context.Context, id int64, token string, spec recurrence.Spec) (bool, error) {
	ok, err := complete(ctx, repo.db, "schedules", id, token, spec)
	if err != nil {
		return false, errors.Wrap(err, "completing schedule")
	}
	return ok, nil
}

// withRecipients loads the recipients of rows with a single query.
func (repo *scheduleRepository) withRecipients(ctx context.Context, rows []scheduleRow) ([]schedule.Schedule, error) {
	schs := make([]schedule.Schedule, len(rows))
	if len(rows) == 0 {
		return schs, nil
	}
	ids := make([]int64, len(rows))
	index := make(map[int64]int, len(rows))
	for i, row := range rows {
		schs[i] = unboilSchedule(row)
		ids[i] = row.ID
		index[row.ID] = i
	}

	q, args, err := sqlx.In("SELECT id, schedule_id, name, email FROM schedule_recipients WHERE schedule_id IN (?) ORDER BY id", ids)
	if err != nil {
		return nil, errors.Wrap(err, "selecting recipients")
	}
	var rcpts []recipientRow
	if err := repo.db.SelectContext(ctx, &rcpts, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "selecting recipients")
	}
	for _, r := range rcpts {
		i := index[r.ScheduleID]
		schs[i].Recipients = append(schs[i].Recipients, schedule.Recipient(r))
	}
	return schs, nil
}

func insertRecipient(ctx context.Context, db sqlx.ExtContext, rcpt schedule.Recipient) (schedule.Recipient, error) {
	id, err := insertReturningID(ctx, db,
		"INSERT INTO schedule_recipients (schedule_id, name, email) VALUES (?, ?, ?)",
		rcpt.ScheduleID, rcpt.Name, rcpt.Email,
	)
	if err != nil {
		return schedule.Recipient{}, errors.Wrap(err, "inserting recipient")
	}
	rcpt.ID = id
	return rcpt, nil
}

func boilSchedule(sch schedule.Schedule) scheduleRow {
	return scheduleRow{
		ID:            sch.ID,
		Name:          sch.Name,
		CourseID:      sch.CourseID,
		Subject:       sch.Subject,
		Message:       sch.Message,
		CreatedBy:     sch.CreatedBy,
		CreatedAt:     sch.CreatedAt.Unix(),
		UpdatedAt:     sch.UpdatedAt.Unix(),
		recurrenceRow: newRecurrenceRow(sch.Recurrence),
	}
}

func unboilSchedule(row scheduleRow) schedule.Schedule {
	return schedule.Schedule{
		ID:         row.ID,
		Name:       row.Name,
		CourseID:   row.CourseID,
		Subject:    row.Subject,
		Message:    row.Message,
		Recurrence: row.recurrenceRow.spec(),
		CreatedBy:  row.CreatedBy,
		CreatedAt:  fromEpoch(row.CreatedAt),
		UpdatedAt:  fromEpoch(row.UpdatedAt),
		LockedBy:   row.LockedBy,
		LockedAt:   fromNullEpoch(row.LockedAt),
	}
}
