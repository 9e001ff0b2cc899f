package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/danileyton/epicereport-sub000/core"
	"github.com/danileyton/epicereport-sub000/core/followup"
	"github.com/danileyton/epicereport-sub000/core/recurrence"
)

const followupColumns = "id, name, course_id, feedback_id, subject, message, send_limit, enabled, days, send_time," +
	" start_date, end_date, last_run, next_run, locked_by, locked_at, created_by, created_at, updated_at"

var followupOrderColumns = map[string]string{
	"id":         "id",
	"name":       "name",
	"course_id":  "course_id",
	"next_run":   "next_run",
	"last_run":   "last_run",
	"created_at": "created_at",
}

type followupRow struct {
	ID         int64      `db:"id"`
	Name       string     `db:"name"`
	CourseID   int64      `db:"course_id"`
	FeedbackID null.Int64 `db:"feedback_id"`
	Subject    string     `db:"subject"`
	Message    string     `db:"message"`
	SendLimit  string     `db:"send_limit"`
	CreatedBy  int64      `db:"created_by"`
	CreatedAt  int64      `db:"created_at"`
	UpdatedAt  int64      `db:"updated_at"`
	recurrenceRow
	lockColumns
}

type followupRepository struct {
	db *sqlx.DB
}

var _ followup.Repository = (*followupRepository)(nil)

func NewFollowupRepository(db *sqlx.DB) *followupRepository {
	return &followupRepository{db: db}
}

func (repo *followupRepository) CreateFollowup(ctx context.Context, fu followup.Followup) (followup.Followup, error) {
	row := boilFollowup(fu)
	id, err := insertReturningID(ctx, repo.db,
		"INSERT INTO followups (name, course_id, feedback_id, subject, message, send_limit, enabled, days, send_time,"+
			" start_date, end_date, last_run, next_run, created_by, created_at, updated_at)"+
			" VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		row.Name, row.CourseID, row.FeedbackID, row.Subject, row.Message, row.SendLimit, row.Enabled, row.Days, row.SendTime,
		row.StartDate, row.EndDate, row.LastRun, row.NextRun, row.CreatedBy, row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return followup.Followup{}, errors.Wrap(err, "inserting followup")
	}
	fu.ID = id
	return fu, nil
}

func (repo *followupRepository) GetFollowup(ctx context.Context, id int64) (followup.Followup, error) {
	var row followupRow
	q := repo.db.Rebind("SELECT " + followupColumns + " FROM followups WHERE id = ?")
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return followup.Followup{}, trapNoRowsErr(err, followup.ErrNotFound, "selecting followup")
	}
	return unboilFollowup(row), nil
}

func (repo *followupRepository) QueryFollowups(ctx context.Context, filter *followup.QueryFilter, ordering []core.DBOrdering) ([]followup.Followup, error) {
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
	q := "SELECT " + followupColumns + " FROM followups" + w.String() +
		" ORDER BY " + core.OrderBy(ordering, followupOrderColumns, "id ASC")

	var rows []followupRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting followups")
	}
	return unboilFollowups(rows), nil
}

func (repo *followupRepository) UpdateFollowup(ctx context.Context, fu followup.Followup) (followup.Followup, error) {
	row := boilFollowup(fu)
	q := repo.db.Rebind("UPDATE followups SET name = ?, course_id = ?, feedback_id = ?, subject = ?, message = ?," +
		" send_limit = ?, enabled = ?, days = ?, send_time = ?, start_date = ?, end_date = ?, next_run = ?, updated_at = ?" +
		" WHERE id = ?")
	res, err := repo.db.ExecContext(ctx, q,
		row.Name, row.CourseID, row.FeedbackID, row.Subject, row.Message,
		row.SendLimit, row.Enabled, row.Days, row.SendTime, row.StartDate, row.EndDate, row.NextRun, row.UpdatedAt,
		row.ID,
	)
	if err != nil {
		return followup.Followup{}, errors.Wrap(err, "updating followup")
	}
	if n, err := res.RowsAffected(); err != nil {
		return followup.Followup{}, errors.Wrap(err, "updating followup")
	} else if n == 0 {
		return followup.Followup{}, followup.ErrNotFound
	}
	return fu, nil
}

func (repo *followupRepository) DeleteFollowup(ctx context.Context, id int64) error {
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind("DELETE FROM followups WHERE id = ?"), id)
	if err != nil {
		return errors.Wrap(err, "deleting followup")
	}
	if n, err := res.RowsAffected(); err != nil {
		return errors.Wrap(err, "deleting followup")
	} else if n == 0 {
		return followup.ErrNotFound
	}
	return nil
}

func (repo *followupRepository) FindDueFollowups(ctx context.Context, now time.Time) ([]followup.Followup, error) {
	q := repo.db.Rebind("SELECT " + followupColumns + " FROM followups" +
		" WHERE enabled = ? AND (next_run IS NULL OR next_run <= ?)" +
		" ORDER BY CASE WHEN next_run IS NULL THEN 0 ELSE 1 END, next_run ASC, id ASC")

	var rows []followupRow
	if err := repo.db.SelectContext(ctx, &rows, q, true, now.Unix()); err != nil {
		return nil, errors.Wrap(err, "selecting due followups")
	}
	return unboilFollowups(rows), nil
}

func (repo *followupRepository) ClaimFollowup(ctx context.Context, id int64, token string, lastRun null.Time, now time.Time, ttl time.Duration) (bool, error) {
	ok, err := claim(ctx, repo.db, "followups", id, token, lastRun, now, ttl)
	if err != nil {
		return false, errors.Wrap(err, "claiming followup")
	}
	return ok, nil
}

func (repo *followupRepository) CompleteFollowup(ctx context.Context, id int64, token string, spec recurrence.Spec) (bool, error) {
	ok, err := complete(ctx, repo.db, "followups", id, token, spec)
	if err != nil {
		return false, errors.Wrap(err, "completing followup")
	}
	return ok, nil
}

func boilFollowup(fu followup.Followup) followupRow {
	return followupRow{
		ID:            fu.ID,
		Name:          fu.Name,
		CourseID:      fu.CourseID,
		FeedbackID:    fu.FeedbackID,
		Subject:       fu.Subject,
		Message:       fu.Message,
		SendLimit:     string(fu.SendLimit),
		CreatedBy:     fu.CreatedBy,
		CreatedAt:     fu.CreatedAt.Unix(),
		UpdatedAt:     fu.UpdatedAt.Unix(),
		recurrenceRow: newRecurrenceRow(fu.Recurrence),
	}
}

func unboilFollowup(row followupRow) followup.Followup {
	limit, err := recurrence.ParseWindow(row.SendLimit)
	if err != nil {
		limit = recurrence.WindowNone
	}
	return followup.Followup{
		ID:         row.ID,
		Name:       row.Name,
		CourseID:   row.CourseID,
		FeedbackID: row.FeedbackID,
		Subject:    row.Subject,
		Message:    row.Message,
		SendLimit:  limit,
		Recurrence: row.recurrenceRow.spec(),
		CreatedBy:  row.CreatedBy,
		CreatedAt:  fromEpoch(row.CreatedAt),
		UpdatedAt:  fromEpoch(row.UpdatedAt),
		LockedBy:   row.LockedBy,
		LockedAt:   fromNullEpoch(row.LockedAt),
	}
}

func unboilFollowups(rows []followupRow) []followup.Followup {
	fus := make([]followup.Followup, len(rows))
	for i, row := range rows {
		fus[i] = unboilFollowup(row)
	}
	return fus
}
