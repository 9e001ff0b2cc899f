// Package sqlxrepos implements the repositories on top of sqlx.
// Queries are written with '?' bind vars and rebound for the driver in use (postgres or sqlite).
// Instants are stored as epoch seconds.
package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/danileyton/epicereport-sub000/core/recurrence"
)

// recurrenceRow holds the recurrence columns shared by schedules and followups.
type recurrenceRow struct {
	Enabled   bool       `db:"enabled"`
	Days      int64      `db:"days"`
	SendTime  string     `db:"send_time"`
	StartDate int64      `db:"start_date"`
	EndDate   null.Int64 `db:"end_date"`
	LastRun   null.Int64 `db:"last_run"`
	NextRun   null.Int64 `db:"next_run"`
}

func newRecurrenceRow(spec recurrence.Spec) recurrenceRow {
	return recurrenceRow{
		Enabled:   spec.Enabled,
		Days:      int64(spec.Days),
		SendTime:  spec.Time.String(),
		StartDate: spec.StartDate.Unix(),
		EndDate:   toEpoch(spec.EndDate),
		LastRun:   toEpoch(spec.LastRun),
		NextRun:   toEpoch(spec.NextRun),
	}
}

// spec converts the row back. A malformed send time yields recurrence.InvalidTime and never fires.
func (r recurrenceRow) spec() recurrence.Spec {
	tod, err := recurrence.ParseTimeOfDay(r.SendTime)
	if err != nil {
		tod = recurrence.InvalidTime
	}
	return recurrence.Spec{
		Enabled:   r.Enabled,
		Days:      recurrence.Weekdays(r.Days) & recurrence.AllWeekdays,
		Time:      tod,
		StartDate: fromEpoch(r.StartDate),
		EndDate:   fromNullEpoch(r.EndDate),
		LastRun:   fromNullEpoch(r.LastRun),
		NextRun:   fromNullEpoch(r.NextRun),
	}
}

// lockColumns holds the claim bookkeeping columns.
type lockColumns struct {
	LockedBy null.String `db:"locked_by"`
	LockedAt null.Int64  `db:"locked_at"`
}

func toEpoch(t null.Time) null.Int64 {
	if !t.Valid {
		return null.Int64{}
	}
	return null.Int64From(t.Time.Unix())
}

func fromEpoch(s int64) time.Time {
	return time.Unix(s, 0).UTC()
}

func fromNullEpoch(n null.Int64) null.Time {
	if !n.Valid {
		return null.Time{}
	}
	return null.TimeFrom(fromEpoch(n.Int64))
}

// trapNoRowsErr maps "no rows" errors to notFound
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// where joins conditions with AND.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// likeArg returns the lowered %s% pattern for a case-insensitive LIKE on LOWER(column).
func likeArg(s string) string {
	return "%" + strings.ToLower(s) + "%"
}

// insertReturningID inserts and returns the generated id; both engines support RETURNING.
func insertReturningID(ctx context.Context, q sqlx.ExtContext, query string, args ...interface{}) (int64, error) {
	var id int64
	if err := sqlx.GetContext(ctx, q, &id, q.Rebind(query+" RETURNING id"), args...); err != nil {
		return 0, err
	}
	return id, nil
}

// claim takes the firing lock of a row when it is free (or expired) and its last run is unchanged.
func claim(ctx context.Context, db sqlx.ExtContext, table string, id int64, token string, lastRun null.Time, now time.Time, ttl time.Duration) (bool, error) {
	q := "UPDATE " + table + " SET locked_by = ?, locked_at = ?" +
		" WHERE id = ? AND (locked_by IS NULL OR locked_at < ?)"
	args := []interface{}{token, now.Unix(), id, now.Add(-ttl).Unix()}
	if lastRun.Valid {
		q += " AND last_run = ?"
		args = append(args, lastRun.Time.Unix())
	} else {
		q += " AND last_run IS NULL"
	}
	res, err := db.ExecContext(ctx, db.Rebind(q), args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// complete writes the run bookkeeping and releases the lock held by token.
// complete writes the run bookkeeping of spec and releases the lock held by token.
// Nothing is written unless the scheduling columns still hold spec's configuration.
func complete(ctx context.Context, db sqlx.ExtContext, table string, id int64, token string, spec recurrence.Spec) (bool, error) {
	row := newRecurrenceRow(spec)
	q := "UPDATE " + table + " SET last_run = ?, next_run = ?, locked_by = NULL, locked_at = NULL" +
		" WHERE id = ? AND locked_by = ? AND enabled = ? AND days = ? AND send_time = ? AND start_date = ?"
	args := []interface{}{row.LastRun, row.NextRun, id, token, row.Enabled, row.Days, row.SendTime, row.StartDate}
	if row.EndDate.Valid {
		q += " AND end_date = ?"
		args = append(args, row.EndDate.Int64)
	} else {
		q += " AND end_date IS NULL"
	}
	res, err := db.ExecContext(ctx, db.Rebind(q), args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
