package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/danileyton/epicereport-sub000/core"
	"github.com/danileyton/epicereport-sub000/core/delivery"
)

const logColumns = "id, firing_id, kind, spec_id, target_id, recipient, status, error_code, error_message," +
	" attempts, sent_at, created_at, updated_at"

var logOrderColumns = map[string]string{
	"id":         "id",
	"created_at": "created_at",
	"updated_at": "updated_at",
	"sent_at":    "sent_at",
	"attempts":   "attempts",
}

type logRow struct {
	ID           int64      `db:"id"`
	FiringID     string     `db:"firing_id"`
	Kind         string     `db:"kind"`
	SpecID       int64      `db:"spec_id"`
	TargetID     int64      `db:"target_id"`
	Recipient    string     `db:"recipient"`
	Status       string     `db:"status"`
	ErrorCode    string     `db:"error_code"`
	ErrorMessage string     `db:"error_message"`
	Attempts     int        `db:"attempts"`
	SentAt       null.Int64 `db:"sent_at"`
	CreatedAt    int64      `db:"created_at"`
	UpdatedAt    int64      `db:"updated_at"`
}

type deliveryRepository struct {
	db *sqlx.DB
}

var _ delivery.Repository = (*deliveryRepository)(nil)

func NewDeliveryRepository(db *sqlx.DB) *deliveryRepository {
	return &deliveryRepository{db: db}
}

func (repo *deliveryRepository) CreateLog(ctx context.Context, l delivery.Log) (delivery.Log, error) {
	row := boilLog(l)
	id, err := insertReturningID(ctx, repo.db,
		"INSERT INTO delivery_logs (firing_id, kind, spec_id, target_id, recipient, status, error_code, error_message,"+
			" attempts, sent_at, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		row.FiringID, row.Kind, row.SpecID, row.TargetID, row.Recipient, row.Status, row.ErrorCode, row.ErrorMessage,
		row.Attempts, row.SentAt, row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return delivery.Log{}, errors.Wrap(err, "inserting delivery log")
	}
	l.ID = id
	return l, nil
}

func (repo *deliveryRepository) UpdateLog(ctx context.Context, l delivery.Log) (delivery.Log, error) {
	row := boilLog(l)
	q := repo.db.Rebind("UPDATE delivery_logs SET status = ?, error_code = ?, error_message = ?, attempts = ?," +
		" sent_at = ?, updated_at = ? WHERE id = ?")
	res, err := repo.db.ExecContext(ctx, q,
		row.Status, row.ErrorCode, row.ErrorMessage, row.Attempts, row.SentAt, row.UpdatedAt, row.ID,
	)
	if err != nil {
		return delivery.Log{}, errors.Wrap(err, "updating delivery log")
	}
	if n, err := res.RowsAffected(); err != nil {
		return delivery.Log{}, errors.Wrap(err, "updating delivery log")
	} else if n == 0 {
		return delivery.Log{}, delivery.ErrNotFound
	}
	return l, nil
}

func (repo *deliveryRepository) GetLog(ctx context.Context, id int64) (delivery.Log, error) {
	var row logRow
	q := repo.db.Rebind("SELECT " + logColumns + " FROM delivery_logs WHERE id = ?")
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return delivery.Log{}, trapNoRowsErr(err, delivery.ErrNotFound, "selecting delivery log")
	}
	return unboilLog(row), nil
}

func (repo *deliveryRepository) QueryLogs(ctx context.Context, filter *delivery.QueryFilter, ordering []core.DBOrdering) ([]delivery.Log, error) {
	var w where
	limit := 0
	if filter != nil && !filter.IsEmpty() {
		if filter.Kind != "" {
			w.add("kind = ?", string(filter.Kind))
		}
		if filter.SpecID != 0 {
			w.add("spec_id = ?", filter.SpecID)
		}
		if filter.FiringID != "" {
			w.add("firing_id = ?", filter.FiringID)
		}
		if filter.Status != "" {
			w.add("status = ?", string(filter.Status))
		}
		limit = filter.Limit
	}
	q := "SELECT " + logColumns + " FROM delivery_logs" + w.String() +
		" ORDER BY " + core.OrderBy(ordering, logOrderColumns, "id DESC")
	args := w.args
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	var rows []logRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "selecting delivery logs")
	}
	return unboilLogs(rows), nil
}

func (repo *deliveryRepository) CountSent(ctx context.Context, kind delivery.Kind, specID, targetID int64, from, to time.Time) (int, error) {
	q := repo.db.Rebind("SELECT COUNT(*) FROM delivery_logs" +
		" WHERE kind = ? AND spec_id = ? AND target_id = ? AND status = ? AND sent_at >= ? AND sent_at <= ?")
	var n int
	err := repo.db.GetContext(ctx, &n, q,
		string(kind), specID, targetID, string(delivery.StatusSent), from.Unix(), to.Unix(),
	)
	if err != nil {
		return 0, errors.Wrap(err, "counting sent logs")
	}
	return n, nil
}

func (repo *deliveryRepository) QueryRetryable(ctx context.Context, maxAttempts int) ([]delivery.Log, error) {
	q := repo.db.Rebind("SELECT " + logColumns + " FROM delivery_logs" +
		" WHERE status = ? AND attempts < ? ORDER BY created_at ASC, id ASC")
	var rows []logRow
	if err := repo.db.SelectContext(ctx, &rows, q, string(delivery.StatusFailed), maxAttempts); err != nil {
		return nil, errors.Wrap(err, "selecting retryable logs")
	}
	return unboilLogs(rows), nil
}

func boilLog(l delivery.Log) logRow {
	return logRow{
		ID:           l.ID,
		FiringID:     l.FiringID,
		Kind:         string(l.Kind),
		SpecID:       l.SpecID,
		TargetID:     l.TargetID,
		Recipient:    l.Recipient,
		Status:       string(l.Status),
		ErrorCode:    l.ErrorCode,
		ErrorMessage: l.ErrorMessage,
		Attempts:     l.Attempts,
		SentAt:       toEpoch(l.SentAt),
		CreatedAt:    l.CreatedAt.Unix(),
		UpdatedAt:    l.UpdatedAt.Unix(),
	}
}

func unboilLog(row logRow) delivery.Log {
	return delivery.Log{
		ID:           row.ID,
		FiringID:     row.FiringID,
		Kind:         delivery.Kind(row.Kind),
		SpecID:       row.SpecID,
		TargetID:     row.TargetID,
		Recipient:    row.Recipient,
		Status:       delivery.Status(row.Status),
		ErrorCode:    row.ErrorCode,
		ErrorMessage: row.ErrorMessage,
		Attempts:     row.Attempts,
		SentAt:       fromNullEpoch(row.SentAt),
		CreatedAt:    fromEpoch(row.CreatedAt),
		UpdatedAt:    fromEpoch(row.UpdatedAt),
	}
}

func unboilLogs(rows []logRow) []delivery.Log {
	logs := make([]delivery.Log, len(rows))
	for i, row := range rows {
		logs[i] = unboilLog(row)
	}
	return logs
}
