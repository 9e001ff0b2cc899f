package sqlxrepos

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/danileyton/epicereport-sub000/core"
	"github.com/danileyton/epicereport-sub000/core/recurrence"
	"github.com/danileyton/epicereport-sub000/core/schedule"
)

var scheduleCols = []string{
	"id", "name", "course_id", "subject", "message", "enabled", "days", "send_time", "start_date", "end_date",
	"last_run", "next_run", "locked_by", "locked_at", "created_by", "created_at", "updated_at",
}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestScheduleRepository_CreateSchedule(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewScheduleRepository(db)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	next := time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC)
	sch := schedule.Schedule{
		Name:     "Weekly",
		CourseID: 12,
		Recurrence: recurrence.Spec{
			Enabled:   true,
			Days:      recurrence.Monday,
			Time:      recurrence.MustParseTimeOfDay("08:30"),
			StartDate: start,
			NextRun:   null.TimeFrom(next),
		},
		Recipients: []schedule.Recipient{{Name: "Ann", Email: "ann@example.com"}},
		CreatedAt:  start,
		UpdatedAt:  start,
	}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO schedules").
		WithArgs("Weekly", int64(12), "", "", true, int64(recurrence.Monday), "08:30", start.Unix(), nil,
			nil, next.Unix(), int64(0), start.Unix(), start.Unix()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery("INSERT INTO schedule_recipients").
		WithArgs(int64(7), "Ann", "ann@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectCommit()

	got, err := repo.CreateSchedule(context.Background(), sch)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.ID)
	require.Len(t, got.Recipients, 1)
	assert.Equal(t, int64(11), got.Recipients[0].ID)
	assert.Equal(t, int64(7), got.Recipients[0].ScheduleID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepository_CreateSchedule_RollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewScheduleRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO schedules").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery("INSERT INTO schedule_recipients").
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	_, err := repo.CreateSchedule(context.Background(), schedule.Schedule{
		Recipients: []schedule.Recipient{{Email: "ann@example.com"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inserting recipient")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepository_GetSchedule(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewScheduleRepository(db)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(2024, 1, 8, 8, 30, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM schedules WHERE id").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(scheduleCols).AddRow(
			3, "Weekly", 12, "Progress", "Hi", true, 5, "08:30", start.Unix(), nil,
			last.Unix(), nil, nil, nil, 1, start.Unix(), start.Unix(),
		))
	mock.ExpectQuery("FROM schedule_recipients WHERE schedule_id IN").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "schedule_id", "name", "email"}).
			AddRow(1, 3, "Ann", "ann@example.com").
			AddRow(2, 3, "Bob", "bob@example.com"))

	sch, err := repo.GetSchedule(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "Weekly", sch.Name)
	assert.Equal(t, recurrence.Monday|recurrence.Wednesday, sch.Recurrence.Days)
	assert.Equal(t, recurrence.MustParseTimeOfDay("08:30"), sch.Recurrence.Time)
	assert.True(t, sch.Recurrence.StartDate.Equal(start))
	assert.True(t, sch.Recurrence.LastRun.Valid)
	assert.True(t, sch.Recurrence.LastRun.Time.Equal(last))
	assert.False(t, sch.Recurrence.NextRun.Valid)
	assert.False(t, sch.Recurrence.EndDate.Valid)
	require.Len(t, sch.Recipients, 2)
	assert.Equal(t, "bob@example.com", sch.Recipients[1].Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepository_GetSchedule_InvalidSendTime(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewScheduleRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM schedules WHERE id").
		WillReturnRows(sqlmock.NewRows(scheduleCols).AddRow(
			3, "Broken", 12, "", "", true, 1, "25:99", 0, nil, nil, nil, nil, nil, 0, 0, 0,
		))
	mock.ExpectQuery("FROM schedule_recipients").
		WillReturnRows(sqlmock.NewRows([]string{"id", "schedule_id", "name", "email"}))

	sch, err := repo.GetSchedule(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, recurrence.InvalidTime, sch.Recurrence.Time)
	assert.False(t, recurrence.Fireable(sch.Recurrence))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepository_GetSchedule_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewScheduleRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM schedules WHERE id").
		WithArgs(int64(404)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetSchedule(context.Background(), 404)
	assert.Equal(t, schedule.ErrNotFound, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepository_QuerySchedules(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewScheduleRepository(db)

	enabled := true
	mock.ExpectQuery("FROM schedules WHERE (.+) ORDER BY name ASC").
		WithArgs("%week%", "%week%", int64(12), true).
		WillReturnRows(sqlmock.NewRows(scheduleCols))

	schs, err := repo.QuerySchedules(context.Background(),
		&schedule.QueryFilter{Search: "Week", CourseID: 12, Enabled: &enabled},
		[]core.DBOrdering{{Field: "name", Ascending: true}, {Field: "password"}},
	)
	require.NoError(t, err)
	assert.Empty(t, schs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepository_UpdateSchedule_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewScheduleRepository(db)

	mock.ExpectExec("UPDATE schedules SET name").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := repo.UpdateSchedule(context.Background(), schedule.Schedule{ID: 9})
	assert.Equal(t, schedule.ErrNotFound, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepository_RemoveRecipient_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewScheduleRepository(db)

	mock.ExpectExec("DELETE FROM schedule_recipients").
		WithArgs(int64(5), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.RemoveRecipient(context.Background(), 3, 5)
	assert.Equal(t, schedule.ErrRecipientNotFound, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepository_FindDueSchedules(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewScheduleRepository(db)

	now := time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM schedules WHERE enabled = \$1 AND \(next_run IS NULL OR next_run <= \$2\)`).
		WithArgs(true, now.Unix()).
		WillReturnRows(sqlmock.NewRows(scheduleCols))

	schs, err := repo.FindDueSchedules(context.Background(), now)
	require.NoError(t, err)
	assert.Empty(t, schs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepository_ClaimSchedule(t *testing.T) {
	now := time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)
	ttl := time.Hour
	last := time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		lastRun  null.Time
		args     []driver.Value
		affected int64
		want     bool
	}{
		{
			name:     "first run",
			args:     []driver.Value{"tok", now.Unix(), int64(3), now.Add(-ttl).Unix()},
			affected: 1,
			want:     true,
		},
		{
			name:     "fired meanwhile",
			lastRun:  null.TimeFrom(last),
			args:     []driver.Value{"tok", now.Unix(), int64(3), now.Add(-ttl).Unix(), last.Unix()},
			affected: 0,
			want:     false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			repo := NewScheduleRepository(db)

			mock.ExpectExec("UPDATE schedules SET locked_by").
				WithArgs(tc.args...).
				WillReturnResult(sqlmock.NewResult(0, tc.affected))

			ok, err := repo.ClaimSchedule(context.Background(), 3, "tok", tc.lastRun, now, ttl)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestScheduleRepository_CompleteSchedule(t *testing.T) {
	begin := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(2024, 1, 8, 8, 30, 0, 0, time.UTC)
	next := time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC)
	spec := recurrence.Spec{
		Enabled:   true,
		Days:      recurrence.Monday,
		Time:      recurrence.MustParseTimeOfDay("08:30"),
		StartDate: begin,
		LastRun:   null.TimeFrom(last),
		NextRun:   null.TimeFrom(next),
	}
	ended := spec
	ended.EndDate = null.TimeFrom(end)

	tests := []struct {
		name     string
		spec     recurrence.Spec
		query    string
		args     []driver.Value
		affected int64
		want     bool
	}{
		{
			name:     "configuration unchanged",
			spec:     spec,
			query:    `UPDATE schedules SET last_run = \$1, next_run = \$2, locked_by = NULL, locked_at = NULL WHERE id = \$3 AND locked_by = \$4 AND enabled = \$5 AND days = \$6 AND send_time = \$7 AND start_date = \$8 AND end_date IS NULL`,
			args:     []driver.Value{last.Unix(), next.Unix(), int64(3), "tok", true, int64(recurrence.Monday), "08:30", begin.Unix()},
			affected: 1,
			want:     true,
		},
		{
			name:     "edited during the firing",
			spec:     ended,
			query:    `AND start_date = \$8 AND end_date = \$9`,
			args:     []driver.Value{last.Unix(), next.Unix(), int64(3), "tok", true, int64(recurrence.Monday), "08:30", begin.Unix(), end.Unix()},
			affected: 0,
			want:     false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			repo := NewScheduleRepository(db)

			mock.ExpectExec(tc.query).
				WithArgs(tc.args...).
				WillReturnResult(sqlmock.NewResult(0, tc.affected))

			ok, err := repo.CompleteSchedule(context.Background(), 3, "tok", tc.spec)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
