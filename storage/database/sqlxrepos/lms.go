package sqlxrepos

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/danileyton/epicereport-sub000/core/lms"
)

// lmsReader reads courses, enrolments and completions straight from the Moodle tables.
type lmsReader struct {
	db     *sqlx.DB
	prefix string
}

var _ lms.Reader = (*lmsReader)(nil)

func NewLMSReader(db *sqlx.DB, tablePrefix string) *lmsReader {
	return &lmsReader{db: db, prefix: tablePrefix}
}

// query expands {table} placeholders with the configured prefix and rebinds.
func (r *lmsReader) query(q string) string {
	var b strings.Builder
	for {
		i := strings.IndexByte(q, '{')
		if i < 0 {
			b.WriteString(q)
			break
		}
		j := strings.IndexByte(q[i:], '}')
		if j < 0 {
			b.WriteString(q)
			break
		}
		b.WriteString(q[:i])
		b.WriteString(r.prefix)
		b.WriteString(q[i+1 : i+j])
		q = q[i+j+1:]
	}
	return r.db.Rebind(b.String())
}

// active enrolments of non deleted, non suspended users
const activeParticipants = `
	SELECT u.id AS user_id, u.firstname, u.lastname, u.email, MIN(COALESCE(NULLIF(ue.timestart, 0), ue.timecreated)) AS enrolled_at
	FROM {user} u
	JOIN {user_enrolments} ue ON ue.userid = u.id
	JOIN {enrol} e ON e.id = ue.enrolid
	WHERE e.courseid = ? AND e.status = 0 AND ue.status = 0 AND u.deleted = 0 AND u.suspended = 0
	GROUP BY u.id, u.firstname, u.lastname, u.email`

type participantRow struct {
	UserID     int64  `db:"user_id"`
	FirstName  string `db:"firstname"`
	LastName   string `db:"lastname"`
	Email      string `db:"email"`
	EnrolledAt int64  `db:"enrolled_at"`
}

type progressRow struct {
	participantRow
	LastAccess          null.Int64 `db:"last_access"`
	CompletedActivities int        `db:"completed_activities"`
	TotalActivities     int        `db:"total_activities"`
	CompletedAt         null.Int64 `db:"completed_at"`
}

func (r *lmsReader) GetCourse(ctx context.Context, courseID int64) (lms.Course, error) {
	var c struct {
		ID        int64  `db:"id"`
		ShortName string `db:"shortname"`
		FullName  string `db:"fullname"`
	}
	if err := r.db.GetContext(ctx, &c, r.query("SELECT id, shortname, fullname FROM {course} WHERE id = ?"), courseID); err != nil {
		return lms.Course{}, trapNoRowsErr(err, lms.ErrCourseNotFound, "selecting course")
	}
	return lms.Course{ID: c.ID, ShortName: c.ShortName, FullName: c.FullName}, nil
}

func (r *lmsReader) CourseProgress(ctx context.Context, courseID int64) ([]lms.ProgressRow, error) {
	q := r.query(`
	SELECT p.user_id, p.firstname, p.lastname, p.email, p.enrolled_at,
		la.timeaccess AS last_access,
		(SELECT COUNT(*) FROM {course_modules_completion} cmc
			JOIN {course_modules} cm ON cm.id = cmc.coursemoduleid
			WHERE cm.course = ? AND cm.completion > 0 AND cm.deletioninprogress = 0
			AND cmc.userid = p.user_id AND cmc.completionstate > 0) AS completed_activities,
		(SELECT COUNT(*) FROM {course_modules} cm
			WHERE cm.course = ? AND cm.completion > 0 AND cm.deletioninprogress = 0) AS total_activities,
		cc.timecompleted AS completed_at
	FROM (` + activeParticipants + `) p
	LEFT JOIN {user_lastaccess} la ON la.userid = p.user_id AND la.courseid = ?
	LEFT JOIN {course_completions} cc ON cc.userid = p.user_id AND cc.course = ?
	ORDER BY p.lastname, p.firstname, p.user_id`)

	var rows []progressRow
	if err := r.db.SelectContext(ctx, &rows, q, courseID, courseID, courseID, courseID, courseID); err != nil {
		return nil, errors.Wrap(err, "selecting course progress")
	}
	out := make([]lms.ProgressRow, len(rows))
	for i, row := range rows {
		out[i] = lms.ProgressRow{
			Participant:         row.participant(),
			EnrolledAt:          fromEpoch(row.EnrolledAt),
			LastAccess:          fromNullEpoch(zeroAsNull(row.LastAccess)),
			CompletedActivities: row.CompletedActivities,
			TotalActivities:     row.TotalActivities,
			CompletedAt:         fromNullEpoch(zeroAsNull(row.CompletedAt)),
		}
	}
	return out, nil
}

func (r *lmsReader) PendingParticipants(ctx context.Context, courseID int64, feedbackID null.Int64) ([]lms.Participant, error) {
	var (
		q    string
		args []interface{}
	)
	if feedbackID.Valid {
		q = r.query(`SELECT p.* FROM (` + activeParticipants + `) p
		WHERE NOT EXISTS (SELECT 1 FROM {feedback_completed} fc WHERE fc.feedback = ? AND fc.userid = p.user_id)
		ORDER BY p.lastname, p.firstname, p.user_id`)
		args = []interface{}{courseID, feedbackID.Int64}
	} else {
		q = r.query(`SELECT p.* FROM (` + activeParticipants + `) p
		WHERE NOT EXISTS (SELECT 1 FROM {course_completions} cc
			WHERE cc.course = ? AND cc.userid = p.user_id AND cc.timecompleted > 0)
		ORDER BY p.lastname, p.firstname, p.user_id`)
		args = []interface{}{courseID, courseID}
	}

	var rows []participantRow
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting pending participants")
	}
	out := make([]lms.Participant, len(rows))
	for i, row := range rows {
		out[i] = row.participant()
	}
	return out, nil
}

func (row participantRow) participant() lms.Participant {
	return lms.Participant{
		UserID:    row.UserID,
		FirstName: row.FirstName,
		LastName:  row.LastName,
		Email:     row.Email,
	}
}

// Moodle stores "never" as 0
func zeroAsNull(n null.Int64) null.Int64 {
	if n.Valid && n.Int64 == 0 {
		return null.Int64{}
	}
	return n
}
