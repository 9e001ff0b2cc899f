package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/danileyton/epicereport-sub000/core/lms"
)

const (
	csvContentType = "text/csv; charset=utf-8"
	dateLayout     = "2006-01-02 15:04"
)

var progressHeader = []string{
	"First name", "Last name", "Email", "Enrolled", "Last access",
	"Completed activities", "Total activities", "Progress (%)", "Completed",
}

// CSVBuilder builds a single course progress sheet.
type CSVBuilder struct {
	lms lms.Reader
	loc *time.Location
}

var _ Builder = (*CSVBuilder)(nil)

func NewCSVBuilder(reader lms.Reader, loc *time.Location) *CSVBuilder {
	if loc == nil {
		loc = time.UTC
	}
	return &CSVBuilder{lms: reader, loc: loc}
}

func (b *CSVBuilder) Build(ctx context.Context, target Target) ([]Artifact, error) {
	course, err := b.lms.GetCourse(ctx, target.CourseID)
	if err != nil {
		return nil, errors.Wrap(err, "loading course")
	}
	rows, err := b.lms.CourseProgress(ctx, target.CourseID)
	if err != nil {
		return nil, errors.Wrap(err, "loading course progress")
	}

	var buf bytes.Buffer
	buf.WriteString("\ufeff") // utf-8 BOM
	w := csv.NewWriter(&buf)
	if err := w.Write(progressHeader); err != nil {
		return nil, err
	}
	for _, r := range rows {
		record := []string{
			r.FirstName,
			r.LastName,
			r.Email,
			b.formatTime(null.TimeFrom(r.EnrolledAt)),
			b.formatTime(r.LastAccess),
			strconv.Itoa(r.CompletedActivities),
			strconv.Itoa(r.TotalActivities),
			strconv.FormatFloat(r.Percent(), 'f', 1, 64),
			b.formatTime(r.CompletedAt),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, errors.Wrap(err, "writing csv")
	}

	at := target.At
	if at.IsZero() {
		at = time.Now()
	}
	return []Artifact{{
		Name:        fileName(course, at.In(b.loc)),
		ContentType: csvContentType,
		Content:     buf.Bytes(),
	}}, nil
}

func (b *CSVBuilder) formatTime(t null.Time) string {
	if !t.Valid || t.Time.IsZero() {
		return ""
	}
	return t.Time.In(b.loc).Format(dateLayout)
}

func fileName(course lms.Course, at time.Time) string {
	name := course.ShortName
	if name == "" {
		name = fmt.Sprintf("course-%d", course.ID)
	}
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
	return fmt.Sprintf("progress_%s_%s.csv", name, at.Format("20060102"))
}
