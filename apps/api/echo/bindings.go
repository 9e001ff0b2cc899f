package echoapi

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/danileyton/epicereport-sub000/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// specFilter holds the query params shared by schedule and followup listings.
type specFilter struct {
	Search   string
	CourseID int64
	Enabled  *bool
}

func (f *specFilter) Bind(ctx echo.Context) error {
	f.Search = ctx.QueryParam("search")
	if v := ctx.QueryParam("course_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "course_id", Error: "must be a number"})
		}
		f.CourseID = id
	}
	if v := ctx.QueryParam("enabled"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "enabled", Error: "must be a boolean"})
		}
		f.Enabled = &enabled
	}
	return nil
}
