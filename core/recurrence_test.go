package core

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/danileyton/epicereport-sub000/core/recurrence"
)

var (
	jan1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	jan9 = time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)
)

func TestNewRecurrence_Spec(t *testing.T) {
	disabled := false
	before := jan1.Add(-time.Hour)

	tests := []struct {
		name    string
		in      NewRecurrence
		want    recurrence.Spec
		wantErr string // field
	}{
		{
			name: "defaults to enabled",
			in:   NewRecurrence{Days: []string{"mon", "Wednesday"}, SendTime: "08:30", StartDate: jan1},
			want: recurrence.Spec{
				Enabled:   true,
				Days:      recurrence.Monday | recurrence.Wednesday,
				Time:      recurrence.MustParseTimeOfDay("08:30"),
				StartDate: jan1,
			},
		},
		{
			name: "disabled with end date",
			in:   NewRecurrence{Days: []string{"fri"}, SendTime: "17:00", StartDate: jan1, EndDate: &jan9, Enabled: &disabled},
			want: recurrence.Spec{
				Days:      recurrence.Friday,
				Time:      recurrence.MustParseTimeOfDay("17:00"),
				StartDate: jan1,
				EndDate:   null.TimeFrom(jan9),
			},
		},
		{
			name: "no days is accepted",
			in:   NewRecurrence{SendTime: "08:00", StartDate: jan1},
			want: recurrence.Spec{Enabled: true, Time: recurrence.MustParseTimeOfDay("08:00"), StartDate: jan1},
		},
		{name: "end before start", in: NewRecurrence{SendTime: "08:00", StartDate: jan1, EndDate: &before}, wantErr: "end_date"},
		{name: "bad day", in: NewRecurrence{Days: []string{"someday"}, SendTime: "08:00", StartDate: jan1}, wantErr: "days"},
		{name: "bad time", in: NewRecurrence{SendTime: "25:00", StartDate: jan1}, wantErr: "send_time"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.in.Spec()
			if tc.wantErr != "" {
				verr, ok := errors.Cause(err).(*ValidationError)
				if !ok || len(verr.Fields) != 1 || verr.Fields[0].Field != tc.wantErr {
					t.Errorf("Spec() error = %v; want a validation error on %s", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Spec() error = %v", err)
			}
			if got != tc.want {
				t.Errorf("Spec() = %+v; want %+v", got, tc.want)
			}
		})
	}
}

func TestUpdateRecurrence_Apply(t *testing.T) {
	spec := recurrence.Spec{
		Enabled:   true,
		Days:      recurrence.Monday,
		Time:      recurrence.MustParseTimeOfDay("08:00"),
		StartDate: jan1,
		EndDate:   null.TimeFrom(jan9),
		LastRun:   null.TimeFrom(jan1.Add(8 * time.Hour)),
	}
	same := []string{"monday"}
	other := []string{"tue"}
	sameTime, otherTime := "08:00", "09:15"
	later := jan9.AddDate(0, 1, 0)

	tests := []struct {
		name        string
		in          UpdateRecurrence
		wantChanged bool
		check       func(recurrence.Spec) bool
	}{
		{name: "nothing", in: UpdateRecurrence{}, check: func(s recurrence.Spec) bool { return s == spec }},
		{name: "same values", in: UpdateRecurrence{Days: &same, SendTime: &sameTime}, check: func(s recurrence.Spec) bool { return s == spec }},
		{name: "days", in: UpdateRecurrence{Days: &other}, wantChanged: true,
			check: func(s recurrence.Spec) bool { return s.Days == recurrence.Tuesday }},
		{name: "time", in: UpdateRecurrence{SendTime: &otherTime}, wantChanged: true,
			check: func(s recurrence.Spec) bool { return s.Time == recurrence.MustParseTimeOfDay("09:15") }},
		{name: "end date", in: UpdateRecurrence{EndDate: &later}, wantChanged: true,
			check: func(s recurrence.Spec) bool { return s.EndDate.Time.Equal(later) }},
		{name: "clear end date", in: UpdateRecurrence{ClearEndDate: true, EndDate: &later}, wantChanged: true,
			check: func(s recurrence.Spec) bool { return !s.EndDate.Valid }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, changed, err := tc.in.Apply(spec)
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if changed != tc.wantChanged {
				t.Errorf("Apply() changed = %v; want %v", changed, tc.wantChanged)
			}
			if !tc.check(got) {
				t.Errorf("Apply() = %+v", got)
			}
			if got.LastRun != spec.LastRun {
				t.Errorf("Apply() LastRun = %v; the last run is never edited", got.LastRun)
			}
		})
	}

	start := jan9.AddDate(0, 0, 1)
	if _, _, err := (UpdateRecurrence{StartDate: &start}).Apply(spec); err == nil {
		t.Error("Apply() moving the start after the end date: error = nil")
	}
}

func TestValidators(t *testing.T) {
	validate, _ := NewValidator()

	type payload struct {
		SendTime  string   `json:"send_time" validate:"hhmm"`
		Days      []string `json:"days" validate:"weekdays"`
		SendLimit string   `json:"send_limit" validate:"sendlimit"`
	}
	tests := []struct {
		in     payload
		wantOK bool
	}{
		{payload{"08:00", []string{"mon", "sun"}, "none"}, true},
		{payload{"23:59", nil, "weekly"}, true},
		{payload{"8h", nil, "daily"}, false},
		{payload{"08:00", []string{"caturday"}, ""}, false},
		{payload{"08:00", nil, "hourly"}, false},
	}
	for _, tc := range tests {
		err := validate.Struct(tc.in)
		if (err == nil) != tc.wantOK {
			t.Errorf("validate(%+v) error = %v; want ok = %v", tc.in, err, tc.wantOK)
		}
	}
}
