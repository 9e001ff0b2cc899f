package recurrence

import (
	"testing"
	"time"
)

func TestParseWeekdays(t *testing.T) {
	tests := []struct {
		in      string
		want    Weekdays
		wantErr bool
	}{
		{in: "", want: 0},
		{in: "mon,wed", want: Monday | Wednesday},
		{in: " Monday , SUN ", want: Monday | Sunday},
		{in: "tues,thurs", want: Tuesday | Thursday},
		{in: "mon,mon", want: Monday},
		{in: "funday", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseWeekdays(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseWeekdays() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseWeekdays() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWeekdays(t *testing.T) {
	w := WeekdaysOf(time.Monday, time.Sunday)
	if !w.Has(time.Monday) || !w.Has(time.Sunday) || w.Has(time.Tuesday) {
		t.Errorf("Has() wrong for %v", w)
	}
	if got := w.Bitmask(); got != "1000001" {
		t.Errorf("Bitmask() = %q", got)
	}
	if got := w.String(); got != "mon,sun" {
		t.Errorf("String() = %q", got)
	}
	if !Weekdays(0).Empty() || AllWeekdays.Empty() {
		t.Error("Empty() wrong")
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{in: "08:00", want: TimeOfDay{8, 0}},
		{in: "8:05", want: TimeOfDay{8, 5}},
		{in: "23:59", want: TimeOfDay{23, 59}},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "12:5", wantErr: true},
		{in: "noon", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTimeOfDay() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if got.Valid() {
					t.Errorf("ParseTimeOfDay() = %v, want invalid", got)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ParseTimeOfDay() = %v, want %v", got, tt.want)
			}
		})
	}
}
