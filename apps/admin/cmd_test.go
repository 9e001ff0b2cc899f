package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/danileyton/epicereport-sub000/core"
	"github.com/danileyton/epicereport-sub000/core/delivery"
	"github.com/danileyton/epicereport-sub000/core/followup"
	"github.com/danileyton/epicereport-sub000/core/lms"
	"github.com/danileyton/epicereport-sub000/core/recurrence"
	"github.com/danileyton/epicereport-sub000/core/report"
	"github.com/danileyton/epicereport-sub000/core/runner"
	"github.com/danileyton/epicereport-sub000/core/schedule"
	emailsvc "github.com/danileyton/epicereport-sub000/services/email"
	logsvc "github.com/danileyton/epicereport-sub000/services/logger"
	inmemdb "github.com/danileyton/epicereport-sub000/storage/database/inmem"
)

var (
	schRepo schedule.Repository
	mailer  *emailsvc.ConsoleService
)

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	t.Helper()
	conf := &core.Config{AppName: "Epicereport", TestMode: true, Timezone: "UTC"}
	validate, _ := core.NewValidator()
	db := inmemdb.Open()

	reader := inmemdb.NewLMS()
	reader.AddCourse(lms.Course{ID: 12, ShortName: "GO101", FullName: "Go basics"})

	schRepo = inmemdb.NewScheduleRepository(db)
	schSvc := schedule.NewService(schRepo, validate, conf)
	fuSvc := followup.NewService(inmemdb.NewFollowupRepository(db), validate, conf)
	mailer = emailsvc.NewConsoleServiceMock(conf)

	out := new(bytes.Buffer)
	return &commandLine{
		engine:    "sqlite",
		schedules: schSvc,
		followups: fuSvc,
		runner: runner.New(runner.Deps{
			Schedules:  schSvc,
			Followups:  fuSvc,
			Deliveries: delivery.NewService(inmemdb.NewDeliveryRepository(db), conf),
			Builder:    report.NewCSVBuilder(reader, time.UTC),
			LMS:        reader,
			Dispatcher: emailsvc.NewDispatcher(mailer, conf),
			Logger:     logsvc.NopLogger{},
		}, conf),
		out: out,
	}, out
}

func addSchedule(t *testing.T, name string, spec recurrence.Spec) schedule.Schedule {
	t.Helper()
	sch, err := schRepo.CreateSchedule(context.Background(), schedule.Schedule{
		Name:       name,
		CourseID:   12,
		Recurrence: spec,
		Recipients: []schedule.Recipient{{Name: "Ann", Email: "ann@example.com"}},
	})
	if err != nil {
		t.Fatalf("CreateSchedule() failed, %v", err)
	}
	return sch
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	wantOut    []string
}

func (tt cliTest) check(t *testing.T, cli *commandLine, out *bytes.Buffer) {
	t.Helper()
	out.Reset()
	err := cli.run(append([]string{"admin"}, tt.args...))
	switch {
	case tt.wantErr != nil:
		if err != tt.wantErr {
			t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
		}
	case tt.wantErrStr != "":
		if err == nil || err.Error() != tt.wantErrStr {
			t.Errorf("cli.run() error = %v, wantErrStr %s", err, tt.wantErrStr)
		}
	case err != nil:
		t.Errorf("cli.run() unexpected error = %v", err)
	}
	for _, want := range tt.wantOut {
		if !strings.Contains(out.String(), want) {
			t.Errorf("cli.run() output = %q, want it to contain %q", out.String(), want)
		}
	}
}

func Test_commandLine_run(t *testing.T) {
	cli, out := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp, wantOut: []string{"Usage:"}},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "bad poll time", args: []string{"poll", "-at", "yesterday"}, wantErr: errHelp},
		{name: "unknown poll flag", args: []string{"poll", "-lol"}, wantErr: errHelp},
		{name: "nothing due", args: []string{"poll"}, wantOut: []string{"nothing due"}},
		{name: "retry", args: []string{"retry"}, wantOut: []string{"retried=0 sent=0 failed=0 abandoned=0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) { tt.check(t, cli, out) })
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, out := setup(t)

	gooseRunFunc = func(ctx context.Context, command string, db *sql.DB, dir string, args ...string) error {
		if dir != "migrations/sqlite" {
			return fmt.Errorf("unexpected migrations dir %q", dir)
		}
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "add_index", "sql"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) { tt.check(t, cli, out) })
	}

	cli.engine = "oracle"
	cliTest{name: "unknown engine", args: []string{"migrate", "up"}, wantErrStr: "oracle: unknown database engine"}.check(t, cli, out)
}

func Test_commandLine_poll(t *testing.T) {
	cli, out := setup(t)

	monday := time.Date(2024, 1, 8, 8, 0, 0, 0, time.UTC)
	addSchedule(t, "Weekly", recurrence.Spec{
		Enabled:   true,
		Days:      recurrence.Monday,
		Time:      recurrence.MustParseTimeOfDay("08:00"),
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		NextRun:   null.TimeFrom(monday),
	})

	cliTest{name: "poll", args: []string{"poll", "-at", "2024-01-08T08:01:00Z"}, wantOut: []string{"schedule #", "due=1 sent=1 failed=0"}}.check(t, cli, out)
	if sent := mailer.SentMessages(); len(sent) != 1 || len(sent[0].Attachments) != 1 {
		t.Errorf("sent %d messages; want 1 with the report attached", len(sent))
	}
	cliTest{name: "poll again", args: []string{"poll", "-at", "2024-01-08T08:02:00Z"}, wantOut: []string{"nothing due"}}.check(t, cli, out)
}

func Test_commandLine_schedules(t *testing.T) {
	cli, out := setup(t)

	addSchedule(t, "Weekly", recurrence.Spec{
		Enabled:   true,
		Days:      recurrence.Monday | recurrence.Friday,
		Time:      recurrence.MustParseTimeOfDay("08:00"),
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		NextRun:   null.TimeFrom(time.Date(2100, 1, 1, 8, 0, 0, 0, time.UTC)), // out of sync
	})
	addSchedule(t, "Never", recurrence.Spec{
		Enabled:   true,
		Time:      recurrence.MustParseTimeOfDay("08:00"),
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	cliTest{name: "recompute", args: []string{"recompute"}, wantOut: []string{"recomputed 1 schedules and 0 followups"}}.check(t, cli, out)
	cliTest{name: "list", args: []string{"schedules"}, wantOut: []string{
		"KIND", "Weekly", "mon,fri", "08:00", "waiting", "Never", "misconfigured",
	}}.check(t, cli, out)
	cliTest{name: "other course", args: []string{"schedules", "-course", "99"}}.check(t, cli, out)
	if strings.Contains(out.String(), "Weekly") {
		t.Errorf("listing course 99 shows %q", out.String())
	}
}
