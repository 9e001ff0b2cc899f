package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/danileyton/epicereport-sub000/core/followup"
	"github.com/danileyton/epicereport-sub000/core/runner"
	"github.com/danileyton/epicereport-sub000/core/schedule"
)

var (
	nowFunc = time.Now // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db        *sql.DB
	engine    string
	runner    *runner.Runner
	schedules *schedule.Service
	followups *followup.Service
	out       io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]         - run a goose command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  poll [-at RFC3339]             - fire every due schedule and followup")
	fmt.Fprintln(cli.out, "  retry                          - resend failed deliveries")
	fmt.Fprintln(cli.out, "  schedules [-course ID]         - list schedules and followups with their status")
	fmt.Fprintln(cli.out, "  recompute                      - recompute every cached next run")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	pollCmd := flag.NewFlagSet("poll", flag.ContinueOnError)
	pollCmd.SetOutput(cli.out)
	pollAt := pollCmd.String("at", "", "Poll as if it were this RFC3339 time (defaults to now).")

	schedulesCmd := flag.NewFlagSet("schedules", flag.ContinueOnError)
	schedulesCmd.SetOutput(cli.out)
	schedulesCourse := schedulesCmd.Int64("course", 0, "Only list the schedules of this course.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "poll":
		if err := pollCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		now := nowFunc()
		if *pollAt != "" {
			at, err := time.Parse(time.RFC3339, *pollAt)
			if err != nil {
				pollCmd.Usage()
				return errHelp
			}
			now = at
		}
		return cli.poll(now)
	case "retry":
		return cli.retry(nowFunc())
	case "schedules":
		if err := schedulesCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		return cli.listSchedules(*schedulesCourse)
	case "recompute":
		return cli.recompute()
	default:
		cli.printUsage()
		return errHelp
	}
}
