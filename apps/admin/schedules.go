package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/danileyton/epicereport-sub000/core/followup"
	"github.com/danileyton/epicereport-sub000/core/recurrence"
	"github.com/danileyton/epicereport-sub000/core/schedule"
)

const listTimeLayout = "2006-01-02 15:04 MST"

func (cli *commandLine) listSchedules(courseID int64) error {
	ctx := context.Background()
	schs, err := cli.schedules.Query(ctx, &schedule.QueryFilter{CourseID: courseID})
	if err != nil {
		return err
	}
	fus, err := cli.followups.Query(ctx, &followup.QueryFilter{CourseID: courseID})
	if err != nil {
		return err
	}

	now := cli.schedules.Now()
	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tID\tNAME\tCOURSE\tDAYS\tTIME\tSTATUS\tNEXT RUN")
	for _, sch := range schs {
		cli.printSpec(w, "schedule", sch.ID, sch.Name, sch.CourseID, sch.Recurrence, now)
	}
	for _, fu := range fus {
		cli.printSpec(w, "followup", fu.ID, fu.Name, fu.CourseID, fu.Recurrence, now)
	}
	return w.Flush()
}

func (cli *commandLine) printSpec(w *tabwriter.Writer, kind string, id int64, name string, courseID int64, spec recurrence.Spec, now time.Time) {
	next := "-"
	if spec.NextRun.Valid {
		next = spec.NextRun.Time.In(now.Location()).Format(listTimeLayout)
	}
	fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%s\t%s\t%s\t%s\n",
		kind, id, name, courseID, spec.Days, spec.Time, recurrence.StatusOf(spec, now), next)
}

func (cli *commandLine) recompute() error {
	ctx := context.Background()
	n, err := cli.schedules.RecomputeAll(ctx)
	if err != nil {
		return err
	}
	m, err := cli.followups.RecomputeAll(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "recomputed %d schedules and %d followups\n", n, m)
	return nil
}
