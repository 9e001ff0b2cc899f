package main

import (
	"os"

	"github.com/jmoiron/sqlx"

	dig_container "github.com/danileyton/epicereport-sub000/apps/di/dig"
	"github.com/danileyton/epicereport-sub000/core"
	"github.com/danileyton/epicereport-sub000/core/followup"
	"github.com/danileyton/epicereport-sub000/core/runner"
	"github.com/danileyton/epicereport-sub000/core/schedule"
	logsvc "github.com/danileyton/epicereport-sub000/services/logger"
)

func main() {
	c := dig_container.New("ADMIN")

	var code int
	err := c.Invoke(func(
		conf *core.Config,
		logger core.Logger,
		db *sqlx.DB,
		r *runner.Runner,
		schSvc *schedule.Service,
		fuSvc *followup.Service,
	) {
		defer logsvc.Close(logger)
		defer func() { _ = db.Close() }()

		cli := commandLine{
			db:        db.DB,
			engine:    conf.Database.Engine,
			runner:    r,
			schedules: schSvc,
			followups: fuSvc,
			out:       os.Stdout,
		}
		if err := cli.run(os.Args); err != nil {
			if err != errHelp {
				logger.Error("admin: "+err.Error(), err)
			}
			code = 1
		}
	})
	if err != nil {
		panic(err)
	}
	os.Exit(code)
}
