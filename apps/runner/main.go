package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"

	dig_container "github.com/danileyton/epicereport-sub000/apps/di/dig"
	"github.com/danileyton/epicereport-sub000/core"
	"github.com/danileyton/epicereport-sub000/core/runner"
	logsvc "github.com/danileyton/epicereport-sub000/services/logger"
)

func main() {
	c := dig_container.New("RUNNER")

	err := c.Invoke(func(conf *core.Config, logger core.Logger, db *sqlx.DB, r *runner.Runner) {
		defer logsvc.Close(logger)
		defer func() { _ = db.Close() }()

		d, err := newDaemon(r, logger, conf)
		if err != nil {
			logger.Fatal(fmt.Sprintf("starting runner: %v", err), err)
		}

		logger.Info(fmt.Sprintf("Runner started : version %q, spec %q, timezone %s",
			conf.Build, conf.Runner.Spec, conf.Location()))
		defer logger.Info("Runner stopped")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		d.Start()
		<-ctx.Done()
		logger.Info("Start shutdown...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()
		if err := d.Stop(shutdownCtx); err != nil {
			logger.Error(fmt.Sprintf("could not stop runner gracefully: %v", err), err)
		}
	})
	if err != nil {
		panic(err)
	}
}
