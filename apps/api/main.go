package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/danileyton/epicereport-sub000/apps/api/echo"
	dig_container "github.com/danileyton/epicereport-sub000/apps/di/dig"
	"github.com/danileyton/epicereport-sub000/core"
	logsvc "github.com/danileyton/epicereport-sub000/services/logger"
)

func main() {
	c := dig_container.New("API")
	if err := c.Provide(echoapi.NewServer); err != nil {
		panic(err)
	}

	err := c.Invoke(func(conf *core.Config, logger core.Logger, db *sqlx.DB, server *echoapi.Server) {
		defer logsvc.Close(logger)
		defer func() {
			if err := db.Close(); err != nil {
				logger.Error("Failed to close database", err)
			}
		}()

		logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
		defer logger.Info("Application stopped")

		// =========================================================================
		// Start Debug Service
		//
		// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
		// /debug/vars - Added to the default mux by importing the expvar package.

		expvar.NewString("build").Set(conf.Build)
		expvar.NewString("env").Set(conf.Env)

		go func() {
			if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
				logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
			}
		}()

		// =========================================================================
		// Start API Service

		go server.Start()

		// =========================================================================
		// Shutdown

		select {
		case err := <-server.Errors():
			logger.Fatal(fmt.Sprintf("server error: %v", err), err)

		case sig := <-server.ShutdownSignal():
			logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

			// give outstanding requests a deadline for completion
			ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer cancel()

			// asking listener to shutdown and shed load
			if err := server.Shutdown(ctx); err != nil {
				logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

				if err = server.Close(); err != nil {
					logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
				}
			}
		}
	})
	if err != nil {
		panic(err)
	}
}
