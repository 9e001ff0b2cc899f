package dig_container

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	"github.com/danileyton/epicereport-sub000/core"
	"github.com/danileyton/epicereport-sub000/core/delivery"
	"github.com/danileyton/epicereport-sub000/core/followup"
	"github.com/danileyton/epicereport-sub000/core/lms"
	"github.com/danileyton/epicereport-sub000/core/report"
	"github.com/danileyton/epicereport-sub000/core/runner"
	"github.com/danileyton/epicereport-sub000/core/schedule"
	emailsvc "github.com/danileyton/epicereport-sub000/services/email"
	logsvc "github.com/danileyton/epicereport-sub000/services/logger"
	"github.com/danileyton/epicereport-sub000/storage/database"
	"github.com/danileyton/epicereport-sub000/storage/database/sqlxrepos"
)

const setUpTimeout = 30 * time.Second

type (
	// AppName is the log prefix of the running app.
	AppName string

	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	RunnerParams struct {
		dig.In
		Conf       *core.Config
		Logger     core.Logger
		Schedules  *schedule.Service
		Followups  *followup.Service
		Deliveries *delivery.Service
		Builder    report.Builder
		LMS        lms.Reader
		Dispatcher delivery.Dispatcher
		Locker     runner.Locker
	}
)

func newLogger(name AppName, conf *core.Config) core.Logger {
	return logsvc.New(string(name), conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	return logsvc.New("DB", conf)
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sqlx.DB, *sql.DB) {
	setUp := func() (*sqlx.DB, error) {
		ctx, cancel := context.WithTimeout(context.Background(), setUpTimeout)
		defer cancel()

		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}
		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}
		if err = database.Ping(ctx, db.DB); err != nil {
			return nil, err
		}
		if err = database.Migrate(ctx, db.DB, conf.Database.Engine); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, db.DB
}

func newEmailService(conf *core.Config) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf)
	}
	return emailsvc.NewSendgridService(conf)
}

func newLMSReader(db *sqlx.DB, conf *core.Config) lms.Reader {
	return sqlxrepos.NewLMSReader(db, conf.LMS.TablePrefix)
}

func newReportBuilder(reader lms.Reader, conf *core.Config) report.Builder {
	return report.NewCSVBuilder(reader, conf.Location())
}

func newLocker(db *sql.DB, conf *core.Config) runner.Locker {
	return database.NewLocker(db, conf.Database.Engine)
}

func newRunner(p RunnerParams) *runner.Runner {
	return runner.New(runner.Deps{
		Schedules:  p.Schedules,
		Followups:  p.Followups,
		Deliveries: p.Deliveries,
		Builder:    p.Builder,
		LMS:        p.LMS,
		Dispatcher: p.Dispatcher,
		Locker:     p.Locker,
		Logger:     p.Logger,
	}, p.Conf)
}

// New returns a dependency injection dig.Container providing the whole application stack.
// Apps add their own entry points (API server, CLI) on top of it.
func New(name AppName) *dig.Container {
	c := dig.New()

	must(c.Provide(func() AppName { return name }))
	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newEmailService))
	must(c.Provide(core.NewValidator)) // the translator knows the validator's custom tags

	// storage
	must(c.Provide(sqlxrepos.NewScheduleRepository, dig.As(new(schedule.Repository))))
	must(c.Provide(sqlxrepos.NewFollowupRepository, dig.As(new(followup.Repository))))
	must(c.Provide(sqlxrepos.NewDeliveryRepository, dig.As(new(delivery.Repository))))
	must(c.Provide(newLMSReader))

	// domain
	must(c.Provide(schedule.NewService))
	must(c.Provide(followup.NewService))
	must(c.Provide(delivery.NewService))
	must(c.Provide(newReportBuilder))
	must(c.Provide(emailsvc.NewDispatcher, dig.As(new(delivery.Dispatcher))))
	must(c.Provide(newLocker))
	must(c.Provide(newRunner))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
