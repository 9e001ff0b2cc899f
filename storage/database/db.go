package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/danileyton/epicereport-sub000/core"
	appfs "github.com/danileyton/epicereport-sub000/fs"
)

const (
	EnginePostgres = "postgres"
	EngineSQLite   = "sqlite"
)

var errUnknownEngine = errors.New("unknown database engine")

func openPostgres(dbName string, admin bool, conf *core.Config) (*sql.DB, error) {
	user := url.UserPassword(conf.Database.User, conf.Database.Password)
	if admin && conf.Database.AdminUser != "" {
		user = url.UserPassword(conf.Database.AdminUser, conf.Database.AdminPassword)
	}

	sslMode := "require"
	if conf.Database.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   EnginePostgres,
		User:     user,
		Host:     conf.Database.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return sql.Open(EnginePostgres, u.String())
}

func openSQLite(conf *core.Config) (*sql.DB, error) {
	path := conf.Database.Path
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	q := make(url.Values)
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	if ms := conf.Database.BusyTimeout.Milliseconds(); ms > 0 {
		q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", ms))
	}
	db, err := sql.Open(EngineSQLite, "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	// a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, nil
}

// Open connects to the application database of the configured engine.
func Open(conf *core.Config) (*sqlx.DB, error) {
	switch conf.Database.Engine {
	case EnginePostgres:
		db, err := openPostgres(conf.Database.Name, false, conf)
		if err != nil {
			return nil, err
		}
		return sqlx.NewDb(db, EnginePostgres), nil
	case EngineSQLite:
		db, err := openSQLite(conf)
		if err != nil {
			return nil, err
		}
		return sqlx.NewDb(db, EngineSQLite), nil
	default:
		return nil, errors.Wrap(errUnknownEngine, conf.Database.Engine)
	}
}

// Ping waits for the database to be ready. Waits 100ms longer between each attempt.
func Ping(ctx context.Context, db *sql.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		err = db.PingContext(ctx)
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempts) * 100 * time.Millisecond):
		}
	}

	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

func createAppUser(ctx context.Context, db *sql.DB, conf *core.Config) error {
	if conf.Database.User == "" {
		return nil
	}

	var exists bool
	err := db.QueryRowContext(ctx, "SELECT true FROM pg_roles WHERE rolname = $1", conf.Database.User).Scan(&exists)
	if err != nil && err != sql.ErrNoRows {
		return errors.Wrap(err, "checking app user")
	}

	if !exists {
		q := fmt.Sprintf("CREATE USER %s CREATEDB ENCRYPTED PASSWORD '%s'", conf.Database.User, conf.Database.Password)
		if _, err = db.ExecContext(ctx, q); err != nil {
			return errors.Wrap(err, "creating app user")
		}
	}
	return nil
}

func createDB(ctx context.Context, db *sql.DB, conf *core.Config) error {
	var exists bool
	err := db.QueryRowContext(ctx, "SELECT true FROM pg_database WHERE datname = $1", conf.Database.Name).Scan(&exists)
	if err != nil && err != sql.ErrNoRows {
		return errors.Wrap(err, "checking DB")
	}

	if !exists {
		if _, err = db.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE %s", conf.Database.Name)); err != nil {
			return errors.Wrap(err, "creating database")
		}
	}
	return nil
}

// CreateIfNotExist creates the postgres app user and database. It is a no-op for sqlite,
// whose file is created on open.
func CreateIfNotExist(ctx context.Context, conf *core.Config) error {
	if conf.Database.Engine != EnginePostgres {
		return nil
	}

	// connect as admin
	db, err := openPostgres("postgres", true, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()

	if err = Ping(ctx, db); err != nil {
		return errors.Wrap(err, "pinging database")
	}
	if err = createAppUser(ctx, db, conf); err != nil {
		return errors.Wrap(err, "creating app user")
	}

	// create DB as app user
	appDB, err := openPostgres("postgres", false, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = appDB.Close() }()
	return createDB(ctx, appDB, conf)
}

// gooseDialect maps an engine to its goose dialect.
func gooseDialect(engine string) (string, error) {
	switch engine {
	case EnginePostgres:
		return "postgres", nil
	case EngineSQLite:
		return "sqlite3", nil
	default:
		return "", errors.Wrap(errUnknownEngine, engine)
	}
}

// PrepareGoose points goose at the embedded migrations of engine and returns their directory.
func PrepareGoose(engine string) (string, error) {
	dialect, err := gooseDialect(engine)
	if err != nil {
		return "", err
	}
	goose.SetBaseFS(appfs.FS)
	if err := goose.SetDialect(dialect); err != nil {
		return "", err
	}
	return appfs.MigrationsDir(engine), nil
}

// Migrate applies every pending migration.
func Migrate(ctx context.Context, db *sql.DB, engine string) error {
	dir, err := PrepareGoose(engine)
	if err != nil {
		return errors.Wrap(err, "migrating database")
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}
