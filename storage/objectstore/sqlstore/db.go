package sqlstore

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/trezcool/classdrive/core"
)

// Supported drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Open connects to the database of conf and waits for it to be ready.
func Open(ctx context.Context, conf core.SQLConfig) (*sqlx.DB, error) {
	if conf.Driver != DriverPostgres && conf.Driver != DriverSQLite {
		return nil, errors.Errorf("unsupported sql driver %q", conf.Driver)
	}
	db, err := sqlx.Open(conf.Driver, conf.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if conf.Driver == DriverSQLite {
		// a single writer avoids SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}
	if err = ping(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(ctx context.Context, db *sqlx.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "DB ping")
		case <-time.After(time.Duration(attempts) * 100 * time.Millisecond):
		}
	}
	return errors.Wrap(err, "DB ping timeout")
}

// Migrate applies the pending migrations of the database dialect.
func Migrate(ctx context.Context, db *sqlx.DB, logger core.Logger) error {
	dialect := goose.DialectSQLite3
	if db.DriverName() == DriverPostgres {
		dialect = goose.DialectPostgres
	}

	subFS, err := fs.Sub(migrationsFS, "migrations/"+db.DriverName())
	if err != nil {
		return errors.Wrap(err, "opening migrations")
	}
	provider, err := goose.NewProvider(dialect, db.DB, subFS)
	if err != nil {
		return errors.Wrap(err, "creating migration provider")
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return errors.Wrap(err, "migrating database")
	}
	for _, r := range results {
		logger.Info(fmt.Sprintf("applied migration %s in %s", r.Source.Path, r.Duration))
	}
	return nil
}
