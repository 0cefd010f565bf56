package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/classdrive/core"
	"github.com/trezcool/classdrive/storage/objectstore/sqlstore"
)

var (
	migrateFunc = runMigrations // mockable

	errNotSQL = errors.New("migrations only apply to the sql store backend")
)

func runMigrations(ctx context.Context, conf core.SQLConfig, logger core.Logger) error {
	db, err := sqlstore.Open(ctx, conf)
	if err != nil {
		return err
	}
	defer db.Close()
	return sqlstore.Migrate(ctx, db, logger)
}

func (cli *commandLine) migrate(ctx context.Context) error {
	if cli.conf.Store.Backend != core.BackendSQL {
		return errNotSQL
	}
	if err := migrateFunc(ctx, cli.conf.Store.SQL, cli.logger); err != nil {
		return err
	}
	fmt.Fprintln(cli.out, "Database is up to date.")
	return nil
}
