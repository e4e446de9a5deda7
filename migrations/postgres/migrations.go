// Package migrations holds the DDL for rate_limit_windows, user_sessions and
// entitlements. The purchase tables and is_family_subscription_member are
// owned by the payment side and are not created here.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/migrate"
)

//go:embed *.sql
var migrationFS embed.FS

// FS exposes the embedded SQL for external runners.
var FS = migrationFS

// Migrations is a bun/migrate registry for this module.
var Migrations = migrate.NewMigrations()

func init() {
	if err := Migrations.Discover(migrationFS); err != nil {
		panic(err)
	}
}

// Up applies every pending migration against dsn.
func Up(ctx context.Context, dsn string, log logrus.FieldLogger) error {
	return run(ctx, dsn, log, func(m *migrate.Migrator) (*migrate.MigrationGroup, error) {
		return m.Migrate(ctx)
	})
}

// Down rolls back the last applied group.
func Down(ctx context.Context, dsn string, log logrus.FieldLogger) error {
	return run(ctx, dsn, log, func(m *migrate.Migrator) (*migrate.MigrationGroup, error) {
		return m.Rollback(ctx)
	})
}

func run(ctx context.Context, dsn string, log logrus.FieldLogger, step func(*migrate.Migrator) (*migrate.MigrationGroup, error)) error {
	sqldb, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("migrations: open: %w", err)
	}
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	m := migrate.NewMigrator(db, Migrations)
	if err := m.Init(ctx); err != nil {
		return fmt.Errorf("migrations: init: %w", err)
	}
	if err := m.Lock(ctx); err != nil {
		return fmt.Errorf("migrations: lock: %w", err)
	}
	defer func() {
		if err := m.Unlock(ctx); err != nil {
			log.WithError(err).Warn("migrations: unlock failed")
		}
	}()

	group, err := step(m)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	if group.IsZero() {
		log.Info("migrations: nothing to do")
		return nil
	}
	log.WithField("group", group.String()).Info("migrations: applied")
	return nil
}
