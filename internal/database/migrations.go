// Package database provides the goose-backed schema migration runner used by
// cmd/migrate and, optionally, by the server's startup path.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vitaliisemenov/execution-bridge/internal/database/postgres"
)

const migrationsDir = "migrations"

// RunMigrations applies all pending migrations.
func RunMigrations(ctx context.Context, pool *postgres.PostgresPool, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sqlDBFromPool(pool)
	if err != nil {
		return fmt.Errorf("open sql db: %w", err)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	logger.Info("applying database migrations")
	if err := goose.Up(db, migrationsDir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	logger.Info("database migrations applied")
	return nil
}

// RunMigrationsDown rolls back the given number of migration steps.
func RunMigrationsDown(ctx context.Context, pool *postgres.PostgresPool, steps int, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sqlDBFromPool(pool)
	if err != nil {
		return fmt.Errorf("open sql db: %w", err)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	current, err := goose.GetDBVersion(db)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	logger.Info("rolling back database migrations", "steps", steps, "from_version", current)
	if err := goose.DownTo(db, migrationsDir, current-int64(steps)); err != nil {
		return fmt.Errorf("rollback migrations: %w", err)
	}
	return nil
}

// MigrationStatus prints the current migration status to the logger.
func MigrationStatus(ctx context.Context, pool *postgres.PostgresPool, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sqlDBFromPool(pool)
	if err != nil {
		return fmt.Errorf("open sql db: %w", err)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	return goose.Status(db, migrationsDir)
}

// sqlDBFromPool opens a database/sql handle against the same database the
// pgxpool connects to, since goose operates on *sql.DB rather than pgxpool.
func sqlDBFromPool(pool *postgres.PostgresPool) (*sql.DB, error) {
	config := pool.GetConfig()

	db, err := sql.Open("pgx", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("open sql db: %w", err)
	}

	db.SetMaxOpenConns(int(config.MaxConns))
	db.SetMaxIdleConns(int(config.MinConns))
	db.SetConnMaxLifetime(config.MaxConnLifetime)
	db.SetConnMaxIdleTime(config.MaxConnIdleTime)

	return db, nil
}
