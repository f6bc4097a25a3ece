package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/developer-mesh/academic-helper/internal/observability"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationTimeout bounds a single Migrate call
const MigrationTimeout = 2 * time.Minute

// newMigrator builds a migrator over the embedded schema files. The driver
// runs on one connection checked out of the pool, so closing the migrator
// returns that connection and leaves db open.
func newMigrator(ctx context.Context, db *sqlx.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("failed to acquire migration connection: %w", err)
	}

	driver, err := postgres.WithConnection(ctx, conn, &postgres.Config{})
	if err != nil {
		_ = conn.Close()
		_ = src.Close()
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		_ = driver.Close()
		_ = src.Close()
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}

func closeMigrator(m *migrate.Migrate, logger observability.Logger) {
	srcErr, dbErr := m.Close()
	if srcErr != nil || dbErr != nil {
		logger.Warn("Failed to close migrator", map[string]interface{}{
			"source_error":   fmt.Sprint(srcErr),
			"database_error": fmt.Sprint(dbErr),
		})
	}
}

// Migrate applies all pending migrations
func Migrate(ctx context.Context, db *sqlx.DB, logger observability.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, MigrationTimeout)
	defer cancel()

	m, err := newMigrator(ctx, db)
	if err != nil {
		return err
	}
	defer closeMigrator(m, logger)

	done := make(chan error, 1)
	go func() {
		done <- m.Up()
	}()

	select {
	case err := <-done:
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("Schema is up to date", nil)
			return nil
		}
		if err != nil {
			return fmt.Errorf("migration error: %w", err)
		}
	case <-ctx.Done():
		// GracefulStop lets Up finish its current step before returning
		m.GracefulStop <- true
		<-done
		return fmt.Errorf("migration interrupted: %w", ctx.Err())
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	logger.Info("Applied migrations", map[string]interface{}{
		"version": version,
		"dirty":   dirty,
	})
	return nil
}

// MigrationFiles lists the embedded migration file names
func MigrationFiles() ([]string, error) {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
