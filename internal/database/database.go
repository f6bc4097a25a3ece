// Package database opens the PostgreSQL pool and applies the schema
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/developer-mesh/academic-helper/internal/config"
	"github.com/developer-mesh/academic-helper/internal/observability"
)

// Connect opens a pooled connection, retrying with exponential backoff
// until cfg.ConnectTimeout elapses.
func Connect(ctx context.Context, cfg config.DatabaseConfig, logger observability.Logger) (*sqlx.DB, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = cfg.ConnectTimeout

	attempt := 0
	var db *sqlx.DB
	operation := func() error {
		attempt++
		conn, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
		if err != nil {
			logger.Warn("Database connection attempt failed", map[string]interface{}{
				"attempt": attempt,
				"host":    cfg.Host,
				"error":   err.Error(),
			})
			return err
		}
		db = conn
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", attempt, err)
	}

	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	logger.Info("Connected to database", map[string]interface{}{
		"host":     cfg.Host,
		"database": cfg.Database,
		"attempts": attempt,
	})
	return db, nil
}
