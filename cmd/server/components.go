package main

import (
	"context"
	"fmt"

	"github.com/developer-mesh/academic-helper/internal/config"
	"github.com/developer-mesh/academic-helper/internal/database"
	"github.com/developer-mesh/academic-helper/internal/embedding"
	"github.com/developer-mesh/academic-helper/internal/observability"
	"github.com/developer-mesh/academic-helper/internal/repository"
)

// core holds the components shared by the serve and seed commands
type core struct {
	repo     repository.SourceRepository
	provider embedding.Provider
	close    func()
}

// buildCore opens the configured store and embedding provider
func buildCore(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger observability.Logger) (*core, error) {
	c := &core{close: func() {}}

	switch cfg.Storage.Driver {
	case "memory":
		logger.Warn("Using in-memory storage; sources are lost on exit", nil)
		c.repo = repository.NewMemorySourceRepository(cfg.Embedding.Dimensions)

	default:
		db, err := database.Connect(ctx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		c.close = func() {
			if err := db.Close(); err != nil {
				logger.Error("Failed to close database connection", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}

		if cfg.Migrations.AutoMigrate {
			if err := database.Migrate(ctx, db, logger); err != nil {
				c.close()
				return nil, err
			}
		}

		pg := repository.NewPostgresSourceRepository(db, cfg.Embedding.Dimensions, cfg.Database.QueryTimeout)
		if err := pg.VerifyDimensions(ctx); err != nil {
			c.close()
			return nil, fmt.Errorf("embedding column check failed: %w", err)
		}
		c.repo = pg
	}

	provider, err := embedding.NewFromConfig(cfg.Embedding, metrics, logger)
	if err != nil {
		c.close()
		return nil, err
	}
	c.provider = provider

	logger.Info("Core components ready", map[string]interface{}{
		"storage":    cfg.Storage.Driver,
		"provider":   provider.Name(),
		"dimensions": provider.Dimensions(),
	})
	return c, nil
}
