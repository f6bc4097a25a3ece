// Package api implements the REST API for academic source search
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/developer-mesh/academic-helper/internal/middleware"
	"github.com/developer-mesh/academic-helper/internal/models"
	"github.com/developer-mesh/academic-helper/internal/observability"
	"github.com/developer-mesh/academic-helper/internal/seeder"
)

// Searcher answers similarity queries
type Searcher interface {
	Search(ctx context.Context, queryText string, limit int) ([]*models.AcademicSource, error)
}

// SeedRunner stores dataset records
type SeedRunner interface {
	Seed(ctx context.Context, records []models.RawSourceRecord) (*seeder.Report, error)
}

// Pinger checks that a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatasetLoader reads the seed dataset at path
type DatasetLoader func(path string) ([]models.RawSourceRecord, error)

// Config holds handler settings taken from the service configuration
type Config struct {
	DefaultLimit   int
	MaxLimit       int
	MaxQueryLength int
	DatasetPath    string
	ReadyTimeout   time.Duration
}

// Handler handles API requests
type Handler struct {
	searcher Searcher
	seeder   SeedRunner
	store    Pinger
	loader   DatasetLoader
	config   Config
	logger   observability.Logger
}

// NewHandler creates a new API handler
func NewHandler(searcher Searcher, seedRunner SeedRunner, store Pinger, loader DatasetLoader, config Config, logger observability.Logger) *Handler {
	if config.MaxLimit <= 0 {
		config.MaxLimit = 50
	}
	if config.DefaultLimit < 0 || config.DefaultLimit > config.MaxLimit {
		config.DefaultLimit = 3
	}
	if config.MaxQueryLength <= 0 {
		config.MaxQueryLength = 2000
	}
	if config.ReadyTimeout <= 0 {
		config.ReadyTimeout = 2 * time.Second
	}
	if loader == nil {
		loader = seeder.LoadDataset
	}
	return &Handler{
		searcher: searcher,
		seeder:   seedRunner,
		store:    store,
		loader:   loader,
		config:   config,
		logger:   logger.WithPrefix("api"),
	}
}

// RegisterRoutes registers all API routes. protected wraps the routes that
// need an identity token.
func (h *Handler) RegisterRoutes(router *gin.Engine, protected ...gin.HandlerFunc) {
	router.GET("/", h.root)
	router.GET("/health", h.health)
	router.GET("/ready", h.ready)

	v1 := router.Group("/api/v1")
	{
		sources := v1.Group("/sources", protected...)
		sources.GET("", h.searchSources)

		// Seeding reads only the local dataset and needs no token
		v1.POST("/seed", h.seed)
	}

	// Unversioned aliases kept for existing clients
	router.GET("/sources", append(append([]gin.HandlerFunc{}, protected...), h.searchSources)...)
	router.POST("/seed", h.seed)
}

func (h *Handler) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "healthy"})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (h *Handler) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.config.ReadyTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("Readiness check failed", map[string]interface{}{
			"error": err.Error(),
		})
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": "storage unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (h *Handler) searchSources(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, "invalid search request", err.Error())
		return
	}

	limit := h.config.DefaultLimit
	if req.Limit != nil {
		limit = *req.Limit
	}
	if limit > h.config.MaxLimit {
		h.respondError(c, http.StatusBadRequest, "invalid search request",
			fmt.Sprintf("limit must be at most %d", h.config.MaxLimit))
		return
	}
	if utf8.RuneCountInString(req.Query) > h.config.MaxQueryLength {
		h.respondError(c, http.StatusBadRequest, "invalid search request",
			fmt.Sprintf("query must be at most %d characters", h.config.MaxQueryLength))
		return
	}

	results, err := h.searcher.Search(c.Request.Context(), req.Query, limit)
	if err != nil {
		status, msg := statusFor(err)
		h.logger.Error("Search failed", map[string]interface{}{
			"request_id": middleware.GetRequestID(c),
			"status":     status,
			"error":      err.Error(),
		})
		h.respondError(c, status, msg, "")
		return
	}

	summaries := make([]models.SourceSummary, 0, len(results))
	for _, r := range results {
		summaries = append(summaries, r.Summary())
	}
	c.JSON(http.StatusOK, SearchResponse{
		Query:   req.Query,
		Results: summaries,
		Count:   len(summaries),
	})
}

func (h *Handler) seed(c *gin.Context) {
	records, err := h.loader(h.config.DatasetPath)
	if err != nil {
		status, msg := statusFor(err)
		h.logger.Error("Failed to load seed dataset", map[string]interface{}{
			"path":  h.config.DatasetPath,
			"error": err.Error(),
		})
		h.respondError(c, status, msg, h.config.DatasetPath)
		return
	}

	report, err := h.seeder.Seed(c.Request.Context(), records)
	if err != nil {
		status, msg := statusFor(err)
		resp := newSeedResponse(report, "seeding stopped before completion")
		resp.Error = msg
		c.JSON(status, resp)
		return
	}

	c.JSON(http.StatusOK, newSeedResponse(report, fmt.Sprintf("Successfully seeded %d sources.", report.Inserted)))
}

func (h *Handler) respondError(c *gin.Context, status int, msg, details string) {
	c.JSON(status, ErrorResponse{
		Error:     msg,
		Details:   details,
		RequestID: middleware.GetRequestID(c),
	})
}
