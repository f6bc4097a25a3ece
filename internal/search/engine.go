// Package search answers nearest-neighbour queries over the source corpus
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/developer-mesh/academic-helper/internal/embedding"
	"github.com/developer-mesh/academic-helper/internal/models"
	"github.com/developer-mesh/academic-helper/internal/observability"
	"github.com/developer-mesh/academic-helper/internal/repository"
)

// DefaultLimit is the number of results returned when the caller gives none
const DefaultLimit = 3

// Engine embeds a query and ranks stored sources against it. The metric is
// fixed for the engine's lifetime so every query is compared the same way.
type Engine struct {
	provider embedding.Provider
	repo     repository.SourceRepository
	metric   models.DistanceMetric
	metrics  *observability.Metrics
	logger   observability.Logger
}

// NewEngine creates a search engine using metric for every query
func NewEngine(provider embedding.Provider, repo repository.SourceRepository, metric models.DistanceMetric, metrics *observability.Metrics, logger observability.Logger) (*Engine, error) {
	if !metric.Valid() {
		return nil, fmt.Errorf("%w: %q", repository.ErrInvalidMetric, metric)
	}
	if metrics == nil {
		metrics = observability.NewTestMetrics()
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Engine{
		provider: provider,
		repo:     repo,
		metric:   metric,
		metrics:  metrics,
		logger:   logger.WithPrefix("search"),
	}, nil
}

// Metric returns the distance metric the engine ranks with
func (e *Engine) Metric() models.DistanceMetric {
	return e.metric
}

// Search returns up to limit sources nearest to queryText, nearest first.
// Results are returned as ranked by the repository.
func (e *Engine) Search(ctx context.Context, queryText string, limit int) (results []*models.AcademicSource, err error) {
	if limit <= 0 {
		return []*models.AcademicSource{}, nil
	}

	ctx, span := observability.StartSpan(ctx, "search.Search",
		attribute.Int("search.limit", limit),
		attribute.String("search.metric", string(e.metric)),
	)
	start := time.Now()
	e.metrics.SearchRequests.Inc()
	defer func() {
		e.metrics.SearchDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			e.metrics.SearchErrors.WithLabelValues(errorKind(err)).Inc()
		} else {
			e.metrics.SearchResultCount.Observe(float64(len(results)))
			span.SetAttributes(attribute.Int("search.results", len(results)))
		}
		observability.EndSpan(span, err)
	}()

	vec, err := e.provider.Embed(ctx, queryText, embedding.TaskRetrievalQuery)
	if err != nil {
		e.logger.Warn("Query embedding failed", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, err
	}

	results, err = e.repo.RankByDistance(ctx, vec, e.metric, limit)
	if err != nil {
		e.logger.Error("Ranking failed", map[string]interface{}{
			"error":  err.Error(),
			"metric": string(e.metric),
		})
		return nil, err
	}

	e.logger.Debug("Search completed", map[string]interface{}{
		"limit":       limit,
		"results":     len(results),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return results, nil
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, embedding.ErrProviderRejected):
		return "provider_rejected"
	case errors.Is(err, embedding.ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, repository.ErrStorageUnavailable):
		return "storage_unavailable"
	case errors.Is(err, repository.ErrDimensionMismatch):
		return "dimension_mismatch"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
