// Package seeder bulk-loads academic sources, embedding each new title once
package seeder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/developer-mesh/academic-helper/internal/embedding"
	"github.com/developer-mesh/academic-helper/internal/models"
	"github.com/developer-mesh/academic-helper/internal/observability"
	"github.com/developer-mesh/academic-helper/internal/repository"
)

// Report summarises a seed run. A run that stopped on a fatal error still
// returns the counts accumulated up to that point.
type Report struct {
	Inserted int             `json:"inserted_count"`
	Skipped  int             `json:"skipped_count"`
	Failed   []RecordFailure `json:"failures"`
	Total    int             `json:"total"`
	// Processed is how many records were handled before the run ended
	Processed int `json:"processed"`
}

// FailedCount returns the number of records that failed
func (r *Report) FailedCount() int {
	return len(r.Failed)
}

// RecordFailure describes one record that could not be stored
type RecordFailure struct {
	Index  int    `json:"index"`
	Title  string `json:"title"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// Seeder inserts records in input order through a single writer. Each
// insert is its own statement, so a failure never leaves a record half
// written; per-record failures are collected in the Report.
type Seeder struct {
	provider embedding.Provider
	repo     repository.SourceRepository
	validate *validator.Validate
	metrics  *observability.Metrics
	logger   observability.Logger
}

// NewSeeder creates a seeder
func NewSeeder(provider embedding.Provider, repo repository.SourceRepository, metrics *observability.Metrics, logger observability.Logger) *Seeder {
	if metrics == nil {
		metrics = observability.NewTestMetrics()
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Seeder{
		provider: provider,
		repo:     repo,
		validate: validator.New(),
		metrics:  metrics,
		logger:   logger.WithPrefix("seeder"),
	}
}

// Seed stores every record whose title is not yet present. It returns an
// error only for failures that make continuing pointless: the store is
// unreachable or ctx is done. The report is non-nil in every case.
func (s *Seeder) Seed(ctx context.Context, records []models.RawSourceRecord) (*Report, error) {
	start := time.Now()
	report := &Report{Total: len(records), Failed: []RecordFailure{}}
	defer func() {
		s.metrics.SeedDuration.Observe(time.Since(start).Seconds())
	}()

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return s.abort(report, err)
		}

		res, err := s.seedOne(ctx, rec)
		if res == outcomeFatal {
			// the record was not stored and counts as neither inserted nor failed
			return s.abort(report, err)
		}
		report.Processed++

		switch res {
		case outcomeInserted:
			report.Inserted++
		case outcomeSkipped:
			report.Skipped++
		case outcomeFailed:
			report.Failed = append(report.Failed, RecordFailure{
				Index:  i,
				Title:  rec.Title,
				Reason: err.Error(),
				Err:    err,
			})
			s.logger.Warn("Record failed", map[string]interface{}{
				"index": i,
				"title": rec.Title,
				"error": err.Error(),
			})
		}
		s.metrics.SeedRecords.WithLabelValues(string(res)).Inc()
	}

	s.logger.Info("Seeding completed", map[string]interface{}{
		"total":       report.Total,
		"inserted":    report.Inserted,
		"skipped":     report.Skipped,
		"failed":      report.FailedCount(),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return report, nil
}

func (s *Seeder) abort(report *Report, err error) (*Report, error) {
	s.logger.Error("Seeding aborted", map[string]interface{}{
		"processed": report.Processed,
		"inserted":  report.Inserted,
		"skipped":   report.Skipped,
		"failed":    report.FailedCount(),
		"error":     err.Error(),
	})
	return report, fmt.Errorf("seeding stopped after %d of %d records: %w", report.Processed, report.Total, err)
}

type outcome string

const (
	outcomeInserted outcome = "inserted"
	outcomeSkipped  outcome = "skipped"
	outcomeFailed   outcome = "failed"
	outcomeFatal    outcome = "fatal"
)

func (s *Seeder) seedOne(ctx context.Context, rec models.RawSourceRecord) (outcome, error) {
	rec.Title = strings.TrimSpace(rec.Title)
	if err := s.validate.Struct(rec); err != nil {
		return outcomeFailed, fmt.Errorf("invalid record: %w", err)
	}

	// Exists only saves an embedding call; the unique constraint decides
	exists, err := s.repo.Exists(ctx, rec.Title)
	if err != nil {
		return s.classify(ctx, err)
	}
	if exists {
		s.logger.Debug("Skipping existing title", map[string]interface{}{"title": rec.Title})
		return outcomeSkipped, nil
	}

	vec, err := s.provider.Embed(ctx, rec.FullText, embedding.TaskRetrievalDocument)
	if err != nil {
		return s.classify(ctx, fmt.Errorf("embedding failed: %w", err))
	}

	if _, err := s.repo.Insert(ctx, rec.ToSource(vec)); err != nil {
		if errors.Is(err, repository.ErrDuplicateTitle) {
			return outcomeSkipped, nil
		}
		return s.classify(ctx, err)
	}
	return outcomeInserted, nil
}

// classify decides whether err ends the run or only the record
func (s *Seeder) classify(ctx context.Context, err error) (outcome, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return outcomeFatal, ctxErr
	}
	if errors.Is(err, repository.ErrStorageUnavailable) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return outcomeFatal, err
	}
	return outcomeFailed, err
}
