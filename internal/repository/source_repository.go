// Package repository stores academic sources and ranks them by vector distance
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"github.com/developer-mesh/academic-helper/internal/models"
)

// SourceRepository is the durable store for academic sources
type SourceRepository interface {
	// Exists reports whether a source with title is stored
	Exists(ctx context.Context, title string) (bool, error)
	// Insert stores source and returns its id. A title that is already
	// stored yields ErrDuplicateTitle, even under concurrent inserts.
	Insert(ctx context.Context, source *models.AcademicSource) (int64, error)
	// RankByDistance returns up to limit sources nearest to query under
	// metric, ties broken by insertion order.
	RankByDistance(ctx context.Context, query []float32, metric models.DistanceMetric, limit int) ([]*models.AcademicSource, error)
	// Count returns the number of stored sources
	Count(ctx context.Context) (int, error)
	// Ping verifies the store is reachable
	Ping(ctx context.Context) error
}

// PostgresSourceRepository implements SourceRepository on PostgreSQL with pgvector
type PostgresSourceRepository struct {
	db           *sqlx.DB
	dimensions   int
	queryTimeout time.Duration
}

// NewPostgresSourceRepository creates a repository whose vectors must have
// exactly dimensions components. A zero queryTimeout leaves deadlines to the caller.
func NewPostgresSourceRepository(db *sqlx.DB, dimensions int, queryTimeout time.Duration) *PostgresSourceRepository {
	return &PostgresSourceRepository{
		db:           db,
		dimensions:   dimensions,
		queryTimeout: queryTimeout,
	}
}

type sourceRow struct {
	ID              int64           `db:"id"`
	Title           string          `db:"title"`
	Authors         string          `db:"authors"`
	PublicationYear int             `db:"publication_year"`
	Abstract        string          `db:"abstract"`
	FullText        string          `db:"full_text"`
	SourceType      string          `db:"source_type"`
	Embedding       pgvector.Vector `db:"embedding"`
	CreatedAt       time.Time       `db:"created_at"`
	Distance        float64         `db:"distance"`
}

func (r sourceRow) toModel() *models.AcademicSource {
	return &models.AcademicSource{
		ID:              r.ID,
		Title:           r.Title,
		Authors:         r.Authors,
		PublicationYear: r.PublicationYear,
		Abstract:        r.Abstract,
		FullText:        r.FullText,
		SourceType:      r.SourceType,
		Embedding:       r.Embedding.Slice(),
		CreatedAt:       r.CreatedAt,
		Distance:        r.Distance,
	}
}

func (r *PostgresSourceRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.queryTimeout)
}

// Exists reports whether a source with title is stored
func (r *PostgresSourceRepository) Exists(ctx context.Context, title string) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM academic_sources WHERE title = $1)`
	if err := r.db.GetContext(ctx, &exists, query, title); err != nil {
		return false, fmt.Errorf("failed to check source existence: %w", classifyError(err))
	}
	return exists, nil
}

// Insert stores source. The unique constraint on title is the arbiter.
func (r *PostgresSourceRepository) Insert(ctx context.Context, source *models.AcademicSource) (int64, error) {
	if len(source.Embedding) != r.dimensions {
		return 0, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, r.dimensions, len(source.Embedding))
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO academic_sources (
			title, authors, publication_year, abstract, full_text, source_type, embedding
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (title) DO NOTHING
		RETURNING id, created_at`

	var id int64
	var createdAt time.Time
	err := r.db.QueryRowxContext(ctx, query,
		source.Title,
		source.Authors,
		source.PublicationYear,
		source.Abstract,
		source.FullText,
		source.SourceType,
		pgvector.NewVector(source.Embedding),
	).Scan(&id, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %q", ErrDuplicateTitle, source.Title)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert source: %w", classifyError(err))
	}

	source.ID = id
	source.CreatedAt = createdAt
	return id, nil
}

// distanceOperator returns the pgvector operator for metric
func distanceOperator(metric models.DistanceMetric) (string, error) {
	switch metric {
	case models.MetricL2:
		return "<->", nil
	case models.MetricCosine:
		return "<=>", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMetric, metric)
	}
}

// RankByDistance returns the nearest sources to query
func (r *PostgresSourceRepository) RankByDistance(ctx context.Context, query []float32, metric models.DistanceMetric, limit int) ([]*models.AcademicSource, error) {
	op, err := distanceOperator(metric)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []*models.AcademicSource{}, nil
	}
	if len(query) != r.dimensions {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, r.dimensions, len(query))
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	// op comes from a closed set, never from input
	sqlQuery := fmt.Sprintf(`
		SELECT id, title, authors, publication_year, abstract, full_text, source_type,
			embedding, created_at, embedding %s $1 AS distance
		FROM academic_sources
		ORDER BY embedding %s $1 ASC, id ASC
		LIMIT $2`, op, op)

	var rows []sourceRow
	if err := r.db.SelectContext(ctx, &rows, sqlQuery, pgvector.NewVector(query), limit); err != nil {
		return nil, fmt.Errorf("failed to rank sources: %w", classifyError(err))
	}

	results := make([]*models.AcademicSource, 0, len(rows))
	for _, row := range rows {
		results = append(results, row.toModel())
	}
	return results, nil
}

// Count returns the number of stored sources
func (r *PostgresSourceRepository) Count(ctx context.Context) (int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM academic_sources`); err != nil {
		return 0, fmt.Errorf("failed to count sources: %w", classifyError(err))
	}
	return count, nil
}

// Ping verifies the database is reachable
func (r *PostgresSourceRepository) Ping(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", classifyError(err))
	}
	return nil
}

// ColumnDimensions returns the declared dimension of the embedding column,
// or 0 when the column has no fixed dimension.
func (r *PostgresSourceRepository) ColumnDimensions(ctx context.Context) (int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var typmod int
	query := `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = 'academic_sources'::regclass AND attname = 'embedding'`
	if err := r.db.GetContext(ctx, &typmod, query); err != nil {
		return 0, fmt.Errorf("failed to read embedding column dimension: %w", classifyError(err))
	}
	if typmod < 0 {
		return 0, nil
	}
	return typmod, nil
}

// VerifyDimensions fails when the column dimension differs from the
// repository dimension.
func (r *PostgresSourceRepository) VerifyDimensions(ctx context.Context) error {
	dims, err := r.ColumnDimensions(ctx)
	if err != nil {
		return err
	}
	if dims != r.dimensions {
		return fmt.Errorf("%w: column has %d, configured %d", ErrDimensionMismatch, dims, r.dimensions)
	}
	return nil
}
