package repository

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/developer-mesh/academic-helper/internal/models"
)

// MemorySourceRepository is an in-process SourceRepository ranking by brute force
type MemorySourceRepository struct {
	mu         sync.RWMutex
	dimensions int
	nextID     int64
	sources    []*models.AcademicSource
	byTitle    map[string]struct{}
}

// NewMemorySourceRepository creates an empty in-memory repository
func NewMemorySourceRepository(dimensions int) *MemorySourceRepository {
	return &MemorySourceRepository{
		dimensions: dimensions,
		byTitle:    make(map[string]struct{}),
	}
}

// Exists reports whether a source with title is stored
func (m *MemorySourceRepository) Exists(ctx context.Context, title string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byTitle[title]
	return ok, nil
}

// Insert stores a copy of source
func (m *MemorySourceRepository) Insert(ctx context.Context, source *models.AcademicSource) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(source.Embedding) != m.dimensions {
		return 0, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, m.dimensions, len(source.Embedding))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byTitle[source.Title]; ok {
		return 0, fmt.Errorf("%w: %q", ErrDuplicateTitle, source.Title)
	}

	m.nextID++
	stored := copySource(source)
	stored.ID = m.nextID
	stored.CreatedAt = time.Now().UTC()
	m.sources = append(m.sources, stored)
	m.byTitle[stored.Title] = struct{}{}

	source.ID = stored.ID
	source.CreatedAt = stored.CreatedAt
	return stored.ID, nil
}

// RankByDistance returns the nearest sources to query
func (m *MemorySourceRepository) RankByDistance(ctx context.Context, query []float32, metric models.DistanceMetric, limit int) ([]*models.AcademicSource, error) {
	if !metric.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMetric, metric)
	}
	if limit <= 0 {
		return []*models.AcademicSource{}, nil
	}
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, m.dimensions, len(query))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	results := make([]*models.AcademicSource, 0, len(m.sources))
	for _, s := range m.sources {
		cp := copySource(s)
		cp.Distance = distance(metric, query, s.Embedding)
		results = append(results, cp)
	}
	m.mu.RUnlock()

	// sources are kept in id order, so a stable sort keeps insertion order on ties
	sort.SliceStable(results, func(i, j int) bool {
		return lessDistance(results[i].Distance, results[j].Distance)
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Count returns the number of stored sources
func (m *MemorySourceRepository) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sources), nil
}

// Ping always succeeds
func (m *MemorySourceRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

// lessDistance orders NaN after every number, as Postgres does
func lessDistance(a, b float64) bool {
	if math.IsNaN(a) {
		return false
	}
	if math.IsNaN(b) {
		return true
	}
	return a < b
}

func distance(metric models.DistanceMetric, a, b []float32) float64 {
	switch metric {
	case models.MetricCosine:
		return cosineDistance(a, b)
	default:
		return l2Distance(a, b)
	}
}

func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// cosineDistance is 1 - cos(a, b). It is NaN when either vector is zero.
func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return math.NaN()
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// rounding can push a self-match just past 1
	sim = math.Max(-1, math.Min(1, sim))
	return 1 - sim
}

func copySource(s *models.AcademicSource) *models.AcademicSource {
	cp := *s
	cp.Embedding = make([]float32, len(s.Embedding))
	copy(cp.Embedding, s.Embedding)
	return &cp
}
