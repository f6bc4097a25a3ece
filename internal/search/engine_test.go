package search

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/developer-mesh/academic-helper/internal/embedding"
	"github.com/developer-mesh/academic-helper/internal/models"
	"github.com/developer-mesh/academic-helper/internal/observability"
	"github.com/developer-mesh/academic-helper/internal/repository"
)

// stubRepo records RankByDistance calls and can fail on demand
type stubRepo struct {
	repository.SourceRepository
	err        error
	lastMetric models.DistanceMetric
	calls      int
}

func (s *stubRepo) RankByDistance(ctx context.Context, query []float32, metric models.DistanceMetric, limit int) ([]*models.AcademicSource, error) {
	s.calls++
	s.lastMetric = metric
	if s.err != nil {
		return nil, s.err
	}
	return []*models.AcademicSource{}, nil
}

var corpus = []struct {
	title string
	vec   []float32
}{
	{"A", []float32{1, 0, 0}},
	{"B", []float32{0, 1, 0}},
	{"C", []float32{0, 0, 1}},
	{"D", []float32{0.6, 0.8, 0}},
	{"E", []float32{0.3, 0.3, 0.9}},
}

func seededRepo(t *testing.T, n int) *repository.MemorySourceRepository {
	t.Helper()
	repo := repository.NewMemorySourceRepository(3)
	for _, c := range corpus[:n] {
		_, err := repo.Insert(context.Background(), &models.AcademicSource{
			Title:     c.title,
			FullText:  c.title + " body",
			Embedding: c.vec,
		})
		require.NoError(t, err)
	}
	return repo
}

func TestEngine_SelfMatchRanksFirst(t *testing.T) {
	for _, metric := range []models.DistanceMetric{models.MetricL2, models.MetricCosine} {
		t.Run(string(metric), func(t *testing.T) {
			provider := embedding.NewMockProvider(3, embedding.WithVector("query about A", corpus[0].vec))
			engine, err := NewEngine(provider, seededRepo(t, 3), metric, nil, nil)
			require.NoError(t, err)

			results, err := engine.Search(context.Background(), "query about A", 3)
			require.NoError(t, err)
			require.Len(t, results, 3)
			assert.Equal(t, "A", results[0].Title)
			assert.InDelta(t, 0, results[0].Distance, 1e-9)

			calls := provider.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, embedding.TaskRetrievalQuery, calls[0].Task)
		})
	}
}

func TestEngine_LimitSemantics(t *testing.T) {
	tests := []struct {
		name      string
		corpus    int
		limit     int
		want      int
		wantCalls int
	}{
		{name: "limit below corpus", corpus: 5, limit: 3, want: 3, wantCalls: 1},
		{name: "limit above corpus", corpus: 2, limit: 3, want: 2, wantCalls: 1},
		{name: "zero limit", corpus: 5, limit: 0, want: 0, wantCalls: 0},
		{name: "negative limit", corpus: 5, limit: -1, want: 0, wantCalls: 0},
		{name: "empty corpus", corpus: 0, limit: 3, want: 0, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := embedding.NewMockProvider(3)
			engine, err := NewEngine(provider, seededRepo(t, tt.corpus), models.MetricL2, nil, nil)
			require.NoError(t, err)

			results, err := engine.Search(context.Background(), "anything", tt.limit)
			require.NoError(t, err)
			assert.NotNil(t, results)
			assert.Len(t, results, tt.want)
			assert.Equal(t, tt.wantCalls, provider.CallCount())
		})
	}
}

func TestEngine_ProviderFailurePropagates(t *testing.T) {
	for _, kind := range []error{embedding.ErrProviderUnavailable, embedding.ErrProviderRejected} {
		t.Run(kind.Error(), func(t *testing.T) {
			provider := embedding.NewMockProvider(3, embedding.WithError(fmt.Errorf("upstream: %w", kind)))
			repo := &stubRepo{}
			metrics := observability.NewTestMetrics()
			engine, err := NewEngine(provider, repo, models.MetricL2, metrics, nil)
			require.NoError(t, err)

			results, err := engine.Search(context.Background(), "query", 3)
			assert.ErrorIs(t, err, kind)
			assert.Nil(t, results)
			assert.Equal(t, 0, repo.calls, "ranking must not run after an embedding failure")
			assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SearchErrors.WithLabelValues(errorKind(err))))
		})
	}
}

func TestEngine_StorageFailurePropagates(t *testing.T) {
	repo := &stubRepo{err: fmt.Errorf("rank: %w", repository.ErrStorageUnavailable)}
	engine, err := NewEngine(embedding.NewMockProvider(3), repo, models.MetricCosine, nil, nil)
	require.NoError(t, err)

	results, err := engine.Search(context.Background(), "query", 3)
	assert.True(t, errors.Is(err, repository.ErrStorageUnavailable))
	assert.Nil(t, results)
	assert.Equal(t, models.MetricCosine, repo.lastMetric)
}

func TestNewEngine_RejectsUnknownMetric(t *testing.T) {
	_, err := NewEngine(embedding.NewMockProvider(3), &stubRepo{}, models.DistanceMetric("dot"), nil, nil)
	assert.ErrorIs(t, err, repository.ErrInvalidMetric)
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "storage_unavailable", errorKind(repository.ErrStorageUnavailable))
	assert.Equal(t, "canceled", errorKind(context.Canceled))
	assert.Equal(t, "internal", errorKind(errors.New("boom")))
}
