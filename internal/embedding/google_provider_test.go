package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/developer-mesh/academic-helper/internal/observability"
)

func newTestGoogleProvider(t *testing.T, url string, dims int, timeout time.Duration) *GoogleProvider {
	t.Helper()
	p, err := NewGoogleProvider(GoogleConfig{
		APIKey:     "test-key",
		BaseURL:    url,
		Dimensions: dims,
		Timeout:    timeout,
	}, observability.NewTestMetrics(), observability.NewNoopLogger())
	require.NoError(t, err)
	return p
}

func TestGoogleProvider_Embed(t *testing.T) {
	var got googleEmbeddingRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/models/gemini-embedding-001:embedContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embedding":{"values":[0.1,0.2,0.3]}}`))
	}))
	defer server.Close()

	p := newTestGoogleProvider(t, server.URL, 3, time.Second)
	vec, err := p.Embed(context.Background(), "graph neural networks", TaskRetrievalDocument)
	require.NoError(t, err)

	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, "models/gemini-embedding-001", got.Model)
	require.Len(t, got.Content.Parts, 1)
	assert.Equal(t, "graph neural networks", got.Content.Parts[0].Text)
	assert.Equal(t, TaskRetrievalDocument, got.TaskType)
	assert.Equal(t, 3, got.OutputDimensionality)
}

func TestGoogleProvider_StatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind error
		wantCode string
	}{
		{"bad request", http.StatusBadRequest, `{"error":{"code":400,"message":"input too long","status":"INVALID_ARGUMENT"}}`, ErrProviderRejected, "INVALID_ARGUMENT"},
		{"payload too large", http.StatusRequestEntityTooLarge, `too big`, ErrProviderRejected, "UNKNOWN_ERROR"},
		{"unauthorized", http.StatusUnauthorized, `{"error":{"code":401,"message":"bad key","status":"UNAUTHENTICATED"}}`, ErrProviderUnavailable, "UNAUTHENTICATED"},
		{"forbidden", http.StatusForbidden, `{}`, ErrProviderUnavailable, "UNKNOWN_ERROR"},
		{"quota", http.StatusTooManyRequests, `{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`, ErrProviderUnavailable, "RESOURCE_EXHAUSTED"},
		{"server error", http.StatusInternalServerError, `oops`, ErrProviderUnavailable, "UNKNOWN_ERROR"},
		{"bad gateway", http.StatusBadGateway, ``, ErrProviderUnavailable, "UNKNOWN_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			p := newTestGoogleProvider(t, server.URL, 3, time.Second)
			_, err := p.Embed(context.Background(), "text", TaskRetrievalQuery)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantKind)

			var perr *ProviderError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.status, perr.StatusCode)
			assert.Equal(t, tt.wantCode, perr.Code)
		})
	}
}

func TestGoogleProvider_DimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":{"values":[0.1,0.2]}}`))
	}))
	defer server.Close()

	p := newTestGoogleProvider(t, server.URL, 768, time.Second)
	_, err := p.Embed(context.Background(), "text", TaskRetrievalQuery)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderUnavailable)

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "DIMENSION_MISMATCH", perr.Code)
}

func TestGoogleProvider_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()

	p := newTestGoogleProvider(t, server.URL, 3, time.Second)
	_, err := p.Embed(context.Background(), "text", TaskRetrievalQuery)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestGoogleProvider_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	p := newTestGoogleProvider(t, server.URL, 3, 50*time.Millisecond)

	start := time.Now()
	_, err := p.Embed(context.Background(), "slow", TaskRetrievalQuery)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestGoogleProvider_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	p := newTestGoogleProvider(t, url, 3, time.Second)
	_, err := p.Embed(context.Background(), "text", TaskRetrievalQuery)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestGoogleProvider_EmptyTextSkipsNetwork(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer server.Close()

	p := newTestGoogleProvider(t, server.URL, 3, time.Second)
	_, err := p.Embed(context.Background(), "   ", TaskRetrievalQuery)
	assert.ErrorIs(t, err, ErrProviderRejected)
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestGoogleProvider_NoRetry(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := newTestGoogleProvider(t, server.URL, 3, time.Second)
	_, err := p.Embed(context.Background(), "text", TaskRetrievalQuery)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestNewGoogleProvider_Validation(t *testing.T) {
	_, err := NewGoogleProvider(GoogleConfig{Dimensions: 3}, nil, nil)
	assert.Error(t, err)

	_, err = NewGoogleProvider(GoogleConfig{APIKey: "k"}, nil, nil)
	assert.Error(t, err)

	p, err := NewGoogleProvider(GoogleConfig{APIKey: "k", Dimensions: 768}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "google", p.Name())
	assert.Equal(t, 768, p.Dimensions())
}

func TestGoogleProvider_CallerCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	p := newTestGoogleProvider(t, server.URL, 3, 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Embed(ctx, "slow", TaskRetrievalQuery)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, errors.Is(err, ErrProviderUnavailable))

	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	_, err = p.Embed(ctx, "slow", TaskRetrievalQuery)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrProviderUnavailable))
}
