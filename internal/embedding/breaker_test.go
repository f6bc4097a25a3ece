package embedding

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerProvider_OpensOnUnavailable(t *testing.T) {
	inner := NewMockProvider(4, WithError(unavailable("mock", "DOWN", "down", 503)))
	b := NewBreakerProvider(inner, BreakerConfig{FailureThreshold: 2, Timeout: time.Minute}, nil, nil)

	for i := 0; i < 2; i++ {
		_, err := b.Embed(context.Background(), "q", TaskRetrievalQuery)
		assert.ErrorIs(t, err, ErrProviderUnavailable)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	// Open breaker fails fast without reaching the provider
	_, err := b.Embed(context.Background(), "q", TaskRetrievalQuery)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, 2, inner.CallCount())
}

func TestBreakerProvider_RejectedDoesNotTrip(t *testing.T) {
	inner := NewMockProvider(4, WithError(rejected("mock", "INVALID_ARGUMENT", "too long", 400)))
	b := NewBreakerProvider(inner, BreakerConfig{FailureThreshold: 1, Timeout: time.Minute}, nil, nil)

	for i := 0; i < 3; i++ {
		_, err := b.Embed(context.Background(), "q", TaskRetrievalQuery)
		assert.ErrorIs(t, err, ErrProviderRejected)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
	assert.Equal(t, 3, inner.CallCount())
}

func TestBreakerProvider_PassesThrough(t *testing.T) {
	inner := NewMockProvider(3, WithVector("q", []float32{1, 0, 0}))
	b := NewBreakerProvider(inner, BreakerConfig{}, nil, nil)

	vec, err := b.Embed(context.Background(), "q", TaskRetrievalQuery)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, vec)
	assert.Equal(t, "mock", b.Name())
	assert.Equal(t, 3, b.Dimensions())
}

func TestBreakerProvider_CallerCancellationDoesNotTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), "slow") {
			<-r.Context().Done()
			return
		}
		_, _ = w.Write([]byte(`{"embedding":{"values":[0.1,0.2,0.3]}}`))
	}))
	defer server.Close()

	inner := newTestGoogleProvider(t, server.URL, 3, 5*time.Second)
	b := NewBreakerProvider(inner, BreakerConfig{FailureThreshold: 2, Timeout: time.Minute}, nil, nil)

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		_, err := b.Embed(ctx, "slow", TaskRetrievalQuery)
		cancel()
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())

	// Already cancelled callers never reach the breaker
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Embed(ctx, "fast", TaskRetrievalQuery)
	assert.ErrorIs(t, err, context.Canceled)

	vec, err := b.Embed(context.Background(), "fast", TaskRetrievalQuery)
	require.NoError(t, err)
	assert.Len(t, vec, 3)
}
