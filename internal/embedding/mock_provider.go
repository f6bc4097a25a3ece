package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// MockProvider implements Provider with deterministic vectors. The same text
// always yields the same unit vector, which makes it usable for local runs
// without a Gemini key as well as for tests.
type MockProvider struct {
	mu         sync.Mutex
	dimensions int
	fixed      map[string][]float32
	err        error
	failAfter  int
	latency    time.Duration

	calls []MockCall
}

// MockCall records one Embed invocation
type MockCall struct {
	Text string
	Task TaskType
}

// MockProviderOption configures a MockProvider
type MockProviderOption func(*MockProvider)

// WithVector pins the vector returned for text
func WithVector(text string, vec []float32) MockProviderOption {
	return func(m *MockProvider) {
		m.fixed[text] = vec
	}
}

// WithError makes every call fail with err
func WithError(err error) MockProviderOption {
	return func(m *MockProvider) {
		m.err = err
	}
}

// WithFailAfter makes calls after the first n fail with ErrProviderUnavailable
func WithFailAfter(n int) MockProviderOption {
	return func(m *MockProvider) {
		m.failAfter = n
	}
}

// WithLatency delays every call, honouring context cancellation
func WithLatency(d time.Duration) MockProviderOption {
	return func(m *MockProvider) {
		m.latency = d
	}
}

// NewMockProvider creates a mock provider of the given dimension
func NewMockProvider(dimensions int, opts ...MockProviderOption) *MockProvider {
	m := &MockProvider{
		dimensions: dimensions,
		fixed:      make(map[string][]float32),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name returns the provider name
func (m *MockProvider) Name() string {
	return "mock"
}

// Dimensions returns the vector length
func (m *MockProvider) Dimensions() int {
	return m.dimensions
}

// Embed returns the pinned vector for text or a hash-seeded unit vector
func (m *MockProvider) Embed(ctx context.Context, text string, task TaskType) ([]float32, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Text: text, Task: task})
	n := len(m.calls)
	latency := m.latency
	m.mu.Unlock()

	if latency > 0 {
		select {
		case <-ctx.Done():
			return nil, unavailable(m.Name(), "TIMEOUT", ctx.Err().Error(), 0)
		case <-time.After(latency):
		}
	}

	if m.err != nil {
		return nil, m.err
	}
	if m.failAfter > 0 && n > m.failAfter {
		return nil, unavailable(m.Name(), "MOCK_FAILURE", "simulated failure", 503)
	}
	if strings.TrimSpace(text) == "" {
		return nil, rejected(m.Name(), "EMPTY_INPUT", "text must not be empty", 0)
	}

	if vec, ok := m.fixed[text]; ok {
		out := make([]float32, len(vec))
		copy(out, vec)
		return out, nil
	}
	return hashVector(text, m.dimensions), nil
}

// Calls returns a copy of the recorded calls
func (m *MockProvider) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times Embed was called
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func hashVector(text string, dims int) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	vec := make([]float32, dims)
	var norm float64
	for i := range vec {
		v := rng.NormFloat64()
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
