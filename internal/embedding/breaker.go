package embedding

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/developer-mesh/academic-helper/internal/observability"
)

// BreakerConfig configures the circuit breaker around a provider
type BreakerConfig struct {
	Name             string
	FailureThreshold int
	Timeout          time.Duration
	Interval         time.Duration
	HalfOpenRequests int
}

// BreakerProvider fails fast once the wrapped provider keeps failing.
// Only availability failures trip it; rejected input says nothing about
// provider health. It never retries.
type BreakerProvider struct {
	inner   Provider
	cb      *gobreaker.CircuitBreaker
	metrics *observability.Metrics
	logger  observability.Logger
}

// NewBreakerProvider wraps inner in a circuit breaker
func NewBreakerProvider(inner Provider, config BreakerConfig, metrics *observability.Metrics, logger observability.Logger) *BreakerProvider {
	if config.Name == "" {
		config.Name = "embedding-" + inner.Name()
	}
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.HalfOpenRequests <= 0 {
		config.HalfOpenRequests = 1
	}
	if metrics == nil {
		metrics = observability.NewTestMetrics()
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	logger = logger.WithPrefix("embedding-breaker")

	threshold := uint32(config.FailureThreshold)
	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: uint32(config.HalfOpenRequests),
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Only provider unavailability counts against the breaker. Rejected
		// input and caller cancellation carry no ErrProviderUnavailable.
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrProviderUnavailable)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			logger.Warn("Circuit breaker state changed", map[string]interface{}{
				"name": name,
				"from": from.String(),
				"to":   to.String(),
			})
		},
	}
	metrics.BreakerState.WithLabelValues(config.Name).Set(float64(gobreaker.StateClosed))

	return &BreakerProvider{
		inner:   inner,
		cb:      gobreaker.NewCircuitBreaker(settings),
		metrics: metrics,
		logger:  logger,
	}
}

// Name returns the wrapped provider's name
func (b *BreakerProvider) Name() string {
	return b.inner.Name()
}

// Dimensions returns the wrapped provider's dimension
func (b *BreakerProvider) Dimensions() int {
	return b.inner.Dimensions()
}

// State returns the current breaker state
func (b *BreakerProvider) State() gobreaker.State {
	return b.cb.State()
}

// Embed forwards to the wrapped provider unless the breaker is open
func (b *BreakerProvider) Embed(ctx context.Context, text string, task TaskType) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Embed(ctx, text, task)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, unavailable(b.inner.Name(), "CIRCUIT_OPEN", err.Error(), 0)
		}
		return nil, err
	}
	return result.([]float32), nil
}
