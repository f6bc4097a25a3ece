package embedding

import (
	"fmt"

	"github.com/developer-mesh/academic-helper/internal/config"
	"github.com/developer-mesh/academic-helper/internal/observability"
)

// NewFromConfig builds the configured provider, wrapped in a circuit breaker
// when enabled.
func NewFromConfig(cfg config.EmbeddingConfig, metrics *observability.Metrics, logger observability.Logger) (Provider, error) {
	var provider Provider
	switch cfg.Provider {
	case "google":
		p, err := NewGoogleProvider(GoogleConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.RequestTimeout,
		}, metrics, logger)
		if err != nil {
			return nil, err
		}
		provider = p
	case "mock":
		provider = NewMockProvider(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	if !cfg.CircuitBreaker.Enabled {
		return provider, nil
	}
	return NewBreakerProvider(provider, BreakerConfig{
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		Timeout:          cfg.CircuitBreaker.Timeout,
		Interval:         cfg.CircuitBreaker.Interval,
		HalfOpenRequests: cfg.CircuitBreaker.HalfOpenMaxRequests,
	}, metrics, logger), nil
}
