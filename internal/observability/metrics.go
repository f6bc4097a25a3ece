package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service
type Metrics struct {
	// Search metrics
	SearchRequests    prometheus.Counter
	SearchErrors      *prometheus.CounterVec
	SearchDuration    prometheus.Histogram
	SearchResultCount prometheus.Histogram

	// Embedding metrics
	EmbeddingRequests *prometheus.CounterVec
	EmbeddingDuration prometheus.Histogram
	BreakerState      *prometheus.GaugeVec

	// Seeding metrics
	SeedRecords  *prometheus.CounterVec
	SeedDuration prometheus.Histogram

	// HTTP metrics
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	RateLimitDenied prometheus.Counter
}

// NewMetrics creates the service metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SearchRequests: f.NewCounter(prometheus.CounterOpts{
			Name: "academic_search_requests_total",
			Help: "Total number of similarity search requests",
		}),
		SearchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "academic_search_errors_total",
			Help: "Total number of failed similarity searches by error kind",
		}, []string{"kind"}),
		SearchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "academic_search_duration_seconds",
			Help:    "Duration of similarity searches in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
		}),
		SearchResultCount: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "academic_search_result_count",
			Help:    "Number of results returned per search",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 20, 50},
		}),
		EmbeddingRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "academic_embedding_requests_total",
			Help: "Embedding provider calls by provider and outcome",
		}, []string{"provider", "outcome"}),
		EmbeddingDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "academic_embedding_duration_seconds",
			Help:    "Duration of embedding provider calls in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),
		BreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "academic_embedding_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		}, []string{"name"}),
		SeedRecords: f.NewCounterVec(prometheus.CounterOpts{
			Name: "academic_seed_records_total",
			Help: "Seed records by outcome (inserted, skipped, failed)",
		}, []string{"outcome"}),
		SeedDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "academic_seed_duration_seconds",
			Help:    "Duration of seed runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7min
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "academic_http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "academic_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		RateLimitDenied: f.NewCounter(prometheus.CounterOpts{
			Name: "academic_rate_limit_denied_total",
			Help: "Requests rejected by the rate limiter",
		}),
	}
}

// NewTestMetrics returns metrics registered against a private registry
func NewTestMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
