// Package config handles configuration for the academic-helper service
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete configuration for the service.
// It is built once at startup and passed into every constructor.
type Config struct {
	Service      ServiceConfig      `mapstructure:"service"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Migrations   MigrationsConfig   `mapstructure:"migrations"`
	Embedding    EmbeddingConfig    `mapstructure:"embedding"`
	Search       SearchConfig       `mapstructure:"search"`
	Seed         SeedConfig         `mapstructure:"seed"`
	Auth         AuthConfig         `mapstructure:"auth"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
}

// ServiceConfig contains service-level configuration
type ServiceConfig struct {
	Port            int           `mapstructure:"port"`
	MetricsPort     int           `mapstructure:"metrics_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	LogLevel        string        `mapstructure:"log_level"`
	Environment     string        `mapstructure:"environment"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
}

// DSN returns the lib/pq connection string. An explicit URL wins over the
// individual fields.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.Username, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   "/" + d.Database,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// StorageConfig selects the source repository backend
type StorageConfig struct {
	Driver string `mapstructure:"driver"` // postgres or memory
}

// MigrationsConfig controls schema bootstrap at startup
type MigrationsConfig struct {
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// EmbeddingConfig contains embedding provider settings
type EmbeddingConfig struct {
	Provider       string               `mapstructure:"provider"` // google or mock
	APIKey         string               `mapstructure:"api_key"`
	BaseURL        string               `mapstructure:"base_url"`
	Model          string               `mapstructure:"model"`
	Dimensions     int                  `mapstructure:"dimensions"`
	RequestTimeout time.Duration        `mapstructure:"request_timeout"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// CircuitBreakerConfig contains circuit breaker settings
type CircuitBreakerConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	FailureThreshold    int           `mapstructure:"failure_threshold"`
	Timeout             time.Duration `mapstructure:"timeout"`
	Interval            time.Duration `mapstructure:"interval"`
	HalfOpenMaxRequests int           `mapstructure:"half_open_max_requests"`
}

// SearchConfig contains similarity search settings
type SearchConfig struct {
	Metric         string `mapstructure:"metric"`
	DefaultLimit   int    `mapstructure:"default_limit"`
	MaxLimit       int    `mapstructure:"max_limit"`
	MaxQueryLength int    `mapstructure:"max_query_length"`
}

// SeedConfig contains seeding settings
type SeedConfig struct {
	DatasetPath string `mapstructure:"dataset_path"`
}

// AuthConfig contains identity token settings
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// ErrMissingJWTSecret is returned when an auth-dependent command runs without a secret
var ErrMissingJWTSecret = errors.New("auth.jwt_secret (JWT_SECRET) is required")

// Validate checks the auth section. It is separate from Load because only
// the serve and token commands need a signing secret.
func (a AuthConfig) Validate() error {
	if a.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	if len(a.JWTSecret) < 16 {
		return fmt.Errorf("auth.jwt_secret must be at least 16 characters")
	}
	if a.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	return nil
}

// RateLimitingConfig contains rate limiting settings
type RateLimitingConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	SearchRPM int  `mapstructure:"search_rpm"`
	Burst     int  `mapstructure:"burst"`
}

// TracingConfig contains OpenTelemetry export settings
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

// Load loads configuration from defaults, an optional YAML file, and the
// environment. An empty path searches the standard config directories.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("academic-helper")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/academic-helper")
	}

	setDefaults(v)
	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine when searching; defaults and env still apply
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	normalize(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	// Service defaults
	v.SetDefault("service.port", 8000)
	v.SetDefault("service.metrics_port", 9090)
	v.SetDefault("service.shutdown_timeout", "30s")
	v.SetDefault("service.log_level", "info")
	v.SetDefault("service.environment", "development")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "academic_helper")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.connect_timeout", "30s")
	v.SetDefault("database.query_timeout", "5s")

	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("migrations.auto_migrate", true)

	// Embedding defaults
	v.SetDefault("embedding.provider", "google")
	v.SetDefault("embedding.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("embedding.model", "gemini-embedding-001")
	v.SetDefault("embedding.dimensions", 768)
	v.SetDefault("embedding.request_timeout", "10s")
	v.SetDefault("embedding.circuit_breaker.enabled", true)
	v.SetDefault("embedding.circuit_breaker.failure_threshold", 5)
	v.SetDefault("embedding.circuit_breaker.timeout", "30s")
	v.SetDefault("embedding.circuit_breaker.interval", "60s")
	v.SetDefault("embedding.circuit_breaker.half_open_max_requests", 1)

	// Search defaults
	v.SetDefault("search.metric", "l2")
	v.SetDefault("search.default_limit", 3)
	v.SetDefault("search.max_limit", 50)
	v.SetDefault("search.max_query_length", 2000)

	v.SetDefault("seed.dataset_path", "data/sample_academic_sources.json")

	// Auth defaults
	v.SetDefault("auth.issuer", "academic-helper")
	v.SetDefault("auth.token_ttl", "24h")

	// Rate limiting defaults
	v.SetDefault("rate_limiting.enabled", true)
	v.SetDefault("rate_limiting.search_rpm", 120)
	v.SetDefault("rate_limiting.burst", 10)

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.service_name", "academic-helper")
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars(v *viper.Viper) {
	// Service bindings
	_ = v.BindEnv("service.port", "SERVICE_PORT")
	_ = v.BindEnv("service.metrics_port", "METRICS_PORT")
	_ = v.BindEnv("service.log_level", "LOG_LEVEL")
	_ = v.BindEnv("service.environment", "ENVIRONMENT")

	// Database bindings
	_ = v.BindEnv("database.url", "DATABASE_URL")
	_ = v.BindEnv("database.host", "DATABASE_HOST")
	_ = v.BindEnv("database.port", "DATABASE_PORT")
	_ = v.BindEnv("database.database", "DATABASE_NAME")
	_ = v.BindEnv("database.username", "DATABASE_USER")
	_ = v.BindEnv("database.password", "DATABASE_PASSWORD")
	_ = v.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	_ = v.BindEnv("storage.driver", "STORAGE_DRIVER")

	// Embedding bindings
	_ = v.BindEnv("embedding.provider", "EMBEDDING_PROVIDER")
	_ = v.BindEnv("embedding.api_key", "GEMINI_API_KEY")
	_ = v.BindEnv("embedding.base_url", "GEMINI_BASE_URL")

	_ = v.BindEnv("search.metric", "SEARCH_METRIC")
	_ = v.BindEnv("seed.dataset_path", "SEED_DATASET_PATH")

	// Auth bindings
	_ = v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("auth.issuer", "JWT_ISSUER")

	_ = v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	_ = v.BindEnv("tracing.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func normalize(cfg *Config) {
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	cfg.Embedding.Provider = strings.ToLower(strings.TrimSpace(cfg.Embedding.Provider))
	cfg.Search.Metric = strings.ToLower(strings.TrimSpace(cfg.Search.Metric))
	cfg.Embedding.BaseURL = strings.TrimRight(cfg.Embedding.BaseURL, "/")
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Service.Port <= 0 || cfg.Service.Port > 65535 {
		return fmt.Errorf("invalid service port: %d", cfg.Service.Port)
	}
	if cfg.Service.MetricsPort <= 0 || cfg.Service.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Service.MetricsPort)
	}
	if cfg.Service.MetricsPort == cfg.Service.Port {
		return fmt.Errorf("metrics port must differ from service port: %d", cfg.Service.Port)
	}

	switch cfg.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("invalid storage driver: %q", cfg.Storage.Driver)
	}

	switch cfg.Embedding.Provider {
	case "google":
		if cfg.Embedding.APIKey == "" {
			return fmt.Errorf("embedding.api_key (GEMINI_API_KEY) is required for the google provider")
		}
	case "mock":
	default:
		return fmt.Errorf("invalid embedding provider: %q", cfg.Embedding.Provider)
	}
	if cfg.Embedding.Dimensions <= 0 {
		return fmt.Errorf("invalid embedding dimensions: %d", cfg.Embedding.Dimensions)
	}
	if cfg.Embedding.RequestTimeout <= 0 {
		return fmt.Errorf("embedding.request_timeout must be positive")
	}

	switch cfg.Search.Metric {
	case "l2", "cosine":
	default:
		return fmt.Errorf("invalid search metric: %q (want l2 or cosine)", cfg.Search.Metric)
	}
	if cfg.Search.MaxLimit <= 0 {
		return fmt.Errorf("invalid search max_limit: %d", cfg.Search.MaxLimit)
	}
	if cfg.Search.DefaultLimit < 0 || cfg.Search.DefaultLimit > cfg.Search.MaxLimit {
		return fmt.Errorf("search default_limit %d outside 0..%d", cfg.Search.DefaultLimit, cfg.Search.MaxLimit)
	}

	if cfg.RateLimiting.Enabled && (cfg.RateLimiting.SearchRPM <= 0 || cfg.RateLimiting.Burst <= 0) {
		return fmt.Errorf("rate limiting requires positive search_rpm and burst")
	}

	if cfg.Seed.DatasetPath == "" {
		return fmt.Errorf("seed.dataset_path is required")
	}

	return nil
}
