package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/developer-mesh/academic-helper/internal/api"
	"github.com/developer-mesh/academic-helper/internal/auth"
	"github.com/developer-mesh/academic-helper/internal/middleware"
	"github.com/developer-mesh/academic-helper/internal/models"
	"github.com/developer-mesh/academic-helper/internal/observability"
	"github.com/developer-mesh/academic-helper/internal/search"
	"github.com/developer-mesh/academic-helper/internal/seeder"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, logger := globalConfig, globalLogger

	if err := cfg.Auth.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting academic-helper", map[string]interface{}{
		"version":     version,
		"build_time":  buildTime,
		"git_commit":  gitCommit,
		"environment": cfg.Service.Environment,
	})

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.Service.Environment,
		Endpoint:    cfg.Tracing.Endpoint,
	}, logger)
	if err != nil {
		return err
	}
	defer shutdownTracing()

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	c, err := buildCore(ctx, cfg, metrics, logger)
	if err != nil {
		return err
	}
	defer c.close()

	metric, err := models.ParseDistanceMetric(cfg.Search.Metric)
	if err != nil {
		return err
	}
	engine, err := search.NewEngine(c.provider, c.repo, metric, metrics, logger)
	if err != nil {
		return err
	}
	seedRunner := seeder.NewSeeder(c.provider, c.repo, metrics, logger)

	authenticator := auth.NewJWTAuthenticator([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	protected := []gin.HandlerFunc{middleware.RequireIdentity(authenticator, logger)}
	if cfg.RateLimiting.Enabled {
		limiter := middleware.NewClientRateLimiter(middleware.RateLimiterConfig{
			RequestsPerMinute: cfg.RateLimiting.SearchRPM,
			Burst:             cfg.RateLimiting.Burst,
		}, metrics)
		protected = append(protected, limiter.Middleware())
	}

	if cfg.Service.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogger(logger, metrics))

	handler := api.NewHandler(engine, seedRunner, c.repo, seeder.LoadDataset, api.Config{
		DefaultLimit:   cfg.Search.DefaultLimit,
		MaxLimit:       cfg.Search.MaxLimit,
		MaxQueryLength: cfg.Search.MaxQueryLength,
		DatasetPath:    cfg.Seed.DatasetPath,
	}, logger)
	handler.RegisterRoutes(router, protected...)

	apiServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Service.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsServer := startMetricsServer(cfg.Service.MetricsPort, logger)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting API server", map[string]interface{}{
			"port":   cfg.Service.Port,
			"metric": string(metric),
		})
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal", nil)
	case err := <-serverErr:
		logger.Error("API server error", map[string]interface{}{
			"error": err.Error(),
		})
	}

	logger.Info("Starting graceful shutdown", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown API server", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown metrics server", map[string]interface{}{
			"error": err.Error(),
		})
	}

	logger.Info("Shutdown complete", nil)
	return nil
}

// startMetricsServer serves Prometheus metrics and a liveness probe on their own port
func startMetricsServer(port int, logger observability.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting metrics server", map[string]interface{}{
			"port": port,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	return server
}
