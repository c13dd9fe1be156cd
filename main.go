// Command deepresearch runs the research orchestration service: the
// consumer HTTP API, the streaming endpoints, and the Temporal worker that
// executes research runs.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/meridianlabs-ai/deepresearch/internal/activities"
	"github.com/meridianlabs-ai/deepresearch/internal/config"
	"github.com/meridianlabs-ai/deepresearch/internal/db"
	"github.com/meridianlabs-ai/deepresearch/internal/health"
	"github.com/meridianlabs-ai/deepresearch/internal/httpapi"
	"github.com/meridianlabs-ai/deepresearch/internal/llm"
	"github.com/meridianlabs-ai/deepresearch/internal/registry"
	"github.com/meridianlabs-ai/deepresearch/internal/state"
	"github.com/meridianlabs-ai/deepresearch/internal/streaming"
	"github.com/meridianlabs-ai/deepresearch/internal/tools"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("deepresearch: %v", err)
	}
}

func run() error {
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := buildLogger(cfg.Service.LogLevel)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("Starting deepresearch service",
		zap.Int("http_port", cfg.Service.HTTPPort),
		zap.Int("metrics_port", cfg.Service.MetricsPort),
		zap.String("model", cfg.LLM.Model),
	)

	// Hot-reloadable research tunables; new runs pick up changes at submit.
	tuning := func() config.ResearchConfig { return cfg.Research }
	if configPath != "" {
		mgr, err := config.NewManager(configPath, cfg, logger)
		if err != nil {
			logger.Warn("Config watcher unavailable, tunables frozen", zap.Error(err))
		} else if err := mgr.Start(); err != nil {
			logger.Warn("Config watcher start failed, tunables frozen", zap.Error(err))
			mgr.Stop()
		} else {
			defer mgr.Stop()
			tuning = mgr.Research
		}
	}

	// Redis state store.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	states := state.NewStore(rdb, cfg.Redis.StateTTL, logger)

	// Postgres is optional; runs work without durable history.
	var dbc *db.Client
	if cfg.Database.Enabled {
		dbc, err = db.NewClient(cfg.Database, logger)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer dbc.Close()
	} else {
		logger.Info("Database persistence disabled")
	}

	stream := streaming.NewManager(cfg.Streaming.RingCapacity)
	gateway := tools.NewGateway(cfg.Tools, cfg.Research.MaxSearchResults, logger)
	llmClient := llm.NewHTTPClient(cfg.LLM, logger)

	// Temporal client and worker.
	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		return fmt.Errorf("temporal: %w", err)
	}
	defer temporalClient.Close()

	acts := activities.NewActivities(llmClient, gateway, states, dbc, stream, logger)
	w := worker.New(temporalClient, cfg.Temporal.TaskQueue, worker.Options{})
	registry.Register(w, acts)
	if err := w.Start(); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	defer w.Stop()

	// Health checks.
	hm := health.NewManager()
	hm.Register(health.NewRedisChecker(rdb))
	if dbc != nil {
		hm.Register(health.NewPingChecker("postgres", false, dbc))
	}
	hm.Register(health.NewFuncChecker("temporal", true, func(ctx context.Context) error {
		_, err := temporalClient.CheckHealth(ctx, &client.CheckHealthRequest{})
		return err
	}))
	hm.Register(health.NewPingChecker("llm", false, llmClient))

	// Consumer API.
	apiMux := http.NewServeMux()
	httpapi.NewResearchHandler(temporalClient, states, dbc, tuning, cfg.Temporal.TaskQueue, logger).RegisterRoutes(apiMux)
	httpapi.NewStreamingHandler(stream, logger).RegisterRoutes(apiMux)
	health.NewHTTPHandler(hm).RegisterRoutes(apiMux)

	apiServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Service.HTTPPort),
		Handler:      httpapi.AuthMiddleware(cfg.Auth.APIToken, logger, apiMux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // streaming endpoints hold connections open
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		logger.Info("API server listening", zap.String("addr", apiServer.Addr))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("API server failed", zap.Error(err))
		}
	}()

	// Metrics on a separate port, unauthenticated for scrapers.
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Service.MetricsPort),
		Handler: metricsMux,
	}
	go func() {
		logger.Info("Metrics server listening", zap.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	logger.Info("Shutting down", zap.String("signal", s.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("API server shutdown", zap.Error(err))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Metrics server shutdown", zap.Error(err))
	}
	return nil
}

func buildLogger(level string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", level, err)
		}
		zcfg.Level = lvl
	}
	return zcfg.Build()
}
