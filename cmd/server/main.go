package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iconidentify/quickstage/internal/api"
	"github.com/iconidentify/quickstage/internal/api/handler"
	"github.com/iconidentify/quickstage/internal/cache"
	"github.com/iconidentify/quickstage/internal/config"
	"github.com/iconidentify/quickstage/internal/domain"
	"github.com/iconidentify/quickstage/internal/downloader"
	"github.com/iconidentify/quickstage/internal/materializer"
	"github.com/iconidentify/quickstage/internal/repository"
	"github.com/iconidentify/quickstage/internal/service"
	"github.com/iconidentify/quickstage/internal/worker"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// lowDiskThreshold triggers a startup warning for the cache volume.
const lowDiskThreshold = 1 << 30

func main() {
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("quickstage %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateServer(); err != nil {
		logger.Error("invalid server config", "error", err)
		os.Exit(1)
	}

	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.Error("invalid log level", "error", err)
		os.Exit(1)
	}
	logger = newLogger(cfg.Log.Format, level)
	slog.SetDefault(logger)

	logger.Info("starting quickstage",
		"version", Version,
		"build_time", BuildTime,
		"cache_dir", cfg.Cache.Dir,
	)

	if err := cache.NewResolver(cfg.Cache.Dir).Ensure(); err != nil {
		logger.Error("failed to create cache directory", "error", err)
		os.Exit(1)
	}
	if cfg.Cache.TempPath != "" {
		if err := os.MkdirAll(cfg.Cache.TempPath, 0755); err != nil {
			logger.Error("failed to create temp directory", "error", err)
			os.Exit(1)
		}
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := materializer.NewMetrics(reg)

	events := service.NewEventService(cfg.Events.RingBufferSize, logger)

	if free := service.FreeDiskSpace(cfg.Cache.Dir); free > 0 && free < lowDiskThreshold {
		logger.Warn("low disk space on cache volume", "free_bytes", free)
		events.EmitWarning(domain.EventCategoryCache, "server", "low disk space on cache volume",
			map[string]any{"free_bytes": free})
	}

	fetcher := downloader.NewHTTPFetcher(cfg.Fetch, cfg.Cache.TempPath)
	fetcher.SetLogger(logger)

	mat := materializer.New(materializer.Options{
		Fetcher:     fetcher,
		CacheDir:    cfg.Cache.Dir,
		Concurrency: cfg.Fetch.Concurrency,
		Logger:      logger,
		Metrics:     metrics,
		Events:      events,
	})

	repo := repository.NewInMemoryBatchRepository()
	batchSvc := service.NewBatchService(repo, mat, events, logger)

	router := api.NewRouter(
		handler.NewBatchHandler(batchSvc, logger),
		handler.NewEventHandler(events, logger),
		handler.NewHealthHandler(repo, cfg.Cache.Dir),
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		cfg.Server.APIKey,
		logger,
	)

	pool := worker.NewPool(
		worker.Config{
			Workers:      cfg.Worker.Count,
			PollInterval: cfg.Worker.PollInterval,
		},
		batchSvc,
		logger,
	)
	pool.Start()

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	events.EmitInfo(domain.EventCategorySystem, "server", "server started", map[string]any{"addr": srv.Addr})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// In-flight batches are cancelled; their partial downloads are discarded.
	if err := pool.Stop(25 * time.Second); err != nil {
		logger.Error("worker pool shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

func newLogger(format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
