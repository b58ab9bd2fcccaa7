package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"energodoc/internal/app"
	"energodoc/internal/config"
	"energodoc/internal/handler"
	"energodoc/internal/logger"
	"energodoc/internal/metrics"
	"energodoc/internal/repository/postgres"
	"energodoc/internal/router"
	"energodoc/internal/service"
	s3storage "energodoc/internal/storage/s3"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logg, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = logg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	db, err := postgres.NewDB(&cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	// Initialize repositories
	subRepo := postgres.NewSubmissionRepo(db)
	canonRepo := postgres.NewCanonicalRepo(db)

	// Initialize storage
	s3Client, err := s3storage.NewS3Client(ctx, &cfg.S3)
	if err != nil {
		return fmt.Errorf("failed to initialize S3 client: %w", err)
	}

	engine, err := app.NewEngine(ctx, cfg, m, logg)
	if err != nil {
		return fmt.Errorf("failed to build extraction engine: %w", err)
	}
	defer func() { _ = engine.Close() }()

	// Initialize services
	subSvc := service.NewSubmissionService(subRepo, canonRepo, s3Client, engine.Runner, &cfg.S3, m, logg)
	worker := service.NewProcessQueueWorker(subRepo, subSvc, service.ProcessQueueConfig{
		PollInterval: time.Duration(cfg.Queue.PollIntervalSecs) * time.Second,
		MaxRetries:   cfg.Queue.MaxRetries,
		Concurrency:  cfg.Queue.Concurrency,
		Timeout:      time.Duration(cfg.Queue.TimeoutSecs) * time.Second,
		StaleAfter:   time.Duration(cfg.Queue.StaleAfterSecs) * time.Second,
	}, logg)

	// Initialize handlers
	var cachePing handler.Pinger
	if engine.Redis != nil {
		cachePing = handler.PingFunc(func(ctx context.Context) error { return engine.Redis.Ping(ctx).Err() })
	}
	healthH := handler.NewHealthHandler(db, cachePing)
	subH := handler.NewSubmissionHandler(subSvc, logg)

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = metrics.Handler(reg)
	}

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := router.Setup(cfg, logg, subH, healthH, metricsHandler)

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	errCh := make(chan error, 1)
	go func() {
		logg.Info("server: starting", zap.String("addr", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logg.Info("server: shutting down")
	case err := <-errCh:
		stop()
		wg.Wait()
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("server: shutdown", zap.Error(err))
	}
	wg.Wait()
	return nil
}
