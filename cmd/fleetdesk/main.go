package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fleetdesk/fleetdesk/internal/app"
	"github.com/fleetdesk/fleetdesk/internal/backend"
	"github.com/fleetdesk/fleetdesk/internal/fleet"
	"github.com/fleetdesk/fleetdesk/internal/geocode"
	"github.com/fleetdesk/fleetdesk/internal/notify"
	"github.com/fleetdesk/fleetdesk/internal/observability"
	"github.com/fleetdesk/fleetdesk/internal/platform/cache"
	"github.com/fleetdesk/fleetdesk/internal/reports"
	"github.com/fleetdesk/fleetdesk/internal/reports/export"
	reporthttp "github.com/fleetdesk/fleetdesk/internal/reports/http"
	"github.com/fleetdesk/fleetdesk/internal/shared"
	"github.com/fleetdesk/fleetdesk/internal/tracking"
	"github.com/fleetdesk/fleetdesk/internal/view"
	"github.com/fleetdesk/fleetdesk/internal/viewstate"
	"github.com/fleetdesk/fleetdesk/jobs"
	"github.com/fleetdesk/fleetdesk/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "fleetdesk_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	idempotencyStore := shared.NewIdempotencyStore(redisClient, 24*time.Hour)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()

	table, err := backend.LoadTable(cfg.BackendEndpointsFile)
	if err != nil {
		logger.Error("load endpoint table", slog.Any("error", err))
		os.Exit(1)
	}
	client := backend.New(cfg.BackendBaseURL,
		backend.WithTimeout(cfg.BackendTimeout),
		backend.WithTable(table),
		backend.WithObserver(metrics),
		backend.WithLogger(logger),
	)

	reportCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)
	reportService := reports.NewService(client, reportCache, logger)
	registry := viewstate.NewRegistry(cfg.SnapshotTTL)

	pdfClient := report.NewClient(cfg.GotenbergURL, report.WithLandscape())
	pdfExporter, err := export.NewPDFExporter(pdfClient)
	if err != nil {
		logger.Error("init pdf exporter", slog.Any("error", err))
		os.Exit(1)
	}
	reportsHandler := reporthttp.NewHandler(logger, reportService, registry, templates, pdfExporter)

	notifyService := notify.NewService(client, notify.NewContainer(), logger)
	notifyHandler := notify.NewHandler(logger, notifyService, templates)

	resolver := geocode.NewResolver(cfg.GeocoderURL,
		geocode.WithCache(redisClient, 24*time.Hour),
		geocode.WithConcurrency(cfg.GeocoderConcurrency),
		geocode.WithLogger(logger),
	)
	fleetService := fleet.NewService(client, reportService, notifyService, resolver, logger)
	fleetHandler := fleet.NewHandler(logger, fleetService, templates, idempotencyStore)

	hub := tracking.NewHub(logger, metrics)
	poller := tracking.NewPoller(client, hub, cfg.TrackingPollInterval, logger)
	trackingHandler := tracking.NewHandler(logger, templates)

	reportHandler := report.NewHandler(pdfClient, logger)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Warn("init job client", slog.Any("error", err))
	} else {
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		if _, err := jobClient.EnqueueReportsWarmup(ctx); err != nil {
			logger.Warn("enqueue reports warmup", slog.Any("error", err))
		}
	}

	go registry.Run(ctx, time.Minute)
	go notifyService.Run(ctx, cfg.NotifyPollInterval)
	go hub.Run(ctx)
	go poller.Run(ctx)
	if err := reportCache.ListenForInvalidation(ctx, func(version int64) {
		stale := registry.Invalidate()
		logger.Debug("report cache version bumped", slog.Int64("version", version), slog.Int("stale_views", stale))
	}); err != nil {
		logger.Warn("listen for report invalidation", slog.Any("error", err))
	}

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		Templates:       templates,
		SessionManager:  sessionManager,
		CSRFManager:     csrfManager,
		ReportsHandler:  reportsHandler,
		FleetHandler:    fleetHandler,
		NotifyHandler:   notifyHandler,
		TrackingHandler: trackingHandler,
		LiveHub:         hub,
		ReportHandler:   reportHandler,
		JobHandler:      jobHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
