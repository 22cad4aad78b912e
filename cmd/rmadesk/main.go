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

	"github.com/rmadesk/rmadesk/internal/app"
	"github.com/rmadesk/rmadesk/internal/audit"
	audithttp "github.com/rmadesk/rmadesk/internal/audit/http"
	"github.com/rmadesk/rmadesk/internal/discounts"
	"github.com/rmadesk/rmadesk/internal/inventory"
	"github.com/rmadesk/rmadesk/internal/lots"
	"github.com/rmadesk/rmadesk/internal/observability"
	"github.com/rmadesk/rmadesk/internal/platform/cache"
	"github.com/rmadesk/rmadesk/internal/platform/db"
	"github.com/rmadesk/rmadesk/internal/shared"
	"github.com/rmadesk/rmadesk/jobs"
	"github.com/rmadesk/rmadesk/report"
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

	logger := app.NewLogger(cfg, "rmadesk")

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	auditLogger := shared.NewAuditLogger(dbpool)

	inventoryRepo := inventory.NewRepository(dbpool)
	inventoryHandler := inventory.NewHandler(logger, inventoryRepo, cfg.MaxImportBytes).WithAuditor(auditLogger)

	lotsRepo := lots.NewRepository(dbpool)
	selections := lots.NewSelectionStore(redisClient, cfg.SelectionTTL)
	lotsHandler := lots.NewHandler(logger, lotsRepo, selections, idempotencyStore).WithAuditor(auditLogger)
	if cfg.GotenbergURL != "" {
		pdfClient := report.NewClient(cfg.GotenbergURL, cfg.AppRequestTimeout)
		if err := pdfClient.Ping(ctx); err != nil {
			logger.Warn("gotenberg ping", slog.Any("error", err))
		}
		lotsHandler.WithPDFRenderer(pdfClient)
	}

	kitSource := discounts.FileKitSource{Path: cfg.KitRulesPath}
	discountsRepo := discounts.NewRepository(dbpool)
	discountsService := discounts.NewService(discountsRepo, kitSource, logger)
	discountsHandler := discounts.NewHandler(logger, discountsService, kitSource).WithAuditor(auditLogger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	auditHandler := audithttp.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool)))

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		InventoryHandler: inventoryHandler,
		LotsHandler:      lotsHandler,
		DiscountsHandler: discountsHandler,
		JobHandler:       jobHandler,
		AuditHandler:     auditHandler,
		Metrics:          metrics,
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
