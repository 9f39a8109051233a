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

	"github.com/praxishq/praxis/internal/app"
	"github.com/praxishq/praxis/internal/audit"
	"github.com/praxishq/praxis/internal/billing"
	"github.com/praxishq/praxis/internal/catalog"
	"github.com/praxishq/praxis/internal/invoices"
	"github.com/praxishq/praxis/internal/ledger"
	"github.com/praxishq/praxis/internal/observability"
	"github.com/praxishq/praxis/internal/platform/cache"
	"github.com/praxishq/praxis/internal/platform/db"
	"github.com/praxishq/praxis/internal/shared"
	"github.com/praxishq/praxis/jobs"
	"github.com/praxishq/praxis/report"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, caching disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)

	catalogRepo := catalog.NewRepository(pool)
	directory := catalog.NewDirectory(catalogRepo)
	catalogHandler := catalog.NewHandler(logger, directory)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger, logger, metrics)
	ledgerCache := ledger.NewCache(redisClient, 5*time.Minute)
	ledgerHandler := ledger.NewHandler(logger, ledgerService, ledgerCache)

	billingRepo := billing.NewRepository(pool)
	engine := billing.NewEngine(logger, metrics)
	generator := billing.NewGenerator(billingRepo, logger, metrics)
	tracker := billing.NewTracker(billingRepo, engine, auditLogger, logger, metrics)
	billingHandler := billing.NewHandler(logger, generator, tracker, billingRepo)

	invoicesRepo := invoices.NewRepository(pool)
	controller := invoices.NewController(invoicesRepo, auditLogger, logger, metrics)
	var pdfRenderer invoices.PDFRenderer
	if cfg.GotenbergURL != "" {
		pdfRenderer = report.NewInvoiceRenderer(report.NewClient(cfg.GotenbergURL))
	}
	invoicesHandler := invoices.NewHandler(logger, controller, invoicesRepo, pdfRenderer)

	auditService := audit.NewService(audit.NewRepository(pool))
	auditHandler := audit.NewHandler(logger, auditService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		CatalogHandler:  catalogHandler,
		BillingHandler:  billingHandler,
		InvoicesHandler: invoicesHandler,
		LedgerHandler:   ledgerHandler,
		AuditHandler:    auditHandler,
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
