package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"snb_ledger/internal/api"
	"snb_ledger/internal/config"
	"snb_ledger/internal/processor"
	"snb_ledger/internal/repository"
	"snb_ledger/internal/repository/memory"
	"snb_ledger/internal/storage"
	"snb_ledger/pkg/metrics"
)

const (
	appName = "snb_ledger"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Application failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := setupLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("Starting application",
		slog.String("name", appName),
		slog.String("storage", cfg.Storage))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := setupStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	ledger := processor.NewLedgerProcessor(
		memory.NewAccountRepository(),
		memory.NewCustomerRepository(),
		store,
		processor.WithLogger(logger),
	)
	if err := ledger.Load(ctx, cfg.Bootstrap); err != nil {
		if errors.Is(err, repository.ErrRecordsNotFound) {
			logger.Error("Ledger records not found; set LEDGER_BOOTSTRAP=true to start with an empty ledger")
		}
		return err
	}

	admin, err := api.NewAdminAuth(cfg.AdminUsername, cfg.AdminPassword, bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	metricsCollector := metrics.NewMetricsCollector(logger)
	apiHandler := api.NewAPIHandler(ledger, metricsCollector, admin, logger, cfg.RequestTimeout)
	apiHandler.RefreshAccountMetrics(ctx)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      apiHandler.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	metricsServer := metricsCollector.NewMetricsServer(cfg.MetricsAddr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serve(logger, "HTTP", httpServer)
	})
	g.Go(func() error {
		return serve(logger, "Metrics", metricsServer)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")
		return shutdown(logger, cfg.ShutdownTimeout, ledger, metricsCollector, httpServer, metricsServer)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("Application shutdown complete")
	return nil
}

func setupLogger(level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}

func setupStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.Store, func(), error) {
	switch cfg.Storage {
	case config.StoragePostgres:
		pg, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		return pg, func() {
			if err := pg.Close(); err != nil {
				logger.Error("Failed to close database", slog.String("error", err.Error()))
			}
		}, nil
	default:
		return storage.NewJSONStore(cfg.AccountsFile, cfg.CustomersFile, logger), func() {}, nil
	}
}

func serve(logger *slog.Logger, name string, server *http.Server) error {
	logger.Info("Starting "+name+" server", slog.String("addr", server.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server failed: %w", name, err)
	}
	return nil
}

// shutdown stops both servers, then writes the ledger once more.
func shutdown(
	logger *slog.Logger,
	timeout time.Duration,
	ledger *processor.LedgerProcessor,
	metricsCollector *metrics.MetricsCollector,
	httpServer *http.Server,
	metricsServer *http.Server,
) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Error("Metrics server shutdown failed", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := ledger.Persist(ctx); err != nil {
		logger.Error("Final ledger save failed", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := metricsCollector.Shutdown(ctx); err != nil {
		logger.Error("Metrics collector shutdown failed", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
