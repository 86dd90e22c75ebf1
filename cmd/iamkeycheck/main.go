package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/iamkeycheck/internal/adapter/driven/csvdir"
	iamadapter "github.com/ericfisherdev/iamkeycheck/internal/adapter/driven/iam"
	sqliteadapter "github.com/ericfisherdev/iamkeycheck/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/iamkeycheck/internal/adapter/driving/http"
	"github.com/ericfisherdev/iamkeycheck/internal/application"
	"github.com/ericfisherdev/iamkeycheck/internal/config"
	"github.com/ericfisherdev/iamkeycheck/internal/domain/port/driven"
	"github.com/ericfisherdev/iamkeycheck/internal/telemetry/logging"
	"github.com/ericfisherdev/iamkeycheck/internal/telemetry/metrics"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on invalid env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// 2. Build the logger (stdout, plus rotated file when LOG_DIR is set).
	logger, err := logging.New(logging.Options{
		Level:         cfg.LogLevel,
		Format:        cfg.LogFormat,
		Dir:           cfg.LogDir,
		RetentionDays: cfg.LogRetentionDays,
	})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := logger.Close(); closeErr != nil {
			slog.Error("error closing logger", "error", closeErr)
		}
	}()
	slog.SetDefault(logger.Logger)

	logger.Info("config loaded",
		"stage", cfg.Stage,
		"version", cfg.ImageTag,
		"listen_addr", cfg.ListenAddr,
		"csv_dir", cfg.CSVDir,
		"aws_region", cfg.AWSRegion,
		"concurrency", cfg.Concurrency,
		"call_timeout", cfg.CallTimeout,
		"db_path", cfg.DBPath,
		"default_authority", cfg.HasDefaultAuthority(),
	)

	// 3. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Open the audit database when configured.
	var auditStore driven.AuditStore
	if cfg.DBPath != "" {
		db, err := sqliteadapter.NewDB(cfg.DBPath)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := db.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()

		if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
			return err
		}
		auditStore = sqliteadapter.NewAuditRepo(db)
		logger.Info("audit database ready", "path", cfg.DBPath)
	} else {
		logger.Info("no audit database configured, audit rows will not be persisted")
	}

	// 5. Wire adapters.
	loader := csvdir.NewLoader(cfg.CSVDir, logger.Logger)
	if report := loader.Scan(ctx); report.DirErr != nil {
		logger.Warn("credential directory not readable yet", "dir", loader.Dir(), "error", report.DirErr)
	} else {
		logger.Info("credential directory ready", "dir", loader.Dir(), "files", len(report.Files), "records", len(report.Records()))
	}

	identities, err := iamadapter.NewFactory(ctx, iamadapter.Options{
		Region:        cfg.AWSRegion,
		Endpoint:      cfg.IAMEndpoint,
		CallTimeout:   cfg.CallTimeout,
		DefaultKeyID:  cfg.DefaultKeyID,
		DefaultSecret: cfg.DefaultSecret,
	})
	if err != nil {
		return err
	}

	collector := metrics.NewCollector(nil)

	// 6. Create the stale key service.
	staleSvc := application.NewStaleKeyService(loader, identities, logger.Logger,
		application.WithConcurrency(cfg.Concurrency),
		application.WithCallTimeout(cfg.CallTimeout),
		application.WithRecorder(collector),
	)

	// 7. Create HTTP handler and server.
	apiHandler := httphandler.NewHandler(staleSvc, auditStore, collector.Handler(), logger.Logger)
	handler := httphandler.NewServeMux(apiHandler, logger.Logger)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	logger.Info("iamkeycheck started", "listen_addr", cfg.ListenAddr, "stage", cfg.Stage)

	// 8. Wait for shutdown signal or a server failure.
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	// 9. Graceful shutdown with 10s timeout for in-flight checks.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
