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

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"golang.org/x/net/http2"

	"protocol-rag/internal/adapter/repository"
	"protocol-rag/internal/di"
	"protocol-rag/internal/infra"
	"protocol-rag/internal/infra/config"
	"protocol-rag/internal/infra/logger"
	"protocol-rag/internal/infra/otel"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server_exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Load Config
	cfg := config.Load()

	// 2. Initialize Tracing and Logger
	shutdownOTel, err := otel.InitProvider(ctx, otel.Config{
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.OTel.ServiceVersion,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTel.Endpoint,
		Enabled:        cfg.OTel.Enabled,
		SampleRatio:    cfg.OTel.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init otel: %w", err)
	}
	log := logger.NewWithOTel(cfg.LogLevel, cfg.OTel.Enabled)
	slog.SetDefault(log)

	// 3. Initialize DB
	dbPool, err := infra.NewPostgresDB(ctx, cfg.DB.DSN(), infra.PoolConfig{
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer dbPool.Close()

	if cfg.DB.AutoMigrate {
		if err := repository.Migrate(ctx, dbPool); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info("schema_migrated")
	}

	// 4. Wire Components
	components, err := di.NewApplicationComponents(ctx, cfg, dbPool, log)
	if err != nil {
		return err
	}
	defer func() { _ = components.Close() }()

	// 5. Start Audit Worker
	components.AuditWorker.Start()

	// 6. Initialize Echo
	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware(cfg.OTel.ServiceName))
	e.Use(middleware.RequestLogger())

	components.Handler.Register(e, components.Validator)

	// 7. Start Server
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Server.Port
		log.Info("server_starting", slog.String("addr", addr), slog.Bool("h2c", cfg.Server.H2C))
		var err error
		if cfg.Server.H2C {
			err = e.StartH2CServer(addr, &http2.Server{})
		} else {
			err = e.Start(addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	// 8. Graceful Shutdown
	log.Info("server_stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("server_shutdown_failed", slog.String("error", err.Error()))
	}
	components.AuditWorker.Stop()
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error("otel_shutdown_failed", slog.String("error", err.Error()))
	}
	return serveErr
}
