package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/config"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/core"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/logging"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/metrics"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/store"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_driver", cfg.Database.Driver,
		"db_mode", cfg.Database.Mode,
		"max_concurrent_jobs", cfg.Pipeline.MaxConcurrentJobs,
		"on_transform_error", cfg.Pipeline.OnTransformError,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	dsn, err := cfg.Database.ConnectionString()
	if err != nil {
		slog.Error("failed to build database connection string", "error", err)
		os.Exit(1)
	}
	st, err := store.Open(cfg.Database.Driver, dsn, store.PoolOptions{
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := st.Connect(ctx); err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer st.Disconnect()

	if err := st.EnsureSchema(ctx); err != nil {
		slog.Error("failed to create schema", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to database", "driver", cfg.Database.Driver)

	// A broken template file is logged, the rest still load.
	n, err := core.LoadTemplateDir(cfg.Pipeline.TemplateDir)
	if err != nil {
		slog.Warn("some templates failed to load", "error", err)
	}
	slog.Info("templates registered",
		"loaded", n,
		"count", core.TemplateCount(),
		"channels", len(core.Channels()),
	)

	policy, err := core.ParsePolicy(cfg.Pipeline.OnTransformError)
	if err != nil {
		slog.Error("invalid transform error policy", "error", err)
		os.Exit(1)
	}

	rec := metrics.New()
	service := core.NewService(st, core.Options{
		Policy:     policy,
		BatchSize:  cfg.Pipeline.BatchSize,
		Limiter:    core.NewJobLimiter(cfg.Pipeline.MaxConcurrentJobs, cfg.Pipeline.MaxWaitTime),
		Metrics:    rec,
		OutputDir:  cfg.Pipeline.OutputDir,
		JobTimeout: cfg.Pipeline.JobTimeout,
	})

	server := web.NewServer(service, cfg, rec)

	// Graceful shutdown. Start returns as soon as Shutdown begins, so main
	// waits on done for in-flight requests and jobs.
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		// Wait for running jobs to complete (with timeout)
		if status := service.Limiter().Status(); status.Active > 0 {
			slog.Info("waiting for jobs to complete", "active", status.Active)
			if err := service.WaitForJobs(shutdownCtx); err != nil {
				slog.Warn("jobs did not complete in time", "error", err)
			} else {
				slog.Info("all jobs completed")
			}
		}
	}()

	if err := server.Start(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}
