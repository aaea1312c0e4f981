package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/terra-clan/interview-recorder/internal/api"
	"github.com/terra-clan/interview-recorder/internal/cleanup"
	"github.com/terra-clan/interview-recorder/internal/config"
	"github.com/terra-clan/interview-recorder/internal/fixtures"
	"github.com/terra-clan/interview-recorder/internal/journal"
	"github.com/terra-clan/interview-recorder/internal/media"
	"github.com/terra-clan/interview-recorder/internal/metrics"
	"github.com/terra-clan/interview-recorder/internal/recorder"
	"github.com/terra-clan/interview-recorder/internal/session"
	"github.com/terra-clan/interview-recorder/pkg/client"
)

// syntheticDevice selects generated capture instead of a v4l2 node
const syntheticDevice = "synthetic"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting interview-recorder",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"offline", cfg.OfflineMode(),
		"video_device", cfg.Capture.VideoDevice,
	)

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	// Session journal: always logged, optionally persisted
	sinks := journal.MultiSink{journal.NewLogSink(logger)}
	var history journal.Reader
	var asyncSink *journal.Async
	var pgSink *journal.PostgresSink

	if cfg.Journal.DSN != "" {
		slog.Info("running database migrations", "dir", cfg.Journal.MigrationsDir)
		if err := journal.MigrateFromDSN(initCtx, cfg.Journal.DSN, cfg.Journal.MigrationsDir); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}

		pgSink, err = journal.OpenPostgres(initCtx, cfg.Journal.DSN)
		if err != nil {
			slog.Error("failed to connect to journal database", "error", err)
			os.Exit(1)
		}
		slog.Info("journal database connected successfully")

		asyncSink = journal.NewAsync(pgSink, 1024, 5*time.Second)
		sinks = append(sinks, asyncSink)
		history = pgSink
	}

	// Interview source and upload target
	var (
		source   session.InterviewSource
		uploader session.Uploader
	)
	if cfg.OfflineMode() {
		loader := fixtures.NewLoader()
		if err := loader.LoadFromDir(cfg.Fixtures.Dir); err != nil {
			slog.Error("failed to load fixtures", "dir", cfg.Fixtures.Dir, "error", err)
			os.Exit(1)
		}
		spool, err := fixtures.NewSpool(cfg.Fixtures.SpoolDir)
		if err != nil {
			slog.Error("failed to create spool", "error", err)
			os.Exit(1)
		}
		source, uploader = loader, spool
	} else {
		// Per-call contexts bound each request; the client timeout only caps the longest one
		timeout := cfg.Backend.Timeout
		if cfg.Upload.Timeout > timeout {
			timeout = cfg.Upload.Timeout
		}
		backend := client.NewClient(cfg.Backend.URL, client.WithTimeout(timeout))
		if err := backend.Health(initCtx); err != nil {
			slog.Warn("backend health check failed", "url", cfg.Backend.URL, "error", err)
		}
		source, uploader = backend, backend
	}

	// Capture device
	var device media.Device
	if cfg.Capture.VideoDevice == syntheticDevice {
		device = media.NewSyntheticDevice(500 * time.Millisecond)
	} else {
		device = media.NewFFmpegDevice(media.FFmpegConfig{
			Binary:      cfg.Capture.FFmpegPath,
			VideoDevice: cfg.Capture.VideoDevice,
			AudioDevice: cfg.Capture.AudioDevice,
		})
	}

	m := metrics.NewMetrics()

	manager := recorder.NewManager(source, uploader, device, recorder.Options{
		Policy: session.UploadPolicy{
			MaxAttempts:    cfg.Upload.MaxAttempts,
			InitialBackoff: cfg.Upload.InitialBackoff,
			MaxBackoff:     cfg.Upload.MaxBackoff,
			RequireSuccess: cfg.Upload.RequireSuccess,
		},
		Constraints:     media.DefaultConstraints(),
		FetchTimeout:    cfg.Backend.Timeout,
		UploadTimeout:   cfg.Upload.Timeout,
		CompleteTimeout: cfg.Backend.Timeout,
		IdleTimeout:     cfg.Cleanup.IdleTimeout,
		SharedDevice:    cfg.Capture.VideoDevice == syntheticDevice,
		Sink:            sinks,
		Metrics:         m,
	})

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start session reaper
	reaper := cleanup.NewReaper(manager, cfg.Cleanup.Interval)
	reaper.Start(ctx)

	// Setup HTTP server. Submits and event streams are long-lived, so only headers are time-bounded.
	server := api.NewServer(cfg.Server, manager, m, history)
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Router(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	// Cancel context to stop background workers
	cancel()

	// Tear sessions down first: open event streams end once their session closes
	if err := manager.Close(); err != nil {
		slog.Error("manager close error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Flush the journal after the last session event
	if asyncSink != nil {
		asyncSink.Close()
	}
	if pgSink != nil {
		pgSink.Close()
	}

	slog.Info("interview-recorder stopped")
}
