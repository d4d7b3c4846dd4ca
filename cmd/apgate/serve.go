package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/groblegark/apgate/internal/audit"
	"github.com/groblegark/apgate/internal/config"
	"github.com/groblegark/apgate/internal/dispatch"
	"github.com/groblegark/apgate/internal/events"
	"github.com/groblegark/apgate/internal/policy"
	"github.com/groblegark/apgate/internal/reaper"
	"github.com/groblegark/apgate/internal/server"
	"github.com/groblegark/apgate/internal/store/postgres"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the apgate approval server",
	GroupID: "system",
	// Override PersistentPreRunE so we don't create an HTTP client.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		slog.SetDefault(logger)

		// Load configuration.
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		// Validate the policy file early so a typo fails startup, not the
		// first hook invocation.
		if cfg.PolicyFile != "" {
			if _, err := policy.Load(cfg.PolicyFile); err != nil {
				return err
			}
		}

		// Connect to Postgres.
		store, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}

		// Create event publisher.
		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL, logger)
			if err != nil {
				store.Close()
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("events disabled (APGATE_NATS_URL not set)")
		}

		// Create the approval server.
		approvalServer := server.NewApprovalServer(store, publisher, cfg.Responders)
		if len(cfg.Responders) == 0 {
			logger.Warn("no responders configured; all respond attempts will be rejected")
		}

		// Start HTTP server.
		httpServer := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: approvalServer.NewHTTPHandler(cfg.AuthToken),
		}

		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		// Start the pending-request dispatcher.
		var notifier dispatch.Notifier
		if cfg.NATSURL != "" {
			notifier = dispatch.NewEventNotifier(publisher)
		} else {
			notifier = dispatch.NewLogNotifier(logger)
		}
		dispatcher := dispatch.New(store, notifier, cfg.DispatchInterval, logger)
		dispatcher.Start()
		logger.Info("dispatcher started", "interval", cfg.DispatchInterval)

		// Start the timeout reaper.
		sweeper := reaper.New(store, publisher, cfg.MaxPendingAge, cfg.ReapInterval, logger)
		sweeper.Start()
		logger.Info("reaper started", "max_age", cfg.MaxPendingAge, "interval", cfg.ReapInterval)

		// Start audit export scheduler if any destinations are configured.
		var scheduler *audit.Scheduler
		if cfg.AuditInterval > 0 {
			var dests []audit.Destination

			if cfg.AuditS3Bucket != "" {
				s3Dest, err := audit.NewS3Destination(
					context.Background(),
					cfg.AuditS3Bucket,
					cfg.AuditS3Key,
					cfg.AuditS3Region,
					cfg.AuditS3Endpoint,
				)
				if err != nil {
					logger.Error("failed to create S3 audit destination", "err", err)
				} else {
					dests = append(dests, s3Dest)
					logger.Info("audit S3 destination enabled", "bucket", cfg.AuditS3Bucket, "key", cfg.AuditS3Key)
				}
			}

			if cfg.AuditFile != "" {
				dests = append(dests, audit.NewFileDestination(cfg.AuditFile))
				logger.Info("audit file destination enabled", "path", cfg.AuditFile)
			}

			if len(dests) > 0 {
				scheduler = audit.NewScheduler(store, dests, cfg.AuditInterval, logger)
				scheduler.Start()
				logger.Info("audit scheduler started", "interval", cfg.AuditInterval)
			}
		}

		logger.Info("apgate server started",
			"http_addr", cfg.HTTPAddr,
			"responders", len(cfg.Responders),
		)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		// Graceful shutdown.
		if scheduler != nil {
			scheduler.Stop()
			logger.Info("audit scheduler stopped")
		}

		sweeper.Stop()
		logger.Info("reaper stopped")

		dispatcher.Stop()
		logger.Info("dispatcher stopped")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := store.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}
