package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"cashbook/internal/amqp"
	"cashbook/internal/cli"
	applog "cashbook/internal/log"
	"cashbook/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		logger := cli.SetupLogger("info")
		logger.Error("Configuration validation failed",
			applog.FieldError, err,
			applog.FieldErrorType, applog.ErrorTypeConfiguration)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg.LogLevel)
	logger.Info("Starting audit-worker", applog.FieldOperation, applog.OpStartup)

	if !cfg.PublishingEnabled() {
		logger.Error("AMQP_URL is required for the audit worker",
			applog.FieldErrorType, applog.ErrorTypeConfiguration)
		os.Exit(1)
	}

	// The worker reads the same store the CLI writes, without emitting events.
	store, closeStore, err := cli.InitStore(logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize store", applog.FieldError, err, applog.FieldErrorType, applog.ErrorTypeDatabase)
		os.Exit(1)
	}
	defer closeStore()
	l := cli.NewLedger(cfg, store, nil, logger)

	var recorder worker.Recorder = worker.LogRecorder{Logger: logger.WithComponent(applog.ComponentWorker)}
	if cfg.AuditJournalPath != "" {
		journal, err := worker.NewFileRecorder(cfg.AuditJournalPath)
		if err != nil {
			logger.Error("Failed to open audit journal", applog.FieldError, err, applog.FieldPath, cfg.AuditJournalPath)
			os.Exit(1)
		}
		defer journal.Close()
		recorder = journal
		logger.Info("Recording audit events to journal", applog.FieldPath, cfg.AuditJournalPath)
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err, applog.FieldErrorType, applog.ErrorTypeNetwork)
		os.Exit(1)
	}
	client.WithLogger(logger.WithComponent(applog.ComponentAMQP))
	defer client.Close()

	w := worker.NewAuditWorker(l, recorder, logger.WithComponent(applog.ComponentWorker))

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Report balances once at startup so the log has a baseline.
		if _, err := w.SnapshotBalances(gctx); err != nil {
			logger.Error("Startup balance snapshot failed", applog.FieldError, err)
		}
		return nil
	})
	g.Go(func() error {
		return w.Run(gctx, client, cfg.SnapshotInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Audit worker stopped", applog.FieldError, err)
		os.Exit(1)
	}
	<-done
	logger.Info("Audit worker shutdown complete", applog.FieldOperation, applog.OpShutdown)
}
