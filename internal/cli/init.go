// Package cli provides the cashbook command line and the initialization
// shared by cmd/cashbook and cmd/audit-worker.
package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"cashbook/internal/amqp"
	"cashbook/internal/backend"
	"cashbook/internal/config"
	"cashbook/internal/core"
	"cashbook/internal/ledger"
	applog "cashbook/internal/log"
)

// SetupLogger initializes structured logging at the given LOG_LEVEL name
// and sets it as the default logger.
func SetupLogger(level string) *applog.Logger {
	lvl := applog.ParseLevel(level)
	logger := applog.New(applog.Config{
		Level:     lvl,
		Component: applog.ComponentApp,
		Handler:   applog.NewTraceHandler(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})),
	})
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// InitStore opens the configured backend. The returned close function is
// never nil.
func InitStore(logger *applog.Logger, cfg *config.Config) (ledger.Store, func() error, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	res, err := backend.NewFactory(logger.WithComponent(applog.ComponentStorage)).Open(context.Background(), bcfg)
	if err != nil {
		return nil, nil, err
	}
	return res.Store, res.Cleanup, nil
}

// InitAuditSink returns the AMQP publisher when AMQP_URL is set and the
// broker is reachable, and a log-only sink otherwise. Losing the broker
// never stops the ledger from working.
func InitAuditSink(logger *applog.Logger, cfg *config.Config) (ledger.AuditSink, func() error) {
	logSink := ledger.LogSink{Logger: logger.WithComponent(applog.ComponentLedger)}
	if !cfg.PublishingEnabled() {
		logger.Info("AMQP disabled, audit events go to the log only")
		return logSink, func() error { return nil }
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("AMQP unavailable, audit events go to the log only",
			applog.FieldError, err,
			applog.FieldErrorType, applog.ErrorTypeNetwork)
		return logSink, func() error { return nil }
	}
	client.WithLogger(logger.WithComponent(applog.ComponentAMQP))
	logger.Info("AMQP audit publishing enabled",
		applog.FieldExchange, cfg.AMQPExchange,
		applog.FieldQueue, cfg.AMQPQueue)
	return client, client.Close
}

// NewLedger builds a ledger from configuration.
func NewLedger(cfg *config.Config, store ledger.Store, sink ledger.AuditSink, logger *applog.Logger) *ledger.Ledger {
	return ledger.New(store, ledger.Options{
		AuditSink:           sink,
		Logger:              logger.WithComponent(applog.ComponentLedger),
		KindTags:            cfg.VoucherKindTags,
		StrictCategoryKinds: cfg.StrictCategoryKinds,
		CacheSize:           cfg.CacheSize,
		CacheTTL:            cfg.CacheTTL,
	})
}

// ErrorType classifies err into one of the log ErrorType categories.
func ErrorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, core.ErrValidation):
		return applog.ErrorTypeValidation
	case errors.Is(err, core.ErrNotFound):
		return applog.ErrorTypeNotFound
	case errors.Is(err, core.ErrPermissionDenied):
		return applog.ErrorTypePermission
	case errors.Is(err, core.ErrInvalidTransition):
		return applog.ErrorTypeTransition
	case errors.Is(err, core.ErrInsufficientFunds):
		return applog.ErrorTypeFunds
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return applog.ErrorTypeInternal
	default:
		return applog.ErrorTypeDatabase
	}
}

// ExitCode maps an error to the process exit status: 2 for caller errors
// the user can fix, 1 for everything else.
func ExitCode(err error) int {
	switch ErrorType(err) {
	case "":
		return 0
	case applog.ErrorTypeValidation, applog.ErrorTypeNotFound, applog.ErrorTypePermission,
		applog.ErrorTypeTransition, applog.ErrorTypeFunds:
		return 2
	default:
		return 1
	}
}

// GracefulShutdown returns a context that is cancelled on SIGINT or
// SIGTERM. The returned channel closes once cleanup has run or timeout
// has elapsed, whichever comes first.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		sig := <-sigChan
		logger.Info("Shutdown signal received",
			applog.FieldOperation, applog.OpShutdown,
			applog.FieldSignal, sig.String())
		cancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup()
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete", applog.FieldOperation, applog.OpShutdown)
		case <-time.After(timeout):
			logger.Warn("Shutdown timeout reached", applog.FieldOperation, applog.OpShutdown)
		}
		close(done)
	}()

	return ctx, done
}
