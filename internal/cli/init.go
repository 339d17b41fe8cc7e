// Package cli provides the initialization shared by cmd/fluxo and
// cmd/fluxo-worker.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fluxo/internal/amqp"
	"fluxo/internal/api"
	"fluxo/internal/config"
	"fluxo/internal/events"
	"fluxo/internal/log"
	"fluxo/internal/storage"
	"fluxo/internal/transport"
)

// SetupLogger builds the process logger from LOG_LEVEL and makes it the
// default.
func SetupLogger() *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Level = log.ParseLevel(os.Getenv("LOG_LEVEL"))
	cfg.Output = os.Stderr
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// InitJournal opens the journal at path. An empty path disables it and
// returns nil.
func InitJournal(logger *log.Logger, path string) (*storage.SQLiteRepository, error) {
	if path == "" {
		return nil, nil
	}
	repo, err := storage.NewSQLiteRepository(path, logger)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	return repo, nil
}

// App is the wired client: backend service, bus and optional journal and
// broker.
type App struct {
	Config  *config.Config
	Logger  *log.Logger
	Bus     *events.Bus
	Service *api.Service
	Journal *storage.SQLiteRepository
	AMQP    *amqp.Client

	unsubscribe func()
}

// NewApp wires the api service to the bus. Upload events also reach the
// journal and the broker when those are configured.
func NewApp(cfg *config.Config, logger *log.Logger) (*App, error) {
	app := &App{Config: cfg, Logger: logger, Bus: events.NewBus()}

	journal, err := InitJournal(logger, cfg.JournalDBPath)
	if err != nil {
		return nil, err
	}
	app.Journal = journal
	if journal != nil {
		app.unsubscribe = app.Bus.Subscribe(journal.UploadRecorder())
	}

	publishers := events.Multi{app.Bus}
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("connect AMQP: %w", err)
		}
		app.AMQP = client
		publishers = append(publishers, client)
	}

	client := transport.New(cfg.APIURL,
		transport.WithTimeout(cfg.RequestTimeout),
		transport.WithLogger(logger))
	app.Service = api.New(client,
		api.WithPublisher(publishers),
		api.WithLogger(logger),
		api.WithLegacySummaries(cfg.LegacySummary))

	return app, nil
}

// Close releases the journal and the broker connection.
func (a *App) Close() {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	if a.AMQP != nil {
		if err := a.AMQP.Close(); err != nil {
			a.Logger.Warn("Failed to close AMQP client", log.FieldError, err)
		}
	}
	if a.Journal != nil {
		if err := a.Journal.Close(); err != nil {
			a.Logger.Warn("Failed to close journal", log.FieldError, err)
		}
	}
}

// GracefulShutdown returns a context cancelled on SIGINT, SIGTERM or a call
// to stop. After cancellation cleanup runs, bounded by timeout, and done is
// closed.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func()) (ctx context.Context, stop context.CancelFunc, done <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	finishedShutdown := make(chan struct{})

	go func() {
		defer close(finishedShutdown)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String(), log.FieldOperation, log.OpShutdown)
		case <-ctx.Done():
		}
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
			logger.Info("Shutdown complete")
		case <-time.After(timeout):
			logger.Warn("Shutdown timeout reached")
		}
	}()

	return ctx, cancel, finishedShutdown
}
