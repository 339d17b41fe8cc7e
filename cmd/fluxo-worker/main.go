package main

import (
	"context"
	"os"
	"time"

	"fluxo/internal/amqp"
	"fluxo/internal/backend"
	"fluxo/internal/cache"
	"fluxo/internal/cli"
	"fluxo/internal/log"
	"fluxo/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	logger.Info("Starting fluxo-worker", log.FieldOperation, log.OpStartup)

	cfg := cli.LoadAndValidateConfig(logger)

	app, err := cli.NewApp(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize", log.FieldError, err)
		os.Exit(1)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid export configuration", log.FieldError, err)
		app.Close()
		os.Exit(1)
	}
	export, err := backend.NewFactory(logger).CreateExporter(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize exporter", log.FieldError, err, "backend", backendCfg.Type)
		app.Close()
		os.Exit(1)
	}

	dedupe := cache.NewDeduper(1024, cfg.DedupeTTL)
	caches := cache.NewManager(logger)
	caches.Register(dedupe)

	opts := []worker.Option{worker.WithLogger(logger), worker.WithDeduper(dedupe)}
	if app.Journal != nil {
		opts = append(opts, worker.WithJournal(app.Journal))
	}
	refresher, err := worker.NewRefreshWorker(app.Service, export.Exporter, cfg.ExportDays, opts...)
	if err != nil {
		logger.Error("Failed to create refresh worker", log.FieldError, err)
		app.Close()
		os.Exit(1)
	}

	ctx, stop, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		caches.Wait()
		if export.Cleanup != nil {
			if err := export.Cleanup(); err != nil {
				logger.Warn("Exporter cleanup failed", log.FieldError, err)
			}
		}
		app.Close()
	})

	caches.Start(ctx, time.Minute)

	// catch up on changes missed while the worker was down
	if _, err := refresher.Refresh(ctx, worker.SourceStartup, ""); err != nil {
		logger.Warn("Startup refresh failed", log.FieldError, err)
	}

	if app.AMQP != nil {
		go consume(ctx, stop, app.AMQP, refresher, logger)
	} else {
		logger.Info("AMQP disabled, relying on the refresh schedule")
	}

	if cfg.RefreshSchedule != "" {
		go func() {
			if err := refresher.RunSchedule(ctx, cfg.RefreshSchedule); err != nil {
				logger.Error("Refresh schedule failed", log.FieldError, err)
				stop()
			}
		}()
	}

	if app.AMQP == nil && cfg.RefreshSchedule == "" {
		logger.Warn("Nothing to do: set AMQP_URL or REFRESH_SCHEDULE")
		stop()
	}

	<-done
}

func consume(ctx context.Context, stop context.CancelFunc, client *amqp.Client, refresher *worker.RefreshWorker, logger *log.Logger) {
	err := client.Consume(ctx, refresher.HandleDatasetChanged)
	if err != nil && !worker.IsShutdown(err) {
		logger.Error("Message consumption failed", log.FieldError, err, log.FieldOperation, log.OpConsume)
	}
	stop()
}
