package backend

import (
	"context"
	"fmt"

	"fluxo/internal/log"
	gsheet "fluxo/internal/sheets/google"
	"fluxo/internal/sheets/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new exporter factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Default()
	}
	return &DefaultFactory{logger: logger}
}

// CreateExporter implements Factory.CreateExporter
func (f *DefaultFactory) CreateExporter(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SheetsBackend:
		return f.createSheetsExporter(ctx, config)
	case MemoryBackend:
		return f.createMemoryExporter()
	default:
		return nil, fmt.Errorf("unsupported export backend: %s", config.Type)
	}
}

func (f *DefaultFactory) createSheetsExporter(ctx context.Context, config Config) (*Result, error) {
	cli, err := gsheet.New(ctx, gsheet.Options{
		SpreadsheetID:   config.GoogleSpreadsheetID,
		ForecastSheet:   config.GoogleForecastSheet,
		MonthlySheet:    config.GoogleMonthlySheet,
		CredentialsJSON: config.GoogleServiceAccountJSON,
		CredentialsFile: config.GoogleServiceAccountFile,
	}, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets exporter: %w", err)
	}

	f.logger.Info("Initialized Google Sheets exporter", "spreadsheet_id", config.GoogleSpreadsheetID)

	return &Result{Exporter: cli}, nil
}

func (f *DefaultFactory) createMemoryExporter() (*Result, error) {
	store := memory.New()

	f.logger.Info("Initialized memory exporter")

	return &Result{Exporter: store, Reader: store}, nil
}
