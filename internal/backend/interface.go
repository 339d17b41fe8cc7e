// Package backend selects the export target used by the worker.
package backend

import (
	"context"

	"fluxo/internal/sheets"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result contains the exporter and an optional cleanup function. Reader is
// set only when the target can be read back.
type Result struct {
	Exporter sheets.Exporter
	Reader   sheets.SnapshotReader
	Cleanup  CleanupFunc
}

// Factory creates exporters based on configuration
type Factory interface {
	CreateExporter(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for exporter creation
type Config struct {
	Type Type

	// Google Sheets specific
	GoogleSpreadsheetID      string
	GoogleForecastSheet      string
	GoogleMonthlySheet       string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
}

// Type represents the kind of export target
type Type string

const (
	SheetsBackend Type = "sheets"
	MemoryBackend Type = "memory"
)

// String implements fmt.Stringer
func (t Type) String() string {
	return string(t)
}

// IsValid returns true if the type is known
func (t Type) IsValid() bool {
	switch t {
	case SheetsBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
