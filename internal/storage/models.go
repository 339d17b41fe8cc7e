package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Refresh run outcomes.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

type (
	// Upload is one successful dataset upload.
	Upload struct {
		ID         string
		Files      []string
		HasOutflow bool
		Message    string
		CreatedAt  time.Time
	}

	// Simulation is one scenario run and its summary.
	Simulation struct {
		ID           int64
		Kind         string
		Parameters   map[string]any
		ProbNegative float64
		Min          decimal.Decimal
		Median       decimal.Decimal
		Max          decimal.Decimal
		Risk         string
		CreatedAt    time.Time
	}

	// RefreshRun is one worker refresh and export.
	RefreshRun struct {
		ID         int64
		Source     string
		MessageID  string
		Days       int
		Points     int
		Months     int
		Status     string
		Error      string
		StartedAt  time.Time
		FinishedAt time.Time
	}
)
