// Package sheets defines where the worker publishes refreshed series.
package sheets

import (
	"context"
	"time"

	"fluxo/internal/aggregate"
	"fluxo/internal/core"
)

// Snapshot is one refresh of the exported series.
type Snapshot struct {
	GeneratedAt time.Time
	Days        int
	Forecast    []core.PredictionPoint
	Monthly     []aggregate.MonthlyTotal
}

// Ports for outbound adapters.
type (
	// Exporter replaces the exported series with snapshot.
	Exporter interface {
		Export(ctx context.Context, snapshot Snapshot) error
	}

	// SnapshotReader returns the last exported snapshot.
	SnapshotReader interface {
		Latest(ctx context.Context) (Snapshot, bool, error)
	}
)

// Forecast sheet header.
var ForecastHeader = []string{"data", "fluxo_previsto", "saldo_previsto"}

// Monthly sheet header.
var MonthlyHeader = []string{"mes", "entradas", "saidas", "liquido"}

// ForecastRows renders the forecast as sheet rows, header first.
func ForecastRows(points []core.PredictionPoint) [][]any {
	rows := make([][]any, 0, len(points)+1)
	rows = append(rows, headerRow(ForecastHeader))
	for _, p := range points {
		rows = append(rows, []any{p.Date, p.PredictedFlow.InexactFloat64(), p.PredictedBalance.InexactFloat64()})
	}
	return rows
}

// MonthlyRows renders the monthly totals as sheet rows, header first.
func MonthlyRows(months []aggregate.MonthlyTotal) [][]any {
	rows := make([][]any, 0, len(months)+1)
	rows = append(rows, headerRow(MonthlyHeader))
	for _, m := range months {
		rows = append(rows, []any{m.Label(), m.Inflow.InexactFloat64(), m.Outflow.InexactFloat64(), m.Net.InexactFloat64()})
	}
	return rows
}

func headerRow(cols []string) []any {
	row := make([]any, len(cols))
	for i, c := range cols {
		row[i] = c
	}
	return row
}
