package dashboard

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"fluxo/internal/aggregate"
	"fluxo/internal/api"
	"fluxo/internal/core"
	"fluxo/internal/log"
)

// View names.
const (
	ViewOverview = "overview"
	ViewCycles   = "cycles"
	ViewForecast = "forecast"
	ViewEvents   = "events"
)

// TopFeatureCount is how many features the forecast view ranks.
const TopFeatureCount = 5

// OverviewQuery selects every row the backend holds, oldest first.
var OverviewQuery = api.TransactionQuery{
	Limit:     5000,
	StartDate: "1900-01-01",
	EndDate:   "2100-12-31",
	Order:     "asc",
}

// Backend is the part of the api service the views read from.
type Backend interface {
	GetStatistics(ctx context.Context) (core.StatisticsSnapshot, error)
	ListTransactionsRaw(ctx context.Context, q api.TransactionQuery) (json.RawMessage, error)
	GetOperationalCycles(ctx context.Context) (core.OperationalCycles, error)
	PredictCashflow(ctx context.Context, futureDays int) ([]core.PredictionPoint, error)
	FeatureImportance(ctx context.Context) ([]core.FeatureImportance, error)
	GetKeyBusinessEvents(ctx context.Context) (core.KeyEvents, error)
}

type (
	// Overview is the VisaoGeral page: dataset statistics and derived series.
	Overview struct {
		Stats        core.StatisticsSnapshot
		Transactions []core.Transaction
		Series       aggregate.Series
	}

	// Cycles is the operational cycle page.
	Cycles struct {
		Metrics             core.OperationalCycles
		CashConversionCycle float64
	}

	// Forecast is the prediction page.
	Forecast struct {
		Days     int
		Points   []core.PredictionPoint
		Features []core.RankedFeature
	}

	// Events is the business events page with one editable modifier per event.
	Events struct {
		Key       core.KeyEvents
		Modifiers []core.EventModifier
	}
)

// NewOverview builds the overview view. Statistics and rows are fetched
// concurrently.
func NewOverview(b Backend, logger *log.Logger) *Panel[Overview] {
	return NewPanel(ViewOverview, func(ctx context.Context) (Overview, error) {
		var (
			out Overview
			raw json.RawMessage
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			stats, err := b.GetStatistics(gctx)
			out.Stats = stats
			return err
		})
		g.Go(func() error {
			var err error
			raw, err = b.ListTransactionsRaw(gctx, OverviewQuery)
			return err
		})
		if err := g.Wait(); err != nil {
			return Overview{}, err
		}
		out.Transactions = aggregate.DecodeRows(raw)
		out.Series = aggregate.Compute(out.Transactions)
		return out, nil
	}, logger)
}

// NewCycles builds the operational cycles view.
func NewCycles(b Backend, logger *log.Logger) *Panel[Cycles] {
	return NewPanel(ViewCycles, func(ctx context.Context) (Cycles, error) {
		m, err := b.GetOperationalCycles(ctx)
		if err != nil {
			return Cycles{}, err
		}
		return Cycles{Metrics: m, CashConversionCycle: m.CashConversionCycle()}, nil
	}, logger)
}

// NewForecast builds the forecast view for a horizon of days.
func NewForecast(b Backend, days int, logger *log.Logger) (*Panel[Forecast], error) {
	if err := core.ValidateForecastDays(days); err != nil {
		return nil, fmt.Errorf("forecast view: %w", err)
	}
	return NewPanel(ViewForecast, func(ctx context.Context) (Forecast, error) {
		out := Forecast{Days: days}
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			points, err := b.PredictCashflow(gctx, days)
			out.Points = points
			return err
		})
		g.Go(func() error {
			features, err := b.FeatureImportance(gctx)
			out.Features = core.TopFeatures(features, TopFeatureCount)
			return err
		})
		if err := g.Wait(); err != nil {
			return Forecast{}, err
		}
		return out, nil
	}, logger), nil
}

// NewEvents builds the business events view.
func NewEvents(b Backend, logger *log.Logger) *Panel[Events] {
	return NewPanel(ViewEvents, func(ctx context.Context) (Events, error) {
		key, err := b.GetKeyBusinessEvents(ctx)
		if err != nil {
			return Events{}, err
		}
		return Events{Key: key, Modifiers: core.SeedModifiers(key)}, nil
	}, logger)
}
