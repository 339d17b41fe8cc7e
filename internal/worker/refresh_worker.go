// Package worker keeps the exported forecast and monthly series in step
// with the backend dataset.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"fluxo/internal/aggregate"
	"fluxo/internal/amqp"
	"fluxo/internal/api"
	"fluxo/internal/cache"
	"fluxo/internal/core"
	"fluxo/internal/dashboard"
	"fluxo/internal/log"
	"fluxo/internal/sheets"
	"fluxo/internal/storage"
)

// Refresh sources.
const (
	SourceMessage  = "message"
	SourceSchedule = "schedule"
	SourceStartup  = "startup"
	SourceManual   = "manual"
)

// Source is the part of the api service a refresh reads from.
type Source interface {
	PredictCashflow(ctx context.Context, futureDays int) ([]core.PredictionPoint, error)
	ListTransactionsRaw(ctx context.Context, q api.TransactionQuery) (json.RawMessage, error)
}

// Journal records refresh outcomes.
type Journal interface {
	RecordRefresh(ctx context.Context, run storage.RefreshRun) (int64, error)
}

// RefreshWorker rebuilds and exports the snapshot on dataset changes and on
// a schedule.
type RefreshWorker struct {
	source   Source
	exporter sheets.Exporter
	days     int
	journal  Journal
	dedupe   *cache.Deduper
	logger   *log.Logger
	now      func() time.Time
}

type Option func(*RefreshWorker)

// WithJournal records every refresh in j.
func WithJournal(j Journal) Option {
	return func(w *RefreshWorker) { w.journal = j }
}

// WithDeduper skips messages whose id was already handled.
func WithDeduper(d *cache.Deduper) Option {
	return func(w *RefreshWorker) { w.dedupe = d }
}

func WithLogger(l *log.Logger) Option {
	return func(w *RefreshWorker) { w.logger = l }
}

func NewRefreshWorker(source Source, exporter sheets.Exporter, days int, opts ...Option) (*RefreshWorker, error) {
	if err := core.ValidateForecastDays(days); err != nil {
		return nil, err
	}
	w := &RefreshWorker{
		source:   source,
		exporter: exporter,
		days:     days,
		logger:   log.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.WithComponent(log.ComponentWorker)
	return w, nil
}

// HandleDatasetChanged implements amqp.Handler. A failed refresh forgets the
// message id so the requeued delivery runs again.
func (w *RefreshWorker) HandleDatasetChanged(ctx context.Context, msg *amqp.DatasetChangedMessage) error {
	if w.dedupe != nil && !w.dedupe.FirstSeen(msg.ID) {
		w.logger.InfoContext(ctx, "Skipping duplicate dataset change", log.FieldMessageID, msg.ID)
		return nil
	}

	if _, err := w.Refresh(ctx, SourceMessage, msg.ID); err != nil {
		if w.dedupe != nil {
			w.dedupe.Forget(msg.ID)
		}
		return err
	}
	return nil
}

// Refresh fetches the forecast and the monthly series concurrently and
// exports them as one snapshot.
func (w *RefreshWorker) Refresh(ctx context.Context, source, messageID string) (sheets.Snapshot, error) {
	run := storage.RefreshRun{
		Source:    source,
		MessageID: messageID,
		Days:      w.days,
		StartedAt: w.now(),
	}

	snapshot, err := w.build(ctx)
	if err == nil {
		if exportErr := w.exporter.Export(ctx, snapshot); exportErr != nil {
			err = fmt.Errorf("export snapshot: %w", exportErr)
		}
	}

	run.FinishedAt = w.now()
	run.Points = len(snapshot.Forecast)
	run.Months = len(snapshot.Monthly)
	if err != nil {
		run.Status = storage.StatusFailed
		run.Error = err.Error()
		w.logger.ErrorContext(ctx, "Refresh failed",
			log.FieldOperation, log.OpRefresh,
			log.FieldTrigger, source,
			log.FieldMessageID, messageID,
			log.FieldError, err)
	} else {
		run.Status = storage.StatusSuccess
		w.logger.InfoContext(ctx, "Refresh exported",
			log.FieldOperation, log.OpRefresh,
			log.FieldTrigger, source,
			log.FieldMessageID, messageID,
			log.FieldDays, w.days,
			"points", run.Points,
			"months", run.Months,
			log.FieldDuration, run.FinishedAt.Sub(run.StartedAt).Milliseconds())
	}

	w.record(ctx, run)
	return snapshot, err
}

func (w *RefreshWorker) build(ctx context.Context) (sheets.Snapshot, error) {
	snapshot := sheets.Snapshot{GeneratedAt: w.now(), Days: w.days}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		points, err := w.source.PredictCashflow(gctx, w.days)
		if err != nil {
			return fmt.Errorf("predict cash flow: %w", err)
		}
		snapshot.Forecast = points
		return nil
	})
	g.Go(func() error {
		raw, err := w.source.ListTransactionsRaw(gctx, dashboard.OverviewQuery)
		if err != nil {
			return fmt.Errorf("list transactions: %w", err)
		}
		snapshot.Monthly = aggregate.FromJSON(raw).Monthly
		return nil
	})
	if err := g.Wait(); err != nil {
		return sheets.Snapshot{}, err
	}
	return snapshot, nil
}

// record stores run in the journal. Journal failures never fail a refresh.
func (w *RefreshWorker) record(ctx context.Context, run storage.RefreshRun) {
	if w.journal == nil {
		return
	}
	if _, err := w.journal.RecordRefresh(context.WithoutCancel(ctx), run); err != nil {
		w.logger.WarnContext(ctx, "Failed to record refresh", log.FieldError, err)
	}
}

// RunSchedule refreshes on the standard cron spec until ctx is done.
func (w *RefreshWorker) RunSchedule(ctx context.Context, spec string) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if ctx.Err() != nil {
			return
		}
		_, _ = w.Refresh(ctx, SourceSchedule, "")
	})
	if err != nil {
		return fmt.Errorf("parse refresh schedule %q: %w", spec, err)
	}

	w.logger.InfoContext(ctx, "Scheduled refresh", "schedule", spec)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// IsShutdown reports whether err only signals that ctx ended.
func IsShutdown(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
