package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fluxo/internal/amqp"
	"fluxo/internal/api"
	"fluxo/internal/cache"
	"fluxo/internal/core"
	"fluxo/internal/log"
	"fluxo/internal/sheets"
	"fluxo/internal/sheets/memory"
	"fluxo/internal/storage"
)

const twoMonths = `[
	{"date":"2024-01-05","inflow_amount":100,"outflow_amount":40},
	{"date":"2024-01-20","inflow_amount":50,"outflow_amount":0},
	{"date":"2024-02-03","inflow_amount":0,"outflow_amount":30}
]`

type fakeSource struct {
	mu          sync.Mutex
	predictErr  error
	predictDays []int
}

func (f *fakeSource) PredictCashflow(_ context.Context, days int) ([]core.PredictionPoint, error) {
	f.mu.Lock()
	f.predictDays = append(f.predictDays, days)
	f.mu.Unlock()
	if f.predictErr != nil {
		return nil, f.predictErr
	}
	points := make([]core.PredictionPoint, days)
	for i := range points {
		points[i] = core.PredictionPoint{
			Date:             time.Date(2024, 3, 1+i, 0, 0, 0, 0, time.UTC).Format(core.DateLayout),
			PredictedFlow:    decimal.NewFromInt(10),
			PredictedBalance: decimal.NewFromInt(int64(100 + 10*i)),
		}
	}
	return points, nil
}

func (f *fakeSource) ListTransactionsRaw(context.Context, api.TransactionQuery) (json.RawMessage, error) {
	return json.RawMessage(twoMonths), nil
}

func (f *fakeSource) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.predictDays)
}

type fakeJournal struct {
	mu   sync.Mutex
	runs []storage.RefreshRun
	err  error
}

func (j *fakeJournal) RecordRefresh(_ context.Context, run storage.RefreshRun) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.runs = append(j.runs, run)
	return int64(len(j.runs)), j.err
}

type failingExporter struct{}

func (failingExporter) Export(context.Context, sheets.Snapshot) error {
	return errors.New("quota exceeded")
}

func newTestWorker(t *testing.T, source Source, exporter sheets.Exporter, opts ...Option) *RefreshWorker {
	t.Helper()
	opts = append([]Option{WithLogger(log.Discard())}, opts...)
	w, err := NewRefreshWorker(source, exporter, 7, opts...)
	if err != nil {
		t.Fatalf("NewRefreshWorker() error = %v", err)
	}
	return w
}

func TestNewRefreshWorkerRejectsInvalidDays(t *testing.T) {
	for _, days := range []int{0, -1, 366} {
		if _, err := NewRefreshWorker(&fakeSource{}, memory.New(), days); !errors.Is(err, core.ErrInvalidDays) {
			t.Errorf("days=%d: error = %v, want ErrInvalidDays", days, err)
		}
	}
}

func TestRefreshExportsSnapshot(t *testing.T) {
	source := &fakeSource{}
	store := memory.New()
	journal := &fakeJournal{}
	w := newTestWorker(t, source, store, WithJournal(journal))

	snapshot, err := w.Refresh(context.Background(), SourceManual, "")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if len(snapshot.Forecast) != 7 {
		t.Errorf("forecast points = %d, want 7", len(snapshot.Forecast))
	}
	if len(snapshot.Monthly) != 2 {
		t.Fatalf("monthly totals = %d, want 2", len(snapshot.Monthly))
	}
	jan := snapshot.Monthly[0]
	if jan.Label() != "2024-01" || !jan.Net.Equal(decimal.NewFromInt(110)) {
		t.Errorf("january = %s net %s, want 2024-01 net 110", jan.Label(), jan.Net)
	}

	latest, ok, err := store.Latest(context.Background())
	if err != nil || !ok {
		t.Fatalf("Latest() = %v, %v", ok, err)
	}
	if latest.Days != 7 || len(latest.Forecast) != 7 {
		t.Errorf("exported snapshot = %+v", latest)
	}

	if len(journal.runs) != 1 {
		t.Fatalf("journal runs = %d, want 1", len(journal.runs))
	}
	run := journal.runs[0]
	if run.Status != storage.StatusSuccess || run.Source != SourceManual || run.Points != 7 || run.Months != 2 {
		t.Errorf("run = %+v", run)
	}
}

func TestRefreshFailureIsJournaledAndNotExported(t *testing.T) {
	source := &fakeSource{predictErr: errors.New("backend down")}
	store := memory.New()
	journal := &fakeJournal{}
	w := newTestWorker(t, source, store, WithJournal(journal))

	if _, err := w.Refresh(context.Background(), SourceSchedule, ""); err == nil {
		t.Fatal("Refresh() should fail when the forecast fails")
	}
	if store.Count() != 0 {
		t.Errorf("exports = %d, want 0", store.Count())
	}
	if len(journal.runs) != 1 || journal.runs[0].Status != storage.StatusFailed {
		t.Fatalf("runs = %+v", journal.runs)
	}
	if journal.runs[0].Error == "" {
		t.Error("failed run should carry the error")
	}
}

func TestRefreshExportFailure(t *testing.T) {
	journal := &fakeJournal{}
	w := newTestWorker(t, &fakeSource{}, failingExporter{}, WithJournal(journal))

	if _, err := w.Refresh(context.Background(), SourceManual, ""); err == nil {
		t.Fatal("Refresh() should fail when export fails")
	}
	if journal.runs[0].Status != storage.StatusFailed {
		t.Errorf("status = %q", journal.runs[0].Status)
	}
}

func TestJournalFailureDoesNotFailRefresh(t *testing.T) {
	journal := &fakeJournal{err: errors.New("disk full")}
	w := newTestWorker(t, &fakeSource{}, memory.New(), WithJournal(journal))

	if _, err := w.Refresh(context.Background(), SourceManual, ""); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
}

func TestHandleDatasetChangedSkipsDuplicates(t *testing.T) {
	source := &fakeSource{}
	store := memory.New()
	w := newTestWorker(t, source, store, WithDeduper(cache.NewDeduper(10, time.Minute)))

	msg := &amqp.DatasetChangedMessage{ID: "m-1", Files: []string{"fluxo.xlsx"}}
	for i := 0; i < 3; i++ {
		if err := w.HandleDatasetChanged(context.Background(), msg); err != nil {
			t.Fatalf("HandleDatasetChanged() error = %v", err)
		}
	}
	if source.calls() != 1 || store.Count() != 1 {
		t.Errorf("calls = %d exports = %d, want 1 and 1", source.calls(), store.Count())
	}

	other := &amqp.DatasetChangedMessage{ID: "m-2"}
	if err := w.HandleDatasetChanged(context.Background(), other); err != nil {
		t.Fatalf("HandleDatasetChanged() error = %v", err)
	}
	if store.Count() != 2 {
		t.Errorf("exports = %d, want 2", store.Count())
	}
}

func TestHandleDatasetChangedRetriesAfterFailure(t *testing.T) {
	source := &fakeSource{predictErr: errors.New("backend down")}
	store := memory.New()
	w := newTestWorker(t, source, store, WithDeduper(cache.NewDeduper(10, time.Minute)))

	msg := &amqp.DatasetChangedMessage{ID: "m-1"}
	if err := w.HandleDatasetChanged(context.Background(), msg); err == nil {
		t.Fatal("first delivery should fail")
	}

	source.mu.Lock()
	source.predictErr = nil
	source.mu.Unlock()

	if err := w.HandleDatasetChanged(context.Background(), msg); err != nil {
		t.Fatalf("redelivery error = %v", err)
	}
	if store.Count() != 1 {
		t.Errorf("exports = %d, want 1", store.Count())
	}
}

func TestRunScheduleRejectsBadSpec(t *testing.T) {
	w := newTestWorker(t, &fakeSource{}, memory.New())
	if err := w.RunSchedule(context.Background(), "not a schedule"); err == nil {
		t.Fatal("RunSchedule() should reject an invalid spec")
	}
}

func TestRunScheduleStopsWithContext(t *testing.T) {
	w := newTestWorker(t, &fakeSource{}, memory.New())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.RunSchedule(ctx, "@every 1h") }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunSchedule() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunSchedule() did not stop after cancel")
	}
}

func TestIsShutdown(t *testing.T) {
	if !IsShutdown(context.Canceled) || IsShutdown(errors.New("boom")) {
		t.Error("IsShutdown misclassified errors")
	}
}
