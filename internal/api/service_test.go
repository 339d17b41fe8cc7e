package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"fluxo/internal/core"
	"fluxo/internal/events"
	"fluxo/internal/log"
	"fluxo/internal/middleware/trace"
	"fluxo/internal/transport"
)

func newTestService(t *testing.T, h http.HandlerFunc, opts ...Option) (*Service, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	opts = append([]Option{WithLogger(log.Discard())}, opts...)
	return New(transport.New(srv.URL), opts...), &calls
}

type recordingPublisher struct {
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.events = append(p.events, e)
	return p.err
}

func TestUploadDatasetRejectsEmptySelectionWithoutNetwork(t *testing.T) {
	svc, calls := newTestService(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := svc.UploadDataset(context.Background(), nil, false)
	if !errors.Is(err, ErrNoFiles) {
		t.Fatalf("expected ErrNoFiles, got %v", err)
	}
	if transport.KindOf(err) != transport.KindValidation {
		t.Fatalf("kind=%q", transport.KindOf(err))
	}
	if *calls != 0 {
		t.Fatalf("expected no network calls, got %d", *calls)
	}
}

func TestUploadDatasetRejectsNonExcel(t *testing.T) {
	svc, calls := newTestService(t, func(w http.ResponseWriter, r *http.Request) {})

	files := []File{{Name: "a.xlsx", Reader: strings.NewReader("x")}, {Name: "notes.csv", Reader: strings.NewReader("y")}}
	_, err := svc.UploadDataset(context.Background(), files, false)
	if !errors.Is(err, ErrNotExcel) {
		t.Fatalf("expected ErrNotExcel, got %v", err)
	}
	if *calls != 0 {
		t.Fatalf("expected no network calls, got %d", *calls)
	}
}

func TestUploadDatasetFieldNames(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		field string
	}{
		{"single file", []string{"fluxo.xlsx"}, "file"},
		{"bundle", []string{"fluxo.xlsx", "contabil.XLSX"}, "files"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &recordingPublisher{}
			svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != pathUpload {
					t.Errorf("path=%s", r.URL.Path)
				}
				if err := r.ParseMultipartForm(1 << 20); err != nil {
					t.Errorf("parse: %v", err)
					return
				}
				if got := len(r.MultipartForm.File[tt.field]); got != len(tt.files) {
					t.Errorf("field %q has %d files, want %d", tt.field, got, len(tt.files))
				}
				if got := r.FormValue("has_outflow"); got != "true" {
					t.Errorf("has_outflow=%q", got)
				}
				w.Write([]byte(`{"message":"Arquivos processados"}`))
			}, WithPublisher(pub))

			files := make([]File, len(tt.files))
			for i, name := range tt.files {
				files[i] = File{Name: name, Reader: strings.NewReader("PK")}
			}
			res, err := svc.UploadDataset(context.Background(), files, true)
			if err != nil {
				t.Fatalf("UploadDataset: %v", err)
			}
			if res.Message != "Arquivos processados" {
				t.Errorf("message=%q", res.Message)
			}
			if len(pub.events) != 1 {
				t.Fatalf("published %d events, want 1", len(pub.events))
			}
			e := pub.events[0]
			if e.Kind != events.DataChanged || e.ID == "" || len(e.Files) != len(tt.files) || !e.HasOutflow {
				t.Errorf("unexpected event %+v", e)
			}
		})
	}
}

func TestUploadDatasetFailurePropagatesServerMessage(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail":"bad file"}`))
	}, WithPublisher(pub))

	_, err := svc.UploadDataset(context.Background(), []File{{Name: "a.xlsx", Reader: strings.NewReader("x")}}, false)
	if err == nil || err.Error() != "bad file" {
		t.Fatalf("expected 'bad file', got %v", err)
	}
	if transport.StatusOf(err) != http.StatusBadRequest {
		t.Errorf("status=%d", transport.StatusOf(err))
	}
	if len(pub.events) != 0 {
		t.Fatalf("failed upload must not publish, got %d events", len(pub.events))
	}
}

func TestUploadDatasetMalformedAckStillPublishes(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":1}`))
	}, WithPublisher(pub))

	_, err := svc.UploadDataset(context.Background(), []File{{Name: "a.xlsx", Reader: strings.NewReader("x")}}, false)
	if transport.KindOf(err) != transport.KindDecode {
		t.Fatalf("expected decode error, got %v", err)
	}
	if len(pub.events) != 1 || pub.events[0].Kind != events.DataChanged {
		t.Fatalf("accepted upload must publish once, got %+v", pub.events)
	}
}

func TestUploadDatasetFileWithoutReader(t *testing.T) {
	pub := &recordingPublisher{}
	svc, calls := newTestService(t, func(w http.ResponseWriter, r *http.Request) {}, WithPublisher(pub))

	_, err := svc.UploadDataset(context.Background(), []File{{Name: "a.xlsx"}}, false)
	if transport.KindOf(err) != transport.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if *calls != 0 || len(pub.events) != 0 {
		t.Fatalf("calls=%d events=%d", *calls, len(pub.events))
	}
}

func TestUploadDatasetPublishFailureIsNotReturned(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":"ok"}`))
	}, WithPublisher(pub))

	if _, err := svc.UploadDataset(context.Background(), []File{{Name: "a.xlsx", Reader: strings.NewReader("x")}}, false); err != nil {
		t.Fatalf("UploadDataset: %v", err)
	}
}

func TestSimulateScenarioSendsFractions(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["variacao_entrada"] != 0.25 {
			t.Errorf("variacao_entrada=%v", body["variacao_entrada"])
		}
		if body["variacao_saida"] != -0.1 {
			t.Errorf("variacao_saida=%v", body["variacao_saida"])
		}
		if body["dias_simulacao"] != float64(30) || body["num_simulacoes"] != float64(1000) {
			t.Errorf("unexpected body %v", body)
		}
		if _, ok := body["usar_correlacao_ia"]; ok {
			t.Errorf("correlation flag should be omitted when false")
		}
		w.Write([]byte(`{"success":true,"summary":{"prob_saldo_negativo":0.12,"fluxo_minimo":-500,"fluxo_mediano":1200.5,"fluxo_maximo":"3000","dias":30}}`))
	})

	sum, err := svc.SimulateScenario(context.Background(), ScenarioParams{
		InflowVariationPct:  25,
		OutflowVariationPct: -10,
		Days:                30,
		Trials:              1000,
	})
	if err != nil {
		t.Fatalf("SimulateScenario: %v", err)
	}
	if sum.ProbNegative != 0.12 || !sum.Min.Equal(decimal.NewFromInt(-500)) || !sum.Max.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("unexpected summary %+v", sum)
	}
	if sum.Risk() != core.RiskLow {
		t.Errorf("risk=%v", sum.Risk())
	}
	if _, ok := sum.Details["dias"]; !ok {
		t.Errorf("extra keys should be kept in Details")
	}
}

func TestDecodeSummaryEnvelopes(t *testing.T) {
	const summary = `{"prob_saldo_negativo":0.4,"fluxo_minimo":1,"fluxo_mediano":2,"fluxo_maximo":3}`

	tests := []struct {
		name     string
		body     string
		legacy   bool
		wantKind transport.Kind
		wantErr  error
	}{
		{"canonical", `{"success":true,"summary":` + summary + `}`, false, "", nil},
		{"results_summary", `{"success":true,"results_summary":` + summary + `}`, true, "", nil},
		{"simulated_summary", `{"simulated_summary":` + summary + `}`, true, "", nil},
		{"legacy disabled", `{"results_summary":` + summary + `}`, false, transport.KindDecode, ErrUnknownEnvelope},
		{"unsuccessful", `{"success":false,"error":"not enough data"}`, true, transport.KindBackend, ErrSimulationFailed},
		{"empty object", `{}`, true, transport.KindDecode, ErrUnknownEnvelope},
		{"not an object", `[1,2]`, true, transport.KindDecode, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}, WithLegacySummaries(tt.legacy))

			sum, err := svc.SimulateMacroScenario(context.Background(), core.Pessimistic, nil)
			if tt.wantKind == "" {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
				if sum.ProbNegative != 0.4 {
					t.Errorf("prob=%v", sum.ProbNegative)
				}
				return
			}
			if transport.KindOf(err) != tt.wantKind {
				t.Fatalf("kind=%q want %q (err %v)", transport.KindOf(err), tt.wantKind, err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestUnsuccessfulSimulationUsesBackendMessage(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"error":"not enough data"}`))
	})
	_, err := svc.SimulateScenario(context.Background(), ScenarioParams{Days: 30, Trials: 10})
	if err == nil || err.Error() != "not enough data" {
		t.Fatalf("got %v", err)
	}
}

func TestSimulateMacroScenarioPayload(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != pathScenarioSim {
			t.Errorf("path=%s", r.URL.Path)
		}
		var body struct {
			ScenarioType string                 `json:"scenario_type"`
			Rules        []core.SeasonalityRule `json:"seasonality_rules"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.ScenarioType != "otimista" {
			t.Errorf("scenario_type=%q", body.ScenarioType)
		}
		if len(body.Rules) != 1 || body.Rules[0].Month != "Dezembro" || body.Rules[0].RevenueChangePercentage != 20 {
			t.Errorf("rules=%+v", body.Rules)
		}
		w.Write([]byte(`{"success":true,"summary":{"prob_saldo_negativo":0}}`))
	})

	rules := core.SeasonalityRules{}.Set(core.SeasonalityRule{Month: "Dezembro", RevenueChangePercentage: 20})
	if _, err := svc.SimulateMacroScenario(context.Background(), core.Optimistic, rules); err != nil {
		t.Fatalf("SimulateMacroScenario: %v", err)
	}
}

func TestSimulateBusinessEventsSendsOnlyActiveModifiers(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		var body businessEventsRequest
		json.NewDecoder(r.Body).Decode(&body)
		if body.SimulationType != "business_events" {
			t.Errorf("simulation_type=%q", body.SimulationType)
		}
		if len(body.Modifiers) != 1 || body.Modifiers[0].Name != "Aluguel" || body.Modifiers[0].DelayDays != 5 {
			t.Errorf("modifiers=%+v", body.Modifiers)
		}
		w.Write([]byte(`{"success":true,"summary":{"prob_saldo_negativo":0.01}}`))
	})

	mods := []core.EventModifier{{Name: "Vendas"}, {Name: "Aluguel", DelayDays: 5}}
	if _, err := svc.SimulateBusinessEvents(context.Background(), mods); err != nil {
		t.Fatalf("SimulateBusinessEvents: %v", err)
	}
}

func TestSimulateLoanImpactSendsNumbers(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["simulation_type"] != "loan" || body["loan_amount"] != 50000.5 || body["term_months"] != float64(12) {
			t.Errorf("unexpected body %v", body)
		}
		w.Write([]byte(`{"success":true,"summary":{"prob_saldo_negativo":0.02}}`))
	})

	loan := core.LoanRequest{Amount: decimal.RequireFromString("50000.50"), MonthlyRate: 0.015, TermMonths: 12}
	if _, err := svc.SimulateLoanImpact(context.Background(), loan); err != nil {
		t.Fatalf("SimulateLoanImpact: %v", err)
	}
}

func TestPredictCashflowReturnsAscendingPoints(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		var body predictRequest
		json.NewDecoder(r.Body).Decode(&body)
		if body.Days != 30 {
			t.Errorf("days=%d", body.Days)
		}
		points := make([]string, 0, body.Days)
		for d := body.Days; d >= 1; d-- {
			points = append(points, fmt.Sprintf(`{"date":"2025-01-%02d","predicted_flow":%d,"predicted_balance":%d}`, d, d, d*10))
		}
		w.Write([]byte("[" + strings.Join(points, ",") + "]"))
	})

	points, err := svc.PredictCashflow(context.Background(), 30)
	if err != nil {
		t.Fatalf("PredictCashflow: %v", err)
	}
	if len(points) != 30 {
		t.Fatalf("got %d points", len(points))
	}
	for i := 1; i < len(points); i++ {
		if points[i-1].Date >= points[i].Date {
			t.Fatalf("points not ascending at %d: %s >= %s", i, points[i-1].Date, points[i].Date)
		}
	}
}

func TestListTransactionsQuery(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("limit") != "5000" || q.Get("start_date") != "1900-01-01" || q.Get("order") != "asc" {
			t.Errorf("query=%s", r.URL.RawQuery)
		}
		if q.Has("end_date") {
			t.Errorf("empty end_date should not be sent")
		}
		w.Write([]byte(`[{"date":"2024-01-01","inflow_amount":100,"outflow_amount":"40.5","running_balance":59.5}]`))
	})

	rows, err := svc.ListTransactions(context.Background(), TransactionQuery{Limit: 5000, StartDate: "1900-01-01", Order: "asc"})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(rows) != 1 || !rows[0].Outflow.Equal(decimal.RequireFromString("40.5")) {
		t.Fatalf("rows=%+v", rows)
	}
}

func TestDecodeFailureIsDecodeKind(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"total_inflow":"abc"}`))
	})
	_, err := svc.GetStatistics(context.Background())
	if transport.KindOf(err) != transport.KindDecode {
		t.Fatalf("kind=%q err=%v", transport.KindOf(err), err)
	}
}

func TestGenerateReport(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		var body reportRequest
		json.NewDecoder(r.Body).Decode(&body)
		if body.Page != "dashboard" || body.Context["scenario"] != "otimista" {
			t.Errorf("body=%+v", body)
		}
		w.Write([]byte(`{"report_markdown":"# Relatório"}`))
	})

	rep, err := svc.GenerateReport(context.Background(), "dashboard", map[string]any{"scenario": "otimista"})
	if err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	if rep.Markdown != "# Relatório" {
		t.Errorf("markdown=%q", rep.Markdown)
	}
}

func TestServerErrorsPropagateUnchanged(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"detail":"model not trained"}`))
	})

	_, err := svc.FeatureImportance(context.Background())
	var terr *transport.Error
	if !errors.As(err, &terr) {
		t.Fatalf("expected *transport.Error, got %T", err)
	}
	if terr.Message != "model not trained" || terr.Status != 500 || terr.Kind != transport.KindHTTP {
		t.Errorf("unexpected error %+v", terr)
	}
}

func TestUploadRequestIDMatchesEvent(t *testing.T) {
	var requestID string
	pub := &recordingPublisher{}
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		requestID = r.Header.Get(trace.HeaderRequestID)
		w.Write([]byte(`{"message":"ok"}`))
	}, WithPublisher(pub))

	files := []File{{Name: "dados.xlsx", Reader: strings.NewReader("x")}}
	if _, err := svc.UploadDataset(context.Background(), files, false); err != nil {
		t.Fatalf("UploadDataset() error = %v", err)
	}
	if len(pub.events) != 1 || requestID == "" || pub.events[0].ID != requestID {
		t.Errorf("request id %q, events %+v", requestID, pub.events)
	}
}
