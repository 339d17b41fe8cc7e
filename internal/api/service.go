// Package api maps each dashboard action to exactly one backend call and
// shapes the response into the records in core.
//
// No business validation happens here: transport errors propagate unchanged
// and callers decide how to present them.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"fluxo/internal/core"
	"fluxo/internal/events"
	"fluxo/internal/log"
	"fluxo/internal/middleware/trace"
	"fluxo/internal/transport"
)

var (
	ErrNoFiles          = errors.New("no files selected for upload")
	ErrNotExcel         = errors.New("only Excel workbooks (.xlsx) can be uploaded")
	ErrSimulationFailed = errors.New("simulation was not successful")
	ErrUnknownEnvelope  = errors.New("unrecognised simulation response")
)

// File is one workbook to upload.
type File struct {
	Name   string
	Reader io.Reader
}

// Service is the typed surface over the backend.
type Service struct {
	client       *transport.Client
	publisher    events.Publisher
	logger       *log.Logger
	acceptLegacy bool
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher broadcasts DataChanged after each successful upload.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithLogger sets the service logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l.WithComponent(log.ComponentAPI) }
}

// WithLegacySummaries controls whether deprecated simulation envelopes are
// still decoded.
func WithLegacySummaries(accept bool) Option {
	return func(s *Service) { s.acceptLegacy = accept }
}

// New creates a Service on top of client.
func New(client *transport.Client, opts ...Option) *Service {
	s := &Service{
		client:       client,
		logger:       log.Default().WithComponent(log.ComponentAPI),
		acceptLegacy: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsExcel reports whether name looks like an .xlsx workbook.
func IsExcel(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".xlsx")
}

// UploadDataset sends the workbooks in one multipart request. A single file
// goes in field "file", several in repeated "files". Once the backend
// accepts the upload exactly one DataChanged event is published, even if its
// response body cannot be decoded.
func (s *Service) UploadDataset(ctx context.Context, files []File, hasOutflow bool) (core.UploadResult, error) {
	if len(files) == 0 {
		return core.UploadResult{}, transport.Validation(ErrNoFiles)
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		if !IsExcel(f.Name) {
			return core.UploadResult{}, transport.Validation(fmt.Errorf("%w: %s", ErrNotExcel, filepath.Base(f.Name)))
		}
		names = append(names, filepath.Base(f.Name))
	}

	field := "file"
	if len(files) > 1 {
		field = "files"
	}
	form := transport.NewForm()
	for _, f := range files {
		form.AddFile(field, f.Name, f.Reader)
	}
	form.AddField("has_outflow", strconv.FormatBool(hasOutflow))

	// the event id doubles as the request id so backend logs match the broadcast
	id := uuid.NewString()
	raw, err := s.client.PostForm(trace.WithRequestID(ctx, id), pathUpload, form)
	if err != nil {
		s.fail(ctx, log.OpUpload, err, log.FieldFiles, names)
		return core.UploadResult{}, err
	}
	// the backend has replaced the dataset, so views refresh even when the
	// acknowledgement body is malformed
	res, decodeErr := decode[core.UploadResult](raw, "upload result")

	s.logger.InfoContext(ctx, "Dataset uploaded", log.FieldFiles, names, "has_outflow", hasOutflow)
	s.notify(ctx, events.Event{
		ID:         id,
		Kind:       events.DataChanged,
		Files:      names,
		HasOutflow: hasOutflow,
		Message:    res.Message,
		At:         time.Now(),
	})
	if decodeErr != nil {
		return core.UploadResult{}, decodeErr
	}
	return res, nil
}

func (s *Service) notify(ctx context.Context, e events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "Failed to broadcast data change", log.FieldError, err, "event_id", e.ID)
	}
}

// GetStatistics returns the dataset summary.
func (s *Service) GetStatistics(ctx context.Context) (core.StatisticsSnapshot, error) {
	return get[core.StatisticsSnapshot](ctx, s, pathStatistics, nil, "statistics")
}

// ListTransactionsRaw returns the processed rows as the backend sent them.
func (s *Service) ListTransactionsRaw(ctx context.Context, q TransactionQuery) (json.RawMessage, error) {
	raw, err := s.client.Get(ctx, pathTransactions, q.values())
	if err != nil {
		s.fail(ctx, log.OpList, err)
		return nil, err
	}
	return raw, nil
}

// ListTransactions returns the processed rows.
func (s *Service) ListTransactions(ctx context.Context, q TransactionQuery) ([]core.Transaction, error) {
	raw, err := s.ListTransactionsRaw(ctx, q)
	if err != nil {
		return nil, err
	}
	return decode[[]core.Transaction](raw, "transactions")
}

func (q TransactionQuery) values() url.Values {
	v := url.Values{}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.StartDate != "" {
		v.Set("start_date", q.StartDate)
	}
	if q.EndDate != "" {
		v.Set("end_date", q.EndDate)
	}
	if q.Order != "" {
		v.Set("order", q.Order)
	}
	return v
}

// PredictCashflow forecasts futureDays days ahead. The range is the caller's
// concern. Points are returned in ascending date order.
func (s *Service) PredictCashflow(ctx context.Context, futureDays int) ([]core.PredictionPoint, error) {
	points, err := post[[]core.PredictionPoint](ctx, s, pathPredict, predictRequest{Days: futureDays}, "predictions")
	if err != nil {
		return nil, err
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].Date < points[j].Date })
	return points, nil
}

// FeatureImportance returns the regression feature weights.
func (s *Service) FeatureImportance(ctx context.Context) ([]core.FeatureImportance, error) {
	return get[[]core.FeatureImportance](ctx, s, pathFeatureImportance, nil, "feature importance")
}

// SimulateScenario runs a Monte Carlo simulation. Percentages are sent as fractions.
func (s *Service) SimulateScenario(ctx context.Context, p ScenarioParams) (core.ScenarioSummary, error) {
	req := scenarioRequest{
		InflowVariation:  p.InflowVariationPct / 100,
		OutflowVariation: p.OutflowVariationPct / 100,
		Days:             p.Days,
		Trials:           p.Trials,
		UseAICorrelation: p.UseAICorrelation,
	}
	return s.simulate(ctx, pathScenarios, req)
}

// SimulateMacroScenario applies a macroeconomic outlook plus seasonality rules.
func (s *Service) SimulateMacroScenario(ctx context.Context, scenario core.ScenarioType, rules core.SeasonalityRules) (core.ScenarioSummary, error) {
	if rules == nil {
		rules = core.SeasonalityRules{}
	}
	return s.simulate(ctx, pathScenarioSim, macroScenarioRequest{ScenarioType: scenario, SeasonalityRules: rules})
}

// GetOperationalCycles returns PMR, PMP and PME.
func (s *Service) GetOperationalCycles(ctx context.Context) (core.OperationalCycles, error) {
	return get[core.OperationalCycles](ctx, s, pathOperationalCycles, nil, "operational cycles")
}

// GetKeyBusinessEvents returns the recurring inflows and outflows.
func (s *Service) GetKeyBusinessEvents(ctx context.Context) (core.KeyEvents, error) {
	return get[core.KeyEvents](ctx, s, pathKeyEvents, nil, "key events")
}

// SimulateBusinessEvents re-simulates with the given modifiers. Modifiers
// without effect are not sent.
func (s *Service) SimulateBusinessEvents(ctx context.Context, modifiers []core.EventModifier) (core.ScenarioSummary, error) {
	req := businessEventsRequest{
		SimulationType: simulationBusinessEvents,
		Modifiers:      core.ActiveModifiers(modifiers),
	}
	return s.simulate(ctx, pathScenarioSim, req)
}

// GetLoanSuggestion returns the backend's advisory loan.
func (s *Service) GetLoanSuggestion(ctx context.Context) (core.LoanSuggestion, error) {
	return get[core.LoanSuggestion](ctx, s, pathLoanSuggestion, nil, "loan suggestion")
}

// SimulateLoanImpact simulates cash flow with the loan applied.
func (s *Service) SimulateLoanImpact(ctx context.Context, loan core.LoanRequest) (core.ScenarioSummary, error) {
	req := loanRequest{
		SimulationType: simulationLoan,
		Amount:         loan.Amount.InexactFloat64(),
		MonthlyRate:    loan.MonthlyRate,
		TermMonths:     loan.TermMonths,
	}
	return s.simulate(ctx, pathScenarioSim, req)
}

// GenerateReport asks the backend for a markdown report about page.
func (s *Service) GenerateReport(ctx context.Context, page string, reportContext map[string]any) (core.Report, error) {
	if reportContext == nil {
		reportContext = map[string]any{}
	}
	return post[core.Report](ctx, s, pathReport, reportRequest{Page: page, Context: reportContext}, "report")
}

// Health checks backend liveness.
func (s *Service) Health(ctx context.Context) (core.Health, error) {
	return get[core.Health](ctx, s, pathHealth, nil, "health")
}

func (s *Service) simulate(ctx context.Context, path string, body any) (core.ScenarioSummary, error) {
	raw, err := s.client.Post(ctx, path, body)
	if err != nil {
		s.fail(ctx, log.OpSimulate, err, log.FieldPath, path)
		return core.ScenarioSummary{}, err
	}
	return s.decodeSummary(ctx, path, raw)
}

// decodeSummary accepts the canonical {success, summary} envelope. The
// results_summary and simulated_summary envelopes are deprecated.
func (s *Service) decodeSummary(ctx context.Context, path string, raw json.RawMessage) (core.ScenarioSummary, error) {
	env, err := decode[scenarioEnvelope](raw, "simulation result")
	if err != nil {
		return core.ScenarioSummary{}, err
	}

	if env.Success != nil && !*env.Success {
		msg := firstNonEmpty(env.Error, env.Message, ErrSimulationFailed.Error())
		return core.ScenarioSummary{}, &transport.Error{Kind: transport.KindBackend, Message: msg, Err: ErrSimulationFailed}
	}
	if env.Summary != nil {
		return *env.Summary, nil
	}

	legacy, name := env.ResultsSummary, "results_summary"
	if legacy == nil {
		legacy, name = env.SimulatedSummary, "simulated_summary"
	}
	if legacy != nil && s.acceptLegacy {
		s.logger.WarnContext(ctx, "Deprecated simulation response envelope", log.FieldEnvelope, name, log.FieldPath, path)
		return *legacy, nil
	}
	return core.ScenarioSummary{}, &transport.Error{Kind: transport.KindDecode, Message: ErrUnknownEnvelope.Error(), Err: ErrUnknownEnvelope}
}

func (s *Service) fail(ctx context.Context, op string, err error, args ...any) {
	fields := append([]any{
		log.FieldOperation, op,
		log.FieldError, err,
		log.FieldErrorKind, string(transport.KindOf(err)),
		log.FieldStatusCode, transport.StatusOf(err),
	}, args...)
	s.logger.WarnContext(ctx, "Backend call failed", fields...)
}

func get[T any](ctx context.Context, s *Service, path string, params url.Values, what string) (T, error) {
	raw, err := s.client.Get(ctx, path, params)
	if err != nil {
		s.fail(ctx, log.OpLoad, err, log.FieldPath, path)
		var zero T
		return zero, err
	}
	return decode[T](raw, what)
}

func post[T any](ctx context.Context, s *Service, path string, body any, what string) (T, error) {
	raw, err := s.client.Post(ctx, path, body)
	if err != nil {
		s.fail(ctx, log.OpLoad, err, log.FieldPath, path)
		var zero T
		return zero, err
	}
	return decode[T](raw, what)
}

// decode unmarshals into a fresh value so a failure never leaks partial data.
func decode[T any](raw json.RawMessage, what string) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		var zero T
		return zero, &transport.Error{Kind: transport.KindDecode, Message: fmt.Sprintf("decode %s: %v", what, err), Err: err}
	}
	return v, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
