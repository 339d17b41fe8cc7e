// Package core holds the records exchanged with the analytics backend and the
// small pieces of domain logic the dashboard applies on top of them.
package core

import (
	"errors"
	"strconv"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used by the backend.
const DateLayout = "2006-01-02"

type (
	// Transaction is one processed daily row of the uploaded cash-flow sheet.
	Transaction struct {
		Date           string          `json:"date"`
		Inflow         decimal.Decimal `json:"inflow_amount"`
		Outflow        decimal.Decimal `json:"outflow_amount"`
		DailyNet       decimal.Decimal `json:"daily_net"`
		RunningBalance decimal.Decimal `json:"running_balance"`
		Category       string          `json:"category,omitempty"`
		Description    string          `json:"description,omitempty"`
		Year           int             `json:"year"`
		Month          int             `json:"month"`
		Day            int             `json:"day"`
	}

	// StatisticsSnapshot summarises the whole uploaded dataset.
	StatisticsSnapshot struct {
		TotalInflow    decimal.Decimal `json:"total_inflow"`
		TotalOutflow   decimal.Decimal `json:"total_outflow"`
		NetFlow        decimal.Decimal `json:"net_flow"`
		CurrentBalance decimal.Decimal `json:"current_balance"`
		RecordCount    int             `json:"record_count"`
		StartDate      string          `json:"start_date,omitempty"`
		EndDate        string          `json:"end_date,omitempty"`
	}

	// PredictionPoint is one forecast day.
	PredictionPoint struct {
		Date             string          `json:"date"`
		PredictedFlow    decimal.Decimal `json:"predicted_flow"`
		PredictedBalance decimal.Decimal `json:"predicted_balance"`
	}

	// FeatureImportance is the weight of one regression feature, in [0, 1].
	FeatureImportance struct {
		Feature    string  `json:"feature"`
		Importance float64 `json:"importance"`
	}

	// OperationalCycles are the average-term metrics computed on the accrual sheet.
	OperationalCycles struct {
		ReceivablesDays float64 `json:"pmr_dias"`
		PayablesDays    float64 `json:"pmp_dias"`
		InventoryDays   float64 `json:"pme_dias"`
	}

	// BusinessEvent is a recurring inflow or outflow detected by the backend.
	BusinessEvent struct {
		Name        string          `json:"name"`
		TotalAmount decimal.Decimal `json:"total_amount"`
		Frequency   int             `json:"frequency"`
		Category    string          `json:"category"`
	}

	// KeyEvents groups the detected business events by direction.
	KeyEvents struct {
		InflowEvents  []BusinessEvent `json:"inflow_events"`
		OutflowEvents []BusinessEvent `json:"outflow_events"`
	}

	// EventModifier adjusts one business event before re-simulating.
	EventModifier struct {
		Name                  string  `json:"name"`
		ValueChangePercentage float64 `json:"value_change_percentage"`
		DelayDays             int     `json:"delay_days"`
	}

	// LoanSuggestion is the backend's advisory loan.
	LoanSuggestion struct {
		SuggestedAmount decimal.Decimal `json:"suggested_amount"`
		MonthlyRate     float64         `json:"monthly_rate"`
		TermMonths      int             `json:"term_months"`
		Rationale       string          `json:"rationale,omitempty"`
	}

	// LoanRequest is a user-parameterised loan sent for impact simulation.
	LoanRequest struct {
		Amount      decimal.Decimal
		MonthlyRate float64
		TermMonths  int
	}

	// Report is a generated executive report.
	Report struct {
		Markdown string `json:"report_markdown"`
	}

	// Health is the backend liveness payload.
	Health struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}

	// UploadResult is the backend acknowledgement of an upload.
	UploadResult struct {
		Message string `json:"message"`
	}
)

var (
	ErrInvalidLoanAmount = errors.New("loan amount must be positive")
	ErrInvalidLoanRate   = errors.New("monthly rate cannot be negative")
	ErrInvalidLoanTerm   = errors.New("loan term must be at least one month")
	ErrInvalidDays       = errors.New("days must be between 1 and 365")
)

// MaxForecastDays is the longest horizon the dashboard lets users request.
const MaxForecastDays = 365

// ValidateForecastDays checks the forecast horizon the way the dashboard form does.
func ValidateForecastDays(days int) error {
	if days < 1 || days > MaxForecastDays {
		return ErrInvalidDays
	}
	return nil
}

// YearMonth returns the row's year and month, falling back to the date
// string when the backend left the split fields empty.
func (t Transaction) YearMonth() (int, int) {
	if t.Year > 0 && t.Month >= 1 && t.Month <= 12 {
		return t.Year, t.Month
	}
	if len(t.Date) < 7 {
		return 0, 0
	}
	y, err := strconv.Atoi(t.Date[0:4])
	if err != nil {
		return 0, 0
	}
	m, err := strconv.Atoi(t.Date[5:7])
	if err != nil || m < 1 || m > 12 {
		return 0, 0
	}
	return y, m
}

// DateKey returns the calendar part of the row date (YYYY-MM-DD), dropping any time suffix.
func (t Transaction) DateKey() string {
	if len(t.Date) > len(DateLayout) {
		return t.Date[:len(DateLayout)]
	}
	return t.Date
}

// CashConversionCycle is PMR + PME - PMP, in days.
func (c OperationalCycles) CashConversionCycle() float64 {
	return c.ReceivablesDays + c.InventoryDays - c.PayablesDays
}

func (r LoanRequest) Validate() error {
	if !r.Amount.IsPositive() {
		return ErrInvalidLoanAmount
	}
	if r.MonthlyRate < 0 {
		return ErrInvalidLoanRate
	}
	if r.TermMonths < 1 {
		return ErrInvalidLoanTerm
	}
	return nil
}

// IsZero reports whether the modifier has no effect on the simulation.
func (m EventModifier) IsZero() bool {
	return m.ValueChangePercentage == 0 && m.DelayDays == 0
}
