package api

import (
	"fluxo/internal/core"
)

// Backend paths.
const (
	pathUpload            = "/api/data/upload_excel_bundle"
	pathTransactions      = "/api/data/view_processed"
	pathStatistics        = "/api/data/statistics"
	pathOperationalCycles = "/api/data/operational_cycles"
	pathPredict           = "/api/predictions/cashflow"
	pathFeatureImportance = "/api/predictions/cashflow/feature_importance"
	pathScenarios         = "/api/simulations/scenarios"
	pathScenarioSim       = "/api/simulations/scenario-simulation"
	pathKeyEvents         = "/api/simulations/key_events"
	pathLoanSuggestion    = "/api/simulations/loan_suggestion"
	pathReport            = "/api/reports/generate"
	pathHealth            = "/health"
)

const (
	simulationBusinessEvents = "business_events"
	simulationLoan           = "loan"
)

// TransactionQuery filters the processed rows. Zero fields are not sent.
type TransactionQuery struct {
	Limit     int
	StartDate string
	EndDate   string
	Order     string
}

// ScenarioParams drives a Monte Carlo run. Variations are whole percentages
// (25 means +25%).
type ScenarioParams struct {
	InflowVariationPct  float64
	OutflowVariationPct float64
	Days                int
	Trials              int
	UseAICorrelation    bool
}

type predictRequest struct {
	Days int `json:"days"`
}

type scenarioRequest struct {
	InflowVariation  float64 `json:"variacao_entrada"`
	OutflowVariation float64 `json:"variacao_saida"`
	Days             int     `json:"dias_simulacao"`
	Trials           int     `json:"num_simulacoes"`
	UseAICorrelation bool    `json:"usar_correlacao_ia,omitempty"`
}

type macroScenarioRequest struct {
	ScenarioType     core.ScenarioType      `json:"scenario_type"`
	SeasonalityRules []core.SeasonalityRule `json:"seasonality_rules"`
}

type businessEventsRequest struct {
	SimulationType string               `json:"simulation_type"`
	Modifiers      []core.EventModifier `json:"modifiers"`
}

type loanRequest struct {
	SimulationType string  `json:"simulation_type"`
	Amount         float64 `json:"loan_amount"`
	MonthlyRate    float64 `json:"monthly_rate"`
	TermMonths     int     `json:"term_months"`
}

type reportRequest struct {
	Page    string         `json:"page"`
	Context map[string]any `json:"context"`
}

// scenarioEnvelope covers the canonical {success, summary} response and the
// two deprecated envelopes still produced by older backend revisions.
type scenarioEnvelope struct {
	Success          *bool                 `json:"success"`
	Summary          *core.ScenarioSummary `json:"summary"`
	ResultsSummary   *core.ScenarioSummary `json:"results_summary"`
	SimulatedSummary *core.ScenarioSummary `json:"simulated_summary"`
	Message          string                `json:"message"`
	Error            string                `json:"error"`
}
