package core

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// ScenarioSummary is the aggregate of a Monte Carlo run. The backend sends
// more keys than the four the dashboard reads; they are kept in Details.
type ScenarioSummary struct {
	ProbNegative float64         `json:"prob_saldo_negativo"`
	Min          decimal.Decimal `json:"fluxo_minimo"`
	Median       decimal.Decimal `json:"fluxo_mediano"`
	Max          decimal.Decimal `json:"fluxo_maximo"`
	Details      map[string]any  `json:"-"`
}

func (s *ScenarioSummary) UnmarshalJSON(data []byte) error {
	type plain ScenarioSummary
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var details map[string]any
	if err := json.Unmarshal(data, &details); err != nil {
		return err
	}
	*s = ScenarioSummary(p)
	s.Details = details
	return nil
}

// NegativePercent is the probability of a negative balance expressed in percent.
func (s ScenarioSummary) NegativePercent() float64 {
	return s.ProbNegative * 100
}

// Risk classifies the summary.
func (s ScenarioSummary) Risk() RiskLevel {
	return ClassifyRisk(s.NegativePercent())
}
