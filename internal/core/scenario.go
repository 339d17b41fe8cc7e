package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ScenarioType is the macroeconomic outlook applied by the backend.
type ScenarioType string

const (
	Optimistic   ScenarioType = "otimista"
	Conservative ScenarioType = "conservador"
	Pessimistic  ScenarioType = "pessimista"
)

var ErrInvalidScenario = errors.New("invalid scenario type")

// Months are the month names the backend expects in seasonality rules.
var Months = []string{
	"Janeiro", "Fevereiro", "Março", "Abril", "Maio", "Junho",
	"Julho", "Agosto", "Setembro", "Outubro", "Novembro", "Dezembro",
}

// ParseScenarioType accepts the backend values and their English names.
func ParseScenarioType(s string) (ScenarioType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "otimista", "optimistic":
		return Optimistic, nil
	case "conservador", "conservative", "":
		return Conservative, nil
	case "pessimista", "pessimistic":
		return Pessimistic, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidScenario, s)
	}
}

// SeasonalityRule shifts revenue for one month by a percentage.
type SeasonalityRule struct {
	Month                   string  `json:"month"`
	RevenueChangePercentage float64 `json:"revenue_change_percentage"`
}

// MonthName resolves a month given as a number (1-12) or a name in any case.
func MonthName(s string) (string, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 || n > 12 {
			return "", fmt.Errorf("invalid month %q", s)
		}
		return Months[n-1], nil
	}
	for _, m := range Months {
		if strings.EqualFold(m, s) {
			return m, nil
		}
	}
	return "", fmt.Errorf("invalid month %q", s)
}

// SeasonalityRules keeps at most one rule per month.
type SeasonalityRules []SeasonalityRule

// Set adds the rule, replacing an existing rule for the same month in place.
func (rs SeasonalityRules) Set(rule SeasonalityRule) SeasonalityRules {
	for i := range rs {
		if rs[i].Month == rule.Month {
			out := append(SeasonalityRules(nil), rs...)
			out[i] = rule
			return out
		}
	}
	return append(append(SeasonalityRules(nil), rs...), rule)
}

// Remove drops the rule at index i. Out-of-range indexes are ignored.
func (rs SeasonalityRules) Remove(i int) SeasonalityRules {
	if i < 0 || i >= len(rs) {
		return rs
	}
	out := make(SeasonalityRules, 0, len(rs)-1)
	out = append(out, rs[:i]...)
	return append(out, rs[i+1:]...)
}
