package core

import (
	"sort"
	"strings"
	"unicode"
)

// RankedFeature is a feature prepared for display.
type RankedFeature struct {
	Label   string
	Percent float64
}

// TopFeatures returns the n most important features, most important first,
// with humanised labels and importance in percent.
func TopFeatures(features []FeatureImportance, n int) []RankedFeature {
	sorted := append([]FeatureImportance(nil), features...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Importance > sorted[j].Importance
	})
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	out := make([]RankedFeature, 0, len(sorted))
	for _, f := range sorted {
		out = append(out, RankedFeature{Label: HumanizeFeature(f.Feature), Percent: f.Importance * 100})
	}
	return out
}

// HumanizeFeature turns "dia_da_semana" into "Dia Da Semana".
func HumanizeFeature(name string) string {
	name = strings.ReplaceAll(name, "_", " ")
	var b strings.Builder
	b.Grow(len(name))
	start := true
	for _, r := range name {
		isWord := unicode.IsLetter(r) || unicode.IsDigit(r)
		if isWord && start {
			b.WriteRune(unicode.ToUpper(r))
		} else {
			b.WriteRune(r)
		}
		start = !isWord
	}
	return b.String()
}
