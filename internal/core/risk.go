package core

// RiskLevel buckets the probability of ending with a negative balance.
type RiskLevel int

const (
	RiskMinimal RiskLevel = iota
	RiskLow
	RiskModerate
	RiskHigh
)

// ClassifyRisk maps a percentage (0-100) to a risk level. Bounds are exclusive.
func ClassifyRisk(negativePercent float64) RiskLevel {
	switch {
	case negativePercent > 30:
		return RiskHigh
	case negativePercent > 15:
		return RiskModerate
	case negativePercent > 5:
		return RiskLow
	default:
		return RiskMinimal
	}
}

func (r RiskLevel) String() string {
	switch r {
	case RiskHigh:
		return "high risk"
	case RiskModerate:
		return "moderate risk"
	case RiskLow:
		return "low risk"
	default:
		return "minimal risk"
	}
}

// Recommendations returns the advice shown next to a simulation result.
func (r RiskLevel) Recommendations() []string {
	switch r {
	case RiskHigh:
		return []string{
			"High risk detected. Consider cutting expenses or securing additional financing.",
			"Diversify revenue sources to reduce dependency.",
			"Keep an emergency reserve of at least 3 months of expenses.",
			"Consider renegotiating payment terms with suppliers.",
		}
	case RiskModerate:
		return []string{
			"Moderate risk identified. Monitor cash flow closely.",
			"Prepare contingency plans for low-revenue periods.",
			"Look for ways to shorten receivable terms.",
		}
	case RiskLow:
		return []string{
			"Low risk detected. The situation is relatively stable.",
			"Keep monitoring key indicators periodically.",
			"Consider strategic investments for growth.",
		}
	default:
		return []string{
			"Excellent financial position detected.",
			"Consider investments to accelerate growth.",
			"Evaluate opportunities to expand the business.",
		}
	}
}
