package pipeline

// RiskLevel buckets the fusion probability.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// Risk thresholds on the fusion probability.
const (
	LowRiskBelow    = 0.3
	MediumRiskBelow = 0.7
)

// ElevatedCIMTMillimetres is the clinical CIMT threshold; values above it
// are reported as elevated.
const ElevatedCIMTMillimetres = 0.9

// PositiveAbove is the probability at or above which a prediction counts as
// high CVD risk.
const PositiveAbove = 0.5

// ClassifyRisk maps a probability to its level.
func ClassifyRisk(p float64) RiskLevel {
	switch {
	case p < LowRiskBelow:
		return RiskLow
	case p < MediumRiskBelow:
		return RiskMedium
	}
	return RiskHigh
}
