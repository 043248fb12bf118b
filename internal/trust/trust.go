// Package trust classifies backend trust signals into display tiers.
package trust

import (
	"strings"

	"github.com/altiplano/parasearch/internal/models"
)

// Tier is a display tier for a trust signal.
type Tier string

const (
	TierHigh    Tier = "high"
	TierMedium  Tier = "medium"
	TierLow     Tier = "low"
	TierUnknown Tier = "unknown"
)

// Confidence band lower bounds (inclusive).
const (
	HighConfidence   = 80.0
	MediumConfidence = 60.0
)

// ConfidenceTier maps a confidence in [0,100] to high (>= 80), medium (>= 60) or low.
// NaN compares false against both bounds and lands in low.
func ConfidenceTier(confidence float64) Tier {
	switch {
	case confidence >= HighConfidence:
		return TierHigh
	case confidence >= MediumConfidence:
		return TierMedium
	default:
		return TierLow
	}
}

// RiskTier maps a hallucination risk label to its tier, ignoring case and surrounding
// whitespace. Any other value maps to TierUnknown.
func RiskTier(risk string) Tier {
	switch strings.ToLower(strings.TrimSpace(risk)) {
	case "low":
		return TierLow
	case "medium":
		return TierMedium
	case "high":
		return TierHigh
	default:
		return TierUnknown
	}
}

// Assessment holds the tiers of one result.
type Assessment struct {
	Confidence Tier `json:"confidence_tier"`
	Risk       Tier `json:"risk_tier"`
}

// Classify returns both tiers for r.
func Classify(r models.SearchResult) Assessment {
	return Assessment{
		Confidence: ConfidenceTier(r.Confidence),
		Risk:       RiskTier(r.HallucinationRisk),
	}
}
