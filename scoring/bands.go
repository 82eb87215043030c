// Package scoring computes the four composite scores: Progress
// Certainty Index, Engagement, Motivation, and Evidence Confidence.
// Each scorer is a pure function over explicit inputs; persistence and
// recomputation scheduling live in Service.
package scoring

// PCIBand classifies delivery risk. VeryLow risk is the best outcome:
// the band name describes risk, not progress.
type PCIBand string

const (
	PCICritical PCIBand = "Critical" // 0-19
	PCIHigh     PCIBand = "High"     // 20-39
	PCIMedium   PCIBand = "Medium"   // 40-59
	PCILow      PCIBand = "Low"      // 60-79
	PCIVeryLow  PCIBand = "VeryLow"  // 80-100
)

func PCIBandFor(score int) PCIBand {
	switch {
	case score >= 80:
		return PCIVeryLow
	case score >= 60:
		return PCILow
	case score >= 40:
		return PCIMedium
	case score >= 20:
		return PCIHigh
	default:
		return PCICritical
	}
}

// EngagementState classifies overall engagement.
type EngagementState string

const (
	HighlyEngaged EngagementState = "Highly_Engaged" // >= 80
	Engaged       EngagementState = "Engaged"        // >= 60
	Neutral       EngagementState = "Neutral"        // >= 40
	Disengaged    EngagementState = "Disengaged"     // >= 20
	AtRisk        EngagementState = "At_Risk"        // < 20
)

func EngagementStateFor(score int) EngagementState {
	switch {
	case score >= 80:
		return HighlyEngaged
	case score >= 60:
		return Engaged
	case score >= 40:
		return Neutral
	case score >= 20:
		return Disengaged
	default:
		return AtRisk
	}
}

// MotivationLevel classifies intrinsic motivation.
type MotivationLevel string

const (
	MotivationVeryHigh MotivationLevel = "VeryHigh" // >= 80
	MotivationHigh     MotivationLevel = "High"     // >= 60
	MotivationModerate MotivationLevel = "Moderate" // >= 40
	MotivationLow      MotivationLevel = "Low"      // >= 20
	MotivationVeryLow  MotivationLevel = "VeryLow"  // < 20
)

func MotivationLevelFor(score int) MotivationLevel {
	switch {
	case score >= 80:
		return MotivationVeryHigh
	case score >= 60:
		return MotivationHigh
	case score >= 40:
		return MotivationModerate
	case score >= 20:
		return MotivationLow
	default:
		return MotivationVeryLow
	}
}

// ConfidenceLevel classifies evidence confidence.
type ConfidenceLevel string

const (
	ConfidenceVeryHigh ConfidenceLevel = "VeryHigh" // 90-100
	ConfidenceHigh     ConfidenceLevel = "High"     // 75-89
	ConfidenceMedium   ConfidenceLevel = "Medium"   // 50-74
	ConfidenceLow      ConfidenceLevel = "Low"      // 25-49
	ConfidenceVeryLow  ConfidenceLevel = "VeryLow"  // 0-24
)

func ConfidenceLevelFor(score int) ConfidenceLevel {
	switch {
	case score >= 90:
		return ConfidenceVeryHigh
	case score >= 75:
		return ConfidenceHigh
	case score >= 50:
		return ConfidenceMedium
	case score >= 25:
		return ConfidenceLow
	default:
		return ConfidenceVeryLow
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
