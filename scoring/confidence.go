package scoring

import "math"

// CollectionMethod describes how a piece of evidence entered the
// system.
type CollectionMethod string

const (
	CollectionAutomated CollectionMethod = "Automated"
	CollectionHybrid    CollectionMethod = "Hybrid"
	CollectionManual    CollectionMethod = "Manual"
)

// ReviewAction is the recommended handling for a scored piece of
// evidence.
type ReviewAction string

const (
	ActionAutoApprove ReviewAction = "AutoApprove"
	ActionHumanReview ReviewAction = "HumanReview"
	ActionRequestMore ReviewAction = "RequestMore"
	ActionReject      ReviewAction = "Reject"
)

// ConfidenceInputs are the seven evidence quality factors, each 0-100.
type ConfidenceInputs struct {
	SourceCredibility  int
	Completeness       int
	Relevance          int
	Timeliness         int
	CrossVerification  int
	FormatCompliance   int
	AutomationCoverage int

	CollectionMethod CollectionMethod

	PreviousScore *int
}

// ConfidenceResult is one computed evidence confidence score.
type ConfidenceResult struct {
	Score int
	Level ConfidenceLevel

	SourceCredibility  int
	Completeness       int
	Relevance          int
	Timeliness         int
	CrossVerification  int
	FormatCompliance   int
	AutomationCoverage int

	RecommendedAction    ReviewAction
	HumanReviewTriggered bool
	LowConfidenceFactors []string

	PreviousScore *int
	ScoreChange   *int
}

// ScoreConfidence computes the weighted evidence confidence score.
// Factor weights: source credibility 0.20, completeness 0.20,
// relevance 0.15, timeliness 0.15, cross-verification 0.15, format
// compliance 0.10, automation coverage 0.05.
func ScoreConfidence(in ConfidenceInputs) ConfidenceResult {
	source := clamp(in.SourceCredibility, 0, 100)
	completeness := clamp(in.Completeness, 0, 100)
	relevance := clamp(in.Relevance, 0, 100)
	timeliness := clamp(in.Timeliness, 0, 100)
	verification := clamp(in.CrossVerification, 0, 100)
	format := clamp(in.FormatCompliance, 0, 100)
	automation := clamp(in.AutomationCoverage, 0, 100)

	overall := int(math.Round(
		float64(source)*0.20 +
			float64(completeness)*0.20 +
			float64(relevance)*0.15 +
			float64(timeliness)*0.15 +
			float64(verification)*0.15 +
			float64(format)*0.10 +
			float64(automation)*0.05,
	))
	overall = clamp(overall, 0, 100)

	action := recommendedAction(overall, in.CollectionMethod)

	result := ConfidenceResult{
		Score:                overall,
		Level:                ConfidenceLevelFor(overall),
		SourceCredibility:    source,
		Completeness:         completeness,
		Relevance:            relevance,
		Timeliness:           timeliness,
		CrossVerification:    verification,
		FormatCompliance:     format,
		AutomationCoverage:   automation,
		RecommendedAction:    action,
		HumanReviewTriggered: action == ActionHumanReview || action == ActionRequestMore,
		LowConfidenceFactors: lowConfidenceFactors(in),
		PreviousScore:        in.PreviousScore,
	}
	if in.PreviousScore != nil {
		change := overall - *in.PreviousScore
		result.ScoreChange = &change
	}
	return result
}

// recommendedAction maps (score, collection method) to a handling
// decision. Manually collected evidence never auto-approves: a high
// score still routes through human review.
func recommendedAction(score int, method CollectionMethod) ReviewAction {
	switch {
	case score >= 90:
		if method == CollectionManual {
			return ActionHumanReview
		}
		return ActionAutoApprove
	case score >= 70:
		return ActionHumanReview
	case score >= 50:
		return ActionRequestMore
	default:
		return ActionReject
	}
}

func lowConfidenceFactors(in ConfidenceInputs) []string {
	var low []string
	if in.SourceCredibility < 50 {
		low = append(low, "Low source credibility")
	}
	if in.Completeness < 50 {
		low = append(low, "Incomplete evidence")
	}
	if in.Relevance < 50 {
		low = append(low, "Relevance concerns")
	}
	if in.Timeliness < 50 {
		low = append(low, "Evidence is outdated")
	}
	if in.FormatCompliance < 50 {
		low = append(low, "Format compliance issues")
	}
	return low
}
