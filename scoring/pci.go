package scoring

import (
	"fmt"
	"math"
	"time"
)

// VelocityTrend describes the direction of task completion velocity
// relative to the previous measurement.
type VelocityTrend string

const (
	TrendImproving VelocityTrend = "Improving"
	TrendStable    VelocityTrend = "Stable"
	TrendDeclining VelocityTrend = "Declining"
)

// TrendFor compares the current velocity against the previous
// measurement; changes within 0.5 tasks/week count as stable.
func TrendFor(current float64, previous *float64) VelocityTrend {
	if previous == nil {
		return TrendStable
	}
	change := current - *previous
	switch {
	case change > 0.5:
		return TrendImproving
	case change < -0.5:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// PCIInputs are the raw factors for one Progress Certainty Index
// calculation. Callers gather them; the scorer never reads a clock or
// a store, so identical inputs yield identical outputs.
type PCIInputs struct {
	TotalTasks     int
	CompletedTasks int
	OverdueTasks   int
	AtRiskTasks    int

	// TaskVelocity is tasks completed per week over the recent
	// observation window.
	TaskVelocity  float64
	VelocityTrend VelocityTrend

	// EvidenceRejectionRate is a percentage in [0,100].
	EvidenceRejectionRate float64

	SlaBreachCount      int
	SlaAdherencePercent float64
	AverageOverdueDays  float64

	// OrgMaturityLevel is 1-5; 0 means unknown.
	OrgMaturityLevel int

	TargetCompletionDate *time.Time

	PreviousScore *int

	// Now anchors the completion prediction.
	Now time.Time
}

// PCIResult is one computed Progress Certainty Index.
type PCIResult struct {
	Score           int
	RiskBand        PCIBand
	ConfidenceLevel int
	VelocityTrend   VelocityTrend

	TaskScore     int
	VelocityScore int
	QualityScore  int
	SlaScore      int
	MaturityScore int

	RiskFactors             []string
	RecommendedIntervention string

	PredictedCompletionDate *time.Time
	DaysFromBaseline        *int

	PreviousScore *int
	ScoreChange   *int
}

// ScorePCI computes the weighted Progress Certainty Index from raw
// factors. Component weights: task 0.30, velocity 0.25, quality 0.20,
// SLA 0.15, maturity 0.10.
func ScorePCI(in PCIInputs) PCIResult {
	taskScore := pciTaskScore(in)
	velocityScore := pciVelocityScore(in)
	qualityScore := pciQualityScore(in)
	slaScore := pciSlaScore(in)
	maturityScore := pciMaturityScore(in)

	overall := int(math.Round(
		float64(taskScore)*0.30 +
			float64(velocityScore)*0.25 +
			float64(qualityScore)*0.20 +
			float64(slaScore)*0.15 +
			float64(maturityScore)*0.10,
	))
	overall = clamp(overall, 0, 100)

	riskFactors := pciRiskFactors(in, overall)
	predicted := pciPredictCompletion(in)

	var daysFromBaseline *int
	if predicted != nil && in.TargetCompletionDate != nil {
		d := int(in.TargetCompletionDate.Sub(*predicted).Hours() / 24)
		daysFromBaseline = &d
	}

	result := PCIResult{
		Score:                   overall,
		RiskBand:                PCIBandFor(overall),
		ConfidenceLevel:         pciConfidenceLevel(in),
		VelocityTrend:           in.VelocityTrend,
		TaskScore:               taskScore,
		VelocityScore:           velocityScore,
		QualityScore:            qualityScore,
		SlaScore:                slaScore,
		MaturityScore:           maturityScore,
		RiskFactors:             riskFactors,
		RecommendedIntervention: pciIntervention(overall),
		PredictedCompletionDate: predicted,
		DaysFromBaseline:        daysFromBaseline,
		PreviousScore:           in.PreviousScore,
	}
	if in.PreviousScore != nil {
		change := overall - *in.PreviousScore
		result.ScoreChange = &change
	}
	return result
}

func pciTaskScore(in PCIInputs) int {
	if in.TotalTasks == 0 {
		return 50
	}
	completion := float64(in.CompletedTasks) / float64(in.TotalTasks) * 100
	overdueDeduction := math.Min(30, float64(in.OverdueTasks)*5)
	atRiskDeduction := math.Min(15, float64(in.AtRiskTasks)*3)
	return int(clampF(completion-overdueDeduction-atRiskDeduction, 0, 100))
}

func pciVelocityScore(in PCIInputs) int {
	// Expected velocity assumes the remaining work should land within
	// twelve weeks.
	expected := 1.0
	if in.TotalTasks > 0 {
		expected = float64(in.TotalTasks-in.CompletedTasks) / 12.0
	}
	ratio := 1.0
	if expected > 0 {
		ratio = in.TaskVelocity / expected
	}

	base := math.Min(100, ratio*70)

	adjustment := 0.0
	switch in.VelocityTrend {
	case TrendImproving:
		adjustment = 15
	case TrendDeclining:
		adjustment = -15
	}

	return int(clampF(base+adjustment, 0, 100))
}

func pciQualityScore(in PCIInputs) int {
	deduction := math.Min(50, in.EvidenceRejectionRate)
	return int(clampF(100-deduction, 0, 100))
}

func pciSlaScore(in PCIInputs) int {
	breachDeduction := math.Min(30, float64(in.SlaBreachCount)*5)
	return int(clampF(in.SlaAdherencePercent-breachDeduction, 0, 100))
}

func pciMaturityScore(in PCIInputs) int {
	if in.OrgMaturityLevel == 0 {
		return 50
	}
	return clamp(in.OrgMaturityLevel*20, 0, 100)
}

// pciConfidenceLevel grows with data availability; sparse inputs
// produce a low-confidence score rather than an error.
func pciConfidenceLevel(in PCIInputs) int {
	points := 0
	if in.TotalTasks > 10 {
		points += 20
	}
	if in.TaskVelocity > 0 {
		points += 25
	}
	if in.CompletedTasks > 5 {
		points += 20
	}
	if in.OrgMaturityLevel > 0 {
		points += 15
	}
	if in.TargetCompletionDate != nil {
		points += 20
	}
	return clamp(points, 0, 100)
}

func pciRiskFactors(in PCIInputs, overall int) []string {
	var factors []string

	if in.OverdueTasks > 5 {
		factors = append(factors, fmt.Sprintf("High number of overdue tasks (%d)", in.OverdueTasks))
	}
	if in.EvidenceRejectionRate > 30 {
		factors = append(factors, fmt.Sprintf("High evidence rejection rate (%.1f%%)", in.EvidenceRejectionRate))
	}
	if in.VelocityTrend == TrendDeclining {
		factors = append(factors, "Task completion velocity is declining")
	}
	if in.SlaBreachCount > 3 {
		factors = append(factors, fmt.Sprintf("Multiple SLA breaches (%d)", in.SlaBreachCount))
	}
	if in.AverageOverdueDays > 7 {
		factors = append(factors, fmt.Sprintf("Average overdue duration is %.1f days", in.AverageOverdueDays))
	}
	if overall < 40 {
		factors = append(factors, "Overall progress certainty is critical")
	}

	return factors
}

// pciPredictCompletion extrapolates remaining tasks against the
// current weekly velocity.
func pciPredictCompletion(in PCIInputs) *time.Time {
	if in.TaskVelocity <= 0 || in.TotalTasks == 0 {
		return nil
	}
	remaining := float64(in.TotalTasks - in.CompletedTasks)
	weeksNeeded := remaining / in.TaskVelocity
	predicted := in.Now.Add(time.Duration(weeksNeeded * 7 * 24 * float64(time.Hour)))
	return &predicted
}

func pciIntervention(score int) string {
	switch {
	case score >= 80:
		return "Continue current pace. Monitor for any emerging risks."
	case score >= 60:
		return "Consider addressing identified risk factors to maintain progress."
	case score >= 40:
		return "Increase automation and escalate blockers. Review resource allocation."
	default:
		return "Urgent intervention needed. Consider scope reduction and emergency resource allocation."
	}
}
