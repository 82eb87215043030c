package scoring

import (
	"reflect"
	"testing"
	"time"
)

func TestScorePCIStalledPlan(t *testing.T) {
	in := PCIInputs{
		TotalTasks:     20,
		CompletedTasks: 2,
		OverdueTasks:   15,
		SlaBreachCount: 8,
		VelocityTrend:  TrendStable,
		Now:            time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}

	result := ScorePCI(in)

	if result.RiskBand != PCIHigh && result.RiskBand != PCICritical {
		t.Errorf("a stalled plan should band High or Critical, got %s (score %d)", result.RiskBand, result.Score)
	}
	if len(result.RiskFactors) == 0 {
		t.Error("a stalled plan should report risk factors")
	}
}

func TestScorePCIHealthyPlan(t *testing.T) {
	target := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	in := PCIInputs{
		TotalTasks:           40,
		CompletedTasks:       30,
		TaskVelocity:         3,
		VelocityTrend:        TrendImproving,
		SlaAdherencePercent:  95,
		OrgMaturityLevel:     4,
		TargetCompletionDate: &target,
		Now:                  time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}

	result := ScorePCI(in)

	if result.Score < 60 {
		t.Errorf("a healthy plan should score Low risk or better, got %d (%s)", result.Score, result.RiskBand)
	}
	if result.PredictedCompletionDate == nil {
		t.Fatal("velocity > 0 should yield a completion prediction")
	}
	// 10 remaining tasks at 3/week is just over 3 weeks out.
	wantPredicted := in.Now.AddDate(0, 0, 23)
	diff := result.PredictedCompletionDate.Sub(wantPredicted)
	if diff < -24*time.Hour || diff > 24*time.Hour {
		t.Errorf("predicted completion %s not near %s", result.PredictedCompletionDate, wantPredicted)
	}
	if result.DaysFromBaseline == nil || *result.DaysFromBaseline < 0 {
		t.Error("plan ahead of target should have non-negative baseline margin")
	}
}

func TestScorePCINoVelocityNoPrediction(t *testing.T) {
	result := ScorePCI(PCIInputs{TotalTasks: 10, Now: time.Now()})
	if result.PredictedCompletionDate != nil {
		t.Error("zero velocity must not produce a completion prediction")
	}
}

func TestScorePCIIdempotent(t *testing.T) {
	in := PCIInputs{
		TotalTasks:            30,
		CompletedTasks:        12,
		OverdueTasks:          2,
		TaskVelocity:          2.5,
		VelocityTrend:         TrendStable,
		EvidenceRejectionRate: 12,
		SlaAdherencePercent:   88,
		OrgMaturityLevel:      3,
		Now:                   time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}

	first := ScorePCI(in)
	second := ScorePCI(in)

	if !reflect.DeepEqual(first, second) {
		t.Error("identical inputs must yield identical results")
	}
}

func TestScorePCIScoreChange(t *testing.T) {
	prev := 62
	result := ScorePCI(PCIInputs{
		TotalTasks:     10,
		CompletedTasks: 5,
		PreviousScore:  &prev,
		Now:            time.Now(),
	})

	if result.PreviousScore == nil || *result.PreviousScore != 62 {
		t.Fatal("previous score should be carried through")
	}
	if result.ScoreChange == nil || *result.ScoreChange != result.Score-62 {
		t.Error("score change should be current minus previous")
	}
}

func TestTrendFor(t *testing.T) {
	prev := 2.0
	tests := []struct {
		name     string
		current  float64
		previous *float64
		want     VelocityTrend
	}{
		{"no previous", 3, nil, TrendStable},
		{"improving", 2.6, &prev, TrendImproving},
		{"declining", 1.4, &prev, TrendDeclining},
		{"within tolerance", 2.3, &prev, TrendStable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TrendFor(tt.current, tt.previous); got != tt.want {
				t.Errorf("TrendFor(%v) = %s, want %s", tt.current, got, tt.want)
			}
		})
	}
}
