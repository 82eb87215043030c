package recommend

import (
	"testing"
	"time"

	"github.com/complyflow/engine/scoring"
)

func TestGenerateStalledPlan(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	recs := Generate(Signals{
		EntityType: "assessment",
		EntityID:   "a-1",
		PCI: &scoring.PCIResult{
			Score:         15,
			RiskBand:      scoring.PCICritical,
			VelocityTrend: scoring.TrendDeclining,
		},
		OverdueTasks: 8,
		Now:          now,
	})

	byType := map[ActionType]Recommendation{}
	for _, rec := range recs {
		byType[rec.ActionType] = rec
	}

	for _, want := range []ActionType{Escalate, ReduceScope, ScheduleMeeting, Remind} {
		if _, ok := byType[want]; !ok {
			t.Errorf("missing %s recommendation", want)
		}
	}

	esc := byType[Escalate]
	if esc.Priority != 1 || esc.Confidence != 90 {
		t.Errorf("Escalate priority/confidence = %d/%d, want 1/90", esc.Priority, esc.Confidence)
	}
	remind := byType[Remind]
	if remind.Priority != 1 || remind.Confidence != 85 {
		t.Errorf("Remind priority/confidence = %d/%d, want 1/85", remind.Priority, remind.Confidence)
	}

	for _, rec := range recs {
		if rec.Status != StatusPending {
			t.Errorf("%s status = %s, want Pending", rec.ActionType, rec.Status)
		}
		if rec.ID == "" {
			t.Errorf("%s has empty ID", rec.ActionType)
		}
		if rec.ExpiresAt == nil || !rec.ExpiresAt.Equal(now.Add(DefaultTTL)) {
			t.Errorf("%s ExpiresAt = %v, want %v", rec.ActionType, rec.ExpiresAt, now.Add(DefaultTTL))
		}
	}
}

func TestGenerateOrdering(t *testing.T) {
	recs := Generate(Signals{
		EntityType: "assessment",
		EntityID:   "a-1",
		PCI:        &scoring.PCIResult{Score: 25, RiskBand: scoring.PCIHigh},
		Confidence: &scoring.ConfidenceResult{
			Score:              45,
			RecommendedAction:  scoring.ActionReject,
			AutomationCoverage: 80,
		},
		PendingApprovals: 2,
		Now:              time.Now(),
	})

	for i := 1; i < len(recs); i++ {
		prev, cur := recs[i-1], recs[i]
		if cur.Priority < prev.Priority {
			t.Fatalf("recs[%d] priority %d before priority %d", i, prev.Priority, cur.Priority)
		}
		if cur.Priority == prev.Priority && cur.Confidence > prev.Confidence {
			t.Fatalf("recs[%d] confidence %d before %d within priority %d",
				i, prev.Confidence, cur.Confidence, cur.Priority)
		}
	}

	if recs[0].ActionType != Review {
		t.Errorf("first recommendation = %s, want Review", recs[0].ActionType)
	}
}

func TestGenerateQuietEntity(t *testing.T) {
	recs := Generate(Signals{
		EntityType: "assessment",
		EntityID:   "a-1",
		PCI:        &scoring.PCIResult{Score: 85, RiskBand: scoring.PCIVeryLow, VelocityTrend: scoring.TrendStable},
		Engagement: &scoring.EngagementResult{Score: 82, State: scoring.HighlyEngaged, MomentumScore: 75},
		Now:        time.Now(),
	})
	if len(recs) != 0 {
		t.Errorf("healthy entity produced %d recommendations: %+v", len(recs), recs)
	}
}

func TestGenerateMergesRuleCreated(t *testing.T) {
	now := time.Now()

	recs := Generate(Signals{
		EntityType: "assessment",
		EntityID:   "a-1",
		RuleCreated: []Recommendation{
			{
				EntityType: "assessment",
				EntityID:   "a-1",
				ActionType: GenerateReport,
				Title:      "Generate quarterly report",
				Confidence: 95,
				Priority:   1,
			},
		},
		PendingApprovals: 1,
		Now:              now,
	})

	if len(recs) != 2 {
		t.Fatalf("got %d recommendations, want 2", len(recs))
	}
	if recs[0].ActionType != GenerateReport {
		t.Errorf("first = %s, want GenerateReport", recs[0].ActionType)
	}
	if recs[0].ID == "" || recs[0].Status != StatusPending || recs[0].ExpiresAt == nil {
		t.Errorf("rule-created recommendation not normalized: %+v", recs[0])
	}
}

func TestGenerateEngagementSignals(t *testing.T) {
	recs := Generate(Signals{
		EntityType: "user",
		EntityID:   "u-1",
		Engagement: &scoring.EngagementResult{Score: 15, State: scoring.AtRisk, MomentumScore: 25},
		Motivation: &scoring.MotivationResult{Score: 30, RequiresIntervention: true},
		Now:        time.Now(),
	})

	seen := map[ActionType]bool{}
	for _, rec := range recs {
		seen[rec.ActionType] = true
	}
	for _, want := range []ActionType{Remind, SplitTask, RequestHelp} {
		if !seen[want] {
			t.Errorf("missing %s recommendation", want)
		}
	}
}
