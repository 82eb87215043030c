package recommend

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/complyflow/engine/scoring"
)

// DefaultTTL bounds how long a generated recommendation stays
// actionable.
const DefaultTTL = 24 * time.Hour

// Signals are the inputs to one recommendation generation pass: the
// latest composite scores plus raw workload counters, and any
// recommendations already created by matched rules.
type Signals struct {
	TenantID   *string
	EntityType string
	EntityID   string

	PCI        *scoring.PCIResult
	Engagement *scoring.EngagementResult
	Confidence *scoring.ConfidenceResult
	Motivation *scoring.MotivationResult

	OverdueTasks     int
	PendingApprovals int
	EvidenceDueSoon  int

	// RuleCreated carries recommendations produced by rule actions;
	// they are merged and ranked with the generated ones.
	RuleCreated []Recommendation

	Now time.Time
	TTL time.Duration
}

// Generate merges score signals and rule-created recommendations into
// one ranked list: priority ascending, then confidence descending.
func Generate(s Signals) []Recommendation {
	if s.Now.IsZero() {
		s.Now = time.Now()
	}
	if s.TTL <= 0 {
		s.TTL = DefaultTTL
	}

	var recs []Recommendation
	add := func(actionType ActionType, confidence, priority int, title, rationale string) {
		recs = append(recs, newRecommendation(s, actionType, confidence, priority, title, rationale))
	}

	if s.PCI != nil {
		switch {
		case s.PCI.RiskBand == scoring.PCICritical:
			add(Escalate, 90, 1, "Escalate stalled compliance plan",
				fmt.Sprintf("Progress certainty is critical (score %d)", s.PCI.Score))
			add(ReduceScope, 80, 1, "Reduce plan scope",
				"Deferring non-mandatory controls can recover the timeline")
		case s.PCI.RiskBand == scoring.PCIHigh:
			add(Escalate, 85, 2, "Escalate at-risk compliance plan",
				fmt.Sprintf("Progress certainty is low (score %d)", s.PCI.Score))
		}
		if s.PCI.VelocityTrend == scoring.TrendDeclining {
			add(ScheduleMeeting, 75, 2, "Schedule coordination meeting",
				"Task completion velocity is declining")
		}
	}

	if s.Engagement != nil {
		switch s.Engagement.State {
		case scoring.AtRisk, scoring.Disengaged:
			add(Remind, 80, 2, "Re-engage the assignee",
				fmt.Sprintf("Engagement state is %s", s.Engagement.State))
		}
		if s.Engagement.MomentumScore < 40 {
			add(SplitTask, 70, 3, "Split large tasks into quick wins",
				"Low momentum responds well to smaller, completable work items")
		}
	}

	if s.Confidence != nil {
		switch s.Confidence.RecommendedAction {
		case scoring.ActionRequestMore:
			add(SubmitEvidence, 85, 2, "Submit stronger evidence",
				"Evidence confidence is below the review threshold")
		case scoring.ActionReject:
			add(Review, 90, 1, "Review rejected evidence",
				fmt.Sprintf("Evidence confidence score %d is too low to accept", s.Confidence.Score))
		case scoring.ActionHumanReview:
			add(Review, 75, 3, "Review evidence",
				"Evidence confidence requires a human decision")
		}
		if s.Confidence.AutomationCoverage < 50 {
			add(AutoCollect, 70, 3, "Enable automated evidence collection",
				"Automated collection raises evidence confidence")
		}
	}

	if s.Motivation != nil && s.Motivation.RequiresIntervention {
		add(RequestHelp, 75, 2, "Offer assistance",
			"Motivation factors indicate the assignee may be struggling")
	}

	if s.OverdueTasks > 0 {
		confidence := 70
		priority := 3
		if s.OverdueTasks > 5 {
			confidence = 85
			priority = 1
		}
		add(Remind, confidence, priority, "Clear overdue tasks",
			fmt.Sprintf("%d tasks are past their due date", s.OverdueTasks))
		if s.OverdueTasks > 10 {
			add(Reassign, 75, 2, "Reassign overloaded work",
				"A large overdue backlog suggests the owner is overloaded")
		}
	}

	if s.PendingApprovals > 0 {
		add(Approve, 80, 2, "Process pending approvals",
			fmt.Sprintf("%d approvals are waiting", s.PendingApprovals))
	}

	if s.EvidenceDueSoon > 0 {
		add(SubmitEvidence, 75, 3, "Submit upcoming evidence",
			fmt.Sprintf("%d evidence items are due soon", s.EvidenceDueSoon))
	}

	for _, r := range s.RuleCreated {
		r := r
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		if r.Status == "" {
			r.Status = StatusPending
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = s.Now
		}
		if r.ExpiresAt == nil {
			exp := s.Now.Add(s.TTL)
			r.ExpiresAt = &exp
		}
		recs = append(recs, r)
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Priority != recs[j].Priority {
			return recs[i].Priority < recs[j].Priority
		}
		return recs[i].Confidence > recs[j].Confidence
	})

	return recs
}

func newRecommendation(s Signals, actionType ActionType, confidence, priority int, title, rationale string) Recommendation {
	exp := s.Now.Add(s.TTL)
	return Recommendation{
		ID:         uuid.New().String(),
		TenantID:   s.TenantID,
		EntityType: s.EntityType,
		EntityID:   s.EntityID,
		ActionType: actionType,
		Title:      title,
		Rationale:  rationale,
		Confidence: confidence,
		Priority:   priority,
		Status:     StatusPending,
		ExpiresAt:  &exp,
		CreatedAt:  s.Now,
	}
}
