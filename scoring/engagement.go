package scoring

// EngagementInputs are raw activity counters for one engagement
// analysis. Counters are gathered per user or per tenant by the
// caller.
type EngagementInputs struct {
	TotalActivities int
	CurrentStreak   int
	LongestStreak   int
	TotalPoints     int
	DaysActive      int

	// DaysSinceLastActivity is -1 when the user has never been active.
	DaysSinceLastActivity int

	// Activity window counters for fatigue and momentum.
	ActivitiesLast24h int
	ActivitiesLast7d  int
	ActivitiesPrev7d  int

	CurrentState EngagementState

	PreviousScore *int
}

// EngagementResult is one computed engagement analysis.
type EngagementResult struct {
	Score int
	State EngagementState

	EngagementScore  int
	ConsistencyScore int
	FatigueScore     int
	MomentumScore    int
	ConfidenceScore  int

	RecommendedActions []string

	PreviousScore *int
	ScoreChange   *int
}

// ScoreEngagement combines recency, consistency, and momentum into an
// overall engagement score. Fatigue and confidence are reported as
// side signals; the overall is the mean of the engagement, consistency,
// and momentum components.
func ScoreEngagement(in EngagementInputs) EngagementResult {
	engagement := engagementComponent(in)
	consistency := consistencyComponent(in)
	fatigue := fatigueComponent(in)
	momentum := momentumComponent(in)

	overall := clamp((engagement+consistency+momentum)/3, 0, 100)

	result := EngagementResult{
		Score:              overall,
		State:              EngagementStateFor(overall),
		EngagementScore:    engagement,
		ConsistencyScore:   consistency,
		FatigueScore:       fatigue,
		MomentumScore:      momentum,
		ConfidenceScore:    engagementConfidence(in),
		RecommendedActions: engagementActions(engagement, consistency, fatigue, momentum),
		PreviousScore:      in.PreviousScore,
	}
	if in.PreviousScore != nil {
		change := overall - *in.PreviousScore
		result.ScoreChange = &change
	}
	return result
}

func engagementComponent(in EngagementInputs) int {
	score := 50

	switch {
	case in.DaysSinceLastActivity >= 0 && in.DaysSinceLastActivity <= 1:
		score += 20
	case in.DaysSinceLastActivity >= 0 && in.DaysSinceLastActivity <= 3:
		score += 10
	}

	switch {
	case in.CurrentStreak >= 7:
		score += 20
	case in.CurrentStreak >= 3:
		score += 10
	}

	switch in.CurrentState {
	case HighlyEngaged:
		score += 10
	case AtRisk:
		score -= 20
	case Disengaged:
		score -= 10
	}

	return clamp(score, 0, 100)
}

func consistencyComponent(in EngagementInputs) int {
	score := 50

	if v := in.CurrentStreak * 5; v > 30 {
		score += 30
	} else {
		score += v
	}
	if v := in.LongestStreak * 2; v > 20 {
		score += 20
	} else {
		score += v
	}

	if in.DaysActive > 0 {
		avgDailyPoints := in.TotalPoints / in.DaysActive
		if avgDailyPoints >= 20 {
			score += 10
		} else if avgDailyPoints >= 10 {
			score += 5
		}
	}

	return clamp(score, 0, 100)
}

// fatigueComponent rises with sustained high activity; a high value
// is a burnout signal, not an achievement.
func fatigueComponent(in EngagementInputs) int {
	switch {
	case in.ActivitiesLast24h > 50:
		return 80
	case in.ActivitiesLast24h > 30:
		return 60
	case in.ActivitiesLast24h > 20:
		return 40
	default:
		return 20
	}
}

func momentumComponent(in EngagementInputs) int {
	if in.ActivitiesPrev7d == 0 {
		if in.ActivitiesLast7d > 0 {
			return 70
		}
		return 50
	}

	ratio := float64(in.ActivitiesLast7d) / float64(in.ActivitiesPrev7d)
	switch {
	case ratio >= 1.5:
		return 90
	case ratio >= 1.2:
		return 75
	case ratio >= 0.8:
		return 60
	case ratio >= 0.5:
		return 40
	default:
		return 25
	}
}

func engagementConfidence(in EngagementInputs) int {
	switch {
	case in.TotalActivities >= 10:
		return 80
	case in.TotalActivities >= 5:
		return 60
	case in.TotalActivities >= 1:
		return 40
	default:
		return 20
	}
}

func engagementActions(engagement, consistency, fatigue, momentum int) []string {
	var actions []string
	if engagement < 50 {
		actions = append(actions, "Log in daily to maintain engagement streak")
	}
	if consistency < 50 {
		actions = append(actions, "Complete at least one task per session")
	}
	if fatigue > 70 {
		actions = append(actions, "Consider taking a short break to avoid burnout")
	}
	if momentum < 40 {
		actions = append(actions, "Focus on quick wins to build momentum")
	}
	if len(actions) == 0 {
		actions = append(actions, "Keep up the great work!")
	}
	return actions
}
