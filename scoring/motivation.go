package scoring

import "math"

// MotivationInputs are the five intrinsic motivation factor scores,
// each 0-100. This is the non-gamified model: no points or badges,
// only perceived quality of the working relationship.
type MotivationInputs struct {
	InteractionQuality     int
	ControlAlignment       int
	TaskImpact             int
	ProgressVisibility     int
	AchievementRecognition int

	PreviousScore *int
}

// MotivationResult is one computed motivation score.
type MotivationResult struct {
	Score int
	Level MotivationLevel

	InteractionQuality     int
	ControlAlignment       int
	TaskImpact             int
	ProgressVisibility     int
	AchievementRecognition int

	RequiresIntervention bool
	LowFactors           []string

	PreviousScore *int
	ScoreChange   *int
}

// ScoreMotivation averages the five factors into an overall 0-100
// score.
func ScoreMotivation(in MotivationInputs) MotivationResult {
	factors := []int{
		clamp(in.InteractionQuality, 0, 100),
		clamp(in.ControlAlignment, 0, 100),
		clamp(in.TaskImpact, 0, 100),
		clamp(in.ProgressVisibility, 0, 100),
		clamp(in.AchievementRecognition, 0, 100),
	}

	sum := 0
	for _, f := range factors {
		sum += f
	}
	overall := int(math.Round(float64(sum) / float64(len(factors))))

	lowFactors := motivationLowFactors(in)

	result := MotivationResult{
		Score:                  overall,
		Level:                  MotivationLevelFor(overall),
		InteractionQuality:     factors[0],
		ControlAlignment:       factors[1],
		TaskImpact:             factors[2],
		ProgressVisibility:     factors[3],
		AchievementRecognition: factors[4],
		RequiresIntervention:   overall < 40 || len(lowFactors) >= 3,
		LowFactors:             lowFactors,
		PreviousScore:          in.PreviousScore,
	}
	if in.PreviousScore != nil {
		change := overall - *in.PreviousScore
		result.ScoreChange = &change
	}
	return result
}

func motivationLowFactors(in MotivationInputs) []string {
	var low []string
	if in.InteractionQuality < 50 {
		low = append(low, "Interaction quality is low")
	}
	if in.ControlAlignment < 50 {
		low = append(low, "User feels limited control over their work")
	}
	if in.TaskImpact < 50 {
		low = append(low, "Tasks feel low-impact")
	}
	if in.ProgressVisibility < 50 {
		low = append(low, "Progress is not visible enough")
	}
	if in.AchievementRecognition < 50 {
		low = append(low, "Achievements go unrecognized")
	}
	return low
}
