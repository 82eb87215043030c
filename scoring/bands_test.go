package scoring

import "testing"

func TestPCIBandThresholds(t *testing.T) {
	tests := []struct {
		score int
		want  PCIBand
	}{
		{0, PCICritical}, {19, PCICritical},
		{20, PCIHigh}, {39, PCIHigh},
		{40, PCIMedium}, {59, PCIMedium},
		{60, PCILow}, {79, PCILow},
		{80, PCIVeryLow}, {100, PCIVeryLow},
	}
	for _, tt := range tests {
		if got := PCIBandFor(tt.score); got != tt.want {
			t.Errorf("PCIBandFor(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestConfidenceLevelThresholds(t *testing.T) {
	tests := []struct {
		score int
		want  ConfidenceLevel
	}{
		{0, ConfidenceVeryLow}, {24, ConfidenceVeryLow},
		{25, ConfidenceLow}, {49, ConfidenceLow},
		{50, ConfidenceMedium}, {74, ConfidenceMedium},
		{75, ConfidenceHigh}, {89, ConfidenceHigh},
		{90, ConfidenceVeryHigh}, {100, ConfidenceVeryHigh},
	}
	for _, tt := range tests {
		if got := ConfidenceLevelFor(tt.score); got != tt.want {
			t.Errorf("ConfidenceLevelFor(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestEngagementStateThresholds(t *testing.T) {
	tests := []struct {
		score int
		want  EngagementState
	}{
		{10, AtRisk}, {20, Disengaged}, {40, Neutral},
		{60, Engaged}, {80, HighlyEngaged},
	}
	for _, tt := range tests {
		if got := EngagementStateFor(tt.score); got != tt.want {
			t.Errorf("EngagementStateFor(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

// Bands never improve as the score drops.
func TestBandMonotonicity(t *testing.T) {
	rank := map[PCIBand]int{
		PCICritical: 0, PCIHigh: 1, PCIMedium: 2, PCILow: 3, PCIVeryLow: 4,
	}
	prev := -1
	for score := 0; score <= 100; score++ {
		r := rank[PCIBandFor(score)]
		if r < prev {
			t.Fatalf("band rank regressed at score %d", score)
		}
		prev = r
	}
}
