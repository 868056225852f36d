package scoring

import (
	"math"
	"testing"

	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniform(v float64) Inputs {
	return Inputs{FaceConfidence: v, ChallengeAccuracy: v, LivenessScore: v, MatchScore: v}
}

func TestCalculate_Verification(t *testing.T) {
	res := Calculate(Inputs{
		FaceConfidence:    0.9,
		ChallengeAccuracy: 1.0,
		LivenessScore:     0.95,
		MatchScore:        0.95,
	})

	assert.Equal(t, 95.25, res.Score)
	assert.Equal(t, core.LevelExcellent, res.Level)
	assert.True(t, res.Pass)

	require.Len(t, res.Breakdown, 4)
	assert.Equal(t, core.Factor{Key: "faceDetection", Label: "Face Detection", Raw: 0.9, Weighted: 22.5, Weight: 0.25}, res.Breakdown[0])
	assert.Equal(t, core.Factor{Key: "challengeAccuracy", Label: "Challenge Accuracy", Raw: 1, Weighted: 30, Weight: 0.3}, res.Breakdown[1])
	assert.Equal(t, core.Factor{Key: "liveness", Label: "Liveness Score", Raw: 0.95, Weighted: 23.75, Weight: 0.25}, res.Breakdown[2])
	assert.Equal(t, core.Factor{Key: "faceMatch", Label: "Identity Match", Raw: 0.95, Weighted: 19, Weight: 0.2}, res.Breakdown[3])
}

func TestCalculate_TierBoundaries(t *testing.T) {
	cases := []struct {
		in    float64
		score float64
		level core.ScoreLevel
		pass  bool
	}{
		{0.95, 95, core.LevelExcellent, true},
		{0.9499, 94.99, core.LevelGood, true},
		{0.85, 85, core.LevelGood, true},
		{0.8499, 84.99, core.LevelAcceptable, true},
		{0.75, 75, core.LevelAcceptable, true},
		{0.7499, 74.99, core.LevelFail, false},
		{0, 0, core.LevelFail, false},
		{1, 100, core.LevelExcellent, true},
	}
	for _, tc := range cases {
		res := Calculate(uniform(tc.in))
		assert.Equal(t, tc.score, res.Score, "input %v", tc.in)
		assert.Equal(t, tc.level, res.Level, "input %v", tc.in)
		assert.Equal(t, tc.pass, res.Pass, "input %v", tc.in)
	}
}

func TestCalculate_Deterministic(t *testing.T) {
	in := Inputs{FaceConfidence: 0.8731, ChallengeAccuracy: 0.6667, LivenessScore: 0.77, MatchScore: 0.912}
	first := Calculate(in)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Calculate(in))
	}
	// 0.218275 + 0.20001 + 0.1925 + 0.1824
	assert.Equal(t, 79.32, first.Score)
}

func TestCalculate_ClampsInputs(t *testing.T) {
	res := Calculate(Inputs{FaceConfidence: 1.7, ChallengeAccuracy: -3, LivenessScore: math.NaN(), MatchScore: math.Inf(1)})
	assert.Equal(t, 45.0, res.Score)
	assert.Equal(t, 1.0, res.Breakdown[0].Raw)
	assert.Zero(t, res.Breakdown[1].Raw)
	assert.Zero(t, res.Breakdown[2].Raw)
}

func TestLevel(t *testing.T) {
	assert.Equal(t, core.LevelExcellent, Level(95))
	assert.Equal(t, core.LevelGood, Level(94.99))
	assert.Equal(t, core.LevelFail, Level(math.NaN()))
	assert.Equal(t, "Good — Verification Passed", Level(90).Label())
}
