// Package scoring fuses the verification confidence signals into a single
// auditable score
package scoring

import (
	"math"

	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/core"
	"github.com/shopspring/decimal"
)

// Inputs are the four confidence signals, each in [0,1]
type Inputs struct {
	FaceConfidence    float64 `json:"faceConfidence"`
	ChallengeAccuracy float64 `json:"challengeAccuracy"`
	LivenessScore     float64 `json:"livenessScore"`
	MatchScore        float64 `json:"matchScore"`
}

type factor struct {
	key    string
	label  string
	weight decimal.Decimal
}

var factors = []factor{
	{"faceDetection", "Face Detection", decimal.RequireFromString("0.25")},
	{"challengeAccuracy", "Challenge Accuracy", decimal.RequireFromString("0.30")},
	{"liveness", "Liveness Score", decimal.RequireFromString("0.25")},
	{"faceMatch", "Identity Match", decimal.RequireFromString("0.20")},
}

var (
	excellentAt  = decimal.NewFromInt(95)
	goodAt       = decimal.NewFromInt(85)
	acceptableAt = decimal.NewFromInt(75)
	hundred      = decimal.NewFromInt(100)
)

// Calculate computes the weighted score as a percentage rounded to two
// decimals, its tier and the per-factor breakdown. It is a pure function of
// its inputs
func Calculate(in Inputs) core.ScoreResult {
	values := []float64{in.FaceConfidence, in.ChallengeAccuracy, in.LivenessScore, in.MatchScore}

	total := decimal.Zero
	breakdown := make([]core.Factor, len(factors))
	for i, f := range factors {
		v := toDecimal(values[i])
		contribution := v.Mul(f.weight)
		total = total.Add(contribution)

		breakdown[i] = core.Factor{
			Key:      f.key,
			Label:    f.label,
			Raw:      v.Round(2).InexactFloat64(),
			Weighted: contribution.Mul(hundred).Round(2).InexactFloat64(),
			Weight:   f.weight.InexactFloat64(),
		}
	}

	score := total.Mul(hundred).Round(2)
	level := levelOf(score)
	return core.ScoreResult{
		Score:     score.InexactFloat64(),
		Level:     level,
		Pass:      level != core.LevelFail,
		Breakdown: breakdown,
	}
}

// Level returns the tier of a 0-100 score. Tier floors are inclusive
func Level(score float64) core.ScoreLevel {
	if math.IsNaN(score) {
		return core.LevelFail
	}
	return levelOf(decimal.NewFromFloat(score))
}

func levelOf(score decimal.Decimal) core.ScoreLevel {
	switch {
	case score.GreaterThanOrEqual(excellentAt):
		return core.LevelExcellent
	case score.GreaterThanOrEqual(goodAt):
		return core.LevelGood
	case score.GreaterThanOrEqual(acceptableAt):
		return core.LevelAcceptable
	}
	return core.LevelFail
}

// toDecimal clamps v to [0,1]. NaN counts as zero
func toDecimal(v float64) decimal.Decimal {
	switch {
	case math.IsNaN(v), v <= 0:
		return decimal.Zero
	case v >= 1:
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromFloat(v)
}
