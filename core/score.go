package core

// ScoreLevel is the verdict tier of a score
type ScoreLevel string

const (
	LevelExcellent  ScoreLevel = "excellent"
	LevelGood       ScoreLevel = "good"
	LevelAcceptable ScoreLevel = "acceptable"
	LevelFail       ScoreLevel = "fail"
)

// Label returns the human readable description of the tier
func (l ScoreLevel) Label() string {
	switch l {
	case LevelExcellent:
		return "Excellent — Very High Confidence"
	case LevelGood:
		return "Good — Verification Passed"
	case LevelAcceptable:
		return "Acceptable — Passed with Warning"
	case LevelFail:
		return "Failed — Insufficient Confidence"
	}
	return "Unknown"
}

// Factor is one weighted input of the score
type Factor struct {
	Key      string  `json:"key"`
	Label    string  `json:"label"`
	Raw      float64 `json:"raw"`
	Weighted float64 `json:"weighted"`
	Weight   float64 `json:"weight"`
}

// ScoreResult is the fused verdict. It is immutable once computed
type ScoreResult struct {
	Score     float64    `json:"score"`
	Level     ScoreLevel `json:"level"`
	Pass      bool       `json:"pass"`
	Breakdown []Factor   `json:"breakdown"`
}

// FailedScore is the synthetic result reported when an attempt never
// reached scoring
func FailedScore() ScoreResult {
	return ScoreResult{Score: 0, Level: LevelFail, Pass: false}
}
