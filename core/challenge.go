package core

import "time"

// ChallengeType identifies a liveness action
type ChallengeType string

const (
	ChallengeBlinkTwice    ChallengeType = "BLINK_TWICE"
	ChallengeSmile         ChallengeType = "SMILE"
	ChallengeTurnLeft      ChallengeType = "TURN_LEFT"
	ChallengeTurnRight     ChallengeType = "TURN_RIGHT"
	ChallengeOpenMouth     ChallengeType = "OPEN_MOUTH"
	ChallengeRaiseEyebrows ChallengeType = "RAISE_EYEBROWS"
	ChallengeNod           ChallengeType = "NOD"
	ChallengeLookUp        ChallengeType = "LOOK_UP"
	ChallengeLookDown      ChallengeType = "LOOK_DOWN"
)

// DetectionParams holds the thresholds a classifier applies for one challenge.
// Zero values mean the classifier default
type DetectionParams struct {
	Method        string        `json:"method"`
	Threshold     float64       `json:"threshold,omitempty"`
	RequiredCount int           `json:"requiredCount,omitempty"`
	Duration      time.Duration `json:"duration,omitempty"`
}

// Challenge is a single issued liveness action. It is immutable once issued
type Challenge struct {
	ID           string          `json:"id"`          // Unique opaque identifier
	Type         ChallengeType   `json:"type"`        // Action to perform
	Instruction  string          `json:"instruction"` // Text shown to the subject
	Difficulty   string          `json:"difficulty"`
	Params       DetectionParams `json:"params"`
	IssuedAt     time.Time       `json:"issuedAt"`   // When the challenge was created
	ExpiryTime   time.Time       `json:"expiryTime"` // IssuedAt + TimerSeconds
	TimerSeconds int             `json:"timerSeconds"`
}

// Timer returns the countdown duration for the challenge
func (c Challenge) Timer() time.Duration {
	return time.Duration(c.TimerSeconds) * time.Second
}
