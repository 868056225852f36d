// Package liveness classifies streams of face signals into completed
// liveness actions
package liveness

import (
	"fmt"
	"time"

	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/core"
)

// Detection is the outcome of consuming one frame
type Detection struct {
	Detected    bool          `json:"detected"`
	Confidence  float64       `json:"confidence"`
	Metric      float64       `json:"metric"`
	Count       int           `json:"count,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Calibrating bool          `json:"calibrating,omitempty"`
}

// Classifier consumes one FrameSignal at a time. A nil signal yields a
// zero Detection and leaves the state untouched. Errors wrap
// core.ErrClassifierTransient and never invalidate the accumulated state
type Classifier interface {
	Consume(sig *core.FrameSignal) (Detection, error)
	Reset()
}

// New returns a fresh classifier for the challenge's type, applying any
// thresholds carried in the challenge parameters
func New(ch core.Challenge) (Classifier, error) {
	p := ch.Params
	switch ch.Type {
	case core.ChallengeBlinkTwice:
		return newBlinkClassifier(p), nil
	case core.ChallengeSmile:
		return newSmileClassifier(p), nil
	case core.ChallengeTurnLeft:
		return newThresholdClassifier(yawLeft, or(p.Threshold, 20)), nil
	case core.ChallengeTurnRight:
		return newThresholdClassifier(yawRight, or(p.Threshold, 20)), nil
	case core.ChallengeLookUp:
		return newThresholdClassifier(pitchUp, or(p.Threshold, 15)), nil
	case core.ChallengeLookDown:
		return newThresholdClassifier(pitchDown, or(p.Threshold, 15)), nil
	case core.ChallengeOpenMouth:
		return newThresholdClassifier(mouthOpening, or(p.Threshold, 0.35)), nil
	case core.ChallengeRaiseEyebrows:
		return newEyebrowClassifier(p), nil
	case core.ChallengeNod:
		return newNodClassifier(p), nil
	}
	return nil, fmt.Errorf("%w: %q", core.ErrUnknownChallenge, ch.Type)
}

func transient(err error) error {
	return fmt.Errorf("%w: %w", core.ErrClassifierTransient, err)
}

func or(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}

func orInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
