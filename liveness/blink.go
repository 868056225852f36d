package liveness

import "github.com/Ankitpaiii/Decentralized-Proof-of-Life/core"

// minClosedFrames suppresses single-frame EAR dips
const minClosedFrames = 2

// blinkClassifier counts closed-then-open eye transitions
type blinkClassifier struct {
	threshold float64
	required  int

	closedFrames int
	closed       bool
	count        int
}

func newBlinkClassifier(p core.DetectionParams) *blinkClassifier {
	return &blinkClassifier{
		threshold: or(p.Threshold, 0.22),
		required:  orInt(p.RequiredCount, 2),
	}
}

func (c *blinkClassifier) Consume(sig *core.FrameSignal) (Detection, error) {
	if sig == nil {
		return Detection{Count: c.count}, nil
	}
	left, err := eyeAspectRatio(sig.Landmarks.LeftEye)
	if err != nil {
		return Detection{Count: c.count}, transient(err)
	}
	right, err := eyeAspectRatio(sig.Landmarks.RightEye)
	if err != nil {
		return Detection{Count: c.count}, transient(err)
	}
	ear := (left + right) / 2

	if ear < c.threshold {
		c.closedFrames++
		if c.closedFrames >= minClosedFrames {
			c.closed = true
		}
	} else {
		if c.closed {
			c.count++
			c.closed = false
		}
		c.closedFrames = 0
	}

	return Detection{
		Detected:   c.count >= c.required,
		Confidence: clamp01(float64(c.count) / float64(c.required)),
		Metric:     round(ear, 3),
		Count:      c.count,
	}, nil
}

func (c *blinkClassifier) Reset() {
	c.closedFrames = 0
	c.closed = false
	c.count = 0
}
