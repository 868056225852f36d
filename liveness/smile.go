package liveness

import (
	"time"

	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/core"
)

const (
	defaultFrameStep = 33 * time.Millisecond
	maxFrameStep     = 250 * time.Millisecond
)

// smileClassifier accumulates time spent above the expression threshold and
// decays at half rate below it
type smileClassifier struct {
	threshold float64
	required  time.Duration

	accumulated time.Duration
	last        time.Time
}

func newSmileClassifier(p core.DetectionParams) *smileClassifier {
	required := p.Duration
	if required <= 0 {
		required = 1500 * time.Millisecond
	}
	return &smileClassifier{
		threshold: or(p.Threshold, 0.6),
		required:  required,
	}
}

// step is the time covered by sig: the gap since the previous capture when
// frames are timestamped, otherwise one nominal frame
func (c *smileClassifier) step(sig *core.FrameSignal) time.Duration {
	at := sig.CapturedAt
	defer func() {
		if !at.IsZero() {
			c.last = at
		}
	}()
	if at.IsZero() || c.last.IsZero() || !at.After(c.last) {
		return defaultFrameStep
	}
	if d := at.Sub(c.last); d < maxFrameStep {
		return d
	}
	return maxFrameStep
}

func (c *smileClassifier) Consume(sig *core.FrameSignal) (Detection, error) {
	if sig == nil {
		return Detection{Duration: c.accumulated}, nil
	}
	happy := sig.Expression("happy")
	if err := checkFinite(happy); err != nil {
		return Detection{}, transient(err)
	}

	dt := c.step(sig)
	if happy > c.threshold {
		c.accumulated += dt
	} else {
		c.accumulated -= dt / 2
		if c.accumulated < 0 {
			c.accumulated = 0
		}
	}

	return Detection{
		Detected:   c.accumulated >= c.required,
		Confidence: clamp01(float64(c.accumulated) / float64(c.required)),
		Metric:     round(happy, 2),
		Duration:   c.accumulated,
	}, nil
}

func (c *smileClassifier) Reset() {
	c.accumulated = 0
	c.last = time.Time{}
}
