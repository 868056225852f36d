package liveness

import (
	"math"
	"sort"

	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/core"
)

const (
	calibrationFrames = 8
	minAbsoluteRaise  = 0.02
)

// eyebrowClassifier calibrates a resting brow height from the median of the
// first frames, then requires the raise over that baseline to exceed the
// larger of a relative and an absolute threshold for holdFrames frames
type eyebrowClassifier struct {
	relative float64

	samples    []float64
	baseline   float64
	calibrated bool
	above      int
}

func newEyebrowClassifier(p core.DetectionParams) *eyebrowClassifier {
	return &eyebrowClassifier{
		relative: or(p.Threshold, 0.15),
		samples:  make([]float64, 0, calibrationFrames),
	}
}

func (c *eyebrowClassifier) Consume(sig *core.FrameSignal) (Detection, error) {
	if sig == nil {
		return Detection{Calibrating: !c.calibrated}, nil
	}
	h, err := browHeight(sig.Landmarks)
	if err == nil {
		err = checkFinite(h)
	}
	if err != nil {
		return Detection{Calibrating: !c.calibrated}, transient(err)
	}

	if !c.calibrated {
		c.samples = append(c.samples, h)
		if len(c.samples) >= calibrationFrames {
			c.baseline = median(c.samples)
			c.calibrated = true
		}
		return Detection{Calibrating: true, Metric: round(h, 3)}, nil
	}

	raise := h - c.baseline
	threshold := math.Max(c.baseline*c.relative, minAbsoluteRaise)
	if raise > threshold {
		c.above++
	} else {
		c.above = 0
	}

	return Detection{
		Detected:   c.above >= holdFrames,
		Confidence: clamp01(raise / threshold),
		Metric:     round(raise, 3),
	}, nil
}

func (c *eyebrowClassifier) Reset() {
	c.samples = c.samples[:0]
	c.baseline = 0
	c.calibrated = false
	c.above = 0
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
