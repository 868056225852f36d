package liveness

import "github.com/Ankitpaiii/Decentralized-Proof-of-Life/core"

const (
	// hysteresisRatio places the release level below the trigger level so
	// a ratio hovering at the threshold does not reset the hold count.
	hysteresisRatio = 0.85
	holdFrames      = 3
)

type metricFunc func(sig *core.FrameSignal) (float64, error)

func mouthOpening(sig *core.FrameSignal) (float64, error) {
	return mouthAspectRatio(sig.Landmarks.Mouth)
}

func yawLeft(sig *core.FrameSignal) (float64, error) {
	pose, err := estimateHeadPose(sig.Landmarks)
	return -pose.Yaw, err
}

func yawRight(sig *core.FrameSignal) (float64, error) {
	pose, err := estimateHeadPose(sig.Landmarks)
	return pose.Yaw, err
}

func pitchUp(sig *core.FrameSignal) (float64, error) {
	pose, err := estimateHeadPose(sig.Landmarks)
	return -pose.Pitch, err
}

func pitchDown(sig *core.FrameSignal) (float64, error) {
	pose, err := estimateHeadPose(sig.Landmarks)
	return pose.Pitch, err
}

// thresholdClassifier reports detection once a geometric ratio has stayed
// above its threshold for holdFrames frames
type thresholdClassifier struct {
	metric    metricFunc
	threshold float64
	release   float64
	hold      int

	above int
}

func newThresholdClassifier(metric metricFunc, threshold float64) *thresholdClassifier {
	return &thresholdClassifier{
		metric:    metric,
		threshold: threshold,
		release:   threshold * hysteresisRatio,
		hold:      holdFrames,
	}
}

func (c *thresholdClassifier) Consume(sig *core.FrameSignal) (Detection, error) {
	if sig == nil {
		return Detection{}, nil
	}
	v, err := c.metric(sig)
	if err == nil {
		err = checkFinite(v)
	}
	if err != nil {
		return Detection{}, transient(err)
	}

	switch {
	case v > c.threshold:
		c.above++
	case v < c.release:
		c.above = 0
	}

	return Detection{
		Detected:   c.above >= c.hold,
		Confidence: clamp01(v / c.threshold),
		Metric:     round(v, 3),
	}, nil
}

func (c *thresholdClassifier) Reset() {
	c.above = 0
}
