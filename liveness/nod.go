package liveness

import "github.com/Ankitpaiii/Decentralized-Proof-of-Life/core"

const (
	nodDownPitch = 8.0
	nodUpPitch   = -5.0
	nodMinFrames = 2
)

// nodClassifier counts down-then-up pitch swings. Each half of the swing
// must hold for nodMinFrames frames
type nodClassifier struct {
	required int

	wasDown bool
	streak  int
	count   int
}

func newNodClassifier(p core.DetectionParams) *nodClassifier {
	return &nodClassifier{required: orInt(p.RequiredCount, 2)}
}

func (c *nodClassifier) Consume(sig *core.FrameSignal) (Detection, error) {
	if sig == nil {
		return Detection{Count: c.count}, nil
	}
	pose, err := estimateHeadPose(sig.Landmarks)
	if err == nil {
		err = checkFinite(pose.Pitch)
	}
	if err != nil {
		return Detection{Count: c.count}, transient(err)
	}

	crossed := pose.Pitch > nodDownPitch
	if c.wasDown {
		crossed = pose.Pitch < nodUpPitch
	}
	if crossed {
		c.streak++
	} else {
		c.streak = 0
	}
	if c.streak >= nodMinFrames {
		if c.wasDown {
			c.count++
		}
		c.wasDown = !c.wasDown
		c.streak = 0
	}

	return Detection{
		Detected:   c.count >= c.required,
		Confidence: clamp01(float64(c.count) / float64(c.required)),
		Metric:     round(pose.Pitch, 1),
		Count:      c.count,
	}, nil
}

func (c *nodClassifier) Reset() {
	c.wasDown = false
	c.streak = 0
	c.count = 0
}
