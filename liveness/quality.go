package liveness

import (
	"math"

	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/core"
)

// Quality summarizes whether a frame is suitable for enrollment
type Quality struct {
	FaceDetected    bool    `json:"faceDetected"`
	GoodLighting    bool    `json:"goodLighting"`
	ProperDistance  bool    `json:"properDistance"`
	FrontalAngle    bool    `json:"frontalAngle"`
	Score           float64 `json:"score"`
	DetectionScore  float64 `json:"detectionScore"`
	FaceAreaPercent int     `json:"faceAreaPercent"`
}

// AssessQuality scores a frame of the given pixel size
func AssessQuality(sig *core.FrameSignal, frameWidth, frameHeight float64) Quality {
	if sig == nil || frameWidth <= 0 || frameHeight <= 0 {
		return Quality{}
	}
	area := (sig.Box.Width * sig.Box.Height) / (frameWidth * frameHeight)

	q := Quality{
		FaceDetected:    sig.DetectionScore > 0.6,
		GoodLighting:    sig.DetectionScore > 0.7,
		ProperDistance:  area > 0.04 && area < 0.6,
		DetectionScore:  round(sig.DetectionScore, 2),
		FaceAreaPercent: int(math.Round(area * 100)),
	}

	l := sig.Landmarks
	if len(l.Nose) > 3 && len(l.LeftEye) > 0 && len(l.RightEye) > 3 && sig.Box.Width > 0 {
		eyeMidX := (l.LeftEye[0].X + l.RightEye[3].X) / 2
		q.FrontalAngle = math.Abs(eyeMidX-l.Nose[3].X)/sig.Box.Width < 0.15
	}

	var score float64
	if q.FaceDetected {
		score += 0.3
	}
	if q.ProperDistance {
		score += 0.25
	}
	if q.GoodLighting {
		score += 0.25
	}
	if q.FrontalAngle {
		score += 0.2
	}
	q.Score = round(score, 2)
	return q
}
