// Package livenesstest builds synthetic face signals with exact geometry
// for classifier and coordinator tests
package livenesstest

import "github.com/Ankitpaiii/Decentralized-Proof-of-Life/core"

// Pose describes the measurements a synthetic face should produce
type Pose struct {
	EAR   float64 // eye aspect ratio of both eyes
	MAR   float64 // mouth aspect ratio
	Yaw   float64 // degrees, negative is left
	Pitch float64 // degrees, positive is down
	Brow  float64 // eye-to-brow gap over inter-ocular distance
}

// Neutral is an open-eyed, closed-mouth, frontal face
var Neutral = Pose{EAR: 0.3, MAR: 0.05, Brow: 0.5}

const (
	leftEyeX  = 100.0
	rightEyeX = 160.0
	eyeY      = 100.0
	eyeGap    = rightEyeX - leftEyeX
)

func eye(cx, ear float64) []core.Point {
	h := ear * 15
	return []core.Point{
		{X: cx - 15, Y: eyeY},
		{X: cx - 5, Y: eyeY - h},
		{X: cx + 5, Y: eyeY - h},
		{X: cx + 15, Y: eyeY},
		{X: cx + 5, Y: eyeY + h},
		{X: cx - 5, Y: eyeY + h},
	}
}

func brow(cx, gap float64) []core.Point {
	y := eyeY - gap*eyeGap
	pts := make([]core.Point, 5)
	for i := range pts {
		pts[i] = core.Point{X: cx - 10 + float64(i)*5, Y: y}
	}
	return pts
}

// Landmarks returns landmark groups that measure exactly as p
func Landmarks(p Pose) core.Landmarks {
	midX := (leftEyeX + rightEyeX) / 2
	tip := core.Point{
		X: midX + p.Yaw*eyeGap/60,
		Y: eyeY + eyeGap*(p.Pitch/80+0.7),
	}
	nose := []core.Point{
		{X: midX, Y: eyeY + 10},
		{X: midX, Y: eyeY + 20},
		{X: midX, Y: eyeY + 30},
		tip,
	}

	mouth := make([]core.Point, 20)
	for i := range mouth {
		mouth[i] = core.Point{X: midX, Y: 170}
	}
	mouth[0] = core.Point{X: midX - 20, Y: 170}
	mouth[6] = core.Point{X: midX + 20, Y: 170}
	mouth[14] = core.Point{X: midX, Y: 170 - p.MAR*20}
	mouth[18] = core.Point{X: midX, Y: 170 + p.MAR*20}

	jaw := make([]core.Point, 17)
	for i := range jaw {
		jaw[i] = core.Point{X: 70 + float64(i)*8, Y: 200}
	}

	return core.Landmarks{
		LeftEye:      eye(leftEyeX, p.EAR),
		RightEye:     eye(rightEyeX, p.EAR),
		LeftEyebrow:  brow(leftEyeX, p.Brow),
		RightEyebrow: brow(rightEyeX, p.Brow),
		Nose:         nose,
		Mouth:        mouth,
		Jaw:          jaw,
	}
}

// Signal returns a frame signal for p with the given detection score
func Signal(p Pose, score float64) *core.FrameSignal {
	return &core.FrameSignal{
		Box:            core.Box{X: 60, Y: 40, Width: 140, Height: 180},
		DetectionScore: score,
		Landmarks:      Landmarks(p),
		Expressions:    map[string]float64{"neutral": 1},
		Descriptor:     Descriptor(0.1),
	}
}

// Descriptor returns a 128-dimension descriptor filled with v
func Descriptor(v float64) core.Descriptor {
	d := make(core.Descriptor, 128)
	for i := range d {
		d[i] = v
	}
	return d
}
