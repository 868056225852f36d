package liveness

import (
	"fmt"
	"math"

	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/core"
)

// headPose is the estimated head rotation in degrees
type headPose struct {
	Yaw   float64
	Pitch float64
}

func degenerate(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{core.ErrDegenerateGeometry}, args...)...)
}

// eyeAspectRatio computes (|p2-p6| + |p3-p5|) / (2|p1-p4|) over six eye points
func eyeAspectRatio(eye []core.Point) (float64, error) {
	if len(eye) < 6 {
		return 0, degenerate("eye has %d points, need 6", len(eye))
	}
	v1 := eye[1].Dist(eye[5])
	v2 := eye[2].Dist(eye[4])
	h := eye[0].Dist(eye[3])
	if h <= 0 {
		return 0, degenerate("eye corners coincide")
	}
	return (v1 + v2) / (2 * h), nil
}

// mouthAspectRatio is the inner lip opening over the corner-to-corner width
func mouthAspectRatio(mouth []core.Point) (float64, error) {
	if len(mouth) < 10 {
		return 0, degenerate("mouth has %d points, need 10", len(mouth))
	}
	top, bottom := mouth[3], mouth[9]
	if len(mouth) > 18 {
		top, bottom = mouth[14], mouth[18]
	}
	width := mouth[0].Dist(mouth[6])
	if width <= 0 {
		return 0, degenerate("mouth corners coincide")
	}
	return top.Dist(bottom) / width, nil
}

func centroid(pts []core.Point) (core.Point, error) {
	if len(pts) == 0 {
		return core.Point{}, degenerate("empty landmark group")
	}
	var c core.Point
	for _, p := range pts {
		c.X += p.X
		c.Y += p.Y
	}
	n := float64(len(pts))
	return core.Point{X: c.X / n, Y: c.Y / n}, nil
}

func eyeCenters(l core.Landmarks) (left, right core.Point, err error) {
	if left, err = centroid(l.LeftEye); err != nil {
		return
	}
	right, err = centroid(l.RightEye)
	return
}

// estimateHeadPose derives yaw from the nose tip offset against the eye
// midpoint and pitch from its vertical drop, both normalized by the
// inter-ocular distance
func estimateHeadPose(l core.Landmarks) (headPose, error) {
	if len(l.Nose) < 4 {
		return headPose{}, degenerate("nose has %d points, need 4", len(l.Nose))
	}
	left, right, err := eyeCenters(l)
	if err != nil {
		return headPose{}, err
	}
	eyeDistance := math.Abs(right.X - left.X)
	if eyeDistance <= 0 {
		return headPose{}, degenerate("eye centers coincide")
	}
	tip := l.Nose[3]
	midX := (left.X + right.X) / 2
	midY := (left.Y + right.Y) / 2

	yaw := (tip.X - midX) / eyeDistance * 60
	pitch := ((tip.Y-midY)/eyeDistance - 0.7) * 80
	return headPose{Yaw: yaw, Pitch: pitch}, nil
}

// browHeight is the mean eye-to-eyebrow vertical gap divided by the
// inter-ocular distance, which makes it independent of face scale
func browHeight(l core.Landmarks) (float64, error) {
	leftBrow, err := centroid(l.LeftEyebrow)
	if err != nil {
		return 0, err
	}
	rightBrow, err := centroid(l.RightEyebrow)
	if err != nil {
		return 0, err
	}
	leftEye, rightEye, err := eyeCenters(l)
	if err != nil {
		return 0, err
	}
	ref := leftEye.Dist(rightEye)
	if ref <= 0 {
		return 0, degenerate("eye centers coincide")
	}
	gap := ((leftEye.Y - leftBrow.Y) + (rightEye.Y - rightBrow.Y)) / 2
	return gap / ref, nil
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

func checkFinite(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return degenerate("non-finite measurement")
	}
	return nil
}
