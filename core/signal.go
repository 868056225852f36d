package core

import (
	"math"
	"time"
)

// Point is a 2D landmark position in frame pixel coordinates
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dist returns the euclidean distance between two points
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Box is a face bounding box
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Landmarks groups facial landmark points using the 68-point layout
type Landmarks struct {
	LeftEye      []Point `json:"leftEye"`
	RightEye     []Point `json:"rightEye"`
	LeftEyebrow  []Point `json:"leftEyebrow"`
	RightEyebrow []Point `json:"rightEyebrow"`
	Nose         []Point `json:"nose"`
	Mouth        []Point `json:"mouth"`
	Jaw          []Point `json:"jaw"`
}

// Descriptor is a fixed-length identity vector
type Descriptor []float64

// Distance returns the euclidean distance to other. Vectors of different
// length are treated as maximally distant
func (d Descriptor) Distance(other Descriptor) float64 {
	if len(d) == 0 || len(d) != len(other) {
		return math.Inf(1)
	}
	var sum float64
	for i := range d {
		diff := d[i] - other[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// FrameSignal is the per-frame output of the face signal provider.
// It is never persisted
type FrameSignal struct {
	Box            Box                `json:"box"`
	DetectionScore float64            `json:"detectionScore"`
	Landmarks      Landmarks          `json:"landmarks"`
	Expressions    map[string]float64 `json:"expressions"`
	Descriptor     Descriptor         `json:"descriptor"`
	CapturedAt     time.Time          `json:"capturedAt,omitempty"`
}

// Expression returns the named expression score, or 0
func (f *FrameSignal) Expression(name string) float64 {
	if f == nil || f.Expressions == nil {
		return 0
	}
	return f.Expressions[name]
}
