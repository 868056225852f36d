package liveness

import (
	"testing"

	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/liveness/livenesstest"
	"github.com/stretchr/testify/assert"
)

func TestAssessQuality_GoodFrame(t *testing.T) {
	sig := livenesstest.Signal(livenesstest.Neutral, 0.92)
	q := AssessQuality(sig, 320, 240)

	assert.True(t, q.FaceDetected)
	assert.True(t, q.GoodLighting)
	assert.True(t, q.ProperDistance)
	assert.True(t, q.FrontalAngle)
	assert.Equal(t, 1.0, q.Score)
	assert.Equal(t, 33, q.FaceAreaPercent)
}

func TestAssessQuality_FarAndDim(t *testing.T) {
	sig := livenesstest.Signal(livenesstest.Neutral, 0.65)
	q := AssessQuality(sig, 3200, 2400)

	assert.True(t, q.FaceDetected)
	assert.False(t, q.GoodLighting)
	assert.False(t, q.ProperDistance)
	assert.Equal(t, 0.5, q.Score)
}

func TestAssessQuality_NoFace(t *testing.T) {
	assert.Equal(t, Quality{}, AssessQuality(nil, 640, 480))
}
