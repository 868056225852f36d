package challenge

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("no entropy") }

func TestGenerate_Fields(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g := NewGenerator(WithClock(func() time.Time { return now }))

	ch := g.Generate(10)
	assert.NotEmpty(t, ch.ID)
	assert.Equal(t, now, ch.IssuedAt)
	assert.Equal(t, now.Add(10*time.Second), ch.ExpiryTime)
	assert.Equal(t, 10, ch.TimerSeconds)
	assert.Equal(t, 10*time.Second, ch.Timer())
	assert.NotEmpty(t, ch.Instruction)
}

func TestGenerate_DefaultTimer(t *testing.T) {
	ch := NewGenerator().Generate(0)
	assert.Equal(t, DefaultTimerSeconds, ch.TimerSeconds)
}

func TestGenerate_UniqueIDs(t *testing.T) {
	g := NewGenerator()
	seen := make(map[string]struct{})
	for i := 0; i < 500; i++ {
		ch := g.Generate(10)
		_, dup := seen[ch.ID]
		require.False(t, dup, "duplicate challenge id %s", ch.ID)
		seen[ch.ID] = struct{}{}
	}
}

func TestGenerate_UsesEntropy(t *testing.T) {
	// A zero byte stream always selects the first entry.
	g := NewGenerator(WithEntropy(bytes.NewReader(make([]byte, 64))))
	assert.Equal(t, DefaultPool[0].Type, g.Generate(10).Type)
}

func TestGenerate_FallsBackWithoutEntropy(t *testing.T) {
	g := NewGenerator(WithEntropy(failingReader{}))
	ch := g.Generate(10)

	var found bool
	for _, d := range DefaultPool {
		if d.Type == ch.Type {
			found = true
		}
	}
	assert.True(t, found)
}

func TestGenerate_SingleEntryPool(t *testing.T) {
	pool := []Definition{{Type: core.ChallengeOpenMouth, Instruction: "Open Your Mouth"}}
	g := NewGenerator(WithPool(pool))
	assert.Equal(t, core.ChallengeOpenMouth, g.Generate(5).Type)
}

func TestPool(t *testing.T) {
	entries := Pool()
	require.Len(t, entries, len(DefaultPool))
	assert.Equal(t, core.ChallengeBlinkTwice, entries[0].Type)
}
