// Package challenge issues unpredictable liveness challenges
package challenge

import (
	"crypto/rand"
	"io"
	"math/big"
	mrand "math/rand"
	"time"

	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/core"
	"github.com/google/uuid"
)

// DefaultTimerSeconds is the countdown given to the subject
const DefaultTimerSeconds = 10

// Generator selects challenges from a pool
type Generator struct {
	pool    []Definition
	entropy io.Reader
	now     func() time.Time
}

// Option configures a Generator
type Option func(*Generator)

// WithPool replaces the default pool
func WithPool(pool []Definition) Option {
	return func(g *Generator) { g.pool = pool }
}

// WithEntropy replaces the cryptographic random source
func WithEntropy(r io.Reader) Option {
	return func(g *Generator) { g.entropy = r }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// NewGenerator creates a generator over DefaultPool
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		pool:    DefaultPool,
		entropy: rand.Reader,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate issues a new challenge with a fresh id that expires
// timerSeconds from now. A non-positive timerSeconds uses the default
func (g *Generator) Generate(timerSeconds int) core.Challenge {
	if timerSeconds <= 0 {
		timerSeconds = DefaultTimerSeconds
	}
	def := g.pool[g.pick(len(g.pool))]
	now := g.now()

	return core.Challenge{
		ID:           uuid.NewString(),
		Type:         def.Type,
		Instruction:  def.Instruction,
		Difficulty:   def.Difficulty,
		Params:       def.Params,
		IssuedAt:     now,
		ExpiryTime:   now.Add(time.Duration(timerSeconds) * time.Second),
		TimerSeconds: timerSeconds,
	}
}

// pick returns a uniform index in [0, n), falling back to the
// non-cryptographic generator only when the entropy source fails
func (g *Generator) pick(n int) int {
	idx, err := rand.Int(g.entropy, big.NewInt(int64(n)))
	if err != nil {
		return mrand.Intn(n)
	}
	return int(idx.Int64())
}
