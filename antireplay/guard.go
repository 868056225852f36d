// Package antireplay rejects replayed, stale, future-dated and implausibly
// fast challenge completions and throttles attempts per identity
package antireplay

import (
	"fmt"
	"sync"
	"time"

	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/core"
)

const (
	ReasonReplay    = "Challenge ID already used. Possible replay attack."
	ReasonExpired   = "Challenge expired."
	ReasonFuture    = "Challenge timestamp is in the future. Clock manipulation detected."
	ReasonTooFast   = "Verification completed too quickly. Possible automation."
	reasonRateLimit = "Rate limit exceeded. Maximum %d verifications per %s."
)

// Config holds the guard limits
type Config struct {
	MaxChallengeAge     time.Duration
	MinVerificationTime time.Duration
	RateLimitMax        int
	RateLimitWindow     time.Duration
}

// DefaultConfig returns the production limits
func DefaultConfig() Config {
	return Config{
		MaxChallengeAge:     20 * time.Second,
		MinVerificationTime: 2 * time.Second,
		RateLimitMax:        10,
		RateLimitWindow:     time.Hour,
	}
}

// ChallengeCheck is the result of ValidateChallenge. All failing rules are
// reported
type ChallengeCheck struct {
	Valid   bool     `json:"valid"`
	Reasons []string `json:"reasons,omitempty"`
}

// TimingCheck is the result of CheckTiming
type TimingCheck struct {
	Valid    bool          `json:"valid"`
	Duration time.Duration `json:"duration"`
	Reason   string        `json:"reason,omitempty"`
}

// RateLimit is the result of CheckRateLimit. RetryAfter is rounded up to a
// whole second
type RateLimit struct {
	Allowed    bool          `json:"allowed"`
	Remaining  int           `json:"remaining"`
	RetryAfter time.Duration `json:"retryAfter,omitempty"`
	Reason     string        `json:"reason,omitempty"`
}

// Guard holds the used-challenge set and the per-identity attempt windows.
// It is safe for concurrent use
type Guard struct {
	cfg Config
	now func() time.Time

	usedMu sync.RWMutex
	used   map[string]struct{}

	attemptsMu sync.Mutex
	attempts   map[string][]time.Time
}

// Option configures a Guard
type Option func(*Guard)

// WithClock sets the time source
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// NewGuard creates a guard. Zero config fields take their defaults
func NewGuard(cfg Config, opts ...Option) *Guard {
	def := DefaultConfig()
	if cfg.MaxChallengeAge <= 0 {
		cfg.MaxChallengeAge = def.MaxChallengeAge
	}
	if cfg.MinVerificationTime <= 0 {
		cfg.MinVerificationTime = def.MinVerificationTime
	}
	if cfg.RateLimitMax <= 0 {
		cfg.RateLimitMax = def.RateLimitMax
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = def.RateLimitWindow
	}

	g := &Guard{
		cfg:      cfg,
		now:      time.Now,
		used:     make(map[string]struct{}),
		attempts: make(map[string][]time.Time),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ValidateChallenge checks single use and freshness of ch
func (g *Guard) ValidateChallenge(ch core.Challenge) ChallengeCheck {
	var reasons []string

	g.usedMu.RLock()
	_, used := g.used[ch.ID]
	g.usedMu.RUnlock()
	if used {
		reasons = append(reasons, ReasonReplay)
	}

	age := g.now().Sub(ch.IssuedAt)
	if age > g.cfg.MaxChallengeAge {
		reasons = append(reasons, ReasonExpired)
	}
	if age < 0 {
		reasons = append(reasons, ReasonFuture)
	}

	return ChallengeCheck{Valid: len(reasons) == 0, Reasons: reasons}
}

// MarkUsed permanently consumes a challenge id. Repeated calls are no-ops
func (g *Guard) MarkUsed(challengeID string) {
	g.usedMu.Lock()
	g.used[challengeID] = struct{}{}
	g.usedMu.Unlock()
}

// IsUsed reports whether challengeID was consumed
func (g *Guard) IsUsed(challengeID string) bool {
	g.usedMu.RLock()
	defer g.usedMu.RUnlock()
	_, ok := g.used[challengeID]
	return ok
}

// CheckTiming rejects attempts that completed faster than a human could
func (g *Guard) CheckTiming(start, end time.Time) TimingCheck {
	d := end.Sub(start)
	if d < g.cfg.MinVerificationTime {
		return TimingCheck{Valid: false, Duration: d, Reason: ReasonTooFast}
	}
	return TimingCheck{Valid: true, Duration: d}
}

// CheckRateLimit prunes the identity's window and reports whether another
// attempt may start
func (g *Guard) CheckRateLimit(identity string) RateLimit {
	now := g.now()

	g.attemptsMu.Lock()
	defer g.attemptsMu.Unlock()

	recent := g.prune(identity, now)
	if len(recent) >= g.cfg.RateLimitMax {
		wait := recent[0].Add(g.cfg.RateLimitWindow).Sub(now)
		return RateLimit{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: ceilSecond(wait),
			Reason:     fmt.Sprintf(reasonRateLimit, g.cfg.RateLimitMax, humanWindow(g.cfg.RateLimitWindow)),
		}
	}
	return RateLimit{Allowed: true, Remaining: g.cfg.RateLimitMax - len(recent)}
}

// RecordAttempt appends one concluded attempt to the identity's window
func (g *Guard) RecordAttempt(identity string) {
	now := g.now()

	g.attemptsMu.Lock()
	defer g.attemptsMu.Unlock()

	recent := g.prune(identity, now)
	g.attempts[identity] = append(recent, now)
}

// prune drops attempts older than the window. Callers hold attemptsMu
func (g *Guard) prune(identity string, now time.Time) []time.Time {
	all := g.attempts[identity]
	cutoff := now.Add(-g.cfg.RateLimitWindow)
	i := 0
	for i < len(all) && !all[i].After(cutoff) {
		i++
	}
	recent := all[i:]
	if len(recent) == 0 {
		delete(g.attempts, identity)
		return nil
	}
	g.attempts[identity] = recent
	return recent
}

func ceilSecond(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return ((d + time.Second - 1) / time.Second) * time.Second
}

func humanWindow(d time.Duration) string {
	if d == time.Hour {
		return "hour"
	}
	return d.String()
}
