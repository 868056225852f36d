package service

import (
	"fmt"
	"math"

	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/core"
	"go.uber.org/zap"
)

// MatchFallback decides the match score used when no descriptor comparison
// is possible
type MatchFallback string

const (
	// MatchFallbackReject scores a missing comparison as 0.
	MatchFallbackReject MatchFallback = "reject"
	// MatchFallbackNeutral substitutes Config.FallbackMatchScore.
	MatchFallbackNeutral MatchFallback = "neutral"
)

// ParseMatchFallback validates a policy name
func ParseMatchFallback(s string) (MatchFallback, error) {
	switch MatchFallback(s) {
	case MatchFallbackReject, MatchFallbackNeutral:
		return MatchFallback(s), nil
	}
	return "", fmt.Errorf("unknown match fallback %q", s)
}

// Similarity converts a descriptor distance into a [0,1] similarity rounded
// to three decimals
func Similarity(a, b core.Descriptor) float64 {
	sim := math.Max(0, 1-a.Distance(b))
	return math.Round(sim*1000) / 1000
}

func (c *Coordinator) matchScore(identity string, template core.Descriptor, last *core.FrameSignal) float64 {
	if len(template) > 0 && last != nil && len(last.Descriptor) == len(template) {
		return Similarity(template, last.Descriptor)
	}

	fallback := 0.0
	if c.cfg.MatchFallback == MatchFallbackNeutral {
		fallback = c.cfg.FallbackMatchScore
	}
	c.logger.Warn("face match unavailable",
		zap.String("identity", identity),
		zap.Int("template_len", len(template)),
		zap.String("policy", string(c.cfg.MatchFallback)),
		zap.Float64("score", fallback))
	return fallback
}
