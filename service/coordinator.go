// Package service runs verification sessions and enrollment on top of the
// challenge, liveness, anti-replay, scoring and ledger packages
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/antireplay"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/challenge"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/core"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/ledger"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/liveness"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const reasonNotEnrolled = "Identity is not enrolled."

// Config holds the coordinator settings
type Config struct {
	ChallengeTimer     time.Duration
	FrameInterval      time.Duration
	MatchFallback      MatchFallback
	FallbackMatchScore float64
}

// DefaultConfig returns the production settings
func DefaultConfig() Config {
	return Config{
		ChallengeTimer:     challenge.DefaultTimerSeconds * time.Second,
		FrameInterval:      33 * time.Millisecond,
		MatchFallback:      MatchFallbackReject,
		FallbackMatchScore: 0.85,
	}
}

// Coordinator starts verification sessions. It holds only process-wide
// collaborators; all per-attempt state lives in Session
type Coordinator struct {
	users     ports.UserRecordStore
	generator *challenge.Generator
	guard     *antireplay.Guard
	ledger    *ledger.Ledger
	events    ports.EventPublisher
	logger    *zap.Logger
	cfg       Config

	now           func() time.Time
	countdown     func(time.Duration) <-chan time.Time
	classifierFor func(core.Challenge) (liveness.Classifier, error)
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithConfig overrides the default settings. Zero fields keep defaults
func WithConfig(cfg Config) Option {
	return func(c *Coordinator) {
		if cfg.ChallengeTimer > 0 {
			c.cfg.ChallengeTimer = cfg.ChallengeTimer
		}
		if cfg.FrameInterval > 0 {
			c.cfg.FrameInterval = cfg.FrameInterval
		}
		if cfg.MatchFallback != "" {
			c.cfg.MatchFallback = cfg.MatchFallback
		}
		if cfg.FallbackMatchScore > 0 {
			c.cfg.FallbackMatchScore = cfg.FallbackMatchScore
		}
	}
}

// WithEvents publishes verification and security events
func WithEvents(p ports.EventPublisher) Option {
	return func(c *Coordinator) { c.events = p }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithClock sets the time source used for session timing
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithCountdown replaces time.After for the challenge countdown
func WithCountdown(after func(time.Duration) <-chan time.Time) Option {
	return func(c *Coordinator) { c.countdown = after }
}

// NewCoordinator creates a coordinator
func NewCoordinator(
	users ports.UserRecordStore,
	generator *challenge.Generator,
	guard *antireplay.Guard,
	ledger *ledger.Ledger,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		users:         users,
		generator:     generator,
		guard:         guard,
		ledger:        ledger,
		cfg:           DefaultConfig(),
		now:           time.Now,
		countdown:     time.After,
		classifierFor: liveness.New,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// Begin admits identity for verification. Unenrolled and rate limited
// identities are rejected with a *core.RejectionError before any challenge
// is issued. The returned session is in PhaseCameraReady
func (c *Coordinator) Begin(ctx context.Context, identity string, provider ports.FaceSignalProvider, observer Observer) (*Session, error) {
	id, err := core.NormalizeIdentity(identity)
	if err != nil {
		return nil, err
	}
	if observer == nil {
		observer = ObserverFuncs{}
	}

	if err := c.admit(ctx, id); err != nil {
		var rej *core.RejectionError
		if errors.As(err, &rej) {
			observer.OnError(string(rej.Kind), rej.Error())
		}
		return nil, err
	}

	s := &Session{
		c:        c,
		id:       uuid.NewString(),
		identity: id,
		provider: provider,
		observer: observer,
		phase:    PhaseCameraReady,
	}
	c.logger.Info("verification session opened", zap.String("session", s.id), zap.String("identity", id))
	return s, nil
}

func (c *Coordinator) admit(ctx context.Context, identity string) error {
	enrolled, err := c.users.IsEnrolled(ctx, identity)
	if err != nil {
		return fmt.Errorf("failed to check enrollment: %w", err)
	}
	if !enrolled {
		c.logger.Info("verification rejected", zap.String("identity", identity), zap.String("reason", reasonNotEnrolled))
		return &core.RejectionError{Kind: core.RejectNotEnrolled, Reasons: []string{reasonNotEnrolled}}
	}
	return c.checkRateLimit(ctx, identity)
}

func (c *Coordinator) checkRateLimit(ctx context.Context, identity string) error {
	rl := c.guard.CheckRateLimit(identity)
	if rl.Allowed {
		return nil
	}
	rej := &core.RejectionError{
		Kind:       core.RejectRateLimited,
		Reasons:    []string{rl.Reason},
		RetryAfter: rl.RetryAfter,
	}
	c.reportRejection(ctx, identity, "", rej)
	return rej
}

// conclude consumes the challenge, counts the attempt and persists the
// record. It runs exactly once per concluded attempt
func (c *Coordinator) conclude(ctx context.Context, ch core.Challenge, record core.VerificationSession) error {
	c.guard.MarkUsed(ch.ID)
	c.guard.RecordAttempt(record.Identity)

	var errs []error
	if err := c.users.AppendSession(ctx, record); err != nil {
		errs = append(errs, fmt.Errorf("failed to append session: %w", err))
	}
	if err := c.users.UpdateStats(ctx, record.Identity, record.Success); err != nil {
		errs = append(errs, fmt.Errorf("failed to update stats: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		c.logger.Error("failed to persist verification", zap.String("session_id", record.SessionID), zap.Error(err))
		return err
	}

	if c.events != nil {
		if err := c.events.PublishVerification(ctx, record); err != nil {
			c.logger.Error("failed to publish verification event", zap.String("session_id", record.SessionID), zap.Error(err))
		}
	}
	return nil
}

func (c *Coordinator) reportRejection(ctx context.Context, identity, challengeID string, rej *core.RejectionError) {
	c.logger.Info("verification rejected",
		zap.String("identity", identity),
		zap.String("challenge_id", challengeID),
		zap.String("kind", string(rej.Kind)),
		zap.String("reason", strings.Join(rej.Reasons, " ")))

	if c.events == nil {
		return
	}
	event := core.SecurityEvent{
		Identity:    identity,
		Kind:        rej.Kind,
		ChallengeID: challengeID,
		Reasons:     rej.Reasons,
		Timestamp:   c.now(),
	}
	if err := c.events.PublishSecurityEvent(ctx, event); err != nil {
		c.logger.Error("failed to publish security event", zap.String("identity", identity), zap.Error(err))
	}
}

func (c *Coordinator) newAttemptID() string {
	return fmt.Sprintf("VER-%d-%s", c.now().UnixMilli(), strings.ToUpper(uuid.NewString()[:4]))
}
