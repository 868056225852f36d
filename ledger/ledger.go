// Package ledger issues, validates, expires and revokes proof-of-life tokens
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/core"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// TokenPrefix starts every token id.
	TokenPrefix = "POL"

	DefaultValidity     = 5 * time.Minute
	DefaultHistoryLimit = 10

	maxIssueAttempts = 5
)

const (
	ReasonNotFound = "Token not found."
	ReasonRevoked  = "Token has been revoked."
	ReasonExpired  = "Token has expired."
	ReasonMismatch = "Attestation does not match the ledger."
)

// Validation is the structured outcome of validating a token. Invalid tokens
// are never reported as errors
type Validation struct {
	Valid     bool        `json:"valid"`
	Reason    string      `json:"reason,omitempty"`
	Token     *core.Token `json:"token,omitempty"`
	Remaining Remaining   `json:"remaining"`
}

// Ledger owns every token status transition
type Ledger struct {
	store     ports.LedgerStore
	tokenizer ports.Tokenizer
	events    ports.EventPublisher
	logger    *zap.Logger

	validity time.Duration
	now      func() time.Time
	suffix   func() string

	tokens keyedMutex
}

// Option configures a Ledger
type Option func(*Ledger)

// WithTokenizer attaches a signed attestation to every issued token
func WithTokenizer(t ports.Tokenizer) Option {
	return func(l *Ledger) { l.tokenizer = t }
}

// WithEvents publishes issue and revoke events
func WithEvents(p ports.EventPublisher) Option {
	return func(l *Ledger) { l.events = p }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithValidity overrides the token lifetime
func WithValidity(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.validity = d
		}
	}
}

// WithClock sets the time source
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithSuffix sets the generator of the random token id suffix
func WithSuffix(suffix func() string) Option {
	return func(l *Ledger) { l.suffix = suffix }
}

// New creates a ledger backed by store
func New(store ports.LedgerStore, opts ...Option) *Ledger {
	l := &Ledger{
		store:    store,
		validity: DefaultValidity,
		now:      time.Now,
		suffix:   randomSuffix,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	return l
}

// Validity returns the configured token lifetime
func (l *Ledger) Validity() time.Duration {
	return l.validity
}

func randomSuffix() string {
	return strings.ToUpper(uuid.NewString()[:4])
}

// FormatTokenID renders POL-YYYYMMDD-HHMMSS-XXXX in UTC
func FormatTokenID(at time.Time, suffix string) string {
	return fmt.Sprintf("%s-%s-%s", TokenPrefix, at.UTC().Format("20060102-150405"), suffix)
}

// Issue creates an active token for identity and makes it the identity's
// current token. Only call it after a passing score
func (l *Ledger) Issue(ctx context.Context, identity string, confidence float64, sessionID string, challengeType core.ChallengeType) (core.Token, error) {
	now := l.now()
	token := core.Token{
		Identity:        identity,
		IssuedAt:        now,
		ExpiresAt:       now.Add(l.validity),
		ConfidenceScore: confidence,
		SessionID:       sessionID,
		ChallengeType:   challengeType,
		Status:          core.TokenActive,
		Version:         core.TokenVersion,
	}

	id, err := l.uniqueID(ctx, now)
	if err != nil {
		return core.Token{}, err
	}
	token.TokenID = id

	if l.tokenizer != nil {
		attestation, err := l.tokenizer.TokenToAttestation(token)
		if err != nil {
			return core.Token{}, fmt.Errorf("failed to sign token: %w", err)
		}
		token.Attestation = attestation
	}

	unlock := l.tokens.lock(token.TokenID)
	defer unlock()

	if err := l.store.Append(ctx, token); err != nil {
		return core.Token{}, fmt.Errorf("failed to append token: %w", err)
	}
	if err := l.store.SetCurrent(ctx, identity, token.TokenID); err != nil {
		return core.Token{}, fmt.Errorf("failed to set current token: %w", err)
	}

	l.logger.Info("token issued",
		zap.String("token_id", token.TokenID),
		zap.String("identity", identity),
		zap.Float64("confidence", confidence),
		zap.Time("expires_at", token.ExpiresAt))

	if l.events != nil {
		if err := l.events.PublishTokenIssued(ctx, token); err != nil {
			l.logger.Error("failed to publish token issued event", zap.String("token_id", token.TokenID), zap.Error(err))
		}
	}
	return token, nil
}

func (l *Ledger) uniqueID(ctx context.Context, now time.Time) (string, error) {
	for i := 0; i < maxIssueAttempts; i++ {
		id := FormatTokenID(now, l.suffix())
		exists, err := l.store.Exists(ctx, id)
		if err != nil {
			return "", fmt.Errorf("failed to check token id: %w", err)
		}
		if !exists {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: no unique token id after %d attempts", core.ErrStoreOperationFailed, maxIssueAttempts)
}

// Validate reports whether tokenID is usable now. A token read past its
// expiry is flipped to expired as a side effect
func (l *Ledger) Validate(ctx context.Context, tokenID string) (Validation, error) {
	unlock := l.tokens.lock(tokenID)
	defer unlock()

	now := l.now()
	token, err := l.store.Get(ctx, tokenID)
	if errors.Is(err, core.ErrTokenNotFound) {
		return Validation{Reason: ReasonNotFound, Remaining: RemainingTime(nil, now)}, nil
	}
	if err != nil {
		return Validation{}, fmt.Errorf("failed to load token: %w", err)
	}

	switch {
	case token.Status == core.TokenRevoked:
		return Validation{Reason: ReasonRevoked, Token: &token, Remaining: RemainingTime(nil, now)}, nil
	case token.Status == core.TokenExpired:
		return Validation{Reason: ReasonExpired, Token: &token, Remaining: RemainingTime(nil, now)}, nil
	case token.Expired(now):
		if err := l.expire(ctx, &token); err != nil {
			return Validation{}, err
		}
		return Validation{Reason: ReasonExpired, Token: &token, Remaining: RemainingTime(nil, now)}, nil
	}

	return Validation{Valid: true, Token: &token, Remaining: RemainingTime(&token, now)}, nil
}

// Introspect verifies a signed attestation and then consults the ledger, so
// revocation and expiry are honored for offline-signed tokens. An authentic
// but expired attestation is a structured invalid result, not an error
func (l *Ledger) Introspect(ctx context.Context, attestation string) (Validation, error) {
	if l.tokenizer == nil {
		return Validation{}, errors.New("no tokenizer configured")
	}
	claimed, err := l.tokenizer.AttestationToToken(attestation)
	expired := errors.Is(err, core.ErrTokenExpired) && claimed.TokenID != ""
	if err != nil && !expired {
		return Validation{}, fmt.Errorf("%w: %w", core.ErrTokenInvalid, err)
	}
	v, err := l.Validate(ctx, claimed.TokenID)
	if err != nil || v.Token == nil {
		return v, err
	}
	if v.Token.Identity != claimed.Identity || v.Token.SessionID != claimed.SessionID {
		return Validation{Reason: ReasonMismatch, Remaining: RemainingTime(nil, l.now())}, nil
	}
	if expired && v.Valid {
		return Validation{Reason: ReasonExpired, Token: v.Token, Remaining: RemainingTime(nil, l.now())}, nil
	}
	return v, nil
}

// expire flips token to expired and drops it as current. The caller holds
// the token lock
func (l *Ledger) expire(ctx context.Context, token *core.Token) error {
	token.Status = core.TokenExpired
	if err := l.store.Update(ctx, *token); err != nil {
		return fmt.Errorf("failed to expire token: %w", err)
	}
	if err := l.store.ClearCurrent(ctx, token.Identity, token.TokenID); err != nil {
		return fmt.Errorf("failed to clear current token: %w", err)
	}
	l.logger.Debug("token expired", zap.String("token_id", token.TokenID))
	return nil
}

// Revoke permanently invalidates tokenID. Revoking a revoked token is a
// no-op
func (l *Ledger) Revoke(ctx context.Context, tokenID string) (core.Token, error) {
	unlock := l.tokens.lock(tokenID)
	defer unlock()

	token, err := l.store.Get(ctx, tokenID)
	if err != nil {
		return core.Token{}, err
	}
	if token.Status == core.TokenRevoked {
		return token, nil
	}

	now := l.now()
	token.Status = core.TokenRevoked
	token.RevokedAt = &now
	if err := l.store.Update(ctx, token); err != nil {
		return core.Token{}, fmt.Errorf("failed to revoke token: %w", err)
	}
	if err := l.store.ClearCurrent(ctx, token.Identity, token.TokenID); err != nil {
		return core.Token{}, fmt.Errorf("failed to clear current token: %w", err)
	}

	l.logger.Info("token revoked", zap.String("token_id", tokenID), zap.String("identity", token.Identity))

	if l.events != nil {
		if err := l.events.PublishTokenRevoked(ctx, token); err != nil {
			l.logger.Error("failed to publish token revoked event", zap.String("token_id", tokenID), zap.Error(err))
		}
	}
	return token, nil
}

// Current returns the identity's current active token, or nil
func (l *Ledger) Current(ctx context.Context, identity string) (*core.Token, error) {
	id, err := l.store.Current(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to load current token: %w", err)
	}
	if id == "" {
		return nil, nil
	}

	unlock := l.tokens.lock(id)
	defer unlock()

	token, err := l.store.Get(ctx, id)
	if errors.Is(err, core.ErrTokenNotFound) {
		return nil, l.store.ClearCurrent(ctx, identity, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	switch {
	case token.Status != core.TokenActive:
		return nil, l.store.ClearCurrent(ctx, identity, id)
	case token.Expired(l.now()):
		return nil, l.expire(ctx, &token)
	}
	return &token, nil
}

// History returns up to limit of the identity's tokens, newest first, with
// lapsed active tokens reported as expired. The stored status is not changed
func (l *Ledger) History(ctx context.Context, identity string, limit int) ([]core.Token, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	tokens, err := l.store.ListByIdentity(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}

	sort.SliceStable(tokens, func(i, j int) bool {
		return tokens[i].IssuedAt.After(tokens[j].IssuedAt)
	})
	if len(tokens) > limit {
		tokens = tokens[:limit]
	}

	now := l.now()
	for i := range tokens {
		tokens[i].Status = tokens[i].EffectiveStatus(now)
	}
	return tokens, nil
}

// RemainingTime reports the time left on token using the ledger clock
func (l *Ledger) RemainingTime(token *core.Token) Remaining {
	return RemainingTime(token, l.now())
}
