package ports

import (
	"context"

	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/core"
)

// UserRecordStore owns enrolled templates, session history and aggregate
// stats
type UserRecordStore interface {
	Enroll(ctx context.Context, enrollment core.Enrollment) error
	IsEnrolled(ctx context.Context, identity string) (bool, error)
	// GetTemplate returns nil without error when no template is stored.
	GetTemplate(ctx context.Context, identity string) (core.Descriptor, error)
	AppendSession(ctx context.Context, record core.VerificationSession) error
	UpdateStats(ctx context.Context, identity string, success bool) error
	// GetHistory returns at most limit sessions, newest first.
	GetHistory(ctx context.Context, identity string, limit int) ([]core.VerificationSession, error)
	GetStats(ctx context.Context, identity string) (core.Stats, error)
}

// LedgerStore persists issued tokens and the per-identity current pointer.
// Tokens are never deleted
type LedgerStore interface {
	Append(ctx context.Context, token core.Token) error
	// Get returns core.ErrTokenNotFound for unknown ids.
	Get(ctx context.Context, tokenID string) (core.Token, error)
	Exists(ctx context.Context, tokenID string) (bool, error)
	// Update overwrites the mutable fields (status, revokedAt) of a stored token.
	Update(ctx context.Context, token core.Token) error
	SetCurrent(ctx context.Context, identity, tokenID string) error
	// Current returns "" when the identity has no current token.
	Current(ctx context.Context, identity string) (string, error)
	// ClearCurrent removes the pointer only if it still names tokenID.
	ClearCurrent(ctx context.Context, identity, tokenID string) error
	ListByIdentity(ctx context.Context, identity string) ([]core.Token, error)
}
