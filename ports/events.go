package ports

import (
	"context"

	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/core"
)

// EventPublisher notifies other services about verification outcomes
type EventPublisher interface {
	PublishVerification(ctx context.Context, record core.VerificationSession) error
	PublishTokenIssued(ctx context.Context, token core.Token) error
	PublishTokenRevoked(ctx context.Context, token core.Token) error
	PublishSecurityEvent(ctx context.Context, event core.SecurityEvent) error
}
