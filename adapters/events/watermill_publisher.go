package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/core"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/ports"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

const (
	TopicVerification = "pol.verification"
	TopicTokenIssued  = "pol.token.issued"
	TopicTokenRevoked = "pol.token.revoked"
	TopicSecurity     = "pol.security"
)

// VerificationEvent is published for every concluded attempt
type VerificationEvent struct {
	SessionID     string    `json:"session_id"`
	Identity      string    `json:"identity"`
	ChallengeType string    `json:"challenge_type"`
	Success       bool      `json:"success"`
	Confidence    float64   `json:"confidence"`
	FailureReason string    `json:"failure_reason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// TokenEvent is published when a token is issued or revoked
type TokenEvent struct {
	TokenID   string     `json:"token_id"`
	Identity  string     `json:"identity"`
	Status    string     `json:"status"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// SecurityEvent is published for fail-closed rejections
type SecurityEvent struct {
	Identity    string    `json:"identity"`
	Kind        string    `json:"kind"`
	ChallengeID string    `json:"challenge_id,omitempty"`
	Reasons     []string  `json:"reasons"`
	Timestamp   time.Time `json:"timestamp"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{publisher: publisher}
}

var _ ports.EventPublisher = (*WatermillPublisher)(nil)

// PublishVerification publishes a verification outcome
func (p *WatermillPublisher) PublishVerification(ctx context.Context, r core.VerificationSession) error {
	return p.publish(ctx, TopicVerification, r.Identity, VerificationEvent{
		SessionID:     r.SessionID,
		Identity:      r.Identity,
		ChallengeType: string(r.ChallengeType),
		Success:       r.Success,
		Confidence:    r.ConfidenceScore,
		FailureReason: r.FailureReason,
		Timestamp:     r.Timestamp,
	})
}

// PublishTokenIssued publishes a token issue event
func (p *WatermillPublisher) PublishTokenIssued(ctx context.Context, t core.Token) error {
	return p.publish(ctx, TopicTokenIssued, t.Identity, tokenEvent(t))
}

// PublishTokenRevoked publishes a token revoke event for cross-instance
// notifications
func (p *WatermillPublisher) PublishTokenRevoked(ctx context.Context, t core.Token) error {
	return p.publish(ctx, TopicTokenRevoked, t.Identity, tokenEvent(t))
}

// PublishSecurityEvent publishes a rejected attempt
func (p *WatermillPublisher) PublishSecurityEvent(ctx context.Context, e core.SecurityEvent) error {
	return p.publish(ctx, TopicSecurity, e.Identity, SecurityEvent{
		Identity:    e.Identity,
		Kind:        string(e.Kind),
		ChallengeID: e.ChallengeID,
		Reasons:     e.Reasons,
		Timestamp:   e.Timestamp,
	})
}

func tokenEvent(t core.Token) TokenEvent {
	return TokenEvent{
		TokenID:   t.TokenID,
		Identity:  t.Identity,
		Status:    string(t.Status),
		ExpiresAt: t.ExpiresAt,
		RevokedAt: t.RevokedAt,
	}
}

func (p *WatermillPublisher) publish(ctx context.Context, topic, identity string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("identity", identity)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
