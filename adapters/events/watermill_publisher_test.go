package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/core"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func subscribe(t *testing.T, topic string) (*WatermillPublisher, <-chan *message.Message) {
	t.Helper()
	ps := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 8}, watermill.NopLogger{})
	t.Cleanup(func() { ps.Close() })

	msgs, err := ps.Subscribe(context.Background(), topic)
	require.NoError(t, err)
	return NewWatermillPublisher(ps), msgs
}

func receive(t *testing.T, msgs <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-msgs:
		msg.Ack()
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestPublishVerification(t *testing.T) {
	p, msgs := subscribe(t, TopicVerification)
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	err := p.PublishVerification(context.Background(), core.VerificationSession{
		SessionID:       "VER-1-ABCD",
		Identity:        "0xa",
		ChallengeType:   core.ChallengeNod,
		Success:         false,
		FailureReason:   core.FailureTimeout,
		Timestamp:       at,
		ConfidenceScore: 0,
	})
	require.NoError(t, err)

	msg := receive(t, msgs)
	assert.Equal(t, "0xa", msg.Metadata.Get("identity"))

	var ev VerificationEvent
	require.NoError(t, json.Unmarshal(msg.Payload, &ev))
	assert.Equal(t, "VER-1-ABCD", ev.SessionID)
	assert.Equal(t, "NOD", ev.ChallengeType)
	assert.Equal(t, "timeout", ev.FailureReason)
	assert.False(t, ev.Success)
}

func TestPublishTokenEvents(t *testing.T) {
	ps := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 8}, watermill.NopLogger{})
	defer ps.Close()
	issued, err := ps.Subscribe(context.Background(), TopicTokenIssued)
	require.NoError(t, err)
	revoked, err := ps.Subscribe(context.Background(), TopicTokenRevoked)
	require.NoError(t, err)
	p := NewWatermillPublisher(ps)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tok := core.Token{TokenID: "POL-1", Identity: "0xa", Status: core.TokenActive, ExpiresAt: now.Add(5 * time.Minute)}
	require.NoError(t, p.PublishTokenIssued(context.Background(), tok))

	var ev TokenEvent
	require.NoError(t, json.Unmarshal(receive(t, issued).Payload, &ev))
	assert.Equal(t, "POL-1", ev.TokenID)
	assert.Equal(t, "active", ev.Status)
	assert.Nil(t, ev.RevokedAt)

	tok.Status = core.TokenRevoked
	tok.RevokedAt = &now
	require.NoError(t, p.PublishTokenRevoked(context.Background(), tok))

	require.NoError(t, json.Unmarshal(receive(t, revoked).Payload, &ev))
	assert.Equal(t, "revoked", ev.Status)
	require.NotNil(t, ev.RevokedAt)
	assert.True(t, now.Equal(*ev.RevokedAt))
}

func TestPublishSecurityEvent(t *testing.T) {
	p, msgs := subscribe(t, TopicSecurity)

	err := p.PublishSecurityEvent(context.Background(), core.SecurityEvent{
		Identity:    "0xa",
		Kind:        core.RejectReplay,
		ChallengeID: "c-1",
		Reasons:     []string{"Challenge expired."},
	})
	require.NoError(t, err)

	var ev SecurityEvent
	require.NoError(t, json.Unmarshal(receive(t, msgs).Payload, &ev))
	assert.Equal(t, "replay", ev.Kind)
	assert.Equal(t, []string{"Challenge expired."}, ev.Reasons)
}
