package tokenizer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/core"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

func sampleToken(issued time.Time) core.Token {
	return core.Token{
		TokenID:         "POL-20260101-000000-ABCD",
		Identity:        "0x52908400098527886E0F7030069857D2E4169EE7",
		IssuedAt:        issued,
		ExpiresAt:       issued.Add(5 * time.Minute),
		ConfidenceScore: 95.25,
		SessionID:       "VER-1767225600000-ABCD",
		ChallengeType:   core.ChallengeOpenMouth,
		Status:          core.TokenActive,
		Version:         core.TokenVersion,
	}
}

func TestAttestation_RoundTrip(t *testing.T) {
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	j := NewJWTTokenizer(newKey(t), WithClock(func() time.Time { return issued.Add(time.Minute) }))

	tok := sampleToken(issued)
	att, err := j.TokenToAttestation(tok)
	require.NoError(t, err)

	got, err := j.AttestationToToken(att)
	require.NoError(t, err)
	assert.Equal(t, tok.TokenID, got.TokenID)
	assert.Equal(t, tok.Identity, got.Identity)
	assert.True(t, tok.IssuedAt.Equal(got.IssuedAt))
	assert.True(t, tok.ExpiresAt.Equal(got.ExpiresAt))
	assert.Equal(t, tok.ConfidenceScore, got.ConfidenceScore)
	assert.Equal(t, tok.SessionID, got.SessionID)
	assert.Equal(t, tok.ChallengeType, got.ChallengeType)
	assert.Equal(t, att, got.Attestation)
}

func TestAttestation_Expired(t *testing.T) {
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	j := NewJWTTokenizer(newKey(t), WithClock(func() time.Time { return issued.Add(6 * time.Minute) }))

	att, err := j.TokenToAttestation(sampleToken(issued))
	require.NoError(t, err)

	got, err := j.AttestationToToken(att)
	assert.ErrorIs(t, err, core.ErrTokenExpired)
	assert.Equal(t, "POL-20260101-000000-ABCD", got.TokenID)
	assert.Equal(t, "VER-1767225600000-ABCD", got.SessionID)
}

func TestAttestation_ExpiredForgeryIsNotTrusted(t *testing.T) {
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := func() time.Time { return issued.Add(6 * time.Minute) }
	signer := NewJWTTokenizer(newKey(t), WithClock(late))
	verifier := NewJWTTokenizer(newKey(t), WithClock(late))

	att, err := signer.TokenToAttestation(sampleToken(issued))
	require.NoError(t, err)
	got, err := verifier.AttestationToToken(att)
	require.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrTokenExpired)
	assert.Empty(t, got.TokenID)

	key := newKey(t)
	claims := jwt.RegisteredClaims{
		Issuer:    Issuer,
		Subject:   "0xa",
		ID:        "POL-20260101-000000-ABCD",
		ExpiresAt: jwt.NewNumericDate(issued.Add(time.Minute)),
		Audience:  jwt.ClaimStrings{"session:access"},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(key)
	require.NoError(t, err)
	got, err = NewJWTTokenizer(key, WithClock(late)).AttestationToToken(signed)
	require.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrTokenExpired)
	assert.Empty(t, got.TokenID)
}

func TestAttestation_WrongKey(t *testing.T) {
	issued := time.Now()
	signer := NewJWTTokenizer(newKey(t))
	other := NewJWTTokenizer(newKey(t))

	att, err := signer.TokenToAttestation(sampleToken(issued))
	require.NoError(t, err)

	_, err = other.AttestationToToken(att)
	assert.Error(t, err)
}

func TestAttestation_WrongAudience(t *testing.T) {
	key := newKey(t)
	j := NewJWTTokenizer(key)

	claims := jwt.RegisteredClaims{
		Issuer:    Issuer,
		Subject:   "0xa",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		Audience:  jwt.ClaimStrings{"session:access"},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(key)
	require.NoError(t, err)

	_, err = j.AttestationToToken(signed)
	assert.Error(t, err)
}
