package tokenizer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/core"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/ports"
	"github.com/golang-jwt/jwt/v5"
)

const (
	AudienceProof = "pol:token"
	Issuer        = "polverify"
)

// JWTTokenizer implements the Tokenizer interface using ES256 JWTs
type JWTTokenizer struct {
	signKey *ecdsa.PrivateKey
	now     func() time.Time
}

// Option configures a JWTTokenizer
type Option func(*JWTTokenizer)

// WithClock sets the time used to check expiry when parsing
func WithClock(now func() time.Time) Option {
	return func(j *JWTTokenizer) { j.now = now }
}

// NewJWTTokenizer creates a new JWT tokenizer
func NewJWTTokenizer(signKey *ecdsa.PrivateKey, opts ...Option) *JWTTokenizer {
	j := &JWTTokenizer{signKey: signKey, now: time.Now}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

var _ ports.Tokenizer = (*JWTTokenizer)(nil)

// PublicKey returns the key relying parties verify attestations with
func (j *JWTTokenizer) PublicKey() *ecdsa.PublicKey {
	return &j.signKey.PublicKey
}

// TokenToAttestation signs the token's immutable fields
func (j *JWTTokenizer) TokenToAttestation(token core.Token) (string, error) {
	claims := AttestationClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   token.Identity,
			ID:        token.TokenID,
			ExpiresAt: jwt.NewNumericDate(token.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(token.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceProof},
		},
		Score:         token.ConfidenceScore,
		ChallengeType: string(token.ChallengeType),
		SessionID:     token.SessionID,
		Version:       token.Version,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(j.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign attestation: %w", err)
	}
	return signed, nil
}

// AttestationToToken verifies an attestation and rebuilds the token it
// describes. The returned status is always active; callers consult the
// ledger for revocation. An authentic attestation that is only past its
// expiry yields the token together with an error wrapping
// core.ErrTokenExpired
func (j *JWTTokenizer) AttestationToToken(attestation string) (core.Token, error) {
	claims := &AttestationClaims{}
	parsed, err := jwt.ParseWithClaims(attestation, claims, j.verificationKey, j.parserOptions(j.now)...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && j.authentic(err, claims) {
			return claimsToToken(claims, attestation), fmt.Errorf("%w: %w", core.ErrTokenExpired, err)
		}
		return core.Token{}, fmt.Errorf("failed to parse attestation: %w", err)
	}
	if !parsed.Valid {
		return core.Token{}, core.ErrTokenInvalid
	}
	return claimsToToken(claims, attestation), nil
}

func (j *JWTTokenizer) verificationKey(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return &j.signKey.PublicKey, nil
}

func (j *JWTTokenizer) parserOptions(now func() time.Time) []jwt.ParserOption {
	return []jwt.ParserOption{
		jwt.WithAudience(AudienceProof),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	}
}

// authentic reports whether an attestation rejected as expired has a valid
// signature and passes every other claim check just before its expiry. The
// parser only validates claims once the signature has been verified
func (j *JWTTokenizer) authentic(err error, claims *AttestationClaims) bool {
	if !errors.Is(err, jwt.ErrTokenInvalidClaims) || claims.ExpiresAt == nil {
		return false
	}
	justBefore := claims.ExpiresAt.Add(-time.Nanosecond)
	return jwt.NewValidator(j.parserOptions(func() time.Time { return justBefore })...).Validate(claims) == nil
}

func claimsToToken(claims *AttestationClaims, attestation string) core.Token {
	token := core.Token{
		TokenID:         claims.ID,
		Identity:        claims.Subject,
		ExpiresAt:       claims.ExpiresAt.Time,
		ConfidenceScore: claims.Score,
		SessionID:       claims.SessionID,
		ChallengeType:   core.ChallengeType(claims.ChallengeType),
		Status:          core.TokenActive,
		Version:         claims.Version,
		Attestation:     attestation,
	}
	if claims.IssuedAt != nil {
		token.IssuedAt = claims.IssuedAt.Time
	}
	return token
}
