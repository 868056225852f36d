package core

import "time"

// TokenStatus is the lifecycle state of a proof-of-life token
type TokenStatus string

const (
	TokenActive  TokenStatus = "active"
	TokenExpired TokenStatus = "expired"
	TokenRevoked TokenStatus = "revoked"
)

// TokenVersion is stamped on every issued token
const TokenVersion = "1.0"

// Token is a short-lived proof-of-life credential. Only Status and
// RevokedAt change after issuance
type Token struct {
	TokenID         string        `json:"tokenId"`
	Identity        string        `json:"identity"`
	IssuedAt        time.Time     `json:"issuedAt"`
	ExpiresAt       time.Time     `json:"expiresAt"`
	ConfidenceScore float64       `json:"confidenceScore"`
	SessionID       string        `json:"sessionId"`
	ChallengeType   ChallengeType `json:"challengeType"`
	Status          TokenStatus   `json:"status"`
	Version         string        `json:"version"`
	RevokedAt       *time.Time    `json:"revokedAt,omitempty"`
	Attestation     string        `json:"attestation,omitempty"`
}

// Expired reports whether the token's validity window has ended at now
func (t Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// EffectiveStatus derives the status as observed at now without mutating
// the token
func (t Token) EffectiveStatus(now time.Time) TokenStatus {
	if t.Status == TokenActive && t.Expired(now) {
		return TokenExpired
	}
	return t.Status
}
