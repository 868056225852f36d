package tokenizer

import "github.com/golang-jwt/jwt/v5"

// AttestationClaims mirror a proof-of-life token so relying parties can
// check it offline
type AttestationClaims struct {
	jwt.RegisteredClaims
	Score         float64 `json:"score"`
	ChallengeType string  `json:"challenge"`
	SessionID     string  `json:"sid"`
	Version       string  `json:"ver"`
}
