package ledger

import (
	"fmt"
	"time"

	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/core"
)

// Remaining is the time left on a token
type Remaining struct {
	Minutes      int    `json:"minutes"`
	Seconds      int    `json:"seconds"`
	TotalSeconds int    `json:"totalSeconds"`
	Expired      bool   `json:"expired"`
	Formatted    string `json:"formatted"`
}

// RemainingTime derives the time left on token at now. A nil token is
// reported as already expired
func RemainingTime(token *core.Token, now time.Time) Remaining {
	if token == nil {
		return Remaining{Expired: true, Formatted: "0:00"}
	}
	left := token.ExpiresAt.Sub(now)
	if left < 0 {
		left = 0
	}
	total := int((left + time.Second - 1) / time.Second)
	r := Remaining{
		Minutes:      total / 60,
		Seconds:      total % 60,
		TotalSeconds: total,
		Expired:      left <= 0,
	}
	r.Formatted = fmt.Sprintf("%d:%02d", r.Minutes, r.Seconds)
	return r
}
