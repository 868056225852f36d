package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInputUnavailable     = errors.New("no face signal available")
	ErrReplayRejected       = errors.New("challenge rejected")
	ErrRateLimited          = errors.New("rate limit exceeded")
	ErrTimingRejected       = errors.New("verification completed too quickly")
	ErrClassifierTransient  = errors.New("frame could not be classified")
	ErrDegenerateGeometry   = errors.New("degenerate landmark geometry")
	ErrUnknownChallenge     = errors.New("unknown challenge type")
	ErrNotEnrolled          = errors.New("identity is not enrolled")
	ErrInsufficientCaptures = errors.New("insufficient face captures")
	ErrInvalidDescriptor    = errors.New("invalid face descriptor")
	ErrTokenInvalid         = errors.New("invalid token")
	ErrTokenNotFound        = errors.New("token not found")
	ErrTokenExpired         = errors.New("token has expired")
	ErrTokenRevoked         = errors.New("token has been revoked")
	ErrSessionBusy          = errors.New("session is not in a state that allows this operation")
	ErrSessionNotFound      = errors.New("session not found")
	ErrStoreOperationFailed = errors.New("store operation failed")
	ErrInvalidIdentity      = errors.New("invalid identity")
)

// RejectionKind names the fail-closed condition that ended an attempt
type RejectionKind string

const (
	RejectNotEnrolled RejectionKind = "not_enrolled"
	RejectRateLimited RejectionKind = "rate_limited"
	RejectReplay      RejectionKind = "replay"
	RejectTiming      RejectionKind = "too_fast"
)

// RejectionError reports a fail-closed termination. It unwraps to the
// sentinel matching its kind so callers can use errors.Is
type RejectionError struct {
	Kind       RejectionKind
	Reasons    []string
	RetryAfter time.Duration
}

func (e *RejectionError) Error() string {
	if len(e.Reasons) == 0 {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, strings.Join(e.Reasons, " "))
}

func (e *RejectionError) Unwrap() error {
	switch e.Kind {
	case RejectNotEnrolled:
		return ErrNotEnrolled
	case RejectRateLimited:
		return ErrRateLimited
	case RejectReplay:
		return ErrReplayRejected
	case RejectTiming:
		return ErrTimingRejected
	}
	return nil
}
