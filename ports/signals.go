package ports

import (
	"context"

	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/core"
)

// FaceSignalProvider turns the next camera frame into a FrameSignal.
// Detect blocks until a frame is available and returns a nil signal when
// the frame contains no face. Errors wrapping core.ErrInputUnavailable are
// recoverable
type FaceSignalProvider interface {
	Detect(ctx context.Context) (*core.FrameSignal, error)
}
