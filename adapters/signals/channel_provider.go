// Package signals provides FaceSignalProvider implementations fed by an
// external inference client
package signals

import (
	"context"
	"fmt"
	"sync"

	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/core"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/ports"
)

// ChannelProvider is a FaceSignalProvider whose frames are pushed by a
// client that runs face inference itself. A pushed nil signal means the
// frame contained no face
type ChannelProvider struct {
	frames    chan *core.FrameSignal
	closed    chan struct{}
	closeOnce sync.Once
}

// NewChannelProvider creates a provider buffering up to buffer frames
func NewChannelProvider(buffer int) *ChannelProvider {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelProvider{
		frames: make(chan *core.FrameSignal, buffer),
		closed: make(chan struct{}),
	}
}

var _ ports.FaceSignalProvider = (*ChannelProvider)(nil)

// Push queues a frame, blocking while the buffer is full
func (p *ChannelProvider) Push(ctx context.Context, sig *core.FrameSignal) error {
	select {
	case <-p.closed:
		return fmt.Errorf("%w: provider closed", core.ErrInputUnavailable)
	default:
	}
	select {
	case p.frames <- sig:
		return nil
	case <-p.closed:
		return fmt.Errorf("%w: provider closed", core.ErrInputUnavailable)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Detect returns the next pushed frame. Queued frames are returned even
// after Close
func (p *ChannelProvider) Detect(ctx context.Context) (*core.FrameSignal, error) {
	select {
	case sig := <-p.frames:
		return sig, nil
	default:
	}
	select {
	case sig := <-p.frames:
		return sig, nil
	case <-p.closed:
		return nil, fmt.Errorf("%w: provider closed", core.ErrInputUnavailable)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Queued returns the number of frames waiting to be detected
func (p *ChannelProvider) Queued() int { return len(p.frames) }

// Drain discards frames queued for a previous attempt
func (p *ChannelProvider) Drain() int {
	n := 0
	for {
		select {
		case <-p.frames:
			n++
		default:
			return n
		}
	}
}

// Close stops the provider. Once the queued frames are consumed, pending and
// future calls fail with core.ErrInputUnavailable
func (p *ChannelProvider) Close() {
	p.closeOnce.Do(func() { close(p.closed) })
}
