package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/adapters/store"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/antireplay"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/challenge"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/core"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/ledger"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/liveness/livenesstest"
	"github.com/stretchr/testify/require"
)

const testIdentity = "alice"

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// scriptedProvider returns its frames in order, advancing the clock by step
// before each one. Once the script is exhausted Detect blocks until ctx is
// done.
type scriptedProvider struct {
	clock *clock
	step  time.Duration

	mu     sync.Mutex
	frames []frame
	calls  int
}

type frame struct {
	sig *core.FrameSignal
	err error
}

func (p *scriptedProvider) Detect(ctx context.Context) (*core.FrameSignal, error) {
	p.mu.Lock()
	p.calls++
	if len(p.frames) == 0 {
		p.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	f := p.frames[0]
	p.frames = p.frames[1:]
	p.mu.Unlock()

	p.clock.Advance(p.step)
	return f.sig, f.err
}

func (p *scriptedProvider) Drain() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.frames)
	p.frames = nil
	return n
}

type recordingPublisher struct {
	mu            sync.Mutex
	verifications []core.VerificationSession
	security      []core.SecurityEvent
	issued        []core.Token
}

func (p *recordingPublisher) PublishVerification(_ context.Context, r core.VerificationSession) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.verifications = append(p.verifications, r)
	return nil
}

func (p *recordingPublisher) PublishTokenIssued(_ context.Context, t core.Token) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.issued = append(p.issued, t)
	return nil
}

func (p *recordingPublisher) PublishTokenRevoked(context.Context, core.Token) error { return nil }

func (p *recordingPublisher) PublishSecurityEvent(_ context.Context, e core.SecurityEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.security = append(p.security, e)
	return nil
}

// recordingObserver captures the terminal callback.
type recordingObserver struct {
	mu       sync.Mutex
	progress int
	passed   *core.Token
	failed   *core.ScoreResult
	reason   string
	timeout  bool
	errKind  string
}

func (o *recordingObserver) OnProgress(Progress) {
	o.mu.Lock()
	o.progress++
	o.mu.Unlock()
}

func (o *recordingObserver) OnPass(token core.Token, _ core.ScoreResult) {
	o.mu.Lock()
	o.passed = &token
	o.mu.Unlock()
}

func (o *recordingObserver) OnFail(score core.ScoreResult, reason string) {
	o.mu.Lock()
	o.failed = &score
	o.reason = reason
	o.mu.Unlock()
}

func (o *recordingObserver) OnTimeout() {
	o.mu.Lock()
	o.timeout = true
	o.mu.Unlock()
}

func (o *recordingObserver) OnError(kind, _ string) {
	o.mu.Lock()
	o.errKind = kind
	o.mu.Unlock()
}

type harness struct {
	clock      *clock
	users      *store.MemoryUserStore
	guard      *antireplay.Guard
	ledger     *ledger.Ledger
	events     *recordingPublisher
	timer      chan time.Time
	coord      *Coordinator
	guardCfg   antireplay.Config
	serviceCfg Config
}

type harnessOption func(*harness)

func withGuardConfig(cfg antireplay.Config) harnessOption {
	return func(h *harness) { h.guardCfg = cfg }
}

func withServiceConfig(cfg Config) harnessOption {
	return func(h *harness) { h.serviceCfg = cfg }
}

// newHarness wires a coordinator whose only challenge is OPEN_MOUTH and
// whose countdown fires only when the test sends on h.timer.
func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		clock:      &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		users:      store.NewMemoryUserStore(),
		events:     &recordingPublisher{},
		timer:      make(chan time.Time, 1),
		guardCfg:   antireplay.DefaultConfig(),
		serviceCfg: Config{FrameInterval: time.Millisecond},
	}
	for _, opt := range opts {
		opt(h)
	}

	h.guard = antireplay.NewGuard(h.guardCfg, antireplay.WithClock(h.clock.Now))
	h.ledger = ledger.New(store.NewMemoryLedgerStore(), ledger.WithClock(h.clock.Now), ledger.WithEvents(h.events))
	generator := challenge.NewGenerator(
		challenge.WithClock(h.clock.Now),
		challenge.WithPool([]challenge.Definition{{
			Type:        core.ChallengeOpenMouth,
			Instruction: "Open Your Mouth",
			Params:      core.DetectionParams{Threshold: 0.35},
		}}),
	)
	h.coord = NewCoordinator(h.users, generator, h.guard, h.ledger,
		WithConfig(h.serviceCfg),
		WithEvents(h.events),
		WithClock(h.clock.Now),
		WithCountdown(func(time.Duration) <-chan time.Time { return h.timer }),
	)
	return h
}

func (h *harness) enroll(t *testing.T, template core.Descriptor) {
	t.Helper()
	require.NoError(t, h.users.Enroll(context.Background(), core.Enrollment{
		Identity:     testIdentity,
		Template:     template,
		RegisteredAt: h.clock.Now(),
	}))
}

func (h *harness) provider(step time.Duration, frames ...frame) *scriptedProvider {
	return &scriptedProvider{clock: h.clock, step: step, frames: frames}
}

// mouthOpen is a detecting frame whose descriptor sits 0.05 from
// livenesstest.Descriptor(0.1).
func mouthOpen() frame {
	sig := livenesstest.Signal(livenesstest.Pose{EAR: 0.3, MAR: 0.5, Brow: 0.5}, 0.9)
	sig.Descriptor[0] = 0.15
	return frame{sig: sig}
}

func openFrames(n int) []frame {
	frames := make([]frame, n)
	for i := range frames {
		frames[i] = mouthOpen()
	}
	return frames
}
