package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/core"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/liveness"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/ports"
	"go.uber.org/zap"
)

const (
	TemplateAlgorithm = "face-descriptor"
	TemplateVersion   = "1.0"
)

// EnrollerConfig holds the capture settings. FrameWidth and FrameHeight are
// the pixel size of the captured video, used to judge face distance
type EnrollerConfig struct {
	Captures        int
	MinCaptures     int
	CaptureInterval time.Duration
	FrameWidth      float64
	FrameHeight     float64
}

// DefaultEnrollerConfig returns the production capture settings
func DefaultEnrollerConfig() EnrollerConfig {
	return EnrollerConfig{
		Captures:        5,
		MinCaptures:     3,
		CaptureInterval: 400 * time.Millisecond,
		FrameWidth:      640,
		FrameHeight:     480,
	}
}

// Enroller registers biometric templates
type Enroller struct {
	users  ports.UserRecordStore
	cfg    EnrollerConfig
	logger *zap.Logger
	now    func() time.Time
	wait   func(ctx context.Context, d time.Duration) error
}

// EnrollerOption configures an Enroller
type EnrollerOption func(*Enroller)

func WithEnrollerConfig(cfg EnrollerConfig) EnrollerOption {
	return func(e *Enroller) {
		if cfg.Captures > 0 {
			e.cfg.Captures = cfg.Captures
		}
		if cfg.MinCaptures > 0 {
			e.cfg.MinCaptures = cfg.MinCaptures
		}
		if cfg.CaptureInterval > 0 {
			e.cfg.CaptureInterval = cfg.CaptureInterval
		}
		if cfg.FrameWidth > 0 && cfg.FrameHeight > 0 {
			e.cfg.FrameWidth = cfg.FrameWidth
			e.cfg.FrameHeight = cfg.FrameHeight
		}
	}
}

func WithEnrollerLogger(logger *zap.Logger) EnrollerOption {
	return func(e *Enroller) { e.logger = logger }
}

func WithEnrollerClock(now func() time.Time) EnrollerOption {
	return func(e *Enroller) { e.now = now }
}

// WithCaptureWait replaces the pause between captures
func WithCaptureWait(wait func(ctx context.Context, d time.Duration) error) EnrollerOption {
	return func(e *Enroller) { e.wait = wait }
}

// Config returns the capture settings in effect
func (e *Enroller) Config() EnrollerConfig { return e.cfg }

// NewEnroller creates an enroller
func NewEnroller(users ports.UserRecordStore, opts ...EnrollerOption) *Enroller {
	e := &Enroller{
		users: users,
		cfg:   DefaultEnrollerConfig(),
		now:   time.Now,
		wait:  sleep,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Capture samples the provider and registers the averaged descriptor.
// Frames without a detected face or without a descriptor are skipped. The
// quality score is the mean frame quality of the usable frames. The pause
// between captures is skipped while the provider already has a frame queued
func (e *Enroller) Capture(ctx context.Context, identity string, provider ports.FaceSignalProvider) (core.Enrollment, error) {
	var (
		descriptors []core.Descriptor
		qualitySum  float64
	)
	for i := 0; i < e.cfg.Captures; i++ {
		if i > 0 && !queued(provider) {
			if err := e.wait(ctx, e.cfg.CaptureInterval); err != nil {
				return core.Enrollment{}, err
			}
		}
		sig, err := provider.Detect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return core.Enrollment{}, ctx.Err()
			}
			e.logger.Debug("enrollment frame unavailable", zap.Int("capture", i+1), zap.Error(err))
			continue
		}
		if sig == nil || len(sig.Descriptor) == 0 {
			continue
		}
		q := liveness.AssessQuality(sig, e.cfg.FrameWidth, e.cfg.FrameHeight)
		if !q.FaceDetected {
			e.logger.Debug("enrollment frame rejected", zap.Int("capture", i+1), zap.Float64("detection", q.DetectionScore))
			continue
		}
		descriptors = append(descriptors, sig.Descriptor)
		qualitySum += q.Score
	}

	if len(descriptors) < e.cfg.MinCaptures {
		return core.Enrollment{}, fmt.Errorf("%w: captured %d of %d", core.ErrInsufficientCaptures, len(descriptors), e.cfg.Captures)
	}
	quality := qualitySum / float64(len(descriptors))
	return e.Register(ctx, identity, descriptors, quality)
}

func queued(provider ports.FaceSignalProvider) bool {
	q, ok := provider.(interface{ Queued() int })
	return ok && q.Queued() > 0
}

// Register averages precomputed descriptors into a template and stores it,
// replacing any previous template of the identity
func (e *Enroller) Register(ctx context.Context, identity string, descriptors []core.Descriptor, quality float64) (core.Enrollment, error) {
	id, err := core.NormalizeIdentity(identity)
	if err != nil {
		return core.Enrollment{}, err
	}
	if len(descriptors) < e.cfg.MinCaptures {
		return core.Enrollment{}, fmt.Errorf("%w: captured %d of %d", core.ErrInsufficientCaptures, len(descriptors), e.cfg.MinCaptures)
	}
	template, err := Average(descriptors)
	if err != nil {
		return core.Enrollment{}, err
	}
	if math.IsNaN(quality) || quality < 0 {
		quality = 0
	}

	enrollment := core.Enrollment{
		Identity:     id,
		Template:     template,
		Algorithm:    TemplateAlgorithm,
		Version:      TemplateVersion,
		QualityScore: math.Round(math.Min(quality, 1)*100) / 100,
		FramesUsed:   len(descriptors),
		RegisteredAt: e.now(),
	}
	if err := e.users.Enroll(ctx, enrollment); err != nil {
		return core.Enrollment{}, fmt.Errorf("failed to store enrollment: %w", err)
	}

	e.logger.Info("identity enrolled",
		zap.String("identity", id),
		zap.Int("frames", enrollment.FramesUsed),
		zap.Float64("quality", enrollment.QualityScore))
	return enrollment, nil
}

// Average returns the element-wise mean of equal-length descriptors
func Average(descriptors []core.Descriptor) (core.Descriptor, error) {
	if len(descriptors) == 0 {
		return nil, errors.New("no descriptors")
	}
	n := len(descriptors[0])
	if n == 0 {
		return nil, fmt.Errorf("%w: empty descriptor", core.ErrInvalidDescriptor)
	}
	out := make(core.Descriptor, n)
	for i, d := range descriptors {
		if len(d) != n {
			return nil, fmt.Errorf("%w: descriptor %d has length %d, want %d", core.ErrInvalidDescriptor, i, len(d), n)
		}
		for j, v := range d {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: descriptor %d is not finite", core.ErrInvalidDescriptor, i)
			}
			out[j] += v
		}
	}
	for j := range out {
		out[j] /= float64(len(descriptors))
	}
	return out, nil
}
