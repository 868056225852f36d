package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/core"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/liveness"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/ports"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/scoring"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Phase is a state of the verification state machine
type Phase string

const (
	PhaseInit        Phase = "init"
	PhaseCameraReady Phase = "camera_ready"
	PhaseChallenge   Phase = "challenge"
	PhaseAnalyzing   Phase = "analyzing"
	PhaseResult      Phase = "result"
)

// ReasonAborted is reported when the caller cancels a running challenge
const ReasonAborted = core.FailureAborted

// Progress is the live state of the challenge phase
type Progress struct {
	FaceDetected bool               `json:"faceDetected"`
	Percent      int                `json:"percent"`
	Frames       int                `json:"frames"`
	Detection    liveness.Detection `json:"detection"`
}

// Outcome is the terminal result of one attempt
type Outcome struct {
	SessionID string                    `json:"sessionId"`
	Challenge core.Challenge            `json:"challenge"`
	Score     core.ScoreResult          `json:"score"`
	Token     *core.Token               `json:"token,omitempty"`
	Record    *core.VerificationSession `json:"record,omitempty"`
	Reason    string                    `json:"reason,omitempty"`
	Rejection *core.RejectionError      `json:"-"`
	TimedOut  bool                      `json:"timedOut"`
}

// Snapshot is a point-in-time copy of a session
type Snapshot struct {
	ID        string          `json:"id"`
	Identity  string          `json:"identity"`
	Phase     Phase           `json:"phase"`
	Challenge *core.Challenge `json:"challenge,omitempty"`
	StartedAt time.Time       `json:"startedAt,omitempty"`
	Progress  Progress        `json:"progress"`
	Outcome   *Outcome        `json:"outcome,omitempty"`
}

// Session is one identity's verification, possibly spanning several
// attempts through Retry. It owns the challenge and classifier state of the
// current attempt
type Session struct {
	c        *Coordinator
	id       string
	identity string
	provider ports.FaceSignalProvider
	observer Observer

	mu         sync.Mutex
	phase      Phase
	running    bool
	attemptID  string
	challenge  *core.Challenge
	classifier liveness.Classifier
	startedAt  time.Time
	progress   Progress
	outcome    *Outcome
}

// ID returns the session handle
func (s *Session) ID() string { return s.id }

// Identity returns the normalized identity being verified
func (s *Session) Identity() string { return s.identity }

// Snapshot returns the current state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:        s.id,
		Identity:  s.identity,
		Phase:     s.phase,
		StartedAt: s.startedAt,
		Progress:  s.progress,
	}
	if s.challenge != nil {
		ch := *s.challenge
		snap.Challenge = &ch
	}
	if s.outcome != nil {
		out := *s.outcome
		snap.Outcome = &out
	}
	return snap
}

// Ready issues the attempt's challenge and a fresh classifier without
// starting the countdown. Calling it again returns the same challenge
func (s *Session) Ready() (core.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseCameraReady || s.running {
		return core.Challenge{}, fmt.Errorf("%w: phase %s", core.ErrSessionBusy, s.phase)
	}
	if s.challenge != nil {
		return *s.challenge, nil
	}
	return s.prepareLocked()
}

func (s *Session) prepareLocked() (core.Challenge, error) {
	ch := s.c.generator.Generate(timeLimitSeconds(s.c.cfg.ChallengeTimer))
	classifier, err := s.c.classifierFor(ch)
	if err != nil {
		return core.Challenge{}, err
	}
	s.challenge = &ch
	s.classifier = classifier
	s.attemptID = s.c.newAttemptID()
	s.progress = Progress{}
	return ch, nil
}

// timeLimitSeconds rounds the countdown up so the advertised limit never
// undercuts the real one
func timeLimitSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}

// Run drives the attempt from the challenge phase to its result. It blocks
// until the classifier detects the action, the countdown fires or ctx is
// done. Fail-closed rejections return a *core.RejectionError together with
// the outcome
func (s *Session) Run(ctx context.Context) (Outcome, error) {
	s.mu.Lock()
	if s.phase != PhaseCameraReady || s.running {
		phase := s.phase
		s.mu.Unlock()
		return Outcome{}, fmt.Errorf("%w: phase %s", core.ErrSessionBusy, phase)
	}
	if s.challenge == nil {
		if _, err := s.prepareLocked(); err != nil {
			s.mu.Unlock()
			return Outcome{}, err
		}
	}
	s.running = true
	ch := *s.challenge
	classifier := s.classifier
	s.startedAt = s.c.now()
	s.phase = PhaseChallenge
	s.mu.Unlock()

	s.c.logger.Info("challenge started",
		zap.String("session_id", s.attemptID),
		zap.String("identity", s.identity),
		zap.String("challenge_id", ch.ID),
		zap.String("type", string(ch.Type)))

	ev, err := s.challengePhase(ctx, ch, classifier)

	var out Outcome
	switch {
	case err != nil:
		out, err = s.abort(context.WithoutCancel(ctx), ch, err)
	case ev.timedOut:
		out, err = s.timeout(context.WithoutCancel(ctx), ch)
	default:
		s.setPhase(PhaseAnalyzing)
		out, err = s.analyze(context.WithoutCancel(ctx), ch, ev.detection, ev.last)
	}

	s.finish(out)
	s.notify(out, err)
	return out, err
}

// Retry discards the finished attempt and returns the session to
// PhaseCameraReady. The identity's rate limit is checked again
func (s *Session) Retry(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseResult || s.running {
		return fmt.Errorf("%w: phase %s", core.ErrSessionBusy, s.phase)
	}
	if err := s.c.checkRateLimit(ctx, s.identity); err != nil {
		return err
	}

	s.challenge = nil
	s.classifier = nil
	s.attemptID = ""
	s.startedAt = time.Time{}
	s.progress = Progress{}
	s.outcome = nil
	if d, ok := s.provider.(interface{ Drain() int }); ok {
		d.Drain()
	}
	s.phase = PhaseCameraReady
	return nil
}

func (s *Session) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

func (s *Session) finish(out Outcome) {
	s.mu.Lock()
	s.phase = PhaseResult
	s.outcome = &out
	s.running = false
	s.mu.Unlock()
}

func (s *Session) notify(out Outcome, err error) {
	switch {
	case out.TimedOut:
		s.observer.OnTimeout()
	case out.Rejection != nil:
		s.observer.OnError(string(out.Rejection.Kind), out.Rejection.Error())
	case err != nil:
		s.observer.OnError("error", err.Error())
	case out.Token != nil:
		s.observer.OnPass(*out.Token, out.Score)
	default:
		s.observer.OnFail(out.Score, out.Reason)
	}
}

type phaseEvent struct {
	timedOut  bool
	detection liveness.Detection
	last      *core.FrameSignal
}

// errPhaseChanged stops the sibling task once one task has moved the
// session out of the challenge phase
var errPhaseChanged = errors.New("phase changed")

// challengePhase races the countdown against the frame loop. The first task
// to post an event wins; the group context then cancels the other, and the
// event is read only after both have returned, so a frame that completes
// late can never replace a timeout
func (s *Session) challengePhase(ctx context.Context, ch core.Challenge, classifier liveness.Classifier) (phaseEvent, error) {
	events := make(chan phaseEvent, 1)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-s.c.countdown(ch.Timer()):
			return post(events, phaseEvent{timedOut: true})
		case <-gctx.Done():
			return nil
		}
	})
	g.Go(func() error {
		return s.frameLoop(gctx, classifier, events)
	})

	err := g.Wait()
	select {
	case ev := <-events:
		return ev, nil
	default:
	}
	if err != nil && !errors.Is(err, errPhaseChanged) {
		return phaseEvent{}, err
	}
	if ctx.Err() != nil {
		return phaseEvent{}, ctx.Err()
	}
	return phaseEvent{}, errors.New("challenge ended without an outcome")
}

func post(events chan<- phaseEvent, ev phaseEvent) error {
	select {
	case events <- ev:
	default:
	}
	return errPhaseChanged
}

// frameLoop pulls one frame at a time. Results arriving after ctx is done
// are dropped
func (s *Session) frameLoop(ctx context.Context, classifier liveness.Classifier, events chan<- phaseEvent) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		sig, err := s.provider.Detect(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			s.c.logger.Debug("frame unavailable", zap.String("session_id", s.attemptID), zap.Error(err))
			if !s.pause(ctx) {
				return nil
			}
			continue
		}

		det, err := consume(classifier, sig)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			s.c.logger.Warn("frame skipped", zap.String("session_id", s.attemptID), zap.Error(err))
		}
		s.recordProgress(sig, det)

		if err == nil && det.Detected {
			return post(events, phaseEvent{detection: det, last: sig})
		}
	}
}

func (s *Session) pause(ctx context.Context) bool {
	t := time.NewTimer(s.c.cfg.FrameInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func consume(classifier liveness.Classifier, sig *core.FrameSignal) (det liveness.Detection, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: classifier panic: %v", core.ErrClassifierTransient, r)
		}
	}()
	return classifier.Consume(sig)
}

func (s *Session) recordProgress(sig *core.FrameSignal, det liveness.Detection) {
	s.mu.Lock()
	if s.phase != PhaseChallenge {
		s.mu.Unlock()
		return
	}
	s.progress = Progress{
		FaceDetected: sig != nil,
		Percent:      int(math.Round(det.Confidence * 100)),
		Frames:       s.progress.Frames + 1,
		Detection:    det,
	}
	p := s.progress
	s.mu.Unlock()

	s.observer.OnProgress(p)
}

func (s *Session) record(ch core.Challenge, now time.Time) core.VerificationSession {
	return core.VerificationSession{
		SessionID:       s.attemptID,
		Identity:        s.identity,
		ChallengeType:   ch.Type,
		ChallengeID:     ch.ID,
		DurationSeconds: now.Sub(s.startedAt).Seconds(),
		Timestamp:       now,
	}
}

func (s *Session) timeout(ctx context.Context, ch core.Challenge) (Outcome, error) {
	record := s.record(ch, s.c.now())
	record.FailureReason = core.FailureTimeout

	err := s.c.conclude(ctx, ch, record)
	s.c.logger.Info("challenge timed out", zap.String("session_id", s.attemptID), zap.String("identity", s.identity))

	return Outcome{
		SessionID: s.attemptID,
		Challenge: ch,
		Score:     core.FailedScore(),
		Record:    &record,
		Reason:    core.FailureTimeout,
		TimedOut:  true,
	}, err
}

func (s *Session) analyze(ctx context.Context, ch core.Challenge, det liveness.Detection, last *core.FrameSignal) (Outcome, error) {
	now := s.c.now()

	if check := s.c.guard.ValidateChallenge(ch); !check.Valid {
		return s.reject(ctx, ch, now, &core.RejectionError{Kind: core.RejectReplay, Reasons: check.Reasons})
	}
	timing := s.c.guard.CheckTiming(s.startedAt, now)
	if !timing.Valid {
		return s.reject(ctx, ch, now, &core.RejectionError{Kind: core.RejectTiming, Reasons: []string{timing.Reason}})
	}

	var match float64
	template, err := s.c.users.GetTemplate(ctx, s.identity)
	if err != nil {
		s.c.logger.Error("failed to load template", zap.String("identity", s.identity), zap.Error(err))
	} else {
		match = s.c.matchScore(s.identity, template, last)
	}

	face := last.DetectionScore
	livenessScore := (face + det.Confidence) / 2
	score := scoring.Calculate(scoring.Inputs{
		FaceConfidence:    face,
		ChallengeAccuracy: det.Confidence,
		LivenessScore:     livenessScore,
		MatchScore:        match,
	})

	record := s.record(ch, now)
	record.Success = score.Pass
	record.ConfidenceScore = score.Score
	record.MatchScore = match
	record.LivenessScore = livenessScore
	record.DurationSeconds = timing.Duration.Seconds()
	if !score.Pass {
		record.FailureReason = core.FailureLowScore
	}

	out := Outcome{
		SessionID: s.attemptID,
		Challenge: ch,
		Score:     score,
		Record:    &record,
		Reason:    record.FailureReason,
	}

	persistErr := s.c.conclude(ctx, ch, record)

	s.c.logger.Info("verification scored",
		zap.String("session_id", s.attemptID),
		zap.String("identity", s.identity),
		zap.Float64("score", score.Score),
		zap.String("level", string(score.Level)),
		zap.Float64("match", match))

	if !score.Pass {
		return out, persistErr
	}
	token, err := s.c.ledger.Issue(ctx, s.identity, score.Score, s.attemptID, ch.Type)
	if err != nil {
		return out, errors.Join(persistErr, fmt.Errorf("failed to issue token: %w", err))
	}
	out.Token = &token
	return out, persistErr
}

func (s *Session) reject(ctx context.Context, ch core.Challenge, now time.Time, rej *core.RejectionError) (Outcome, error) {
	record := s.record(ch, now)
	record.FailureReason = string(rej.Kind)

	persistErr := s.c.conclude(ctx, ch, record)
	s.c.reportRejection(ctx, s.identity, ch.ID, rej)

	out := Outcome{
		SessionID: s.attemptID,
		Challenge: ch,
		Score:     core.FailedScore(),
		Record:    &record,
		Reason:    strings.Join(rej.Reasons, " "),
		Rejection: rej,
	}
	if persistErr != nil {
		return out, errors.Join(rej, persistErr)
	}
	return out, rej
}

// abort ends an attempt the caller cancelled. It counts against the rate
// limit and is persisted as a failed attempt
func (s *Session) abort(ctx context.Context, ch core.Challenge, cause error) (Outcome, error) {
	record := s.record(ch, s.c.now())
	record.FailureReason = core.FailureAborted

	persistErr := s.c.conclude(ctx, ch, record)
	s.c.logger.Warn("challenge aborted", zap.String("session_id", s.attemptID), zap.Error(cause))

	out := Outcome{
		SessionID: s.attemptID,
		Challenge: ch,
		Score:     core.FailedScore(),
		Record:    &record,
		Reason:    ReasonAborted,
	}
	err := fmt.Errorf("verification aborted: %w", cause)
	if persistErr != nil {
		return out, errors.Join(err, persistErr)
	}
	return out, err
}
