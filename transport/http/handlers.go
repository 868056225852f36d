package http

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/adapters/signals"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/challenge"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/core"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/ledger"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/ports"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultHistoryLimit = 10

// Handlers contains the HTTP handlers of the verification API
type Handlers struct {
	coordinator *service.Coordinator
	enroller    *service.Enroller
	users       ports.UserRecordStore
	ledger      *ledger.Ledger
	sessions    *Registry
	logger      *zap.Logger
}

// NewHandlers creates new handlers
func NewHandlers(
	coordinator *service.Coordinator,
	enroller *service.Enroller,
	users ports.UserRecordStore,
	ledger *ledger.Ledger,
	sessions *Registry,
	logger *zap.Logger,
) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		coordinator: coordinator,
		enroller:    enroller,
		users:       users,
		ledger:      ledger,
		sessions:    sessions,
		logger:      logger,
	}
}

func (h *Handlers) fail(c *gin.Context, err error) {
	var rej *core.RejectionError
	if errors.As(err, &rej) {
		status := http.StatusForbidden
		if rej.Kind == core.RejectRateLimited {
			status = http.StatusTooManyRequests
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(rej.RetryAfter.Seconds()))))
		}
		c.JSON(status, gin.H{"error": rej.Error(), "kind": rej.Kind, "reasons": rej.Reasons})
		return
	}

	status := http.StatusInternalServerError
	message := "Internal error"
	switch {
	case errors.Is(err, core.ErrInvalidIdentity):
		status, message = http.StatusBadRequest, "Invalid identity"
	case errors.Is(err, core.ErrInsufficientCaptures), errors.Is(err, core.ErrInvalidDescriptor):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, core.ErrSessionNotFound):
		status, message = http.StatusNotFound, "Session not found"
	case errors.Is(err, core.ErrSessionBusy):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, core.ErrTokenNotFound):
		status, message = http.StatusNotFound, ledger.ReasonNotFound
	case errors.Is(err, core.ErrTokenInvalid):
		status, message = http.StatusBadRequest, "Invalid attestation"
	case errors.Is(err, core.ErrInputUnavailable):
		status, message = http.StatusGone, "Session no longer accepts frames"
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"error": message})
}

func identityParam(c *gin.Context) (string, error) {
	return core.NormalizeIdentity(c.Param("identity"))
}

// ChallengePool lists the challenges that may be issued
func (h *Handlers) ChallengePool(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"challenges": challenge.Pool()})
}

// Enroll registers precomputed descriptors as the identity's template
func (h *Handlers) Enroll(c *gin.Context) {
	var req struct {
		Identity     string            `json:"identity" binding:"required"`
		Descriptors  []core.Descriptor `json:"descriptors" binding:"required"`
		QualityScore float64           `json:"qualityScore"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	enrollment, err := h.enroller.Register(c.Request.Context(), req.Identity, req.Descriptors, req.QualityScore)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, enrollmentResponse(enrollment))
}

// CaptureEnrollment builds the identity's template from one frame per
// capture. A null frame means no face was found. Frames are quality gated
// the same way a live capture is
func (h *Handlers) CaptureEnrollment(c *gin.Context) {
	var req struct {
		Frames []*core.FrameSignal `json:"frames" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if n := h.enroller.Config().Captures; len(req.Frames) != n {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Exactly " + strconv.Itoa(n) + " frames are required"})
		return
	}

	ctx := c.Request.Context()
	provider := signals.NewChannelProvider(len(req.Frames))
	for _, sig := range req.Frames {
		if err := provider.Push(ctx, sig); err != nil {
			h.fail(c, err)
			return
		}
	}
	provider.Close()

	enrollment, err := h.enroller.Capture(ctx, c.Param("identity"), provider)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, enrollmentResponse(enrollment))
}

func enrollmentResponse(e core.Enrollment) gin.H {
	return gin.H{
		"identity":     e.Identity,
		"algorithm":    e.Algorithm,
		"version":      e.Version,
		"qualityScore": e.QualityScore,
		"framesUsed":   e.FramesUsed,
		"registeredAt": e.RegisteredAt,
	}
}

// History returns the identity's most recent verification sessions
func (h *Handlers) History(c *gin.Context) {
	identity, err := identityParam(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
	}

	history, err := h.users.GetHistory(c.Request.Context(), identity, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	if history == nil {
		history = []core.VerificationSession{}
	}
	c.JSON(http.StatusOK, gin.H{"identity": identity, "sessions": history})
}

// Stats returns the identity's aggregate verification stats
func (h *Handlers) Stats(c *gin.Context) {
	identity, err := identityParam(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	stats, err := h.users.GetStats(c.Request.Context(), identity)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// CurrentToken returns the identity's active token
func (h *Handlers) CurrentToken(c *gin.Context) {
	identity, err := identityParam(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	token, err := h.ledger.Current(c.Request.Context(), identity)
	if err != nil {
		h.fail(c, err)
		return
	}
	if token == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No active token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"remaining": h.ledger.RemainingTime(token),
	})
}

// TokenHistory returns the identity's tokens, newest first
func (h *Handlers) TokenHistory(c *gin.Context) {
	identity, err := identityParam(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(ledger.DefaultHistoryLimit)))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}

	tokens, err := h.ledger.History(c.Request.Context(), identity, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	if tokens == nil {
		tokens = []core.Token{}
	}
	c.JSON(http.StatusOK, gin.H{"identity": identity, "tokens": tokens})
}

// StartVerification admits the identity and starts its first challenge
func (h *Handlers) StartVerification(c *gin.Context) {
	var req struct {
		Identity string `json:"identity" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	provider := signals.NewChannelProvider(frameBuffer)
	session, err := h.coordinator.Begin(c.Request.Context(), req.Identity, provider, nil)
	if err != nil {
		provider.Close()
		h.fail(c, err)
		return
	}
	ch, err := session.Ready()
	if err != nil {
		provider.Close()
		h.fail(c, err)
		return
	}

	e := h.sessions.add(session, provider)
	h.sessions.start(e)

	c.JSON(http.StatusCreated, gin.H{"sessionId": session.ID(), "challenge": ch})
}

// GetVerification returns the session's phase, progress and outcome
func (h *Handlers) GetVerification(c *gin.Context) {
	e, err := h.sessions.get(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, e.session.Snapshot())
}

// PushFrame feeds one face signal to the running challenge. A null signal
// is a frame without a face
func (h *Handlers) PushFrame(c *gin.Context) {
	var req struct {
		Signal *core.FrameSignal `json:"signal"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	e, err := h.sessions.get(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	snap := e.session.Snapshot()
	if snap.Phase != service.PhaseChallenge && snap.Phase != service.PhaseCameraReady {
		c.JSON(http.StatusConflict, gin.H{"error": "Challenge is not running", "phase": snap.Phase})
		return
	}
	if err := e.provider.Push(c.Request.Context(), req.Signal); err != nil {
		h.fail(c, err)
		return
	}

	snap = e.session.Snapshot()
	c.JSON(http.StatusAccepted, gin.H{"phase": snap.Phase, "progress": snap.Progress})
}

// RetryVerification starts a fresh challenge after a finished attempt
func (h *Handlers) RetryVerification(c *gin.Context) {
	e, err := h.sessions.get(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := e.session.Retry(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	ch, err := e.session.Ready()
	if err != nil {
		h.fail(c, err)
		return
	}
	h.sessions.start(e)

	c.JSON(http.StatusOK, gin.H{"sessionId": e.session.ID(), "challenge": ch})
}

// CancelVerification aborts a running attempt and forgets the session
func (h *Handlers) CancelVerification(c *gin.Context) {
	if err := h.sessions.Remove(c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ValidateToken reports whether a token is usable and how long it has left
func (h *Handlers) ValidateToken(c *gin.Context) {
	v, err := h.ledger.Validate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// RevokeToken permanently invalidates a token
func (h *Handlers) RevokeToken(c *gin.Context) {
	token, err := h.ledger.Revoke(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// Introspect verifies a signed attestation against the ledger
func (h *Handlers) Introspect(c *gin.Context) {
	var req struct {
		Attestation string `json:"attestation" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	v, err := h.ledger.Introspect(c.Request.Context(), req.Attestation)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}
