package http

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/adapters/store"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/adapters/tokenizer"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/antireplay"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/challenge"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/core"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/ledger"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/liveness/livenesstest"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	identity    = "0x52908400098527886e0f7030069857d2e4169ee7"
	checksummed = "0x52908400098527886E0F7030069857D2E4169EE7"
)

func init() {
	gin.SetMode(gin.TestMode)
}

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

type testServer struct {
	clock    *clock
	guard    *antireplay.Guard
	timer    chan time.Time
	sessions *Registry
	router   *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	clk := &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	users := store.NewMemoryUserStore()
	guard := antireplay.NewGuard(antireplay.DefaultConfig(), antireplay.WithClock(clk.Now))
	ldg := ledger.New(store.NewMemoryLedgerStore(),
		ledger.WithClock(clk.Now),
		ledger.WithTokenizer(tokenizer.NewJWTTokenizer(key, tokenizer.WithClock(clk.Now))),
	)
	generator := challenge.NewGenerator(
		challenge.WithClock(clk.Now),
		challenge.WithPool([]challenge.Definition{{Type: core.ChallengeOpenMouth, Instruction: "Open Your Mouth"}}),
	)

	timer := make(chan time.Time, 1)
	coordinator := service.NewCoordinator(users, generator, guard, ldg,
		service.WithClock(clk.Now),
		service.WithCountdown(func(time.Duration) <-chan time.Time { return timer }),
	)
	enroller := service.NewEnroller(users, service.WithEnrollerClock(clk.Now))
	sessions := NewRegistry(nil, WithRegistryClock(clk.Now), WithSessionTTL(time.Minute))
	t.Cleanup(sessions.Close)

	handlers := NewHandlers(coordinator, enroller, users, ldg, sessions, nil)
	return &testServer{
		clock:    clk,
		guard:    guard,
		timer:    timer,
		sessions: sessions,
		router:   SetupRouter(handlers, RouterConfig{}, nil),
	}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (s *testServer) enroll(t *testing.T) {
	t.Helper()
	d := livenesstest.Descriptor(0.1)
	w := s.do(t, http.MethodPost, "/users/enroll", gin.H{
		"identity":     identity,
		"descriptors":  []core.Descriptor{d, d, d},
		"qualityScore": 0.92,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

type started struct {
	SessionID string         `json:"sessionId"`
	Challenge core.Challenge `json:"challenge"`
}

func (s *testServer) start(t *testing.T) started {
	t.Helper()
	w := s.do(t, http.MethodPost, "/verifications", gin.H{"identity": identity})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[started](t, w)
}

func (s *testServer) awaitPhase(t *testing.T, id string, phase service.Phase) service.Snapshot {
	t.Helper()
	var snap service.Snapshot
	require.Eventually(t, func() bool {
		w := s.do(t, http.MethodGet, "/verifications/"+id, nil)
		if w.Code != http.StatusOK {
			return false
		}
		snap = decode[service.Snapshot](t, w)
		return snap.Phase == phase
	}, 5*time.Second, 5*time.Millisecond)
	return snap
}

func mouthOpen() *core.FrameSignal {
	sig := livenesstest.Signal(livenesstest.Pose{EAR: 0.3, MAR: 0.5, Brow: 0.5}, 0.9)
	sig.Descriptor[0] = 0.15
	return sig
}

func TestVerificationFlow(t *testing.T) {
	s := newTestServer(t)
	s.enroll(t)

	st := s.start(t)
	assert.Equal(t, core.ChallengeOpenMouth, st.Challenge.Type)
	s.awaitPhase(t, st.SessionID, service.PhaseChallenge)

	s.clock.Advance(3 * time.Second)
	for i := 0; i < 3; i++ {
		w := s.do(t, http.MethodPost, "/verifications/"+st.SessionID+"/frames", gin.H{"signal": mouthOpen()})
		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	}

	snap := s.awaitPhase(t, st.SessionID, service.PhaseResult)
	require.NotNil(t, snap.Outcome)
	assert.Equal(t, 95.25, snap.Outcome.Score.Score)
	require.NotNil(t, snap.Outcome.Token)
	token := snap.Outcome.Token
	assert.Equal(t, checksummed, token.Identity)
	assert.NotEmpty(t, token.Attestation)

	w := s.do(t, http.MethodPost, "/verifications/"+st.SessionID+"/frames", gin.H{"signal": nil})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, "/users/"+identity+"/token", nil)
	require.Equal(t, http.StatusOK, w.Code)
	current := decode[struct {
		Token     core.Token       `json:"token"`
		Remaining ledger.Remaining `json:"remaining"`
	}](t, w)
	assert.Equal(t, token.TokenID, current.Token.TokenID)
	assert.Equal(t, "5:00", current.Remaining.Formatted)

	w = s.do(t, http.MethodGet, "/tokens/"+token.TokenID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[ledger.Validation](t, w).Valid)

	w = s.do(t, http.MethodPost, "/tokens/introspect", gin.H{"attestation": token.Attestation})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[ledger.Validation](t, w).Valid)

	w = s.do(t, http.MethodPost, "/tokens/"+token.TokenID+"/revoke", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/tokens/"+token.TokenID, nil)
	v := decode[ledger.Validation](t, w)
	assert.False(t, v.Valid)
	assert.Equal(t, ledger.ReasonRevoked, v.Reason)

	w = s.do(t, http.MethodGet, "/users/"+identity+"/token", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/users/"+identity+"/tokens", nil)
	require.Equal(t, http.StatusOK, w.Code)
	tokens := decode[struct {
		Tokens []core.Token `json:"tokens"`
	}](t, w)
	require.Len(t, tokens.Tokens, 1)
	assert.Equal(t, core.TokenRevoked, tokens.Tokens[0].Status)

	w = s.do(t, http.MethodGet, "/users/"+identity+"/history?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[struct {
		Sessions []core.VerificationSession `json:"sessions"`
	}](t, w)
	require.Len(t, history.Sessions, 1)
	assert.True(t, history.Sessions[0].Success)

	w = s.do(t, http.MethodGet, "/users/"+identity+"/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[core.Stats](t, w)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 100.0, stats.SuccessRate)
}

func TestTimeoutAndRetry(t *testing.T) {
	s := newTestServer(t)
	s.enroll(t)

	st := s.start(t)
	s.timer <- time.Time{}
	snap := s.awaitPhase(t, st.SessionID, service.PhaseResult)
	require.NotNil(t, snap.Outcome)
	assert.True(t, snap.Outcome.TimedOut)

	w := s.do(t, http.MethodPost, "/verifications/"+st.SessionID+"/retry", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	retried := decode[started](t, w)
	assert.Equal(t, st.SessionID, retried.SessionID)
	assert.NotEqual(t, st.Challenge.ID, retried.Challenge.ID)

	s.awaitPhase(t, st.SessionID, service.PhaseChallenge)
	w = s.do(t, http.MethodPost, "/verifications/"+st.SessionID+"/retry", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodDelete, "/verifications/"+st.SessionID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(t, http.MethodGet, "/verifications/"+st.SessionID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartVerification_Rejections(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/verifications", gin.H{"identity": identity})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/verifications", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s.enroll(t)
	for i := 0; i < 10; i++ {
		s.guard.RecordAttempt(checksummed)
	}
	w = s.do(t, http.MethodPost, "/verifications", gin.H{"identity": identity})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "3600", w.Header().Get("Retry-After"))
}

func TestEnroll_Invalid(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/users/enroll", gin.H{
		"identity":    "alice",
		"descriptors": []core.Descriptor{{1, 2}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/users/enroll", gin.H{
		"identity":    "alice",
		"descriptors": []core.Descriptor{{1, 2}, {1}, {1, 2}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTokens_Unknown(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/tokens/POL-20240301-120000-ABCD", nil)
	require.Equal(t, http.StatusOK, w.Code)
	v := decode[ledger.Validation](t, w)
	assert.False(t, v.Valid)
	assert.Equal(t, ledger.ReasonNotFound, v.Reason)

	w = s.do(t, http.MethodPost, "/tokens/POL-20240301-120000-ABCD/revoke", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/tokens/introspect", gin.H{"attestation": "not-a-jwt"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/verifications/missing/frames", gin.H{"signal": nil})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChallengePool(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/challenges/pool", nil)
	require.Equal(t, http.StatusOK, w.Code)
	pool := decode[struct {
		Challenges []challenge.PoolEntry `json:"challenges"`
	}](t, w)
	assert.Len(t, pool.Challenges, len(challenge.DefaultPool))
}

func TestRegistryClose_AbortsRunningAttempts(t *testing.T) {
	s := newTestServer(t)
	s.enroll(t)
	st := s.start(t)
	s.awaitPhase(t, st.SessionID, service.PhaseChallenge)

	done := make(chan struct{})
	go func() {
		s.sessions.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("registry did not close")
	}
	_, err := s.sessions.get(st.SessionID)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestCaptureEnrollment(t *testing.T) {
	s := newTestServer(t)
	face := livenesstest.Signal(livenesstest.Neutral, 0.9)
	dim := livenesstest.Signal(livenesstest.Neutral, 0.5)
	path := "/users/" + identity + "/enroll/frames"

	w := s.do(t, http.MethodPost, path, gin.H{"frames": []*core.FrameSignal{face, face}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, path, gin.H{"frames": []*core.FrameSignal{face, nil, dim, dim, face}})
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, path, gin.H{"frames": []*core.FrameSignal{face, nil, face, dim, face}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	enrollment := decode[core.Enrollment](t, w)
	assert.Equal(t, checksummed, enrollment.Identity)
	assert.Equal(t, 3, enrollment.FramesUsed)
	assert.Equal(t, 1.0, enrollment.QualityScore)

	s.start(t)
}

func TestIntrospect_ExpiredAttestation(t *testing.T) {
	s := newTestServer(t)
	s.enroll(t)
	st := s.start(t)
	s.awaitPhase(t, st.SessionID, service.PhaseChallenge)
	s.clock.Advance(3 * time.Second)
	for i := 0; i < 3; i++ {
		w := s.do(t, http.MethodPost, "/verifications/"+st.SessionID+"/frames", gin.H{"signal": mouthOpen()})
		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	}
	snap := s.awaitPhase(t, st.SessionID, service.PhaseResult)
	require.NotNil(t, snap.Outcome)
	require.NotNil(t, snap.Outcome.Token)

	s.clock.Advance(6 * time.Minute)
	w := s.do(t, http.MethodPost, "/tokens/introspect", gin.H{"attestation": snap.Outcome.Token.Attestation})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	v := decode[ledger.Validation](t, w)
	assert.False(t, v.Valid)
	assert.Equal(t, ledger.ReasonExpired, v.Reason)

	w = s.do(t, http.MethodGet, "/users/"+identity+"/token", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
