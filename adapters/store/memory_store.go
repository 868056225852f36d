package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/core"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/ports"
)

// MemoryUserStore is an in-memory implementation of ports.UserRecordStore
type MemoryUserStore struct {
	mu          sync.RWMutex
	enrollments map[string]core.Enrollment
	sessions    map[string][]core.VerificationSession
	now         func() time.Time
}

// NewMemoryUserStore creates a new in-memory user store
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		enrollments: make(map[string]core.Enrollment),
		sessions:    make(map[string][]core.VerificationSession),
		now:         time.Now,
	}
}

var _ ports.UserRecordStore = (*MemoryUserStore)(nil)

// Enroll stores or replaces the identity's template. Re-enrollment resets
// the verification counters
func (s *MemoryUserStore) Enroll(ctx context.Context, e core.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.RegisteredAt.IsZero() {
		e.RegisteredAt = s.now()
	}
	e.LastVerification = nil
	e.TotalVerifications = 0
	e.FailedAttempts = 0
	e.Template = append(core.Descriptor(nil), e.Template...)
	s.enrollments[e.Identity] = e
	return nil
}

// IsEnrolled reports whether a template is stored for identity
func (s *MemoryUserStore) IsEnrolled(ctx context.Context, identity string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.enrollments[identity]
	return ok, nil
}

// GetTemplate returns a copy of the stored template
func (s *MemoryUserStore) GetTemplate(ctx context.Context, identity string) (core.Descriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.enrollments[identity]
	if !ok {
		return nil, nil
	}
	return append(core.Descriptor(nil), e.Template...), nil
}

// GetEnrollment returns the stored enrollment
func (s *MemoryUserStore) GetEnrollment(ctx context.Context, identity string) (core.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.enrollments[identity]
	if !ok {
		return core.Enrollment{}, core.ErrNotEnrolled
	}
	return e, nil
}

// AppendSession adds a record to the identity's history
func (s *MemoryUserStore) AppendSession(ctx context.Context, record core.VerificationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[record.Identity] = append(s.sessions[record.Identity], record)
	return nil
}

// UpdateStats bumps the identity's verification counters
func (s *MemoryUserStore) UpdateStats(ctx context.Context, identity string, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.enrollments[identity]
	if !ok {
		return fmt.Errorf("failed to update stats for %s: %w", identity, core.ErrNotEnrolled)
	}
	now := s.now()
	e.LastVerification = &now
	e.TotalVerifications++
	if !success {
		e.FailedAttempts++
	}
	s.enrollments[identity] = e
	return nil
}

// GetHistory returns at most limit sessions, newest first. A non-positive
// limit returns everything
func (s *MemoryUserStore) GetHistory(ctx context.Context, identity string, limit int) ([]core.VerificationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.sessions[identity]
	n := len(all)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]core.VerificationSession, 0, n)
	for i := len(all) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

// GetStats summarizes the most recent sessions
func (s *MemoryUserStore) GetStats(ctx context.Context, identity string) (core.Stats, error) {
	history, err := s.GetHistory(ctx, identity, core.StatsWindow)
	if err != nil {
		return core.Stats{}, err
	}
	return core.SummarizeHistory(history), nil
}

// MemoryLedgerStore is an in-memory implementation of ports.LedgerStore
type MemoryLedgerStore struct {
	mu      sync.RWMutex
	tokens  map[string]core.Token
	order   []string
	current map[string]string
}

// NewMemoryLedgerStore creates a new in-memory ledger store
func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		tokens:  make(map[string]core.Token),
		current: make(map[string]string),
	}
}

var _ ports.LedgerStore = (*MemoryLedgerStore)(nil)

// Append adds a new token to the ledger
func (s *MemoryLedgerStore) Append(ctx context.Context, token core.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[token.TokenID]; exists {
		return fmt.Errorf("%w: token %s already exists", core.ErrStoreOperationFailed, token.TokenID)
	}
	s.tokens[token.TokenID] = token
	s.order = append(s.order, token.TokenID)
	return nil
}

// Get returns a stored token
func (s *MemoryLedgerStore) Get(ctx context.Context, tokenID string) (core.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.tokens[tokenID]
	if !ok {
		return core.Token{}, core.ErrTokenNotFound
	}
	return token, nil
}

// Exists reports whether tokenID was ever issued
func (s *MemoryLedgerStore) Exists(ctx context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.tokens[tokenID]
	return ok, nil
}

// Update overwrites the status fields of a stored token
func (s *MemoryLedgerStore) Update(ctx context.Context, token core.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.tokens[token.TokenID]
	if !ok {
		return core.ErrTokenNotFound
	}
	stored.Status = token.Status
	stored.RevokedAt = token.RevokedAt
	s.tokens[token.TokenID] = stored
	return nil
}

// SetCurrent points the identity at tokenID
func (s *MemoryLedgerStore) SetCurrent(ctx context.Context, identity, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current[identity] = tokenID
	return nil
}

// Current returns the identity's current token id
func (s *MemoryLedgerStore) Current(ctx context.Context, identity string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.current[identity], nil
}

// ClearCurrent drops the pointer if it still names tokenID
func (s *MemoryLedgerStore) ClearCurrent(ctx context.Context, identity, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current[identity] == tokenID {
		delete(s.current, identity)
	}
	return nil
}

// ListByIdentity returns the identity's tokens in issue order
func (s *MemoryLedgerStore) ListByIdentity(ctx context.Context, identity string) ([]core.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.Token
	for _, id := range s.order {
		if t := s.tokens[id]; t.Identity == identity {
			out = append(out, t)
		}
	}
	return out, nil
}
