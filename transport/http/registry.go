package http

import (
	"context"
	"sync"
	"time"

	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/adapters/signals"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/core"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/service"
	"go.uber.org/zap"
)

// frameBuffer is how many pushed frames may wait for the classifier
const frameBuffer = 8

// DefaultSessionTTL is how long an idle session is kept before eviction
const DefaultSessionTTL = 10 * time.Minute

type entry struct {
	session  *service.Session
	provider *signals.ChannelProvider

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	running   bool
	idleSince time.Time
}

// idle reports whether the entry has no running attempt and has not been
// touched since cutoff
func (e *entry) idle(cutoff time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.running && e.idleSince.Before(cutoff)
}

func (e *entry) touch(now time.Time) {
	e.mu.Lock()
	e.idleSince = now
	e.mu.Unlock()
}

// Registry tracks the verification sessions driven over HTTP. Each session
// runs on its own goroutine, detached from the request that started it.
// Sessions that sit idle, with no running attempt and no request, for
// longer than the TTL are evicted on the next add or get
type Registry struct {
	base   context.Context
	stop   context.CancelFunc
	logger *zap.Logger
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithSessionTTL sets how long an idle session is kept
func WithSessionTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithRegistryClock overrides the clock used for eviction
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates an empty registry
func NewRegistry(logger *zap.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, stop := context.WithCancel(context.Background())
	r := &Registry{
		base:    base,
		stop:    stop,
		logger:  logger,
		ttl:     DefaultSessionTTL,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Len returns the number of tracked sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) add(s *service.Session, p *signals.ChannelProvider) *entry {
	now := r.now()
	e := &entry{session: s, provider: p, idleSince: now}
	r.mu.Lock()
	evicted := r.sweepLocked(now)
	r.entries[s.ID()] = e
	r.mu.Unlock()
	r.release(evicted)
	return e
}

func (r *Registry) get(id string) (*entry, error) {
	now := r.now()
	r.mu.Lock()
	evicted := r.sweepLocked(now)
	e, ok := r.entries[id]
	r.mu.Unlock()
	r.release(evicted)
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	e.touch(now)
	return e, nil
}

func (r *Registry) sweepLocked(now time.Time) []*entry {
	cutoff := now.Add(-r.ttl)
	var evicted []*entry
	for id, e := range r.entries {
		if e.idle(cutoff) {
			delete(r.entries, id)
			evicted = append(evicted, e)
		}
	}
	return evicted
}

func (r *Registry) release(evicted []*entry) {
	for _, e := range evicted {
		e.provider.Close()
		r.logger.Info("verification session evicted", zap.String("session", e.session.ID()))
	}
}

// start runs the session's current attempt in the background
func (r *Registry) start(e *entry) {
	ctx, cancel := context.WithCancel(r.base)
	done := make(chan struct{})

	e.mu.Lock()
	e.cancel = cancel
	e.done = done
	e.running = true
	e.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		out, err := e.session.Run(ctx)
		e.mu.Lock()
		e.running = false
		e.idleSince = r.now()
		e.mu.Unlock()
		if err != nil {
			r.logger.Info("verification attempt ended with error",
				zap.String("session", e.session.ID()),
				zap.String("attempt", out.SessionID),
				zap.Error(err))
		}
	}()
}

// wait blocks until the running attempt, if any, has returned
func (e *entry) wait() {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (e *entry) shutdown() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	e.wait()
	e.provider.Close()
}

// Remove aborts the session's running attempt and forgets it
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()
	if !ok {
		return core.ErrSessionNotFound
	}
	e.shutdown()
	return nil
}

// Close aborts every running attempt and waits for them to return
func (r *Registry) Close() {
	r.stop()
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.entries))
	for id, e := range r.entries {
		entries = append(entries, e)
		delete(r.entries, id)
	}
	r.mu.Unlock()

	for _, e := range entries {
		e.shutdown()
	}
}
