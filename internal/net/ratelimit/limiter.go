// Package ratelimit provides the REST collector's per-exchange rate limiter:
// a minimum inter-call spacing enforced by a token bucket, plus a concurrency
// cap enforced by a counting semaphore, matching §4.1's "minimum inter-call
// spacing and a concurrency cap; the collector blocks until a permit is
// granted."
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter bounds one exchange's outbound REST traffic.
type Limiter struct {
	tokens *rate.Limiter
	sem    chan struct{}
}

// New creates a Limiter enforcing minInterval between successful permits and
// at most maxConcurrent permits held at once.
func New(minInterval time.Duration, maxConcurrent int) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	r := rate.Inf
	if minInterval > 0 {
		r = rate.Every(minInterval)
	}
	return &Limiter{
		tokens: rate.NewLimiter(r, 1),
		sem:    make(chan struct{}, maxConcurrent),
	}
}

// Acquire blocks until both the spacing and concurrency constraints are
// satisfied, and returns a release function the caller must invoke (typically
// via defer) once its call completes.
func (l *Limiter) Acquire(ctx context.Context) (release func(), err error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := l.tokens.Wait(ctx); err != nil {
		<-l.sem
		return nil, err
	}

	return func() { <-l.sem }, nil
}

// Manager holds one Limiter per exchange; it is the process-wide, long-lived
// global state described in §9 ("the per-exchange rate limiter... initialize
// at startup, drain at shutdown, never shared across exchanges").
type Manager struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
}

// NewManager creates an empty rate limiter manager.
func NewManager() *Manager {
	return &Manager{limiters: make(map[string]*Limiter)}
}

// Register installs (or replaces) the limiter for an exchange.
func (m *Manager) Register(exchange string, minInterval time.Duration, maxConcurrent int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limiters[exchange] = New(minInterval, maxConcurrent)
}

// Acquire blocks on the named exchange's limiter. An unregistered exchange
// has no limiter and is let through immediately.
func (m *Manager) Acquire(ctx context.Context, exchange string) (func(), error) {
	m.mu.RLock()
	l, ok := m.limiters[exchange]
	m.mu.RUnlock()
	if !ok {
		return func() {}, nil
	}
	return l.Acquire(ctx)
}
