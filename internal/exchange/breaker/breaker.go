// Package breaker wraps every exchange REST call in a per-exchange circuit
// breaker so repeated exchange-side or server failures fail fast instead of
// burning the retry budget, per the error taxonomy's ExchangeError/
// ServerError handling.
package breaker

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// Config tunes one exchange's breaker.
type Config struct {
	MaxRequestsHalfOpen uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// DefaultConfig returns sane defaults for a typical exchange REST API.
func DefaultConfig() Config {
	return Config{
		MaxRequestsHalfOpen: 3,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// Registry holds one gobreaker.CircuitBreaker per exchange.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewRegistry creates an empty breaker registry.
func NewRegistry() *Registry {
	return &Registry{breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

// Register installs the breaker for an exchange.
func (r *Registry) Register(exchange string, cfg Config) {
	settings := gobreaker.Settings{
		Name:        exchange,
		MaxRequests: cfg.MaxRequestsHalfOpen,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("exchange", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.breakers[exchange] = gobreaker.NewCircuitBreaker(settings)
}

// Execute runs fn through the named exchange's breaker. An exchange with no
// registered breaker runs fn directly.
func (r *Registry) Execute(exchange string, fn func() (any, error)) (any, error) {
	r.mu.RLock()
	b, ok := r.breakers[exchange]
	r.mu.RUnlock()
	if !ok {
		return fn()
	}
	return b.Execute(fn)
}

// State returns the current breaker state for an exchange, or
// gobreaker.StateClosed if none is registered.
func (r *Registry) State(exchange string) gobreaker.State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b, ok := r.breakers[exchange]; ok {
		return b.State()
	}
	return gobreaker.StateClosed
}
