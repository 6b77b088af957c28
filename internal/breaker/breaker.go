// Package breaker implements a simple per-endpoint circuit breaker:
// closed -> open after N consecutive failures, open -> half-open after
// a cooldown, half-open -> closed on one success or back to open on one
// failure. Each breaker owns a single mutex-guarded state triple, the
// same shape as the teacher's internal/ratelimit.Limiter.
package breaker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State is one of the three breaker states.
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

// ErrOpen is returned by Allow when the breaker is open and the
// cooldown has not yet elapsed.
var ErrOpen = fmt.Errorf("circuit breaker open")

// Breaker is a named circuit breaker for one external endpoint.
type Breaker struct {
	name             string
	failureThreshold int
	cooldown         time.Duration

	mu          sync.Mutex
	state       State
	consecutive int
	openedAt    time.Time
}

// New creates a breaker that opens after failureThreshold consecutive
// failures and probes half-open after cooldown.
func New(name string, failureThreshold int, cooldown time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		name:             name,
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		state:            Closed,
	}
}

// Name returns the breaker's endpoint name.
func (b *Breaker) Name() string { return b.name }

// State returns the current state, resolving a stale open state into
// half-open if the cooldown has elapsed without mutating it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

func (b *Breaker) stateLocked() State {
	if b.state == Open && time.Since(b.openedAt) >= b.cooldown {
		return HalfOpen
	}
	return b.state
}

// Allow reports whether a call should be attempted. It short-circuits
// with ErrOpen when the breaker is open and still cooling down.
func (b *Breaker) Allow(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.stateLocked() {
	case Open:
		return ErrOpen
	case HalfOpen:
		// Record the half-open state. Every call is let through while
		// half-open; the first recorded outcome closes or reopens the breaker.
		b.state = HalfOpen
		return nil
	default:
		return nil
	}
}

// RecordSuccess marks a successful call. In half-open this closes the
// breaker; in closed it resets the consecutive-failure counter.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.stateLocked() {
	case HalfOpen:
		b.state = Closed
		b.consecutive = 0
	default:
		b.consecutive = 0
	}
}

// RecordFailure marks a failed call. In half-open this reopens the
// breaker immediately; in closed it increments the consecutive-failure
// counter and opens once the threshold is reached.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.stateLocked() {
	case HalfOpen:
		b.state = Open
		b.openedAt = time.Now()
		b.consecutive = 0
	default:
		b.consecutive++
		if b.consecutive >= b.failureThreshold {
			b.state = Open
			b.openedAt = time.Now()
			b.consecutive = 0
		}
	}
}

// Registry holds one breaker per named external endpoint. Breakers
// genuinely need process-wide sharing (every call to the same endpoint
// must observe the same counters), so unlike the rest of the pipeline's
// explicitly-wired dependencies this is the one handle that is shared
// by construction rather than threaded through every caller.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry creates an empty breaker registry.
func NewRegistry() *Registry {
	return &Registry{breakers: make(map[string]*Breaker)}
}

// Get returns the named breaker, creating it with the given defaults on
// first use.
func (r *Registry) Get(name string, failureThreshold int, cooldown time.Duration) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := New(name, failureThreshold, cooldown)
	r.breakers[name] = b
	return b
}
