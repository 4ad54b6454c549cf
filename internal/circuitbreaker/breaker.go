// Package circuitbreaker protects outbound model calls from cascading
// failures. When the model API degrades, the breaker opens and requests fail
// fast instead of stacking up behind long timeouts.
package circuitbreaker

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// State represents the circuit breaker state
type State int

const (
	StateClosed   State = iota // Normal operation, requests pass through
	StateOpen                  // Failure threshold exceeded, requests blocked
	StateHalfOpen              // Testing if service recovered
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrCircuitOpen is returned while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config holds circuit breaker configuration.
type Config struct {
	// Name identifies this circuit breaker in logs.
	Name string

	// FailureThreshold is the consecutive failure count that opens the
	// breaker.
	FailureThreshold int

	// Timeout is the period of open state before switching to half-open.
	Timeout time.Duration

	// HalfOpenSuccesses is how many probe successes close the breaker again.
	HalfOpenSuccesses int
}

// Breaker is a consecutive-failure circuit breaker.
type Breaker struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
}

// New creates a Breaker with defaults filled in.
func New(cfg Config, logger *slog.Logger) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenSuccesses <= 0 {
		cfg.HalfOpenSuccesses = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Breaker{cfg: cfg, logger: logger, state: StateClosed}
}

// Execute runs fn if the breaker allows it and records the result.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn()
	b.record(err == nil)
	return err
}

// State returns the current state, accounting for open-state expiry.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	return b.state
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	if b.state == StateOpen {
		return ErrCircuitOpen
	}
	return nil
}

// refreshLocked moves an expired open breaker to half-open.
func (b *Breaker) refreshLocked() {
	if b.state == StateOpen && time.Since(b.openedAt) >= b.cfg.Timeout {
		b.transitionLocked(StateHalfOpen)
	}
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.failures = 0
		if b.state == StateHalfOpen {
			b.successes++
			if b.successes >= b.cfg.HalfOpenSuccesses {
				b.transitionLocked(StateClosed)
			}
		}
		return
	}

	switch b.state {
	case StateHalfOpen:
		// A failed probe re-opens immediately.
		b.transitionLocked(StateOpen)
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.transitionLocked(StateOpen)
		}
	}
}

func (b *Breaker) transitionLocked(next State) {
	if b.state == next {
		return
	}
	b.logger.Warn("circuit breaker state change",
		"name", b.cfg.Name, "from", b.state.String(), "to", next.String())
	b.state = next
	b.failures = 0
	b.successes = 0
	if next == StateOpen {
		b.openedAt = time.Now()
	}
}
