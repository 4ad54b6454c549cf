package saga

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// Sleeper is the backoff sleep primitive. Injected so tests can observe the
// exact delays without waiting. The real implementation respects context
// cancellation.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the production Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Config controls the per-record retry policy.
type Config struct {
	// MaxAttempts is the total attempts per record, including the first.
	MaxAttempts int
	// InitialBackoff is slept before the 2nd attempt and doubled for each
	// attempt after. No jitter.
	InitialBackoff time.Duration
}

// DefaultConfig matches the production retry policy: 3 attempts, 500ms
// initial backoff (so 500ms before attempt 2, 1000ms before attempt 3).
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, InitialBackoff: 500 * time.Millisecond}
}

// RecordFailure captures one dependent record that exhausted its retries.
type RecordFailure struct {
	RecordID string
	Err      error
}

// PropagationError reports which dependent records failed after all retry
// attempts. It unwraps to ErrPropagationExhausted.
type PropagationError struct {
	Failed []RecordFailure
}

func (e *PropagationError) Error() string {
	ids := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		ids[i] = f.RecordID
	}
	return fmt.Sprintf("propagation exhausted for %d record(s): %s",
		len(e.Failed), strings.Join(ids, ", "))
}

func (e *PropagationError) Unwrap() error { return ErrPropagationExhausted }

// Propagator fans a mutation out across a set of dependent records. Each
// record is processed on its own goroutine with its own retry counter and
// backoff timer; there is no shared mutable retry state between records.
type Propagator struct {
	cfg     Config
	sleep   Sleeper
	metrics *Metrics
	logger  *slog.Logger
}

// NewPropagator creates a Propagator. A nil metrics or logger is allowed.
func NewPropagator(cfg Config, metrics *Metrics, logger *slog.Logger) *Propagator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Propagator{cfg: cfg, sleep: SleepContext, metrics: metrics, logger: logger}
}

// WithSleeper replaces the backoff sleep. Used by tests.
func (p *Propagator) WithSleeper(s Sleeper) *Propagator {
	p.sleep = s
	return p
}

// FanOut applies the mutation to every record id concurrently and waits for
// all of them to settle. A record succeeds when apply returns nil on any
// attempt within the retry budget; it fails when every attempt errors.
//
// If any record fails, the whole propagation fails with a *PropagationError,
// even when every other record succeeded. The records that did succeed stay
// mutated — that residual partial state is exactly what the compensation
// step exists to clean up.
func (p *Propagator) FanOut(ctx context.Context, operation string, recordIDs []string, apply func(ctx context.Context, recordID string) error) error {
	if len(recordIDs) == 0 {
		return nil
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures []RecordFailure
	)

	for _, id := range recordIDs {
		wg.Add(1)
		go func(recordID string) {
			defer wg.Done()
			if err := p.applyWithRetry(ctx, operation, recordID, apply); err != nil {
				mu.Lock()
				failures = append(failures, RecordFailure{RecordID: recordID, Err: err})
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	if len(failures) == 0 {
		return nil
	}

	// Deterministic ordering for logs and error messages.
	sort.Slice(failures, func(i, j int) bool {
		return failures[i].RecordID < failures[j].RecordID
	})
	return &PropagationError{Failed: failures}
}

// applyWithRetry runs the per-record retry loop: MaxAttempts total, with the
// backoff slept before the 2nd attempt onward, doubling each time.
func (p *Propagator) applyWithRetry(ctx context.Context, operation, recordID string, apply func(ctx context.Context, recordID string) error) error {
	backoff := p.cfg.InitialBackoff

	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := p.sleep(ctx, backoff); err != nil {
				return fmt.Errorf("backoff interrupted: %w", err)
			}
			backoff *= 2
		}

		p.metrics.recordAttempt(operation)
		lastErr = apply(ctx, recordID)
		if lastErr == nil {
			if attempt > 1 {
				p.logger.Info("dependent record mutated after retry",
					"operation", operation, "record_id", recordID, "attempt", attempt)
			}
			return nil
		}

		if attempt < p.cfg.MaxAttempts {
			p.metrics.recordRetry(operation)
			p.logger.Warn("dependent record mutation failed, retrying",
				"operation", operation, "record_id", recordID,
				"attempt", attempt, "error", lastErr)
		}
	}

	p.metrics.recordExhaustion(operation)
	p.logger.Error("dependent record mutation exhausted retries",
		"operation", operation, "record_id", recordID,
		"attempts", p.cfg.MaxAttempts, "error", lastErr)
	return fmt.Errorf("all %d attempts failed: %w", p.cfg.MaxAttempts, lastErr)
}
