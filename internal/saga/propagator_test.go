package saga

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSleeper captures backoff durations instead of sleeping.
type recordingSleeper struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeps = append(s.sleeps, d)
	return nil
}

func (s *recordingSleeper) durations() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.sleeps))
	copy(out, s.sleeps)
	return out
}

// flakyApply fails a configured number of times per record before succeeding.
type flakyApply struct {
	mu       sync.Mutex
	failures map[string]int // record id -> failures before success
	attempts map[string]int
}

func newFlakyApply(failures map[string]int) *flakyApply {
	return &flakyApply{failures: failures, attempts: make(map[string]int)}
}

func (f *flakyApply) apply(_ context.Context, recordID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[recordID]++
	if f.attempts[recordID] <= f.failures[recordID] {
		return errors.New("simulated write failure")
	}
	return nil
}

func (f *flakyApply) attemptCount(recordID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[recordID]
}

func TestFanOutAllSucceedFirstAttempt(t *testing.T) {
	sleeper := &recordingSleeper{}
	p := NewPropagator(DefaultConfig(), nil, nil).WithSleeper(sleeper.sleep)
	apply := newFlakyApply(nil)

	err := p.FanOut(context.Background(), "edit", []string{"d1", "d2", "d3"}, apply.apply)
	require.NoError(t, err)

	assert.Equal(t, 1, apply.attemptCount("d1"))
	assert.Equal(t, 1, apply.attemptCount("d2"))
	assert.Equal(t, 1, apply.attemptCount("d3"))
	assert.Empty(t, sleeper.durations(), "no backoff sleeps on first-attempt success")
}

func TestFanOutRetryBudgetRespected(t *testing.T) {
	// Fails exactly twice, succeeds on the 3rd attempt: overall success for
	// the record, with exactly two backoff sleeps of 500ms then 1000ms.
	sleeper := &recordingSleeper{}
	p := NewPropagator(DefaultConfig(), nil, nil).WithSleeper(sleeper.sleep)
	apply := newFlakyApply(map[string]int{"d1": 2})

	err := p.FanOut(context.Background(), "edit", []string{"d1"}, apply.apply)
	require.NoError(t, err)

	assert.Equal(t, 3, apply.attemptCount("d1"))
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 1000 * time.Millisecond}, sleeper.durations())
}

func TestFanOutRetryBudgetExhausted(t *testing.T) {
	// Fails all 3 attempts: the record is failed, and there is no 4th attempt.
	sleeper := &recordingSleeper{}
	p := NewPropagator(DefaultConfig(), nil, nil).WithSleeper(sleeper.sleep)
	apply := newFlakyApply(map[string]int{"d1": 99})

	err := p.FanOut(context.Background(), "edit", []string{"d1"}, apply.apply)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPropagationExhausted))

	assert.Equal(t, 3, apply.attemptCount("d1"))
	assert.Len(t, sleeper.durations(), 2)
}

func TestFanOutPartialFailureFailsWhole(t *testing.T) {
	// One record succeeds immediately, one exhausts: whole propagation fails
	// and the error names only the failed record.
	sleeper := &recordingSleeper{}
	p := NewPropagator(DefaultConfig(), nil, nil).WithSleeper(sleeper.sleep)
	apply := newFlakyApply(map[string]int{"d2": 99})

	err := p.FanOut(context.Background(), "edit", []string{"d1", "d2"}, apply.apply)
	require.Error(t, err)

	var propErr *PropagationError
	require.True(t, errors.As(err, &propErr))
	require.Len(t, propErr.Failed, 1)
	assert.Equal(t, "d2", propErr.Failed[0].RecordID)

	// The success already happened; that residual state is the compensation
	// handler's problem, not the propagator's.
	assert.Equal(t, 1, apply.attemptCount("d1"))
	assert.Equal(t, 3, apply.attemptCount("d2"))
}

func TestFanOutEmptySet(t *testing.T) {
	p := NewPropagator(DefaultConfig(), nil, nil)
	called := false
	err := p.FanOut(context.Background(), "edit", nil, func(context.Context, string) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestFanOutFailuresSortedDeterministically(t *testing.T) {
	sleeper := &recordingSleeper{}
	p := NewPropagator(DefaultConfig(), nil, nil).WithSleeper(sleeper.sleep)
	apply := newFlakyApply(map[string]int{"d3": 99, "d1": 99, "d2": 99})

	err := p.FanOut(context.Background(), "delete", []string{"d3", "d1", "d2"}, apply.apply)
	require.Error(t, err)

	var propErr *PropagationError
	require.True(t, errors.As(err, &propErr))
	require.Len(t, propErr.Failed, 3)
	assert.Equal(t, "d1", propErr.Failed[0].RecordID)
	assert.Equal(t, "d2", propErr.Failed[1].RecordID)
	assert.Equal(t, "d3", propErr.Failed[2].RecordID)
}

func TestSleepContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := SleepContext(ctx, time.Minute)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
