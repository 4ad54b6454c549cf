package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("service down")

func failing() error { return errDown }
func succeeding() error { return nil }

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := New(Config{FailureThreshold: 3, Timeout: time.Minute}, nil)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Execute(failing), errDown)
	}
	assert.Equal(t, StateOpen, b.State())

	// Requests now fail fast without invoking fn.
	called := false
	err := b.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := New(Config{FailureThreshold: 3, Timeout: time.Minute}, nil)

	require.Error(t, b.Execute(failing))
	require.Error(t, b.Execute(failing))
	require.NoError(t, b.Execute(succeeding))
	require.Error(t, b.Execute(failing))
	require.Error(t, b.Execute(failing))

	assert.Equal(t, StateClosed, b.State(), "interleaved success keeps it closed")
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	b := New(Config{FailureThreshold: 1, Timeout: 10 * time.Millisecond}, nil)

	require.Error(t, b.Execute(failing))
	require.Equal(t, StateOpen, b.State())

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Execute(succeeding))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	b := New(Config{FailureThreshold: 1, Timeout: 10 * time.Millisecond}, nil)

	require.Error(t, b.Execute(failing))
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	require.Error(t, b.Execute(failing))
	assert.Equal(t, StateOpen, b.State())
}
