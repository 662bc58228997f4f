package model

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/diffapply/pkg/logging"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(maxFailures uint32, reset time.Duration) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: maxFailures, ResetTimeout: reset})
	cb.now = clock.Now
	return cb, clock
}

func TestCircuitBreakerState_String(t *testing.T) {
	tests := []struct {
		state    CircuitState
		expected string
	}{
		{CircuitClosed, "closed"},
		{CircuitOpen, "open"},
		{CircuitHalfOpen, "half-open"},
		{CircuitState(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.state.String(); got != tt.expected {
				t.Errorf("CircuitState.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCircuitBreaker_InitialState(t *testing.T) {
	cb := DefaultCircuitBreaker()
	assert.Equal(t, "closed", cb.State())
	assert.Zero(t, cb.FailureCount())
	assert.Equal(t, uint32(5), cb.config.MaxFailures)
	assert.Equal(t, 30*time.Second, cb.config.ResetTimeout)
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	cb, _ := newTestBreaker(3, 30*time.Second)
	testErr := errors.New("test error")

	for i := 0; i < 3; i++ {
		err := cb.Call(func() error { return testErr })
		require.ErrorIs(t, err, testErr, "call %d", i)
	}
	assert.Equal(t, "open", cb.State())

	called := false
	err := cb.Call(func() error {
		called = true
		return nil
	})
	assert.False(t, called, "function should not run while open")
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_HalfOpen(t *testing.T) {
	tests := []struct {
		name      string
		probeErr  error
		wantState string
	}{
		{"probe succeeds", nil, "closed"},
		{"probe fails", errors.New("still failing"), "open"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, clock := newTestBreaker(1, 100*time.Millisecond)
			_ = cb.Call(func() error { return errors.New("test error") })
			require.Equal(t, "open", cb.State())

			clock.Advance(50 * time.Millisecond)
			require.ErrorIs(t, cb.Call(func() error { return nil }), ErrCircuitOpen)

			clock.Advance(60 * time.Millisecond)
			err := cb.Call(func() error { return tt.probeErr })
			if tt.probeErr != nil {
				assert.ErrorIs(t, err, tt.probeErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantState, cb.State())
		})
	}
}

func TestCircuitBreaker_FailureCountResetOnSuccess(t *testing.T) {
	cb, _ := newTestBreaker(5, 30*time.Second)

	for i := 0; i < 3; i++ {
		_ = cb.Call(func() error { return errors.New("test error") })
	}
	assert.Equal(t, uint32(3), cb.FailureCount())

	require.NoError(t, cb.Call(func() error { return nil }))
	assert.Zero(t, cb.FailureCount())

	for i := 0; i < 5; i++ {
		_ = cb.Call(func() error { return errors.New("test error") })
	}
	assert.Equal(t, "open", cb.State())
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb, _ := newTestBreaker(10, 30*time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = cb.Call(func() error { return nil })
		}()
	}
	wg.Wait()

	assert.Equal(t, "closed", cb.State())
}

func TestCircuitBreaker_LogsTransitions(t *testing.T) {
	var buf bytes.Buffer
	cb, _ := newTestBreaker(1, time.Minute)
	cb.SetLogger(logging.NewWriterLogger(&buf), "suggestion")

	_ = cb.Call(func() error { return errors.New("boom") })

	out := buf.String()
	assert.Contains(t, out, "circuit_breaker.transition")
	assert.Contains(t, out, `"service":"suggestion"`)
	assert.Contains(t, out, `"to":"open"`)
}
