// SPDX-License-Identifier: MIT

package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) advance(d time.Duration) { f.now = f.now.Add(d) }

var errBoom = errors.New("boom")

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	clk := &fakeClock{now: time.Now()}
	cb := NewCircuitBreaker("github", 2, time.Minute, WithClock(clk))

	require.Equal(t, string(StateClosed), cb.State())

	assert.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, string(StateClosed), cb.State())

	assert.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, string(StateOpen), cb.State())

	// While open, calls are rejected without invoking fn.
	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreakerHalfOpenProbe(t *testing.T) {
	clk := &fakeClock{now: time.Now()}
	cb := NewCircuitBreaker("github", 1, time.Minute, WithClock(clk))

	require.Error(t, cb.Execute(func() error { return errBoom }))
	require.Equal(t, string(StateOpen), cb.State())

	clk.advance(2 * time.Minute)

	// Successful probe closes the breaker.
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, string(StateClosed), cb.State())
}

func TestCircuitBreakerFailedProbeReopens(t *testing.T) {
	clk := &fakeClock{now: time.Now()}
	cb := NewCircuitBreaker("github", 1, time.Minute, WithClock(clk))

	require.Error(t, cb.Execute(func() error { return errBoom }))
	clk.advance(2 * time.Minute)

	require.Error(t, cb.Execute(func() error { return errBoom }))
	assert.Equal(t, string(StateOpen), cb.State())
}

func TestCircuitBreakerDefaults(t *testing.T) {
	cb := NewCircuitBreaker("github", 0, 0)
	assert.Equal(t, 3, cb.threshold)
	assert.Equal(t, 30*time.Second, cb.resetTimeout)
}
