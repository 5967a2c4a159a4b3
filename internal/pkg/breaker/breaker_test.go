package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream unavailable")

// fakeClock lets tests drive the open -> half-open transition.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(clk *fakeClock, hook func(string, State, State)) *Breaker {
	return New(Config{
		Name:             "provider",
		FailureThreshold: 3,
		SuccessThreshold: 2,
		ResetTimeout:     30 * time.Second,
		Now:              clk.now,
		OnStateChange:    hook,
	})
}

func failCall(ctx context.Context) error { return errUpstream }
func okCall(ctx context.Context) error   { return nil }

func tripOpen(t *testing.T, b *Breaker) {
	t.Helper()
	for i := 0; i < 3; i++ {
		err := b.Execute(context.Background(), failCall)
		require.ErrorIs(t, err, errUpstream)
	}
	require.Equal(t, StateOpen, b.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestOpensAfterFailureThreshold(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1700000000, 0)}
	b := newTestBreaker(clk, nil)

	require.Equal(t, StateClosed, b.State())
	for i := 0; i < 2; i++ {
		require.ErrorIs(t, b.Execute(context.Background(), failCall), errUpstream)
		assert.Equal(t, StateClosed, b.State())
	}
	require.ErrorIs(t, b.Execute(context.Background(), failCall), errUpstream)
	assert.Equal(t, StateOpen, b.State())
}

func TestOpenRejectsWithoutInvoking(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1700000000, 0)}
	b := newTestBreaker(clk, nil)
	tripOpen(t, b)

	calls := 0
	err := b.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.Error(t, err)
	assert.True(t, IsOpen(err))
	assert.ErrorIs(t, err, ErrOpen)
	assert.Equal(t, 0, calls, "open circuit must not invoke the call")
}

func TestRecoveryCycle(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1700000000, 0)}
	var got []string
	hook := func(name string, from, to State) {
		got = append(got, from.String()+">"+to.String())
	}
	b := newTestBreaker(clk, hook)
	tripOpen(t, b)

	// Before the timeout the circuit stays open.
	clk.advance(29 * time.Second)
	assert.Equal(t, StateOpen, b.State())
	assert.True(t, IsOpen(b.Execute(context.Background(), okCall)))

	// After the timeout the next State call observes half-open.
	clk.advance(1 * time.Second)
	assert.Equal(t, StateHalfOpen, b.State())

	// Two successes close the circuit.
	require.NoError(t, b.Execute(context.Background(), okCall))
	assert.Equal(t, StateHalfOpen, b.State())
	require.NoError(t, b.Execute(context.Background(), okCall))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.Failures())

	assert.Equal(t, []string{"closed>open", "open>half-open", "half-open>closed"}, got)
}

func TestHalfOpenFailureReopens(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1700000000, 0)}
	b := newTestBreaker(clk, nil)
	tripOpen(t, b)

	clk.advance(31 * time.Second)
	require.Equal(t, StateHalfOpen, b.State())

	require.ErrorIs(t, b.Execute(context.Background(), failCall), errUpstream)
	assert.Equal(t, StateOpen, b.State())

	// The reopen restarts the timeout from the probe failure.
	clk.advance(29 * time.Second)
	assert.Equal(t, StateOpen, b.State())
	clk.advance(2 * time.Second)
	assert.Equal(t, StateHalfOpen, b.State())
}

func TestClosedSuccessDecaysFailures(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1700000000, 0)}
	b := newTestBreaker(clk, nil)

	require.ErrorIs(t, b.Execute(context.Background(), failCall), errUpstream)
	require.ErrorIs(t, b.Execute(context.Background(), failCall), errUpstream)
	assert.Equal(t, 2, b.Failures())

	require.NoError(t, b.Execute(context.Background(), okCall))
	assert.Equal(t, 1, b.Failures())

	// One failure alone cannot trip now; two more are needed.
	require.ErrorIs(t, b.Execute(context.Background(), failCall), errUpstream)
	assert.Equal(t, StateClosed, b.State())
	require.ErrorIs(t, b.Execute(context.Background(), failCall), errUpstream)
	assert.Equal(t, StateOpen, b.State())
}

func TestResetForcesClosed(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1700000000, 0)}
	b := newTestBreaker(clk, nil)
	tripOpen(t, b)

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.Failures())
	require.NoError(t, b.Execute(context.Background(), okCall))
}

func TestDefaultsApplied(t *testing.T) {
	b := New(Config{})
	assert.Equal(t, "default", b.Name())
	assert.Equal(t, StateClosed, b.State())

	// Default threshold is 5 consecutive failures.
	for i := 0; i < 4; i++ {
		_ = b.Execute(context.Background(), failCall)
		require.Equal(t, StateClosed, b.State())
	}
	_ = b.Execute(context.Background(), failCall)
	assert.Equal(t, StateOpen, b.State())
}
