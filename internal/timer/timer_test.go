package timer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestFormat(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00"},
		{-3 * time.Second, "00:00"},
		{59 * time.Second, "00:59"},
		{60 * time.Second, "01:00"},
		{10*time.Minute + 5*time.Second, "10:05"},
		{1500 * time.Millisecond, "00:02"},
		{100 * time.Minute, "100:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Format(tt.in), "Format(%v)", tt.in)
	}
}

func waitTick(t *testing.T, ch <-chan time.Duration) time.Duration {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tick")
		return 0
	}
}

func TestCountdownExpiresOnceAfterNTicks(t *testing.T) {
	fc := clockwork.NewFakeClock()
	ticks := make(chan time.Duration, 16)
	var expired atomic.Int32

	const n = 5
	cd := NewCountdown(fc, n*time.Second, func(d time.Duration) { ticks <- d }, func() { expired.Add(1) })
	cd.Start()
	cd.Start() // second start is a no-op

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var last time.Duration
	for i := 0; i < n; i++ {
		require.NoError(t, fc.BlockUntilContext(ctx, 1))
		fc.Advance(time.Second)
		last = waitTick(t, ticks)
		assert.Equal(t, time.Duration(n-i-1)*time.Second, last)
	}
	<-cd.Done()

	assert.Equal(t, "00:00", Format(last))
	assert.Equal(t, int32(1), expired.Load())
	assert.False(t, cd.Running())

	// Further clock movement changes nothing.
	fc.Advance(10 * time.Second)
	assert.Equal(t, int32(1), expired.Load())
	assert.Empty(t, ticks)
}

func TestCountdownStopPreventsExpiry(t *testing.T) {
	fc := clockwork.NewFakeClock()
	ticks := make(chan time.Duration, 16)
	var expired atomic.Int32

	cd := NewCountdown(fc, 3*time.Second, func(d time.Duration) { ticks <- d }, func() { expired.Add(1) })
	cd.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	fc.Advance(time.Second)
	assert.Equal(t, 2*time.Second, waitTick(t, ticks))

	cd.Stop()
	cd.Stop()
	<-cd.Done()

	fc.Advance(5 * time.Second)
	assert.Empty(t, ticks)
	assert.Equal(t, int32(0), expired.Load())
	assert.Equal(t, 2*time.Second, cd.Remaining())
}

func TestCountdownStopBeforeStart(t *testing.T) {
	cd := NewCountdown(clockwork.NewFakeClock(), time.Minute, nil, nil)
	cd.Stop()
	select {
	case <-cd.Done():
	default:
		t.Fatal("Done should be closed for a countdown stopped before start")
	}
	cd.Start()
	assert.False(t, cd.Running())
}

func TestCountdownZeroExpiresImmediately(t *testing.T) {
	var expired atomic.Int32
	cd := NewCountdown(clockwork.NewFakeClock(), 0, nil, func() { expired.Add(1) })
	cd.Start()
	<-cd.Done()
	assert.Equal(t, int32(1), expired.Load())
}

func TestStopwatch(t *testing.T) {
	fc := clockwork.NewFakeClock()
	ticks := make(chan time.Duration, 16)
	sw := NewStopwatch(fc, func(d time.Duration) { ticks <- d })
	sw.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	fc.Advance(time.Second)
	assert.Equal(t, time.Second, waitTick(t, ticks))

	fc.Advance(1500 * time.Millisecond)
	waitTick(t, ticks)
	got := sw.Stop()
	assert.Equal(t, 2500*time.Millisecond, got)

	fc.Advance(time.Minute)
	assert.Equal(t, got, sw.Elapsed())
}
