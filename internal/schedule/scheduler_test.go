package schedule

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// 2026-10-18 is a Sunday.
func at(day, hour, minute int) time.Time {
	return time.Date(2026, 10, day, hour, minute, 0, 0, time.UTC)
}

// TestActivityTable_Active verifies window boundaries of the default table.
func TestActivityTable_Active(t *testing.T) {
	table := DefaultActivityTable()
	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"sunday before kickoff", at(18, 12, 59), false},
		{"sunday kickoff", at(18, 13, 0), true},
		{"sunday late", at(18, 23, 59), true},
		{"monday midnight", at(19, 0, 0), false},
		{"monday night", at(19, 20, 15), true},
		{"tuesday evening", at(20, 20, 0), false},
		{"thursday night", at(22, 20, 0), true},
		{"saturday afternoon", at(24, 15, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, table.Active(tt.t))
		})
	}
}

// TestScheduler_CurrentInterval verifies interval selection and defaults.
func TestScheduler_CurrentInterval(t *testing.T) {
	clock := clockwork.NewFakeClockAt(at(18, 14, 0))
	s := New(Config{Location: time.UTC}, func(context.Context) {}, clock, testLogger())
	assert.Equal(t, DefaultHighActivityInterval, s.CurrentInterval())

	clock.Advance(12 * time.Hour)
	assert.Equal(t, DefaultIdleInterval, s.CurrentInterval())
	assert.Equal(t, time.Duration(0), s.Interval(), "not armed before Start")
}

// TestScheduler_TicksAtInterval verifies an immediate first tick followed by
// one tick per interval.
func TestScheduler_TicksAtInterval(t *testing.T) {
	clock := clockwork.NewFakeClockAt(at(18, 14, 0))
	var ticks atomic.Int32
	s := New(Config{Location: time.UTC}, func(context.Context) { ticks.Add(1) }, clock, testLogger())

	s.Start(context.Background())
	defer s.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 2))
	assert.Equal(t, int32(1), ticks.Load())
	assert.Equal(t, 3*time.Second, s.Interval())

	clock.Advance(3 * time.Second)
	require.Eventually(t, func() bool { return ticks.Load() == 2 }, time.Second, 5*time.Millisecond)
}

// TestScheduler_RearmsOnReevaluate verifies the ticker switches to the idle
// interval when re-evaluation crosses out of an activity window.
func TestScheduler_RearmsOnReevaluate(t *testing.T) {
	clock := clockwork.NewFakeClockAt(at(18, 23, 30))
	s := New(Config{Location: time.UTC, ReevaluateEvery: time.Hour}, func(context.Context) {}, clock, testLogger())

	s.Start(context.Background())
	defer s.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 2))
	assert.Equal(t, DefaultHighActivityInterval, s.Interval())

	clock.Advance(time.Hour)
	require.Eventually(t, func() bool { return s.Interval() == DefaultIdleInterval }, time.Second, 5*time.Millisecond)
}

// TestScheduler_PanicDoesNotStopLoop verifies a panicking tick is recovered.
func TestScheduler_PanicDoesNotStopLoop(t *testing.T) {
	clock := clockwork.NewFakeClockAt(at(18, 14, 0))
	var ticks atomic.Int32
	s := New(Config{Location: time.UTC}, func(context.Context) {
		ticks.Add(1)
		panic("tick bug")
	}, clock, testLogger())

	s.Start(context.Background())
	defer s.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 2))

	clock.Advance(3 * time.Second)
	require.Eventually(t, func() bool { return ticks.Load() == 2 }, time.Second, 5*time.Millisecond)
}

// TestScheduler_Lifecycle verifies Stop is idempotent, safe before Start and
// prevents a later Start.
func TestScheduler_Lifecycle(t *testing.T) {
	var ticks atomic.Int32
	s := New(Config{}, func(context.Context) { ticks.Add(1) }, clockwork.NewFakeClock(), testLogger())

	s.Stop()
	s.Stop()
	s.Start(context.Background())
	s.Stop()

	assert.Equal(t, int32(0), ticks.Load())
}

// TestScheduler_StopsOnContextCancel verifies the loop exits with its
// parent context.
func TestScheduler_StopsOnContextCancel(t *testing.T) {
	clock := clockwork.NewFakeClockAt(at(18, 14, 0))
	s := New(Config{Location: time.UTC}, func(context.Context) {}, clock, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	s.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after context cancel")
	}
}
