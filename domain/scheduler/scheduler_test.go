package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvanceStopsAtHorizon(t *testing.T) {
	s, err := New(100*time.Millisecond, time.Second)
	require.NoError(t, err)

	var windows []Window
	for s.Advance() {
		windows = append(windows, s.Window())
	}
	require.Len(t, windows, 10)
	assert.Equal(t, int64(10), s.Ticks())
	assert.Equal(t, Window{Index: 0, Start: 0, End: 100 * time.Millisecond}, windows[0])
	assert.Equal(t, 900*time.Millisecond, windows[9].Start)
	assert.False(t, s.Advance(), "advance past horizon must stay false")
}

func TestPartialFinalWindow(t *testing.T) {
	s, err := New(300*time.Millisecond, time.Second)
	require.NoError(t, err)
	n := 0
	for s.Advance() {
		n++
	}
	assert.Equal(t, 4, n)
	assert.Equal(t, int64(4), s.Ticks())
}

func TestInvalidClock(t *testing.T) {
	_, err := New(0, time.Second)
	assert.True(t, errors.Is(err, ErrInvalidClock))
	_, err = New(time.Second, -1)
	assert.True(t, errors.Is(err, ErrInvalidClock))
}

func TestTimersFireInOrder(t *testing.T) {
	s, err := New(time.Second, 10*time.Second)
	require.NoError(t, err)

	s.Schedule("b", 2500*time.Millisecond, 1)
	s.Schedule("a", 2500*time.Millisecond, 2)
	s.Schedule("a", 1200*time.Millisecond, 3)
	s.Schedule("a", 5*time.Second, 4)

	var fired [][]uint64
	for s.Advance() {
		var tags []uint64
		for _, tm := range s.Due() {
			assert.True(t, s.Window().Contains(tm.At))
			tags = append(tags, tm.Tag)
		}
		fired = append(fired, tags)
	}
	assert.Nil(t, fired[0])
	assert.Equal(t, []uint64{3}, fired[1])
	assert.Equal(t, []uint64{1, 2}, fired[2])
	assert.Equal(t, []uint64{4}, fired[5])
}

func TestLateTimerFiresNextWindow(t *testing.T) {
	s, err := New(time.Second, 5*time.Second)
	require.NoError(t, err)
	require.True(t, s.Advance())
	assert.Empty(t, s.Due())

	s.Schedule("a", 0, 7)
	require.True(t, s.Advance())
	due := s.Due()
	require.Len(t, due, 1)
	assert.Equal(t, uint64(7), due[0].Tag)
}

func TestCancelTimer(t *testing.T) {
	s, err := New(time.Second, 5*time.Second)
	require.NoError(t, err)

	keep := s.Schedule("a", 3*time.Second, 1)
	drop := s.Schedule("a", 2*time.Second, 2)
	s.Schedule("b", 2*time.Second, 3)

	assert.False(t, s.Cancel("b", drop), "foreign owner cannot cancel")
	assert.True(t, s.Cancel("a", drop))
	assert.False(t, s.Cancel("a", drop))
	assert.Equal(t, 1, s.Pending("a"))

	var tags []uint64
	for s.Advance() {
		for _, tm := range s.Due() {
			tags = append(tags, tm.Tag)
		}
	}
	assert.Equal(t, []uint64{3, 1}, tags)
	assert.False(t, s.Cancel("a", keep), "fired timer cannot be cancelled")
}

func TestRealtimePacerSpacesTicks(t *testing.T) {
	p := NewRealtimePacer(time.Second, 10)
	assert.Equal(t, 100*time.Millisecond, p.Interval())

	clock := time.Unix(0, 0)
	var slept []time.Duration
	p.now = func() time.Time { return clock }
	p.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		clock = clock.Add(d)
		return nil
	}

	ctx := context.Background()
	require.NoError(t, p.Wait(ctx))
	clock = clock.Add(30 * time.Millisecond)
	require.NoError(t, p.Wait(ctx))
	clock = clock.Add(150 * time.Millisecond)
	require.NoError(t, p.Wait(ctx))

	assert.Equal(t, []time.Duration{70 * time.Millisecond}, slept)
}

func TestPacerHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, NopPacer{}.Wait(ctx))

	p := NewRealtimePacer(time.Hour, 1)
	require.Error(t, p.Wait(ctx))
}
