package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock { return &fakeClock{t: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)} }

func TestBatch_LoneTickFlushesImmediately(t *testing.T) {
	clk := newClock()
	b := New[int](500*time.Millisecond, clk.Now)

	d := b.Push(1)
	assert.Equal(t, FlushNow, d.Action)
	assert.Equal(t, []int{1}, b.Drain())

	// A second lone tick after a quiet period is not delayed either.
	clk.Advance(2 * time.Second)
	assert.Equal(t, FlushNow, b.Push(2).Action)
}

func TestBatch_BurstCoalescesIntoOneFlush(t *testing.T) {
	clk := newClock()
	b := New[int](500*time.Millisecond, clk.Now)
	prime(b)

	const n = 50
	var defers int
	var first Decision
	for i := 0; i < n; i++ {
		clk.Advance(5 * time.Millisecond)
		d := b.Push(i)
		switch d.Action {
		case Defer:
			defers++
			first = d
		case FlushNow:
			t.Fatalf("tick %d flushed inside the throttle interval", i)
		}
	}
	require.Equal(t, 1, defers)
	assert.InDelta(t, float64(495*time.Millisecond), float64(first.Delay), float64(time.Millisecond))
	assert.True(t, b.Scheduled())

	clk.Advance(first.Delay)
	require.True(t, b.Due(first.Gen))
	got := b.Drain()
	assert.Len(t, got, n)
	for i, v := range got {
		assert.Equal(t, i, v, "arrival order")
	}
	assert.Equal(t, uint64(2), b.Flushes())
	assert.False(t, b.Due(first.Gen))
}

func TestBatch_SustainedInputIsCappedPerInterval(t *testing.T) {
	clk := newClock()
	b := New[int](500*time.Millisecond, clk.Now)

	type deferred struct {
		gen uint64
		at  time.Time
	}
	var flushes int
	var pending *deferred
	// 100 ticks per second for 5 seconds.
	for i := 0; i < 500; i++ {
		clk.Advance(10 * time.Millisecond)
		if pending != nil && !clk.Now().Before(pending.at) {
			if b.Due(pending.gen) {
				b.Drain()
				flushes++
			}
			pending = nil
		}
		d := b.Push(i)
		switch d.Action {
		case FlushNow:
			b.Drain()
			flushes++
		case Defer:
			pending = &deferred{gen: d.Gen, at: clk.Now().Add(d.Delay)}
		}
	}
	assert.LessOrEqual(t, flushes, 11)
	assert.GreaterOrEqual(t, flushes, 9)
}

func TestBatch_ResetMakesScheduledFlushMoot(t *testing.T) {
	clk := newClock()
	b := New[int](500*time.Millisecond, clk.Now)
	prime(b)

	d := b.Push(1)
	require.Equal(t, Defer, d.Action)

	b.Reset()
	assert.False(t, b.Due(d.Gen), "pending flush must not fire after reset")
	assert.Zero(t, b.Len())

	// New data after the reset gets its own schedule; the old generation
	// stays moot even though the queue is non-empty again.
	d2 := b.Push(2)
	assert.NotEqual(t, d.Gen, d2.Gen)
	assert.False(t, b.Due(d.Gen))
}

func TestAction_String(t *testing.T) {
	assert.Equal(t, "flush-now", FlushNow.String())
	assert.Equal(t, "defer", Defer.String())
	assert.Equal(t, "coalesced", Coalesced.String())
}

func TestBatch_Last(t *testing.T) {
	b := New[string](time.Second, nil)
	_, ok := b.Last()
	assert.False(t, ok)
	b.Push("a")
	b.Push("b")
	last, ok := b.Last()
	assert.True(t, ok)
	assert.Equal(t, "b", last)
}

// prime spends the free flush slot so the next push is throttled.
func prime(b *Batch[int]) {
	b.Push(-1)
	b.Drain()
}
