// Package scheduler coalesces bursts of incoming ticks into bounded-rate
// flushes.
package scheduler

import (
	"time"

	"golang.org/x/time/rate"
)

// DefaultInterval is the minimum spacing between two flushes.
const DefaultInterval = 500 * time.Millisecond

// Action tells the caller what to do after a Push.
type Action int

const (
	// FlushNow: a flush slot is free; drain and redraw immediately.
	FlushNow Action = iota
	// Defer: arrange for Flush to be called after Decision.Delay with Decision.Gen.
	Defer
	// Coalesced: a deferred flush is already pending and will pick this entry up.
	Coalesced
)

func (a Action) String() string {
	switch a {
	case FlushNow:
		return "flush-now"
	case Defer:
		return "defer"
	case Coalesced:
		return "coalesced"
	}
	return "unknown"
}

// Decision is the result of Push.
type Decision struct {
	Action Action
	Delay  time.Duration
	Gen    uint64
}

// Batch is the pending queue of not-yet-applied entries plus the throttle
// that decides when they may be flushed. It is not safe for concurrent use;
// the owning loop serialises all calls.
type Batch[T any] struct {
	limiter   *rate.Limiter
	now       func() time.Time
	pending   []T
	scheduled bool
	reserved  *rate.Reservation
	gen       uint64
	flushes   uint64
}

// New creates a batch throttled to one flush per interval. now may be nil.
func New[T any](interval time.Duration, now func() time.Time) *Batch[T] {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if now == nil {
		now = time.Now
	}
	return &Batch[T]{
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		now:     now,
	}
}

// Push queues entry and decides when the queue should be flushed.
func (b *Batch[T]) Push(entry T) Decision {
	b.pending = append(b.pending, entry)
	if b.scheduled {
		return Decision{Action: Coalesced, Gen: b.gen}
	}
	t := b.now()
	if b.limiter.AllowN(t, 1) {
		return Decision{Action: FlushNow, Gen: b.gen}
	}
	b.reserved = b.limiter.ReserveN(t, 1)
	b.scheduled = true
	return Decision{Action: Defer, Delay: b.reserved.DelayFrom(t), Gen: b.gen}
}

// Due reports whether a deferred flush issued for gen still has work to do.
// A flush scheduled before a Reset is moot.
func (b *Batch[T]) Due(gen uint64) bool {
	return gen == b.gen && len(b.pending) > 0
}

// Drain removes and returns every pending entry in arrival order.
func (b *Batch[T]) Drain() []T {
	out := b.pending
	b.pending = nil
	b.scheduled = false
	b.reserved = nil
	if len(out) > 0 {
		b.flushes++
	}
	return out
}

// Reset drops pending entries and invalidates any flush already scheduled.
func (b *Batch[T]) Reset() {
	if b.reserved != nil {
		b.reserved.CancelAt(b.now())
		b.reserved = nil
	}
	b.pending = nil
	b.scheduled = false
	b.gen++
}

// Last returns the most recently pushed pending entry.
func (b *Batch[T]) Last() (T, bool) {
	if len(b.pending) == 0 {
		var zero T
		return zero, false
	}
	return b.pending[len(b.pending)-1], true
}

// Len returns the number of pending entries.
func (b *Batch[T]) Len() int { return len(b.pending) }

// Scheduled reports whether a deferred flush is outstanding.
func (b *Batch[T]) Scheduled() bool { return b.scheduled }

// Flushes returns how many non-empty drains have happened.
func (b *Batch[T]) Flushes() uint64 { return b.flushes }
