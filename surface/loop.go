package surface

import (
	"context"
	"errors"
	"time"

	"github.com/yitech/candlechart/protocol"
)

// ErrStopped is returned when submitting to a loop that is no longer running.
var ErrStopped = errors.New("surface: loop stopped")

type job func(*Surface) (Schedule, bool)

// Loop drives a Surface from a single goroutine. Transports submit records
// from any goroutine; deferred flushes come back through the same loop, so
// the surface never sees concurrent calls.
type Loop struct {
	s       *Surface
	input   chan job
	flushes chan uint64
	done    chan struct{}
}

// NewLoop wraps s. Nothing runs until Run is called.
func NewLoop(s *Surface) *Loop {
	return &Loop{
		s:       s,
		input:   make(chan job, 256),
		flushes: make(chan uint64, 16),
		done:    make(chan struct{}),
	}
}

// Run processes submissions until ctx is cancelled. It must be called once.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case gen := <-l.flushes:
			l.s.Flush(gen)
		case fn := <-l.input:
			sch, ok := fn(l.s)
			if !ok {
				continue
			}
			// At most one deferred flush is outstanding; a newer schedule
			// supersedes one made moot by a reset.
			if timer != nil {
				timer.Stop()
			}
			gen := sch.Gen
			timer = time.AfterFunc(sch.Delay, func() {
				select {
				case l.flushes <- gen:
				case <-l.done:
				}
			})
		}
	}
}

func (l *Loop) enqueue(ctx context.Context, fn job) error {
	select {
	case l.input <- fn:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit queues a wire record. Validation failures are reported as error
// events, not returned.
func (l *Loop) Submit(ctx context.Context, rec protocol.Record) error {
	return l.enqueue(ctx, func(s *Surface) (Schedule, bool) { return s.Receive(rec) })
}

// SubmitCommand queues a typed command. It is validated on the loop like a
// decoded record; invalid or nil commands become error events.
func (l *Loop) SubmitCommand(ctx context.Context, cmd protocol.Command) error {
	return l.enqueue(ctx, func(s *Surface) (Schedule, bool) { return s.Handle(cmd) })
}

// Do runs fn on the loop goroutine and waits for it to return.
func (l *Loop) Do(ctx context.Context, fn func(*Surface)) error {
	finished := make(chan struct{})
	err := l.enqueue(ctx, func(s *Surface) (Schedule, bool) {
		defer close(finished)
		fn(s)
		return Schedule{}, false
	})
	if err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} { return l.done }
