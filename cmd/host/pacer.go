package main

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/yitech/candlechart/model/candle"
	"github.com/yitech/candlechart/protocol"
)

// pacer forwards klines no faster than one batch per interval. Updates of the
// same candle that arrive between two batches collapse into the newest one,
// and klines older than the series tail are dropped because the surface would
// reject them.
type pacer struct {
	limiter *rate.Limiter
	wake    chan struct{}

	mu      sync.Mutex
	pending []candle.Kline
	tail    int64
	hasTail bool
	dropped int
}

func newPacer(every time.Duration, tail int64, hasTail bool) *pacer {
	return &pacer{
		limiter: rate.NewLimiter(rate.Every(every), 1),
		wake:    make(chan struct{}, 1),
		tail:    tail,
		hasTail: hasTail,
	}
}

// Push queues k. It is safe to call from adapter goroutines.
func (p *pacer) Push(k candle.Kline) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hasTail && k.OpenTime < p.tail {
		p.dropped++
		return false
	}
	if n := len(p.pending); n > 0 && p.pending[n-1].OpenTime == k.OpenTime {
		p.pending[n-1] = k
	} else {
		p.pending = append(p.pending, k)
	}
	p.tail, p.hasTail = k.OpenTime, true

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return true
}

// Dropped returns how many klines were discarded as out of order.
func (p *pacer) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

func (p *pacer) take() []candle.Kline {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.pending
	p.pending = nil
	return out
}

// Run sends queued klines until ctx is done or send fails.
func (p *pacer) Run(ctx context.Context, send func(candle.Kline) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.wake:
		}
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
		for _, k := range p.take() {
			if err := send(k); err != nil {
				return err
			}
		}
	}
}

func candleInput(k candle.Kline) protocol.CandleInput {
	vol := k.Volume
	return protocol.CandleInput{Time: k.OpenTime, Open: k.Open, High: k.High, Low: k.Low, Close: k.Close, Volume: &vol}
}

func addTick(k candle.Kline) protocol.AddTick {
	vol := k.Volume
	return protocol.AddTick{Time: k.OpenTime, Open: k.Open, High: k.High, Low: k.Low, Close: k.Close, Volume: &vol}
}
