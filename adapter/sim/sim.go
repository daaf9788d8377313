// Package sim is a random-walk kline feed for running a chart host without
// exchange connectivity.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/yitech/candlechart/adapter"
	"github.com/yitech/candlechart/model/candle"
	"github.com/yitech/candlechart/viewport"
)

const name = "sim"

// Config tunes the walk.
type Config struct {
	// Base is the starting price.
	Base float64
	// Step is the largest relative move per update, e.g. 0.002.
	Step float64
	// Tick is the live update period.
	Tick time.Duration
	Seed uint64
	Now  func() time.Time
}

// Adapter generates klines. Backfill and Subscribe continue the same walk, so
// live ticks start where the history ends.
type Adapter struct {
	cfg    Config
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	rng   *rand.Rand
	price float64
}

func New(cfg Config, logger *slog.Logger) *Adapter {
	if cfg.Base <= 0 {
		cfg.Base = 40000
	}
	if cfg.Step <= 0 {
		cfg.Step = 0.002
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Adapter{
		cfg:    cfg,
		log:    logger.With("feed", name),
		ctx:    ctx,
		cancel: cancel,
		rng:    rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		price:  cfg.Base,
	}
}

func (a *Adapter) Name() string { return name }

func (a *Adapter) Close() error {
	a.cancel()
	return nil
}

// step advances the walk once and returns the new price.
func (a *Adapter) step() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	move := (a.rng.Float64()*2 - 1) * a.cfg.Step
	a.price = math.Max(a.price*(1+move), 0.01)
	return a.price
}

func period(interval string) (time.Duration, error) {
	d, ok := viewport.ParseTimeframe(interval)
	if !ok {
		return 0, fmt.Errorf("sim: unsupported interval %q", interval)
	}
	return d, nil
}

// Backfill produces closed klines for every period starting in [start, end].
func (a *Adapter) Backfill(ctx context.Context, symbol, interval string, start, end time.Time) ([]candle.Kline, error) {
	d, err := period(interval)
	if err != nil {
		return nil, err
	}
	var out []candle.Kline
	for t := start.Truncate(d); !t.After(end); t = t.Add(d) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		k := a.open(symbol, interval, t, d)
		for range 4 {
			a.update(&k)
		}
		k.IsClosed = true
		out = append(out, k)
	}
	return out, nil
}

// Subscribe emits an update of the current period every Tick, closing the
// period when the clock moves past it.
func (a *Adapter) Subscribe(ctx context.Context, symbol, interval string, handler adapter.KlineHandler) (adapter.Token, error) {
	d, err := period(interval)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(a.ctx, cancel)

	go func() {
		defer stop()
		ticker := time.NewTicker(a.cfg.Tick)
		defer ticker.Stop()

		cur := a.open(symbol, interval, a.cfg.Now().Truncate(d), d)
		a.log.Info("simulated feed started", "symbol", symbol, "interval", interval)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if now := a.cfg.Now().Truncate(d); now.UnixMilli() != cur.OpenTime {
				cur.IsClosed = true
				handler(cur)
				cur = a.open(symbol, interval, now, d)
			}
			a.update(&cur)
			handler(cur)
		}
	}()
	return adapter.CancelToken(cancel), nil
}

func (a *Adapter) open(symbol, interval string, t time.Time, d time.Duration) candle.Kline {
	p := a.step()
	return candle.Kline{
		Exchange:  name,
		Symbol:    symbol,
		Interval:  interval,
		OpenTime:  t.UnixMilli(),
		CloseTime: t.Add(d).UnixMilli() - 1,
		Open:      p,
		High:      p,
		Low:       p,
		Close:     p,
	}
}

func (a *Adapter) update(k *candle.Kline) {
	p := a.step()
	k.Close = p
	k.High = math.Max(k.High, p)
	k.Low = math.Min(k.Low, p)
	a.mu.Lock()
	k.Volume += a.rng.Float64() * 10
	a.mu.Unlock()
}
