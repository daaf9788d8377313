// Package aggregator merges kline streams of several feeds into a single
// consolidated stream per "symbol:interval", so one chart can follow a
// market across exchanges.
package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/yitech/candlechart/adapter"
	"github.com/yitech/candlechart/model/candle"
)

// Name is the Exchange of merged klines.
const Name = "merged"

// MaxHistory is the target history size after a trim. The buffer grows
// freely until it hits 2*MaxHistory, then trims back.
const MaxHistory = 365

// Aggregator multiplexes kline updates from multiple feeds.
//
// Closed semantics: a period is closed only when every feed has confirmed
// it. If one feed starts the next period before another has closed the
// current one, the current period is force-closed immediately. Late updates
// for a finalized period are dropped.
type Aggregator struct {
	adapters []adapter.Adapter
	symbols  map[string]string
	maxLimit int
	log      *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc

	mu     sync.Mutex
	states map[string]*symState
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithSymbol overrides the symbol passed to the named feed, for exchanges
// that spell instruments differently ("BTC-USDT" vs "BTCUSDT").
func WithSymbol(feed, symbol string) Option {
	return func(a *Aggregator) { a.symbols[feed] = symbol }
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) { a.log = logger }
}

// symState holds runtime data for one "symbol:interval" key.
type symState struct {
	mu       sync.Mutex
	setup    bool
	setupErr error

	tokens    []adapter.Token
	history   []candle.Kline
	pending   map[int64]*pendingKline
	finalized map[int64]struct{}

	handlers map[uint64]adapter.KlineHandler
	nextID   uint64
}

// pendingKline is the merged state of one period across all feeds.
type pendingKline struct {
	agg         candle.Kline
	perExchange map[string]candle.Kline
	closedBy    map[string]struct{}
	last        string
}

type handlerToken struct {
	id    uint64
	state *symState
}

func (t *handlerToken) Unsubscribe() {
	t.state.mu.Lock()
	delete(t.state.handlers, t.id)
	t.state.mu.Unlock()
}

// New creates an Aggregator over the given feeds.
func New(adapters []adapter.Adapter, opts ...Option) *Aggregator {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Aggregator{
		adapters: adapters,
		symbols:  make(map[string]string),
		maxLimit: MaxHistory,
		log:      slog.Default(),
		ctx:      ctx,
		cancel:   cancel,
		states:   make(map[string]*symState),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Aggregator) Name() string { return Name }

func (a *Aggregator) symbolFor(feed, symbol string) string {
	if s, ok := a.symbols[feed]; ok {
		return s
	}
	return symbol
}

// Subscribe registers handler for merged updates of symbol/interval. Feed
// subscriptions are created on the first call for each key and live until
// Close; ctx only bounds the handler registration.
func (a *Aggregator) Subscribe(ctx context.Context, symbol, interval string, handler adapter.KlineHandler) (adapter.Token, error) {
	key := symbol + ":" + interval
	state := a.getOrCreateState(key)

	// Register before starting feeds so no early update is missed.
	state.mu.Lock()
	id := state.nextID
	state.nextID++
	state.handlers[id] = handler
	needsSetup := !state.setup
	if needsSetup {
		state.setup = true
	}
	state.mu.Unlock()

	tok := &handlerToken{id: id, state: state}
	if needsSetup {
		tokens, err := a.startFeeds(key, symbol, interval, state)
		state.mu.Lock()
		if err != nil {
			state.setup = false
			delete(state.handlers, id)
		} else {
			state.tokens = tokens
		}
		state.setupErr = err
		state.mu.Unlock()
		if err != nil {
			return nil, err
		}
	} else {
		state.mu.Lock()
		err := state.setupErr
		if err != nil {
			delete(state.handlers, id)
		}
		state.mu.Unlock()
		if err != nil {
			return nil, err
		}
	}

	context.AfterFunc(ctx, tok.Unsubscribe)
	return tok, nil
}

// Backfill fetches history from every feed, merges it by open time and
// returns it in chronological order.
func (a *Aggregator) Backfill(ctx context.Context, symbol, interval string, start, end time.Time) ([]candle.Kline, error) {
	groups := make(map[int64]map[string]candle.Kline)
	for _, ad := range a.adapters {
		batch, err := ad.Backfill(ctx, a.symbolFor(ad.Name(), symbol), interval, start, end)
		if err != nil {
			return nil, fmt.Errorf("aggregator: backfill %s:%s from %s: %w", symbol, interval, ad.Name(), err)
		}
		for _, k := range batch {
			if groups[k.OpenTime] == nil {
				groups[k.OpenTime] = make(map[string]candle.Kline)
			}
			groups[k.OpenTime][k.Exchange] = k
		}
	}

	times := slices.Sorted(maps.Keys(groups))
	out := make([]candle.Kline, 0, len(times))
	for _, t := range times {
		agg := merge(groups[t], "")
		agg.Symbol = symbol
		agg.IsClosed = true
		out = append(out, agg)
	}
	return out, nil
}

// History returns the finalized merged klines of symbol/interval.
func (a *Aggregator) History(symbol, interval string) []candle.Kline {
	a.mu.Lock()
	state, ok := a.states[symbol+":"+interval]
	a.mu.Unlock()
	if !ok {
		return nil
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return slices.Clone(state.history)
}

// Close cancels all feed subscriptions managed by the aggregator.
func (a *Aggregator) Close() error {
	a.cancel()
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, state := range a.states {
		state.mu.Lock()
		for _, tok := range state.tokens {
			tok.Unsubscribe()
		}
		state.tokens = nil
		state.mu.Unlock()
	}
	return nil
}

// ── internal ─────────────────────────────────────────────────────────────────

func (a *Aggregator) getOrCreateState(key string) *symState {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.states[key]; ok {
		return s
	}
	s := &symState{
		pending:   make(map[int64]*pendingKline),
		finalized: make(map[int64]struct{}),
		handlers:  make(map[uint64]adapter.KlineHandler),
	}
	a.states[key] = s
	return s
}

func (a *Aggregator) startFeeds(key, symbol, interval string, state *symState) ([]adapter.Token, error) {
	tokens := make([]adapter.Token, 0, len(a.adapters))
	for _, ad := range a.adapters {
		tok, err := ad.Subscribe(a.ctx, a.symbolFor(ad.Name(), symbol), interval, func(k candle.Kline) {
			k.Symbol = symbol
			a.handleKline(state, k)
		})
		if err != nil {
			for _, t := range tokens {
				t.Unsubscribe()
			}
			return nil, fmt.Errorf("aggregator: %s: subscribe %s: %w", key, ad.Name(), err)
		}
		tokens = append(tokens, tok)
	}
	a.log.Info("merged feed started", "key", key, "feeds", len(tokens))
	return tokens, nil
}

// handleKline is called by every feed for every update.
func (a *Aggregator) handleKline(state *symState, k candle.Kline) {
	openTime := k.OpenTime
	var toPublish []candle.Kline

	state.mu.Lock()

	if _, done := state.finalized[openTime]; done {
		state.mu.Unlock()
		return
	}

	// Force-close older periods: another feed has moved on before this one
	// confirmed the close.
	for _, t := range slices.Sorted(maps.Keys(state.pending)) {
		if t >= openTime {
			break
		}
		p := state.pending[t]
		p.agg.IsClosed = true
		a.appendHistory(state, p.agg)
		toPublish = append(toPublish, p.agg)
		delete(state.pending, t)
		state.finalized[t] = struct{}{}
	}

	p, ok := state.pending[openTime]
	if !ok {
		p = &pendingKline{
			perExchange: make(map[string]candle.Kline),
			closedBy:    make(map[string]struct{}),
		}
		state.pending[openTime] = p
	}

	p.perExchange[k.Exchange] = k
	p.last = k.Exchange
	if k.IsClosed {
		p.closedBy[k.Exchange] = struct{}{}
	}
	p.agg = merge(p.perExchange, p.last)

	if len(p.closedBy) == len(a.adapters) {
		p.agg.IsClosed = true
		a.appendHistory(state, p.agg)
		delete(state.pending, openTime)
		state.finalized[openTime] = struct{}{}
	}
	toPublish = append(toPublish, p.agg)

	hs := slices.Collect(maps.Values(state.handlers))
	state.mu.Unlock()

	for _, out := range toPublish {
		for _, h := range hs {
			h(out)
		}
	}
}

// appendHistory appends k and trims once the buffer exceeds 2*maxLimit.
// Caller holds state.mu.
func (a *Aggregator) appendHistory(state *symState, k candle.Kline) {
	state.history = append(state.history, k)
	if len(state.history) > a.maxLimit*2 {
		state.history = slices.Clone(state.history[len(state.history)-a.maxLimit:])
	}
}

// merge combines per-feed klines of one period: open from the
// alphabetically first feed, high max, low min, close from the feed updated
// last (or the first feed when last is empty), volume summed.
func merge(perEx map[string]candle.Kline, last string) candle.Kline {
	names := slices.Sorted(maps.Keys(perEx))
	agg := perEx[names[0]]
	agg.Exchange = Name
	agg.IsClosed = false
	agg.Volume = 0
	for _, n := range names {
		k := perEx[n]
		agg.High = math.Max(agg.High, k.High)
		agg.Low = math.Min(agg.Low, k.Low)
		agg.Volume += k.Volume
	}
	if k, ok := perEx[last]; ok {
		agg.Close = k.Close
	}
	// The merged close may come from a feed whose range differs.
	agg.High = math.Max(agg.High, math.Max(agg.Open, agg.Close))
	agg.Low = math.Min(agg.Low, math.Min(agg.Open, agg.Close))
	return agg
}
