// Package surface is the render surface facade: it receives protocol
// commands, mutates the candle store, viewport and highlight state, hands
// frames to a plotter and emits events back to the host.
package surface

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/yitech/candlechart/highlight"
	"github.com/yitech/candlechart/model/candle"
	"github.com/yitech/candlechart/plot"
	"github.com/yitech/candlechart/protocol"
	"github.com/yitech/candlechart/scheduler"
	"github.com/yitech/candlechart/store"
	"github.com/yitech/candlechart/viewport"
)

// Phase is the facade-level lifecycle.
type Phase int

const (
	Uninitialized Phase = iota
	Loading
	Ready
)

func (p Phase) String() string {
	switch p {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// EventSink receives events in emission order. Emit is called from the
// surface's single writer and must not block it.
type EventSink interface {
	Emit(ev protocol.Event)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(protocol.Event)

func (f SinkFunc) Emit(ev protocol.Event) { f(ev) }

// Config tunes a surface.
type Config struct {
	// Throttle is the minimum spacing between tick flushes.
	Throttle time.Duration
	// MaxCandles bounds the store; see store.New.
	MaxCandles int
	// Timeframe is used to fit the viewport when ticks arrive before any setData.
	Timeframe string
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// Option configures optional collaborators.
type Option func(*Surface)

func WithSink(sink EventSink) Option { return func(s *Surface) { s.sink = sink } }
func WithPlotter(p plot.Plotter) Option { return func(s *Surface) { s.plotter = p } }
func WithLogger(logger *slog.Logger) Option { return func(s *Surface) { s.log = logger } }
func WithMetrics(m *Metrics) Option { return func(s *Surface) { s.metrics = m } }

// Schedule asks the owner of the surface to call Flush(Gen) after Delay.
type Schedule struct {
	Delay time.Duration
	Gen   uint64
}

// Surface owns all chart state for one chart instance. It is not safe for
// concurrent use: one goroutine (a Loop or a bubbletea program) drives it.
type Surface struct {
	store     *store.Store
	view      *viewport.Controller
	batch     *scheduler.Batch[store.Bar]
	hl        highlight.State
	phase     Phase
	timeframe string
	readySent bool

	sink    EventSink
	plotter plot.Plotter
	log     *slog.Logger
	metrics *Metrics
}

// New creates a surface in the Uninitialized phase.
func New(cfg Config, opts ...Option) *Surface {
	s := &Surface{
		hl:        highlight.New(),
		timeframe: cfg.Timeframe,
		sink:      SinkFunc(func(protocol.Event) {}),
		plotter:   plot.Discard,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.store = store.New(cfg.MaxCandles, s.log)
	s.view = viewport.NewController(s.store)
	s.batch = scheduler.New[store.Bar](cfg.Throttle, cfg.Now)
	return s
}

// Receive validates a wire record and handles it. Malformed records are
// dropped with an error event.
func (s *Surface) Receive(rec protocol.Record) (Schedule, bool) {
	cmd, err := protocol.Decode(rec)
	if err != nil {
		s.metrics.failure(KindProtocol)
		s.fail(err.Error())
		return Schedule{}, false
	}
	return s.Handle(cmd)
}

// Handle applies one command. When the result's bool is true the caller must
// arrange a call to Flush with the returned generation after the delay.
// Commands with invalid values are dropped with an error event.
func (s *Surface) Handle(cmd protocol.Command) (sch Schedule, ok bool) {
	if cmd == nil {
		s.metrics.failure(KindProtocol)
		s.fail((&protocol.ProtocolError{Reason: "missing command"}).Error())
		return Schedule{}, false
	}
	kind := cmd.Kind()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("command panicked", "command", kind, "panic", r)
			s.metrics.failure(KindInternal)
			s.fail(fmt.Sprintf("internal error handling %s", kind))
			sch, ok = Schedule{}, false
		}
	}()
	s.metrics.command(kind)
	if err := protocol.Validate(cmd); err != nil {
		s.metrics.failure(KindProtocol)
		s.fail(err.Error())
		return Schedule{}, false
	}

	switch c := cmd.(type) {
	case protocol.Initialize:
		s.initialize(c)
	case protocol.SetData:
		s.setData(c)
	case protocol.AddTick:
		return s.addTick(c)
	case protocol.ChangeChartType:
		s.hl.SetChartType(c.Type)
		s.view.SetExtent(s.hl.Extent())
		s.view.AutoScale()
		s.draw()
	case protocol.ToggleIndicators:
		s.hl.SetIndicators(c.Show)
		s.draw()
	case protocol.ZoomIn:
		s.zoom(viewport.ZoomInFactor)
	case protocol.ZoomOut:
		s.zoom(viewport.ZoomOutFactor)
	case protocol.Pan:
		if s.view.Pan(c.Offset) {
			s.draw()
		}
	case protocol.AutoScale:
		if s.view.AutoScale() {
			s.draw()
		}
	case protocol.HighlightPrice:
		s.highlight(c.Price, nil)
	case protocol.SelectMarketPrice:
		last, ok := s.store.Last()
		if !ok {
			s.log.Debug("selectMarketPrice on empty chart ignored")
			return Schedule{}, false
		}
		s.highlight(last.Close, &last.Time)
	case protocol.Clear:
		s.clear()
	default:
		s.metrics.failure(KindProtocol)
		s.fail("unsupported command " + kind)
	}
	return Schedule{}, false
}

// Flush applies the pending ticks scheduled under gen. A flush scheduled
// before a clear or setData is moot and does nothing.
func (s *Surface) Flush(gen uint64) bool {
	if !s.batch.Due(gen) {
		s.log.Debug("skipping moot flush", "gen", gen)
		return false
	}
	s.flush()
	return true
}

// Redraw hands the current state to the plotter again, e.g. after the
// drawing area changed size.
func (s *Surface) Redraw() { s.draw() }

// Interact reports a user gesture on the chart to the host.
func (s *Surface) Interact(action string, x, y float64) {
	s.sink.Emit(protocol.ChartInteraction{Action: action, X: x, Y: y})
}

// SelectAt highlights the price under a point of the plot area, given as
// fractions from the left and top edges, and reports the candle time there.
func (s *Surface) SelectAt(fx, fy float64) bool {
	vp, ok := s.view.Viewport()
	if !ok {
		return false
	}
	price := vp.PriceAt(fy)
	var at *int64
	if c, ok := s.store.Nearest(vp.TimeAt(fx)); ok {
		at = &c.Time
	}
	s.highlight(price, at)
	return true
}

func (s *Surface) initialize(c protocol.Initialize) {
	s.hl.SetChartType(c.ChartType)
	s.hl.SetIndicators(c.IndicatorsVisible)
	s.view.SetExtent(s.hl.Extent())
	if s.phase == Uninitialized {
		s.phase = Loading
	}
	s.log.Info("surface initialized", "chart_type", c.ChartType, "indicators", c.IndicatorsVisible)
	s.draw()
}

func (s *Surface) setData(c protocol.SetData) {
	bars := make([]store.Bar, len(c.Candles))
	for i, in := range c.Candles {
		bars[i] = store.Bar{
			Candle: candle.Candle{Time: in.Time, Open: in.Open, High: in.High, Low: in.Low, Close: in.Close},
			Volume: in.Volume,
		}
	}
	// Ticks queued before the bulk load belong to the replaced series.
	s.batch.Reset()
	rep := s.store.SetData(bars)
	s.metrics.repaired(rep.Repaired)

	s.timeframe = c.Timeframe
	s.view.SetExtent(s.hl.Extent())
	s.view.FitToTimeframe(c.Timeframe)
	s.phase = Ready
	s.log.Info("series loaded", "candles", rep.Loaded, "repaired", rep.Repaired,
		"duplicates", rep.Duplicates, "timeframe", c.Timeframe)
	s.draw()
}

// tail is the time of the newest candle once pending ticks are applied.
func (s *Surface) tail() (int64, bool) {
	if b, ok := s.batch.Last(); ok {
		return b.Candle.Time, true
	}
	if c, ok := s.store.Last(); ok {
		return c.Time, true
	}
	return 0, false
}

func (s *Surface) addTick(c protocol.AddTick) (Schedule, bool) {
	// Regressions are rejected on receipt so the error event keeps its place
	// in command order even when the flush is deferred.
	if last, ok := s.tail(); ok && c.Time < last {
		err := &store.OutOfOrderError{Time: c.Time, Last: last}
		s.metrics.failure(KindOutOfOrder)
		s.fail(err.Error())
		return Schedule{}, false
	}
	s.metrics.tick()

	d := s.batch.Push(store.Bar{
		Candle: candle.Candle{Time: c.Time, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close},
		Volume: c.Volume,
	})
	switch d.Action {
	case scheduler.FlushNow:
		s.flush()
	case scheduler.Defer:
		return Schedule{Delay: d.Delay, Gen: d.Gen}, true
	}
	return Schedule{}, false
}

func (s *Surface) flush() {
	bars := s.batch.Drain()
	if len(bars) == 0 {
		return
	}
	prev, hadPrev := s.store.Last()

	for _, b := range bars {
		res, err := s.store.Upsert(b.Candle, b.Volume)
		if err != nil {
			// Unreachable while addTick checks the tail; kept so a store
			// rejection can never be silent.
			s.metrics.failure(KindOutOfOrder)
			s.fail(err.Error())
			continue
		}
		if res.Repaired {
			s.metrics.repaired(1)
		}
	}
	s.metrics.flushed(len(bars))

	last, _ := s.store.Last()
	if _, ok := s.view.Viewport(); !ok {
		s.view.SetExtent(s.hl.Extent())
		s.view.FitToTimeframe(s.timeframe)
	} else if hadPrev {
		s.view.Follow(prev.Time, last.Time)
	}
	s.view.AutoScale()
	s.draw()
}

func (s *Surface) zoom(factor float64) {
	ok, err := s.view.Zoom(factor)
	if err != nil {
		s.metrics.failure(KindInternal)
		s.fail(err.Error())
		return
	}
	if ok {
		s.draw()
	}
}

func (s *Surface) highlight(price float64, at *int64) {
	s.hl.Highlight(price)
	s.view.CenterOn(price)
	s.sink.Emit(protocol.PriceSelected{Price: price, Time: at})
	s.draw()
}

func (s *Surface) clear() {
	s.batch.Reset()
	s.store.Clear()
	s.view.Reset()
	s.hl.ClearPrice()
	s.phase = Loading
	s.log.Info("chart cleared")
	s.draw()
}

func (s *Surface) fail(msg string) {
	s.log.Warn("command rejected", "error", msg, "phase", s.phase.String())
	s.sink.Emit(protocol.Error{Message: msg})
}

// draw hands exactly one frame to the plotter.
func (s *Surface) draw() {
	f := plot.Frame{
		ChartType:         s.hl.ChartType(),
		IndicatorsVisible: s.hl.IndicatorsVisible(),
		Total:             s.store.Len(),
	}
	f.Price, f.HasPrice = s.hl.Price()
	f.Last, f.HasLast = s.store.Last()
	if vp, ok := s.view.Viewport(); ok {
		f.Viewport = vp
		f.Candles = s.store.Window(vp.XMin, vp.XMax)
		f.Volumes = s.store.VolumeWindow(vp.XMin, vp.XMax)
	}
	s.plotter.Draw(f)
	s.metrics.drew(f.Total)

	if s.phase == Ready && !s.readySent {
		s.readySent = true
		s.sink.Emit(protocol.Ready{})
	}
}

// ── read access ──────────────────────────────────────────────────────────────

func (s *Surface) Phase() Phase { return s.phase }
func (s *Surface) Timeframe() string { return s.timeframe }
func (s *Surface) Candles() []candle.Candle { return s.store.Candles() }
func (s *Surface) Volumes() []candle.VolumeBar { return s.store.Volumes() }
func (s *Surface) Viewport() (viewport.Viewport, bool) { return s.view.Viewport() }
func (s *Surface) Price() (float64, bool) { return s.hl.Price() }
func (s *Surface) ChartType() protocol.ChartType { return s.hl.ChartType() }
func (s *Surface) IndicatorsVisible() bool { return s.hl.IndicatorsVisible() }
func (s *Surface) Pending() int { return s.batch.Len() }
func (s *Surface) Flushes() uint64 { return s.batch.Flushes() }
