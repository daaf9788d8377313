package surface

import "github.com/prometheus/client_golang/prometheus"

// Error kinds used as the "kind" label of chart_command_errors_total.
const (
	KindProtocol   = "protocol"
	KindOutOfOrder = "out_of_order"
	KindInternal   = "internal"
)

// Metrics holds the Prometheus metrics of one render surface. A nil *Metrics
// records nothing.
type Metrics struct {
	Commands      *prometheus.CounterVec
	Errors        *prometheus.CounterVec
	Ticks         prometheus.Counter
	Flushes       prometheus.Counter
	BatchSize     prometheus.Histogram
	Repairs       prometheus.Counter
	Draws         prometheus.Counter
	Candles       prometheus.Gauge
	DroppedEvents prometheus.Counter
}

// NewMetrics creates the metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chart_commands_total",
			Help: "Commands received by the render surface, by type",
		}, []string{"type"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chart_command_errors_total",
			Help: "Commands dropped or rejected, by error kind",
		}, []string{"kind"}),
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chart_ticks_total",
			Help: "addTick commands queued for batching",
		}),
		Flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chart_flushes_total",
			Help: "Batch flushes applied to the candle store",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chart_flush_batch_size",
			Help:    "Ticks applied per flush",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}),
		Repairs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chart_candle_repairs_total",
			Help: "Candles whose high/low were clamped to enclose open/close",
		}),
		Draws: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chart_draws_total",
			Help: "Frames handed to the plotter",
		}),
		Candles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chart_candles",
			Help: "Candles currently held in the store",
		}),
		DroppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chart_events_dropped_total",
			Help: "Events not delivered because a host session was too slow",
		}),
	}
	reg.MustRegister(m.Commands, m.Errors, m.Ticks, m.Flushes, m.BatchSize,
		m.Repairs, m.Draws, m.Candles, m.DroppedEvents)
	return m
}

func (m *Metrics) command(kind string) {
	if m != nil {
		m.Commands.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) failure(kind string) {
	if m != nil {
		m.Errors.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) tick() {
	if m != nil {
		m.Ticks.Inc()
	}
}

func (m *Metrics) flushed(n int) {
	if m != nil {
		m.Flushes.Inc()
		m.BatchSize.Observe(float64(n))
	}
}

func (m *Metrics) repaired(n int) {
	if m != nil && n > 0 {
		m.Repairs.Add(float64(n))
	}
}

func (m *Metrics) drew(candles int) {
	if m != nil {
		m.Draws.Inc()
		m.Candles.Set(float64(candles))
	}
}

// EventDropped is called by transports that shed events for slow sessions.
func (m *Metrics) EventDropped() {
	if m != nil {
		m.DroppedEvents.Inc()
	}
}
