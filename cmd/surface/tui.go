package main

import (
	"context"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/yitech/candlechart/plot"
	"github.com/yitech/candlechart/protocol"
	"github.com/yitech/candlechart/surface"
	"github.com/yitech/candlechart/viewport"
)

// panCandles is how many candle periods one arrow key pans.
const panCandles = 5

// ── messages ──────────────────────────────────────────────────────────────────

type recordMsg struct{ rec protocol.Record }

type flushMsg struct{ gen uint64 }

// ── submitter ─────────────────────────────────────────────────────────────────

// programSubmitter hands transport records to the bubbletea program, which is
// the surface's only writer in terminal mode.
type programSubmitter struct {
	records chan<- protocol.Record
	done    chan struct{}
}

func newProgramSubmitter(records chan<- protocol.Record) *programSubmitter {
	return &programSubmitter{records: records, done: make(chan struct{})}
}

func (p *programSubmitter) Submit(ctx context.Context, rec protocol.Record) error {
	select {
	case p.records <- rec:
		return nil
	case <-p.done:
		return surface.ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *programSubmitter) stop() { close(p.done) }

// ── model ─────────────────────────────────────────────────────────────────────

type model struct {
	s       *surface.Surface
	term    *plot.Terminal
	records <-chan protocol.Record
	log     *slog.Logger
}

func newModel(s *surface.Surface, term *plot.Terminal, records <-chan protocol.Record, log *slog.Logger) model {
	return model{s: s, term: term, records: records, log: log}
}

// ── Init / Update / View ──────────────────────────────────────────────────────

func (m model) Init() tea.Cmd {
	return waitForRecord(m.records)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.term.Resize(msg.Width, msg.Height)
		m.s.Redraw()
		return m, nil

	case recordMsg:
		sch, ok := m.s.Receive(msg.rec)
		return m, tea.Batch(waitForRecord(m.records), m.schedule(sch, ok))

	case flushMsg:
		m.s.Flush(msg.gen)
		return m, nil

	case tea.MouseMsg:
		return m, m.mouse(msg)

	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if cmd, ok := m.key(msg.String()); ok {
			return m, m.schedule(m.s.Handle(cmd))
		}
	}

	return m, nil
}

func (m model) View() string {
	return m.term.String()
}

// ── helpers ───────────────────────────────────────────────────────────────────

// waitForRecord blocks on the channel and returns a Cmd that fires recordMsg.
func waitForRecord(ch <-chan protocol.Record) tea.Cmd {
	return func() tea.Msg {
		return recordMsg{<-ch}
	}
}

// schedule turns a deferred flush into a tea.Tick. Ticks made moot by a
// clear or setData come back with a stale generation and are ignored.
func (m model) schedule(sch surface.Schedule, ok bool) tea.Cmd {
	if !ok {
		return nil
	}
	gen := sch.Gen
	return tea.Tick(sch.Delay, func(time.Time) tea.Msg { return flushMsg{gen} })
}

// key maps a key press to the command a host would send for it.
func (m model) key(k string) (protocol.Command, bool) {
	switch k {
	case "+", "=":
		return protocol.ZoomIn{}, true
	case "-", "_":
		return protocol.ZoomOut{}, true
	case "left", "h":
		return protocol.Pan{Offset: -m.panStep()}, true
	case "right", "l":
		return protocol.Pan{Offset: m.panStep()}, true
	case "a":
		return protocol.AutoScale{}, true
	case "m":
		return protocol.SelectMarketPrice{}, true
	case "t":
		next := protocol.Line
		if m.s.ChartType() == protocol.Line {
			next = protocol.Candlestick
		}
		return protocol.ChangeChartType{Type: next}, true
	case "i":
		return protocol.ToggleIndicators{Show: !m.s.IndicatorsVisible()}, true
	case "c":
		return protocol.Clear{}, true
	}
	return nil, false
}

func (m model) panStep() int64 {
	d, ok := viewport.ParseTimeframe(m.s.Timeframe())
	if !ok {
		d = time.Minute
	}
	return panCandles * d.Milliseconds()
}

// mouse reports clicks to the host and highlights the price under them; the
// wheel zooms.
func (m model) mouse(msg tea.MouseMsg) tea.Cmd {
	switch {
	case msg.Button == tea.MouseButtonWheelUp:
		return m.schedule(m.s.Handle(protocol.ZoomIn{}))
	case msg.Button == tea.MouseButtonWheelDown:
		return m.schedule(m.s.Handle(protocol.ZoomOut{}))
	case msg.Button == tea.MouseButtonLeft && msg.Action == tea.MouseActionPress:
		m.s.Interact("click", float64(msg.X), float64(msg.Y))
		if fx, fy, ok := m.term.Locate(msg.X, msg.Y); ok {
			m.s.SelectAt(fx, fy)
		} else {
			m.log.Debug("click outside plot area", "x", msg.X, "y", msg.Y)
		}
	}
	return nil
}
