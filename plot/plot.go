// Package plot is the drawing capability the render surface delegates to.
// The surface decides what is visible; a Plotter only turns a Frame into
// pixels, cells or anything else.
package plot

import (
	"github.com/yitech/candlechart/model/candle"
	"github.com/yitech/candlechart/protocol"
	"github.com/yitech/candlechart/viewport"
)

// Frame is one complete redraw.
type Frame struct {
	Viewport          viewport.Viewport
	Candles           []candle.Candle
	Volumes           []candle.VolumeBar
	ChartType         protocol.ChartType
	IndicatorsVisible bool
	Price             float64
	HasPrice          bool
	Last              candle.Candle
	HasLast           bool
	Total             int
}

// Plotter draws frames. Draw is called from the surface's single writer and
// must not retain the slices in f.
type Plotter interface {
	Draw(f Frame)
}

// Func adapts a function to the Plotter interface.
type Func func(Frame)

func (fn Func) Draw(f Frame) { fn(f) }

// Discard is a Plotter that draws nothing, for headless surfaces.
var Discard Plotter = Func(func(Frame) {})
