// Package viewport owns the visible time and price window of the chart.
package viewport

import (
	"errors"
	"math"

	"github.com/yitech/candlechart/model/candle"
)

const (
	// ZoomInFactor and ZoomOutFactor scale the visible time range. They are
	// deliberately not reciprocal: an in/out pair leaves 0.9 of the width.
	ZoomInFactor  = 0.6
	ZoomOutFactor = 1.5

	// Padding is added above and below the visible price extent, as a
	// fraction of that extent.
	Padding = 0.1

	// TrailingPadding is the share of the fitted time span kept empty to the
	// right of the newest candle.
	TrailingPadding = 0.1
)

// ErrBadFactor is returned by Zoom for non-positive or non-finite factors.
var ErrBadFactor = errors.New("viewport: zoom factor must be positive and finite")

// Viewport is the visible window. A usable viewport has XMin < XMax and
// YMin < YMax.
type Viewport struct {
	XMin, XMax int64
	YMin, YMax float64
}

func (v Viewport) Valid() bool     { return v.XMin < v.XMax && v.YMin < v.YMax }
func (v Viewport) Width() int64    { return v.XMax - v.XMin }
func (v Viewport) Height() float64 { return v.YMax - v.YMin }

// Contains reports whether price lies strictly inside the price window.
func (v Viewport) Contains(price float64) bool { return v.YMin < price && price < v.YMax }

// TimeAt maps a horizontal fraction (0 = left edge, 1 = right edge) to a time.
func (v Viewport) TimeAt(frac float64) int64 {
	return v.XMin + int64(math.Round(frac*float64(v.Width())))
}

// PriceAt maps a vertical fraction (0 = top, 1 = bottom) to a price.
func (v Viewport) PriceAt(frac float64) float64 {
	return v.YMax - frac*v.Height()
}

// Source is the read side of the candle store the controller scans.
type Source interface {
	Len() int
	At(i int) candle.Candle
	Window(xMin, xMax int64) []candle.Candle
}

// Extent selects which prices auto-scaling encloses.
type Extent int

const (
	// HighLow encloses wicks; used for candlestick plots.
	HighLow Extent = iota
	// CloseOnly encloses closing prices; used for line plots.
	CloseOnly
)

// Controller recomputes the viewport from the candle source. The viewport is
// only ever written here.
type Controller struct {
	src    Source
	vp     Viewport
	valid  bool
	extent Extent
}

// NewController creates a controller with no viewport yet.
func NewController(src Source) *Controller {
	return &Controller{src: src}
}

// Viewport returns the current window and whether one has been established.
func (c *Controller) Viewport() (Viewport, bool) { return c.vp, c.valid }

// Reset forgets the viewport, e.g. after the data was cleared.
func (c *Controller) Reset() {
	c.vp = Viewport{}
	c.valid = false
}

// SetExtent switches the auto-scale extent. It does not rescale.
func (c *Controller) SetExtent(e Extent) { c.extent = e }

// AutoScale fits the price range to the candles inside the time range plus
// Padding on each side. With no candle in range the price range is kept.
func (c *Controller) AutoScale() bool {
	if !c.valid {
		return false
	}
	visible := c.src.Window(c.vp.XMin, c.vp.XMax)
	if len(visible) == 0 {
		return false
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, k := range visible {
		l, h := k.Low, k.High
		if c.extent == CloseOnly {
			l, h = k.Close, k.Close
		}
		lo = math.Min(lo, l)
		hi = math.Max(hi, h)
	}

	pad := (hi - lo) * Padding
	if pad == 0 {
		// A flat range still needs YMin < YMax.
		pad = math.Abs(hi) * Padding
		if pad == 0 {
			pad = 1
		}
	}
	c.vp.YMin, c.vp.YMax = lo-pad, hi+pad
	return true
}

// Zoom scales the time range by factor about its midpoint and auto-scales.
// It returns false when there is no viewport to zoom.
func (c *Controller) Zoom(factor float64) (bool, error) {
	if !(factor > 0) || math.IsInf(factor, 0) {
		return false, ErrBadFactor
	}
	if !c.valid {
		return false, nil
	}
	width := int64(math.Round(float64(c.vp.Width()) * factor))
	if width < 1 {
		width = 1
	}
	mid := float64(c.vp.XMin) + float64(c.vp.Width())/2
	c.vp.XMin = int64(math.Round(mid - float64(width)/2))
	c.vp.XMax = c.vp.XMin + width
	c.AutoScale()
	return true, nil
}

// Pan shifts the time range by offset and auto-scales.
func (c *Controller) Pan(offset int64) bool {
	if !c.valid || offset == 0 {
		return false
	}
	c.vp.XMin += offset
	c.vp.XMax += offset
	c.AutoScale()
	return true
}

// FitToTimeframe shows the newest VisibleCount(tf) candles with
// TrailingPadding of empty time after the last one. With fewer candles the
// window starts at the first candle. An empty source clears the viewport.
func (c *Controller) FitToTimeframe(tf string) bool {
	n := c.src.Len()
	if n == 0 {
		c.Reset()
		return false
	}
	first := max(0, n-VisibleCount(tf))
	xMin := c.src.At(first).Time
	last := c.src.At(n - 1).Time

	pad := int64(math.Round(float64(last-xMin) * TrailingPadding))
	if pad < 1 {
		pad = 1
	}
	c.vp.XMin, c.vp.XMax = xMin, last+pad
	c.valid = true
	c.AutoScale()
	return true
}

// CenterOn moves the price range so that price sits in its middle, keeping
// the current height plus Padding on each side. It does nothing when price
// is already visible.
func (c *Controller) CenterOn(price float64) bool {
	if !c.valid || c.vp.Contains(price) {
		return false
	}
	h := c.vp.Height()
	c.vp.YMin = price - h/2 - h*Padding
	c.vp.YMax = price + h/2 + h*Padding
	return true
}

// Follow keeps the live edge in view. When the previous newest candle was on
// screen and a newer one has moved into the trailing padding or beyond, the
// time range shifts right by the distance between them.
func (c *Controller) Follow(prevLast, newLast int64) bool {
	if !c.valid || newLast <= prevLast {
		return false
	}
	if prevLast < c.vp.XMin || prevLast > c.vp.XMax {
		return false
	}
	edge := c.vp.XMax - c.trailingPad()
	if newLast <= edge {
		return false
	}
	shift := newLast - prevLast
	c.vp.XMin += shift
	c.vp.XMax += shift
	return true
}

func (c *Controller) trailingPad() int64 {
	pad := int64(math.Round(float64(c.vp.Width()) * TrailingPadding / (1 + TrailingPadding)))
	return max(pad, 1)
}
