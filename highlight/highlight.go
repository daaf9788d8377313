// Package highlight holds the chart's presentation state: the highlighted
// price, the active chart type and the indicator overlay flag.
package highlight

import (
	"github.com/yitech/candlechart/protocol"
	"github.com/yitech/candlechart/viewport"
)

// State lives as long as the render surface and is only changed by commands.
type State struct {
	price      float64
	hasPrice   bool
	chartType  protocol.ChartType
	indicators bool
}

// New returns the initial state: candlesticks, indicators hidden, no price.
func New() State {
	return State{chartType: protocol.Candlestick}
}

// Highlight marks price as the current price.
func (s *State) Highlight(price float64) {
	s.price = price
	s.hasPrice = true
}

// Price returns the highlighted price, if any.
func (s *State) Price() (float64, bool) { return s.price, s.hasPrice }

// ClearPrice removes the price marker.
func (s *State) ClearPrice() {
	s.price = 0
	s.hasPrice = false
}

// SetChartType reports whether the type actually changed.
func (s *State) SetChartType(t protocol.ChartType) bool {
	if s.chartType == t {
		return false
	}
	s.chartType = t
	return true
}

func (s *State) ChartType() protocol.ChartType { return s.chartType }

// SetIndicators reports whether the flag actually changed.
func (s *State) SetIndicators(show bool) bool {
	if s.indicators == show {
		return false
	}
	s.indicators = show
	return true
}

func (s *State) IndicatorsVisible() bool { return s.indicators }

// Extent is the auto-scale extent matching the chart type: line plots only
// draw closes, so wicks must not stretch the price range.
func (s *State) Extent() viewport.Extent {
	if s.chartType == protocol.Line {
		return viewport.CloseOnly
	}
	return viewport.HighLow
}
