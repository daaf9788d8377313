// Package protocol defines the closed set of host -> surface commands and
// surface -> host events, and their flat record encoding.
package protocol

// ChartType selects how the candle series is drawn.
type ChartType string

const (
	Candlestick ChartType = "candlestick"
	Line        ChartType = "line"
)

// ParseChartType accepts exactly the two known chart types.
func ParseChartType(s string) (ChartType, bool) {
	switch ChartType(s) {
	case Candlestick, Line:
		return ChartType(s), true
	}
	return "", false
}

// Command tags as they appear in the "type" field of a record.
const (
	TypeInitialize        = "initialize"
	TypeSetData           = "setData"
	TypeAddTick           = "addTick"
	TypeChangeChartType   = "changeChartType"
	TypeToggleIndicators  = "toggleIndicators"
	TypeZoomIn            = "zoomIn"
	TypeZoomOut           = "zoomOut"
	TypePan               = "pan"
	TypeAutoScale         = "autoScale"
	TypeHighlightPrice    = "highlightPrice"
	TypeSelectMarketPrice = "selectMarketPrice"
	TypeClear             = "clear"
)

// Command is implemented only by the types in this file, so a type switch over
// it is exhaustive.
type Command interface {
	Kind() string
	command()
}

type Initialize struct {
	ChartType         ChartType
	IndicatorsVisible bool
}

// CandleInput is one entry of a setData payload. Volume is nil when the host
// did not provide one.
type CandleInput struct {
	Time   int64
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume *float64
}

type SetData struct {
	Candles   []CandleInput
	Timeframe string
}

// AddTick is an upsert of the candle keyed by Time.
type AddTick struct {
	Time   int64
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume *float64
}

type ChangeChartType struct{ Type ChartType }

type ToggleIndicators struct{ Show bool }

type ZoomIn struct{}

type ZoomOut struct{}

// Pan shifts the visible time window by Offset time units.
type Pan struct{ Offset int64 }

type AutoScale struct{}

type HighlightPrice struct{ Price float64 }

type SelectMarketPrice struct{}

type Clear struct{}

func (Initialize) Kind() string        { return TypeInitialize }
func (SetData) Kind() string           { return TypeSetData }
func (AddTick) Kind() string           { return TypeAddTick }
func (ChangeChartType) Kind() string   { return TypeChangeChartType }
func (ToggleIndicators) Kind() string  { return TypeToggleIndicators }
func (ZoomIn) Kind() string            { return TypeZoomIn }
func (ZoomOut) Kind() string           { return TypeZoomOut }
func (Pan) Kind() string               { return TypePan }
func (AutoScale) Kind() string         { return TypeAutoScale }
func (HighlightPrice) Kind() string    { return TypeHighlightPrice }
func (SelectMarketPrice) Kind() string { return TypeSelectMarketPrice }
func (Clear) Kind() string             { return TypeClear }

func (Initialize) command()        {}
func (SetData) command()           {}
func (AddTick) command()           {}
func (ChangeChartType) command()   {}
func (ToggleIndicators) command()  {}
func (ZoomIn) command()            {}
func (ZoomOut) command()           {}
func (Pan) command()               {}
func (AutoScale) command()         {}
func (HighlightPrice) command()    {}
func (SelectMarketPrice) command() {}
func (Clear) command()             {}
