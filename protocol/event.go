package protocol

// Event tags.
const (
	EventReady            = "ready"
	EventError            = "error"
	EventPriceSelected    = "priceSelected"
	EventChartInteraction = "chartInteraction"
)

// Event is implemented only by the types in this file.
type Event interface {
	Kind() string
	event()
}

type Ready struct{}

type Error struct{ Message string }

// PriceSelected carries the candle time under the selection when known.
type PriceSelected struct {
	Price float64
	Time  *int64
}

type ChartInteraction struct {
	Action string
	X      float64
	Y      float64
}

func (Ready) Kind() string            { return EventReady }
func (Error) Kind() string            { return EventError }
func (PriceSelected) Kind() string    { return EventPriceSelected }
func (ChartInteraction) Kind() string { return EventChartInteraction }

func (Ready) event()            {}
func (Error) event()            {}
func (PriceSelected) event()    {}
func (ChartInteraction) event() {}
