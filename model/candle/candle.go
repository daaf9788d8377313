package candle

import "math"

// SyntheticVolumeScale converts a candle body (|close-open|) into a placeholder
// volume when the host supplies none.
const SyntheticVolumeScale = 1000

// Candle is one OHLC bar as held by the chart. Time is the bucket key and is
// unique within a series.
type Candle struct {
	Time  int64
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// VolumeBar is index-aligned with the candle of the same Time.
// Rising mirrors the candle's own direction (Close >= Open).
type VolumeBar struct {
	Time   int64
	Volume float64
	Rising bool
}

// Finite reports whether all four prices are real numbers.
func (c Candle) Finite() bool {
	for _, v := range [...]float64{c.Open, c.High, c.Low, c.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Valid reports whether low <= min(open, close) <= max(open, close) <= high.
func (c Candle) Valid() bool {
	return c.Low <= math.Min(c.Open, c.Close) && math.Max(c.Open, c.Close) <= c.High
}

// Repair clamps Low and High so they enclose Open and Close.
// The second result is true when the candle had to be changed.
func (c Candle) Repair() (Candle, bool) {
	if c.Valid() {
		return c, false
	}
	c.Low = math.Min(c.Low, math.Min(c.Open, c.Close))
	c.High = math.Max(c.High, math.Max(c.Open, c.Close))
	return c, true
}

// Rising reports whether the candle closed at or above its open.
func (c Candle) Rising() bool { return c.Close >= c.Open }

// Volume builds the volume bar for c. A nil volume is synthesized from the
// candle body.
func (c Candle) Volume(v *float64) VolumeBar {
	vol := math.Abs(c.Close-c.Open) * SyntheticVolumeScale
	if v != nil {
		vol = *v
	}
	return VolumeBar{Time: c.Time, Volume: vol, Rising: c.Rising()}
}
