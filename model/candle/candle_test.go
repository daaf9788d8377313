package candle

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCandle_Repair(t *testing.T) {
	tests := []struct {
		name    string
		in      Candle
		want    Candle
		changed bool
	}{
		{
			name: "valid candle is untouched",
			in:   Candle{Time: 1, Open: 10, High: 12, Low: 9, Close: 11},
			want: Candle{Time: 1, Open: 10, High: 12, Low: 9, Close: 11},
		},
		{
			name:    "high below close is raised",
			in:      Candle{Time: 1, Open: 10, High: 10.5, Low: 9, Close: 11},
			want:    Candle{Time: 1, Open: 10, High: 11, Low: 9, Close: 11},
			changed: true,
		},
		{
			name:    "low above open is lowered",
			in:      Candle{Time: 1, Open: 10, High: 12, Low: 10.5, Close: 11},
			want:    Candle{Time: 1, Open: 10, High: 12, Low: 10, Close: 11},
			changed: true,
		},
		{
			name:    "swapped high and low",
			in:      Candle{Time: 1, Open: 10, High: 9, Low: 12, Close: 11},
			want:    Candle{Time: 1, Open: 10, High: 11, Low: 10, Close: 11},
			changed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := tt.in.Repair()
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.changed, changed)
			assert.True(t, got.Valid())
		})
	}
}

func TestCandle_Finite(t *testing.T) {
	assert.True(t, Candle{Open: 1, High: 2, Low: 0.5, Close: 1.5}.Finite())
	assert.False(t, Candle{Open: math.NaN(), High: 2, Low: 0.5, Close: 1.5}.Finite())
	assert.False(t, Candle{Open: 1, High: math.Inf(1), Low: 0.5, Close: 1.5}.Finite())
}

func TestCandle_Volume(t *testing.T) {
	c := Candle{Time: 7, Open: 10, High: 12, Low: 9, Close: 9.5}

	synth := c.Volume(nil)
	assert.Equal(t, int64(7), synth.Time)
	assert.InDelta(t, 0.5*SyntheticVolumeScale, synth.Volume, 1e-9)
	assert.False(t, synth.Rising)

	v := 42.0
	given := c.Volume(&v)
	assert.Equal(t, 42.0, given.Volume)
}

func TestKline_Candle(t *testing.T) {
	k := Kline{Exchange: "binance", OpenTime: 60_000, Open: 1, High: 3, Low: 0.5, Close: 2, Volume: 9}
	assert.Equal(t, Candle{Time: 60_000, Open: 1, High: 3, Low: 0.5, Close: 2}, k.Candle())
}
