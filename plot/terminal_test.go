package plot

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yitech/candlechart/model/candle"
	"github.com/yitech/candlechart/protocol"
	"github.com/yitech/candlechart/viewport"
)

func TestPriceRowMapping(t *testing.T) {
	assert.Equal(t, 0, priceToRow(110, 11, 110, 100))
	assert.Equal(t, 10, priceToRow(100, 11, 110, 100))
	assert.Equal(t, 5, priceToRow(105, 11, 110, 100))
	assert.Equal(t, 10, priceToRow(50, 11, 110, 100), "clamped")
	assert.Equal(t, 5, priceToRow(1, 11, 3, 3), "flat range")

	for row := 0; row < 11; row++ {
		assert.Equal(t, row, priceToRow(rowToPrice(row, 11, 110, 100), 11, 110, 100))
	}
}

func TestTimeToCol(t *testing.T) {
	assert.Equal(t, 0, timeToCol(0, 101, 0, 1000))
	assert.Equal(t, 50, timeToCol(500, 101, 0, 1000))
	assert.Equal(t, 100, timeToCol(5000, 101, 0, 1000))
	assert.Equal(t, 0, timeToCol(5, 1, 0, 1000))
}

func TestTerminal_Draw(t *testing.T) {
	term := NewTerminal("BTCUSDT 1m")
	term.Draw(Frame{})
	assert.Equal(t, "connecting…", term.String())

	term.Resize(80, 24)
	last := candle.Candle{Time: 120_000, Open: 101, High: 104, Low: 100, Close: 103}
	f := Frame{
		Viewport: viewport.Viewport{XMin: 0, XMax: 180_000, YMin: 95, YMax: 110},
		Candles: []candle.Candle{
			{Time: 0, Open: 100, High: 102, Low: 99, Close: 101},
			{Time: 60_000, Open: 101, High: 103, Low: 98, Close: 99},
			last,
		},
		Volumes: []candle.VolumeBar{
			{Time: 0, Volume: 10, Rising: true},
			{Time: 60_000, Volume: 5},
			{Time: 120_000, Volume: 20, Rising: true},
		},
		ChartType: protocol.Candlestick,
		Price:     105,
		HasPrice:  true,
		Last:      last,
		HasLast:   true,
		Total:     3,
	}
	term.Draw(f)
	out := term.String()
	assert.Contains(t, out, "BTCUSDT 1m")
	assert.Contains(t, out, "C:103.00")
	assert.Contains(t, out, "▸ 105.00")
	assert.Contains(t, out, "00:00")
	assert.Equal(t, 2, term.Draws())

	f.ChartType = protocol.Line
	f.IndicatorsVisible = true
	term.Draw(f)
	assert.Contains(t, term.String(), "[line+ind]")
}

func TestTerminal_Locate(t *testing.T) {
	term := NewTerminal("x")
	term.Resize(yAxisWidth+101, headerRows+11+volumeRows+footerRows)

	fx, fy, ok := term.Locate(yAxisWidth, headerRows)
	assert.True(t, ok)
	assert.Equal(t, 0.0, fx)
	assert.Equal(t, 0.0, fy)

	fx, fy, ok = term.Locate(yAxisWidth+50, headerRows+10)
	assert.True(t, ok)
	assert.InDelta(t, 0.5, fx, 1e-9)
	assert.InDelta(t, 1.0, fy, 1e-9)

	_, _, ok = term.Locate(2, 5)
	assert.False(t, ok, "y axis")
}
