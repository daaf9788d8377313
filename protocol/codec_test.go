package protocol

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_ValidCommands(t *testing.T) {
	vol := 3.5
	tests := []struct {
		name string
		rec  Record
		want Command
	}{
		{
			name: "initialize",
			rec:  Record{"type": "initialize", "chartType": "line", "indicatorsVisible": true},
			want: Initialize{ChartType: Line, IndicatorsVisible: true},
		},
		{
			name: "addTick without volume",
			rec:  Record{"type": "addTick", "time": 5.0, "open": 1.0, "high": 2, "low": 0.5, "close": 1.5},
			want: AddTick{Time: 5, Open: 1, High: 2, Low: 0.5, Close: 1.5},
		},
		{
			name: "addTick with volume",
			rec:  Record{"type": "addTick", "time": int64(5), "open": 1.0, "high": 2.0, "low": 0.5, "close": 1.5, "volume": 3.5},
			want: AddTick{Time: 5, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: &vol},
		},
		{
			name: "setData empty",
			rec:  Record{"type": "setData", "candles": []any{}, "timeframe": "1m"},
			want: SetData{Candles: []CandleInput{}, Timeframe: "1m"},
		},
		{
			name: "pan",
			rec:  Record{"type": "pan", "offset": -120.0},
			want: Pan{Offset: -120},
		},
		{name: "zoomIn", rec: Record{"type": "zoomIn"}, want: ZoomIn{}},
		{name: "zoomOut", rec: Record{"type": "zoomOut"}, want: ZoomOut{}},
		{name: "clear", rec: Record{"type": "clear"}, want: Clear{}},
		{name: "selectMarketPrice", rec: Record{"type": "selectMarketPrice"}, want: SelectMarketPrice{}},
		{name: "highlightPrice", rec: Record{"type": "highlightPrice", "price": 101.25}, want: HighlightPrice{Price: 101.25}},
		{name: "toggleIndicators", rec: Record{"type": "toggleIndicators", "show": false}, want: ToggleIndicators{}},
		{name: "changeChartType", rec: Record{"type": "changeChartType", "chartType": "candlestick"}, want: ChangeChartType{Type: Candlestick}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.rec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		rec   Record
		field string
	}{
		{name: "missing tag", rec: Record{"price": 1.0}},
		{name: "unknown tag", rec: Record{"type": "explode"}},
		{name: "missing numeric field", rec: Record{"type": "addTick", "time": 1.0, "open": 1.0, "high": 1.0, "low": 1.0}, field: "close"},
		{name: "NaN price", rec: Record{"type": "highlightPrice", "price": math.NaN()}, field: "price"},
		{name: "infinite high", rec: Record{"type": "addTick", "time": 1.0, "open": 1.0, "high": math.Inf(1), "low": 1.0, "close": 1.0}, field: "high"},
		{name: "fractional time", rec: Record{"type": "addTick", "time": 1.5, "open": 1.0, "high": 1.0, "low": 1.0, "close": 1.0}, field: "time"},
		{name: "string price", rec: Record{"type": "highlightPrice", "price": "12"}, field: "price"},
		{name: "negative volume", rec: Record{"type": "addTick", "time": 1.0, "open": 1.0, "high": 1.0, "low": 1.0, "close": 1.0, "volume": -1.0}, field: "volume"},
		{name: "unknown chart type", rec: Record{"type": "changeChartType", "chartType": "renko"}, field: "chartType"},
		{name: "bad candle entry", rec: Record{"type": "setData", "timeframe": "1m", "candles": []any{map[string]any{"time": 1.0}}}, field: "open"},
		{name: "candles not an array", rec: Record{"type": "setData", "timeframe": "1m", "candles": "x"}, field: "candles"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := Decode(tt.rec)
			assert.Nil(t, cmd)
			var perr *ProtocolError
			require.True(t, errors.As(err, &perr), "want *ProtocolError, got %v", err)
			assert.Equal(t, tt.field, perr.Field)
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	cmd, err := DecodeJSON([]byte(`{"type":"setData","timeframe":"5m","candles":[{"time":1,"open":10,"high":12,"low":9,"close":11,"volume":100}]}`))
	require.NoError(t, err)
	sd, ok := cmd.(SetData)
	require.True(t, ok)
	require.Len(t, sd.Candles, 1)
	assert.Equal(t, int64(1), sd.Candles[0].Time)
	require.NotNil(t, sd.Candles[0].Volume)
	assert.Equal(t, 100.0, *sd.Candles[0].Volume)

	_, err = DecodeJSON([]byte(`{"type":`))
	var perr *ProtocolError
	assert.ErrorAs(t, err, &perr)
}

func TestEncodeCommand_DecodesBack(t *testing.T) {
	vol := 7.0
	cmds := []Command{
		Initialize{ChartType: Candlestick, IndicatorsVisible: true},
		SetData{Timeframe: "1h", Candles: []CandleInput{{Time: 3600, Open: 1, High: 2, Low: 1, Close: 2, Volume: &vol}}},
		AddTick{Time: 7200, Open: 2, High: 3, Low: 1.5, Close: 2.5},
		Pan{Offset: 60},
		HighlightPrice{Price: 2.75},
	}
	for _, c := range cmds {
		got, err := Decode(EncodeCommand(c))
		require.NoError(t, err, c.Kind())
		assert.Equal(t, c, got)
	}
}

func TestEvents(t *testing.T) {
	ts := int64(42)
	rec := EncodeEvent(PriceSelected{Price: 10.5, Time: &ts})
	assert.Equal(t, Record{"type": "priceSelected", "price": 10.5, "time": 42.0}, rec)

	ev, err := DecodeEvent(rec)
	require.NoError(t, err)
	assert.Equal(t, PriceSelected{Price: 10.5, Time: &ts}, ev)

	assert.Equal(t, Record{"type": "ready"}, EncodeEvent(Ready{}))
	assert.Equal(t, Record{"type": "error", "message": "boom"}, EncodeEvent(Error{Message: "boom"}))

	_, err = DecodeEvent(Record{"type": "nope"})
	assert.Error(t, err)
}
