package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/yitech/candlechart/adapter"
	"github.com/yitech/candlechart/model/candle"
)

const (
	baseURL   = "https://api.binance.com"
	klinePath = "/api/v3/klines"
	maxLimit  = 1000
)

// fetchKlines pages through [startMs, endMs] in chronological order.
func (a *Adapter) fetchKlines(ctx context.Context, symbol, interval string, startMs, endMs int64) ([]candle.Kline, error) {
	var out []candle.Kline
	for {
		batch, err := a.fetchBatch(ctx, symbol, interval, startMs, endMs)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)

		// A short page is the end of the range.
		if len(batch) < maxLimit {
			break
		}
		startMs = batch[len(batch)-1].OpenTime + 1
		if startMs > endMs {
			break
		}
	}
	return out, nil
}

func (a *Adapter) fetchBatch(ctx context.Context, symbol, interval string, startMs, endMs int64) ([]candle.Kline, error) {
	q := url.Values{
		"symbol":    {symbol},
		"interval":  {interval},
		"startTime": {strconv.FormatInt(startMs, 10)},
		"endTime":   {strconv.FormatInt(endMs, 10)},
		"limit":     {strconv.Itoa(maxLimit)},
	}
	var raw [][]json.RawMessage
	if err := adapter.GetJSON(ctx, a.httpClient, name, a.restURL, klinePath, q, &raw); err != nil {
		return nil, err
	}
	return parseKlines(symbol, interval, raw)
}

// parseKlines converts REST rows. Layout:
//
//	[0] open time (ms)  [1] open  [2] high  [3] low  [4] close
//	[5] base volume     [6] close time (ms)  [7..] unused
func parseKlines(symbol, interval string, raw [][]json.RawMessage) ([]candle.Kline, error) {
	out := make([]candle.Kline, 0, len(raw))
	for i, r := range raw {
		if len(r) < 7 {
			return nil, fmt.Errorf("binance: kline[%d] has %d fields, want >=7", i, len(r))
		}
		k := candle.Kline{Exchange: name, Symbol: symbol, Interval: interval, IsClosed: true}
		if err := json.Unmarshal(r[0], &k.OpenTime); err != nil {
			return nil, fmt.Errorf("binance: kline[%d] open time: %w", i, err)
		}
		if err := json.Unmarshal(r[6], &k.CloseTime); err != nil {
			return nil, fmt.Errorf("binance: kline[%d] close time: %w", i, err)
		}
		row := adapter.Row{
			Open: jsonString(r[1]), High: jsonString(r[2]), Low: jsonString(r[3]),
			Close: jsonString(r[4]), Volume: jsonString(r[5]),
		}
		if err := row.Fill(&k); err != nil {
			return nil, fmt.Errorf("binance: kline[%d]: %w", i, err)
		}
		out = append(out, k)
	}
	return out, nil
}

// jsonString unquotes a JSON string token, returning other tokens as-is.
func jsonString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return string(raw)
	}
	return s
}
