package bybit

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strconv"

	"github.com/yitech/candlechart/adapter"
	"github.com/yitech/candlechart/model/candle"
	"github.com/yitech/candlechart/viewport"
)

const (
	baseURL   = "https://api.bybit.com"
	klinePath = "/v5/market/kline"
	maxLimit  = 200
)

// fetchKlines pages backwards through [startMs, endMs] (Bybit returns newest
// first) and returns the klines in chronological order.
func (a *Adapter) fetchKlines(ctx context.Context, symbol, interval string, startMs, endMs int64) ([]candle.Kline, error) {
	var all []candle.Kline
	end := endMs
	for {
		batch, err := a.fetchBatch(ctx, symbol, interval, startMs, end)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		all = append(all, batch...)
		if len(batch) < maxLimit {
			break
		}
		end = all[len(all)-1].OpenTime - 1
		if end < startMs {
			break
		}
	}
	slices.Reverse(all)
	return all, nil
}

func (a *Adapter) fetchBatch(ctx context.Context, symbol, interval string, startMs, endMs int64) ([]candle.Kline, error) {
	q := url.Values{
		"category": {a.category},
		"symbol":   {symbol},
		"interval": {intervalOf(interval)},
		"start":    {strconv.FormatInt(startMs, 10)},
		"end":      {strconv.FormatInt(endMs, 10)},
		"limit":    {strconv.Itoa(maxLimit)},
	}
	var envelope struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			List [][]string `json:"list"`
		} `json:"result"`
	}
	if err := adapter.GetJSON(ctx, a.httpClient, name, a.restURL, klinePath, q, &envelope); err != nil {
		return nil, err
	}
	if envelope.RetCode != 0 {
		return nil, fmt.Errorf("bybit: api error %d: %s", envelope.RetCode, envelope.RetMsg)
	}
	return parseKlines(symbol, interval, envelope.Result.List)
}

// parseKlines converts REST rows. Layout:
//
//	[0] startTime (ms)  [1] open  [2] high  [3] low  [4] close
//	[5] volume (base coin)  [6] turnover (unused)
func parseKlines(symbol, interval string, rows [][]string) ([]candle.Kline, error) {
	var period int64
	if d, ok := viewport.ParseTimeframe(interval); ok {
		period = d.Milliseconds()
	}
	out := make([]candle.Kline, 0, len(rows))
	for i, r := range rows {
		if len(r) < 6 {
			return nil, fmt.Errorf("bybit: kline[%d] has %d fields, want >=6", i, len(r))
		}
		openTime, err := strconv.ParseInt(r[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bybit: kline[%d] open time: %w", i, err)
		}
		k := candle.Kline{
			Exchange:  name,
			Symbol:    symbol,
			Interval:  interval,
			OpenTime:  openTime,
			CloseTime: openTime + period - 1,
			IsClosed:  true,
		}
		row := adapter.Row{Open: r[1], High: r[2], Low: r[3], Close: r[4], Volume: r[5]}
		if err := row.Fill(&k); err != nil {
			return nil, fmt.Errorf("bybit: kline[%d]: %w", i, err)
		}
		out = append(out, k)
	}
	return out, nil
}
