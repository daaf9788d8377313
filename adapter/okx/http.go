package okx

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
	baseURL   = "https://www.okx.com"
	klinePath = "/api/v5/market/history-candles"
	maxLimit  = 100
)

// fetchKlines pages backwards from endMs with the "after" cursor (OKX
// returns newest first) and returns [startMs, endMs] in chronological order.
func (a *Adapter) fetchKlines(ctx context.Context, instID, interval string, startMs, endMs int64) ([]candle.Kline, error) {
	var all []candle.Kline
	// after=T returns candles with ts < T.
	after := strconv.FormatInt(endMs+1, 10)

	for {
		batch, err := a.fetchBatch(ctx, instID, interval, after)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}

		done := false
		for _, k := range batch {
			if k.OpenTime < startMs {
				done = true
				break
			}
			all = append(all, k)
		}
		if done || len(batch) < maxLimit {
			break
		}
		after = strconv.FormatInt(all[len(all)-1].OpenTime, 10)
	}

	slices.Reverse(all)
	return all, nil
}

func (a *Adapter) fetchBatch(ctx context.Context, instID, interval, after string) ([]candle.Kline, error) {
	q := url.Values{
		"instId": {instID},
		"bar":    {barOf(interval)},
		"after":  {after},
		"limit":  {strconv.Itoa(maxLimit)},
	}
	var envelope struct {
		Code string     `json:"code"`
		Msg  string     `json:"msg"`
		Data [][]string `json:"data"`
	}
	if err := adapter.GetJSON(ctx, a.httpClient, name, a.restURL, klinePath, q, &envelope); err != nil {
		return nil, err
	}
	if envelope.Code != "0" {
		return nil, fmt.Errorf("okx: api error %s: %s", envelope.Code, envelope.Msg)
	}
	return parseKlines(instID, interval, envelope.Data)
}

// parseKlines converts OKX rows, shared by REST and WebSocket. Layout:
//
//	[0] ts (open time, ms)  [1] o  [2] h  [3] l  [4] c  [5] vol
//	[6] volCcy  [7] volCcyQuote  [8] confirm ("1" closed, "0" in progress)
func parseKlines(instID, interval string, rows [][]string) ([]candle.Kline, error) {
	period := intervalMs(interval)
	out := make([]candle.Kline, 0, len(rows))
	for i, r := range rows {
		if len(r) < 6 {
			return nil, fmt.Errorf("okx: kline[%d] has %d fields, want >=6", i, len(r))
		}
		openTime, err := strconv.ParseInt(r[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("okx: kline[%d] open time: %w", i, err)
		}
		k := candle.Kline{
			Exchange:  name,
			Symbol:    instID,
			Interval:  interval,
			OpenTime:  openTime,
			CloseTime: openTime + period - 1,
			IsClosed:  len(r) > 8 && r[8] == "1",
		}
		row := adapter.Row{Open: r[1], High: r[2], Low: r[3], Close: r[4], Volume: r[5]}
		if err := row.Fill(&k); err != nil {
			return nil, fmt.Errorf("okx: kline[%d]: %w", i, err)
		}
		out = append(out, k)
	}
	return out, nil
}

// intervalMs is the period length in ms for a chart timeframe, or 0.
func intervalMs(interval string) int64 {
	d, ok := viewport.ParseTimeframe(interval)
	if !ok {
		return 0
	}
	return d.Milliseconds()
}
