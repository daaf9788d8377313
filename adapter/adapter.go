// Package adapter defines the contract for market-data feeds that a chart
// host turns into addTick/setData commands, plus helpers shared by the
// exchange implementations.
package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yitech/candlechart/model/candle"
)

// KlineHandler receives every kline update of a subscription. Updates for the
// in-progress period repeat its OpenTime.
type KlineHandler func(candle.Kline)

// Token cancels one subscription.
type Token interface {
	Unsubscribe()
}

// Adapter is a source of klines for one exchange or feed. Intervals use the
// chart's timeframe notation ("1m", "5m", "1h", "1d"); each adapter maps them
// to its native form.
type Adapter interface {
	// Name identifies the feed in logs and merged klines.
	Name() string

	// Subscribe streams kline updates for symbol/interval until the token
	// is cancelled or the adapter is closed.
	Subscribe(ctx context.Context, symbol, interval string, handler KlineHandler) (Token, error)

	// Backfill returns closed klines in [start, end] in chronological order.
	Backfill(ctx context.Context, symbol, interval string, start, end time.Time) ([]candle.Kline, error)

	// Close cancels all subscriptions and releases resources.
	Close() error
}

// CancelToken implements Token with a context cancel function.
type CancelToken context.CancelFunc

func (t CancelToken) Unsubscribe() { t() }

// ParsePrice converts an exchange decimal string to float64. Exchanges send
// prices as strings to keep them exact; the chart works in float64.
func ParsePrice(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("price %q: %w", s, err)
	}
	return d.InexactFloat64(), nil
}

// Row holds the string fields exchanges use for one kline.
type Row struct {
	Open, High, Low, Close, Volume string
}

// Fill parses r into the OHLCV fields of k.
func (r Row) Fill(k *candle.Kline) error {
	var err error
	fields := []struct {
		name string
		src  string
		dst  *float64
	}{
		{"open", r.Open, &k.Open},
		{"high", r.High, &k.High},
		{"low", r.Low, &k.Low},
		{"close", r.Close, &k.Close},
		{"volume", r.Volume, &k.Volume},
	}
	for _, f := range fields {
		if *f.dst, err = ParsePrice(f.src); err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
	}
	return nil
}
