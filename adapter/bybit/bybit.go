// Package bybit streams and backfills klines from Bybit V5.
package bybit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/yitech/candlechart/adapter"
	"github.com/yitech/candlechart/model/candle"
	"github.com/yitech/candlechart/viewport"
)

const name = "bybit"

// Adapter is the Bybit exchange adapter.
type Adapter struct {
	httpClient *http.Client
	category   string // "linear" | "spot" | "inverse"
	restURL    string
	wsURL      string
	log        *slog.Logger
	ctx        context.Context
	cancel     context.CancelFunc
}

func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Adapter{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		category:   "linear",
		restURL:    baseURL,
		wsURL:      wsURL,
		log:        logger.With("feed", name),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (a *Adapter) Name() string { return name }

// Subscribe opens a kline stream for symbol/interval.
func (a *Adapter) Subscribe(ctx context.Context, symbol, interval string, handler adapter.KlineHandler) (adapter.Token, error) {
	return a.subscribeKline(ctx, symbol, interval, handler)
}

// Backfill fetches historical klines via the REST API.
func (a *Adapter) Backfill(ctx context.Context, symbol, interval string, start, end time.Time) ([]candle.Kline, error) {
	return a.fetchKlines(ctx, symbol, interval, start.UnixMilli(), end.UnixMilli())
}

// Close cancels all active subscriptions.
func (a *Adapter) Close() error {
	a.cancel()
	return nil
}

// intervalOf maps a chart timeframe to Bybit's notation: minutes as plain
// numbers below a day, then "D", "W" and "M".
func intervalOf(tf string) string {
	d, ok := viewport.ParseTimeframe(tf)
	if !ok {
		return tf
	}
	switch {
	case d == 24*time.Hour:
		return "D"
	case d == 7*24*time.Hour:
		return "W"
	case d == 30*24*time.Hour:
		return "M"
	}
	return strconv.FormatInt(int64(d/time.Minute), 10)
}
