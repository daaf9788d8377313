// Package okx streams and backfills candles from OKX.
package okx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/yitech/candlechart/adapter"
	"github.com/yitech/candlechart/model/candle"
)

const name = "okx"

// Adapter is the OKX exchange adapter.
type Adapter struct {
	httpClient *http.Client
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
		restURL:    baseURL,
		wsURL:      wsEndpoint,
		log:        logger.With("feed", name),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (a *Adapter) Name() string { return name }

// Subscribe opens a candle stream for the instrument symbol (e.g. "BTC-USDT").
func (a *Adapter) Subscribe(ctx context.Context, symbol, interval string, handler adapter.KlineHandler) (adapter.Token, error) {
	return a.subscribeKline(ctx, symbol, interval, handler)
}

// Backfill fetches historical candles via the history-candles endpoint.
func (a *Adapter) Backfill(ctx context.Context, symbol, interval string, start, end time.Time) ([]candle.Kline, error) {
	return a.fetchKlines(ctx, symbol, interval, start.UnixMilli(), end.UnixMilli())
}

func (a *Adapter) Close() error {
	a.cancel()
	return nil
}

// barOf maps chart timeframes to OKX bar names, which use uppercase for
// hour, day, week and month ("1H", "1D"). Minutes stay lowercase.
func barOf(interval string) string {
	if len(interval) < 2 {
		return interval
	}
	n, unit := interval[:len(interval)-1], interval[len(interval)-1:]
	switch unit {
	case "h", "d", "w":
		return n + strings.ToUpper(unit)
	}
	return interval
}
