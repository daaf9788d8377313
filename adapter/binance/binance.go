// Package binance streams and backfills spot klines from Binance.
package binance

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/yitech/candlechart/adapter"
	"github.com/yitech/candlechart/model/candle"
)

const name = "binance"

// Adapter is the Binance exchange adapter. Binance interval names match the
// chart's timeframe notation, so intervals pass through unchanged.
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
		wsURL:      wsBaseURL,
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
