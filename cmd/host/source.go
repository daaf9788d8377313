package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/yitech/candlechart/adapter"
	"github.com/yitech/candlechart/adapter/binance"
	"github.com/yitech/candlechart/adapter/bybit"
	"github.com/yitech/candlechart/adapter/okx"
	"github.com/yitech/candlechart/adapter/redisfeed"
	"github.com/yitech/candlechart/adapter/sim"
	"github.com/yitech/candlechart/aggregator"
	"github.com/yitech/candlechart/config"
)

// newSource builds the kline feed named by cfg.Source and returns the symbol
// to request from it.
func newSource(cfg *config.Host, log *slog.Logger) (adapter.Adapter, string, error) {
	switch cfg.Source {
	case "sim":
		return sim.New(sim.Config{Tick: cfg.Tick}, log), cfg.Symbol, nil
	case "binance":
		return binance.New(log), cfg.Symbol, nil
	case "okx":
		return okx.New(log), okxInstrument(cfg.Symbol), nil
	case "bybit":
		return bybit.New(log), cfg.Symbol, nil
	case "redis":
		a, err := redisfeed.New(redisfeed.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}, log)
		if err != nil {
			return nil, "", err
		}
		return a, cfg.Symbol, nil
	case "merged":
		ox := okx.New(log)
		agg := aggregator.New([]adapter.Adapter{binance.New(log), ox, bybit.New(log)},
			aggregator.WithSymbol(ox.Name(), okxInstrument(cfg.Symbol)),
			aggregator.WithLogger(log))
		return agg, cfg.Symbol, nil
	}
	return nil, "", fmt.Errorf("unknown source %q", cfg.Source)
}

// okxInstrument spells a concatenated pair the OKX way: BTCUSDT -> BTC-USDT.
// Symbols that already contain a dash are returned unchanged.
func okxInstrument(symbol string) string {
	if strings.Contains(symbol, "-") {
		return symbol
	}
	for _, quote := range []string{"USDT", "USDC", "USD", "BTC", "ETH"} {
		if base, ok := strings.CutSuffix(symbol, quote); ok && base != "" {
			return base + "-" + quote
		}
	}
	return symbol
}
