// Command host is a reference host for the chart surface. It loads history
// from a kline source, hands it to the surface with setData and then streams
// live updates as addTick commands over gRPC or WebSocket.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yitech/candlechart/adapter"
	"github.com/yitech/candlechart/config"
	"github.com/yitech/candlechart/logger"
	"github.com/yitech/candlechart/model/candle"
	"github.com/yitech/candlechart/protocol"
	"github.com/yitech/candlechart/transport/rpc"
	"github.com/yitech/candlechart/transport/ws"
	"github.com/yitech/candlechart/viewport"
)

// surfaceConn is the host side of either transport.
type surfaceConn interface {
	Send(protocol.Command) error
	Recv() (protocol.Event, error)
	Close() error
}

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, "host:", err)
		os.Exit(1)
	}
	cfg, err := config.LoadHost()
	if err != nil {
		fmt.Fprintln(os.Stderr, "host:", err)
		os.Exit(1)
	}
	log := logger.New("host", logger.ParseLevel(cfg.LogLevel), os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("host stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Host, log *slog.Logger) error {
	src, symbol, err := newSource(cfg, log)
	if err != nil {
		return err
	}
	defer src.Close()

	conn, err := dial(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	go logEvents(conn, log)

	log.Info("host started", "source", src.Name(), "symbol", symbol, "interval", cfg.Interval, "transport", cfg.Transport)
	if err := conn.Send(protocol.Initialize{ChartType: protocol.Candlestick, IndicatorsVisible: true}); err != nil {
		return fmt.Errorf("send initialize: %w", err)
	}

	history := backfill(ctx, src, symbol, cfg, log)
	inputs := make([]protocol.CandleInput, len(history))
	for i, k := range history {
		inputs[i] = candleInput(k)
	}
	if err := conn.Send(protocol.SetData{Timeframe: cfg.Interval, Candles: inputs}); err != nil {
		return fmt.Errorf("send setData: %w", err)
	}

	var p *pacer
	if n := len(history); n > 0 {
		p = newPacer(cfg.Tick, history[n-1].OpenTime, true)
	} else {
		p = newPacer(cfg.Tick, 0, false)
	}
	tok, err := src.Subscribe(ctx, symbol, cfg.Interval, func(k candle.Kline) {
		if !p.Push(k) {
			log.Debug("dropping stale kline", "open_time", k.OpenTime)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", symbol, err)
	}
	defer tok.Unsubscribe()

	err = p.Run(ctx, func(k candle.Kline) error { return conn.Send(addTick(k)) })
	log.Info("stream ended", "dropped", p.Dropped())
	return err
}

func dial(ctx context.Context, cfg *config.Host) (surfaceConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if cfg.Transport == "ws" {
		c, err := ws.Dial(dialCtx, cfg.WSURL)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	c, err := rpc.Dial(ctx, cfg.ServerAddr)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// backfill loads the last cfg.Backfill periods. A failure is logged and the
// chart starts empty; live updates still arrive.
func backfill(ctx context.Context, src adapter.Adapter, symbol string, cfg *config.Host, log *slog.Logger) []candle.Kline {
	d, ok := viewport.ParseTimeframe(cfg.Interval)
	if !ok || cfg.Backfill == 0 {
		return nil
	}
	end := time.Now()
	start := end.Add(-time.Duration(cfg.Backfill) * d)
	klines, err := src.Backfill(ctx, symbol, cfg.Interval, start, end)
	if err != nil {
		log.Warn("backfill failed", "error", err)
		return nil
	}
	log.Info("backfill loaded", "klines", len(klines))
	return klines
}

// logEvents reports surface events until the connection closes.
func logEvents(conn surfaceConn, log *slog.Logger) {
	for {
		ev, err := conn.Recv()
		if err != nil {
			log.Debug("event stream closed", "error", err)
			return
		}
		switch e := ev.(type) {
		case protocol.Ready:
			log.Info("surface ready")
		case protocol.Error:
			log.Warn("surface error", "message", e.Message)
		case protocol.PriceSelected:
			if e.Time != nil {
				log.Info("price selected", "price", e.Price, "time", time.UnixMilli(*e.Time).UTC())
			} else {
				log.Info("price selected", "price", e.Price)
			}
		case protocol.ChartInteraction:
			log.Info("chart interaction", "action", e.Action, "x", e.X, "y", e.Y)
		}
	}
}
