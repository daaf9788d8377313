// Package redisfeed reads timeframe candles published by a market-data
// engine into Redis: live updates from pub/sub channels
// "pub:candle:{tf}s:{exchange}:{token}" and history from the streams
// "candle:{tf}s:{exchange}:{token}". Prices on the wire are integer paise.
package redisfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"

	"github.com/yitech/candlechart/adapter"
	"github.com/yitech/candlechart/model/candle"
	"github.com/yitech/candlechart/viewport"
)

const name = "redis"

// backfillLimit caps how many stream entries one Backfill reads.
const backfillLimit = 2000

// Config configures the Redis connection.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// TFCandle is the JSON payload of one published candle.
type TFCandle struct {
	Token    string    `json:"token"`
	Exchange string    `json:"exchange"`
	TF       int       `json:"tf"`
	TS       time.Time `json:"ts"`
	Open     int64     `json:"open"`
	High     int64     `json:"high"`
	Low      int64     `json:"low"`
	Close    int64     `json:"close"`
	Volume   int64     `json:"volume"`
	Forming  bool      `json:"forming"`
}

// Adapter subscribes to candle channels. Symbols are "exchange:token".
type Adapter struct {
	client *goredis.Client
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// New connects to Redis and pings it.
func New(cfg Config, logger *slog.Logger) (*Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redisfeed: ping %s: %w", cfg.Addr, err)
	}

	logger.Info("connected to redis", "addr", cfg.Addr, "db", cfg.DB)
	runCtx, runCancel := context.WithCancel(context.Background())
	return &Adapter{client: client, log: logger.With("feed", name), ctx: runCtx, cancel: runCancel}, nil
}

func (a *Adapter) Name() string { return name }

func (a *Adapter) Close() error {
	a.cancel()
	return a.client.Close()
}

// Subscribe follows the pub/sub channel of symbol at interval.
func (a *Adapter) Subscribe(ctx context.Context, symbol, interval string, handler adapter.KlineHandler) (adapter.Token, error) {
	ch, err := ChannelName(symbol, interval)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(a.ctx, cancel)

	pubsub := a.client.Subscribe(ctx, ch)
	// Wait for the subscription confirmation so early publishes are not lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		stop()
		cancel()
		pubsub.Close()
		return nil, fmt.Errorf("redisfeed: subscribe %s: %w", ch, err)
	}
	a.log.Info("subscribed", "channel", ch)

	go func() {
		defer stop()
		defer pubsub.Close()
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				k, err := Decode([]byte(msg.Payload), interval)
				if err != nil {
					a.log.Warn("dropping unparsable candle", "channel", msg.Channel, "error", err)
					continue
				}
				handler(k)
			}
		}
	}()
	return adapter.CancelToken(cancel), nil
}

// Backfill reads the newest candles of the stream and keeps those opening in
// [start, end], oldest first.
func (a *Adapter) Backfill(ctx context.Context, symbol, interval string, start, end time.Time) ([]candle.Kline, error) {
	key, err := StreamKey(symbol, interval)
	if err != nil {
		return nil, err
	}
	msgs, err := a.client.XRevRangeN(ctx, key, "+", "-", backfillLimit).Result()
	if err != nil {
		return nil, fmt.Errorf("redisfeed: xrevrange %s: %w", key, err)
	}
	slices.Reverse(msgs)

	out := make([]candle.Kline, 0, len(msgs))
	for _, msg := range msgs {
		data, ok := msg.Values["data"].(string)
		if !ok {
			continue
		}
		k, err := Decode([]byte(data), interval)
		if err != nil {
			a.log.Warn("skipping unparsable stream entry", "stream", key, "id", msg.ID, "error", err)
			continue
		}
		if k.OpenTime < start.UnixMilli() || k.OpenTime > end.UnixMilli() {
			continue
		}
		k.IsClosed = true
		out = append(out, k)
	}
	return out, nil
}

// Decode converts a published payload into a kline.
func Decode(payload []byte, interval string) (candle.Kline, error) {
	var c TFCandle
	if err := json.Unmarshal(payload, &c); err != nil {
		return candle.Kline{}, err
	}
	if c.TS.IsZero() {
		return candle.Kline{}, fmt.Errorf("missing ts")
	}
	open := c.TS.UnixMilli()
	return candle.Kline{
		Exchange:  c.Exchange,
		Symbol:    c.Exchange + ":" + c.Token,
		Interval:  interval,
		OpenTime:  open,
		CloseTime: open + int64(c.TF)*1000 - 1,
		Open:      FromPaise(c.Open),
		High:      FromPaise(c.High),
		Low:       FromPaise(c.Low),
		Close:     FromPaise(c.Close),
		Volume:    float64(c.Volume),
		IsClosed:  !c.Forming,
	}, nil
}

// FromPaise converts an integer paise amount to rupees.
func FromPaise(p int64) float64 {
	return decimal.New(p, -2).InexactFloat64()
}

func tfSeconds(interval string) (int, error) {
	d, ok := viewport.ParseTimeframe(interval)
	if !ok || d < time.Second {
		return 0, fmt.Errorf("redisfeed: unsupported interval %q", interval)
	}
	return int(d / time.Second), nil
}

func splitSymbol(symbol string) (exchange, token string, err error) {
	exchange, token, ok := strings.Cut(symbol, ":")
	if !ok || exchange == "" || token == "" {
		return "", "", fmt.Errorf("redisfeed: symbol %q is not exchange:token", symbol)
	}
	return exchange, token, nil
}

// ChannelName is the pub/sub channel carrying live candles of symbol.
func ChannelName(symbol, interval string) (string, error) {
	tf, err := tfSeconds(interval)
	if err != nil {
		return "", err
	}
	ex, tok, err := splitSymbol(symbol)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("pub:candle:%ds:%s:%s", tf, ex, tok), nil
}

// StreamKey is the stream holding the candle history of symbol.
func StreamKey(symbol, interval string) (string, error) {
	ch, err := ChannelName(symbol, interval)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(ch, "pub:"), nil
}
