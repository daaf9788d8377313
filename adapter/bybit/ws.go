package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yitech/candlechart/adapter"
	"github.com/yitech/candlechart/model/candle"
)

const wsURL = "wss://stream.bybit.com/v5/public/linear"

// pingInterval keeps the connection alive; Bybit drops idle sessions.
const pingInterval = 20 * time.Second

func (a *Adapter) subscribeKline(ctx context.Context, symbol, interval string, handler adapter.KlineHandler) (adapter.Token, error) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(a.ctx, cancel)
	log := a.log.With("symbol", symbol, "interval", interval)

	go func() {
		defer stop()
		adapter.Redial(ctx, log, func(ctx context.Context) error {
			return a.connectAndRead(ctx, symbol, interval, handler)
		})
	}()
	return adapter.CancelToken(cancel), nil
}

// connectAndRead maintains a single Bybit WebSocket session.
func (a *Adapter) connectAndRead(ctx context.Context, symbol, interval string, handler adapter.KlineHandler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.wsURL, nil)
	if err != nil {
		return fmt.Errorf("bybit: dial: %w", err)
	}
	defer conn.Close()
	adapter.CloseOnDone(ctx, conn)

	topic := fmt.Sprintf("kline.%s.%s", intervalOf(interval), symbol)
	if err := conn.WriteJSON(map[string]any{"op": "subscribe", "args": []string{topic}}); err != nil {
		return fmt.Errorf("bybit: subscribe: %w", err)
	}

	// The read loop below is the only reader; the heartbeat goroutine is the
	// only writer after the subscribe message.
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteJSON(map[string]string{"op": "ping"}); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("bybit: read: %w", err)
		}
		klines, err := parseWsMessage(symbol, interval, msg)
		if err != nil {
			a.log.Warn("dropping unparsable message", "error", err)
			continue
		}
		for _, k := range klines {
			handler(k)
		}
	}
}

type wsMsg struct {
	Op    string          `json:"op"`
	Topic string          `json:"topic"` // "kline.1.BTCUSDT"
	Type  string          `json:"type"`  // "snapshot" | "delta"
	Data  json.RawMessage `json:"data"`
}

type wsKline struct {
	Start   int64  `json:"start"`
	End     int64  `json:"end"`
	Open    string `json:"open"`
	High    string `json:"high"`
	Low     string `json:"low"`
	Close   string `json:"close"`
	Volume  string `json:"volume"`
	Confirm bool   `json:"confirm"`
}

// parseWsMessage ignores control messages such as pong and subscribe acks.
func parseWsMessage(symbol, interval string, msg []byte) ([]candle.Kline, error) {
	var m wsMsg
	if err := json.Unmarshal(msg, &m); err != nil {
		return nil, err
	}
	if m.Topic == "" {
		return nil, nil
	}

	var entries []wsKline
	if err := json.Unmarshal(m.Data, &entries); err != nil {
		return nil, fmt.Errorf("data: %w", err)
	}
	out := make([]candle.Kline, 0, len(entries))
	for i, e := range entries {
		k := candle.Kline{
			Exchange:  name,
			Symbol:    symbol,
			Interval:  interval,
			OpenTime:  e.Start,
			CloseTime: e.End,
			IsClosed:  e.Confirm,
		}
		row := adapter.Row{Open: e.Open, High: e.High, Low: e.Low, Close: e.Close, Volume: e.Volume}
		if err := row.Fill(&k); err != nil {
			return nil, fmt.Errorf("kline[%d]: %w", i, err)
		}
		out = append(out, k)
	}
	return out, nil
}
