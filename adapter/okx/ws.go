package okx

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/yitech/candlechart/adapter"
	"github.com/yitech/candlechart/model/candle"
)

const wsEndpoint = "wss://ws.okx.com:8443/ws/v5/business"

func (a *Adapter) subscribeKline(ctx context.Context, instID, interval string, handler adapter.KlineHandler) (adapter.Token, error) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(a.ctx, cancel)
	log := a.log.With("symbol", instID, "interval", interval)

	go func() {
		defer stop()
		adapter.Redial(ctx, log, func(ctx context.Context) error {
			return a.connectAndRead(ctx, instID, interval, handler)
		})
	}()
	return adapter.CancelToken(cancel), nil
}

// connectAndRead maintains a single OKX WebSocket session.
func (a *Adapter) connectAndRead(ctx context.Context, instID, interval string, handler adapter.KlineHandler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.wsURL, nil)
	if err != nil {
		return fmt.Errorf("okx: dial: %w", err)
	}
	defer conn.Close()
	adapter.CloseOnDone(ctx, conn)

	sub := map[string]any{
		"op":   "subscribe",
		"args": []map[string]string{{"channel": "candle" + barOf(interval), "instId": instID}},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("okx: subscribe: %w", err)
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("okx: read: %w", err)
		}

		// OKX sends text "ping" frames rather than protocol pings.
		if string(msg) == "ping" {
			if err := conn.WriteMessage(websocket.TextMessage, []byte("pong")); err != nil {
				return fmt.Errorf("okx: pong: %w", err)
			}
			continue
		}

		klines, err := parseWsMessage(instID, interval, msg)
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
	Event string     `json:"event"`
	Code  string     `json:"code"`
	Msg   string     `json:"msg"`
	Data  [][]string `json:"data"`
}

// parseWsMessage returns no klines for subscription acks.
func parseWsMessage(instID, interval string, msg []byte) ([]candle.Kline, error) {
	var m wsMsg
	if err := json.Unmarshal(msg, &m); err != nil {
		return nil, err
	}
	if m.Event == "error" {
		return nil, fmt.Errorf("api error %s: %s", m.Code, m.Msg)
	}
	if m.Event != "" || len(m.Data) == 0 {
		return nil, nil
	}
	return parseKlines(instID, interval, m.Data)
}
