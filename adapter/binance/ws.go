package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/yitech/candlechart/adapter"
	"github.com/yitech/candlechart/model/candle"
)

const wsBaseURL = "wss://stream.binance.com:9443/ws"

// subscribeKline runs a reconnecting kline stream until ctx, the adapter or
// the returned token is cancelled.
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

// connectAndRead maintains a single WebSocket session.
func (a *Adapter) connectAndRead(ctx context.Context, symbol, interval string, handler adapter.KlineHandler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	u := a.wsURL + "/" + strings.ToLower(symbol) + "@kline_" + interval
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("binance: dial: %w", err)
	}
	defer conn.Close()
	adapter.CloseOnDone(ctx, conn)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("binance: read: %w", err)
		}
		k, err := parseWsKline(msg)
		if err != nil {
			a.log.Warn("dropping unparsable kline", "error", err)
			continue
		}
		handler(k)
	}
}

// wsKlineMsg is the kline stream message envelope.
type wsKlineMsg struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Kline     struct {
		OpenTime  int64  `json:"t"`
		CloseTime int64  `json:"T"`
		Interval  string `json:"i"`
		Open      string `json:"o"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Close     string `json:"c"`
		Volume    string `json:"v"`
		IsClosed  bool   `json:"x"`
	} `json:"k"`
}

func parseWsKline(msg []byte) (candle.Kline, error) {
	var m wsKlineMsg
	if err := json.Unmarshal(msg, &m); err != nil {
		return candle.Kline{}, err
	}
	if m.EventType != "kline" {
		return candle.Kline{}, fmt.Errorf("unexpected event type %q", m.EventType)
	}
	k := m.Kline
	out := candle.Kline{
		Exchange:  name,
		Symbol:    m.Symbol,
		Interval:  k.Interval,
		OpenTime:  k.OpenTime,
		CloseTime: k.CloseTime,
		IsClosed:  k.IsClosed,
	}
	row := adapter.Row{Open: k.Open, High: k.High, Low: k.Low, Close: k.Close, Volume: k.Volume}
	if err := row.Fill(&out); err != nil {
		return candle.Kline{}, err
	}
	return out, nil
}
