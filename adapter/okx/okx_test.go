package okx

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yitech/candlechart/model/candle"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	a := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { a.Close() })
	return a
}

func TestBarOf(t *testing.T) {
	for in, want := range map[string]string{
		"1m": "1m", "15m": "15m", "1h": "1H", "4h": "4H", "1d": "1D", "1w": "1W", "1M": "1M", "4H": "4H",
	} {
		assert.Equal(t, want, barOf(in), in)
	}
}

func TestParseWsMessage(t *testing.T) {
	ack := `{"event":"subscribe","arg":{"channel":"candle1m","instId":"BTC-USDT"}}`
	ks, err := parseWsMessage("BTC-USDT", "1m", []byte(ack))
	require.NoError(t, err)
	assert.Empty(t, ks)

	_, err = parseWsMessage("BTC-USDT", "1m", []byte(`{"event":"error","code":"60012","msg":"bad"}`))
	assert.ErrorContains(t, err, "60012")

	data := `{"arg":{"channel":"candle1m","instId":"BTC-USDT"},
		"data":[["1700000000000","37000.1","37020","36990","37010","3.5","0","0","0"]]}`
	ks, err = parseWsMessage("BTC-USDT", "1m", []byte(data))
	require.NoError(t, err)
	require.Len(t, ks, 1)
	assert.Equal(t, candle.Kline{
		Exchange: "okx", Symbol: "BTC-USDT", Interval: "1m",
		OpenTime: 1700000000000, CloseTime: 1700000059999,
		Open: 37000.1, High: 37020, Low: 36990, Close: 37010, Volume: 3.5,
	}, ks[0])
}

func TestBackfill_NewestFirstReversed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1H", r.URL.Query().Get("bar"))
		io.WriteString(w, `{"code":"0","msg":"","data":[
			["1700007200000","3","4","2","3.5","1","0","0","1"],
			["1700003600000","2","3","1","2.5","1","0","0","1"],
			["1700000000000","1","2","0.5","1.5","1","0","0","1"],
			["1699996400000","0","1","0","0.5","1","0","0","1"]
		]}`)
	}))
	defer srv.Close()

	a := newTestAdapter(t)
	a.restURL = srv.URL
	ks, err := a.Backfill(context.Background(), "BTC-USDT", "1h",
		time.UnixMilli(1700000000000), time.UnixMilli(1700007200000))
	require.NoError(t, err)
	require.Len(t, ks, 3)
	assert.Equal(t, int64(1700000000000), ks[0].OpenTime)
	assert.Equal(t, int64(1700007200000), ks[2].OpenTime)
	assert.Equal(t, int64(1700003599999), ks[0].CloseTime)
	assert.True(t, ks[2].IsClosed)
}

func TestBackfill_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"code":"51001","msg":"Instrument ID does not exist","data":[]}`)
	}))
	defer srv.Close()

	a := newTestAdapter(t)
	a.restURL = srv.URL
	_, err := a.Backfill(context.Background(), "NOPE", "1m", time.Now(), time.Now())
	assert.ErrorContains(t, err, "51001")
}

func TestSubscribe_AnswersPingAndStreams(t *testing.T) {
	upgrader := websocket.Upgrader{}
	pong := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var sub map[string]any
		if conn.ReadJSON(&sub) != nil {
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte("ping"))
		if _, msg, err := conn.ReadMessage(); err == nil {
			pong <- string(msg)
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"data":[["1700000000000","1","2","0.5","1.5","1","0","0","0"]]}`))
		conn.ReadMessage()
	}))
	defer srv.Close()

	a := newTestAdapter(t)
	a.wsURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	got := make(chan candle.Kline, 1)
	tok, err := a.Subscribe(context.Background(), "BTC-USDT", "1m", func(k candle.Kline) {
		select {
		case got <- k:
		default:
		}
	})
	require.NoError(t, err)
	defer tok.Unsubscribe()

	select {
	case msg := <-pong:
		assert.Equal(t, "pong", msg)
	case <-time.After(5 * time.Second):
		t.Fatal("no pong")
	}
	select {
	case k := <-got:
		assert.Equal(t, 1.5, k.Close)
	case <-time.After(5 * time.Second):
		t.Fatal("no kline received")
	}
}
