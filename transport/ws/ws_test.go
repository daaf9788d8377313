package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yitech/candlechart/protocol"
	"github.com/yitech/candlechart/surface"
	"github.com/yitech/candlechart/transport"
)

type fixture struct {
	srv  *httptest.Server
	hub  *transport.Hub
	loop *surface.Loop
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	metrics := surface.NewMetrics(reg)
	hub := transport.NewHub(16, metrics.EventDropped, log)
	s := surface.New(surface.Config{Throttle: 20 * time.Millisecond},
		surface.WithSink(hub), surface.WithLogger(log), surface.WithMetrics(metrics))
	loop := surface.NewLoop(s)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)

	srv := httptest.NewServer(NewServer(loop, hub, reg, log).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-loop.Done()
	})
	return &fixture{srv: srv, hub: hub, loop: loop}
}

func (f *fixture) dial(t *testing.T) *Client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	cl, err := Dial(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { cl.Close() })
	require.Eventually(t, func() bool { return f.hub.Len() >= 1 }, 2*time.Second, 5*time.Millisecond)
	return cl
}

func recvWithin(t *testing.T, cl *Client) protocol.Event {
	t.Helper()
	cl.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	ev, err := cl.Recv()
	require.NoError(t, err)
	return ev
}

func TestWS_RoundTrip(t *testing.T) {
	f := newFixture(t)
	cl := f.dial(t)

	require.NoError(t, cl.Send(protocol.Initialize{ChartType: protocol.Line, IndicatorsVisible: true}))
	require.NoError(t, cl.Send(protocol.SetData{Timeframe: "5m", Candles: []protocol.CandleInput{
		{Time: 0, Open: 10, High: 12, Low: 9, Close: 11},
		{Time: 300_000, Open: 11, High: 14, Low: 10, Close: 13},
	}}))
	assert.Equal(t, protocol.Ready{}, recvWithin(t, cl))

	require.NoError(t, cl.Send(protocol.HighlightPrice{Price: 12.5}))
	ev := recvWithin(t, cl)
	ps, ok := ev.(protocol.PriceSelected)
	require.True(t, ok)
	assert.Equal(t, 12.5, ps.Price)
	assert.Nil(t, ps.Time)

	var (
		tf   string
		kind protocol.ChartType
	)
	require.NoError(t, f.loop.Do(context.Background(), func(s *surface.Surface) {
		tf, kind = s.Timeframe(), s.ChartType()
	}))
	assert.Equal(t, "5m", tf)
	assert.Equal(t, protocol.Line, kind)
}

func TestWS_MalformedFrame(t *testing.T) {
	f := newFixture(t)
	cl := f.dial(t)

	require.NoError(t, cl.conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	ev := recvWithin(t, cl)
	require.IsType(t, protocol.Error{}, ev)

	require.NoError(t, cl.SendRecord(protocol.Record{"type": "addTick", "time": 0}))
	ev = recvWithin(t, cl)
	require.IsType(t, protocol.Error{}, ev)
	assert.Contains(t, ev.(protocol.Error).Message, "addTick")

	// The connection survives both.
	require.NoError(t, cl.Send(protocol.HighlightPrice{Price: 1}))
	assert.IsType(t, protocol.PriceSelected{}, recvWithin(t, cl))
}

func TestWS_HealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	f.dial(t)

	resp, err := http.Get(f.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 1, body.Sessions)

	require.NoError(t, f.loop.SubmitCommand(context.Background(), protocol.ZoomIn{}))
	require.Eventually(t, func() bool {
		resp, err := http.Get(f.srv.URL + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return strings.Contains(string(b), `type="zoomIn"`)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWS_LeaveOnDisconnect(t *testing.T) {
	f := newFixture(t)
	cl := f.dial(t)
	require.NoError(t, cl.Close())
	require.Eventually(t, func() bool { return f.hub.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}
