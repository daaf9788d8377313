package rpc

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/yitech/candlechart/protocol"
	"github.com/yitech/candlechart/surface"
	"github.com/yitech/candlechart/transport"
)

func startServer(t *testing.T) (*Client, *surface.Loop) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := transport.NewHub(16, nil, log)
	s := surface.New(surface.Config{Throttle: 20 * time.Millisecond}, surface.WithSink(hub), surface.WithLogger(log))
	loop := surface.NewLoop(s)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	Register(gs, NewServer(loop, hub, log))
	go gs.Serve(lis)

	cl, err := Dial(context.Background(), "passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	t.Cleanup(func() {
		cl.Close()
		gs.Stop()
		cancel()
		<-loop.Done()
	})

	// The session joins the hub when the server sees the stream; wait for it
	// so no event is emitted before anyone listens.
	require.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	return cl, loop
}

func recvWithin(t *testing.T, cl *Client) protocol.Event {
	t.Helper()
	type result struct {
		ev  protocol.Event
		err error
	}
	ch := make(chan result, 1)
	go func() {
		ev, err := cl.Recv()
		ch <- result{ev, err}
	}()
	select {
	case r := <-ch:
		require.NoError(t, r.err)
		return r.ev
	case <-time.After(5 * time.Second):
		t.Fatal("no event")
		return nil
	}
}

func TestConnect_RoundTrip(t *testing.T) {
	cl, loop := startServer(t)
	vol := 12.5

	require.NoError(t, cl.Send(protocol.Initialize{ChartType: protocol.Candlestick}))
	require.NoError(t, cl.Send(protocol.SetData{Timeframe: "1m", Candles: []protocol.CandleInput{
		{Time: 0, Open: 10, High: 12, Low: 9, Close: 11, Volume: &vol},
		{Time: 60_000, Open: 11, High: 13, Low: 10, Close: 12},
	}}))
	assert.Equal(t, protocol.Ready{}, recvWithin(t, cl))

	require.NoError(t, cl.SendRecord(protocol.Record{"type": "teleport"}))
	ev := recvWithin(t, cl)
	require.IsType(t, protocol.Error{}, ev)
	assert.Contains(t, ev.(protocol.Error).Message, "teleport")

	require.NoError(t, cl.Send(protocol.SelectMarketPrice{}))
	ev = recvWithin(t, cl)
	ps, ok := ev.(protocol.PriceSelected)
	require.True(t, ok)
	assert.Equal(t, 12.0, ps.Price)
	require.NotNil(t, ps.Time)
	assert.Equal(t, int64(60_000), *ps.Time)

	var n int
	require.NoError(t, loop.Do(context.Background(), func(s *surface.Surface) { n = len(s.Candles()) }))
	assert.Equal(t, 2, n)
}
