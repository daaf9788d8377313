package adapter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yitech/candlechart/model/candle"
)

func TestParsePrice(t *testing.T) {
	for in, want := range map[string]float64{
		"37000.10":   37000.1,
		"0.00000123": 0.00000123,
		"-5":         -5,
		"1e3":        1000,
	} {
		got, err := ParsePrice(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParsePrice("")
	assert.Error(t, err)
	_, err = ParsePrice("12,5")
	assert.Error(t, err)
}

func TestRowFill(t *testing.T) {
	var k candle.Kline
	require.NoError(t, Row{Open: "1", High: "2", Low: "0.5", Close: "1.5", Volume: "10"}.Fill(&k))
	assert.Equal(t, candle.Kline{Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10}, k)

	err := Row{Open: "1", High: "x", Low: "0", Close: "1", Volume: "1"}.Fill(&k)
	assert.ErrorContains(t, err, "high")
}

func TestRedial_RetriesUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		Redial(ctx, slog.New(slog.NewTextHandler(io.Discard, nil)), func(ctx context.Context) error {
			if calls.Add(1) == 3 {
				cancel()
				<-ctx.Done()
				return nil
			}
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("redial did not stop")
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestRedial_BacksOffOnError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()
	var calls atomic.Int32
	Redial(ctx, slog.New(slog.NewTextHandler(io.Discard, nil)), func(context.Context) error {
		calls.Add(1)
		return errors.New("refused")
	})
	// Immediately, then after 1s; the next attempt would be 2s later.
	assert.Equal(t, int32(2), calls.Load())
}

func TestCancelToken(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var tok Token = CancelToken(cancel)
	tok.Unsubscribe()
	assert.Error(t, ctx.Err())
}

func TestGetJSON(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ok" {
			http.Error(w, "nope", http.StatusTeapot)
			return
		}
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"n":3}`))
	}))
	defer srv.Close()

	var out struct{ N int }
	err := GetJSON(context.Background(), srv.Client(), "feed", srv.URL, "/ok", url.Values{"a": {"1"}}, &out)
	require.NoError(t, err)
	assert.Equal(t, 3, out.N)
	assert.Equal(t, "a=1", gotQuery)

	err = GetJSON(context.Background(), srv.Client(), "feed", srv.URL, "/missing", nil, &out)
	assert.ErrorContains(t, err, "feed: unexpected status 418")
}
