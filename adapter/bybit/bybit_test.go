package bybit

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntervalOf(t *testing.T) {
	for in, want := range map[string]string{
		"1m": "1", "5m": "5", "1h": "60", "4h": "240", "12h": "720",
		"1d": "D", "1w": "W", "1M": "M", "weird": "weird",
	} {
		assert.Equal(t, want, intervalOf(in), in)
	}
}

func TestParseWsMessage(t *testing.T) {
	ks, err := parseWsMessage("BTCUSDT", "1m", []byte(`{"op":"pong","success":true}`))
	require.NoError(t, err)
	assert.Empty(t, ks)

	msg := `{"topic":"kline.1.BTCUSDT","type":"snapshot","data":[{"start":1700000000000,
		"end":1700000059999,"interval":"1","open":"10","close":"11","high":"12","low":"9",
		"volume":"5.25","turnover":"0","confirm":true,"timestamp":1700000059999}]}`
	ks, err = parseWsMessage("BTCUSDT", "1m", []byte(msg))
	require.NoError(t, err)
	require.Len(t, ks, 1)
	k := ks[0]
	assert.Equal(t, "bybit", k.Exchange)
	assert.Equal(t, "1m", k.Interval)
	assert.Equal(t, 12.0, k.High)
	assert.Equal(t, 5.25, k.Volume)
	assert.True(t, k.IsClosed)
}

func TestBackfill(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "linear", q.Get("category"))
		assert.Equal(t, "1", q.Get("interval"))
		io.WriteString(w, `{"retCode":0,"retMsg":"OK","result":{"list":[
			["1700000060000","1.5","2.5","1","2","20","0"],
			["1700000000000","1","2","0.5","1.5","10","0"]
		]}}`)
	}))
	defer srv.Close()

	a := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer a.Close()
	a.restURL = srv.URL

	ks, err := a.Backfill(context.Background(), "BTCUSDT", "1m",
		time.UnixMilli(1700000000000), time.UnixMilli(1700000119999))
	require.NoError(t, err)
	require.Len(t, ks, 2)
	assert.Equal(t, int64(1700000000000), ks[0].OpenTime)
	assert.Equal(t, int64(1700000059999), ks[0].CloseTime)
	assert.Equal(t, 2.0, ks[1].Close)
}

func TestBackfill_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"retCode":10001,"retMsg":"params error","result":{}}`)
	}))
	defer srv.Close()

	a := New(nil)
	defer a.Close()
	a.restURL = srv.URL
	_, err := a.Backfill(context.Background(), "BTCUSDT", "1m", time.Now(), time.Now())
	assert.ErrorContains(t, err, "10001")
}
