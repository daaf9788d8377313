package sim

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yitech/candlechart/model/candle"
)

func TestBackfill_ContiguousValidKlines(t *testing.T) {
	a := New(Config{Base: 100, Seed: 1}, nil)
	defer a.Close()

	start := time.Date(2024, 1, 1, 0, 0, 30, 0, time.UTC)
	end := start.Add(10 * time.Minute)
	ks, err := a.Backfill(context.Background(), "SIM", "1m", start, end)
	require.NoError(t, err)
	require.Len(t, ks, 11)

	for i, k := range ks {
		assert.True(t, k.Candle().Valid(), "kline %d", i)
		assert.True(t, k.IsClosed)
		assert.Equal(t, k.OpenTime+59_999, k.CloseTime)
		if i > 0 {
			assert.Equal(t, ks[i-1].OpenTime+60_000, k.OpenTime)
		}
	}
	assert.Equal(t, start.Truncate(time.Minute).UnixMilli(), ks[0].OpenTime)
}

func TestBackfill_Deterministic(t *testing.T) {
	start := time.Unix(0, 0)
	end := start.Add(time.Hour)
	a, b := New(Config{Seed: 42}, nil), New(Config{Seed: 42}, nil)
	ka, err := a.Backfill(context.Background(), "SIM", "5m", start, end)
	require.NoError(t, err)
	kb, err := b.Backfill(context.Background(), "SIM", "5m", start, end)
	require.NoError(t, err)
	assert.Equal(t, ka, kb)
}

func TestBadInterval(t *testing.T) {
	a := New(Config{}, nil)
	defer a.Close()
	_, err := a.Backfill(context.Background(), "SIM", "fortnight", time.Now(), time.Now())
	assert.Error(t, err)
	_, err = a.Subscribe(context.Background(), "SIM", "?", func(candle.Kline) {})
	assert.Error(t, err)
}

func TestSubscribe_RollsPeriods(t *testing.T) {
	var clock atomic.Int64
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock.Store(base.UnixNano())
	a := New(Config{Seed: 3, Tick: 5 * time.Millisecond, Now: func() time.Time {
		return time.Unix(0, clock.Add(int64(10*time.Second)))
	}}, nil)
	defer a.Close()

	got := make(chan candle.Kline, 64)
	tok, err := a.Subscribe(context.Background(), "SIM", "1m", func(k candle.Kline) {
		select {
		case got <- k:
		default:
		}
	})
	require.NoError(t, err)
	defer tok.Unsubscribe()

	var closed, last candle.Kline
	deadline := time.After(5 * time.Second)
	for closed.OpenTime == 0 {
		select {
		case k := <-got:
			require.True(t, k.Candle().Valid())
			if last.OpenTime != 0 {
				require.GreaterOrEqual(t, k.OpenTime, last.OpenTime)
			}
			last = k
			if k.IsClosed {
				closed = k
			}
		case <-deadline:
			t.Fatal("no closed kline")
		}
	}
	assert.Equal(t, closed.OpenTime+59_999, closed.CloseTime)
}
