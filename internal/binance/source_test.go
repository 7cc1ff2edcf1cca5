package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regime-trading-bot/internal/vault"
)

func TestNewFuturesSourceRequiresCredentials(t *testing.T) {
	_, err := NewFuturesSource(vault.Credentials{APIKey: "k"}, time.Second, zerolog.Nop())
	assert.ErrorIs(t, err, vault.ErrMissingCredentials)
}

func TestGetCandlesDropsFormingBar(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 7, 0, 0, time.UTC)
	closed := now.Add(-2 * time.Minute).UnixMilli()
	forming := now.Add(3 * time.Minute).UnixMilli()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "5m", r.URL.Query().Get("interval"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			[1717243200000,"100.0","101.5","99.5","101.0","12.5",` + itoa(closed) + `,"1250.0",42,"7.5","750.0","0"],
			[1717243500000,"101.0","102.0","100.5","101.8","3.0",` + itoa(forming) + `,"300.0",9,"1.0","100.0","0"]
		]`))
	}))
	defer srv.Close()

	client := futures.NewClient("", "")
	client.BaseURL = srv.URL
	s := newFuturesSource(client, zerolog.Nop())
	s.now = func() time.Time { return now }

	candles, err := s.GetCandles(context.Background(), "btc/usdt", "5m", 2)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.Equal(t, 101.0, candles[0].Close)
	assert.Equal(t, 7.5, candles[0].TakerBuyVolume)
	assert.Equal(t, time.UnixMilli(1717243200000).UTC(), candles[0].Timestamp)
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }

func TestIntervalDuration(t *testing.T) {
	d, ok := IntervalDuration("15m")
	assert.True(t, ok)
	assert.Equal(t, 15*time.Minute, d)
	d, ok = IntervalDuration("4h")
	assert.True(t, ok)
	assert.Equal(t, 4*time.Hour, d)
	_, ok = IntervalDuration("x")
	assert.False(t, ok)
}

func TestMockSourceIsDeterministic(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := NewMockSource(7, 10000)
	a.SetClock(func() time.Time { return at })
	b := NewMockSource(7, 10000)
	b.SetClock(func() time.Time { return at })

	ca, err := a.GetCandles(context.Background(), "ETHUSDT", "15m", 250)
	require.NoError(t, err)
	cb, err := b.GetCandles(context.Background(), "ETHUSDT", "15m", 250)
	require.NoError(t, err)
	assert.Equal(t, ca, cb)
	require.Len(t, ca, 250)
	for i, c := range ca {
		assert.LessOrEqual(t, c.Low, c.Open)
		assert.GreaterOrEqual(t, c.High, c.Close)
		if i > 0 {
			assert.True(t, c.Timestamp.After(ca[i-1].Timestamp))
		}
	}

	acc, err := a.GetAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10000.0, acc.Equity)
}
