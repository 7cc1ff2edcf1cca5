package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedger() (*Ledger, *MemoryStore) {
	store := NewMemoryStore()
	l := New(store, zerolog.Nop())
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	l.SetClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	})
	return l, store
}

func TestRecordTradeOpensPosition(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger()

	open, err := l.HasOpenPosition(ctx, "EURUSD")
	require.NoError(t, err)
	assert.False(t, open)

	tr, err := l.RecordTrade(ctx, NewTrade{Symbol: "eurusd", Side: SideLong, EntryPrice: 1.1, Quantity: 1000})
	require.NoError(t, err)
	assert.NotEmpty(t, tr.ID)
	assert.Equal(t, "EURUSD", tr.Symbol)
	assert.Equal(t, StatusOpen, tr.Status)
	assert.Nil(t, tr.ExitPrice)

	open, err = l.HasOpenPosition(ctx, "EURUSD")
	require.NoError(t, err)
	assert.True(t, open)
}

func TestRecordTradeValidatesInput(t *testing.T) {
	l, _ := newLedger()
	ctx := context.Background()
	_, err := l.RecordTrade(ctx, NewTrade{Symbol: "X", Side: "UP", EntryPrice: 1, Quantity: 1})
	assert.Error(t, err)
	_, err = l.RecordTrade(ctx, NewTrade{Symbol: "X", Side: SideLong, EntryPrice: 0, Quantity: 1})
	assert.Error(t, err)
	_, err = l.RecordTrade(ctx, NewTrade{Side: SideLong, EntryPrice: 1, Quantity: 1})
	assert.Error(t, err)
}

func TestCloseTradeComputesPnL(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger()

	long, err := l.RecordTrade(ctx, NewTrade{Symbol: "EURUSD", Side: SideLong, EntryPrice: 1.1, Quantity: 1000})
	require.NoError(t, err)
	ok, err := l.CloseTrade(ctx, long.ID, 1.105)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := l.Get(ctx, long.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, got.Status)
	require.NotNil(t, got.PnL)
	assert.InDelta(t, 0.005, *got.PnL, 1e-12)
	assert.InDelta(t, 5.0, *got.RealizedPnL, 1e-9)
	assert.InDelta(t, 0.4545, *got.PnLPercent, 1e-9)
	assert.NotNil(t, got.ClosedAt)

	short, err := l.RecordTrade(ctx, NewTrade{Symbol: "BTCUSDT", Side: SideShort, EntryPrice: 100, Quantity: 2})
	require.NoError(t, err)
	ok, err = l.CloseTrade(ctx, short.ID, 90)
	require.NoError(t, err)
	require.True(t, ok)
	got, err = l.Get(ctx, short.ID)
	require.NoError(t, err)
	assert.Equal(t, 10.0, *got.PnL)
	assert.Equal(t, 20.0, *got.RealizedPnL)
	assert.Equal(t, 10.0, *got.PnLPercent)
}

func TestCloseTradeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger()

	tr, err := l.RecordTrade(ctx, NewTrade{Symbol: "ETHUSDT", Side: SideLong, EntryPrice: 2000, Quantity: 1})
	require.NoError(t, err)

	ok, err := l.CloseTrade(ctx, tr.ID, 2100)
	require.NoError(t, err)
	require.True(t, ok)
	first, err := l.Get(ctx, tr.ID)
	require.NoError(t, err)

	ok, err = l.CloseTrade(ctx, tr.ID, 1500)
	require.NoError(t, err)
	assert.False(t, ok)
	second, err := l.Get(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second, "second close must not mutate the trade")

	ok, err = l.CloseTrade(ctx, "does-not-exist", 1)
	require.NoError(t, err)
	assert.False(t, ok)

	open, err := l.HasOpenPosition(ctx, "ETHUSDT")
	require.NoError(t, err)
	assert.False(t, open)
}

func TestCloseTradeChecksExistenceBeforeExitPrice(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger()

	ok, err := l.CloseTrade(ctx, "does-not-exist", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	tr, err := l.RecordTrade(ctx, NewTrade{Symbol: "ETHUSDT", Side: SideLong, EntryPrice: 2000, Quantity: 1})
	require.NoError(t, err)

	ok, err = l.CloseTrade(ctx, tr.ID, -5)
	require.Error(t, err)
	assert.False(t, ok)
	still, err := l.Get(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, still.Status)

	ok, err = l.CloseTrade(ctx, tr.ID, 2100)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.CloseTrade(ctx, tr.ID, 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConcurrentClosesSucceedOnce(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger()
	l.SetClock(time.Now)

	tr, err := l.RecordTrade(ctx, NewTrade{Symbol: "SOLUSDT", Side: SideLong, EntryPrice: 150, Quantity: 3})
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.CloseTrade(ctx, tr.ID, 155)
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestPerformanceFromClosedTrades(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger()

	closeAt := func(side Side, entry, exit, qty float64) {
		tr, err := l.RecordTrade(ctx, NewTrade{Symbol: "BTCUSDT", Side: side, EntryPrice: entry, Quantity: qty})
		require.NoError(t, err)
		ok, err := l.CloseTrade(ctx, tr.ID, exit)
		require.NoError(t, err)
		require.True(t, ok)
	}
	closeAt(SideLong, 100, 110, 10)  // +100
	closeAt(SideLong, 100, 130, 10)  // +300
	closeAt(SideShort, 100, 110, 10) // -100
	closeAt(SideLong, 100, 100, 10)  // flat

	// other symbols and open trades are ignored
	_, err := l.RecordTrade(ctx, NewTrade{Symbol: "BTCUSDT", Side: SideLong, EntryPrice: 1, Quantity: 1})
	require.NoError(t, err)
	other, err := l.RecordTrade(ctx, NewTrade{Symbol: "ETHUSDT", Side: SideLong, EntryPrice: 1, Quantity: 1})
	require.NoError(t, err)
	_, err = l.CloseTrade(ctx, other.ID, 2)
	require.NoError(t, err)

	p, err := l.Performance(ctx, "BTCUSDT", 50)
	require.NoError(t, err)
	assert.Equal(t, 4, p.Trades)
	assert.Equal(t, 2, p.Wins)
	assert.Equal(t, 1, p.Losses)
	assert.InDelta(t, 0.5, p.WinRate, 1e-12)
	assert.InDelta(t, 200, p.AvgWin, 1e-9)
	assert.InDelta(t, 100, p.AvgLoss, 1e-9)

	recent, err := l.Performance(ctx, "BTCUSDT", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, recent.Trades)
}

func TestOpenTradesListsAllSymbols(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger()
	for _, s := range []string{"A", "B"} {
		_, err := l.RecordTrade(ctx, NewTrade{Symbol: s, Side: SideLong, EntryPrice: 1, Quantity: 1})
		require.NoError(t, err)
	}
	open, err := l.OpenTrades(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "B", open[0].Symbol, "newest first")
}
