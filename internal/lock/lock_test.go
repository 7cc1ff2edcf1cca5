package lock

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regime-trading-bot/internal/kvstore"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newManager() (*Manager, *clock) {
	c := &clock{now: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)}
	store := kvstore.NewMemoryStore()
	store.SetClock(c.Now)
	m := NewManager(store, zerolog.Nop())
	m.SetClock(c.Now)
	return m, c
}

func TestSymbolLockExclusiveUntilRelease(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager()

	h, ok, err := m.AcquireSymbol(ctx, "EURUSD", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, SymbolPrefix+"EURUSD", h.Key)
	assert.NotEmpty(t, h.Owner)

	_, ok, err = m.AcquireSymbol(ctx, "EURUSD", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire before expiry must fail")

	require.NoError(t, m.Release(ctx, h))
	_, ok, err = m.AcquireSymbol(ctx, "eurusd", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "acquire after release must succeed")
}

func TestSymbolLockSelfHealsAfterExpiry(t *testing.T) {
	ctx := context.Background()
	m, c := newManager()

	_, ok, err := m.AcquireSymbol(ctx, "BTCUSDT", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	c.Advance(30 * time.Second)
	_, ok, err = m.AcquireSymbol(ctx, "BTCUSDT", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseAfterTakeoverIsRejected(t *testing.T) {
	ctx := context.Background()
	m, c := newManager()

	stale, ok, err := m.AcquireSymbol(ctx, "ETHUSDT", 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	c.Advance(11 * time.Second)
	fresh, ok, err := m.AcquireSymbol(ctx, "ETHUSDT", 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	assert.ErrorIs(t, m.Release(ctx, stale), ErrNotHeld)
	held, ok, err := m.Get(ctx, fresh.Key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, fresh.Owner, held.Owner)
}

func TestJobLocksAreIndependentOfSymbols(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager()

	_, ok, err := m.AcquireJob(ctx, "tick", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, err = m.AcquireJob(ctx, "tick", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = m.AcquireSymbol(ctx, "tick", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	locks, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, locks, 2)
	assert.Equal(t, JobPrefix+"tick", locks[0].Key)
	assert.Equal(t, SymbolPrefix+"TICK", locks[1].Key)
}

func TestForceReleaseSymbol(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager()

	_, ok, err := m.AcquireSymbol(ctx, "SOLUSDT", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, m.ForceReleaseSymbol(ctx, "solusdt"))
	_, ok, err = m.AcquireSymbol(ctx, "SOLUSDT", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAcquireRejectsNonPositiveTTL(t *testing.T) {
	m, _ := newManager()
	_, ok, err := m.AcquireSymbol(context.Background(), "X", 0)
	assert.Error(t, err)
	assert.False(t, ok)
}
