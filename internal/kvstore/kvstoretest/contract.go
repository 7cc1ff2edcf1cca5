// Package kvstoretest holds the behavior every kvstore.Store must share.
package kvstoretest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regime-trading-bot/internal/kvstore"
)

// Advance moves the store's notion of time forward. Real-time stores pass
// a function that sleeps.
type Advance func(d time.Duration)

// RunContract exercises a Store implementation. newStore must return an
// empty store for every call.
func RunContract(t *testing.T, newStore func(t *testing.T) (kvstore.Store, Advance)) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		s, _ := newStore(t)
		_, err := s.Get(ctx, "nope")
		assert.True(t, errors.Is(err, kvstore.ErrNotFound))
	})

	t.Run("put get delete", func(t *testing.T) {
		s, _ := newStore(t)
		require.NoError(t, s.Put(ctx, "a", []byte("1"), 0))
		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, []byte("1"), got)

		require.NoError(t, s.Delete(ctx, "a"))
		_, err = s.Get(ctx, "a")
		assert.ErrorIs(t, err, kvstore.ErrNotFound)
		// deleting twice is fine
		require.NoError(t, s.Delete(ctx, "a"))
	})

	t.Run("ttl expiry", func(t *testing.T) {
		s, advance := newStore(t)
		require.NoError(t, s.Put(ctx, "ttl", []byte("x"), time.Second))
		_, err := s.Get(ctx, "ttl")
		require.NoError(t, err)

		advance(1500 * time.Millisecond)
		_, err = s.Get(ctx, "ttl")
		assert.ErrorIs(t, err, kvstore.ErrNotFound)
	})

	t.Run("put if absent", func(t *testing.T) {
		s, advance := newStore(t)
		ok, err := s.PutIfAbsent(ctx, "lock", []byte("a"), time.Second)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.PutIfAbsent(ctx, "lock", []byte("b"), time.Second)
		require.NoError(t, err)
		assert.False(t, ok)

		advance(1500 * time.Millisecond)
		ok, err = s.PutIfAbsent(ctx, "lock", []byte("c"), time.Second)
		require.NoError(t, err)
		assert.True(t, ok, "expired key must be claimable")
	})

	t.Run("delete if value", func(t *testing.T) {
		s, _ := newStore(t)
		require.NoError(t, s.Put(ctx, "owner", []byte("me"), 0))

		ok, err := s.DeleteIfValue(ctx, "owner", []byte("you"))
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = s.DeleteIfValue(ctx, "owner", []byte("me"))
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.DeleteIfValue(ctx, "owner", []byte("me"))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("list prefix", func(t *testing.T) {
		s, _ := newStore(t)
		for _, k := range []string{"lock:symbol:BTC", "lock:symbol:ETH", "lock:job:tick", "circuit:x"} {
			require.NoError(t, s.Put(ctx, k, []byte("1"), 0))
		}
		keys, err := s.List(ctx, "lock:symbol:")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"lock:symbol:BTC", "lock:symbol:ETH"}, keys)
	})

	t.Run("json helpers", func(t *testing.T) {
		s, _ := newStore(t)
		type rec struct {
			N int    `json:"n"`
			S string `json:"s"`
		}
		require.NoError(t, kvstore.PutJSON(ctx, s, "rec", rec{N: 3, S: "x"}, 0))
		var out rec
		require.NoError(t, kvstore.GetJSON(ctx, s, "rec", &out))
		assert.Equal(t, rec{N: 3, S: "x"}, out)
	})
}
