package kvstore_test

import (
	"sync"
	"testing"
	"time"

	"regime-trading-bot/internal/kvstore"
	"regime-trading-bot/internal/kvstore/kvstoretest"
)

// fakeClock is a manually stepped time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryStoreContract(t *testing.T) {
	kvstoretest.RunContract(t, func(t *testing.T) (kvstore.Store, kvstoretest.Advance) {
		clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
		s := kvstore.NewMemoryStore()
		s.SetClock(clock.Now)
		return s, clock.Advance
	})
}
