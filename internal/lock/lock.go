// Package lock provides TTL mutual-exclusion locks for symbols and scheduled
// jobs on top of the shared key-value store. A lock carries its own expiry so
// a crashed holder never starves the key past the TTL.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"regime-trading-bot/internal/kvstore"
)

// Key prefixes
const (
	SymbolPrefix = "lock:symbol:"
	JobPrefix    = "lock:job:"
)

// ErrNotHeld is returned when releasing a lock the caller does not own.
var ErrNotHeld = errors.New("lock not held")

// Lock describes a held lock as stored in the key-value store.
type Lock struct {
	Key        string    `json:"key"`
	Owner      string    `json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the lock has lapsed at now.
func (l Lock) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// Handle is returned to the holder and is needed to release the lock.
type Handle struct {
	Lock
	raw []byte
}

// Manager acquires and releases locks.
type Manager struct {
	store  kvstore.Store
	logger zerolog.Logger
	now    func() time.Time
}

func NewManager(store kvstore.Store, logger zerolog.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logger.With().Str("component", "LockManager").Logger(),
		now:    time.Now,
	}
}

// SetClock replaces the time source.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// AcquireSymbol tries to lock a trading symbol. ok is false when an unexpired
// lock already exists. A store error means the lock state is unknown and the
// caller must not trade.
func (m *Manager) AcquireSymbol(ctx context.Context, symbol string, ttl time.Duration) (*Handle, bool, error) {
	return m.acquire(ctx, SymbolPrefix+strings.ToUpper(symbol), ttl)
}

// AcquireJob tries to lock a scheduled job so overlapping runs skip.
func (m *Manager) AcquireJob(ctx context.Context, job string, ttl time.Duration) (*Handle, bool, error) {
	return m.acquire(ctx, JobPrefix+job, ttl)
}

func (m *Manager) acquire(ctx context.Context, key string, ttl time.Duration) (*Handle, bool, error) {
	if ttl <= 0 {
		return nil, false, fmt.Errorf("lock %s: ttl must be positive", key)
	}
	now := m.now()
	l := Lock{
		Key:        key,
		Owner:      uuid.NewString(),
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	raw, err := json.Marshal(l)
	if err != nil {
		return nil, false, fmt.Errorf("encode lock %s: %w", key, err)
	}
	ok, err := m.store.PutIfAbsent(ctx, key, raw, ttl)
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		m.logger.Debug().Str("key", key).Msg("Lock already held")
		return nil, false, nil
	}
	return &Handle{Lock: l, raw: raw}, true, nil
}

// Release deletes the lock only if it is still the one the handle acquired.
// A lock that already expired (and possibly was re-acquired by someone else)
// yields ErrNotHeld.
func (m *Manager) Release(ctx context.Context, h *Handle) error {
	if h == nil {
		return ErrNotHeld
	}
	ok, err := m.store.DeleteIfValue(ctx, h.Key, h.raw)
	if err != nil {
		return fmt.Errorf("release lock %s: %w", h.Key, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotHeld, h.Key)
	}
	return nil
}

// ForceReleaseSymbol removes a symbol lock regardless of owner.
func (m *Manager) ForceReleaseSymbol(ctx context.Context, symbol string) error {
	key := SymbolPrefix + strings.ToUpper(symbol)
	if err := m.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("force release %s: %w", key, err)
	}
	m.logger.Warn().Str("key", key).Msg("Lock force-released by operator")
	return nil
}

// Get returns the current holder of key, if any.
func (m *Manager) Get(ctx context.Context, key string) (Lock, bool, error) {
	var l Lock
	err := kvstore.GetJSON(ctx, m.store, key, &l)
	if errors.Is(err, kvstore.ErrNotFound) {
		return Lock{}, false, nil
	}
	if err != nil {
		return Lock{}, false, fmt.Errorf("read lock %s: %w", key, err)
	}
	if l.Expired(m.now()) {
		return Lock{}, false, nil
	}
	return l, true, nil
}

// List returns all live locks, sorted by key.
func (m *Manager) List(ctx context.Context) ([]Lock, error) {
	var out []Lock
	for _, prefix := range []string{SymbolPrefix, JobPrefix} {
		keys, err := m.store.List(ctx, prefix)
		if err != nil {
			return nil, fmt.Errorf("list locks: %w", err)
		}
		for _, k := range keys {
			l, ok, err := m.Get(ctx, k)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, l)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
