// Package kvstore is the shared key-value store every pipeline process
// coordinates through: locks, circuit counters, the kill switch and cached
// calendar data all live here rather than in process memory.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Get for a missing or expired key.
var ErrNotFound = errors.New("kvstore: key not found")

// Store is a key-value store with per-key expiry. A ttl of zero means the
// key never expires.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// PutIfAbsent writes only when no live value exists and reports
	// whether it wrote.
	PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	// DeleteIfValue removes the key only while it still holds value.
	DeleteIfValue(ctx context.Context, key string, value []byte) (bool, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// GetJSON loads and decodes a JSON value.
func GetJSON(ctx context.Context, s Store, key string, out any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// PutJSON encodes and stores a JSON value.
func PutJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Put(ctx, key, data, ttl)
}
