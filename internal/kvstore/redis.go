package kvstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"regime-trading-bot/config"
)

// deleteIfValueScript removes KEYS[1] only while it holds ARGV[1].
var deleteIfValueScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore implements Store on Redis. Every key is namespaced with the
// configured prefix so several deployments can share one instance.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger

	mu           sync.Mutex
	healthy      bool
	failureCount int
}

// NewRedisStore connects and pings. A failed ping is returned as an error:
// the pipeline must not start without its coordination store.
func NewRedisStore(ctx context.Context, cfg config.RedisConfig, logger zerolog.Logger) (*RedisStore, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is not enabled in configuration")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	rs := NewRedisStoreFromClient(client, cfg.Prefix, logger)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Address, err)
	}
	rs.healthy = true
	rs.logger.Info().Str("address", cfg.Address).Msg("Redis connected")
	return rs, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string, logger zerolog.Logger) *RedisStore {
	return &RedisStore{
		client:  client,
		prefix:  prefix,
		logger:  logger.With().Str("component", "RedisStore").Logger(),
		healthy: true,
	}
}

func (r *RedisStore) key(k string) string { return r.prefix + k }

// IsHealthy reports whether the last operation succeeded.
func (r *RedisStore) IsHealthy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.healthy
}

func (r *RedisStore) observe(err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil || errors.Is(err, redis.Nil) {
		if !r.healthy {
			r.logger.Info().Msg("Redis recovered")
		}
		r.healthy = true
		r.failureCount = 0
		return err
	}
	r.failureCount++
	if r.healthy && r.failureCount >= 3 {
		r.logger.Error().Err(err).Int("failures", r.failureCount).Msg("Redis marked unhealthy")
		r.healthy = false
	}
	return err
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err = r.observe(err); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

func (r *RedisStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.observe(r.client.Set(ctx, r.key(key), value, ttl).Err()); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.key(key), value, ttl).Result()
	if err = r.observe(err); err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.observe(r.client.Del(ctx, r.key(key)).Err()); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) DeleteIfValue(ctx context.Context, key string, value []byte) (bool, error) {
	n, err := deleteIfValueScript.Run(ctx, r.client, []string{r.key(key)}, value).Int()
	if err = r.observe(err); err != nil {
		return false, fmt.Errorf("redis compare-delete %s: %w", key, err)
	}
	return n == 1, nil
}

func (r *RedisStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, r.key(prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), r.prefix))
	}
	if err := r.observe(iter.Err()); err != nil {
		return nil, fmt.Errorf("redis scan %s: %w", prefix, err)
	}
	return keys, nil
}

// Close releases the connection pool.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// HealthCheck pings the server.
func (r *RedisStore) HealthCheck(ctx context.Context) error {
	return r.observe(r.client.Ping(ctx).Err())
}
