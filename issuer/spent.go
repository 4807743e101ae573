package issuer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SpentStore records redeemed tokens.
type SpentStore interface {
	// MarkSpent records id for ttl and reports whether it was not already
	// recorded.
	MarkSpent(ctx context.Context, id string, ttl time.Duration) (bool, error)
}

// MemorySpentStore is a process-local SpentStore.
type MemorySpentStore struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]time.Time
	maxKeys int
}

// MemorySpentStoreConfig configures a MemorySpentStore.
type MemorySpentStoreConfig struct {
	Now func() time.Time
	// MaxKeys bounds the number of live entries. Default: 1,000,000.
	MaxKeys int
}

// ErrSpentStoreFull is returned when a MemorySpentStore has no room left
// after dropping expired entries.
var ErrSpentStoreFull = errors.New("spent token store capacity exceeded")

// NewMemorySpentStore creates an empty in-memory store.
func NewMemorySpentStore(cfg MemorySpentStoreConfig) *MemorySpentStore {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = 1_000_000
	}
	return &MemorySpentStore{
		now:     cfg.Now,
		entries: make(map[string]time.Time),
		maxKeys: cfg.MaxKeys,
	}
}

func (m *MemorySpentStore) MarkSpent(_ context.Context, id string, ttl time.Duration) (bool, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if until, ok := m.entries[id]; ok && now.Before(until) {
		return false, nil
	}
	if len(m.entries) >= m.maxKeys {
		m.gc(now)
	}
	if len(m.entries) >= m.maxKeys {
		return false, ErrSpentStoreFull
	}
	m.entries[id] = now.Add(ttl)
	return true, nil
}

// Len returns the number of entries, expired ones included.
func (m *MemorySpentStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemorySpentStore) gc(now time.Time) {
	for id, until := range m.entries {
		if !now.Before(until) {
			delete(m.entries, id)
		}
	}
}

// DefaultRedisPrefix namespaces spent token keys.
const DefaultRedisPrefix = "pst:spent:"

// RedisSpentStore shares spent tokens between issuer replicas.
type RedisSpentStore struct {
	client *redis.Client
	prefix string
}

// RedisConfig holds the connection settings of a RedisSpentStore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Prefix is prepended to every key. Default: DefaultRedisPrefix.
	Prefix string
}

// NewRedisSpentStore connects to the Redis server described by cfg. The
// connection is established lazily.
func NewRedisSpentStore(cfg RedisConfig) (*RedisSpentStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisSpentStoreFromClient(client, cfg.Prefix), nil
}

// NewRedisSpentStoreFromClient wraps an existing client.
func NewRedisSpentStoreFromClient(client *redis.Client, prefix string) *RedisSpentStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisSpentStore{client: client, prefix: prefix}
}

func (r *RedisSpentStore) MarkSpent(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, r.prefix+id, 1, ttl).Result()
}

// Ping checks the connection.
func (r *RedisSpentStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the connection pool.
func (r *RedisSpentStore) Close() error {
	return r.client.Close()
}
