package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKV implements KV on top of Redis, using key TTLs for expiry.
type RedisKV struct {
	client *redis.Client
}

// NewRedisKV connects to redisURL and checks the connection.
func NewRedisKV(ctx context.Context, redisURL string) (*RedisKV, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &RedisKV{client: client}, nil
}

func (k *RedisKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return k.client.Set(ctx, key, value, ttl).Err()
}

func (k *RedisKV) Get(ctx context.Context, key string) (string, error) {
	value, err := k.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrKeyNotFound
	}
	return value, err
}

func (k *RedisKV) Del(ctx context.Context, key string) error {
	return k.client.Del(ctx, key).Err()
}

func (k *RedisKV) Close() error {
	return k.client.Close()
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryKV is an in-process KV for tests and single-instance development.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]memoryEntry
	now  func() time.Time
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		data: make(map[string]memoryEntry),
		now:  time.Now,
	}
}

func (k *MemoryKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = k.now().Add(ttl)
	}
	k.data[key] = entry
	return nil
}

func (k *MemoryKV) Get(ctx context.Context, key string) (string, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	entry, ok := k.data[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	if !entry.expiresAt.IsZero() && !k.now().Before(entry.expiresAt) {
		return "", ErrKeyNotFound
	}
	return entry.value, nil
}

func (k *MemoryKV) Del(ctx context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	delete(k.data, key)
	return nil
}

// Len reports how many keys are held, expired ones included.
func (k *MemoryKV) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.data)
}
