package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const deliveryKeyPrefix = "sbp:delivery:"

// RedisDeliveryGuard remembers webhook deliveries across gateway replicas.
type RedisDeliveryGuard struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisDeliveryGuard(rdb *redis.Client, ttl time.Duration) *RedisDeliveryGuard {
	return &RedisDeliveryGuard{rdb: rdb, ttl: ttl}
}

func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("NewRedisClient: parse url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("NewRedisClient: ping: %w", err)
	}
	return rdb, nil
}

// Seen marks key as delivered and reports whether it already was.
func (g *RedisDeliveryGuard) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := g.rdb.SetNX(ctx, deliveryKeyPrefix+key, "1", g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("Seen: %w", err)
	}
	return !ok, nil
}

// Forget drops key so a redelivery is processed again.
func (g *RedisDeliveryGuard) Forget(ctx context.Context, key string) error {
	if err := g.rdb.Del(ctx, deliveryKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("Forget: %w", err)
	}
	return nil
}

type MemoryDeliveryGuard struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

func NewMemoryDeliveryGuard(ttl time.Duration) *MemoryDeliveryGuard {
	return &MemoryDeliveryGuard{
		ttl:  ttl,
		seen: map[string]time.Time{},
		now:  time.Now,
	}
}

func (g *MemoryDeliveryGuard) Seen(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if exp, ok := g.seen[key]; ok && now.Before(exp) {
		return true, nil
	}
	g.seen[key] = now.Add(g.ttl)

	// opportunistic sweep so the map does not grow without bound
	if len(g.seen)%256 == 0 {
		for k, exp := range g.seen {
			if !now.Before(exp) {
				delete(g.seen, k)
			}
		}
	}
	return false, nil
}

func (g *MemoryDeliveryGuard) Forget(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, key)
	return nil
}
