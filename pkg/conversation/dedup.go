package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultDedupTTL = 24 * time.Hour

// Deduplicator remembers which message ids were already accepted for a page.
type Deduplicator interface {
	// Claim reports whether mid is new. A false result means the delivery is a duplicate.
	Claim(ctx context.Context, pageID, mid string) (bool, error)
	// Forget drops a claim so a delivery that could not be enqueued can be retried.
	Forget(ctx context.Context, pageID, mid string) error
}

func dedupKey(pageID, mid string) string {
	return pageID + ":" + mid
}

// InMemoryDeduplicator keeps claims in a map and evicts them after ttl.
type InMemoryDeduplicator struct {
	mu    sync.Mutex
	seen  map[string]time.Time
	ttl   time.Duration
	now   func() time.Time
	sweep time.Time
}

func NewInMemoryDeduplicator(ttl time.Duration, now func() time.Time) *InMemoryDeduplicator {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}

	if now == nil {
		now = time.Now
	}

	return &InMemoryDeduplicator{seen: make(map[string]time.Time), ttl: ttl, now: now}
}

func (d *InMemoryDeduplicator) Claim(_ context.Context, pageID, mid string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.evict(now)

	key := dedupKey(pageID, mid)
	if expires, ok := d.seen[key]; ok && now.Before(expires) {
		return false, nil
	}

	d.seen[key] = now.Add(d.ttl)

	return true, nil
}

func (d *InMemoryDeduplicator) Forget(_ context.Context, pageID, mid string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.seen, dedupKey(pageID, mid))

	return nil
}

// evict drops expired claims at most once per ttl.
func (d *InMemoryDeduplicator) evict(now time.Time) {
	if now.Before(d.sweep) {
		return
	}

	for key, expires := range d.seen {
		if !now.Before(expires) {
			delete(d.seen, key)
		}
	}

	d.sweep = now.Add(d.ttl)
}

// RedisDeduplicator claims ids with SET NX so every API instance sees the same claims.
type RedisDeduplicator struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisDeduplicator(client redis.UniversalClient, ttl time.Duration) *RedisDeduplicator {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}

	return &RedisDeduplicator{client: client, prefix: "pagebot:mid:", ttl: ttl}
}

func (d *RedisDeduplicator) Claim(ctx context.Context, pageID, mid string) (bool, error) {
	claimed, err := d.client.SetNX(ctx, d.prefix+dedupKey(pageID, mid), 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim message %s: %w", mid, err)
	}

	return claimed, nil
}

func (d *RedisDeduplicator) Forget(ctx context.Context, pageID, mid string) error {
	err := d.client.Del(ctx, d.prefix+dedupKey(pageID, mid)).Err()
	if err != nil {
		return fmt.Errorf("failed to forget message %s: %w", mid, err)
	}

	return nil
}
