package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/pagebot/pkg/models"
	"github.com/redis/go-redis/v9"
)

const DefaultLockRetry = 50 * time.Millisecond

// Locker grants exclusive ownership of a conversation key. Acquire blocks until the key is free or
// ctx is done. The returned release func is safe to call more than once.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// InMemoryLocker serializes holders inside one process. The ttl is ignored: a holder can only
// disappear together with the process.
type InMemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	held chan struct{}
	refs int
}

func NewInMemoryLocker() *InMemoryLocker {
	return &InMemoryLocker{locks: make(map[string]*lockEntry)}
}

func (l *InMemoryLocker) Acquire(ctx context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &lockEntry{held: make(chan struct{}, 1)}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.held <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, entry)

		return nil, fmt.Errorf("acquire lock for %s: %w", key, ctx.Err())
	}

	var once sync.Once

	return func() {
		once.Do(func() {
			<-entry.held
			l.unref(key, entry)
		})
	}, nil
}

func (l *InMemoryLocker) unref(key string, entry *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, key)
	}
}

// releaseScript deletes the lock only while it still holds the caller's token, so a holder whose
// ttl expired cannot release the next owner's lock.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// extendScript resets the expiry only while the lock still holds the caller's token.
var extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

type RedisLockerOption func(*RedisLocker)

func WithLockPrefix(prefix string) RedisLockerOption {
	return func(l *RedisLocker) {
		l.prefix = prefix
	}
}

func WithLockRetry(interval time.Duration) RedisLockerOption {
	return func(l *RedisLocker) {
		if interval > 0 {
			l.retry = interval
		}
	}
}

// RedisLocker serializes holders across processes with SET NX PX and a token checked on release.
// While a lock is held its expiry is pushed back every third of the ttl, so a turn that outlives
// the ttl keeps the conversation; the ttl only bounds how long a crashed holder blocks it.
type RedisLocker struct {
	logger *slog.Logger
	client redis.UniversalClient
	prefix string
	retry  time.Duration
}

func NewRedisLocker(logger *slog.Logger, client redis.UniversalClient, opts ...RedisLockerOption) *RedisLocker {
	l := &RedisLocker{
		logger: logger.With("module", "redis_locker"),
		client: client,
		prefix: "pagebot:lock:",
		retry:  DefaultLockRetry,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	redisKey := l.prefix + key
	token := models.NewID()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		acquired, err := l.client.SetNX(ctx, redisKey, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock for %s: %w", key, err)
		}

		if acquired {
			break
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire lock for %s: %w", key, ctx.Err())
		}
	}

	stop := make(chan struct{})
	stopped := make(chan struct{})

	go l.keepAlive(context.WithoutCancel(ctx), key, redisKey, token, ttl, stop, stopped)

	var once sync.Once

	return func() {
		once.Do(func() {
			close(stop)
			<-stopped

			err := releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{redisKey}, token).Err()
			if err != nil {
				l.logger.ErrorContext(ctx, "failed to release lock", "key", key, "error", err)
			}
		})
	}, nil
}

func (l *RedisLocker) keepAlive(
	ctx context.Context,
	key, redisKey, token string,
	ttl time.Duration,
	stop <-chan struct{},
	stopped chan<- struct{},
) {
	defer close(stopped)

	interval := ttl / 3
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		extended, err := extendScript.Run(ctx, l.client, []string{redisKey}, token, ttl.Milliseconds()).Int()
		if err != nil {
			l.logger.WarnContext(ctx, "failed to extend lock", "key", key, "error", err)

			continue
		}

		if extended == 0 {
			l.logger.ErrorContext(ctx, "lock expired while held", "key", key)

			return
		}
	}
}
