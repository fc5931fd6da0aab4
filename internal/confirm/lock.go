package confirm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrBusy means another confirmation of the same record is in flight.
var ErrBusy = errors.New("confirm: record is being confirmed")

// Locker grants exclusive access to a key without waiting.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker { return &LocalLocker{held: make(map[string]struct{})} }

func (l *LocalLocker) Lock(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, ErrBusy
	}
	l.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

// RedisLocker shares locks between instances. The TTL bounds a lock whose
// holder died before releasing it.
type RedisLocker struct {
	client *redislock.Client
	prefix string
	ttl    time.Duration
}

func NewRedisLocker(rc redis.UniversalClient, prefix string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: redislock.New(rc), prefix: prefix, ttl: ttl}
}

func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lock, err := r.client.Obtain(ctx, r.prefix+key, r.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrBusy
	}
	if err != nil {
		return nil, err
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = lock.Release(ctx)
	}, nil
}
