package drive

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker serializes folder provisioning for a case so two concurrent
// ensure calls cannot both miss and create duplicate folders.
type Locker interface {
	Acquire(ctx context.Context, caseNumber string) (release func(), err error)
}

// RedisLocker implements Locker with SET NX and a TTL so a crashed holder
// cannot wedge provisioning forever.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{
		client: client,
		ttl:    30 * time.Second,
		retry:  200 * time.Millisecond,
	}
}

func (l *RedisLocker) key(caseNumber string) string {
	return "drive:provision:" + caseNumber
}

// Acquire blocks until the lock is held or the context ends.
func (l *RedisLocker) Acquire(ctx context.Context, caseNumber string) (func(), error) {
	key := l.key(caseNumber)
	for {
		ok, err := l.client.SetNX(ctx, key, "1", l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire provisioning lock: %w", err)
		}
		if ok {
			return func() {
				l.client.Del(context.Background(), key)
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire provisioning lock: %w", ctx.Err())
		case <-time.After(l.retry):
		}
	}
}

// NoopLocker is used when Redis is not configured; provisioning then relies
// on the remote store's create-if-absent conflict behavior alone.
type NoopLocker struct{}

func (NoopLocker) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}
