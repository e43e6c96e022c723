package drive

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisLockerAcquireRelease(t *testing.T) {
	locker := NewRedisLocker(newTestRedis(t))

	release, err := locker.Acquire(context.Background(), "L100")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	release()

	// Re-acquiring after release must not block.
	release, err = locker.Acquire(context.Background(), "L100")
	if err != nil {
		t.Fatalf("re-acquire: %v", err)
	}
	release()
}

func TestRedisLockerBlocksSecondHolder(t *testing.T) {
	locker := NewRedisLocker(newTestRedis(t))
	locker.retry = 10 * time.Millisecond

	release, err := locker.Acquire(context.Background(), "L200")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		second, err := locker.Acquire(context.Background(), "L200")
		if err == nil {
			second()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second acquirer must wait for release")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquirer never got the lock after release")
	}
}

func TestRedisLockerLocksPerCase(t *testing.T) {
	locker := NewRedisLocker(newTestRedis(t))

	releaseA, err := locker.Acquire(context.Background(), "L1")
	if err != nil {
		t.Fatalf("acquire L1: %v", err)
	}
	defer releaseA()

	done := make(chan error, 1)
	go func() {
		releaseB, err := locker.Acquire(context.Background(), "L2")
		if err == nil {
			releaseB()
		}
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("acquire L2: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("lock on L1 must not block L2")
	}
}

func TestRedisLockerHonorsContextCancel(t *testing.T) {
	locker := NewRedisLocker(newTestRedis(t))
	locker.retry = 10 * time.Millisecond

	release, err := locker.Acquire(context.Background(), "L300")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := locker.Acquire(ctx, "L300"); err == nil {
		t.Fatal("expected context error while lock is held")
	}
}
