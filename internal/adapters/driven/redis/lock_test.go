package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return client
}

func TestAcquireAndRelease(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	lock := NewLock(client)

	acquired, err := lock.Acquire(ctx, "tick", 10*time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !acquired {
		t.Fatal("expected to acquire free lock")
	}

	if err := lock.Release(ctx, "tick"); err != nil {
		t.Fatalf("release: %v", err)
	}

	// Released lock can be re-acquired
	acquired, err = lock.Acquire(ctx, "tick", 10*time.Second)
	if err != nil {
		t.Fatalf("re-acquire: %v", err)
	}
	if !acquired {
		t.Error("expected to re-acquire released lock")
	}
}

func TestAcquireHeldByOtherInstance(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	first := NewLock(client)
	second := NewLock(client)

	if first.ownerID == second.ownerID {
		t.Fatalf("instances share owner ID %s", first.ownerID)
	}

	acquired, err := first.Acquire(ctx, "tick", 10*time.Second)
	if err != nil || !acquired {
		t.Fatalf("first acquire = %v, %v", acquired, err)
	}

	acquired, err = second.Acquire(ctx, "tick", 10*time.Second)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if acquired {
		t.Error("second instance must not steal a held lock")
	}
}

func TestReleaseDoesNotTouchOthersLock(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	holder := NewLock(client)
	other := NewLock(client)

	if _, err := holder.Acquire(ctx, "tick", 10*time.Second); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// Other instance releasing is a no-op, not an error
	if err := other.Release(ctx, "tick"); err != nil {
		t.Fatalf("release by non-owner: %v", err)
	}

	acquired, err := other.Acquire(ctx, "tick", 10*time.Second)
	if err != nil {
		t.Fatalf("acquire after foreign release: %v", err)
	}
	if acquired {
		t.Error("lock must survive a release attempt by a non-owner")
	}
}

func TestExtend(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	holder := NewLock(client)
	other := NewLock(client)

	if _, err := holder.Acquire(ctx, "tick", 10*time.Second); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if err := holder.Extend(ctx, "tick", time.Minute); err != nil {
		t.Errorf("extend by owner: %v", err)
	}
	if err := other.Extend(ctx, "tick", time.Minute); err == nil {
		t.Error("extend by non-owner must fail")
	}
	if err := holder.Extend(ctx, "absent", time.Minute); err == nil {
		t.Error("extend of a lock never taken must fail")
	}
}

func TestPing(t *testing.T) {
	client := setupTestRedis(t)

	lock := NewLock(client)
	if err := lock.Ping(context.Background()); err != nil {
		t.Errorf("ping: %v", err)
	}
}
