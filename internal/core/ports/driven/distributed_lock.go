package driven

import (
	"context"
	"time"
)

// DistributedLock coordinates work across multiple instances.
// Used to keep overlapping orchestrator ticks from double-dispatching when
// the service runs replicated; the tick itself stays idempotent without it.
type DistributedLock interface {
	// Acquire attempts to take a named lock with a TTL.
	// Returns true if acquired, false if held elsewhere.
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)

	// Release releases a named lock if held by this instance.
	Release(ctx context.Context, name string) error

	// Extend extends the TTL of a held lock.
	Extend(ctx context.Context, name string, ttl time.Duration) error
}
