package lockout

import (
	"context"
	"time"
)

// Store tracks failed authentication attempts per key. Counters live inside
// a sliding window; locks carry their own expiry. Implementations own their
// concurrency guarantees.
type Store interface {
	// RecordFailure increments the failure counter for key and returns the
	// count inside the current window. The first failure starts the window.
	RecordFailure(ctx context.Context, key string, window time.Duration) (int, error)
	// Failures returns the current in-window failure count.
	Failures(ctx context.Context, key string) (int, error)
	// Lock marks the key locked until the given time.
	Lock(ctx context.Context, key string, until time.Time) error
	// LockedUntil returns the lock expiry, or nil when not locked.
	LockedUntil(ctx context.Context, key string) (*time.Time, error)
	// Clear removes the counter and any lock for key.
	Clear(ctx context.Context, key string) error
}
