// Package lock provides distributed and local locking abstractions.
// For single-node deployments, memory-based locks are used.
// For deployments where several instances share one metadata store,
// Redis-based locks serialize chunk merges across instances.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	// ErrNotAcquired indicates the lock is held by another owner.
	ErrNotAcquired = errors.New("lock not acquired")

	// ErrLockLost indicates a held lock expired or was taken over while
	// WithLock was running fn.
	ErrLockLost = errors.New("lock lost")
)

// Locker defines the interface for distributed/local locking.
// This abstraction allows switching between in-memory locks (single-node)
// and Redis-based locks (distributed) without changing business logic.
type Locker interface {
	// Acquire attempts to acquire a lock.
	// Returns true if the lock was acquired, false if it's held by another owner.
	// The lock will automatically expire after the specified TTL.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// AcquireWithRetry attempts to acquire a lock with retries.
	// Will retry up to maxRetries times with retryDelay between attempts.
	AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error)

	// Release releases a lock held by this locker.
	// Returns true if the lock was released, false if it wasn't held.
	Release(ctx context.Context, key string) (bool, error)

	// Extend extends the TTL of a held lock.
	// Returns true if the lock was extended, false if it's not held.
	Extend(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsHeld checks if the lock is currently held by anyone.
	IsHeld(ctx context.Context, key string) (bool, error)
}

// WithLock runs fn while holding key, retrying acquisition as configured.
// Returns ErrNotAcquired if the lock could not be taken.
//
// The TTL is extended every third of opts.TTL while fn runs. If an extension
// finds the key no longer held, the context passed to fn is cancelled with
// cause ErrLockLost.
func WithLock(ctx context.Context, l Locker, key string, opts Options, fn func(ctx context.Context) error) error {
	acquired, err := l.AcquireWithRetry(ctx, key, opts.TTL, opts.MaxRetries, opts.RetryDelay)
	if err != nil {
		return err
	}
	if !acquired {
		return ErrNotAcquired
	}

	defer func() {
		// Release with a fresh context so a cancelled caller still frees the key.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_, _ = l.Release(releaseCtx, key)
	}()

	fnCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		keepAlive(fnCtx, l, key, opts.TTL, stop, cancel)
	}()
	defer func() {
		close(stop)
		<-done
	}()

	err = fn(fnCtx)
	if err != nil && errors.Is(context.Cause(fnCtx), ErrLockLost) {
		return fmt.Errorf("%w: %w", ErrLockLost, err)
	}
	return err
}

// keepAlive extends key until stop is closed. A failed call is retried on
// the next tick; a key that is no longer held ends the loop through lost.
func keepAlive(ctx context.Context, l Locker, key string, ttl time.Duration, stop <-chan struct{}, lost context.CancelCauseFunc) {
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
		case <-ctx.Done():
			return
		case <-ticker.C:
			extended, err := l.Extend(ctx, key, ttl)
			if err != nil {
				continue
			}
			if !extended {
				lost(ErrLockLost)
				return
			}
		}
	}
}

// Options controls WithLock acquisition.
type Options struct {
	TTL        time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultOptions waits up to roughly ten seconds for a contended key.
func DefaultOptions() Options {
	return Options{
		TTL:        2 * time.Minute,
		MaxRetries: 200,
		RetryDelay: 50 * time.Millisecond,
	}
}

// =============================================================================
// Common Lock Keys
// =============================================================================

// Keys provides lock key generation for common scenarios.
var Keys = lockKeys{}

type lockKeys struct{}

// ChunkUpload returns the lock key guarding the save, completeness
// check and merge of one chunked upload.
func (lockKeys) ChunkUpload(userID int64, identifier string) string {
	return "lock:chunk:" + strconv.FormatInt(userID, 10) + ":" + identifier
}

// ChunkGC returns a lock key for expired chunk collection.
func (lockKeys) ChunkGC() string {
	return "lock:gc:chunks"
}
