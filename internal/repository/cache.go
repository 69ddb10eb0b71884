package repository

import (
	"context"
	"strconv"
	"time"
)

// =============================================================================
// Cache Interface (Redis / memory)
// =============================================================================

// Cache defines the interface for caching operations.
// Implemented by cache/memory for single-node deployments and by
// repository/redis when several instances share state.
type Cache interface {
	// Get retrieves a value by key.
	// Returns ErrCacheMiss if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with an optional TTL.
	// If ttl is 0, the value doesn't expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX sets a value only if the key doesn't exist.
	// Returns true if the value was set, false if the key already exists.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Delete removes values by key. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// Exists checks if a key exists.
	Exists(ctx context.Context, key string) (bool, error)
}

// =============================================================================
// Common Cache Keys
// =============================================================================

// CacheKeys generates cache keys for common scenarios.
var CacheKeys = cacheKeys{}

type cacheKeys struct{}

// PhysicalFile returns the dedup cache key mapping a creator's content
// identifier to a physical file ID.
func (cacheKeys) PhysicalFile(userID int64, identifier string) string {
	return "cache:physical:" + strconv.FormatInt(userID, 10) + ":" + identifier
}

// LoginToken returns the cache key for a user's session token.
func (cacheKeys) LoginToken(userID int64) string {
	return "cache:login:" + strconv.FormatInt(userID, 10)
}
