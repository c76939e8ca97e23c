// Package cache provides the byte-oriented key/value tiers the visibility
// layer stacks: an in-process bigcache tier and a Redis tier. Serialization
// is the caller's problem; the tiers only move bytes.
package cache

import (
	"context"
	"time"
)

// Cache is a best-effort key/value store with TTL and explicit invalidation.
// Implementations never surface errors: a failed read is a miss and a failed
// write is dropped, since every cached value can be recomputed.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration)
	Remove(ctx context.Context, key string)
}
