// Package settings tracks the global settings version: a monotonically
// increasing counter bumped by anything that changes access rules or board
// structure. Cached visibility decisions compare against it to detect
// staleness.
package settings

import (
	"context"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// Version exposes the counter. Current never fails: on a backend error the
// last value seen by this process is returned, which at worst keeps a cache
// entry alive until the next successful read.
type Version interface {
	Current(ctx context.Context) uint64
	Bump(ctx context.Context) uint64
}

// RedisVersion shares the counter across processes through a single Redis
// key driven by INCR.
type RedisVersion struct {
	client   *redis.Client
	key      string
	lastSeen atomic.Uint64
}

// NewRedisVersion tracks the counter under key on the given client.
func NewRedisVersion(client *redis.Client, key string) *RedisVersion {
	return &RedisVersion{client: client, key: key}
}

func (v *RedisVersion) Current(ctx context.Context) uint64 {
	n, err := v.client.Get(ctx, v.key).Uint64()
	if err != nil {
		return v.lastSeen.Load()
	}
	v.lastSeen.Store(n)
	return n
}

func (v *RedisVersion) Bump(ctx context.Context) uint64 {
	n, err := v.client.Incr(ctx, v.key).Uint64()
	if err != nil {
		return v.lastSeen.Load()
	}
	v.lastSeen.Store(n)
	return n
}

// LocalVersion is a process-local counter for tests and single-node tooling.
type LocalVersion struct {
	n atomic.Uint64
}

func (v *LocalVersion) Current(context.Context) uint64 { return v.n.Load() }
func (v *LocalVersion) Bump(context.Context) uint64    { return v.n.Add(1) }
