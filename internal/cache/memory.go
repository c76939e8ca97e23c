package cache

import (
	"context"
	"time"

	"github.com/allegro/bigcache/v3"
)

// Memory is the L1 tier backed by bigcache. bigcache expires whole shards on
// a single life window, so the per-entry TTL passed to Put is ignored; the
// window is fixed at construction.
type Memory struct {
	inner *bigcache.BigCache
}

// NewMemory creates an in-process tier capped at hardMaxMB with the given
// life window.
func NewMemory(hardMaxMB int, lifeWindow time.Duration) (*Memory, error) {
	cfg := bigcache.DefaultConfig(lifeWindow)
	cfg.HardMaxCacheSize = hardMaxMB
	inner, err := bigcache.New(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	return &Memory{inner: inner}, nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	data, err := m.inner.Get(key)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (m *Memory) Put(_ context.Context, key string, value []byte, _ time.Duration) {
	_ = m.inner.Set(key, value)
}

func (m *Memory) Remove(_ context.Context, key string) {
	_ = m.inner.Delete(key)
}

// Reset drops every entry in the tier.
func (m *Memory) Reset() {
	_ = m.inner.Reset()
}

// Close releases the underlying shards.
func (m *Memory) Close() error {
	return m.inner.Close()
}
