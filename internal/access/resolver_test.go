package access

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"palaver/internal/cache"
	"palaver/internal/settings"
)

// mapCache is a fake tier that counts hits so tests can tell which tier
// served a lookup.
type mapCache struct {
	data map[string][]byte
	gets int
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string][]byte)}
}

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.gets++
	data, ok := c.data[key]
	return data, ok
}

func (c *mapCache) Put(_ context.Context, key string, value []byte, _ time.Duration) {
	c.data[key] = value
}

func (c *mapCache) Remove(_ context.Context, key string) {
	delete(c.data, key)
}

func TestResolveCachesByGroupSet(t *testing.T) {
	ctx := context.Background()
	tier := newMapCache()
	version := &settings.LocalVersion{}
	r := NewResolver(version, true, time.Minute, nil, tier)

	first := r.Resolve(ctx, []int64{5, 1}, false, nil)
	if len(tier.data) != 1 {
		t.Fatalf("cache holds %d entries, want 1", len(tier.data))
	}

	// Same groups in a different order hit the same entry.
	second := r.Resolve(ctx, []int64{1, 5}, false, nil)
	if len(tier.data) != 1 {
		t.Fatalf("reordered groups created a second entry: %d", len(tier.data))
	}
	if first.Version != second.Version {
		t.Errorf("versions differ: %d vs %d", first.Version, second.Version)
	}

	// Admin flag keys a separate entry.
	r.Resolve(ctx, []int64{1, 5}, true, nil)
	if len(tier.data) != 2 {
		t.Errorf("admin grant shares the non-admin entry")
	}
}

func TestResolveStaleOnVersionBump(t *testing.T) {
	ctx := context.Background()
	tier := newMapCache()
	version := &settings.LocalVersion{}
	r := NewResolver(version, true, time.Minute, nil, tier)

	before := r.Resolve(ctx, []int64{1}, false, nil)
	version.Bump(ctx)
	after := r.Resolve(ctx, []int64{1}, false, nil)

	if after.Version != before.Version+1 {
		t.Errorf("stale grant served after bump: version %d, want %d", after.Version, before.Version+1)
	}
}

func TestResolveAttachesModeratedPerCall(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(&settings.LocalVersion{}, true, time.Minute, nil, newMapCache())

	withMods := r.Resolve(ctx, []int64{1}, false, []int64{42})
	if _, ok := withMods.Moderated[42]; !ok {
		t.Fatal("moderated boards not attached")
	}

	// A second caller with the same groups but no moderator assignments must
	// not inherit the first caller's set through the cache.
	withoutMods := r.Resolve(ctx, []int64{1}, false, nil)
	if len(withoutMods.Moderated) != 0 {
		t.Errorf("moderated set leaked through the cache: %v", withoutMods.Moderated)
	}
}

func TestResolveBackfillsEarlierTiers(t *testing.T) {
	ctx := context.Background()
	l1 := newMapCache()
	l2 := newMapCache()
	version := &settings.LocalVersion{}
	r := NewResolver(version, true, time.Minute, nil, l1, l2)

	r.Resolve(ctx, []int64{1}, false, nil)
	if len(l1.data) != 1 || len(l2.data) != 1 {
		t.Fatalf("both tiers should hold the entry: l1=%d l2=%d", len(l1.data), len(l2.data))
	}

	// Simulate an L1 restart. The next resolve must come from L2 and refill
	// L1.
	l1.data = make(map[string][]byte)
	r.Resolve(ctx, []int64{1}, false, nil)
	if len(l1.data) != 1 {
		t.Error("L2 hit did not backfill L1")
	}
}

func TestResolveDropsEntryOnDenyFlagFlip(t *testing.T) {
	ctx := context.Background()
	tier := newMapCache()
	version := &settings.LocalVersion{}

	NewResolver(version, true, time.Minute, nil, tier).Resolve(ctx, []int64{1}, false, nil)

	flipped := NewResolver(version, false, time.Minute, nil, tier)
	g := flipped.Resolve(ctx, []int64{1}, false, nil)
	if g.DenyEnabled {
		t.Error("grant cached under the old deny flag was served")
	}
}

func TestResolveOverProductionTierStack(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l1, err := cache.NewMemory(8, time.Minute)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	defer l1.Close()
	l2 := cache.NewRedisWithClient(client, "palaver:")

	ctx := context.Background()
	version := settings.NewRedisVersion(client, "palaver:settings-version")
	r := NewResolver(version, true, time.Minute, nil, l1, l2)

	r.Resolve(ctx, []int64{1, 2}, false, nil)
	if _, ok := l1.Get(ctx, "grant:1,2"); !ok {
		t.Fatal("grant not in L1")
	}
	if _, ok := l2.Get(ctx, "grant:1,2"); !ok {
		t.Fatal("grant not in L2")
	}

	// Process restart: L1 empty, L2 still warm.
	l1.Reset()
	r.Resolve(ctx, []int64{1, 2}, false, nil)
	if _, ok := l1.Get(ctx, "grant:1,2"); !ok {
		t.Error("L2 hit did not refill L1")
	}
}

func TestResolveAgainstRedisTier(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	tier := cache.NewRedisWithClient(client, "test:")
	version := settings.NewRedisVersion(client, "test:settings-version")
	r := NewResolver(version, true, time.Minute, nil, tier)

	first := r.Resolve(ctx, []int64{3, 4}, false, nil)
	if !first.DenyEnabled {
		t.Fatal("grant lost the deny flag")
	}
	keys := mr.Keys()
	if len(keys) == 0 {
		t.Fatal("nothing written to redis")
	}

	version.Bump(ctx)
	second := r.Resolve(ctx, []int64{3, 4}, false, nil)
	if second.Version <= first.Version {
		t.Errorf("version did not advance: %d then %d", first.Version, second.Version)
	}

	r.Invalidate(ctx, []int64{3, 4}, false)
	if got, _ := tier.Get(ctx, "grant:3,4"); got != nil {
		t.Error("invalidated entry still present")
	}
}
