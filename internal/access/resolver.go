package access

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"palaver/internal/cache"
	"palaver/internal/settings"
)

// Resolver builds Grants and caches them across two tiers, the way the
// forum's hot read path stacks an in-process cache in front of Redis. A
// cached entry is stale once the global settings version has advanced past
// the version recorded at entry creation; staleness is never an error, it
// just forces recomputation.
type Resolver struct {
	tiers       []cache.Cache
	version     settings.Version
	denyEnabled bool
	ttl         time.Duration
	sf          singleflight.Group
	log         *zap.Logger
}

// NewResolver stacks the given tiers in lookup order. Earlier tiers are
// backfilled on a hit in a later one.
func NewResolver(version settings.Version, denyEnabled bool, ttl time.Duration, log *zap.Logger, tiers ...cache.Cache) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		tiers:       tiers,
		version:     version,
		denyEnabled: denyEnabled,
		ttl:         ttl,
		log:         log,
	}
}

// Resolve returns the grant for the given group memberships, attaching the
// caller's moderator assignments. The cacheable part is keyed only by the
// sorted group ids and the admin flag. This path never fails.
func (r *Resolver) Resolve(ctx context.Context, userGroups []int64, isAdmin bool, moderatedBoards []int64) Grant {
	groups := append([]int64(nil), userGroups...)
	sort.Slice(groups, func(i, j int) bool { return groups[i] < groups[j] })

	key := grantKey(groups, isAdmin)
	current := r.version.Current(ctx)

	grant, ok := r.lookup(ctx, key, current)
	if !ok {
		v, _, _ := r.sf.Do(key, func() (any, error) {
			g := Grant{
				Groups:      groups,
				IsAdmin:     isAdmin,
				DenyEnabled: r.denyEnabled,
				Version:     current,
			}
			if data, err := json.Marshal(g); err == nil {
				for _, tier := range r.tiers {
					tier.Put(ctx, key, data, r.ttl)
				}
			}
			return g, nil
		})
		grant = v.(Grant)
	}

	if len(moderatedBoards) > 0 {
		grant.Moderated = make(map[int64]struct{}, len(moderatedBoards))
		for _, id := range moderatedBoards {
			grant.Moderated[id] = struct{}{}
		}
	}
	return grant
}

// Invalidate drops the cached grant for one group set from every tier.
// Normally unnecessary: bumping the settings version stales all entries.
func (r *Resolver) Invalidate(ctx context.Context, userGroups []int64, isAdmin bool) {
	groups := append([]int64(nil), userGroups...)
	sort.Slice(groups, func(i, j int) bool { return groups[i] < groups[j] })
	key := grantKey(groups, isAdmin)
	for _, tier := range r.tiers {
		tier.Remove(ctx, key)
	}
}

func (r *Resolver) lookup(ctx context.Context, key string, current uint64) (Grant, bool) {
	for i, tier := range r.tiers {
		data, ok := tier.Get(ctx, key)
		if !ok {
			continue
		}
		var g Grant
		if err := json.Unmarshal(data, &g); err != nil {
			r.log.Warn("dropping undecodable grant entry", zap.String("key", key), zap.Error(err))
			tier.Remove(ctx, key)
			continue
		}
		if g.Version < current || g.DenyEnabled != r.denyEnabled {
			tier.Remove(ctx, key)
			continue
		}
		// Backfill faster tiers so the next read stops earlier.
		for j := 0; j < i; j++ {
			r.tiers[j].Put(ctx, key, data, r.ttl)
		}
		return g, true
	}
	return Grant{}, false
}

func grantKey(sortedGroups []int64, isAdmin bool) string {
	var sb strings.Builder
	sb.WriteString("grant:")
	for i, g := range sortedGroups {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatInt(g, 10))
	}
	if isAdmin {
		sb.WriteString(":admin")
	}
	return sb.String()
}
