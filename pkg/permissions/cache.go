package permissions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2"
)

// SetCache caches effective permission sets per membership for at most the
// access-token lifetime. Two tiers: an in-process LRU in front of Redis.
// Grant, revoke, and role-change operations must call Invalidate; entries are
// never trusted across those mutations.
type SetCache struct {
	l1  *lru.Cache[int64, l1Entry]
	rdb *redis.Client
	ttl time.Duration
}

type l1Entry struct {
	codes     []Permission
	expiresAt time.Time
}

// NewSetCache creates a cache. The redis client may be nil, leaving only the
// in-process tier.
func NewSetCache(rdb *redis.Client, l1Size int, ttl time.Duration) (*SetCache, error) {
	l1, err := lru.New[int64, l1Entry](l1Size)
	if err != nil {
		return nil, fmt.Errorf("failed to create L1 cache: %w", err)
	}
	return &SetCache{
		l1:  l1,
		rdb: rdb,
		ttl: ttl,
	}, nil
}

func cacheKey(membershipID int64) string {
	return fmt.Sprintf("perms:%d", membershipID)
}

// Get returns the cached set for a membership, if present and unexpired
func (c *SetCache) Get(ctx context.Context, membershipID int64) (Set, bool) {
	if entry, ok := c.l1.Get(membershipID); ok {
		if time.Now().Before(entry.expiresAt) {
			return NewSet(entry.codes...), true
		}
		c.l1.Remove(membershipID)
	}

	if c.rdb == nil {
		return nil, false
	}

	data, err := c.rdb.Get(ctx, cacheKey(membershipID)).Result()
	if err != nil {
		return nil, false
	}

	var codes []Permission
	if err := json.Unmarshal([]byte(data), &codes); err != nil {
		return nil, false
	}

	c.l1.Add(membershipID, l1Entry{codes: codes, expiresAt: time.Now().Add(c.ttl)})
	return NewSet(codes...), true
}

// Put stores a computed set
func (c *SetCache) Put(ctx context.Context, membershipID int64, set Set) {
	codes := set.Codes()
	c.l1.Add(membershipID, l1Entry{codes: codes, expiresAt: time.Now().Add(c.ttl)})

	if c.rdb == nil {
		return
	}

	data, err := json.Marshal(codes)
	if err != nil {
		return
	}
	c.rdb.Set(ctx, cacheKey(membershipID), data, c.ttl)
}

// Invalidate drops the cached set for a membership
func (c *SetCache) Invalidate(ctx context.Context, membershipID int64) error {
	c.l1.Remove(membershipID)
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, cacheKey(membershipID)).Err()
}
