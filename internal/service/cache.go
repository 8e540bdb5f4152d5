package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// projectCache keeps listing snapshots keyed by project. Cache failures are
// logged and otherwise ignored; the database stays authoritative.
type projectCache struct {
	c   Cache
	ttl time.Duration
	log zerolog.Logger
}

func newProjectCache(c Cache, ttl time.Duration, log zerolog.Logger) *projectCache {
	return &projectCache{c: c, ttl: ttl, log: log.With().Str("component", "cache").Logger()}
}

func listKey(projectID, kind string) string {
	return fmt.Sprintf("project:%s:%s", projectID, kind)
}

func (p *projectCache) get(ctx context.Context, key string, dest interface{}) bool {
	if p == nil || p.c == nil {
		return false
	}
	err := p.c.GetCache(ctx, key, dest)
	if err == nil {
		return true
	}
	if !errors.Is(err, redis.Nil) {
		p.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}
	return false
}

func (p *projectCache) set(ctx context.Context, key string, value interface{}) {
	if p == nil || p.c == nil {
		return
	}
	if err := p.c.SetCache(ctx, key, value, p.ttl); err != nil {
		p.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

// invalidate drops every listing cached for the given projects.
func (p *projectCache) invalidate(ctx context.Context, projectIDs ...string) {
	if p == nil || p.c == nil {
		return
	}
	seen := map[string]bool{}
	for _, id := range projectIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if err := p.c.InvalidateCache(ctx, fmt.Sprintf("project:%s:*", id)); err != nil {
			p.log.Warn().Err(err).Str("project_id", id).Msg("cache invalidation failed")
		}
	}
}
