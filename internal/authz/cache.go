package authz

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DecisionCache is a read-through cache for resolved action sets. It is
// staleness-tolerant for reads (entries age out on a short TTL) but
// access-reducing operations invalidate affected entries synchronously,
// so a revocation is never hidden longer than one in-flight request.
type DecisionCache interface {
	Get(ctx context.Context, userID, tenantID, resourceType, resourceID string) (ActionSet, bool)
	Set(ctx context.Context, userID, tenantID, resourceType, resourceID string, actions ActionSet)
	InvalidateUser(ctx context.Context, userID string)
	InvalidateTenant(ctx context.Context, tenantID string)
}

// NopCache disables caching; every resolution reads through to storage
type NopCache struct{}

func (NopCache) Get(context.Context, string, string, string, string) (ActionSet, bool) {
	return nil, false
}
func (NopCache) Set(context.Context, string, string, string, string, ActionSet) {}
func (NopCache) InvalidateUser(context.Context, string)                         {}
func (NopCache) InvalidateTenant(context.Context, string)                       {}

// RedisCache implements DecisionCache on Redis. Cache trouble is never
// surfaced to callers; a miss is always safe because the resolver falls
// back to storage.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a decision cache with the given entry TTL
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func decisionKey(userID, tenantID, resourceType, resourceID string) string {
	return fmt.Sprintf("authz:decision:%s:%s:%s:%s", userID, tenantID, resourceType, resourceID)
}

// Get retrieves a cached decision
func (c *RedisCache) Get(ctx context.Context, userID, tenantID, resourceType, resourceID string) (ActionSet, bool) {
	raw, err := c.client.Get(ctx, decisionKey(userID, tenantID, resourceType, resourceID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.WarnContext(ctx, "decision cache read failed", slog.String("error", err.Error()))
		}
		return nil, false
	}

	var actions []string
	if err := json.Unmarshal(raw, &actions); err != nil {
		return nil, false
	}
	return NewActionSet(actions...), true
}

// Set stores a decision with the configured TTL
func (c *RedisCache) Set(ctx context.Context, userID, tenantID, resourceType, resourceID string, actions ActionSet) {
	raw, err := json.Marshal(actions.List())
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, decisionKey(userID, tenantID, resourceType, resourceID), raw, c.ttl).Err(); err != nil {
		slog.WarnContext(ctx, "decision cache write failed", slog.String("error", err.Error()))
	}
}

// InvalidateUser drops every cached decision for a user
func (c *RedisCache) InvalidateUser(ctx context.Context, userID string) {
	c.invalidatePattern(ctx, fmt.Sprintf("authz:decision:%s:*", userID))
}

// InvalidateTenant drops every cached decision scoped to a tenant.
// Decisions at descendants may still hold inherited authority from this
// tenant; their short TTL bounds that staleness window.
func (c *RedisCache) InvalidateTenant(ctx context.Context, tenantID string) {
	c.invalidatePattern(ctx, fmt.Sprintf("authz:decision:*:%s:*", tenantID))
}

func (c *RedisCache) invalidatePattern(ctx context.Context, pattern string) {
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		slog.WarnContext(ctx, "decision cache scan failed", slog.String("error", err.Error()))
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		slog.WarnContext(ctx, "decision cache invalidation failed", slog.String("error", err.Error()))
	}
}
