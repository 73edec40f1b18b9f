package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/aiagenz/billing/internal/domain"
)

// PlanCache caches plan catalog reads.
type PlanCache interface {
	GetList(ctx context.Context, f domain.PlanFilter) (*domain.PlanList, error)
	SetList(ctx context.Context, f domain.PlanFilter, list *domain.PlanList) error
	GetPlan(ctx context.Context, id string) (*domain.Plan, error)
	SetPlan(ctx context.Context, p *domain.Plan) error
	Invalidate(ctx context.Context) error
}

const planKeyPrefix = "plans:"

// RedisPlanCache stores JSON encoded plan pages in Redis.
type RedisPlanCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisPlanCache creates a Redis-backed plan cache.
func NewRedisPlanCache(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisPlanCache {
	return &RedisPlanCache{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "plan_cache").Logger(),
	}
}

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

func listKey(f domain.PlanFilter) string {
	planType := "all"
	if f.PlanType != nil {
		planType = string(*f.PlanType)
	}
	return fmt.Sprintf("%slist:%s:%d:%d", planKeyPrefix, planType, f.Page, f.Limit)
}

func planKey(id string) string {
	return planKeyPrefix + "id:" + id
}

// GetList returns a cached page, or nil on a miss.
func (c *RedisPlanCache) GetList(ctx context.Context, f domain.PlanFilter) (*domain.PlanList, error) {
	var list domain.PlanList
	ok, err := c.get(ctx, listKey(f), &list)
	if err != nil || !ok {
		return nil, err
	}
	return &list, nil
}

// SetList stores a page.
func (c *RedisPlanCache) SetList(ctx context.Context, f domain.PlanFilter, list *domain.PlanList) error {
	return c.set(ctx, listKey(f), list)
}

// GetPlan returns a cached plan, or nil on a miss.
func (c *RedisPlanCache) GetPlan(ctx context.Context, id string) (*domain.Plan, error) {
	var p domain.Plan
	ok, err := c.get(ctx, planKey(id), &p)
	if err != nil || !ok {
		return nil, err
	}
	return &p, nil
}

// SetPlan stores a single plan.
func (c *RedisPlanCache) SetPlan(ctx context.Context, p *domain.Plan) error {
	return c.set(ctx, planKey(p.ID), p)
}

// Invalidate drops every cached plan entry.
func (c *RedisPlanCache) Invalidate(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, planKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan plan cache: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate plan cache: %w", err)
	}
	c.logger.Debug().Int("keys", len(keys)).Msg("plan cache invalidated")
	return nil
}

func (c *RedisPlanCache) get(ctx context.Context, key string, out any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read plan cache: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		// Corrupt entries are treated as misses and overwritten on the next set.
		c.logger.Warn().Err(err).Str("key", key).Msg("discarding unreadable plan cache entry")
		return false, nil
	}
	return true, nil
}

func (c *RedisPlanCache) set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode plan cache entry: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write plan cache: %w", err)
	}
	return nil
}

// NopPlanCache is used when no Redis is configured. Every read misses.
type NopPlanCache struct{}

func (NopPlanCache) GetList(context.Context, domain.PlanFilter) (*domain.PlanList, error) {
	return nil, nil
}
func (NopPlanCache) SetList(context.Context, domain.PlanFilter, *domain.PlanList) error { return nil }
func (NopPlanCache) GetPlan(context.Context, string) (*domain.Plan, error)            { return nil, nil }
func (NopPlanCache) SetPlan(context.Context, *domain.Plan) error                      { return nil }
func (NopPlanCache) Invalidate(context.Context) error                                 { return nil }
