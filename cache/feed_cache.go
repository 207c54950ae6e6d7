package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"soundbridge/model"

	"github.com/go-redis/redis/v8"
)

// feedCacheTTL 公共动态流缓存时间
const feedCacheTTL = 5 * time.Minute

// FeedCache 公共动态流的 Redis 缓存
// 只缓存已通过可见性过滤的内容，审核状态变更时整体失效
type FeedCache struct {
	client *redis.Client
}

// NewFeedCache 创建动态流缓存
func NewFeedCache(client *redis.Client) *FeedCache {
	return &FeedCache{client: client}
}

// feedKey 根据分页参数生成缓存键
func feedKey(limit, offset int) string {
	return fmt.Sprintf("feed:clean:%d:%d", limit, offset)
}

// Get returns the cached page, or nil when the page is not cached.
func (c *FeedCache) Get(ctx context.Context, limit, offset int) ([]model.TrackResponse, error) {
	if c.client == nil {
		return nil, nil
	}

	val, err := c.client.Get(ctx, feedKey(limit, offset)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get feed cache: %w", err)
	}

	var tracks []model.TrackResponse
	if err := json.Unmarshal([]byte(val), &tracks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal feed cache: %w", err)
	}
	return tracks, nil
}

// Set caches one page of the public feed.
func (c *FeedCache) Set(ctx context.Context, limit, offset int, tracks []model.TrackResponse) error {
	if c.client == nil {
		return nil
	}

	payload, err := json.Marshal(tracks)
	if err != nil {
		return fmt.Errorf("failed to marshal feed cache: %w", err)
	}

	if err := c.client.Set(ctx, feedKey(limit, offset), payload, feedCacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to set feed cache: %w", err)
	}
	return nil
}

// Invalidate drops every cached feed page. Called on each transition that
// changes what the public feed may show.
func (c *FeedCache) Invalidate(ctx context.Context) error {
	if c.client == nil {
		return nil
	}

	iter := c.client.Scan(ctx, 0, "feed:clean:*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete feed cache key: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan feed cache keys: %w", err)
	}
	return nil
}
