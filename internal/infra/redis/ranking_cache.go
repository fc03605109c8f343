package redis

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"eduquiz-service/internal/domain"
)

// RankingCache holds the latest ranked snapshot per category. The ranking
// store stays the source of truth; cache failures are logged and absorbed so
// reads fall back to the store.
type RankingCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRankingCache(client *redis.Client, ttl time.Duration) *RankingCache {
	return &RankingCache{client: client, ttl: ttl}
}

func (c *RankingCache) Get(ctx context.Context, categoryID string) (domain.RankedList, bool) {
	raw, err := c.client.Get(ctx, c.key(categoryID)).Bytes()
	if err != nil {
		return domain.RankedList{}, false
	}
	var list domain.RankedList
	if err := json.Unmarshal(raw, &list); err != nil {
		return domain.RankedList{}, false
	}
	return list, true
}

func (c *RankingCache) Set(ctx context.Context, list domain.RankedList) {
	data, err := json.Marshal(list)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(list.CategoryID), data, c.ttl).Err(); err != nil {
		log.Printf("cache ranking snapshot for category %s: %v", list.CategoryID, err)
	}
}

func (c *RankingCache) Invalidate(ctx context.Context, categoryID string) {
	if err := c.client.Del(ctx, c.key(categoryID)).Err(); err != nil {
		log.Printf("invalidate ranking snapshot for category %s: %v", categoryID, err)
	}
}

func (c *RankingCache) key(categoryID string) string {
	return "ranking:category:" + categoryID
}
