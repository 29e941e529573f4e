package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	platformredis "canopy/internal/platform/redis"
)

const (
	redisHistoryKey    = "canopy:market:price_history"
	redisTradeCountKey = "canopy:market:trade_count"
)

// RedisStatsStore keeps the price ring in Redis so stats survive restarts
// and can be shared across instances. The ring is an LPUSH/LTRIM list of
// JSON points, newest first, capped at priceHistoryCap.
type RedisStatsStore struct {
	client *platformredis.Client
}

func NewRedisStatsStore(client *platformredis.Client) *RedisStatsStore {
	return &RedisStatsStore{client: client}
}

func (s *RedisStatsStore) RecordTrade(ctx context.Context, point PricePoint) error {
	payload, err := json.Marshal(point)
	if err != nil {
		return fmt.Errorf("marshal price point: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, redisHistoryKey, payload)
	pipe.LTrim(ctx, redisHistoryKey, 0, priceHistoryCap-1)
	pipe.Incr(ctx, redisTradeCountKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record trade: %w", err)
	}
	return nil
}

func (s *RedisStatsStore) Stats(ctx context.Context, now time.Time) (*Stats, error) {
	raw, err := s.client.LRange(ctx, redisHistoryKey, 0, priceHistoryCap-1).Result()
	if err != nil {
		return nil, fmt.Errorf("load price history: %w", err)
	}
	history := make([]PricePoint, 0, len(raw))
	for _, item := range raw {
		var point PricePoint
		if err := json.Unmarshal([]byte(item), &point); err != nil {
			return nil, fmt.Errorf("decode price point: %w", err)
		}
		history = append(history, point)
	}

	count, err := s.client.Get(ctx, redisTradeCountKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("load trade count: %w", err)
	}

	stats := summarize(history, now)
	stats.TradeCount = count
	return stats, nil
}
