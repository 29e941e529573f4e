//go:build integration

package market

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	platformredis "canopy/internal/platform/redis"
	"canopy/pkg/testutil/containers"
)

type RedisStatsSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *RedisStatsStore
}

func TestRedisStatsSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStatsSuite))
}

func (s *RedisStatsSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = NewRedisStatsStore(&platformredis.Client{Client: s.redis.Client})
}

func (s *RedisStatsSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStatsSuite) TestEmptyStats() {
	stats, err := s.store.Stats(context.Background(), time.Now())
	s.Require().NoError(err)
	s.Zero(stats.TradeCount)
	s.Zero(stats.LastPrice)
	s.Empty(stats.PriceHistory)
}

func (s *RedisStatsSuite) TestRecordAndSummarize() {
	ctx := context.Background()
	now := time.Now()

	points := []PricePoint{
		{Price: 300, Quantity: 5, Timestamp: now.Add(-2 * time.Hour)},
		{Price: 320, Quantity: 3, Timestamp: now.Add(-1 * time.Hour)},
		{Price: 310, Quantity: 2, Timestamp: now.Add(-10 * time.Minute)},
	}
	for _, p := range points {
		s.Require().NoError(s.store.RecordTrade(ctx, p))
	}

	stats, err := s.store.Stats(ctx, now)
	s.Require().NoError(err)
	s.Equal(int64(310), stats.LastPrice)
	s.Equal(int64(10), stats.Volume24h)
	s.Equal(int64(320), stats.High24h)
	s.Equal(int64(300), stats.Low24h)
	s.Equal(int64(3), stats.TradeCount)
	s.Len(stats.PriceHistory, 3)
}

func (s *RedisStatsSuite) TestOldTradesFallOutOfWindow() {
	ctx := context.Background()
	now := time.Now()

	s.Require().NoError(s.store.RecordTrade(ctx, PricePoint{Price: 100, Quantity: 7, Timestamp: now.Add(-36 * time.Hour)}))
	s.Require().NoError(s.store.RecordTrade(ctx, PricePoint{Price: 200, Quantity: 1, Timestamp: now.Add(-1 * time.Hour)}))

	stats, err := s.store.Stats(ctx, now)
	s.Require().NoError(err)
	s.Equal(int64(200), stats.LastPrice)
	s.Equal(int64(1), stats.Volume24h)
	s.Equal(int64(200), stats.High24h)
	s.Equal(int64(200), stats.Low24h)
	s.Equal(int64(2), stats.TradeCount)
}

func (s *RedisStatsSuite) TestTradeCountSurvivesRingTrim() {
	ctx := context.Background()
	now := time.Now()

	const extra = 25
	total := priceHistoryCap + extra
	for i := 1; i <= total; i++ {
		point := PricePoint{Price: int64(i), Quantity: 1, Timestamp: now}
		s.Require().NoError(s.store.RecordTrade(ctx, point))
	}

	stats, err := s.store.Stats(ctx, now)
	s.Require().NoError(err)
	s.Len(stats.PriceHistory, priceHistoryCap)
	s.Equal(int64(total), stats.TradeCount)
	s.Equal(int64(total), stats.LastPrice)
}
