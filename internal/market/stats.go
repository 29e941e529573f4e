package market

import (
	"context"
	"sync"
	"time"
)

// priceHistoryCap bounds the price-history ring; the oldest entry is
// dropped once the ring is full.
const priceHistoryCap = 1000

// StatsStore records settled trades and serves the rolling market snapshot.
type StatsStore interface {
	RecordTrade(ctx context.Context, point PricePoint) error
	Stats(ctx context.Context, now time.Time) (*Stats, error)
}

// InMemoryStatsStore keeps the price ring in process memory. Newest first,
// matching the Redis layout.
type InMemoryStatsStore struct {
	mu         sync.RWMutex
	history    []PricePoint
	tradeCount int64
}

func NewInMemoryStatsStore() *InMemoryStatsStore {
	return &InMemoryStatsStore{}
}

func (s *InMemoryStatsStore) RecordTrade(_ context.Context, point PricePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append([]PricePoint{point}, s.history...)
	if len(s.history) > priceHistoryCap {
		s.history = s.history[:priceHistoryCap]
	}
	s.tradeCount++
	return nil
}

func (s *InMemoryStatsStore) Stats(_ context.Context, now time.Time) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := append([]PricePoint(nil), s.history...)
	stats := summarize(history, now)
	stats.TradeCount = s.tradeCount
	return stats, nil
}

// summarize derives the snapshot from a newest-first history slice.
func summarize(history []PricePoint, now time.Time) *Stats {
	stats := &Stats{PriceHistory: history}
	if len(history) == 0 {
		return stats
	}
	stats.LastPrice = history[0].Price
	cutoff := now.Add(-24 * time.Hour)
	for _, point := range history {
		if point.Timestamp.Before(cutoff) {
			// History is ordered newest first.
			break
		}
		stats.Volume24h += point.Quantity
		if point.Price > stats.High24h {
			stats.High24h = point.Price
		}
		if stats.Low24h == 0 || point.Price < stats.Low24h {
			stats.Low24h = point.Price
		}
	}
	return stats
}
