package events

import (
	"context"
	"log/slog"
	"sync/atomic"

	id "canopy/pkg/domain"
	"canopy/pkg/platform/circuit"
)

// probeInterval is how many appends to skip between primary probes while
// the breaker is open.
const probeInterval = 10

// FailoverStore writes the event log to a durable primary and falls back
// to a secondary store when the primary is unhealthy. A circuit breaker
// guards the primary; while open, every probeInterval-th append still
// tries the primary so the breaker can close once the backend recovers.
type FailoverStore struct {
	primary  Store
	fallback Store
	breaker  *circuit.Breaker
	logger   *slog.Logger
	skipped  atomic.Int64
}

func NewFailoverStore(primary, fallback Store, logger *slog.Logger) *FailoverStore {
	return &FailoverStore{
		primary:  primary,
		fallback: fallback,
		breaker:  circuit.New("event-store"),
		logger:   logger,
	}
}

func (s *FailoverStore) Append(ctx context.Context, event Event) error {
	if s.breaker.IsOpen() && s.skipped.Add(1)%probeInterval != 0 {
		return s.fallback.Append(ctx, event)
	}

	if err := s.primary.Append(ctx, event); err != nil {
		_, change := s.breaker.RecordFailure()
		if change.Opened {
			s.logger.WarnContext(ctx, "event store breaker opened", "error", err)
		} else {
			s.logger.ErrorContext(ctx, "primary event store append failed", "error", err)
		}
		return s.fallback.Append(ctx, event)
	}

	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "event store breaker closed")
	}
	return nil
}

func (s *FailoverStore) ListByAccount(ctx context.Context, account id.AccountID) ([]Event, error) {
	if s.breaker.IsOpen() {
		return s.fallback.ListByAccount(ctx, account)
	}
	out, err := s.primary.ListByAccount(ctx, account)
	if err != nil {
		_, change := s.breaker.RecordFailure()
		if change.Opened {
			s.logger.WarnContext(ctx, "event store breaker opened", "error", err)
		}
		return s.fallback.ListByAccount(ctx, account)
	}
	s.breaker.RecordSuccess()
	return out, nil
}
