package events

import (
	"context"
	"sync"

	id "canopy/pkg/domain"
)

// InMemoryStore keeps the event log in process memory. The default sink for
// tests and single-node deployments.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []Event
	byAcct map[id.AccountID][]int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byAcct: make(map[id.AccountID][]int)}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	s.byAcct[event.Account] = append(s.byAcct[event.Account], len(s.events)-1)
	return nil
}

func (s *InMemoryStore) ListByAccount(_ context.Context, account id.AccountID) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idxs := s.byAcct[account]
	out := make([]Event, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, s.events[i])
	}
	return out, nil
}

// All returns the full log in insertion order. Intended for tests.
func (s *InMemoryStore) All() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event{}, s.events...)
}
