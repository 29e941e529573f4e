package reputation

import (
	"context"
	"sync"

	id "canopy/pkg/domain"
	"canopy/pkg/platform/sentinel"
)

// InMemoryStore keeps reputation profiles in process memory.
type InMemoryStore struct {
	mu       sync.RWMutex
	profiles map[id.AccountID]*Profile
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{profiles: make(map[id.AccountID]*Profile)}
}

func (s *InMemoryStore) EnsureProfile(_ context.Context, profile *Profile) (*Profile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.profiles[profile.Owner]; ok {
		return copyProfile(existing), false, nil
	}
	stored := copyProfile(profile)
	s.profiles[profile.Owner] = stored
	return copyProfile(stored), true, nil
}

func (s *InMemoryStore) FindByOwner(_ context.Context, owner id.AccountID) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[owner]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyProfile(profile), nil
}

func (s *InMemoryStore) Execute(_ context.Context, owner id.AccountID, validate func(*Profile) error, apply func(*Profile)) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[owner]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(profile); err != nil {
		return nil, err
	}
	apply(profile)
	return copyProfile(profile), nil
}

func copyProfile(p *Profile) *Profile {
	dup := *p
	dup.Scores = make(map[Category]int64, len(p.Scores))
	for k, v := range p.Scores {
		dup.Scores[k] = v
	}
	dup.Reviews = make(map[id.AccountID]Review, len(p.Reviews))
	for k, v := range p.Reviews {
		dup.Reviews[k] = v
	}
	dup.Achievements = append([]Achievement(nil), p.Achievements...)
	dup.History = append([]ScoreChange(nil), p.History...)
	return &dup
}
