package credit

import (
	"context"
	"sync"

	id "canopy/pkg/domain"
	"canopy/pkg/platform/sentinel"
)

// InMemoryStore keeps the credit table and owner index in process memory.
// It favors clarity over performance; the maps mirror the keyed tables the
// host ledger would provide.
type InMemoryStore struct {
	mu      sync.RWMutex
	credits map[id.CreditID]*Credit
	// active and retired hold credit ids per owner, in insertion order.
	// Invariant: every unretired credit id appears exactly once in
	// active[credit.Owner] and nowhere else; every retired credit id
	// appears exactly once in retired[credit.Owner].
	active  map[id.AccountID][]id.CreditID
	retired map[id.AccountID][]id.CreditID
	nextID  id.CreditID
	totals  Totals
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		credits: make(map[id.CreditID]*Credit),
		active:  make(map[id.AccountID][]id.CreditID),
		retired: make(map[id.AccountID][]id.CreditID),
	}
}

func (s *InMemoryStore) Insert(_ context.Context, credit *Credit) (id.CreditID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	stored := *credit
	stored.ID = s.nextID
	s.credits[stored.ID] = &stored
	s.active[stored.Owner] = append(s.active[stored.Owner], stored.ID)
	s.totals.Minted += stored.Amount
	return stored.ID, nil
}

func (s *InMemoryStore) FindByID(_ context.Context, creditID id.CreditID) (*Credit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	credit, ok := s.credits[creditID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyCredit(credit), nil
}

func (s *InMemoryStore) Execute(_ context.Context, creditID id.CreditID, validate func(*Credit) error, apply func(*Credit)) (*Credit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	credit, ok := s.credits[creditID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(credit); err != nil {
		return nil, err
	}
	prevOwner, prevRetired := credit.Owner, credit.Retired
	apply(credit)

	if credit.Retired && !prevRetired {
		s.active[prevOwner] = removeID(s.active[prevOwner], creditID)
		s.retired[credit.Owner] = append(s.retired[credit.Owner], creditID)
		s.totals.Retired += credit.Amount
	} else if credit.Owner != prevOwner {
		s.active[prevOwner] = removeID(s.active[prevOwner], creditID)
		s.active[credit.Owner] = append(s.active[credit.Owner], creditID)
	}
	return copyCredit(credit), nil
}

func (s *InMemoryStore) ListByOwner(_ context.Context, owner id.AccountID) ([]*Credit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listIndexed(s.active[owner]), nil
}

func (s *InMemoryStore) ListRetiredByOwner(_ context.Context, owner id.AccountID) ([]*Credit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listIndexed(s.retired[owner]), nil
}

func (s *InMemoryStore) AppendCertification(_ context.Context, creditID id.CreditID, certID id.CertificateID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	credit, ok := s.credits[creditID]
	if !ok {
		return sentinel.ErrNotFound
	}
	credit.Certifications = append(credit.Certifications, certID)
	return nil
}

func (s *InMemoryStore) Totals(_ context.Context) (Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totals, nil
}

func (s *InMemoryStore) listIndexed(ids []id.CreditID) []*Credit {
	out := make([]*Credit, 0, len(ids))
	for _, cid := range ids {
		if credit, ok := s.credits[cid]; ok {
			out = append(out, copyCredit(credit))
		}
	}
	return out
}

func copyCredit(c *Credit) *Credit {
	dup := *c
	dup.Certifications = append([]id.CertificateID(nil), c.Certifications...)
	if c.RetiredAt != nil {
		t := *c.RetiredAt
		dup.RetiredAt = &t
	}
	return &dup
}

func removeID(ids []id.CreditID, target id.CreditID) []id.CreditID {
	for i, cid := range ids {
		if cid == target {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
