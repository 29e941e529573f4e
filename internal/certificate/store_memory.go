package certificate

import (
	"context"
	"sync"

	id "canopy/pkg/domain"
	"canopy/pkg/platform/sentinel"
)

// InMemoryStore keeps the certificate table and its indexes in process
// memory.
type InMemoryStore struct {
	mu          sync.RWMutex
	certs       map[id.CertificateID]*Certificate
	byRecipient map[id.AccountID][]id.CertificateID
	byContent   map[string]id.CertificateID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		certs:       make(map[id.CertificateID]*Certificate),
		byRecipient: make(map[id.AccountID][]id.CertificateID),
		byContent:   make(map[string]id.CertificateID),
	}
}

func (s *InMemoryStore) Insert(_ context.Context, cert *Certificate, contentHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.certs[cert.ID]; exists {
		return sentinel.ErrConflict
	}
	stored := copyCert(cert)
	s.certs[cert.ID] = stored
	s.byRecipient[cert.Recipient] = append(s.byRecipient[cert.Recipient], cert.ID)
	s.byContent[contentHash] = cert.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, certID id.CertificateID) (*Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cert, ok := s.certs[certID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyCert(cert), nil
}

func (s *InMemoryStore) Execute(_ context.Context, certID id.CertificateID, validate func(*Certificate) error, apply func(*Certificate)) (*Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cert, ok := s.certs[certID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(cert); err != nil {
		return nil, err
	}
	apply(cert)
	return copyCert(cert), nil
}

func (s *InMemoryStore) ListByRecipient(_ context.Context, recipient id.AccountID) ([]*Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byRecipient[recipient]
	out := make([]*Certificate, 0, len(ids))
	for _, cid := range ids {
		if cert, ok := s.certs[cid]; ok {
			out = append(out, copyCert(cert))
		}
	}
	return out, nil
}

func (s *InMemoryStore) FindByContentHash(_ context.Context, contentHash string) (*Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	certID, ok := s.byContent[contentHash]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyCert(s.certs[certID]), nil
}

func copyCert(c *Certificate) *Certificate {
	dup := *c
	dup.CreditIDs = append([]id.CreditID(nil), c.CreditIDs...)
	dup.AuditTrail = append([]AuditEntry(nil), c.AuditTrail...)
	if c.ExpiresAt != nil {
		t := *c.ExpiresAt
		dup.ExpiresAt = &t
	}
	if c.Metadata != nil {
		dup.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			dup.Metadata[k] = v
		}
	}
	return &dup
}
