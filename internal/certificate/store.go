package certificate

import (
	"context"

	id "canopy/pkg/domain"
)

// Store persists certificates with recipient and content-hash indexes.
// Execute must hold the store lock across validate and apply so status
// transitions and audit appends are atomic per certificate.
type Store interface {
	Insert(ctx context.Context, cert *Certificate, contentHash string) error
	FindByID(ctx context.Context, certID id.CertificateID) (*Certificate, error)
	Execute(ctx context.Context, certID id.CertificateID, validate func(*Certificate) error, apply func(*Certificate)) (*Certificate, error)
	ListByRecipient(ctx context.Context, recipient id.AccountID) ([]*Certificate, error)
	// FindByContentHash supports "has this exact certificate been issued
	// already" lookups.
	FindByContentHash(ctx context.Context, contentHash string) (*Certificate, error)
}
