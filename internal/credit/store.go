package credit

import (
	"context"

	id "canopy/pkg/domain"
)

// Store persists credits and maintains the owner index. Implementations must
// keep the index exactly in sync with Credit.Owner and Credit.Retired on
// every mutation, and must hold their lock across an Execute callback so
// validate-then-mutate is atomic per credit.
type Store interface {
	// Insert assigns the next monotonic id, stores the credit, and indexes
	// it under its owner.
	Insert(ctx context.Context, credit *Credit) (id.CreditID, error)

	// FindByID returns a copy of the credit.
	FindByID(ctx context.Context, creditID id.CreditID) (*Credit, error)

	// Execute runs validate then apply under the store lock. When validate
	// fails nothing is mutated. After apply the store re-syncs the owner
	// index and registry totals from the credit's new state.
	Execute(ctx context.Context, creditID id.CreditID, validate func(*Credit) error, apply func(*Credit)) (*Credit, error)

	// ListByOwner returns copies of the owner's active (unretired) credits
	// in mint order.
	ListByOwner(ctx context.Context, owner id.AccountID) ([]*Credit, error)

	// ListRetiredByOwner returns copies of the owner's retired credits in
	// retirement order.
	ListRetiredByOwner(ctx context.Context, owner id.AccountID) ([]*Credit, error)

	// AppendCertification links an issued certificate to the credit.
	AppendCertification(ctx context.Context, creditID id.CreditID, certID id.CertificateID) error

	// Totals returns the registry-wide minted/retired counters.
	Totals(ctx context.Context) (Totals, error)
}
