package events

import (
	"context"

	id "canopy/pkg/domain"
)

// Store is an append-only sink for domain events. Implementations must keep
// insertion order per account.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByAccount(ctx context.Context, account id.AccountID) ([]Event, error)
}
