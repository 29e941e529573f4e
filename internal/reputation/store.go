package reputation

import (
	"context"

	id "canopy/pkg/domain"
)

// Store persists reputation profiles. Execute must hold the store lock
// across validate and apply; EnsureProfile is idempotent so every public
// operation can create-on-first-touch.
type Store interface {
	// EnsureProfile creates the profile if absent and returns a copy of
	// the stored (new or existing) profile. The second return reports
	// whether a profile was created.
	EnsureProfile(ctx context.Context, profile *Profile) (*Profile, bool, error)

	FindByOwner(ctx context.Context, owner id.AccountID) (*Profile, error)

	// Execute runs validate then apply under the store lock against the
	// live profile. The profile must already exist.
	Execute(ctx context.Context, owner id.AccountID, validate func(*Profile) error, apply func(*Profile)) (*Profile, error)
}
