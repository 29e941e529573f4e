// Package identity tracks which accounts hold which capabilities. The
// substrate authenticates callers; this package only answers "may this
// account mint / issue / adjust scores".
package identity

import (
	"context"
	"sync"

	id "canopy/pkg/domain"
	dErrors "canopy/pkg/domain-errors"
)

// Role is a capability grant.
type Role string

const (
	// RoleAdmin may manage grants, revoke any certificate, and seed funds.
	RoleAdmin Role = "admin"
	// RoleIssuer may mint credits and issue certificates.
	RoleIssuer Role = "issuer"
	// RoleReputationUpdater may adjust reputation scores directly.
	RoleReputationUpdater Role = "reputation_updater"
)

var validRoles = map[Role]bool{
	RoleAdmin:             true,
	RoleIssuer:            true,
	RoleReputationUpdater: true,
}

// ParseRole constructs a Role from external input.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !validRoles[r] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown role: "+s)
	}
	return r, nil
}

// Registry holds role grants. All methods are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	grants map[Role]map[id.AccountID]bool
}

// NewRegistry seeds initial grants. The process operator decides the first
// admins; everything else is granted at runtime by an admin.
func NewRegistry(admins, issuers []string) *Registry {
	r := &Registry{grants: map[Role]map[id.AccountID]bool{
		RoleAdmin:             {},
		RoleIssuer:            {},
		RoleReputationUpdater: {},
	}}
	for _, a := range admins {
		r.grants[RoleAdmin][id.AccountID(a)] = true
	}
	for _, a := range issuers {
		r.grants[RoleIssuer][id.AccountID(a)] = true
	}
	return r
}

// Has reports whether the account holds the role.
func (r *Registry) Has(account id.AccountID, role Role) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.grants[role][account]
}

// Require returns CodeUnauthorized when the account lacks the role.
func (r *Registry) Require(account id.AccountID, role Role) error {
	if !r.Has(account, role) {
		return dErrors.Newf(dErrors.CodeUnauthorized, "account %s lacks role %s", account, role)
	}
	return nil
}

// Grant adds a role to an account. Caller must be an admin.
func (r *Registry) Grant(_ context.Context, caller, account id.AccountID, role Role) error {
	if err := r.Require(caller, RoleAdmin); err != nil {
		return err
	}
	if !validRoles[role] {
		return dErrors.New(dErrors.CodeInvalidInput, "unknown role")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grants[role][account] = true
	return nil
}

// Revoke removes a role from an account. Caller must be an admin. Revoking
// an absent grant is a no-op.
func (r *Registry) Revoke(_ context.Context, caller, account id.AccountID, role Role) error {
	if err := r.Require(caller, RoleAdmin); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.grants[role], account)
	return nil
}

// List returns every account holding the role, in no particular order.
func (r *Registry) List(role Role) []id.AccountID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]id.AccountID, 0, len(r.grants[role]))
	for a := range r.grants[role] {
		out = append(out, a)
	}
	return out
}
