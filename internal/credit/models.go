package credit

import (
	"time"

	id "canopy/pkg/domain"
	dErrors "canopy/pkg/domain-errors"
)

// Credit is an atomic unit of verified environmental benefit.
//
// Invariants:
//   - Amount is positive and fixed at mint; credits are indivisible units
//     and are never split across trades or transfers
//   - Owner always matches the registry's owner index entry for this id
//   - Once Retired is set the record is immutable: no further transfer or
//     retirement, ever
type Credit struct {
	ID               id.CreditID        `json:"id"`
	ProjectID        string             `json:"project_id"`
	VintageYear      int                `json:"vintage_year"`
	Methodology      string             `json:"methodology"`
	Amount           int64              `json:"amount"`
	VerificationHash string             `json:"verification_hash"`
	MintedAt         time.Time          `json:"minted_at"`
	Retired          bool               `json:"retired"`
	RetiredAt        *time.Time         `json:"retired_at,omitempty"`
	RetirementReason string             `json:"retirement_reason,omitempty"`
	Owner            id.AccountID       `json:"owner"`
	Certifications   []id.CertificateID `json:"certifications,omitempty"`
}

// CanTransfer checks the preconditions for moving ownership.
// Use with ApplyTransfer in Execute callbacks.
func (c *Credit) CanTransfer(caller id.AccountID) error {
	if c.Retired {
		return dErrors.New(dErrors.CodeAlreadyTerminal, "credit is retired")
	}
	if c.Owner != caller {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not the credit owner")
	}
	return nil
}

// ApplyTransfer moves ownership. Call CanTransfer first.
func (c *Credit) ApplyTransfer(newOwner id.AccountID) {
	c.Owner = newOwner
}

// CanRetire checks the preconditions for permanent retirement.
func (c *Credit) CanRetire(caller id.AccountID) error {
	return c.CanTransfer(caller)
}

// ApplyRetirement marks the credit retired. Call CanRetire first.
func (c *Credit) ApplyRetirement(reason string, now time.Time) {
	c.Retired = true
	c.RetiredAt = &now
	c.RetirementReason = reason
}

// MintRequest carries the verified inputs for a mint. The verification hash
// comes from the external verification pipeline; the core records it without
// semantic validation.
type MintRequest struct {
	Recipient        id.AccountID `json:"recipient"`
	ProjectID        string       `json:"project_id"`
	VintageYear      int          `json:"vintage_year"`
	Methodology      string       `json:"methodology"`
	Amount           int64        `json:"amount"`
	VerificationHash string       `json:"verification_hash"`
}

// Validate enforces mint argument invariants.
func (r *MintRequest) Validate() error {
	if r.Recipient == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "recipient is required")
	}
	if r.ProjectID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "project id is required")
	}
	if r.Amount <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "amount must be positive")
	}
	if r.VerificationHash == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "verification hash is required")
	}
	return nil
}

// Totals are the registry-wide counters, in credit minor units.
type Totals struct {
	Minted  int64 `json:"total_minted"`
	Retired int64 `json:"total_retired"`
}

// BatchResult reports the outcome for one item of a batch operation. Batches
// are sequential and not atomic as a group: a failure at item k leaves items
// 1..k-1 applied.
type BatchResult struct {
	CreditID id.CreditID `json:"credit_id"`
	OK       bool        `json:"ok"`
	Error    string      `json:"error,omitempty"`
}
