// Package funds models the host ledger's native asset: per-account balances
// in integer minor units, plus escrow locks for open orders. The core debits
// and credits this ledger but never mints currency outside the admin faucet
// used to seed environments.
package funds

import (
	"context"
	"sync"

	id "canopy/pkg/domain"
	dErrors "canopy/pkg/domain-errors"
)

// EscrowID identifies a lock created at order placement.
type EscrowID uint64

// escrow tracks the unreleased remainder of a lock.
type escrow struct {
	owner     id.AccountID
	remaining int64
}

// Ledger is the in-process payment rail. All methods are safe for
// concurrent use; each is a single atomic step so callers composing
// multi-step flows serialize at their own level.
type Ledger struct {
	mu       sync.RWMutex
	balances map[id.AccountID]int64
	escrows  map[EscrowID]*escrow
	nextID   EscrowID
}

func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[id.AccountID]int64),
		escrows:  make(map[EscrowID]*escrow),
	}
}

// Deposit credits an account. Amounts must be positive; authorization is
// enforced by the caller (admin faucet).
func (l *Ledger) Deposit(_ context.Context, account id.AccountID, amount int64) error {
	if amount <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "deposit amount must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] += amount
	return nil
}

// Balance returns the spendable (unescrowed) balance.
func (l *Ledger) Balance(_ context.Context, account id.AccountID) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[account]
}

// Lock moves amount from the account's spendable balance into a new escrow.
// Fails CodeInsufficientFunds on shortfall, leaving the balance untouched.
func (l *Ledger) Lock(_ context.Context, owner id.AccountID, amount int64) (EscrowID, error) {
	if amount <= 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "escrow amount must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[owner] < amount {
		return 0, dErrors.Newf(dErrors.CodeInsufficientFunds,
			"balance %d below required escrow %d", l.balances[owner], amount)
	}
	l.balances[owner] -= amount
	l.nextID++
	l.escrows[l.nextID] = &escrow{owner: owner, remaining: amount}
	return l.nextID, nil
}

// Pay releases amount from the escrow to the payee. Used at settlement to
// pay the seller notional and to sweep the fee to the marketplace account.
func (l *Ledger) Pay(_ context.Context, escrowID EscrowID, payee id.AccountID, amount int64) error {
	if amount <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "payment amount must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	esc, ok := l.escrows[escrowID]
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "escrow not found")
	}
	if esc.remaining < amount {
		return dErrors.Newf(dErrors.CodeInsufficientFunds,
			"escrow remainder %d below payment %d", esc.remaining, amount)
	}
	esc.remaining -= amount
	l.balances[payee] += amount
	if esc.remaining == 0 {
		delete(l.escrows, escrowID)
	}
	return nil
}

// Refund returns amount from the escrow to its owner. amount == 0 refunds
// nothing and succeeds, so callers can refund computed remainders blindly.
func (l *Ledger) Refund(_ context.Context, escrowID EscrowID, amount int64) error {
	if amount == 0 {
		return nil
	}
	if amount < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "refund amount must not be negative")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	esc, ok := l.escrows[escrowID]
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "escrow not found")
	}
	if esc.remaining < amount {
		return dErrors.Newf(dErrors.CodeInsufficientFunds,
			"escrow remainder %d below refund %d", esc.remaining, amount)
	}
	esc.remaining -= amount
	l.balances[esc.owner] += amount
	if esc.remaining == 0 {
		delete(l.escrows, escrowID)
	}
	return nil
}

// EscrowRemaining reports the unreleased remainder of an escrow. A missing
// escrow reports zero: fully released locks are deleted.
func (l *Ledger) EscrowRemaining(_ context.Context, escrowID EscrowID) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if esc, ok := l.escrows[escrowID]; ok {
		return esc.remaining
	}
	return 0
}
