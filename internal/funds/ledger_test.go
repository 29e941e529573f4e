package funds

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	dErrors "canopy/pkg/domain-errors"
)

type LedgerSuite struct {
	suite.Suite
	ledger *Ledger
	ctx    context.Context
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.ledger = NewLedger()
	s.ctx = context.Background()
}

func (s *LedgerSuite) TestDeposit() {
	s.Run("deposits accumulate", func() {
		s.Require().NoError(s.ledger.Deposit(s.ctx, "acct-a", 100))
		s.Require().NoError(s.ledger.Deposit(s.ctx, "acct-a", 50))
		s.Equal(int64(150), s.ledger.Balance(s.ctx, "acct-a"))
	})

	s.Run("non-positive amounts rejected", func() {
		err := s.ledger.Deposit(s.ctx, "acct-a", 0)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
		err = s.ledger.Deposit(s.ctx, "acct-a", -5)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *LedgerSuite) TestEscrowLifecycle() {
	s.Run("lock moves funds out of the spendable balance", func() {
		s.Require().NoError(s.ledger.Deposit(s.ctx, "acct-a", 100))
		escrowID, err := s.ledger.Lock(s.ctx, "acct-a", 60)
		s.Require().NoError(err)
		s.Equal(int64(40), s.ledger.Balance(s.ctx, "acct-a"))
		s.Equal(int64(60), s.ledger.EscrowRemaining(s.ctx, escrowID))
	})

	s.Run("shortfall leaves the balance untouched", func() {
		s.Require().NoError(s.ledger.Deposit(s.ctx, "acct-b", 30))
		_, err := s.ledger.Lock(s.ctx, "acct-b", 60)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientFunds))
		s.Equal(int64(30), s.ledger.Balance(s.ctx, "acct-b"))
	})

	s.Run("pay releases to the payee and deletes a drained escrow", func() {
		s.Require().NoError(s.ledger.Deposit(s.ctx, "acct-c", 100))
		escrowID, err := s.ledger.Lock(s.ctx, "acct-c", 100)
		s.Require().NoError(err)

		s.Require().NoError(s.ledger.Pay(s.ctx, escrowID, "acct-d", 70))
		s.Equal(int64(70), s.ledger.Balance(s.ctx, "acct-d"))
		s.Equal(int64(30), s.ledger.EscrowRemaining(s.ctx, escrowID))

		s.Require().NoError(s.ledger.Pay(s.ctx, escrowID, "acct-d", 30))
		s.Zero(s.ledger.EscrowRemaining(s.ctx, escrowID))

		err = s.ledger.Pay(s.ctx, escrowID, "acct-d", 1)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("overdrawing an escrow fails", func() {
		s.Require().NoError(s.ledger.Deposit(s.ctx, "acct-e", 100))
		escrowID, err := s.ledger.Lock(s.ctx, "acct-e", 50)
		s.Require().NoError(err)
		err = s.ledger.Pay(s.ctx, escrowID, "acct-f", 60)
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientFunds))
	})

	s.Run("refund returns the remainder to the owner", func() {
		s.Require().NoError(s.ledger.Deposit(s.ctx, "acct-g", 100))
		escrowID, err := s.ledger.Lock(s.ctx, "acct-g", 80)
		s.Require().NoError(err)
		s.Require().NoError(s.ledger.Pay(s.ctx, escrowID, "acct-h", 30))

		s.Require().NoError(s.ledger.Refund(s.ctx, escrowID, 50))
		s.Equal(int64(70), s.ledger.Balance(s.ctx, "acct-g"))
		s.Zero(s.ledger.EscrowRemaining(s.ctx, escrowID))
	})

	s.Run("zero refund is a no-op success", func() {
		s.NoError(s.ledger.Refund(s.ctx, EscrowID(12345), 0))
	})
}
