package credit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"canopy/internal/identity"
	id "canopy/pkg/domain"
	dErrors "canopy/pkg/domain-errors"
)

const (
	issuerAccount = "acct-issuer"
	aliceAccount  = "acct-alice"
	bobAccount    = "acct-bob"
)

// fakeCertIssuer records retirement certificate requests.
type fakeCertIssuer struct {
	issued []id.CreditID
	fail   bool
}

func (f *fakeCertIssuer) IssueRetirement(_ context.Context, _ id.AccountID, creditID id.CreditID, _ int64, _, _ string) (id.CertificateID, error) {
	if f.fail {
		return id.CertificateID{}, dErrors.New(dErrors.CodeInternal, "signer unavailable")
	}
	f.issued = append(f.issued, creditID)
	return id.NewCertificateID(), nil
}

type CreditServiceSuite struct {
	suite.Suite
	svc   *Service
	certs *fakeCertIssuer
	ctx   context.Context
}

func TestCreditServiceSuite(t *testing.T) {
	suite.Run(t, new(CreditServiceSuite))
}

func (s *CreditServiceSuite) SetupTest() {
	roles := identity.NewRegistry(nil, []string{issuerAccount})
	s.certs = &fakeCertIssuer{}
	s.svc = NewService(NewInMemoryStore(), roles, WithCertificateIssuer(s.certs))
	s.ctx = context.Background()
}

func (s *CreditServiceSuite) mint(owner id.AccountID, amount int64) *Credit {
	minted, err := s.svc.Mint(s.ctx, issuerAccount, MintRequest{
		Recipient:        owner,
		ProjectID:        "verra-901",
		VintageYear:      2024,
		Methodology:      "VM0042",
		Amount:           amount,
		VerificationHash: "sha256:abc123",
	})
	s.Require().NoError(err)
	return minted
}

func (s *CreditServiceSuite) TestMint() {
	s.Run("issuer mints a credit", func() {
		minted := s.mint(aliceAccount, 10)
		s.Equal(id.AccountID(aliceAccount), minted.Owner)
		s.Equal(int64(10), minted.Amount)
		s.False(minted.Retired)
		s.NotZero(minted.ID)
	})

	s.Run("non-issuer is rejected", func() {
		_, err := s.svc.Mint(s.ctx, aliceAccount, MintRequest{
			Recipient:        aliceAccount,
			ProjectID:        "verra-901",
			Amount:           5,
			VerificationHash: "sha256:abc123",
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("zero amount is rejected", func() {
		_, err := s.svc.Mint(s.ctx, issuerAccount, MintRequest{
			Recipient:        aliceAccount,
			ProjectID:        "verra-901",
			Amount:           0,
			VerificationHash: "sha256:abc123",
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("totals track minted tons", func() {
		before, err := s.svc.Totals(s.ctx)
		s.Require().NoError(err)
		s.mint(aliceAccount, 7)
		after, err := s.svc.Totals(s.ctx)
		s.Require().NoError(err)
		s.Equal(before.Minted+7, after.Minted)
	})
}

func (s *CreditServiceSuite) TestTransfer() {
	s.Run("owner transfers to another account", func() {
		minted := s.mint(aliceAccount, 10)
		transferred, err := s.svc.Transfer(s.ctx, aliceAccount, minted.ID, bobAccount)
		s.Require().NoError(err)
		s.Equal(id.AccountID(bobAccount), transferred.Owner)

		bobCredits, err := s.svc.ListByOwner(s.ctx, bobAccount)
		s.Require().NoError(err)
		s.Len(bobCredits, 1)

		aliceCredits, err := s.svc.ListByOwner(s.ctx, aliceAccount)
		s.Require().NoError(err)
		s.Empty(aliceCredits)
	})

	s.Run("non-owner cannot transfer", func() {
		minted := s.mint(aliceAccount, 10)
		_, err := s.svc.Transfer(s.ctx, bobAccount, minted.ID, bobAccount)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeSelfReferential))

		_, err = s.svc.Transfer(s.ctx, bobAccount, minted.ID, "acct-carol")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("self transfer is rejected", func() {
		minted := s.mint(aliceAccount, 10)
		_, err := s.svc.Transfer(s.ctx, aliceAccount, minted.ID, aliceAccount)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeSelfReferential))
	})

	s.Run("unknown credit id", func() {
		_, err := s.svc.Transfer(s.ctx, aliceAccount, id.CreditID(99999), bobAccount)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *CreditServiceSuite) TestRetire() {
	s.Run("owner retires a credit", func() {
		minted := s.mint(aliceAccount, 10)
		retired, err := s.svc.Retire(s.ctx, aliceAccount, minted.ID, "offsetting 2025 travel")
		s.Require().NoError(err)
		s.True(retired.Retired)
		s.NotNil(retired.RetiredAt)
		s.Equal("offsetting 2025 travel", retired.RetirementReason)
		s.Len(retired.Certifications, 1)
		s.Contains(s.certs.issued, minted.ID)

		retiredList, err := s.svc.ListRetiredByOwner(s.ctx, aliceAccount)
		s.Require().NoError(err)
		s.Len(retiredList, 1)
	})

	s.Run("double retire fails terminal and counts once", func() {
		minted := s.mint(aliceAccount, 8)
		_, err := s.svc.Retire(s.ctx, aliceAccount, minted.ID, "first")
		s.Require().NoError(err)

		before, err := s.svc.Totals(s.ctx)
		s.Require().NoError(err)

		_, err = s.svc.Retire(s.ctx, aliceAccount, minted.ID, "second")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyTerminal))

		after, err := s.svc.Totals(s.ctx)
		s.Require().NoError(err)
		s.Equal(before.Retired, after.Retired)
	})

	s.Run("retired credit cannot transfer", func() {
		minted := s.mint(aliceAccount, 5)
		_, err := s.svc.Retire(s.ctx, aliceAccount, minted.ID, "done")
		s.Require().NoError(err)

		_, err = s.svc.Transfer(s.ctx, aliceAccount, minted.ID, bobAccount)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyTerminal))
	})

	s.Run("retirement stands when certificate issuance fails", func() {
		minted := s.mint(aliceAccount, 5)
		s.certs.fail = true
		defer func() { s.certs.fail = false }()

		retired, err := s.svc.Retire(s.ctx, aliceAccount, minted.ID, "reason")
		s.Require().NoError(err)
		s.True(retired.Retired)
		s.Empty(retired.Certifications)
	})
}

func (s *CreditServiceSuite) TestBatchOperations() {
	s.Run("batch transfer reports per-item outcomes", func() {
		first := s.mint(aliceAccount, 3)
		second := s.mint(bobAccount, 4)

		results := s.svc.BatchTransfer(s.ctx, aliceAccount,
			[]id.CreditID{first.ID, second.ID}, "acct-carol")
		s.Require().Len(results, 2)
		s.True(results[0].OK)
		s.False(results[1].OK)
		s.NotEmpty(results[1].Error)

		// The failure at item two did not roll back item one.
		carolCredits, err := s.svc.ListByOwner(s.ctx, "acct-carol")
		s.Require().NoError(err)
		s.Len(carolCredits, 1)
	})

	s.Run("batch retire is sequential not atomic", func() {
		first := s.mint(aliceAccount, 3)
		second := s.mint(aliceAccount, 4)
		_, err := s.svc.Retire(s.ctx, aliceAccount, second.ID, "already gone")
		s.Require().NoError(err)

		results := s.svc.BatchRetire(s.ctx, aliceAccount,
			[]id.CreditID{first.ID, second.ID}, "cleanup")
		s.Require().Len(results, 2)
		s.True(results[0].OK)
		s.False(results[1].OK)

		got, err := s.svc.Get(s.ctx, first.ID)
		s.Require().NoError(err)
		s.True(got.Retired)
	})
}
