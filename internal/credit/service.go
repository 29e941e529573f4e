package credit

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	creditmetrics "canopy/internal/credit/metrics"
	"canopy/internal/events"
	"canopy/internal/identity"
	id "canopy/pkg/domain"
	dErrors "canopy/pkg/domain-errors"
	"canopy/pkg/platform/sentinel"
	"canopy/pkg/requestcontext"
)

// CertificateIssuer is the slice of the certificate registry the lifecycle
// needs: retirement produces a certificate as a side effect.
type CertificateIssuer interface {
	IssueRetirement(ctx context.Context, recipient id.AccountID, creditID id.CreditID, amount int64, verificationHash, reason string) (id.CertificateID, error)
}

// EventPublisher appends to the domain-event log.
type EventPublisher interface {
	Emit(ctx context.Context, event events.Event) error
}

// Service orchestrates the credit lifecycle: mint, transfer, retire. Every
// mutating operation runs under the service mutex so callers never observe a
// half-applied transition; the host ledger would give the same guarantee by
// serializing transactions.
type Service struct {
	mu     sync.Mutex
	store  Store
	roles  *identity.Registry
	certs  CertificateIssuer
	logger *slog.Logger
	pub    EventPublisher
	mx     *creditmetrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithEventPublisher(pub EventPublisher) Option {
	return func(s *Service) { s.pub = pub }
}

func WithMetrics(m *creditmetrics.Metrics) Option {
	return func(s *Service) { s.mx = m }
}

func WithCertificateIssuer(issuer CertificateIssuer) Option {
	return func(s *Service) { s.certs = issuer }
}

func NewService(store Store, roles *identity.Registry, opts ...Option) *Service {
	s := &Service{store: store, roles: roles, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mint records a new credit for the recipient. Caller must hold the issuer
// role; the verification hash is recorded as supplied by the external
// verification pipeline.
func (s *Service) Mint(ctx context.Context, caller id.AccountID, req MintRequest) (*Credit, error) {
	if err := s.roles.Require(caller, identity.RoleIssuer); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	credit := &Credit{
		ProjectID:        req.ProjectID,
		VintageYear:      req.VintageYear,
		Methodology:      req.Methodology,
		Amount:           req.Amount,
		VerificationHash: req.VerificationHash,
		MintedAt:         requestcontext.Now(ctx),
		Owner:            req.Recipient,
	}
	creditID, err := s.store.Insert(ctx, credit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store credit")
	}
	credit.ID = creditID

	s.emit(ctx, caller, events.ActionCreditMinted, creditID.String(), req.ProjectID)
	if s.mx != nil {
		s.mx.CreditsMinted.Inc()
		s.mx.TonsMinted.Add(float64(req.Amount))
	}
	return credit, nil
}

// Transfer moves ownership to newOwner. Caller must be the current owner and
// the credit must be unretired. The owner index moves atomically with the
// ownership change.
func (s *Service) Transfer(ctx context.Context, caller id.AccountID, creditID id.CreditID, newOwner id.AccountID) (*Credit, error) {
	if newOwner == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "new owner is required")
	}
	if newOwner == caller {
		return nil, dErrors.New(dErrors.CodeSelfReferential, "cannot transfer a credit to its current owner")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	credit, err := s.store.Execute(ctx, creditID,
		func(c *Credit) error { return c.CanTransfer(caller) },
		func(c *Credit) { c.ApplyTransfer(newOwner) },
	)
	if err != nil {
		return nil, wrapCreditErr(err)
	}

	s.emit(ctx, caller, events.ActionCreditTransferred, creditID.String(), "to "+newOwner.String())
	return credit, nil
}

// Retire permanently removes the credit from circulation and requests a
// retirement certificate. Retirement is terminal: any later transfer or
// retire fails.
func (s *Service) Retire(ctx context.Context, caller id.AccountID, creditID id.CreditID, reason string) (*Credit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := requestcontext.Now(ctx)
	credit, err := s.store.Execute(ctx, creditID,
		func(c *Credit) error { return c.CanRetire(caller) },
		func(c *Credit) { c.ApplyRetirement(reason, now) },
	)
	if err != nil {
		return nil, wrapCreditErr(err)
	}

	s.emit(ctx, caller, events.ActionCreditRetired, creditID.String(), reason)
	if s.mx != nil {
		s.mx.CreditsRetired.Inc()
		s.mx.TonsRetired.Add(float64(credit.Amount))
	}

	if s.certs != nil {
		certID, err := s.certs.IssueRetirement(ctx, caller, creditID, credit.Amount, credit.VerificationHash, reason)
		if err != nil {
			// The retirement itself stands; certificate issuance is a
			// side effect and failures surface in the log, not as a
			// rollback of a terminal transition.
			s.logger.ErrorContext(ctx, "retirement certificate issuance failed",
				"credit_id", creditID.String(),
				"error", err,
			)
			return credit, nil
		}
		if err := s.store.AppendCertification(ctx, creditID, certID); err != nil {
			s.logger.ErrorContext(ctx, "failed to link retirement certificate",
				"credit_id", creditID.String(),
				"certificate_id", certID.String(),
				"error", err,
			)
			return credit, nil
		}
		credit.Certifications = append(credit.Certifications, certID)
	}
	return credit, nil
}

// BatchTransfer applies Transfer per id, sequentially. The batch is not
// atomic as a group: a failure at item k does not roll back items 1..k-1,
// and per-item outcomes are returned so callers see exactly what applied.
func (s *Service) BatchTransfer(ctx context.Context, caller id.AccountID, creditIDs []id.CreditID, newOwner id.AccountID) []BatchResult {
	results := make([]BatchResult, 0, len(creditIDs))
	for _, creditID := range creditIDs {
		_, err := s.Transfer(ctx, caller, creditID, newOwner)
		results = append(results, batchResult(creditID, err))
	}
	return results
}

// BatchRetire applies Retire per id, sequentially. Not atomic as a group;
// see BatchTransfer.
func (s *Service) BatchRetire(ctx context.Context, caller id.AccountID, creditIDs []id.CreditID, reason string) []BatchResult {
	results := make([]BatchResult, 0, len(creditIDs))
	for _, creditID := range creditIDs {
		_, err := s.Retire(ctx, caller, creditID, reason)
		results = append(results, batchResult(creditID, err))
	}
	return results
}

// Get returns one credit by id.
func (s *Service) Get(ctx context.Context, creditID id.CreditID) (*Credit, error) {
	credit, err := s.store.FindByID(ctx, creditID)
	if err != nil {
		return nil, wrapCreditErr(err)
	}
	return credit, nil
}

// ListByOwner returns the owner's active credits.
func (s *Service) ListByOwner(ctx context.Context, owner id.AccountID) ([]*Credit, error) {
	return s.store.ListByOwner(ctx, owner)
}

// ListRetiredByOwner returns the owner's retired credits.
func (s *Service) ListRetiredByOwner(ctx context.Context, owner id.AccountID) ([]*Credit, error) {
	return s.store.ListRetiredByOwner(ctx, owner)
}

// Totals returns the registry-wide minted/retired counters.
func (s *Service) Totals(ctx context.Context) (Totals, error) {
	return s.store.Totals(ctx)
}

func (s *Service) emit(ctx context.Context, account id.AccountID, action events.Action, subject, reason string) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Emit(ctx, events.Event{
		Account: account,
		Action:  action,
		Subject: subject,
		Reason:  reason,
	}); err != nil {
		s.logger.WarnContext(ctx, "event emit failed", "action", string(action), "error", err)
	}
}

func wrapCreditErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "credit not found")
	}
	return err
}

func batchResult(creditID id.CreditID, err error) BatchResult {
	if err != nil {
		return BatchResult{CreditID: creditID, Error: err.Error()}
	}
	return BatchResult{CreditID: creditID, OK: true}
}
