package certificate

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	certmetrics "canopy/internal/certificate/metrics"
	"canopy/internal/events"
	"canopy/internal/identity"
	id "canopy/pkg/domain"
	dErrors "canopy/pkg/domain-errors"
	"canopy/pkg/platform/sentinel"
	"canopy/pkg/requestcontext"
)

// SystemIssuer is the account recorded as issuer on certificates the
// registry produces itself (retirement and purchase certificates).
const SystemIssuer id.AccountID = "canopy:registry"

// EventPublisher appends to the domain-event log.
type EventPublisher interface {
	Emit(ctx context.Context, event events.Event) error
}

// Service issues, verifies, and revokes certificates.
type Service struct {
	store  Store
	signer *Signer
	roles  *identity.Registry
	logger *slog.Logger
	pub    EventPublisher
	mx     *certmetrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithEventPublisher(pub EventPublisher) Option {
	return func(s *Service) { s.pub = pub }
}

func WithMetrics(m *certmetrics.Metrics) Option {
	return func(s *Service) { s.mx = m }
}

func NewService(store Store, signer *Signer, roles *identity.Registry, opts ...Option) *Service {
	s := &Service{store: store, signer: signer, roles: roles, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue creates a signed certificate. Caller must hold the issuer role.
func (s *Service) Issue(ctx context.Context, caller id.AccountID, req IssueRequest) (*Certificate, error) {
	if err := s.roles.Require(caller, identity.RoleIssuer); err != nil {
		return nil, err
	}
	return s.issue(ctx, caller, req)
}

// IssueRetirement produces the certificate that accompanies a credit
// retirement. Called by the credit lifecycle, not by external callers.
func (s *Service) IssueRetirement(ctx context.Context, recipient id.AccountID, creditID id.CreditID, amount int64, verificationHash, reason string) (id.CertificateID, error) {
	cert, err := s.issue(ctx, SystemIssuer, IssueRequest{
		Recipient:        recipient,
		Type:             TypeRetirement,
		CreditIDs:        []id.CreditID{creditID},
		VerificationHash: verificationHash,
		Metadata: map[string]string{
			"reason": reason,
			"amount": strconv.FormatInt(amount, 10),
		},
	})
	if err != nil {
		return id.CertificateID{}, err
	}
	return cert.ID, nil
}

// IssuePurchase produces the certificate that accompanies a settled trade.
// Called by the matching engine.
func (s *Service) IssuePurchase(ctx context.Context, buyer id.AccountID, creditIDs []id.CreditID, verificationHash, tradeRef string) (id.CertificateID, error) {
	cert, err := s.issue(ctx, SystemIssuer, IssueRequest{
		Recipient:        buyer,
		Type:             TypePurchase,
		CreditIDs:        creditIDs,
		VerificationHash: verificationHash,
		Metadata:         map[string]string{"trade": tradeRef},
	})
	if err != nil {
		return id.CertificateID{}, err
	}
	return cert.ID, nil
}

func (s *Service) issue(ctx context.Context, issuer id.AccountID, req IssueRequest) (*Certificate, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	cert := &Certificate{
		ID:               id.NewCertificateID(),
		Type:             req.Type,
		Recipient:        req.Recipient,
		CreditIDs:        append([]id.CreditID(nil), req.CreditIDs...),
		VerificationHash: req.VerificationHash,
		IssuedAt:         now,
		Issuer:           issuer,
		Status:           StatusActive,
		Metadata:         req.Metadata,
		AuditTrail: []AuditEntry{{
			Action:    AuditIssued,
			Timestamp: now,
			Actor:     issuer,
		}},
	}
	if days := validityDays(req); days > 0 {
		expiry := now.AddDate(0, 0, days)
		cert.ExpiresAt = &expiry
	}
	cert.Signature = s.signer.Sign(cert.ID, cert.Type, cert.Recipient, cert.VerificationHash, cert.IssuedAt)

	contentHash := ContentHash(cert.Type, cert.Recipient, cert.CreditIDs, cert.VerificationHash)
	if err := s.store.Insert(ctx, cert, contentHash); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store certificate")
	}

	s.emit(ctx, issuer, events.ActionCertIssued, cert.ID.String(), string(cert.Type))
	if s.mx != nil {
		s.mx.Issued.Inc()
	}
	return cert, nil
}

// validityDays resolves the effective validity window: explicit issuance
// parameters override the type template; negative means no expiry.
func validityDays(req IssueRequest) int {
	if req.ValidityDays != 0 {
		if req.ValidityDays < 0 {
			return 0
		}
		return req.ValidityDays
	}
	return TemplateFor(req.Type).ValidityDays
}

// Verify recomputes the signature and checks expiry. An expired-but-still-
// Active certificate transitions to Expired exactly once, here: expiry is
// evaluated lazily, never on a timer. The audit trail records the check
// whether it passed or failed.
func (s *Service) Verify(ctx context.Context, verifier id.AccountID, certID id.CertificateID) (*VerifyResult, error) {
	now := requestcontext.Now(ctx)
	var result VerifyResult
	_, err := s.store.Execute(ctx, certID,
		func(*Certificate) error { return nil },
		func(cert *Certificate) {
			if cert.Status == StatusActive && cert.ExpiresAt != nil && now.After(*cert.ExpiresAt) {
				cert.Status = StatusExpired
				cert.AuditTrail = append(cert.AuditTrail, AuditEntry{
					Action:    AuditExpired,
					Timestamp: now,
					Actor:     verifier,
					Note:      "expired at verification",
				})
			}

			signatureOK := s.signer.Matches(cert)
			isValid := signatureOK && cert.Status == StatusActive

			entry := AuditEntry{Action: AuditVerified, Timestamp: now, Actor: verifier}
			if !isValid {
				entry.Action = AuditFailed
				switch {
				case !signatureOK:
					entry.Note = "signature mismatch"
				default:
					entry.Note = "status " + string(cert.Status)
				}
			}
			cert.AuditTrail = append(cert.AuditTrail, entry)

			result = VerifyResult{
				CertificateID: cert.ID,
				IsValid:       isValid,
				Status:        cert.Status,
				IssuedAt:      cert.IssuedAt,
				ExpiresAt:     cert.ExpiresAt,
				VerifiedAt:    now,
			}
		},
	)
	if err != nil {
		return nil, wrapCertErr(err)
	}

	s.emit(ctx, verifier, events.ActionCertVerified, certID.String(), string(result.Status))
	if s.mx != nil {
		s.mx.Verifications.Inc()
		if !result.IsValid {
			s.mx.FailedVerifications.Inc()
		}
	}
	return &result, nil
}

// BatchVerify verifies each certificate independently. No cross-item
// atomicity: one bad id does not stop the rest, and its failure is reported
// in its own slot.
func (s *Service) BatchVerify(ctx context.Context, verifier id.AccountID, certIDs []id.CertificateID) []VerifyResult {
	results := make([]VerifyResult, 0, len(certIDs))
	for _, certID := range certIDs {
		res, err := s.Verify(ctx, verifier, certID)
		if err != nil {
			results = append(results, VerifyResult{CertificateID: certID, Error: err.Error()})
			continue
		}
		results = append(results, *res)
	}
	return results
}

// Revoke permanently invalidates a certificate. Only the original issuer or
// an admin may revoke; there is no un-revoke.
func (s *Service) Revoke(ctx context.Context, caller id.AccountID, certID id.CertificateID, reason string) (*Certificate, error) {
	now := requestcontext.Now(ctx)
	cert, err := s.store.Execute(ctx, certID,
		func(cert *Certificate) error {
			if caller != cert.Issuer && !s.roles.Has(caller, identity.RoleAdmin) {
				return dErrors.New(dErrors.CodeUnauthorized, "only the issuer or an admin may revoke")
			}
			if cert.Status == StatusRevoked {
				return dErrors.New(dErrors.CodeAlreadyTerminal, "certificate is already revoked")
			}
			return nil
		},
		func(cert *Certificate) {
			cert.Status = StatusRevoked
			cert.AuditTrail = append(cert.AuditTrail, AuditEntry{
				Action:    AuditRevoked,
				Timestamp: now,
				Actor:     caller,
				Note:      reason,
			})
		},
	)
	if err != nil {
		return nil, wrapCertErr(err)
	}

	s.emit(ctx, caller, events.ActionCertRevoked, certID.String(), reason)
	if s.mx != nil {
		s.mx.Revoked.Inc()
	}
	return cert, nil
}

// Get returns one certificate by id.
func (s *Service) Get(ctx context.Context, certID id.CertificateID) (*Certificate, error) {
	cert, err := s.store.FindByID(ctx, certID)
	if err != nil {
		return nil, wrapCertErr(err)
	}
	return cert, nil
}

// ListByRecipient returns the certificates held by one account.
func (s *Service) ListByRecipient(ctx context.Context, recipient id.AccountID) ([]*Certificate, error) {
	return s.store.ListByRecipient(ctx, recipient)
}

// FindExisting looks up a certificate by its content identity.
func (s *Service) FindExisting(ctx context.Context, certType Type, recipient id.AccountID, creditIDs []id.CreditID, verificationHash string) (*Certificate, error) {
	cert, err := s.store.FindByContentHash(ctx, ContentHash(certType, recipient, creditIDs, verificationHash))
	if err != nil {
		return nil, wrapCertErr(err)
	}
	return cert, nil
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

func wrapCertErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "certificate not found")
	}
	return err
}
