package certificate

import (
	"time"

	id "canopy/pkg/domain"
	dErrors "canopy/pkg/domain-errors"
)

// Type classifies what a certificate attests to.
type Type string

const (
	TypePurchase     Type = "purchase"
	TypeRetirement   Type = "retirement"
	TypeVerification Type = "verification"
	TypeCompliance   Type = "compliance"
	TypeAudit        Type = "audit"
)

var validTypes = map[Type]bool{
	TypePurchase:     true,
	TypeRetirement:   true,
	TypeVerification: true,
	TypeCompliance:   true,
	TypeAudit:        true,
}

// ParseType constructs a certificate Type from external input.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !validTypes[t] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown certificate type: "+s)
	}
	return t, nil
}

// Status of an issued certificate. Active→Expired happens lazily at
// verification time; Revoked is permanent.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

// AuditAction names an entry in a certificate's append-only trail.
type AuditAction string

const (
	AuditIssued   AuditAction = "issued"
	AuditVerified AuditAction = "verified"
	AuditFailed   AuditAction = "verification_failed"
	AuditExpired  AuditAction = "expired"
	AuditRevoked  AuditAction = "revoked"
)

// AuditEntry is one record in a certificate's trail. Entries are only ever
// appended.
type AuditEntry struct {
	Action    AuditAction  `json:"action"`
	Timestamp time.Time    `json:"timestamp"`
	Actor     id.AccountID `json:"actor"`
	Note      string       `json:"note,omitempty"`
}

// Certificate is a signed, independently verifiable attestation. Signed
// fields (id, type, recipient, verification hash, issue time) are immutable
// after issuance; only Status and AuditTrail change.
type Certificate struct {
	ID               id.CertificateID  `json:"id"`
	Type             Type              `json:"type"`
	Recipient        id.AccountID      `json:"recipient"`
	CreditIDs        []id.CreditID     `json:"credit_ids,omitempty"`
	VerificationHash string            `json:"verification_hash"`
	IssuedAt         time.Time         `json:"issued_at"`
	ExpiresAt        *time.Time        `json:"expires_at,omitempty"`
	Issuer           id.AccountID      `json:"issuer"`
	Signature        string            `json:"signature"`
	Status           Status            `json:"status"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	AuditTrail       []AuditEntry      `json:"audit_trail"`
}

// IssueRequest carries the issuance parameters. Explicit values always
// override template defaults.
type IssueRequest struct {
	Recipient        id.AccountID      `json:"recipient"`
	Type             Type              `json:"type"`
	CreditIDs        []id.CreditID     `json:"credit_ids"`
	VerificationHash string            `json:"verification_hash"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	// ValidityDays overrides the template window; 0 means "use template",
	// negative means "no expiry regardless of template".
	ValidityDays int `json:"validity_days,omitempty"`
}

// Validate enforces issuance argument invariants against the type's
// template.
func (r *IssueRequest) Validate() error {
	if r.Recipient == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "recipient is required")
	}
	if !validTypes[r.Type] {
		return dErrors.New(dErrors.CodeInvalidInput, "unknown certificate type")
	}
	if r.VerificationHash == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "verification hash is required")
	}
	tmpl := TemplateFor(r.Type)
	for _, field := range tmpl.RequiredMetadata {
		if r.Metadata[field] == "" {
			return dErrors.Newf(dErrors.CodeInvalidInput, "metadata field %q is required for %s certificates", field, r.Type)
		}
	}
	return nil
}

// VerifyResult is the outcome of a verification pass.
type VerifyResult struct {
	CertificateID id.CertificateID `json:"certificate_id"`
	IsValid       bool             `json:"is_valid"`
	Status        Status           `json:"status"`
	IssuedAt      time.Time        `json:"issued_at"`
	ExpiresAt     *time.Time       `json:"expires_at,omitempty"`
	VerifiedAt    time.Time        `json:"verified_at"`
	// Error carries the per-item failure for batch verification; empty on
	// a completed check (valid or not).
	Error string `json:"error,omitempty"`
}

// Template defines per-type defaults: validity window and required metadata
// fields. Explicit issuance parameters always win.
type Template struct {
	ValidityDays     int
	RequiredMetadata []string
}

// templates holds the standard certificate kinds. A zero ValidityDays means
// the certificate never expires.
var templates = map[Type]Template{
	TypePurchase:     {ValidityDays: 0},
	TypeRetirement:   {ValidityDays: 0, RequiredMetadata: []string{"reason"}},
	TypeVerification: {ValidityDays: 365},
	TypeCompliance:   {ValidityDays: 365, RequiredMetadata: []string{"framework"}},
	TypeAudit:        {ValidityDays: 730},
}

// TemplateFor returns the template for a certificate type.
func TemplateFor(t Type) Template {
	return templates[t]
}
