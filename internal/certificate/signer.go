package certificate

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	id "canopy/pkg/domain"
)

// Signer produces and checks the deterministic certificate signature. The
// signature is an HMAC-SHA256 over the signed fields; verification
// recomputes it from the stored certificate, so any mutation of a signed
// field after issuance fails the comparison.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign computes the signature over (id, type, recipient, verification hash,
// issue time). Issue time is fixed to nanosecond UTC so the payload is
// byte-stable.
func (s *Signer) Sign(certID id.CertificateID, certType Type, recipient id.AccountID, verificationHash string, issuedAt time.Time) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s|%s|%s|%s|%d",
		certID.String(), certType, recipient, verificationHash, issuedAt.UTC().UnixNano())
	return hex.EncodeToString(mac.Sum(nil))
}

// Matches reports whether the certificate's stored signature equals the
// recomputed one, in constant time.
func (s *Signer) Matches(cert *Certificate) bool {
	expected := s.Sign(cert.ID, cert.Type, cert.Recipient, cert.VerificationHash, cert.IssuedAt)
	return hmac.Equal([]byte(expected), []byte(cert.Signature))
}

// ContentHash derives the lookup key used for existence checks: a SHA-256
// over the certificate's content identity (type, recipient, credit set,
// verification hash). Credit ids are sorted so the hash is order-free.
func ContentHash(certType Type, recipient id.AccountID, creditIDs []id.CreditID, verificationHash string) string {
	ids := make([]string, 0, len(creditIDs))
	for _, cid := range creditIDs {
		ids = append(ids, cid.String())
	}
	sort.Strings(ids)
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s", certType, recipient, strings.Join(ids, ","), verificationHash)
	return hex.EncodeToString(h.Sum(nil))
}
