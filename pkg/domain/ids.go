// Package domain holds typed identifiers and shared enums. Typed IDs prevent
// cross-type assignment at compile time: a CreditID can never be passed where
// an OrderID is expected.
package domain

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	dErrors "canopy/pkg/domain-errors"
)

// AccountID identifies a caller. The value is the stable account identifier
// supplied by the host ledger; the core trusts it and never derives it from
// session state.
type AccountID string

func (a AccountID) String() string { return string(a) }

// ParseAccountID constructs an AccountID from external input.
// Errors: CodeInvalidInput when the value is empty or whitespace.
func ParseAccountID(s string) (AccountID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "account id cannot be empty")
	}
	return AccountID(s), nil
}

// CreditID is the monotonic identifier assigned by the credit registry.
type CreditID uint64

func (c CreditID) String() string { return strconv.FormatUint(uint64(c), 10) }

// ParseCreditID constructs a CreditID from external input.
func ParseCreditID(s string) (CreditID, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || n == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "credit id must be a positive integer")
	}
	return CreditID(n), nil
}

// OrderID is the monotonic identifier assigned by the order book. Both
// sides draw from one shared sequence, so an id names exactly one order.
type OrderID uint64

func (o OrderID) String() string { return strconv.FormatUint(uint64(o), 10) }

// ParseOrderID constructs an OrderID from external input.
func ParseOrderID(s string) (OrderID, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || n == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "order id must be a positive integer")
	}
	return OrderID(n), nil
}

// CertificateID identifies an issued certificate.
type CertificateID uuid.UUID

func NewCertificateID() CertificateID { return CertificateID(uuid.New()) }

func (c CertificateID) String() string { return uuid.UUID(c).String() }

func (c CertificateID) IsZero() bool { return uuid.UUID(c) == uuid.Nil }

// ParseCertificateID constructs a CertificateID from external input.
func ParseCertificateID(s string) (CertificateID, error) {
	u, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil || u == uuid.Nil {
		return CertificateID{}, dErrors.New(dErrors.CodeInvalidInput, "certificate id must be a valid uuid")
	}
	return CertificateID(u), nil
}

// TradeID identifies an executed trade.
type TradeID uuid.UUID

func NewTradeID() TradeID { return TradeID(uuid.New()) }

func (t TradeID) String() string { return uuid.UUID(t).String() }
