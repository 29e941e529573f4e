// Package domainerrors provides coded errors for the registry core.
//
// Services attach a Code to every error crossing a package boundary so
// transport layers can map outcomes to HTTP statuses without string
// matching, and so tests can assert on the failure class rather than on
// message text. Store layers return pkg/platform/sentinel errors instead;
// services translate at the boundary.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error.
type Code string

const (
	// CodeUnauthorized covers failed capability and ownership checks:
	// a caller without the issuer role, a transfer by a non-owner, a
	// cancel by a non-creator.
	CodeUnauthorized Code = "unauthorized"

	// CodeNotFound covers lookups of absent ids.
	CodeNotFound Code = "not_found"

	// CodeInvalidInput covers malformed arguments: zero amounts,
	// out-of-range ratings, empty recipients, malformed filters.
	CodeInvalidInput Code = "invalid_input"

	// CodeAlreadyTerminal covers operations on entities in a terminal
	// state: a retired credit, a Filled or Cancelled order, a revoked
	// certificate.
	CodeAlreadyTerminal Code = "already_terminal"

	// CodeInsufficientFunds covers escrow shortfalls at order placement.
	CodeInsufficientFunds Code = "insufficient_funds"

	// CodeSelfReferential covers self-reviews and self-trades.
	CodeSelfReferential Code = "self_referential"

	// CodeConflict covers concurrent-modification and uniqueness clashes.
	CodeConflict Code = "conflict"

	// CodeBadRequest covers transport-level decoding failures.
	CodeBadRequest Code = "bad_request"

	// CodeInternal covers unexpected infrastructure failures.
	CodeInternal Code = "internal"
)

// Error is a coded domain error. It wraps an optional cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf constructs a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. A nil err
// yields nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a domain error onto an HTTP status code.
func ToHTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidInput, CodeBadRequest:
		return http.StatusBadRequest
	case CodeAlreadyTerminal, CodeConflict:
		return http.StatusConflict
	case CodeInsufficientFunds:
		return http.StatusPaymentRequired
	case CodeSelfReferential:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
