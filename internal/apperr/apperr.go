package apperr

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an authentication failure. Each kind maps to exactly one
// HTTP status at the handler boundary.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindRateLimited     Kind = "rate_limited"
	KindBlacklisted     Kind = "blacklisted"
	KindNotFound        Kind = "not_found"
	KindExpired         Kind = "expired"
	KindAlreadyUsed     Kind = "already_used"
	KindInvalidCode     Kind = "invalid_code"
	KindDeliveryFailure Kind = "delivery_failure"
	KindTokenInvalid    Kind = "token_invalid"
	KindTokenExpired    Kind = "token_expired"
	KindTokenRevoked    Kind = "token_revoked"
	KindInternal        Kind = "internal"
)

// Error is the single tagged error type used across the auth core. Handlers
// translate it to a wire response once; services never format HTTP bodies.
type Error struct {
	Kind    Kind
	Message string

	// RetryAfter is populated for rate-limit and blacklist rejections.
	RetryAfter time.Duration
	// Remaining is populated for rate-limit rejections.
	Remaining int
	// ExpiresAt is populated for blacklist rejections with a bounded cooldown.
	ExpiresAt *time.Time

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New creates a tagged error without an underlying cause
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap tags an underlying error with a kind
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// KindOf extracts the kind from an error chain, defaulting to KindInternal
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// As returns the tagged error in the chain, or nil
func As(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsKind reports whether the error chain carries the given kind
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
