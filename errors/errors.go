// Package errors defines the failure taxonomy of the credential engine.
//
// Every error surfaced by the engine wraps one of the sentinel classes below,
// so callers branch with errors.Is rather than on message text.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports that a referenced session, token or client is absent.
	ErrNotFound = errors.New("not found")

	// ErrIntegrityViolation reports a binding or credential mismatch (user id,
	// token value, IP subnet). Failures of this class revoke the offending
	// session before they surface.
	ErrIntegrityViolation = errors.New("integrity violation")

	// ErrUnauthorized reports a per-request rejection (client check mismatch,
	// revoked or expired refresh token). Nothing is revoked as a side effect.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUniqueViolation reports a duplicate identifier at creation time.
	ErrUniqueViolation = errors.New("unique violation")

	// ErrInternal reports an unexpected storage or logic failure. No partial
	// state is committed when this class is returned.
	ErrInternal = errors.New("internal error")
)

func NewNotFound(what string) error {
	return fmt.Errorf("%s: %w", what, ErrNotFound)
}

func NewIntegrityViolation(reason string) error {
	return fmt.Errorf("%s: %w", reason, ErrIntegrityViolation)
}

func NewUnauthorized(reason string) error {
	return fmt.Errorf("%s: %w", reason, ErrUnauthorized)
}

func NewUniqueViolation(what string) error {
	return fmt.Errorf("%s: %w", what, ErrUniqueViolation)
}

// NewInternal wraps err so that both ErrInternal and the original cause remain
// visible to errors.Is.
func NewInternal(err error) error {
	return fmt.Errorf("%w: %w", ErrInternal, err)
}
