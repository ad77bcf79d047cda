package errors

import (
	"errors"
	"fmt"
)

// Error taxonomy for the session and identity-linking subsystem
var (
	// Provider round-trip errors
	ErrProviderDenied       = errors.New("provider denied")
	ErrCredentialConflict   = errors.New("credential already linked to another account")
	ErrMissingProviderToken = errors.New("provider returned no usable access token")

	// Backend errors
	ErrSyncFailure     = errors.New("token sync failed")
	ErrExchangeFailure = errors.New("code exchange failed")
	ErrBackendRejected = errors.New("backend rejected request")

	// Session errors
	ErrSessionExpired  = errors.New("session expired")
	ErrNoSession       = errors.New("no active session")
	ErrSessionMismatch = errors.New("session does not match the current session")

	// Password flow errors
	ErrCredentialRejected = errors.New("credential rejected")

	// General errors
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrInvalidToken   = errors.New("invalid token")
	ErrInternal       = errors.New("internal error")
)

// RejectionReason classifies why a password credential was rejected.
type RejectionReason string

const (
	ReasonInvalidCredential RejectionReason = "invalid_credential"
	ReasonUnknownAccount    RejectionReason = "unknown_account"
	ReasonMalformedEmail    RejectionReason = "malformed_email"
	ReasonEmailInUse        RejectionReason = "email_in_use"
	ReasonWeakPassword      RejectionReason = "weak_password"
)

// RejectionError is a CredentialRejected sub-case. It matches both its own
// sentinel and ErrCredentialRejected.
type RejectionError struct {
	Reason RejectionReason
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCredentialRejected.Error(), e.Reason)
}

func (e *RejectionError) Is(target error) bool {
	if target == ErrCredentialRejected {
		return true
	}
	t, ok := target.(*RejectionError)
	return ok && t.Reason == e.Reason
}

var (
	ErrInvalidCredential = &RejectionError{Reason: ReasonInvalidCredential}
	ErrUnknownAccount    = &RejectionError{Reason: ReasonUnknownAccount}
	ErrMalformedEmail    = &RejectionError{Reason: ReasonMalformedEmail}
	ErrEmailInUse        = &RejectionError{Reason: ReasonEmailInUse}
	ErrWeakPassword      = &RejectionError{Reason: ReasonWeakPassword}
)

// New is errors.New, re-exported so callers only import this package
func New(text string) error {
	return errors.New(text)
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join is errors.Join
func Join(errs ...error) error {
	return errors.Join(errs...)
}
