package secrets

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors returned by IdentityStore implementations
var (
	ErrIdentityNotFound   = errors.New("identity not found")
	ErrUsernameTaken      = errors.New("username already registered")
	ErrIncompleteIdentity = errors.New("identity has no login path")
)

// ErrorKind classifies failures surfaced to the route layer
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation_error"
	KindAuthentication ErrorKind = "authentication_failure"
	KindNotFound       ErrorKind = "not_found"
	KindTransientStore ErrorKind = "transient_store_error"
)

// Error codes
const (
	ErrCodeMissingField     = "missing_field"
	ErrCodeInvalidUsername  = "invalid_username"
	ErrCodeWeakPassword     = "weak_password"
	ErrCodePasswordTooLong  = "password_too_long"
	ErrCodeInvalidCreds     = "invalid_credentials"
	ErrCodeUsernameTaken    = "username_taken"
	ErrCodeUnknownProvider  = "unknown_provider"
	ErrCodeEmptySecret      = "empty_secret"
	ErrCodeSecretTooLong    = "secret_too_long"
	ErrCodeMarkupInSecret   = "markup_in_secret"
	ErrCodeNotFound         = "not_found"
	ErrCodeStoreUnavailable = "store_unavailable"
)

// AuthError is the error type every login pipeline and the secret accessor
// return. Message is safe to show to the end user; Err holds the cause and is
// only ever logged.
type AuthError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Field   string
	Err     error
}

func NewAuthError(kind ErrorKind, code, message, field string) *AuthError {
	return &AuthError{Kind: kind, Code: code, Message: message, Field: field}
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Kind, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ClassifyStoreError maps an error returned by an IdentityStore to a kind
func ClassifyStoreError(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrIdentityNotFound):
		return KindNotFound
	case errors.Is(err, ErrUsernameTaken), errors.Is(err, ErrIncompleteIdentity):
		return KindValidation
	default:
		return KindTransientStore
	}
}

// storeFailure wraps a store error into an AuthError with a generic message
func storeFailure(op string, err error) *AuthError {
	kind := ClassifyStoreError(err)
	out := &AuthError{Kind: kind, Err: fmt.Errorf("%s: %w", op, err)}
	switch kind {
	case KindNotFound:
		out.Code, out.Message = ErrCodeNotFound, "Account not found"
	case KindValidation:
		out.Code, out.Message = "invalid_identity", "Account could not be saved"
	default:
		out.Code, out.Message = ErrCodeStoreUnavailable, "Something went wrong, please try again"
		if errors.Is(err, context.Canceled) {
			out.Message = "Request cancelled"
		}
	}
	return out
}

// AsAuthError extracts an *AuthError from err
func AsAuthError(err error) (*AuthError, bool) {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr, true
	}
	return nil, false
}
