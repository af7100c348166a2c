package xerrors

import (
	"errors"
	"fmt"
)

// Common reusable application errors
var (
	ErrBlockedAccount  = errors.New("account is blocked")
	ErrNoSession       = errors.New("no active session")
	ErrChallengeClosed = errors.New("bankid challenge is no longer active")
	ErrPollTimeout     = errors.New("bankid order status polling timed out")

	// ErrUnexpectedResponse means a 2xx body did not match the endpoint's
	// documented shape. Raised at the decode boundary, never propagated as
	// a field access failure deeper in.
	ErrUnexpectedResponse = errors.New("unexpected response shape")
)

// NotApprovedMessage is the exact string the backend returns for an account
// that has not been approved by an administrator. Failures carrying it get a
// tailored explanation instead of the raw server string.
const NotApprovedMessage = "Your Account is not approved by admin."

// ValidationError is a client-side precondition failure. No request is sent
// when one of these is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func Validation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// APIError is a non-2xx response from the backend. Message is extracted from
// the body's nested error field when present.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
}

// NetworkError means no response was received at all.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a client-side validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNetwork reports whether err is a transport-level failure.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// AsAPIError extracts an *APIError from err if present.
func AsAPIError(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsNotApproved reports whether err is an API rejection carrying the
// backend's unapproved-account message.
func IsNotApproved(err error) bool {
	ae, ok := AsAPIError(err)
	return ok && ae.Message == NotApprovedMessage
}

// Wrap adds context to an error (similar to fmt.Errorf("%w")).
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// MessageOrDefault returns err.Error() or a fallback message if err is nil.
func MessageOrDefault(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}
