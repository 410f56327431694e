package generation

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of failure categories the generation core
// produces. Callers switch on the kind instead of matching concrete types.
type ErrorKind string

const (
	// KindValidation indicates bad input, e.g. a missing prompt or project.
	KindValidation ErrorKind = "VALIDATION"
	// KindInsufficientTokens indicates the user's balance cannot cover the
	// generation cost.
	KindInsufficientTokens ErrorKind = "INSUFFICIENT_TOKENS"
	// KindNotFound indicates the requested generation or project does not exist.
	KindNotFound ErrorKind = "NOT_FOUND"
	// KindForbidden indicates the caller does not own the requested resource.
	KindForbidden ErrorKind = "FORBIDDEN"
	// KindInvalidTransition indicates an illegal status transition was attempted.
	KindInvalidTransition ErrorKind = "INVALID_TRANSITION"
	// KindProvider indicates a provider submit or poll failure.
	KindProvider ErrorKind = "PROVIDER"
	// KindProcessing indicates a media download, validation or upload failure.
	KindProcessing ErrorKind = "PROCESSING"
	// KindTimeout indicates the polling attempt budget was exhausted.
	KindTimeout ErrorKind = "TIMEOUT"
)

// Error is the typed error returned by the generation core.
type Error struct {
	Kind    ErrorKind
	Message string
	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a typed generation error.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError creates a typed generation error wrapping an underlying cause.
func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the error kind from err. The second return is false for
// errors carrying no classification.
func KindOf(err error) (ErrorKind, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind, true
	}
	return "", false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
