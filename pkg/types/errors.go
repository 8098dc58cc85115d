package types

import "errors"

// Kind classifies a failure for wire reporting and tests. Every rejection
// surfaces to the originating connection as an error event; none of them
// crash the process.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindState
	KindUnavailable
	KindUnauthorized
)

// DomainError is a user-facing failure with a taxonomy kind. The message
// is safe to send to clients verbatim.
type DomainError struct {
	Kind    Kind
	Message string
}

func (e *DomainError) Error() string { return e.Message }

func Validation(msg string) *DomainError   { return &DomainError{Kind: KindValidation, Message: msg} }
func Conflict(msg string) *DomainError     { return &DomainError{Kind: KindConflict, Message: msg} }
func NotFound(msg string) *DomainError     { return &DomainError{Kind: KindNotFound, Message: msg} }
func State(msg string) *DomainError        { return &DomainError{Kind: KindState, Message: msg} }
func Unavailable(msg string) *DomainError  { return &DomainError{Kind: KindUnavailable, Message: msg} }
func Unauthorized(msg string) *DomainError { return &DomainError{Kind: KindUnauthorized, Message: msg} }

// KindOf extracts the taxonomy kind from an error chain. Non-domain errors
// report KindUnknown and should be logged rather than shown raw to clients.
func KindOf(err error) Kind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

// UserMessage returns the client-safe message for an error. Unknown errors
// collapse to a generic message so internals never leak onto the wire.
func UserMessage(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return "Something went wrong. Please try again."
}
