package batch

import "fmt"

// ErrorKind classifies a batch validation failure
type ErrorKind string

const (
	ErrDuplicateCallID         ErrorKind = "DuplicateCallId"
	ErrUnknownMethod           ErrorKind = "UnknownMethod"
	ErrUnknownCallID           ErrorKind = "UnknownCallId"
	ErrForwardReference        ErrorKind = "ForwardReference"
	ErrInvalidResultReference  ErrorKind = "InvalidResultReference"
	ErrMissingRequiredArgument ErrorKind = "MissingRequiredArgument"
	ErrNoDefaultAccount        ErrorKind = "NoDefaultAccount"
	ErrInvalidProperties       ErrorKind = "InvalidProperties"
	ErrNotYetResolved          ErrorKind = "NotYetResolved"
	ErrTooManyCalls            ErrorKind = "TooManyCalls"
	ErrEmptyBatch              ErrorKind = "EmptyBatch"
)

// ValidationError is returned when a batch cannot be sent. Nothing reaches
// the wire once one has been raised.
type ValidationError struct {
	Kind        ErrorKind
	CallID      string
	Description string
	Err         error
}

func (e *ValidationError) Error() string {
	if e.CallID == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Description)
	}
	return fmt.Sprintf("%s: call %s: %s", e.Kind, e.CallID, e.Description)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func newValidationError(kind ErrorKind, callID, description string) *ValidationError {
	return &ValidationError{Kind: kind, CallID: callID, Description: description}
}
