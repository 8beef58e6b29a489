package demux

import (
	"errors"
	"fmt"
)

// ErrMalformedResponse is returned when the body is not a JMAP response object
var ErrMalformedResponse = errors.New("malformed response")

// MismatchError reports a response that does not answer the batch it was
// sent for. No results are returned alongside it.
type MismatchError struct {
	CallID      string
	Description string
	Err         error
}

func (e *MismatchError) Error() string {
	if e.CallID == "" {
		return fmt.Sprintf("responseMismatch: %s", e.Description)
	}
	return fmt.Sprintf("responseMismatch: call %s: %s", e.CallID, e.Description)
}

func (e *MismatchError) Unwrap() error {
	return e.Err
}

func mismatch(callID, format string, args ...any) *MismatchError {
	return &MismatchError{CallID: callID, Description: fmt.Sprintf(format, args...)}
}
