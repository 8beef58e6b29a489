package statesync

import (
	"errors"
	"fmt"

	"github.com/jarrod-lowe/jmap-client-core/pkg/jmap"
)

var (
	// ErrCannotCalculateChanges means the state token is too old or unknown
	// to the server; the caller must fall back to a full */get resync.
	ErrCannotCalculateChanges = errors.New("cannot calculate changes, full resync required")

	// ErrTooManyChanges means the delta exceeds maxChanges and the server
	// will not page it
	ErrTooManyChanges = errors.New("too many changes")

	// ErrStateConflict means another writer moved the stored token
	ErrStateConflict = errors.New("state token changed concurrently")
)

// TooManyIterationsError is returned when the server still reports
// hasMoreChanges after the iteration cap. The delta returned alongside it
// holds every round applied so far.
type TooManyIterationsError struct {
	Iterations int
	State      string
}

func (e *TooManyIterationsError) Error() string {
	return fmt.Sprintf("tooManyIterations: still has more changes after %d rounds (state %s)", e.Iterations, e.State)
}

// methodError maps the method errors that end a sync loop onto sentinels.
// Other method errors are returned as *jmap.MethodError.
func methodError(err error) error {
	var methodErr *jmap.MethodError
	if !errors.As(err, &methodErr) {
		return err
	}
	switch methodErr.Type {
	case jmap.ErrorCannotCalculateChanges:
		return fmt.Errorf("%w: %w", ErrCannotCalculateChanges, methodErr)
	case jmap.ErrorTooManyChanges:
		return fmt.Errorf("%w: %w", ErrTooManyChanges, methodErr)
	}
	return err
}
