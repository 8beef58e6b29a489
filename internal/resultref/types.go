package resultref

import (
	"fmt"

	"github.com/jarrod-lowe/jmap-client-core/pkg/jmap"
)

// MethodResponse is a decoded method response available for reference resolution
type MethodResponse struct {
	ClientID string
	Name     jmap.MethodName
	Args     map[string]any
}

// Lookup finds the response of an earlier call by its call id
type Lookup interface {
	Response(callID string) (MethodResponse, bool)
}

// Responses is a Lookup over a list of responses; the first match wins
type Responses []MethodResponse

// Response implements Lookup
func (r Responses) Response(callID string) (MethodResponse, bool) {
	for _, resp := range r {
		if resp.ClientID == callID {
			return resp, true
		}
	}
	return MethodResponse{}, false
}

// ResolveError represents an error during result reference resolution
type ResolveError struct {
	Type        jmap.ErrorType
	Description string
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Description)
}

// NewInvalidResultReferenceError creates an invalidResultReference error
func NewInvalidResultReferenceError(description string) *ResolveError {
	return &ResolveError{
		Type:        jmap.ErrorInvalidResultReference,
		Description: description,
	}
}

// NewInvalidArgumentsError creates an invalidArguments error
func NewInvalidArgumentsError(description string) *ResolveError {
	return &ResolveError{
		Type:        jmap.ErrorInvalidArguments,
		Description: description,
	}
}
