package jmap

import "fmt"

// ErrorType is the JMAP error type vocabulary shared by method-level errors
// and per-object SetErrors.
type ErrorType string

// See https://jmap.io/spec-core.html#creation-of-jmap-error-codes-registry
const (
	ErrorAccountNotFound                 ErrorType = "accountNotFound"
	ErrorAccountNotSupportedByMethod     ErrorType = "accountNotSupportedByMethod"
	ErrorAccountReadOnly                 ErrorType = "accountReadOnly"
	ErrorAnchorNotFound                  ErrorType = "anchorNotFound"
	ErrorAlreadyExists                   ErrorType = "alreadyExists"
	ErrorCannotCalculateChanges          ErrorType = "cannotCalculateChanges"
	ErrorForbidden                       ErrorType = "forbidden"
	ErrorFromAccountNotFound             ErrorType = "fromAccountNotFound"
	ErrorFromAccountNotSupportedByMethod ErrorType = "fromAccountNotSupportedByMethod"
	ErrorInvalidArguments                ErrorType = "invalidArguments"
	ErrorInvalidPatch                    ErrorType = "invalidPatch"
	ErrorInvalidProperties               ErrorType = "invalidProperties"
	ErrorNotFound                        ErrorType = "notFound"
	ErrorNotJSON                         ErrorType = "notJSON"
	ErrorNotRequest                      ErrorType = "notRequest"
	ErrorOverQuota                       ErrorType = "overQuota"
	ErrorRateLimit                       ErrorType = "rateLimit"
	ErrorRequestTooLarge                 ErrorType = "requestTooLarge"
	ErrorInvalidResultReference          ErrorType = "invalidResultReference"
	ErrorServerFail                      ErrorType = "serverFail"
	ErrorServerPartialFail               ErrorType = "serverPartialFail"
	ErrorServerUnavailable               ErrorType = "serverUnavailable"
	ErrorSingleton                       ErrorType = "singleton"
	ErrorStateMismatch                   ErrorType = "stateMismatch"
	ErrorTooLarge                        ErrorType = "tooLarge"
	ErrorTooManyChanges                  ErrorType = "tooManyChanges"
	ErrorUnknownCapability               ErrorType = "unknownCapability"
	ErrorUnknownMethod                   ErrorType = "unknownMethod"
	ErrorUnsupportedFilter               ErrorType = "unsupportedFilter"
	ErrorUnsupportedSort                 ErrorType = "unsupportedSort"
	ErrorWillDestroy                     ErrorType = "willDestroy"
)

// MethodError is the argument object of an "error" invocation
type MethodError struct {
	Type        ErrorType `json:"type"`
	Description string    `json:"description,omitempty"`
	Properties  []string  `json:"properties,omitempty"`
}

func (e *MethodError) Error() string {
	if e.Description == "" {
		return string(e.Type)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Description)
}

// SetError describes why a single create, update or destroy failed
type SetError struct {
	Type        ErrorType `json:"type"`
	Description *string   `json:"description,omitempty"`
	Properties  []string  `json:"properties,omitempty"`
}

func (e *SetError) Error() string {
	if e.Description == nil {
		return string(e.Type)
	}
	return fmt.Sprintf("%s: %s", e.Type, *e.Description)
}
