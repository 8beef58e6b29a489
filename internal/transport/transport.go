// Package transport exchanges one serialized JMAP request for one response.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Transport sends a JMAP request object and returns the response body
type Transport interface {
	Exchange(ctx context.Context, request []byte) ([]byte, error)
}

// Kind classifies a transport failure
type Kind int

const (
	// Transient failures may succeed if the same request is sent again
	Transient Kind = iota
	// Fatal failures will fail again unchanged
	Fatal
)

func (k Kind) String() string {
	if k == Transient {
		return "transient"
	}
	return "fatal"
}

// Error is a failure to exchange a request. It says nothing about whether the
// server executed the request.
type Error struct {
	Kind       Kind
	StatusCode int
	// ProblemType is the RFC 7807 problem type of a request-level JMAP error,
	// such as urn:ietf:params:jmap:error:notRequest
	ProblemType string
	Detail      string
	Err         error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s transport error", e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.ProblemType != "" {
		msg += ": " + e.ProblemType
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Rejected reports whether the server answered with a status showing it
// refused the request before executing any of it. A missing status, or a
// server error status, leaves the outcome open.
func (e *Error) Rejected() bool {
	switch e.StatusCode {
	case 0:
		return false
	case http.StatusUnauthorized, http.StatusTooManyRequests:
		return true
	}
	return e.Kind == Fatal
}

// IsTransient reports whether err is a transport failure worth retrying
func IsTransient(err error) bool {
	var transportErr *Error
	return errors.As(err, &transportErr) && transportErr.Kind == Transient
}

// Request-level problem types from RFC 8620 Section 3.6.1
const (
	ProblemUnknownCapability = "urn:ietf:params:jmap:error:unknownCapability"
	ProblemNotJSON           = "urn:ietf:params:jmap:error:notJSON"
	ProblemNotRequest        = "urn:ietf:params:jmap:error:notRequest"
	ProblemLimit             = "urn:ietf:params:jmap:error:limit"
)

type problem struct {
	Type   string `json:"type"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
	Limit  string `json:"limit"`
}

// statusError builds the error for a non-200 response
func statusError(statusCode int, body []byte) *Error {
	e := &Error{Kind: classifyStatus(statusCode), StatusCode: statusCode}
	var p problem
	if err := json.Unmarshal(body, &p); err == nil && p.Type != "" {
		e.ProblemType = p.Type
		e.Detail = p.Detail
		if p.Limit != "" {
			e.Detail = fmt.Sprintf("limit %s exceeded", p.Limit)
		}
	}
	return e
}

func classifyStatus(statusCode int) Kind {
	switch {
	case statusCode == http.StatusTooManyRequests,
		statusCode == http.StatusRequestTimeout,
		statusCode >= 500 && statusCode != http.StatusNotImplemented:
		return Transient
	default:
		return Fatal
	}
}
