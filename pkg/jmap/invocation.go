// Package jmap defines the JMAP wire contract (RFC 8620, RFC 8621) shared by the
// batch builder, the response demultiplexer and the state synchronizer.
package jmap

import (
	"encoding/json"
	"fmt"
)

// MethodName is the name slot of an invocation
type MethodName string

// Supported method names
const (
	MailboxGet             MethodName = "Mailbox/get"
	MailboxChanges         MethodName = "Mailbox/changes"
	MailboxSet             MethodName = "Mailbox/set"
	MailboxQuery           MethodName = "Mailbox/query"
	EmailGet               MethodName = "Email/get"
	EmailChanges           MethodName = "Email/changes"
	EmailQuery             MethodName = "Email/query"
	EmailSet               MethodName = "Email/set"
	EmailQueryChanges      MethodName = "Email/queryChanges"
	EmailImport            MethodName = "Email/import"
	ThreadGet              MethodName = "Thread/get"
	EmailSubmissionGet     MethodName = "EmailSubmission/get"
	EmailSubmissionChanges MethodName = "EmailSubmission/changes"
	EmailSubmissionSet     MethodName = "EmailSubmission/set"
	IdentityGet            MethodName = "Identity/get"
	BlobGet                MethodName = "Blob/get"

	// ErrorMethod is the pseudo-method name of a method-level error response
	ErrorMethod MethodName = "error"
)

// Invocation is a method call as sent by the client: [name, arguments, callId].
// Arguments may hold ResultReference values anywhere in the tree.
type Invocation struct {
	Name   MethodName
	Args   map[string]any
	CallID string
}

// MarshalJSON encodes the invocation as a 3-element array, moving reference
// values under their "#"-prefixed key.
func (i Invocation) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{i.Name, EncodeArgs(i.Args), i.CallID})
}

// UnmarshalJSON decodes a 3-element array, turning "#"-prefixed reference
// members back into ResultReference values.
func (i *Invocation) UnmarshalJSON(data []byte) error {
	var raw RawInvocation
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var args map[string]any
	if err := json.Unmarshal(raw.Args, &args); err != nil {
		return fmt.Errorf("invalid arguments for %s: %w", raw.CallID, err)
	}
	i.Name = raw.Name
	i.Args = DecodeArgs(args)
	i.CallID = raw.CallID
	return nil
}

// RawInvocation is an invocation whose arguments have not been decoded yet.
// The server's method responses arrive in this form.
type RawInvocation struct {
	Name   MethodName
	Args   json.RawMessage
	CallID string
}

// MarshalJSON encodes the invocation as a 3-element array
func (r RawInvocation) MarshalJSON() ([]byte, error) {
	args := r.Args
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	return json.Marshal([]any{r.Name, args, r.CallID})
}

// UnmarshalJSON decodes a 3-element array
func (r *RawInvocation) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("invocation must be an array: %w", err)
	}
	if len(parts) != 3 {
		return fmt.Errorf("invocation must have exactly 3 elements, got %d", len(parts))
	}
	if err := json.Unmarshal(parts[0], &r.Name); err != nil {
		return fmt.Errorf("invocation name must be a string: %w", err)
	}
	if err := json.Unmarshal(parts[2], &r.CallID); err != nil {
		return fmt.Errorf("invocation call id must be a string: %w", err)
	}
	r.Args = parts[1]
	return nil
}

// Request is the JMAP request object
type Request struct {
	Using       []string          `json:"using"`
	MethodCalls []Invocation      `json:"methodCalls"`
	CreatedIDs  map[string]string `json:"createdIds,omitempty"`
}

// Response is the JMAP response object
type Response struct {
	MethodResponses []RawInvocation   `json:"methodResponses"`
	CreatedIDs      map[string]string `json:"createdIds,omitempty"`
	SessionState    string            `json:"sessionState"`
}
