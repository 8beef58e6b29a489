package demux

import (
	"encoding/json"
	"fmt"

	"github.com/jarrod-lowe/jmap-client-core/internal/batch"
	"github.com/jarrod-lowe/jmap-client-core/internal/resultref"
	"github.com/jarrod-lowe/jmap-client-core/pkg/jmap"
)

// ResultSet holds the outcome of every call of a batch, keyed by call id.
// A failed call does not affect its siblings.
type ResultSet struct {
	SessionState string
	CreatedIDs   map[string]string

	batch     *batch.Batch
	primary   map[string]*Result
	secondary map[string][]*Result
	created   map[string]string
}

// CallIDs returns the call ids in request order
func (rs *ResultSet) CallIDs() []string {
	ids := make([]string, len(rs.batch.Calls))
	for i, c := range rs.batch.Calls {
		ids[i] = c.CallID
	}
	return ids
}

// Result returns the primary response of a call
func (rs *ResultSet) Result(callID string) (*Result, bool) {
	r, ok := rs.primary[callID]
	return r, ok
}

// Secondary returns additional responses sharing a call id, such as the
// implicit Email/set of an EmailSubmission/set with onSuccess arguments
func (rs *ResultSet) Secondary(callID string) []*Result {
	return rs.secondary[callID]
}

// Error returns the method-level error of a call, or nil if it succeeded
func (rs *ResultSet) Error(callID string) *jmap.MethodError {
	if r, ok := rs.primary[callID]; ok {
		return r.Error
	}
	return nil
}

// Failed returns the ids of calls answered with an error, in request order
func (rs *ResultSet) Failed() []string {
	var failed []string
	for _, c := range rs.batch.Calls {
		if rs.primary[c.CallID].Error != nil {
			failed = append(failed, c.CallID)
		}
	}
	return failed
}

// Created returns the server id assigned in this response to a creation key
func (rs *ResultSet) Created(createKey string) (string, bool) {
	id, ok := rs.created[createKey]
	return id, ok
}

// Get returns the response of a Foo/get call
func (rs *ResultSet) Get(callID string) (*jmap.GetResponse, error) {
	return typed[jmap.GetResponse](rs, callID)
}

// Set returns the response of a Foo/set call
func (rs *ResultSet) Set(callID string) (*jmap.SetResponse, error) {
	return typed[jmap.SetResponse](rs, callID)
}

// Query returns the response of a Foo/query call
func (rs *ResultSet) Query(callID string) (*jmap.QueryResponse, error) {
	return typed[jmap.QueryResponse](rs, callID)
}

// Changes returns the response of a Foo/changes call
func (rs *ResultSet) Changes(callID string) (*jmap.ChangesResponse, error) {
	return typed[jmap.ChangesResponse](rs, callID)
}

// QueryChanges returns the response of a Foo/queryChanges call
func (rs *ResultSet) QueryChanges(callID string) (*jmap.QueryChangesResponse, error) {
	return typed[jmap.QueryChangesResponse](rs, callID)
}

// Import returns the response of an Email/import call
func (rs *ResultSet) Import(callID string) (*jmap.ImportResponse, error) {
	return typed[jmap.ImportResponse](rs, callID)
}

// ImplicitSet returns the implicit Foo/set response sent under callID
func (rs *ResultSet) ImplicitSet(callID string, name jmap.MethodName) (*jmap.SetResponse, error) {
	for _, r := range rs.secondary[callID] {
		if r.Error != nil {
			return nil, r.Error
		}
		if r.Name == name {
			return r.value.(*jmap.SetResponse), nil
		}
	}
	return nil, fmt.Errorf("no %s response for call %s", name, callID)
}

// typed returns the decoded primary response of a call. A call answered
// with an error returns its *jmap.MethodError.
func typed[T any](rs *ResultSet, callID string) (*T, error) {
	r, ok := rs.primary[callID]
	if !ok {
		return nil, fmt.Errorf("no call with id %s", callID)
	}
	if r.Error != nil {
		return nil, r.Error
	}
	v, ok := r.value.(*T)
	if !ok {
		return nil, fmt.Errorf("call %s is %s, not a %T response", callID, r.Name, v)
	}
	return v, nil
}

// Response implements resultref.Lookup so a later batch can reference the
// results of this one
func (rs *ResultSet) Response(callID string) (resultref.MethodResponse, bool) {
	r, ok := rs.primary[callID]
	if !ok {
		return resultref.MethodResponse{}, false
	}
	var args map[string]any
	if err := json.Unmarshal(r.Raw, &args); err != nil {
		return resultref.MethodResponse{}, false
	}
	return resultref.MethodResponse{ClientID: callID, Name: r.Name, Args: args}, true
}
