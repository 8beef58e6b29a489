// Package demux matches a JMAP response back to the calls of the batch it
// answers.
package demux

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/jarrod-lowe/jmap-client-core/internal/batch"
	"github.com/jarrod-lowe/jmap-client-core/internal/creationid"
	"github.com/jarrod-lowe/jmap-client-core/internal/schema"
	"github.com/jarrod-lowe/jmap-client-core/pkg/jmap"
)

// Result is one method response
type Result struct {
	CallID string
	Name   jmap.MethodName
	Raw    json.RawMessage
	// Error is set when the server answered with an "error" invocation
	Error *jmap.MethodError

	value any
}

// Value returns the decoded response: *jmap.GetResponse, *jmap.SetResponse,
// *jmap.QueryResponse, *jmap.ChangesResponse, *jmap.QueryChangesResponse,
// *jmap.ImportResponse or *jmap.MethodError
func (r *Result) Value() any {
	if r.Error != nil {
		return r.Error
	}
	return r.value
}

// Parse decodes a response body and matches it against b. Matching is by
// call id; the server's ordering is not relied upon. Every created map is
// registered with tracker in response order. tracker may be nil.
func Parse(raw []byte, b *batch.Batch, tracker *creationid.Tracker) (*ResultSet, error) {
	var resp jmap.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	rs := &ResultSet{
		SessionState: resp.SessionState,
		CreatedIDs:   resp.CreatedIDs,
		batch:        b,
		primary:      make(map[string]*Result, len(b.Calls)),
		secondary:    make(map[string][]*Result),
		created:      make(map[string]string),
	}

	for _, inv := range resp.MethodResponses {
		call, ok := b.Call(inv.CallID)
		if !ok {
			return nil, mismatch(inv.CallID, "response for a call id that was not sent")
		}

		_, answered := rs.primary[inv.CallID]
		if answered {
			if inv.Name != jmap.ErrorMethod && (inv.Name == call.Method || !call.RespondsAs(inv.Name)) {
				return nil, mismatch(inv.CallID, "unexpected additional response %s", inv.Name)
			}
		} else if inv.Name != jmap.ErrorMethod && inv.Name != call.Method {
			return nil, mismatch(inv.CallID, "expected %s response, got %s", call.Method, inv.Name)
		}

		result, err := decode(inv, call, answered)
		if err != nil {
			return nil, err
		}

		if created := createdMap(result.value); created != nil {
			for _, key := range slices.Sorted(maps.Keys(created)) {
				id, ok := createdIDOf(created[key])
				if !ok {
					return nil, mismatch(inv.CallID, "created object %s has no id", key)
				}
				rs.created[key] = id
				if tracker != nil {
					tracker.Register(key, id)
				}
			}
		}

		if answered {
			rs.secondary[inv.CallID] = append(rs.secondary[inv.CallID], result)
			continue
		}
		if err := rs.verifyOutcome(call, result); err != nil {
			return nil, err
		}
		rs.primary[inv.CallID] = result
	}

	for _, call := range b.Calls {
		if _, ok := rs.primary[call.CallID]; !ok {
			return nil, mismatch(call.CallID, "no response for %s", call.Method)
		}
	}
	return rs, nil
}

func decode(inv jmap.RawInvocation, call batch.Call, secondary bool) (*Result, error) {
	result := &Result{CallID: inv.CallID, Name: inv.Name, Raw: inv.Args}

	if inv.Name == jmap.ErrorMethod {
		var methodErr jmap.MethodError
		if err := json.Unmarshal(inv.Args, &methodErr); err != nil || methodErr.Type == "" {
			return nil, &MismatchError{CallID: inv.CallID, Description: "undecodable error response", Err: err}
		}
		result.Error = &methodErr
		return result, nil
	}

	family := call.Family
	if secondary {
		// implicit responses are always set responses
		family = schema.FamilySet
	}

	var target any
	switch family {
	case schema.FamilyGet:
		target = &jmap.GetResponse{}
	case schema.FamilySet:
		target = &jmap.SetResponse{}
	case schema.FamilyQuery:
		target = &jmap.QueryResponse{}
	case schema.FamilyChanges:
		target = &jmap.ChangesResponse{}
	case schema.FamilyQueryChanges:
		target = &jmap.QueryChangesResponse{}
	case schema.FamilyImport:
		target = &jmap.ImportResponse{}
	default:
		return nil, mismatch(inv.CallID, "no response shape for %s", inv.Name)
	}
	if err := json.Unmarshal(inv.Args, target); err != nil {
		return nil, &MismatchError{CallID: inv.CallID, Description: fmt.Sprintf("undecodable %s response", inv.Name), Err: err}
	}
	result.value = target
	return result, nil
}

func createdMap(value any) map[string]json.RawMessage {
	switch v := value.(type) {
	case *jmap.SetResponse:
		return v.Created
	case *jmap.ImportResponse:
		return v.Created
	}
	return nil
}

func createdIDOf(raw json.RawMessage) (string, bool) {
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil || obj.ID == "" {
		return "", false
	}
	return obj.ID, true
}

// verifyOutcome checks that every submitted create key, update id and
// destroy id of a set or import call lands in exactly one outcome bucket
func (rs *ResultSet) verifyOutcome(call batch.Call, result *Result) error {
	switch v := result.value.(type) {
	case *jmap.SetResponse:
		for _, key := range call.CreateKeys {
			if err := exactlyOne(call.CallID, "create", key, hasKey(v.Created, key), hasKey(v.NotCreated, key)); err != nil {
				return err
			}
		}
		for _, id := range call.UpdateIDs {
			ids := rs.idForms(id)
			if err := exactlyOne(call.CallID, "update", id, hasAnyKey(v.Updated, ids), hasAnyKey(v.NotUpdated, ids)); err != nil {
				return err
			}
		}
		if call.DestroyByReference {
			return nil
		}
		for _, id := range call.DestroyIDs {
			ids := rs.idForms(id)
			destroyed := slices.ContainsFunc(ids, func(s string) bool { return slices.Contains(v.Destroyed, s) })
			if err := exactlyOne(call.CallID, "destroy", id, destroyed, hasAnyKey(v.NotDestroyed, ids)); err != nil {
				return err
			}
		}
	case *jmap.ImportResponse:
		for _, key := range call.CreateKeys {
			if err := exactlyOne(call.CallID, "import", key, hasKey(v.Created, key), hasKey(v.NotCreated, key)); err != nil {
				return err
			}
		}
	}
	return nil
}

// idForms returns the forms a submitted id may take in a response: as sent,
// and for a creation placeholder also the id it was created with
func (rs *ResultSet) idForms(id string) []string {
	if key, ok := jmap.CreationKey(id); ok {
		if resolved, ok := rs.created[key]; ok {
			return []string{id, resolved}
		}
	}
	return []string{id}
}

func exactlyOne(callID, op, id string, succeeded, failed bool) error {
	if succeeded == failed {
		if succeeded {
			return mismatch(callID, "%s %s reported as both succeeded and failed", op, id)
		}
		return mismatch(callID, "%s %s has no outcome", op, id)
	}
	return nil
}

func hasKey[V any](m map[string]V, key string) bool {
	_, ok := m[key]
	return ok
}

func hasAnyKey[V any](m map[string]V, keys []string) bool {
	for _, k := range keys {
		if hasKey(m, k) {
			return true
		}
	}
	return false
}
