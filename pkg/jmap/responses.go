package jmap

import (
	"encoding/json"
	"fmt"
)

// GetResponse is the response to a Foo/get call. List entries are left raw so
// callers can decode them into the entity type they asked for.
type GetResponse struct {
	AccountID string            `json:"accountId"`
	State     string            `json:"state"`
	List      []json.RawMessage `json:"list"`
	NotFound  []string          `json:"notFound"`
}

// DecodeList decodes the list of a GetResponse into entity values
func DecodeList[T any](resp *GetResponse) ([]T, error) {
	out := make([]T, 0, len(resp.List))
	for i, raw := range resp.List {
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("failed to decode list item %d: %w", i, err)
		}
		out = append(out, item)
	}
	return out, nil
}

// SetResponse is the response to a Foo/set call. Every map is nil when the
// server omitted it, and non-nil (possibly empty) when present.
type SetResponse struct {
	AccountID    string                      `json:"accountId"`
	OldState     *string                     `json:"oldState,omitempty"`
	NewState     string                      `json:"newState"`
	Created      map[string]json.RawMessage  `json:"created,omitempty"`
	Updated      map[string]*json.RawMessage `json:"updated,omitempty"`
	Destroyed    []string                    `json:"destroyed,omitempty"`
	NotCreated   map[string]SetError         `json:"notCreated,omitempty"`
	NotUpdated   map[string]SetError         `json:"notUpdated,omitempty"`
	NotDestroyed map[string]SetError         `json:"notDestroyed,omitempty"`
}

// CreatedID returns the server-assigned id of the object created for createKey
func (r *SetResponse) CreatedID(createKey string) (string, bool) {
	return createdID(r.Created, createKey)
}

// ChangesResponse is the response to a Foo/changes call
type ChangesResponse struct {
	AccountID      string   `json:"accountId"`
	OldState       string   `json:"oldState"`
	NewState       string   `json:"newState"`
	HasMoreChanges bool     `json:"hasMoreChanges"`
	Created        []string `json:"created"`
	Updated        []string `json:"updated"`
	Destroyed      []string `json:"destroyed"`

	// UpdatedProperties is only sent by Mailbox/changes; nil when absent or null
	UpdatedProperties []string `json:"updatedProperties,omitempty"`
}

// AddedItem is an entry of a queryChanges "added" list
type AddedItem struct {
	ID    string `json:"id"`
	Index uint64 `json:"index"`
}

// QueryChangesResponse is the response to a Foo/queryChanges call
type QueryChangesResponse struct {
	AccountID     string      `json:"accountId"`
	OldQueryState string      `json:"oldQueryState"`
	NewQueryState string      `json:"newQueryState"`
	Total         *uint64     `json:"total,omitempty"`
	Removed       []string    `json:"removed,omitempty"`
	Added         []AddedItem `json:"added,omitempty"`
}

// QueryResponse is the response to a Foo/query call
type QueryResponse struct {
	AccountID           string   `json:"accountId"`
	QueryState          string   `json:"queryState"`
	CanCalculateChanges bool     `json:"canCalculateChanges"`
	Position            uint64   `json:"position"`
	IDs                 []string `json:"ids"`
	Total               *uint64  `json:"total,omitempty"`
	Limit               *uint64  `json:"limit,omitempty"`
}

// ImportResponse is the response to an Email/import call
type ImportResponse struct {
	AccountID  string                     `json:"accountId"`
	OldState   *string                    `json:"oldState,omitempty"`
	NewState   string                     `json:"newState"`
	Created    map[string]json.RawMessage `json:"created,omitempty"`
	NotCreated map[string]SetError        `json:"notCreated,omitempty"`
}

// CreatedID returns the server-assigned id of the email imported for createKey
func (r *ImportResponse) CreatedID(createKey string) (string, bool) {
	return createdID(r.Created, createKey)
}

func createdID(created map[string]json.RawMessage, createKey string) (string, bool) {
	raw, ok := created[createKey]
	if !ok {
		return "", false
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil || obj.ID == "" {
		return "", false
	}
	return obj.ID, true
}

// Comparator is a sort criterion of a Foo/query call
type Comparator struct {
	Property    string `json:"property"`
	IsAscending *bool  `json:"isAscending,omitempty"`
	Collation   string `json:"collation,omitempty"`
}

// FilterOperator combines filter conditions
type FilterOperator struct {
	Operator   string `json:"operator"` // AND, OR or NOT
	Conditions []any  `json:"conditions"`
}

// Args returns the operator as a generic argument object, so references in
// its conditions are encoded like any other argument
func (f FilterOperator) Args() map[string]any {
	return map[string]any{"operator": f.Operator, "conditions": f.Conditions}
}
