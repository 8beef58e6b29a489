package batch

import (
	"maps"
	"slices"

	"github.com/jarrod-lowe/jmap-client-core/internal/schema"
	"github.com/jarrod-lowe/jmap-client-core/pkg/jmap"
)

// Call describes one invocation of a built batch
type Call struct {
	CallID string
	Method jmap.MethodName
	Family schema.Family
	Entity schema.EntityName
	// CreateKeys are the creation keys of a set call's create map, or of an
	// import call's emails map
	CreateKeys []string
	UpdateIDs  []string
	DestroyIDs []string
	// DestroyByReference is set when destroy is a result reference, so its
	// ids are only known to the server
	DestroyByReference bool
	// DependsOn lists the call ids of earlier calls this call needs
	DependsOn []string

	implicit []jmap.MethodName
}

// RespondsAs reports whether a response named name can answer this call
func (c Call) RespondsAs(name jmap.MethodName) bool {
	return name == c.Method || slices.Contains(c.implicit, name)
}

// Batch is a validated request ready to be sent
type Batch struct {
	Request jmap.Request
	Calls   []Call

	index map[string]int
}

// Call returns the call with the given id
func (b *Batch) Call(callID string) (Call, bool) {
	i, ok := b.index[callID]
	if !ok {
		return Call{}, false
	}
	return b.Calls[i], true
}

// Position returns the index of a call id in the request, or -1
func (b *Batch) Position(callID string) int {
	if i, ok := b.index[callID]; ok {
		return i
	}
	return -1
}

// Mutating reports whether replaying the batch could change server state twice
func (b *Batch) Mutating() bool {
	for _, c := range b.Calls {
		if c.Family.Mutating() {
			return true
		}
	}
	return false
}

// CreateKeys returns every creation key the batch submits, in call order
func (b *Batch) CreateKeys() []string {
	var keys []string
	for _, c := range b.Calls {
		keys = append(keys, c.CreateKeys...)
	}
	return keys
}

// createKeys returns the creation keys submitted by a call's arguments
func createKeys(family schema.Family, args map[string]any) []string {
	var field string
	switch family {
	case schema.FamilySet:
		field = "create"
	case schema.FamilyImport:
		field = "emails"
	default:
		return nil
	}
	create, ok := args[field].(map[string]any)
	if !ok {
		return nil
	}
	return slices.Sorted(maps.Keys(create))
}

func newCall(inv jmap.Invocation, m *schema.Method) Call {
	c := Call{
		CallID:     inv.CallID,
		Method:     inv.Name,
		Family:     m.Family,
		Entity:     m.Entity,
		CreateKeys: createKeys(m.Family, inv.Args),
		implicit:   m.Implicit,
	}
	if m.Family != schema.FamilySet {
		return c
	}
	if update, ok := inv.Args["update"].(map[string]any); ok {
		c.UpdateIDs = slices.Sorted(maps.Keys(update))
	}
	switch destroy := inv.Args["destroy"].(type) {
	case jmap.ResultReference, *jmap.ResultReference:
		c.DestroyByReference = true
	default:
		c.DestroyIDs, _ = stringList(destroy)
	}
	return c
}

// stringList converts a decoded JSON array of strings
func stringList(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return list, true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}
