package statesync

import (
	"slices"

	"github.com/jarrod-lowe/jmap-client-core/pkg/jmap"
)

// ChangeDelta is the cumulative result of a changes loop. Each list keeps
// the order ids were first reported in. An id destroyed in any round is
// removed from Created and Updated.
type ChangeDelta struct {
	OldState  string
	NewState  string
	Created   []string
	Updated   []string
	Destroyed []string

	// UpdatedProperties is the union reported by Mailbox/changes, or nil if
	// any round with updates left it null
	UpdatedProperties []string

	Rounds int

	// Baseline is set when no token was stored and NewState was taken from
	// a */get; the caller's cache must be loaded in full
	Baseline bool

	propsUnknown bool
}

func newChangeDelta(sinceState string) *ChangeDelta {
	return &ChangeDelta{
		OldState:  sinceState,
		NewState:  sinceState,
		Created:   []string{},
		Updated:   []string{},
		Destroyed: []string{},
	}
}

// Empty reports whether the delta carries no ids
func (d *ChangeDelta) Empty() bool {
	return len(d.Created) == 0 && len(d.Updated) == 0 && len(d.Destroyed) == 0
}

func (d *ChangeDelta) merge(resp *jmap.ChangesResponse) {
	d.Rounds++
	d.NewState = resp.NewState

	for _, id := range resp.Destroyed {
		if !slices.Contains(d.Destroyed, id) {
			d.Destroyed = append(d.Destroyed, id)
		}
	}
	d.Created = union(d.Created, resp.Created, d.Destroyed)
	d.Updated = union(d.Updated, resp.Updated, d.Destroyed)
	d.Created = slices.DeleteFunc(d.Created, func(id string) bool { return slices.Contains(d.Destroyed, id) })
	d.Updated = slices.DeleteFunc(d.Updated, func(id string) bool { return slices.Contains(d.Destroyed, id) })

	if len(resp.Updated) > 0 {
		if resp.UpdatedProperties == nil {
			d.propsUnknown = true
		}
		d.UpdatedProperties = union(d.UpdatedProperties, resp.UpdatedProperties, nil)
	}
	if d.propsUnknown {
		d.UpdatedProperties = nil
	}
}

// union appends the ids of add not already in list or excluded
func union(list, add, excluded []string) []string {
	for _, id := range add {
		if slices.Contains(list, id) || slices.Contains(excluded, id) {
			continue
		}
		list = append(list, id)
	}
	return list
}

// QueryDelta is the result of a queryChanges call
type QueryDelta struct {
	OldQueryState string
	NewQueryState string
	Removed       []string
	Added         []jmap.AddedItem
	Total         *uint64

	Baseline bool
}

// ApplyQueryDelta splices a delta into a cached id list. Removed ids are
// dropped first, then added ids are inserted at their indexes in ascending
// order, so an id in both lists moves rather than staying put. The input
// slice is not modified.
func ApplyQueryDelta(ids []string, delta *QueryDelta) []string {
	out := slices.DeleteFunc(slices.Clone(ids), func(id string) bool {
		return slices.Contains(delta.Removed, id)
	})

	added := slices.Clone(delta.Added)
	slices.SortStableFunc(added, func(a, b jmap.AddedItem) int {
		switch {
		case a.Index < b.Index:
			return -1
		case a.Index > b.Index:
			return 1
		}
		return 0
	})
	for _, item := range added {
		// an added id is only listed once even if the server did not also
		// report it removed
		out = slices.DeleteFunc(out, func(id string) bool { return id == item.ID })
		index := min(int(item.Index), len(out))
		out = slices.Insert(out, index, item.ID)
	}
	return out
}

// withoutDestroyed returns ids minus those in destroyed, never nil
func withoutDestroyed(ids, destroyed []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(destroyed, id) {
			out = append(out, id)
		}
	}
	return out
}
