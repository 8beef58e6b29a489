package batch

import (
	"fmt"

	"github.com/jarrod-lowe/jmap-client-core/internal/resultref"
	"github.com/jarrod-lowe/jmap-client-core/internal/schema"
	"github.com/jarrod-lowe/jmap-client-core/pkg/jmap"
)

// graph tracks which earlier calls each call depends on, through result
// references or creation placeholders
type graph struct {
	calls     []jmap.Invocation
	methods   []*schema.Method
	index     map[string]int
	producers map[string]int
	deps      map[int][]int
}

func newGraph(calls []jmap.Invocation, methods []*schema.Method) *graph {
	g := &graph{
		calls:     calls,
		methods:   methods,
		index:     make(map[string]int, len(calls)),
		producers: make(map[string]int),
		deps:      make(map[int][]int),
	}
	for i, call := range calls {
		g.index[call.CallID] = i
		for _, key := range createKeys(methods[i].Family, call.Args) {
			if _, exists := g.producers[key]; !exists {
				g.producers[key] = i
			}
		}
	}
	return g
}

// checkReference validates a result reference made by the call at pos.
// It returns false when the referenced call is not in this batch.
func (g *graph) checkReference(pos int, ref jmap.ResultReference) (bool, error) {
	callID := g.calls[pos].CallID
	target, exists := g.index[ref.ResultOf]
	if !exists {
		return false, nil
	}
	if target >= pos {
		return true, newValidationError(ErrForwardReference, callID,
			fmt.Sprintf("call %d references call %d (%s)", pos, target, ref.ResultOf))
	}
	if !g.methods[target].RespondsAs(jmap.MethodName(ref.Name)) {
		return true, newValidationError(ErrInvalidResultReference, callID,
			fmt.Sprintf("call %s is %s, not %s", ref.ResultOf, g.calls[target].Name, ref.Name))
	}
	if err := resultref.ValidatePath(ref.Path); err != nil {
		return true, &ValidationError{Kind: ErrInvalidResultReference, CallID: callID, Description: err.Error(), Err: err}
	}
	g.addDep(pos, target)
	return true, nil
}

// checkPlaceholder looks up the call in this batch creating key. It returns
// false when no call in the batch creates it.
func (g *graph) checkPlaceholder(pos int, key string) (bool, error) {
	producer, exists := g.producers[key]
	if !exists {
		return false, nil
	}
	if producer > pos {
		return true, newValidationError(ErrForwardReference, g.calls[pos].CallID,
			fmt.Sprintf("creation id #%s is created by later call %s", key, g.calls[producer].CallID))
	}
	if producer < pos {
		g.addDep(pos, producer)
	}
	return true, nil
}

func (g *graph) addDep(from, to int) {
	for _, d := range g.deps[from] {
		if d == to {
			return
		}
	}
	g.deps[from] = append(g.deps[from], to)
}
