package resultref

import (
	"maps"
	"slices"
	"strconv"

	"github.com/jarrod-lowe/jmap-client-core/pkg/jmap"
)

// ResolveArgs resolves the result references held anywhere in args using
// responses from earlier calls. Returns a new args map; args is not modified.
//
// A reference whose path evaluates to null removes its member from the
// enclosing object. Inside an array, the element becomes nil.
func ResolveArgs(args map[string]any, lookup Lookup) (map[string]any, error) {
	if !ContainsReference(args) {
		return args, nil
	}
	resolved, err := resolveObject(args, lookup)
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

// Resolve resolves result references in a single value
func Resolve(value any, lookup Lookup) (any, error) {
	switch v := value.(type) {
	case jmap.ResultReference:
		return resolveReference(v, lookup)
	case *jmap.ResultReference:
		return resolveReference(*v, lookup)
	case map[string]any:
		return resolveObject(v, lookup)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			r, err := Resolve(item, lookup)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return value, nil
	}
}

// ContainsReference reports whether a result reference appears anywhere in value
func ContainsReference(value any) bool {
	found := false
	Walk(value, func(string, jmap.ResultReference) bool {
		found = true
		return false
	})
	return found
}

// Walk calls fn depth-first for each result reference in value, passing the
// JSON Pointer of its position. Object members are visited in key order.
// Walking stops when fn returns false.
func Walk(value any, fn func(pointer string, ref jmap.ResultReference) bool) {
	walk(value, "", fn)
}

func walk(value any, pointer string, fn func(string, jmap.ResultReference) bool) bool {
	switch v := value.(type) {
	case jmap.ResultReference:
		return fn(pointer, v)
	case *jmap.ResultReference:
		return fn(pointer, *v)
	case map[string]any:
		for _, key := range slices.Sorted(maps.Keys(v)) {
			if !walk(v[key], pointer+"/"+escapeToken(key), fn) {
				return false
			}
		}
	case []any:
		for i, item := range v {
			if !walk(item, pointer+"/"+strconv.Itoa(i), fn) {
				return false
			}
		}
	}
	return true
}

func resolveObject(obj map[string]any, lookup Lookup) (map[string]any, error) {
	if err := checkConflictingKeys(obj); err != nil {
		return nil, err
	}
	result := make(map[string]any, len(obj))
	for key, value := range obj {
		resolved, err := Resolve(value, lookup)
		if err != nil {
			return nil, err
		}
		// Per RFC 8620, null means "omit the property"
		if resolved == nil && isReference(value) {
			continue
		}
		result[key] = resolved
	}
	return result, nil
}

// checkConflictingKeys rejects an object holding both a reference under "foo"
// and a literal "#foo" member, since both would be sent as "#foo"
func checkConflictingKeys(obj map[string]any) error {
	for key, value := range obj {
		if !isReference(value) {
			continue
		}
		if _, exists := obj["#"+key]; exists {
			return NewInvalidArgumentsError("conflicting keys: both '" + key + "' reference and '#" + key + "' are present")
		}
	}
	return nil
}

func isReference(value any) bool {
	switch value.(type) {
	case jmap.ResultReference, *jmap.ResultReference:
		return true
	}
	return false
}

// resolveReference resolves a single result reference
func resolveReference(ref jmap.ResultReference, lookup Lookup) (any, error) {
	if lookup == nil {
		return nil, NewInvalidResultReferenceError("no response found with clientId '" + ref.ResultOf + "'")
	}

	response, found := lookup.Response(ref.ResultOf)
	if !found {
		return nil, NewInvalidResultReferenceError("no response found with clientId '" + ref.ResultOf + "'")
	}

	if string(response.Name) != ref.Name {
		return nil, NewInvalidResultReferenceError("response clientId '" + ref.ResultOf + "' has method name '" + string(response.Name) + "', expected '" + ref.Name + "'")
	}

	result, err := EvaluatePath(response.Args, ref.Path)
	if err != nil {
		return nil, NewInvalidResultReferenceError("failed to evaluate path '" + ref.Path + "': " + err.Error())
	}

	return result, nil
}
