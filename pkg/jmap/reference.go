package jmap

import "strings"

// ResultReference represents a JMAP result reference per RFC 8620 Section 3.7.
// Placed as an argument value, it stands in for a value taken from the
// response of an earlier call.
type ResultReference struct {
	ResultOf string `json:"resultOf"` // Call id of the method call to reference
	Name     string `json:"name"`     // Method name that must match the referenced response
	Path     string `json:"path"`     // JSON Pointer path to extract from the result
}

// Ref builds a ResultReference
func Ref(resultOf string, name MethodName, path string) ResultReference {
	return ResultReference{ResultOf: resultOf, Name: string(name), Path: path}
}

// CreationRef returns the placeholder form of a creation id ("#key")
func CreationRef(createKey string) string {
	return "#" + createKey
}

// CreationKey reports whether s is a creation placeholder and returns its key
func CreationKey(s string) (string, bool) {
	if len(s) < 2 || s[0] != '#' {
		return "", false
	}
	return s[1:], true
}

// EncodeArgs returns a copy of args in wire form: every member holding a
// ResultReference is emitted under "#<name>".
func EncodeArgs(args map[string]any) map[string]any {
	if args == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(args))
	for key, value := range args {
		switch v := value.(type) {
		case ResultReference:
			out["#"+key] = v
		case *ResultReference:
			out["#"+key] = *v
		default:
			out[key] = encodeValue(value)
		}
	}
	return out
}

func encodeValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return EncodeArgs(v)
	case FilterOperator:
		return EncodeArgs(v.Args())
	case *FilterOperator:
		if v == nil {
			return value
		}
		return EncodeArgs(v.Args())
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = encodeValue(item)
		}
		return out
	default:
		return value
	}
}

// DecodeArgs is the inverse of EncodeArgs for generically decoded JSON
func DecodeArgs(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for key, value := range args {
		if name, ok := strings.CutPrefix(key, "#"); ok && name != "" {
			if ref, ok := asReference(value); ok {
				out[name] = ref
				continue
			}
		}
		out[key] = decodeValue(value)
	}
	return out
}

func decodeValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return DecodeArgs(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = decodeValue(item)
		}
		return out
	default:
		return value
	}
}

func asReference(value any) (ResultReference, bool) {
	obj, ok := value.(map[string]any)
	if !ok || len(obj) != 3 {
		return ResultReference{}, false
	}
	resultOf, ok1 := obj["resultOf"].(string)
	name, ok2 := obj["name"].(string)
	path, ok3 := obj["path"].(string)
	if !ok1 || !ok2 || !ok3 {
		return ResultReference{}, false
	}
	return ResultReference{ResultOf: resultOf, Name: name, Path: path}, true
}
