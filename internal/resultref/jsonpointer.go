package resultref

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/qri-io/jsonpointer"
)

// EvaluatePath evaluates a JSON Pointer path against data, with support for
// the JMAP wildcard extension (*).
// Standard JSON Pointer paths (RFC 6901) are supported, plus:
// - /list/* extracts matching elements from all array items
// - Wildcards flatten nested arrays when extracting arrays
func EvaluatePath(data any, path string) (any, error) {
	// Empty path returns the whole document
	if path == "" {
		return data, nil
	}

	// Check for wildcard
	if strings.Contains(path, "/*") {
		return evaluateWildcardPath(data, path)
	}

	// Standard JSON Pointer evaluation
	ptr, err := jsonpointer.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON Pointer: %w", err)
	}

	result, err := ptr.Eval(data)
	if err != nil {
		return nil, fmt.Errorf("path not found: %s", path)
	}

	// The jsonpointer library returns (nil, nil) for both null and missing members
	if result == nil && !memberExists(data, ptr) {
		return nil, fmt.Errorf("path not found: %s", path)
	}

	return result, nil
}

// memberExists reports whether the last token of ptr names a member present
// in its parent object, or an index within its parent array
func memberExists(data any, ptr jsonpointer.Pointer) bool {
	if len(ptr) == 0 {
		return true
	}
	parent, err := ptr[:len(ptr)-1].Eval(data)
	if err != nil {
		return false
	}
	token := ptr[len(ptr)-1]
	switch p := parent.(type) {
	case map[string]any:
		_, ok := p[token]
		return ok
	case []any:
		i, err := strconv.Atoi(token)
		return err == nil && i >= 0 && i < len(p)
	}
	return false
}

// evaluateWildcardPath handles paths containing the JMAP wildcard (*) extension
func evaluateWildcardPath(data any, path string) (any, error) {
	// Split path at first wildcard
	wildcardIdx := strings.Index(path, "/*")
	beforeWildcard := path[:wildcardIdx]
	afterWildcard := path[wildcardIdx+2:] // Skip "/*"

	// Get the array at the path before the wildcard
	var arrayData any
	var err error
	if beforeWildcard == "" {
		arrayData = data
	} else {
		ptr, err := jsonpointer.Parse(beforeWildcard)
		if err != nil {
			return nil, fmt.Errorf("invalid JSON Pointer before wildcard: %w", err)
		}
		arrayData, err = ptr.Eval(data)
		if err != nil {
			return nil, fmt.Errorf("path not found before wildcard: %s", beforeWildcard)
		}
	}

	// Verify it's an array
	arr, ok := arrayData.([]any)
	if !ok {
		return nil, fmt.Errorf("wildcard requires an array, got %T at path %s", arrayData, beforeWildcard)
	}

	// Extract values from each array element
	results := make([]any, 0, len(arr))
	for i, item := range arr {
		var value any
		if afterWildcard == "" {
			// Wildcard at end of path - extract whole item
			value = item
		} else {
			// Continue evaluating the remaining path
			value, err = EvaluatePath(item, afterWildcard)
			if err != nil {
				return nil, fmt.Errorf("failed to evaluate path %s on array element %d: %w", afterWildcard, i, err)
			}
		}

		// Flatten arrays per JMAP spec
		if valueArr, isArr := value.([]any); isArr {
			results = append(results, valueArr...)
		} else {
			results = append(results, value)
		}
	}

	return results, nil
}

// ValidatePath checks that path is a well-formed JSON Pointer, optionally
// using the JMAP wildcard extension. It does not evaluate the path.
func ValidatePath(path string) error {
	if path == "" {
		return nil
	}
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("path must start with '/': %s", path)
	}
	for _, part := range strings.Split(path, "/*") {
		if part == "" {
			continue
		}
		if !strings.HasPrefix(part, "/") {
			return fmt.Errorf("wildcard must be a whole path segment: %s", path)
		}
		if _, err := jsonpointer.Parse(part); err != nil {
			return fmt.Errorf("invalid JSON Pointer: %w", err)
		}
	}
	return nil
}

func escapeToken(token string) string {
	return strings.ReplaceAll(strings.ReplaceAll(token, "~", "~0"), "/", "~1")
}
