package resultref

import (
	"errors"
	"reflect"
	"testing"

	"github.com/jarrod-lowe/jmap-client-core/pkg/jmap"
)

func queryResponses() Responses {
	return Responses{
		{
			ClientID: "q0",
			Name:     jmap.EmailQuery,
			Args: map[string]any{
				"ids":        []any{"e1", "e2", "e3"},
				"queryState": "Q1",
			},
		},
		{
			ClientID: "m0",
			Name:     jmap.MailboxGet,
			Args: map[string]any{
				"list": []any{
					map[string]any{"id": "mb-inbox", "parentId": nil},
				},
			},
		},
	}
}

func TestResolveArgs_NoReferences_PassesThrough(t *testing.T) {
	args := map[string]any{
		"accountId": "acct-1",
		"ids":       []any{"e1", "e2"},
	}

	result, err := ResolveArgs(args, Responses{})
	if err != nil {
		t.Fatalf("ResolveArgs returned error: %v", err)
	}
	if !reflect.DeepEqual(result, args) {
		t.Errorf("expected args to pass through unchanged, got %v", result)
	}
}

func TestResolveArgs_TopLevelReference_Resolves(t *testing.T) {
	args := map[string]any{
		"accountId": "acct-1",
		"ids":       jmap.Ref("q0", jmap.EmailQuery, "/ids"),
	}

	result, err := ResolveArgs(args, queryResponses())
	if err != nil {
		t.Fatalf("ResolveArgs returned error: %v", err)
	}

	expected := map[string]any{
		"accountId": "acct-1",
		"ids":       []any{"e1", "e2", "e3"},
	}
	if !reflect.DeepEqual(result, expected) {
		t.Errorf("expected %v, got %v", expected, result)
	}
	if _, ok := args["ids"].(jmap.ResultReference); !ok {
		t.Error("expected input args to be left unmodified")
	}
}

func TestResolveArgs_NestedReference_Resolves(t *testing.T) {
	ref := jmap.Ref("m0", jmap.MailboxGet, "/list/0/id")
	args := map[string]any{
		"filter": map[string]any{
			"operator": "AND",
			"conditions": []any{
				map[string]any{"inMailbox": &ref},
				map[string]any{"hasKeyword": "$flagged"},
			},
		},
	}

	result, err := ResolveArgs(args, queryResponses())
	if err != nil {
		t.Fatalf("ResolveArgs returned error: %v", err)
	}

	expected := map[string]any{
		"filter": map[string]any{
			"operator": "AND",
			"conditions": []any{
				map[string]any{"inMailbox": "mb-inbox"},
				map[string]any{"hasKeyword": "$flagged"},
			},
		},
	}
	if !reflect.DeepEqual(result, expected) {
		t.Errorf("expected %v, got %v", expected, result)
	}
}

func TestResolveArgs_ResultOfNotFound_ReturnsError(t *testing.T) {
	args := map[string]any{
		"ids": jmap.Ref("missing", jmap.EmailQuery, "/ids"),
	}

	_, err := ResolveArgs(args, queryResponses())

	var resolveErr *ResolveError
	if !errors.As(err, &resolveErr) {
		t.Fatalf("expected ResolveError, got %v", err)
	}
	if resolveErr.Type != jmap.ErrorInvalidResultReference {
		t.Errorf("expected error type %s, got %s", jmap.ErrorInvalidResultReference, resolveErr.Type)
	}
}

func TestResolveArgs_NameMismatch_ReturnsError(t *testing.T) {
	args := map[string]any{
		"ids": jmap.Ref("q0", jmap.MailboxQuery, "/ids"),
	}

	_, err := ResolveArgs(args, queryResponses())

	var resolveErr *ResolveError
	if !errors.As(err, &resolveErr) {
		t.Fatalf("expected ResolveError, got %v", err)
	}
	if resolveErr.Type != jmap.ErrorInvalidResultReference {
		t.Errorf("expected error type %s, got %s", jmap.ErrorInvalidResultReference, resolveErr.Type)
	}
}

func TestResolveArgs_PathEvaluationFails_ReturnsError(t *testing.T) {
	args := map[string]any{
		"ids": jmap.Ref("q0", jmap.EmailQuery, "/list/*/id"),
	}

	_, err := ResolveArgs(args, queryResponses())

	var resolveErr *ResolveError
	if !errors.As(err, &resolveErr) {
		t.Fatalf("expected ResolveError, got %v", err)
	}
	if resolveErr.Type != jmap.ErrorInvalidResultReference {
		t.Errorf("expected error type %s, got %s", jmap.ErrorInvalidResultReference, resolveErr.Type)
	}
}

func TestResolveArgs_NilLookup_ReturnsError(t *testing.T) {
	args := map[string]any{
		"ids": jmap.Ref("q0", jmap.EmailQuery, "/ids"),
	}

	if _, err := ResolveArgs(args, nil); err == nil {
		t.Error("expected error with no lookup, got nil")
	}
}

func TestResolveArgs_NullResolvedValue_OmitsProperty(t *testing.T) {
	args := map[string]any{
		"accountId": "acct-1",
		"parentId":  jmap.Ref("m0", jmap.MailboxGet, "/list/0/parentId"),
	}

	result, err := ResolveArgs(args, queryResponses())
	if err != nil {
		t.Fatalf("ResolveArgs returned error: %v", err)
	}
	if _, ok := result["parentId"]; ok {
		t.Error("expected parentId to be omitted when the reference resolves to null")
	}
	if result["accountId"] != "acct-1" {
		t.Errorf("expected accountId acct-1, got %v", result["accountId"])
	}
}

func TestResolveArgs_LiteralNullIsKept(t *testing.T) {
	args := map[string]any{
		"ids":      jmap.Ref("q0", jmap.EmailQuery, "/ids"),
		"parentId": nil,
	}

	result, err := ResolveArgs(args, queryResponses())
	if err != nil {
		t.Fatalf("ResolveArgs returned error: %v", err)
	}
	if v, ok := result["parentId"]; !ok || v != nil {
		t.Errorf("expected literal null parentId to be kept, got %v (present=%v)", v, ok)
	}
}

func TestResolveArgs_ConflictingKeys_ReturnsError(t *testing.T) {
	args := map[string]any{
		"ids":  jmap.Ref("q0", jmap.EmailQuery, "/ids"),
		"#ids": []any{"literal"},
	}

	_, err := ResolveArgs(args, queryResponses())

	var resolveErr *ResolveError
	if !errors.As(err, &resolveErr) {
		t.Fatalf("expected ResolveError, got %v", err)
	}
	if resolveErr.Type != jmap.ErrorInvalidArguments {
		t.Errorf("expected error type %s, got %s", jmap.ErrorInvalidArguments, resolveErr.Type)
	}
}

func TestWalk_ReportsPointersInKeyOrder(t *testing.T) {
	args := map[string]any{
		"ids": jmap.Ref("q0", jmap.EmailQuery, "/ids"),
		"filter": map[string]any{
			"conditions": []any{
				map[string]any{"inMailbox": jmap.Ref("m0", jmap.MailboxGet, "/list/0/id")},
			},
		},
		"a/b": jmap.Ref("q0", jmap.EmailQuery, "/queryState"),
	}

	var pointers []string
	Walk(args, func(pointer string, _ jmap.ResultReference) bool {
		pointers = append(pointers, pointer)
		return true
	})

	expected := []string{"/a~1b", "/filter/conditions/0/inMailbox", "/ids"}
	if !reflect.DeepEqual(pointers, expected) {
		t.Errorf("expected %v, got %v", expected, pointers)
	}
}

func TestContainsReference(t *testing.T) {
	if ContainsReference(map[string]any{"ids": []any{"e1"}}) {
		t.Error("expected no reference in literal args")
	}
	if !ContainsReference([]any{map[string]any{"x": jmap.Ref("a", jmap.EmailGet, "/list")}}) {
		t.Error("expected reference nested in array to be found")
	}
}
