package jmap

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestInvocation_MarshalJSON_EmitsReferenceUnderHashKey(t *testing.T) {
	inv := Invocation{
		Name: EmailGet,
		Args: map[string]any{
			"accountId": "acc1",
			"ids":       Ref("c0", EmailQuery, "/ids"),
		},
		CallID: "c1",
	}

	data, err := json.Marshal(inv)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	var parsed []any
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if len(parsed) != 3 {
		t.Fatalf("expected 3 elements, got %d", len(parsed))
	}
	if parsed[0] != "Email/get" || parsed[2] != "c1" {
		t.Errorf("unexpected name/callId: %v, %v", parsed[0], parsed[2])
	}

	args := parsed[1].(map[string]any)
	if _, ok := args["ids"]; ok {
		t.Error("expected 'ids' to be absent when it holds a reference")
	}
	ref, ok := args["#ids"].(map[string]any)
	if !ok {
		t.Fatalf("expected '#ids' object, got %v", args["#ids"])
	}
	expected := map[string]any{"resultOf": "c0", "name": "Email/query", "path": "/ids"}
	if !reflect.DeepEqual(ref, expected) {
		t.Errorf("expected %v, got %v", expected, ref)
	}
}

func TestInvocation_MarshalJSON_NestedReference(t *testing.T) {
	inv := Invocation{
		Name: EmailQuery,
		Args: map[string]any{
			"filter": map[string]any{
				"inMailbox": Ref("a", MailboxGet, "/list/0/id"),
			},
		},
		CallID: "b",
	}

	data, err := json.Marshal(inv)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	expected := `["Email/query",{"filter":{"#inMailbox":{"resultOf":"a","name":"Mailbox/get","path":"/list/0/id"}}},"b"]`
	if string(data) != expected {
		t.Errorf("expected %s, got %s", expected, data)
	}
}

func TestInvocation_MarshalJSON_ReferenceInFilterOperator(t *testing.T) {
	inv := Invocation{
		Name: EmailQuery,
		Args: map[string]any{
			"filter": FilterOperator{
				Operator:   "AND",
				Conditions: []any{map[string]any{"inMailbox": Ref("a", MailboxGet, "/list/0/id")}},
			},
		},
		CallID: "b",
	}

	data, err := json.Marshal(inv)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	expected := `["Email/query",{"filter":{"conditions":[{"#inMailbox":{"resultOf":"a","name":"Mailbox/get","path":"/list/0/id"}}],"operator":"AND"}},"b"]`
	if string(data) != expected {
		t.Errorf("expected %s, got %s", expected, data)
	}
}

func TestInvocation_UnmarshalJSON_DecodesReferences(t *testing.T) {
	data := []byte(`["Email/get",{"accountId":"acc1","#ids":{"resultOf":"c0","name":"Email/query","path":"/ids"}},"c1"]`)

	var inv Invocation
	if err := json.Unmarshal(data, &inv); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}

	if inv.Name != EmailGet {
		t.Errorf("expected Email/get, got %s", inv.Name)
	}
	ref, ok := inv.Args["ids"].(ResultReference)
	if !ok {
		t.Fatalf("expected ResultReference under 'ids', got %T", inv.Args["ids"])
	}
	if ref != Ref("c0", EmailQuery, "/ids") {
		t.Errorf("unexpected reference %+v", ref)
	}
}

func TestRawInvocation_UnmarshalJSON_RejectsWrongArity(t *testing.T) {
	var raw RawInvocation
	err := json.Unmarshal([]byte(`["Email/get",{}]`), &raw)
	if err == nil {
		t.Fatal("expected error for 2-element invocation")
	}
}

func TestRequest_MarshalJSON_OmitsEmptyCreatedIDs(t *testing.T) {
	req := Request{
		Using:       []string{CapabilityCore},
		MethodCalls: []Invocation{{Name: MailboxGet, Args: map[string]any{"accountId": "a", "ids": nil}, CallID: "0"}},
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if _, ok := parsed["createdIds"]; ok {
		t.Error("expected 'createdIds' to be omitted")
	}
	call := parsed["methodCalls"].([]any)[0].([]any)
	args := call[1].(map[string]any)
	if v, ok := args["ids"]; !ok || v != nil {
		t.Errorf("expected explicit null ids, got %v (present=%v)", v, ok)
	}
}

func TestCreationKey(t *testing.T) {
	tests := []struct {
		in     string
		key    string
		wantOK bool
	}{
		{"#draft1", "draft1", true},
		{"M123", "", false},
		{"#", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		key, ok := CreationKey(tt.in)
		if key != tt.key || ok != tt.wantOK {
			t.Errorf("CreationKey(%q) = (%q, %v), expected (%q, %v)", tt.in, key, ok, tt.key, tt.wantOK)
		}
	}
}
