package demux

import (
	"errors"
	"reflect"
	"testing"

	"github.com/jarrod-lowe/jmap-client-core/internal/batch"
	"github.com/jarrod-lowe/jmap-client-core/internal/creationid"
	"github.com/jarrod-lowe/jmap-client-core/internal/schema"
	"github.com/jarrod-lowe/jmap-client-core/pkg/jmap"
)

type testCall struct {
	method jmap.MethodName
	args   map[string]any
	callID string
}

func buildBatch(t *testing.T, calls ...testCall) *batch.Batch {
	t.Helper()
	b := batch.New(schema.NewRegistry(), batch.StaticAccounts{
		jmap.CapabilityMail:       "acct-1",
		jmap.CapabilitySubmission: "acct-1",
	})
	for _, c := range calls {
		if err := b.AddCall(c.method, c.args, c.callID); err != nil {
			t.Fatalf("AddCall returned error: %v", err)
		}
	}
	built, err := b.Build()
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	return built
}

func expectMismatch(t *testing.T, err error, callID string) *MismatchError {
	t.Helper()
	var mismatchErr *MismatchError
	if !errors.As(err, &mismatchErr) {
		t.Fatalf("expected MismatchError, got %v", err)
	}
	if mismatchErr.CallID != callID {
		t.Errorf("expected mismatch on call %q, got %q", callID, mismatchErr.CallID)
	}
	return mismatchErr
}

func readBatch(t *testing.T) *batch.Batch {
	return buildBatch(t,
		testCall{jmap.MailboxGet, map[string]any{"ids": nil}, "a"},
		testCall{jmap.EmailQuery, map[string]any{"filter": map[string]any{"inMailbox": jmap.Ref("a", jmap.MailboxGet, "/list/0/id")}}, "b"},
		testCall{jmap.EmailGet, map[string]any{"ids": jmap.Ref("b", jmap.EmailQuery, "/ids")}, "c"},
	)
}

func TestParse_ResponsesInAnyOrder_KeyedByCallID(t *testing.T) {
	raw := []byte(`{"methodResponses":[
		["Email/get",{"accountId":"acct-1","state":"E1","list":[{"id":"e1"}],"notFound":[]},"c"],
		["Mailbox/get",{"accountId":"acct-1","state":"M1","list":[{"id":"mb1"}],"notFound":[]},"a"],
		["Email/query",{"accountId":"acct-1","queryState":"Q1","canCalculateChanges":true,"position":0,"ids":["e1"]},"b"]
	],"sessionState":"sess-1"}`)

	rs, err := Parse(raw, readBatch(t), nil)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if !reflect.DeepEqual(rs.CallIDs(), []string{"a", "b", "c"}) {
		t.Errorf("expected call ids [a b c], got %v", rs.CallIDs())
	}
	if rs.SessionState != "sess-1" {
		t.Errorf("expected session state sess-1, got %s", rs.SessionState)
	}

	mailboxes, err := rs.Get("a")
	if err != nil {
		t.Fatalf("Get(a) returned error: %v", err)
	}
	if mailboxes.State != "M1" {
		t.Errorf("expected state M1, got %s", mailboxes.State)
	}

	query, err := rs.Query("b")
	if err != nil {
		t.Fatalf("Query(b) returned error: %v", err)
	}
	if !reflect.DeepEqual(query.IDs, []string{"e1"}) || query.Total != nil {
		t.Errorf("unexpected query response %+v", query)
	}

	emails, err := rs.Get("c")
	if err != nil {
		t.Fatalf("Get(c) returned error: %v", err)
	}
	if len(emails.List) != 1 {
		t.Errorf("expected 1 email, got %d", len(emails.List))
	}

	if _, err := rs.Set("a"); err == nil {
		t.Error("expected error asking for a set response of a get call")
	}
}

func TestParse_ErrorInvocation_IsolatedToItsCall(t *testing.T) {
	raw := []byte(`{"methodResponses":[
		["Mailbox/get",{"accountId":"acct-1","state":"M1","list":[],"notFound":[]},"a"],
		["error",{"type":"invalidResultReference","description":"no mailbox"},"b"],
		["error",{"type":"invalidResultReference"},"c"]
	],"sessionState":"sess-1"}`)

	rs, err := Parse(raw, readBatch(t), nil)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if rs.Error("a") != nil {
		t.Errorf("expected call a to succeed, got %v", rs.Error("a"))
	}
	methodErr := rs.Error("b")
	if methodErr == nil || methodErr.Type != jmap.ErrorInvalidResultReference {
		t.Fatalf("expected invalidResultReference for b, got %v", methodErr)
	}
	if methodErr.Description != "no mailbox" {
		t.Errorf("expected description 'no mailbox', got %q", methodErr.Description)
	}

	_, err = rs.Query("b")
	var asMethodErr *jmap.MethodError
	if !errors.As(err, &asMethodErr) {
		t.Errorf("expected Query(b) to return the method error, got %v", err)
	}
	if !reflect.DeepEqual(rs.Failed(), []string{"b", "c"}) {
		t.Errorf("expected failed [b c], got %v", rs.Failed())
	}
}

func TestParse_Mismatches(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		callID string
	}{
		{
			name: "missing response",
			raw: `{"methodResponses":[
				["Mailbox/get",{"accountId":"acct-1","state":"M1","list":[],"notFound":[]},"a"],
				["Email/query",{"accountId":"acct-1","queryState":"Q1","ids":[]},"b"]
			],"sessionState":"s"}`,
			callID: "c",
		},
		{
			name: "unknown call id",
			raw: `{"methodResponses":[
				["Mailbox/get",{"accountId":"acct-1","state":"M1","list":[],"notFound":[]},"zz"]
			],"sessionState":"s"}`,
			callID: "zz",
		},
		{
			name: "wrong method name",
			raw: `{"methodResponses":[
				["Mailbox/query",{"accountId":"acct-1","queryState":"Q1","ids":[]},"a"]
			],"sessionState":"s"}`,
			callID: "a",
		},
		{
			name: "undecodable payload",
			raw: `{"methodResponses":[
				["Mailbox/get",{"accountId":"acct-1","state":"M1","list":"not-a-list"},"a"]
			],"sessionState":"s"}`,
			callID: "a",
		},
		{
			name: "duplicate response",
			raw: `{"methodResponses":[
				["Mailbox/get",{"accountId":"acct-1","state":"M1","list":[],"notFound":[]},"a"],
				["Mailbox/get",{"accountId":"acct-1","state":"M1","list":[],"notFound":[]},"a"]
			],"sessionState":"s"}`,
			callID: "a",
		},
		{
			name: "error without type",
			raw: `{"methodResponses":[
				["error",{"description":"?"},"a"]
			],"sessionState":"s"}`,
			callID: "a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs, err := Parse([]byte(tt.raw), readBatch(t), nil)
			if rs != nil {
				t.Error("expected no result set alongside a mismatch")
			}
			expectMismatch(t, err, tt.callID)
		})
	}
}

func TestParse_NotJSON_Malformed(t *testing.T) {
	_, err := Parse([]byte(`<html>Bad Gateway</html>`), readBatch(t), nil)
	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestParse_SetCreated_RegistersWithTracker(t *testing.T) {
	b := buildBatch(t, testCall{jmap.EmailSet, map[string]any{
		"create": map[string]any{"draft1": map[string]any{"subject": "hi"}},
	}, "s"})
	raw := []byte(`{"methodResponses":[
		["Email/set",{"accountId":"acct-1","oldState":"S1","newState":"S2","created":{"draft1":{"id":"M123","blobId":"B1","threadId":"T1","size":120}}},"s"]
	],"sessionState":"sess-1"}`)
	tracker := creationid.NewTracker()

	rs, err := Parse(raw, b, tracker)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	id, err := tracker.Resolve("draft1")
	if err != nil || id != "M123" {
		t.Errorf("expected draft1 -> M123, got %q (%v)", id, err)
	}
	if got, _ := rs.Created("draft1"); got != "M123" {
		t.Errorf("expected result set to report M123, got %q", got)
	}

	set, err := rs.Set("s")
	if err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if set.Updated != nil || set.Destroyed != nil || set.NotCreated != nil {
		t.Errorf("expected absent buckets to stay nil, got %+v", set)
	}
}

func TestParse_ImportCreated_RegistersWithTracker(t *testing.T) {
	b := buildBatch(t, testCall{jmap.EmailImport, map[string]any{
		"emails": map[string]any{
			"imp1": map[string]any{"blobId": "B1", "mailboxIds": map[string]any{"mb1": true}},
			"imp2": map[string]any{"blobId": "B2", "mailboxIds": map[string]any{"mb1": true}},
		},
	}, "i"})
	raw := []byte(`{"methodResponses":[
		["Email/import",{"accountId":"acct-1","newState":"S2","created":{"imp1":{"id":"M1","blobId":"B1","threadId":"T1","size":10}},"notCreated":{"imp2":{"type":"alreadyExists"}}},"i"]
	],"sessionState":"sess-1"}`)
	tracker := creationid.NewTracker()

	rs, err := Parse(raw, b, tracker)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if id, _ := tracker.Resolve("imp1"); id != "M1" {
		t.Errorf("expected imp1 -> M1, got %q", id)
	}
	imported, err := rs.Import("i")
	if err != nil {
		t.Fatalf("Import returned error: %v", err)
	}
	if imported.NotCreated["imp2"].Type != jmap.ErrorAlreadyExists {
		t.Errorf("expected alreadyExists for imp2, got %v", imported.NotCreated["imp2"])
	}
}

func TestParse_SetOutcomeCompleteness(t *testing.T) {
	b := func(t *testing.T) *batch.Batch {
		return buildBatch(t, testCall{jmap.MailboxSet, map[string]any{
			"create":  map[string]any{"k1": map[string]any{"name": "A"}},
			"update":  map[string]any{"mb2": map[string]any{"name": "B"}},
			"destroy": []any{"mb3"},
		}, "s"})
	}

	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{
			name: "every id in one bucket",
			raw: `{"methodResponses":[["Mailbox/set",{"accountId":"acct-1","newState":"S2",
				"created":{"k1":{"id":"mb1"}},"updated":{"mb2":null},"notDestroyed":{"mb3":{"type":"mailboxHasEmail"}}},"s"]],"sessionState":"x"}`,
		},
		{
			name: "create key missing",
			raw: `{"methodResponses":[["Mailbox/set",{"accountId":"acct-1","newState":"S2",
				"updated":{"mb2":null},"destroyed":["mb3"]},"s"]],"sessionState":"x"}`,
			wantErr: true,
		},
		{
			name: "update in two buckets",
			raw: `{"methodResponses":[["Mailbox/set",{"accountId":"acct-1","newState":"S2",
				"created":{"k1":{"id":"mb1"}},"updated":{"mb2":null},"notUpdated":{"mb2":{"type":"notFound"}},"destroyed":["mb3"]},"s"]],"sessionState":"x"}`,
			wantErr: true,
		},
		{
			name: "destroy missing",
			raw: `{"methodResponses":[["Mailbox/set",{"accountId":"acct-1","newState":"S2",
				"created":{"k1":{"id":"mb1"}},"updated":{"mb2":null}},"s"]],"sessionState":"x"}`,
			wantErr: true,
		},
		{
			name: "created without id",
			raw: `{"methodResponses":[["Mailbox/set",{"accountId":"acct-1","newState":"S2",
				"created":{"k1":{"name":"A"}},"updated":{"mb2":null},"destroyed":["mb3"]},"s"]],"sessionState":"x"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw), b(t), nil)
			if tt.wantErr {
				expectMismatch(t, err, "s")
				return
			}
			if err != nil {
				t.Fatalf("Parse returned error: %v", err)
			}
		})
	}
}

func TestParse_UpdateOfPlaceholder_MatchesCreatedID(t *testing.T) {
	b := buildBatch(t,
		testCall{jmap.EmailSet, map[string]any{
			"create": map[string]any{"k1": map[string]any{"subject": "hi"}},
		}, "c0"},
		testCall{jmap.EmailSet, map[string]any{
			"update": map[string]any{"#k1": map[string]any{"keywords/$seen": true}},
		}, "c1"},
	)
	raw := []byte(`{"methodResponses":[
		["Email/set",{"accountId":"acct-1","newState":"S2","created":{"k1":{"id":"M9"}}},"c0"],
		["Email/set",{"accountId":"acct-1","oldState":"S2","newState":"S3","updated":{"M9":null}},"c1"]
	],"sessionState":"x"}`)

	if _, err := Parse(raw, b, nil); err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
}

func TestParse_ImplicitEmailSet_KeptAsSecondary(t *testing.T) {
	b := buildBatch(t, testCall{jmap.EmailSubmissionSet, map[string]any{
		"create": map[string]any{
			"sub1": map[string]any{"identityId": "I1", "emailId": "M1"},
		},
		"onSuccessDestroyEmail": []any{"#sub1"},
	}, "s"})
	raw := []byte(`{"methodResponses":[
		["EmailSubmission/set",{"accountId":"acct-1","newState":"ES2","created":{"sub1":{"id":"ES1","threadId":"T1","sendAt":"2026-10-16T00:00:00Z"}}},"s"],
		["Email/set",{"accountId":"acct-1","oldState":"S1","newState":"S2","destroyed":["M1"]},"s"]
	],"sessionState":"x"}`)

	rs, err := Parse(raw, b, nil)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if len(rs.Secondary("s")) != 1 {
		t.Fatalf("expected 1 secondary response, got %d", len(rs.Secondary("s")))
	}
	emailSet, err := rs.ImplicitSet("s", jmap.EmailSet)
	if err != nil {
		t.Fatalf("ImplicitSet returned error: %v", err)
	}
	if !reflect.DeepEqual(emailSet.Destroyed, []string{"M1"}) {
		t.Errorf("expected destroyed [M1], got %v", emailSet.Destroyed)
	}
	if _, err := rs.Set("s"); err != nil {
		t.Errorf("expected primary EmailSubmission/set response, got %v", err)
	}
}

func TestResultSet_LookupFeedsNextBatch(t *testing.T) {
	first := buildBatch(t, testCall{jmap.EmailQuery, map[string]any{}, "q"})
	raw := []byte(`{"methodResponses":[
		["Email/query",{"accountId":"acct-1","queryState":"Q1","canCalculateChanges":false,"position":0,"ids":["e1","e2"]},"q"]
	],"sessionState":"x"}`)
	rs, err := Parse(raw, first, nil)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	next := batch.New(schema.NewRegistry(), batch.StaticAccounts{jmap.CapabilityMail: "acct-1"}, batch.WithPriorResults(rs))
	if err := next.AddCall(jmap.EmailGet, map[string]any{"ids": jmap.Ref("q", jmap.EmailQuery, "/ids")}, "g"); err != nil {
		t.Fatalf("AddCall returned error: %v", err)
	}
	built, err := next.Build()
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	if got := built.Request.MethodCalls[0].Args["ids"]; !reflect.DeepEqual(got, []any{"e1", "e2"}) {
		t.Errorf("expected ids [e1 e2], got %v", got)
	}
}
