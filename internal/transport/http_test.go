package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// mockSecretsManagerClient implements SecretsManagerClient for testing
type mockSecretsManagerClient struct {
	secret string
	err    error
	calls  int
}

func (m *mockSecretsManagerClient) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(m.secret)}, nil
}

func TestHTTPTransport_PostsRequestWithBearerToken(t *testing.T) {
	var gotMethod, gotAuth, gotContentType, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"methodResponses":[],"sessionState":"s1"}`))
	}))
	defer server.Close()

	transport := NewHTTPTransport(server.URL, StaticToken("tok-1"))

	resp, err := transport.Exchange(context.Background(), []byte(`{"using":[],"methodCalls":[]}`))
	if err != nil {
		t.Fatalf("Exchange returned error: %v", err)
	}

	if string(resp) != `{"methodResponses":[],"sessionState":"s1"}` {
		t.Errorf("unexpected response body %s", resp)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("expected POST, got %s", gotMethod)
	}
	if gotAuth != "Bearer tok-1" {
		t.Errorf("expected 'Bearer tok-1', got %q", gotAuth)
	}
	if gotContentType != "application/json" {
		t.Errorf("expected application/json, got %q", gotContentType)
	}
	if gotBody != `{"using":[],"methodCalls":[]}` {
		t.Errorf("unexpected request body %s", gotBody)
	}
}

func TestHTTPTransport_StatusClassification(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantKind    Kind
		wantProblem string
	}{
		{"service unavailable", http.StatusServiceUnavailable, "", Transient, ""},
		{"rate limited", http.StatusTooManyRequests, "", Transient, ""},
		{"not a request", http.StatusBadRequest, `{"type":"urn:ietf:params:jmap:error:notRequest","status":400,"detail":"missing using"}`, Fatal, ProblemNotRequest},
		{"limit", http.StatusBadRequest, `{"type":"urn:ietf:params:jmap:error:limit","status":400,"limit":"maxCallsInRequest"}`, Fatal, ProblemLimit},
		{"forbidden", http.StatusForbidden, "denied", Fatal, ""},
		{"not implemented", http.StatusNotImplemented, "", Fatal, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewHTTPTransport(server.URL, nil).Exchange(context.Background(), []byte(`{}`))

			var transportErr *Error
			if !errors.As(err, &transportErr) {
				t.Fatalf("expected transport Error, got %v", err)
			}
			if transportErr.Kind != tt.wantKind {
				t.Errorf("expected %s, got %s", tt.wantKind, transportErr.Kind)
			}
			if transportErr.StatusCode != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, transportErr.StatusCode)
			}
			if transportErr.ProblemType != tt.wantProblem {
				t.Errorf("expected problem %q, got %q", tt.wantProblem, transportErr.ProblemType)
			}
		})
	}
}

func TestError_Rejected(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want bool
	}{
		{"connection failure", &Error{Kind: Transient}, false},
		{"unauthorized", &Error{Kind: Transient, StatusCode: http.StatusUnauthorized}, true},
		{"rate limited", &Error{Kind: Transient, StatusCode: http.StatusTooManyRequests}, true},
		{"bad gateway", &Error{Kind: Transient, StatusCode: http.StatusBadGateway}, false},
		{"not a request", &Error{Kind: Fatal, StatusCode: http.StatusBadRequest}, true},
		{"undecodable payload", &Error{Kind: Fatal}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Rejected(); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestHTTPTransport_ConnectionFailure_Transient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewHTTPTransport(url, nil).Exchange(context.Background(), []byte(`{}`))

	if !IsTransient(err) {
		t.Errorf("expected transient error, got %v", err)
	}
}

func TestHTTPTransport_Unauthorized_InvalidatesCachedToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	secrets := &mockSecretsManagerClient{secret: "tok-old"}
	transport := NewHTTPTransport(server.URL, NewSecretsManagerTokenSource(secrets, "arn:aws:secretsmanager:ap-southeast-2:123:secret:jmap"))

	_, err := transport.Exchange(context.Background(), []byte(`{}`))
	if !IsTransient(err) {
		t.Errorf("expected transient error after token invalidation, got %v", err)
	}

	_, _ = transport.Exchange(context.Background(), []byte(`{}`))
	if secrets.calls != 2 {
		t.Errorf("expected secret to be re-read after 401, got %d reads", secrets.calls)
	}
}

func TestHTTPTransport_TokenFailure_Transient(t *testing.T) {
	secrets := &mockSecretsManagerClient{err: errors.New("throttled")}
	transport := NewHTTPTransport("http://127.0.0.1:1", NewSecretsManagerTokenSource(secrets, "arn"))

	_, err := transport.Exchange(context.Background(), []byte(`{}`))
	if !IsTransient(err) {
		t.Errorf("expected transient error, got %v", err)
	}
}

func TestSecretsManagerTokenSource_CachesToken(t *testing.T) {
	secrets := &mockSecretsManagerClient{secret: "tok-1"}
	source := NewSecretsManagerTokenSource(secrets, "arn")

	for i := 0; i < 3; i++ {
		token, err := source.Token(context.Background())
		if err != nil {
			t.Fatalf("Token returned error: %v", err)
		}
		if token != "tok-1" {
			t.Errorf("expected tok-1, got %s", token)
		}
	}
	if secrets.calls != 1 {
		t.Errorf("expected 1 secret read, got %d", secrets.calls)
	}
}

func TestSecretsManagerTokenSource_EmptySecret(t *testing.T) {
	source := NewSecretsManagerTokenSource(&mockSecretsManagerClient{secret: ""}, "arn")

	if _, err := source.Token(context.Background()); err == nil {
		t.Error("expected error for empty secret, got nil")
	}
}

func TestStaticToken_Empty(t *testing.T) {
	if _, err := StaticToken("").Token(context.Background()); err == nil {
		t.Error("expected error for empty token, got nil")
	}
}
