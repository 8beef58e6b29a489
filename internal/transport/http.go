package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const maxResponseBytes = 64 << 20

// HTTPClient is the subset of *http.Client used by HTTPTransport
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type invalidator interface {
	Invalidate()
}

// HTTPTransport posts requests to a JMAP API endpoint
type HTTPTransport struct {
	apiURL string
	client HTTPClient
	tokens TokenSource
}

// HTTPOption configures an HTTPTransport
type HTTPOption func(*HTTPTransport)

// WithHTTPClient replaces http.DefaultClient
func WithHTTPClient(client HTTPClient) HTTPOption {
	return func(t *HTTPTransport) {
		t.client = client
	}
}

// NewHTTPTransport creates a transport for the session's apiUrl. tokens may be
// nil when authentication is handled by the HTTP client.
func NewHTTPTransport(apiURL string, tokens TokenSource, opts ...HTTPOption) *HTTPTransport {
	t := &HTTPTransport{
		apiURL: apiURL,
		client: http.DefaultClient,
		tokens: tokens,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Exchange implements Transport
func (t *HTTPTransport) Exchange(ctx context.Context, request []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.apiURL, bytes.NewReader(request))
	if err != nil {
		return nil, &Error{Kind: Fatal, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if t.tokens != nil {
		token, err := t.tokens.Token(ctx)
		if err != nil {
			return nil, &Error{Kind: Transient, Err: fmt.Errorf("failed to get access token: %w", err)}
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &Error{Kind: Transient, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &Error{Kind: Transient, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		e := statusError(resp.StatusCode, body)
		if inv, ok := t.tokens.(invalidator); ok && resp.StatusCode == http.StatusUnauthorized {
			// a cached token may have been rotated
			inv.Invalidate()
			e.Kind = Transient
		}
		return nil, e
	}
	return body, nil
}
