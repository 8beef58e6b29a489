// Package client sends built batches over a transport and demultiplexes the
// responses.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jarrod-lowe/jmap-client-core/internal/batch"
	"github.com/jarrod-lowe/jmap-client-core/internal/creationid"
	"github.com/jarrod-lowe/jmap-client-core/internal/demux"
	"github.com/jarrod-lowe/jmap-client-core/internal/schema"
	"github.com/jarrod-lowe/jmap-client-core/internal/tracing"
	"github.com/jarrod-lowe/jmap-client-core/internal/transport"
	"github.com/jarrod-lowe/jmap-client-core/pkg/jmap"
)

// OutcomeUnknownError is returned when a batch containing set or import
// calls was sent but no usable response came back. The server may or may
// not have applied it; the batch must not be replayed blindly.
type OutcomeUnknownError struct {
	CallIDs []string
	Err     error
}

func (e *OutcomeUnknownError) Error() string {
	return fmt.Sprintf("outcome unknown for mutating batch: %v", e.Err)
}

func (e *OutcomeUnknownError) Unwrap() error {
	return e.Err
}

// Option configures a Client
type Option func(*Client)

// WithRegistry replaces the built-in method registry
func WithRegistry(r *schema.Registry) Option {
	return func(c *Client) {
		c.registry = r
	}
}

// WithAccounts sets the default-account resolver used by new batches
func WithAccounts(accounts batch.AccountResolver) Option {
	return func(c *Client) {
		c.accounts = accounts
	}
}

// WithSession takes default accounts and maxCallsInRequest from a session
func WithSession(session *jmap.Session) Option {
	return func(c *Client) {
		c.accounts = session
		if core, err := session.CoreCapability(); err == nil {
			c.maxCalls = core.MaxCallsInRequest
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTracker sets the tracker that outlives individual batches
func WithTracker(t *creationid.Tracker) Option {
	return func(c *Client) {
		c.tracker = t
	}
}

// WithMaxCallsInRequest limits the calls per batch
func WithMaxCallsInRequest(n int) Option {
	return func(c *Client) {
		c.maxCalls = n
	}
}

// Client is safe for concurrent use. Each call to Do owns its batch.
type Client struct {
	transport transport.Transport
	registry  *schema.Registry
	accounts  batch.AccountResolver
	tracker   *creationid.Tracker
	logger    *slog.Logger
	maxCalls  int
}

// New creates a Client
func New(t transport.Transport, opts ...Option) *Client {
	c := &Client{
		transport: t,
		registry:  schema.NewRegistry(),
		tracker:   creationid.NewTracker(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Tracker returns the creation ids learned from completed batches
func (c *Client) Tracker() *creationid.Tracker {
	return c.tracker
}

// NewBatch returns a Builder bound to this client's registry, accounts and
// tracker. opts are applied after the client's own.
func (c *Client) NewBatch(opts ...batch.Option) *batch.Builder {
	base := []batch.Option{
		batch.WithTracker(c.tracker),
		batch.WithMaxCalls(c.maxCalls),
	}
	return batch.New(c.registry, c.accounts, append(base, opts...)...)
}

// Do builds and sends a batch. Validation errors are returned before
// anything is sent.
func (c *Client) Do(ctx context.Context, b *batch.Builder) (*demux.ResultSet, error) {
	built, err := b.Build()
	if err != nil {
		return nil, err
	}
	return c.Send(ctx, built)
}

// Send exchanges a built batch and demultiplexes the response. Creation ids
// are recorded in the client's tracker only once the whole response has
// been matched; an abandoned batch leaves its creation keys pending.
func (c *Client) Send(ctx context.Context, built *batch.Batch) (*demux.ResultSet, error) {
	ctx, span := tracing.StartBatchSpan(ctx, len(built.Calls))
	defer span.End()

	body, err := json.Marshal(built.Request)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	for _, key := range built.CreateKeys() {
		c.tracker.Expect(key)
	}

	rs, err := c.exchange(ctx, built, body)
	if err != nil {
		tracing.RecordError(span, err)
		if built.Mutating() && outcomeUnknown(err) {
			c.logger.ErrorContext(ctx, "Mutating batch outcome unknown",
				slog.Int("call_count", len(built.Calls)),
				slog.String("error", err.Error()),
			)
			return nil, &OutcomeUnknownError{CallIDs: callIDs(built), Err: err}
		}
		c.logger.WarnContext(ctx, "Batch failed",
			slog.Int("call_count", len(built.Calls)),
			slog.Bool("transient", transport.IsTransient(err)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	c.recordCalls(ctx, built, rs)
	return rs, nil
}

func (c *Client) exchange(ctx context.Context, built *batch.Batch, body []byte) (*demux.ResultSet, error) {
	raw, err := c.transport.Exchange(ctx, body)
	if err != nil {
		return nil, err
	}

	created := creationid.NewTracker()
	rs, err := demux.Parse(raw, built, created)
	if err != nil {
		if errors.Is(err, demux.ErrMalformedResponse) {
			return nil, &transport.Error{Kind: transport.Fatal, Detail: "response is not a JMAP response", Err: err}
		}
		return nil, err
	}
	c.tracker.Merge(created)
	return rs, nil
}

// recordCalls emits a span per call so failed calls show up individually
func (c *Client) recordCalls(ctx context.Context, built *batch.Batch, rs *demux.ResultSet) {
	for i, call := range built.Calls {
		_, span := tracing.StartMethodSpan(ctx, string(call.Method), call.CallID, i)
		if methodErr := rs.Error(call.CallID); methodErr != nil {
			span.SetAttributes(tracing.JMAPErrorType(string(methodErr.Type)))
			tracing.RecordError(span, methodErr)
			c.logger.WarnContext(ctx, "Method call failed",
				slog.String("call_id", call.CallID),
				slog.String("method", string(call.Method)),
				slog.String("error_type", string(methodErr.Type)),
			)
		}
		span.End()
	}
}

// outcomeUnknown reports whether the server may have processed the request.
// A status the server rejects requests with, such as 400 or 401, means
// nothing ran.
func outcomeUnknown(err error) bool {
	var transportErr *transport.Error
	if errors.As(err, &transportErr) {
		return !transportErr.Rejected()
	}
	var mismatch *demux.MismatchError
	return errors.As(err, &mismatch)
}

func callIDs(b *batch.Batch) []string {
	ids := make([]string, len(b.Calls))
	for i, call := range b.Calls {
		ids[i] = call.CallID
	}
	return ids
}
