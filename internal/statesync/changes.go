// Package statesync drives the JMAP */changes and */queryChanges protocols
// to bring a caller-owned cache up to date.
package statesync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jarrod-lowe/jmap-client-core/internal/batch"
	"github.com/jarrod-lowe/jmap-client-core/internal/demux"
	"github.com/jarrod-lowe/jmap-client-core/internal/schema"
	"github.com/jarrod-lowe/jmap-client-core/internal/tracing"
	"github.com/jarrod-lowe/jmap-client-core/pkg/jmap"
)

// DefaultMaxIterations caps a changes loop when no cap is given
const DefaultMaxIterations = 32

const callID = "0"

// Caller builds and sends batches. *client.Client satisfies it.
type Caller interface {
	NewBatch(opts ...batch.Option) *batch.Builder
	Do(ctx context.Context, b *batch.Builder) (*demux.ResultSet, error)
}

// ApplyFunc merges one round of changes into the caller's cache
type ApplyFunc func(ctx context.Context, created, updated, destroyed []string) error

// CheckpointFunc is called after a round has been applied, with the state
// before and after it
type CheckpointFunc func(ctx context.Context, oldState, newState string) error

// ChangesOptions configures a changes loop
type ChangesOptions struct {
	// MaxChanges is sent as maxChanges when positive
	MaxChanges int
	// MaxIterations defaults to DefaultMaxIterations
	MaxIterations int
	Apply         ApplyFunc
	Checkpoint    CheckpointFunc
}

// Option configures a Synchronizer
type Option func(*Synchronizer)

// WithRegistry replaces the built-in method registry
func WithRegistry(r *schema.Registry) Option {
	return func(s *Synchronizer) {
		s.registry = r
	}
}

// WithTokenStore sets where SyncChanges keeps state tokens
func WithTokenStore(store TokenStore) Option {
	return func(s *Synchronizer) {
		s.tokens = store
	}
}

// WithLocks shares per-key locks between Synchronizers, so syncs of the
// same key through different callers do not interleave
func WithLocks(locks *KeyedMutex) Option {
	return func(s *Synchronizer) {
		if locks != nil {
			s.locks = locks
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Synchronizer) {
		s.logger = logger
	}
}

// Synchronizer runs sync loops over a Caller. It does not own the cache.
type Synchronizer struct {
	caller   Caller
	registry *schema.Registry
	tokens   TokenStore
	locks    *KeyedMutex
	logger   *slog.Logger
}

// New creates a Synchronizer
func New(caller Caller, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		caller:   caller,
		registry: schema.NewRegistry(),
		locks:    NewKeyedMutex(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Synchronizer) method(entity schema.EntityName, family schema.Family) (*schema.Method, error) {
	m := s.registry.MethodFor(entity, family)
	if m == nil {
		return nil, fmt.Errorf("no %s method for %s", family, entity)
	}
	return m, nil
}

// call sends a single-call batch and returns its result set
func (s *Synchronizer) call(ctx context.Context, method jmap.MethodName, args map[string]any) (*demux.ResultSet, error) {
	b := s.caller.NewBatch()
	if err := b.AddCall(method, args, callID); err != nil {
		return nil, err
	}
	return s.caller.Do(ctx, b)
}

// PollChanges issues */changes calls from sinceState until the server
// reports no more changes. Each round is passed to opts.Apply and then
// opts.Checkpoint before the next is requested. On error the delta of the
// rounds already applied is returned with it.
func (s *Synchronizer) PollChanges(ctx context.Context, entity schema.EntityName, accountID, sinceState string, opts ChangesOptions) (*ChangeDelta, error) {
	ctx, span := tracing.StartSyncSpan(ctx, string(entity), accountID, tracing.JMAPState(sinceState))
	defer span.End()

	delta, err := s.pollChanges(ctx, entity, accountID, sinceState, opts)
	if err != nil {
		tracing.RecordError(span, err)
	}
	span.SetAttributes(tracing.JMAPState(delta.NewState))
	return delta, err
}

func (s *Synchronizer) pollChanges(ctx context.Context, entity schema.EntityName, accountID, sinceState string, opts ChangesOptions) (*ChangeDelta, error) {
	delta := newChangeDelta(sinceState)

	m, err := s.method(entity, schema.FamilyChanges)
	if err != nil {
		return delta, err
	}
	maxIterations := opts.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	state := sinceState
	for round := 1; ; round++ {
		args := map[string]any{"sinceState": state}
		if accountID != "" {
			args["accountId"] = accountID
		}
		if opts.MaxChanges > 0 {
			args["maxChanges"] = opts.MaxChanges
		}

		rs, err := s.call(ctx, m.Name, args)
		if err != nil {
			return delta, err
		}
		resp, err := rs.Changes(callID)
		if err != nil {
			return delta, methodError(err)
		}

		// destroy wins within a round too
		resp.Created = withoutDestroyed(resp.Created, resp.Destroyed)
		resp.Updated = withoutDestroyed(resp.Updated, resp.Destroyed)

		if opts.Apply != nil {
			if err := opts.Apply(ctx, resp.Created, resp.Updated, resp.Destroyed); err != nil {
				return delta, fmt.Errorf("failed to apply changes from %s: %w", state, err)
			}
		}
		if opts.Checkpoint != nil {
			if err := opts.Checkpoint(ctx, state, resp.NewState); err != nil {
				return delta, err
			}
		}
		delta.merge(resp)

		s.logger.DebugContext(ctx, "Applied changes",
			slog.String("entity", string(entity)),
			slog.String("account_id", accountID),
			slog.String("old_state", state),
			slog.String("new_state", resp.NewState),
			slog.Int("created", len(resp.Created)),
			slog.Int("updated", len(resp.Updated)),
			slog.Int("destroyed", len(resp.Destroyed)),
		)

		state = resp.NewState
		if !resp.HasMoreChanges {
			return delta, nil
		}
		if round >= maxIterations {
			return delta, &TooManyIterationsError{Iterations: round, State: state}
		}
	}
}

// FetchState returns the current state of an entity type without fetching
// any objects
func (s *Synchronizer) FetchState(ctx context.Context, entity schema.EntityName, accountID string) (string, error) {
	m, err := s.method(entity, schema.FamilyGet)
	if err != nil {
		return "", err
	}
	args := map[string]any{"ids": []string{}}
	if accountID != "" {
		args["accountId"] = accountID
	}
	rs, err := s.call(ctx, m.Name, args)
	if err != nil {
		return "", err
	}
	resp, err := rs.Get(callID)
	if err != nil {
		return "", err
	}
	return resp.State, nil
}
