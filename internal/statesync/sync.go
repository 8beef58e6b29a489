package statesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jarrod-lowe/jmap-client-core/internal/schema"
)

// Key identifies a stored state token: an entity type of an account, or a
// query over it when Query is set
type Key struct {
	AccountID string
	Entity    schema.EntityName
	// Query is a QueryArgs signature, empty for entity states
	Query string
}

func (k Key) String() string {
	if k.Query == "" {
		return k.AccountID + "/" + string(k.Entity)
	}
	return k.AccountID + "/" + string(k.Entity) + "/" + k.Query
}

// TokenStore persists state tokens. CompareAndSwapState must fail with an
// error wrapping ErrStateConflict when the stored value is not oldState;
// an empty oldState means no token may exist yet.
type TokenStore interface {
	GetState(ctx context.Context, key Key) (state string, found bool, err error)
	CompareAndSwapState(ctx context.Context, key Key, oldState, newState string) error
}

var errNoTokenStore = errors.New("no token store configured")

// SyncChanges brings the cache for key up to date. Syncs of the same key
// are serialized in this process, and the stored token is advanced with a
// compare-and-swap after every applied round so concurrent writers in other
// processes are detected. With no stored token the current state becomes
// the baseline and the returned delta has Baseline set.
func (s *Synchronizer) SyncChanges(ctx context.Context, key Key, opts ChangesOptions) (*ChangeDelta, error) {
	if s.tokens == nil {
		return nil, errNoTokenStore
	}
	unlock, err := s.locks.Lock(ctx, key.String())
	if err != nil {
		return nil, err
	}
	defer unlock()

	since, found, err := s.tokens.GetState(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read state for %s: %w", key, err)
	}
	if !found {
		state, err := s.FetchState(ctx, key.Entity, key.AccountID)
		if err != nil {
			return nil, err
		}
		if err := s.tokens.CompareAndSwapState(ctx, key, "", state); err != nil {
			return nil, err
		}
		s.logger.InfoContext(ctx, "Stored baseline state",
			slog.String("key", key.String()),
			slog.String("state", state),
		)
		delta := newChangeDelta("")
		delta.NewState = state
		delta.Baseline = true
		return delta, nil
	}

	checkpoint := opts.Checkpoint
	opts.Checkpoint = func(ctx context.Context, oldState, newState string) error {
		if checkpoint != nil {
			if err := checkpoint(ctx, oldState, newState); err != nil {
				return err
			}
		}
		if oldState == newState {
			return nil
		}
		return s.tokens.CompareAndSwapState(ctx, key, oldState, newState)
	}

	delta, err := s.PollChanges(ctx, key.Entity, key.AccountID, since, opts)
	if err != nil {
		s.logger.WarnContext(ctx, "Sync stopped",
			slog.String("key", key.String()),
			slog.String("state", delta.NewState),
			slog.Int("rounds", delta.Rounds),
			slog.String("error", err.Error()),
		)
		return delta, err
	}
	return delta, nil
}

// SyncQueryChanges is SyncChanges for a cached query. The stored token is
// keyed by the query's signature.
func (s *Synchronizer) SyncQueryChanges(ctx context.Context, query QueryArgs, opts QueryChangesOptions) (*QueryDelta, error) {
	if s.tokens == nil {
		return nil, errNoTokenStore
	}
	key := Key{AccountID: query.AccountID, Entity: query.Entity, Query: query.Signature()}
	unlock, err := s.locks.Lock(ctx, key.String())
	if err != nil {
		return nil, err
	}
	defer unlock()

	since, found, err := s.tokens.GetState(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read query state for %s: %w", key, err)
	}
	if !found {
		state, err := s.FetchQueryState(ctx, query)
		if err != nil {
			return nil, err
		}
		if err := s.tokens.CompareAndSwapState(ctx, key, "", state); err != nil {
			return nil, err
		}
		return &QueryDelta{NewQueryState: state, Baseline: true}, nil
	}

	delta, err := s.PollQueryChanges(ctx, query, since, opts)
	if err != nil {
		return nil, err
	}
	if delta.NewQueryState != since {
		if err := s.tokens.CompareAndSwapState(ctx, key, since, delta.NewQueryState); err != nil {
			return nil, err
		}
	}
	return delta, nil
}
