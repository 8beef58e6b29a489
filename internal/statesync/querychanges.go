package statesync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"maps"

	"github.com/jarrod-lowe/jmap-client-core/internal/schema"
	"github.com/jarrod-lowe/jmap-client-core/internal/tracing"
	"github.com/jarrod-lowe/jmap-client-core/pkg/jmap"
)

// QueryArgs identifies a query whose results are cached
type QueryArgs struct {
	Entity    schema.EntityName
	AccountID string
	Filter    any
	Sort      []jmap.Comparator
	// Extra holds entity-specific arguments such as collapseThreads
	Extra map[string]any
}

func (q QueryArgs) args() map[string]any {
	args := make(map[string]any, len(q.Extra)+3)
	maps.Copy(args, q.Extra)
	if q.AccountID != "" {
		args["accountId"] = q.AccountID
	}
	if q.Filter != nil {
		args["filter"] = q.Filter
	}
	if len(q.Sort) > 0 {
		args["sort"] = q.Sort
	}
	return args
}

// Signature identifies the query independent of account and state, for
// keying stored query states
func (q QueryArgs) Signature() string {
	body, err := json.Marshal(map[string]any{
		"entity": q.Entity,
		"filter": q.Filter,
		"sort":   q.Sort,
		"extra":  q.Extra,
	})
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:16])
}

// QueryChangesOptions configures a queryChanges call
type QueryChangesOptions struct {
	MaxChanges     int
	UpToID         string
	CalculateTotal bool
	// Apply receives the removed ids and added items
	Apply func(ctx context.Context, removed []string, added []jmap.AddedItem) error
}

// PollQueryChanges issues one */queryChanges call. The protocol has no
// paging here: a delta larger than maxChanges is ErrTooManyChanges.
func (s *Synchronizer) PollQueryChanges(ctx context.Context, query QueryArgs, sinceQueryState string, opts QueryChangesOptions) (*QueryDelta, error) {
	ctx, span := tracing.StartSyncSpan(ctx, string(query.Entity), query.AccountID, tracing.JMAPState(sinceQueryState))
	defer span.End()

	delta, err := s.pollQueryChanges(ctx, query, sinceQueryState, opts)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	return delta, nil
}

func (s *Synchronizer) pollQueryChanges(ctx context.Context, query QueryArgs, sinceQueryState string, opts QueryChangesOptions) (*QueryDelta, error) {
	m, err := s.method(query.Entity, schema.FamilyQueryChanges)
	if err != nil {
		return nil, err
	}

	args := query.args()
	args["sinceQueryState"] = sinceQueryState
	if opts.MaxChanges > 0 {
		args["maxChanges"] = opts.MaxChanges
	}
	if opts.UpToID != "" {
		args["upToId"] = opts.UpToID
	}
	if opts.CalculateTotal {
		args["calculateTotal"] = true
	}

	rs, err := s.call(ctx, m.Name, args)
	if err != nil {
		return nil, err
	}
	resp, err := rs.QueryChanges(callID)
	if err != nil {
		return nil, methodError(err)
	}

	delta := &QueryDelta{
		OldQueryState: resp.OldQueryState,
		NewQueryState: resp.NewQueryState,
		Removed:       resp.Removed,
		Added:         resp.Added,
		Total:         resp.Total,
	}
	if opts.Apply != nil {
		if err := opts.Apply(ctx, delta.Removed, delta.Added); err != nil {
			return nil, err
		}
	}
	return delta, nil
}

// FetchQueryState returns the current query state without fetching ids
func (s *Synchronizer) FetchQueryState(ctx context.Context, query QueryArgs) (string, error) {
	m, err := s.method(query.Entity, schema.FamilyQuery)
	if err != nil {
		return "", err
	}
	args := query.args()
	args["limit"] = 0
	rs, err := s.call(ctx, m.Name, args)
	if err != nil {
		return "", err
	}
	resp, err := rs.Query(callID)
	if err != nil {
		return "", err
	}
	return resp.QueryState, nil
}
