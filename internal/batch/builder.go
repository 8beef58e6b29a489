// Package batch assembles method calls into a single validated JMAP request.
package batch

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jarrod-lowe/jmap-client-core/internal/creationid"
	"github.com/jarrod-lowe/jmap-client-core/internal/resultref"
	"github.com/jarrod-lowe/jmap-client-core/internal/schema"
	"github.com/jarrod-lowe/jmap-client-core/pkg/jmap"
)

// AccountResolver supplies the default account id for a capability.
// *jmap.Session satisfies it through its primaryAccounts.
type AccountResolver interface {
	AccountIDFor(capability string) (string, bool)
}

// StaticAccounts maps capability URIs to default account ids
type StaticAccounts map[string]string

// AccountIDFor implements AccountResolver
func (s StaticAccounts) AccountIDFor(capability string) (string, bool) {
	id, ok := s[capability]
	return id, ok && id != ""
}

// Option configures a Builder
type Option func(*Builder)

// WithTracker resolves creation placeholders not created within the batch
// against ids returned by earlier batches
func WithTracker(t *creationid.Tracker) Option {
	return func(b *Builder) {
		b.tracker = t
	}
}

// WithPriorResults resolves references to call ids of an earlier batch
// client-side, since they cannot be expressed on the wire
func WithPriorResults(lookup resultref.Lookup) Option {
	return func(b *Builder) {
		b.prior = lookup
	}
}

// WithMaxCalls limits the number of calls, typically to the session's
// maxCallsInRequest. Zero means no limit.
func WithMaxCalls(n int) Option {
	return func(b *Builder) {
		b.maxCalls = n
	}
}

// Builder collects method calls for one request
type Builder struct {
	registry *schema.Registry
	accounts AccountResolver
	tracker  *creationid.Tracker
	prior    resultref.Lookup
	maxCalls int

	calls   []jmap.Invocation
	methods []*schema.Method
	seen    map[string]bool
	err     error
}

// New creates a Builder. accounts may be nil if every call names its account.
func New(registry *schema.Registry, accounts AccountResolver, opts ...Option) *Builder {
	if registry == nil {
		registry = schema.NewRegistry()
	}
	b := &Builder{
		registry: registry,
		accounts: accounts,
		seen:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewCallID returns a fresh call id
func NewCallID() string {
	return uuid.New().String()
}

// AddCall appends a method call. A failed call is not added, and the first
// failure is also returned by Build.
func (b *Builder) AddCall(method jmap.MethodName, args map[string]any, callID string) error {
	if b.seen[callID] {
		return b.fail(newValidationError(ErrDuplicateCallID, callID, "call id is already used in this batch"))
	}
	m := b.registry.Method(method)
	if m == nil {
		return b.fail(newValidationError(ErrUnknownMethod, callID, fmt.Sprintf("unknown method %s", method)))
	}
	if args == nil {
		args = map[string]any{}
	}
	b.seen[callID] = true
	b.calls = append(b.calls, jmap.Invocation{Name: method, Args: args, CallID: callID})
	b.methods = append(b.methods, m)
	return nil
}

// Len returns the number of calls added
func (b *Builder) Len() int {
	return len(b.calls)
}

func (b *Builder) fail(err *ValidationError) error {
	if b.err == nil {
		b.err = err
	}
	return err
}

// Build validates the calls and produces the request. Arguments are copied,
// never modified in place.
func (b *Builder) Build() (*Batch, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.calls) == 0 {
		return nil, newValidationError(ErrEmptyBatch, "", "no method calls")
	}
	if b.maxCalls > 0 && len(b.calls) > b.maxCalls {
		return nil, newValidationError(ErrTooManyCalls, "", fmt.Sprintf("%d calls exceeds the limit of %d", len(b.calls), b.maxCalls))
	}

	g := newGraph(b.calls, b.methods)
	methodCalls := make([]jmap.Invocation, len(b.calls))
	names := make([]jmap.MethodName, len(b.calls))
	for i, call := range b.calls {
		args, err := b.prepare(g, i)
		if err != nil {
			return nil, err
		}
		methodCalls[i] = jmap.Invocation{Name: call.Name, Args: args, CallID: call.CallID}
		names[i] = call.Name
	}

	batch := &Batch{
		Request: jmap.Request{
			Using:       b.registry.Using(names),
			MethodCalls: methodCalls,
		},
		Calls: make([]Call, len(methodCalls)),
		index: make(map[string]int, len(methodCalls)),
	}
	for i, inv := range methodCalls {
		call := newCall(inv, b.methods[i])
		for _, dep := range g.deps[i] {
			call.DependsOn = append(call.DependsOn, b.calls[dep].CallID)
		}
		batch.Calls[i] = call
		batch.index[inv.CallID] = i
	}
	return batch, nil
}

// prepare validates one call and returns its wire arguments
func (b *Builder) prepare(g *graph, pos int) (map[string]any, error) {
	call := b.calls[pos]
	m := b.methods[pos]

	if err := checkRequired(m, call); err != nil {
		return nil, err
	}
	if err := b.validateProperties(m, call); err != nil {
		return nil, err
	}

	args, err := b.rewriteObject(g, pos, m.Entity, call.Args, slotValue)
	if err != nil {
		return nil, err
	}

	if v, ok := args["accountId"]; !ok || v == nil {
		accountID, found := "", false
		if b.accounts != nil {
			accountID, found = b.accounts.AccountIDFor(m.Capability)
		}
		if !found {
			return nil, newValidationError(ErrNoDefaultAccount, call.CallID, fmt.Sprintf("no default account for %s", m.Capability))
		}
		args["accountId"] = accountID
	}
	return args, nil
}

func checkRequired(m *schema.Method, call jmap.Invocation) error {
	for _, name := range m.Required {
		v, ok := call.Args[name]
		if !ok {
			return newValidationError(ErrMissingRequiredArgument, call.CallID, fmt.Sprintf("%s requires argument %s", m.Name, name))
		}
		if v == nil && slices.Contains(m.NonNull, name) {
			return newValidationError(ErrMissingRequiredArgument, call.CallID, fmt.Sprintf("%s argument %s must not be null", m.Name, name))
		}
	}
	return nil
}

func (b *Builder) validateProperties(m *schema.Method, call jmap.Invocation) error {
	wrap := func(err error) error {
		if err == nil {
			return nil
		}
		return &ValidationError{Kind: ErrInvalidProperties, CallID: call.CallID, Description: err.Error(), Err: err}
	}

	switch m.Family {
	case schema.FamilyGet:
		if props, ok := stringList(call.Args["properties"]); ok {
			return wrap(b.registry.ValidateProjection(m.Entity, props))
		}
	case schema.FamilySet:
		if create, ok := call.Args["create"].(map[string]any); ok {
			for _, key := range slices.Sorted(maps.Keys(create)) {
				if obj, ok := create[key].(map[string]any); ok {
					if err := b.registry.ValidateCreate(m.Entity, obj); err != nil {
						return wrap(err)
					}
				}
			}
		}
		if err := b.validatePatches(m.Entity, call.Args["update"]); err != nil {
			return wrap(err)
		}
		if m.Name == jmap.EmailSubmissionSet {
			return wrap(b.validatePatches(schema.Email, call.Args["onSuccessUpdateEmail"]))
		}
	}
	return nil
}

func (b *Builder) validatePatches(entity schema.EntityName, value any) error {
	patches, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	for _, id := range slices.Sorted(maps.Keys(patches)) {
		if patch, ok := patches[id].(map[string]any); ok {
			if err := b.registry.ValidateUpdate(entity, patch); err != nil {
				return err
			}
		}
	}
	return nil
}

// slot is what the position of a value says about its contents
type slot int

const (
	slotValue  slot = iota // literal data; members are classified by name
	slotID                 // an id, a list of ids, or a set keyed by id
	slotKeyed              // a map keyed by creation keys
	slotUpdate             // a map of patch objects keyed by id
	slotPatch              // a patch object keyed by property path
)

// argumentSlots classifies method arguments and filter conditions that the
// entity tables do not describe
var argumentSlots = map[string]slot{
	"ids":                   slotID,
	"destroy":               slotID,
	"anchor":                slotID,
	"upToId":                slotID,
	"inMailbox":             slotID,
	"inMailboxOtherThan":    slotID,
	"onSuccessDestroyEmail": slotID,
	"create":                slotKeyed,
	"emails":                slotKeyed,
	"update":                slotUpdate,
	"onSuccessUpdateEmail":  slotUpdate,
}

// slotFor classifies the member name of an entity or argument object
func (b *Builder) slotFor(entity schema.EntityName, name string) slot {
	if s, ok := argumentSlots[name]; ok {
		return s
	}
	if e := b.registry.Entity(entity); e != nil {
		if f, ok := e.Field(name); ok {
			switch f.Type {
			case schema.TypeID, schema.TypeIDList, schema.TypeIDSet:
				return slotID
			}
			return slotValue
		}
	}
	if strings.HasSuffix(name, "Id") || strings.HasSuffix(name, "Ids") {
		return slotID
	}
	return slotValue
}

// childSlot is the slot of member key of an object in slot s
func (b *Builder) childSlot(entity schema.EntityName, key string, s slot) slot {
	switch s {
	case slotID, slotKeyed:
		return slotValue
	case slotUpdate:
		return slotPatch
	case slotPatch:
		path := strings.Split(key, "/")
		if len(path) > 1 && b.slotFor(entity, path[len(path)-2]) == slotID {
			return slotValue
		}
		return b.slotFor(entity, path[len(path)-1])
	}
	return b.slotFor(entity, key)
}

// rewriteKey substitutes creation placeholders in a member name when the
// object is keyed by id, or in the id segments of a patch path
func (b *Builder) rewriteKey(g *graph, pos int, entity schema.EntityName, key string, s slot) (string, error) {
	switch s {
	case slotID, slotUpdate:
		return b.rewritePlaceholder(g, pos, key)
	case slotPatch:
		path := strings.Split(key, "/")
		for i := 1; i < len(path); i++ {
			if b.slotFor(entity, path[i-1]) != slotID {
				continue
			}
			id, err := b.rewritePlaceholder(g, pos, path[i])
			if err != nil {
				return "", err
			}
			path[i] = id
		}
		return strings.Join(path, "/"), nil
	}
	return key, nil
}

// rewrite walks a value depth-first. It validates result references and
// the creation placeholders found in id positions, and substitutes the
// ones that can only be resolved client-side. omit is set when the value
// resolved to null and its member should be dropped.
func (b *Builder) rewrite(g *graph, pos int, entity schema.EntityName, value any, inArray bool, s slot) (result any, omit bool, err error) {
	switch v := value.(type) {
	case jmap.ResultReference:
		return b.rewriteReference(g, pos, v, inArray)
	case *jmap.ResultReference:
		if v == nil {
			return nil, false, nil
		}
		return b.rewriteReference(g, pos, *v, inArray)
	case jmap.FilterOperator:
		return b.rewrite(g, pos, entity, v.Args(), inArray, slotValue)
	case *jmap.FilterOperator:
		if v == nil {
			return nil, false, nil
		}
		return b.rewrite(g, pos, entity, v.Args(), inArray, slotValue)
	case string:
		if s != slotID {
			return v, false, nil
		}
		id, err := b.rewritePlaceholder(g, pos, v)
		return id, false, err
	case []string:
		out := make([]string, len(v))
		for i, item := range v {
			out[i] = item
			if s != slotID {
				continue
			}
			id, err := b.rewritePlaceholder(g, pos, item)
			if err != nil {
				return nil, false, err
			}
			out[i] = id
		}
		return out, false, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			r, _, err := b.rewrite(g, pos, entity, item, true, s)
			if err != nil {
				return nil, false, err
			}
			out[i] = r
		}
		return out, false, nil
	case map[string]any:
		m, err := b.rewriteObject(g, pos, entity, v, s)
		return m, false, err
	case map[string]bool:
		out := make(map[string]bool, len(v))
		for _, key := range slices.Sorted(maps.Keys(v)) {
			newKey, err := b.rewriteKey(g, pos, entity, key, s)
			if err != nil {
				return nil, false, err
			}
			out[newKey] = v[key]
		}
		return out, false, nil
	default:
		if holdsReference(reflect.ValueOf(value)) {
			return nil, false, newValidationError(ErrInvalidResultReference, b.calls[pos].CallID,
				fmt.Sprintf("result reference inside %T; use map[string]any or []any", value))
		}
		return value, false, nil
	}
}

func (b *Builder) rewriteObject(g *graph, pos int, entity schema.EntityName, obj map[string]any, s slot) (map[string]any, error) {
	out := make(map[string]any, len(obj))
	for _, key := range slices.Sorted(maps.Keys(obj)) {
		newKey, err := b.rewriteKey(g, pos, entity, key, s)
		if err != nil {
			return nil, err
		}
		childEntity := entity
		if key == "onSuccessUpdateEmail" {
			childEntity = schema.Email
		}
		value, omit, err := b.rewrite(g, pos, childEntity, obj[key], false, b.childSlot(entity, key, s))
		if err != nil {
			return nil, err
		}
		if omit {
			continue
		}
		out[newKey] = value
	}
	return out, nil
}

var referenceType = reflect.TypeFor[jmap.ResultReference]()

// holdsReference reports whether a result reference is reachable inside a
// typed value, where it could not be emitted under its "#" member name
func holdsReference(v reflect.Value) bool {
	if !v.IsValid() {
		return false
	}
	if v.Type() == referenceType {
		return true
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		return !v.IsNil() && holdsReference(v.Elem())
	case reflect.Struct:
		for i := range v.NumField() {
			if holdsReference(v.Field(i)) {
				return true
			}
		}
	case reflect.Slice, reflect.Array:
		for i := range v.Len() {
			if holdsReference(v.Index(i)) {
				return true
			}
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if holdsReference(iter.Value()) {
				return true
			}
		}
	}
	return false
}

func (b *Builder) rewriteReference(g *graph, pos int, ref jmap.ResultReference, inArray bool) (any, bool, error) {
	callID := b.calls[pos].CallID

	inBatch, err := g.checkReference(pos, ref)
	if err != nil {
		return nil, false, err
	}
	if inBatch {
		if inArray {
			return nil, false, newValidationError(ErrInvalidResultReference, callID, "a result reference cannot be an array element")
		}
		return ref, false, nil
	}

	if b.prior != nil {
		if _, ok := b.prior.Response(ref.ResultOf); ok {
			resolved, err := resultref.Resolve(ref, b.prior)
			if err != nil {
				return nil, false, &ValidationError{Kind: ErrInvalidResultReference, CallID: callID, Description: err.Error(), Err: err}
			}
			return resolved, resolved == nil && !inArray, nil
		}
	}
	return nil, false, newValidationError(ErrUnknownCallID, callID, fmt.Sprintf("no call with id %s", ref.ResultOf))
}

func (b *Builder) rewritePlaceholder(g *graph, pos int, s string) (string, error) {
	key, ok := jmap.CreationKey(s)
	if !ok {
		return s, nil
	}
	inBatch, err := g.checkPlaceholder(pos, key)
	if err != nil || inBatch {
		return s, err
	}
	if b.tracker == nil || !b.tracker.Known(key) {
		return s, nil
	}
	id, err := b.tracker.Resolve(key)
	if err != nil {
		return "", &ValidationError{Kind: ErrNotYetResolved, CallID: b.calls[pos].CallID, Description: err.Error(), Err: err}
	}
	return id, nil
}
