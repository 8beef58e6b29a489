package schema

import (
	"sort"
	"strings"

	"github.com/jarrod-lowe/jmap-client-core/pkg/jmap"
)

// Registry holds the entity property tables and the method table
type Registry struct {
	entities map[EntityName]*Entity
	methods  map[jmap.MethodName]Method
}

// NewRegistry creates a registry populated with the mail entities and methods
func NewRegistry() *Registry {
	r := &Registry{
		entities: make(map[EntityName]*Entity),
		methods:  make(map[jmap.MethodName]Method),
	}
	for _, e := range defaultEntities() {
		r.AddEntity(e)
	}
	for _, m := range defaultMethods() {
		r.AddMethod(m)
	}
	return r
}

// AddEntity registers (or replaces) an entity table
func (r *Registry) AddEntity(e Entity) {
	e.index = make(map[string]Field, len(e.Fields))
	for _, f := range e.Fields {
		e.index[f.Name] = f
	}
	r.entities[e.Name] = &e
}

// AddMethod registers (or replaces) a method
func (r *Registry) AddMethod(m Method) {
	r.methods[m.Name] = m
}

// Entity returns the table for an entity, or nil if unknown
func (r *Registry) Entity(name EntityName) *Entity {
	return r.entities[name]
}

// Method returns the description of a method, or nil if unknown
func (r *Registry) Method(name jmap.MethodName) *Method {
	m, ok := r.methods[name]
	if !ok {
		return nil
	}
	return &m
}

// MethodFor returns the method of the given family for an entity, or nil
func (r *Registry) MethodFor(entity EntityName, family Family) *Method {
	return r.Method(jmap.MethodName(string(entity) + "/" + string(family)))
}

// Using returns the capability URIs needed by a set of methods: core first,
// then the rest sorted.
func (r *Registry) Using(methods []jmap.MethodName) []string {
	seen := map[string]bool{jmap.CapabilityCore: true}
	var extra []string
	for _, name := range methods {
		m, ok := r.methods[name]
		if !ok || seen[m.Capability] {
			continue
		}
		seen[m.Capability] = true
		extra = append(extra, m.Capability)
	}
	sort.Strings(extra)
	return append([]string{jmap.CapabilityCore}, extra...)
}

// ValidateProjection checks a "properties" list of a get call
func (r *Registry) ValidateProjection(entity EntityName, properties []string) error {
	e := r.entities[entity]
	if e == nil {
		return nil
	}
	var bad []string
	for _, p := range properties {
		if _, ok := e.Field(p); !ok {
			bad = append(bad, p)
		}
	}
	if len(bad) > 0 {
		return &InvalidPropertiesError{Entity: entity, Properties: bad, Description: "unknown properties"}
	}
	return nil
}

// ValidateCreate checks the properties of an object in a create map
func (r *Registry) ValidateCreate(entity EntityName, obj map[string]any) error {
	e := r.entities[entity]
	if e == nil {
		return nil
	}
	var bad []string
	for _, name := range sortedKeys(obj) {
		f, ok := e.Field(name)
		if !ok || f.Mutability == ServerSet {
			bad = append(bad, name)
		}
	}
	if len(bad) > 0 {
		return &InvalidPropertiesError{Entity: entity, Properties: bad, Description: "unknown or server-set properties in create"}
	}
	return nil
}

// ValidateUpdate checks a patch object. Patch paths ("keywords/$seen") are
// checked on their first segment.
func (r *Registry) ValidateUpdate(entity EntityName, patch map[string]any) error {
	e := r.entities[entity]
	if e == nil {
		return nil
	}
	var bad []string
	for _, path := range sortedKeys(patch) {
		name, _, _ := strings.Cut(path, "/")
		f, ok := e.Field(name)
		if !ok || f.Mutability != Mutable {
			bad = append(bad, path)
		}
	}
	if len(bad) > 0 {
		return &InvalidPropertiesError{Entity: entity, Properties: bad, Description: "unknown, immutable or server-set properties in update"}
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
