package schema

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jarrod-lowe/jmap-client-core/pkg/jmap"
)

// EntityName names a JMAP data type
type EntityName string

// Known entity types
const (
	Mailbox         EntityName = "Mailbox"
	Email           EntityName = "Email"
	Thread          EntityName = "Thread"
	Identity        EntityName = "Identity"
	EmailSubmission EntityName = "EmailSubmission"
	Blob            EntityName = "Blob"
)

// TypeTag is the wire type of a property
type TypeTag string

const (
	TypeID         TypeTag = "Id"
	TypeString     TypeTag = "String"
	TypeUnsigned   TypeTag = "UnsignedInt"
	TypeBoolean    TypeTag = "Boolean"
	TypeUTCDate    TypeTag = "UTCDate"
	TypeDate       TypeTag = "Date"
	TypeIDSet      TypeTag = "Id[Boolean]"
	TypeIDList     TypeTag = "Id[]"
	TypeStringList TypeTag = "String[]"
	TypeObject     TypeTag = "Object"
	TypeObjectList TypeTag = "Object[]"
	TypeStringMap  TypeTag = "String[Object]"
)

// Mutability says who may set a property and when
type Mutability int

const (
	// Mutable properties may be set on create and update
	Mutable Mutability = iota
	// Immutable properties may only be set on create
	Immutable
	// ServerSet properties are never accepted from the client
	ServerSet
)

func (m Mutability) String() string {
	switch m {
	case Mutable:
		return "mutable"
	case Immutable:
		return "immutable"
	case ServerSet:
		return "server-set"
	}
	return fmt.Sprintf("Mutability(%d)", int(m))
}

// Field describes one property of an entity
type Field struct {
	Name       string
	Type       TypeTag
	Mutability Mutability
}

// Entity is the property table of a data type
type Entity struct {
	Name   EntityName
	Fields []Field
	// DynamicPrefixes lists property name prefixes accepted in addition to
	// Fields (e.g. "header:" on Email). Such properties are immutable.
	DynamicPrefixes []string

	index map[string]Field
}

// Field looks up a property, including dynamic ones
func (e *Entity) Field(name string) (Field, bool) {
	if f, ok := e.index[name]; ok {
		return f, true
	}
	for _, prefix := range e.DynamicPrefixes {
		if strings.HasPrefix(name, prefix) && len(name) > len(prefix) {
			return Field{Name: name, Type: TypeString, Mutability: Immutable}, true
		}
	}
	return Field{}, false
}

// Family is the standard method pattern a method follows
type Family string

const (
	FamilyGet          Family = "get"
	FamilyChanges      Family = "changes"
	FamilySet          Family = "set"
	FamilyQuery        Family = "query"
	FamilyQueryChanges Family = "queryChanges"
	FamilyImport       Family = "import"
)

// Mutating reports whether calls of this family change server state
func (f Family) Mutating() bool {
	return f == FamilySet || f == FamilyImport
}

// Method describes a supported method
type Method struct {
	Name       jmap.MethodName
	Entity     EntityName
	Family     Family
	Capability string
	// Required argument names; a present key satisfies the requirement even
	// when its value is null, unless listed in NonNull.
	Required []string
	NonNull  []string
	// Implicit names responses the server may add under the same call id
	Implicit []jmap.MethodName
}

// RespondsAs reports whether a response named name can answer this method
func (m *Method) RespondsAs(name jmap.MethodName) bool {
	return name == m.Name || slices.Contains(m.Implicit, name)
}

// InvalidPropertiesError reports property names that are unknown or not
// settable by the client
type InvalidPropertiesError struct {
	Entity      EntityName
	Properties  []string
	Description string
}

func (e *InvalidPropertiesError) Error() string {
	return fmt.Sprintf("%s: %s %s: %s", jmap.ErrorInvalidProperties, e.Entity, strings.Join(e.Properties, ", "), e.Description)
}
