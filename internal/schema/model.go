package schema

import (
	"fmt"
	"sort"
)

// Kind classifies an attribute.
type Kind int

const (
	KindScalar Kind = iota
	KindEmbedded
	KindToOne
	KindToMany
	KindElementCollection
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindEmbedded:
		return "embedded"
	case KindToOne:
		return "toOne"
	case KindToMany:
		return "toMany"
	case KindElementCollection:
		return "elementCollection"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// IsRelation reports whether k references another entity type.
func (k Kind) IsRelation() bool {
	return k == KindToOne || k == KindToMany
}

// ScalarFamily is the closed set of value families a scalar column can hold.
// The predicate builder switches over it exhaustively.
type ScalarFamily int

const (
	FamilyNone ScalarFamily = iota
	FamilyString
	FamilyInteger
	FamilyFloat
	FamilyDate
	FamilyBoolean
	FamilyEnum
	FamilyUUID
)

var familyNames = map[ScalarFamily]string{
	FamilyString:  "string",
	FamilyInteger: "integer",
	FamilyFloat:   "float",
	FamilyDate:    "date",
	FamilyBoolean: "boolean",
	FamilyEnum:    "enum",
	FamilyUUID:    "uuid",
}

func (f ScalarFamily) String() string {
	if name, ok := familyNames[f]; ok {
		return name
	}
	return "none"
}

// ParseFamily maps a type name ("string", "integer", ...) to its family.
// "int", "bool" and "number" are accepted as aliases.
func ParseFamily(name string) (ScalarFamily, bool) {
	switch name {
	case "string", "text":
		return FamilyString, true
	case "integer", "int":
		return FamilyInteger, true
	case "float", "number":
		return FamilyFloat, true
	case "date":
		return FamilyDate, true
	case "boolean", "bool":
		return FamilyBoolean, true
	case "enum":
		return FamilyEnum, true
	case "uuid":
		return FamilyUUID, true
	default:
		return FamilyNone, false
	}
}

// DefaultDateLayout is used for date attributes that declare no layout.
const DefaultDateLayout = "2006-01-02"

// JoinTable maps a many-to-many relation through an association table.
// OwnerColumns reference the owner identity, TargetColumns the target identity.
type JoinTable struct {
	Name          string
	OwnerColumns  []string
	TargetColumns []string
}

// Attribute is one declared field of an entity type or embeddable.
type Attribute struct {
	Name     string
	Kind     Kind
	Family   ScalarFamily
	Target   string // entity name for relations, embeddable name for KindEmbedded
	Optional bool

	// Column is the value column of a scalar or element collection.
	Column string

	// Columns are the foreign key columns of an owner-side to-one relation,
	// positionally matching the target identity.
	Columns []string

	// MappedBy names the owning attribute on the target for inverse to-one
	// and to-many relations.
	MappedBy string

	JoinTable *JoinTable

	CollectionTable string
	CollectionKey   []string

	EnumValues []string
	Layout     string

	links []Link
}

// Links returns the join steps from the owner table to the target table
// (or collection table). Many-to-many relations have two steps.
// Populated by New; nil for scalars and embedded attributes.
func (a *Attribute) Links() []Link {
	return a.links
}

// OwnsForeignKey reports whether a to-one relation stores its foreign key
// on the owner table.
func (a *Attribute) OwnsForeignKey() bool {
	return a.Kind == KindToOne && len(a.Columns) > 0
}

// HasEnumValue reports whether v is one of the declared enum values.
func (a *Attribute) HasEnumValue(v string) bool {
	for _, ev := range a.EnumValues {
		if ev == v {
			return true
		}
	}
	return false
}

// Link is one join step: Table is joined ON left.LeftColumns[i] = Table.RightColumns[i].
type Link struct {
	Table        string
	LeftColumns  []string
	RightColumns []string
}

// EntityType is a table with an optional identity and ordered attributes.
type EntityType struct {
	Name       string
	Table      string
	IdentityOf []string // identity attribute names; empty when the type has none
	Attributes []*Attribute

	index map[string]*Attribute
}

// Attribute looks up a declared attribute by name.
func (e *EntityType) Attribute(name string) (*Attribute, bool) {
	a, ok := e.index[name]
	return a, ok
}

// HasIdentity reports whether the type declares identity attributes.
func (e *EntityType) HasIdentity() bool {
	return len(e.IdentityOf) > 0
}

// Identity returns the identity attributes in declaration order.
func (e *EntityType) Identity() []*Attribute {
	out := make([]*Attribute, 0, len(e.IdentityOf))
	for _, name := range e.IdentityOf {
		if a, ok := e.index[name]; ok {
			out = append(out, a)
		}
	}
	return out
}

// IdentityColumns returns the identity column names.
func (e *EntityType) IdentityColumns() []string {
	ids := e.Identity()
	cols := make([]string, len(ids))
	for i, a := range ids {
		cols[i] = a.Column
	}
	return cols
}

// Embeddable is a group of scalar attributes stored on the owner's table.
type Embeddable struct {
	Name       string
	Attributes []*Attribute

	index map[string]*Attribute
}

// Attribute looks up a declared attribute by name.
func (e *Embeddable) Attribute(name string) (*Attribute, bool) {
	a, ok := e.index[name]
	return a, ok
}

// Schema is the immutable set of entity types and embeddables.
type Schema struct {
	entities    map[string]*EntityType
	embeddables map[string]*Embeddable
}

// Entity looks up an entity type by name.
func (s *Schema) Entity(name string) (*EntityType, bool) {
	e, ok := s.entities[name]
	return e, ok
}

// Embeddable looks up an embeddable by name.
func (s *Schema) Embeddable(name string) (*Embeddable, bool) {
	e, ok := s.embeddables[name]
	return e, ok
}

// Target returns the entity type a relation attribute points at.
func (s *Schema) Target(a *Attribute) (*EntityType, bool) {
	if !a.Kind.IsRelation() {
		return nil, false
	}
	return s.Entity(a.Target)
}

// Entities returns all entity types sorted by name.
func (s *Schema) Entities() []*EntityType {
	names := make([]string, 0, len(s.entities))
	for name := range s.entities {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*EntityType, len(names))
	for i, name := range names {
		out[i] = s.entities[name]
	}
	return out
}
