package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Validation error codes (E120-E139)
const (
	ErrDuplicateName       = "E120" // duplicate entity or attribute name
	ErrMissingTable        = "E121" // entity or collection table is required
	ErrInvalidIdentity     = "E122" // identity attribute unknown or not scalar
	ErrUnknownTarget       = "E123" // relation or embedded target not declared
	ErrMissingMapping      = "E124" // relation has no column, mappedBy or join table
	ErrColumnCountMismatch = "E125" // foreign key columns do not match target identity
	ErrInvalidMappedBy     = "E126" // mappedBy does not name a relation back to the owner
	ErrInvalidCollection   = "E127" // element collection missing key or value column
	ErrEnumWithoutValues   = "E128" // enum attribute declares no values
	ErrInvalidEmbeddable   = "E129" // embeddable contains a non-scalar attribute
	ErrMissingFamily       = "E130" // scalar attribute has no type
	ErrIdentityRequired    = "E131" // relation mapping needs an identity on one side
)

// ValidationError is one problem found while building a Schema.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors collects every problem found by New.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// New indexes and validates entity types and embeddables.
// Defaults are filled in place: scalar columns default to the attribute
// name and date layouts to DefaultDateLayout.
// Returns all validation errors found as ValidationErrors.
func New(entities []*EntityType, embeddables []*Embeddable) (*Schema, error) {
	b := &builder{
		schema: &Schema{
			entities:    make(map[string]*EntityType, len(entities)),
			embeddables: make(map[string]*Embeddable, len(embeddables)),
		},
	}

	for _, emb := range embeddables {
		if _, dup := b.schema.embeddables[emb.Name]; dup {
			b.add(emb.Name, ErrDuplicateName, "embeddable declared twice")
			continue
		}
		emb.index = b.indexAttributes(emb.Name, emb.Attributes)
		for _, a := range emb.Attributes {
			if a.Kind != KindScalar {
				b.add(emb.Name+"."+a.Name, ErrInvalidEmbeddable,
					fmt.Sprintf("embeddables hold scalars only, got %s", a.Kind))
			}
		}
		b.schema.embeddables[emb.Name] = emb
	}

	for _, e := range entities {
		if _, dup := b.schema.entities[e.Name]; dup {
			b.add(e.Name, ErrDuplicateName, "entity declared twice")
			continue
		}
		if e.Table == "" {
			b.add(e.Name, ErrMissingTable, "table is required")
		}
		e.index = b.indexAttributes(e.Name, e.Attributes)
		b.schema.entities[e.Name] = e
	}

	// Relations are checked once every type is indexed.
	for _, e := range sortedEntities(b.schema.entities) {
		b.checkIdentity(e)
		for _, a := range e.Attributes {
			b.checkAttribute(e, a)
		}
	}

	if len(b.errs) > 0 {
		return nil, b.errs
	}
	return b.schema, nil
}

type builder struct {
	schema *Schema
	errs   ValidationErrors
}

func (b *builder) add(field, code, msg string) {
	b.errs = append(b.errs, ValidationError{Field: field, Message: msg, Code: code})
}

func (b *builder) indexAttributes(owner string, attrs []*Attribute) map[string]*Attribute {
	index := make(map[string]*Attribute, len(attrs))
	for _, a := range attrs {
		if _, dup := index[a.Name]; dup {
			b.add(owner+"."+a.Name, ErrDuplicateName, "attribute declared twice")
			continue
		}
		if (a.Kind == KindScalar || a.Kind == KindElementCollection) && a.Column == "" {
			a.Column = a.Name
		}
		if a.Family == FamilyDate && a.Layout == "" {
			a.Layout = DefaultDateLayout
		}
		if (a.Kind == KindScalar || a.Kind == KindElementCollection) && a.Family == FamilyNone {
			b.add(owner+"."+a.Name, ErrMissingFamily, "type is required")
		}
		if a.Family == FamilyEnum && len(a.EnumValues) == 0 {
			b.add(owner+"."+a.Name, ErrEnumWithoutValues, "enum requires at least one value")
		}
		index[a.Name] = a
	}
	return index
}

func (b *builder) checkIdentity(e *EntityType) {
	for _, name := range e.IdentityOf {
		a, ok := e.index[name]
		if !ok {
			b.add(e.Name+".identity", ErrInvalidIdentity, fmt.Sprintf("unknown attribute %q", name))
			continue
		}
		if a.Kind != KindScalar {
			b.add(e.Name+".identity", ErrInvalidIdentity, fmt.Sprintf("%q is not a scalar", name))
		}
	}
}

func (b *builder) checkAttribute(owner *EntityType, a *Attribute) {
	field := owner.Name + "." + a.Name

	switch a.Kind {
	case KindScalar:
		return

	case KindEmbedded:
		if _, ok := b.schema.embeddables[a.Target]; !ok {
			b.add(field, ErrUnknownTarget, fmt.Sprintf("unknown embeddable %q", a.Target))
		}

	case KindElementCollection:
		if a.CollectionTable == "" {
			b.add(field, ErrMissingTable, "collection table is required")
			return
		}
		if !owner.HasIdentity() {
			b.add(field, ErrIdentityRequired, "element collections need an owner identity")
			return
		}
		if len(a.CollectionKey) != len(owner.IdentityOf) {
			b.add(field, ErrInvalidCollection,
				fmt.Sprintf("collection key has %d columns, owner identity has %d",
					len(a.CollectionKey), len(owner.IdentityOf)))
			return
		}
		a.links = []Link{{
			Table:        a.CollectionTable,
			LeftColumns:  owner.IdentityColumns(),
			RightColumns: a.CollectionKey,
		}}

	case KindToOne, KindToMany:
		target, ok := b.schema.entities[a.Target]
		if !ok {
			b.add(field, ErrUnknownTarget, fmt.Sprintf("unknown entity %q", a.Target))
			return
		}
		a.links = b.relationLinks(field, owner, target, a)
	}
}

func (b *builder) relationLinks(field string, owner, target *EntityType, a *Attribute) []Link {
	switch {
	case a.JoinTable != nil:
		return b.joinTableLinks(field, owner, target, a.JoinTable, false)

	case a.OwnsForeignKey():
		if a.Kind == KindToMany {
			b.add(field, ErrMissingMapping, "to-many relations use mappedBy or a join table")
			return nil
		}
		if !target.HasIdentity() {
			b.add(field, ErrIdentityRequired, fmt.Sprintf("target %q has no identity", target.Name))
			return nil
		}
		if len(a.Columns) != len(target.IdentityOf) {
			b.add(field, ErrColumnCountMismatch,
				fmt.Sprintf("%d foreign key columns for %d identity attributes",
					len(a.Columns), len(target.IdentityOf)))
			return nil
		}
		return []Link{{
			Table:        target.Table,
			LeftColumns:  a.Columns,
			RightColumns: target.IdentityColumns(),
		}}

	case a.MappedBy != "":
		back, ok := target.index[a.MappedBy]
		if !ok || !back.Kind.IsRelation() || back.Target != owner.Name {
			b.add(field, ErrInvalidMappedBy,
				fmt.Sprintf("%s.%s is not a relation to %s", target.Name, a.MappedBy, owner.Name))
			return nil
		}
		if back.JoinTable != nil {
			return b.joinTableLinks(field, owner, target, back.JoinTable, true)
		}
		if !back.OwnsForeignKey() {
			b.add(field, ErrInvalidMappedBy,
				fmt.Sprintf("%s.%s does not own a foreign key", target.Name, a.MappedBy))
			return nil
		}
		if !owner.HasIdentity() {
			b.add(field, ErrIdentityRequired, fmt.Sprintf("owner %q has no identity", owner.Name))
			return nil
		}
		if len(back.Columns) != len(owner.IdentityOf) {
			b.add(field, ErrColumnCountMismatch,
				fmt.Sprintf("%s.%s has %d columns for %d identity attributes",
					target.Name, a.MappedBy, len(back.Columns), len(owner.IdentityOf)))
			return nil
		}
		return []Link{{
			Table:        target.Table,
			LeftColumns:  owner.IdentityColumns(),
			RightColumns: back.Columns,
		}}

	default:
		b.add(field, ErrMissingMapping, "relation needs columns, mappedBy or a join table")
		return nil
	}
}

// joinTableLinks builds the two steps through an association table.
// inverse is set when the table is declared on the target side.
func (b *builder) joinTableLinks(field string, owner, target *EntityType, jt *JoinTable, inverse bool) []Link {
	if jt.Name == "" {
		b.add(field, ErrMissingTable, "join table name is required")
		return nil
	}
	if !owner.HasIdentity() || !target.HasIdentity() {
		b.add(field, ErrIdentityRequired, "join tables need identities on both sides")
		return nil
	}

	ownerCols, targetCols := jt.OwnerColumns, jt.TargetColumns
	if inverse {
		ownerCols, targetCols = targetCols, ownerCols
	}
	if len(ownerCols) != len(owner.IdentityOf) || len(targetCols) != len(target.IdentityOf) {
		b.add(field, ErrColumnCountMismatch, "join table columns do not match identities")
		return nil
	}

	return []Link{
		{Table: jt.Name, LeftColumns: owner.IdentityColumns(), RightColumns: ownerCols},
		{Table: target.Table, LeftColumns: targetCols, RightColumns: target.IdentityColumns()},
	}
}

func sortedEntities(m map[string]*EntityType) []*EntityType {
	out := make([]*EntityType, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
