package schema

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Compile builds a Schema from a CUE value holding `entity` and
// `embeddable` structs. Structural problems are reported as *CompileError
// with source positions; model problems as ValidationErrors from New.
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(src)
//	s, err := schema.Compile(v)
func Compile(v cue.Value) (*Schema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	var embeddables []*Embeddable
	embVal := v.LookupPath(cue.ParsePath("embeddable"))
	if embVal.Exists() {
		iter, err := embVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			name := iter.Label()
			attrs, err := compileAttributes(name, iter.Value())
			if err != nil {
				return nil, err
			}
			embeddables = append(embeddables, &Embeddable{Name: name, Attributes: attrs})
		}
	}

	entVal := v.LookupPath(cue.ParsePath("entity"))
	if !entVal.Exists() {
		return nil, &CompileError{
			Field:   "entity",
			Message: "at least one entity is required",
			Pos:     v.Pos(),
		}
	}
	iter, err := entVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var entities []*EntityType
	for iter.Next() {
		e, err := compileEntity(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}

	return New(entities, embeddables)
}

func compileEntity(name string, v cue.Value) (*EntityType, error) {
	e := &EntityType{Name: name}

	table, _, err := lookupString(v, "table")
	if err != nil {
		return nil, err
	}
	e.Table = table

	idVal := v.LookupPath(cue.ParsePath("identity"))
	if idVal.Exists() {
		if s, err := idVal.String(); err == nil {
			e.IdentityOf = []string{s}
		} else {
			ids, err := stringList(idVal)
			if err != nil {
				return nil, err
			}
			e.IdentityOf = ids
		}
	}

	attrVal := v.LookupPath(cue.ParsePath("attributes"))
	if !attrVal.Exists() {
		return nil, &CompileError{
			Field:   fmt.Sprintf("entity.%s.attributes", name),
			Message: "attributes are required",
			Pos:     v.Pos(),
		}
	}
	e.Attributes, err = compileAttributes(name, attrVal)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func compileAttributes(owner string, v cue.Value) ([]*Attribute, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var attrs []*Attribute
	for iter.Next() {
		a, err := compileAttribute(owner, iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, a)
	}
	return attrs, nil
}

// compileAttribute accepts either a bare type name ("string") or a struct
// whose discriminating key is one of type, embedded, toOne, toMany or elements.
func compileAttribute(owner, name string, v cue.Value) (*Attribute, error) {
	field := fmt.Sprintf("%s.%s", owner, name)
	a := &Attribute{Name: name}

	if typeName, err := v.String(); err == nil {
		fam, ok := ParseFamily(typeName)
		if !ok {
			return nil, &CompileError{Field: field, Message: fmt.Sprintf("unknown type %q", typeName), Pos: v.Pos()}
		}
		a.Kind, a.Family = KindScalar, fam
		return a, nil
	}

	optional, _, err := lookupBool(v, "optional")
	if err != nil {
		return nil, err
	}
	a.Optional = optional
	if a.Column, _, err = lookupString(v, "column"); err != nil {
		return nil, err
	}

	typeName, hasType, err := lookupString(v, "type")
	if err != nil {
		return nil, err
	}
	embedded, hasEmbedded, err := lookupString(v, "embedded")
	if err != nil {
		return nil, err
	}
	toOne, hasToOne, err := lookupString(v, "toOne")
	if err != nil {
		return nil, err
	}
	toMany, hasToMany, err := lookupString(v, "toMany")
	if err != nil {
		return nil, err
	}
	elements, hasElements, err := lookupString(v, "elements")
	if err != nil {
		return nil, err
	}

	switch {
	case hasType:
		a.Kind = KindScalar
		if err := a.setFamily(field, typeName, v); err != nil {
			return nil, err
		}
		if err := compileScalarOptions(a, v); err != nil {
			return nil, err
		}

	case hasEmbedded:
		a.Kind, a.Target = KindEmbedded, embedded

	case hasToOne, hasToMany:
		a.Kind, a.Target = KindToOne, toOne
		if hasToMany {
			a.Kind, a.Target = KindToMany, toMany
		}
		if a.Column != "" {
			a.Columns = []string{a.Column}
			a.Column = ""
		}
		cols, err := lookupStrings(v, "columns")
		if err != nil {
			return nil, err
		}
		a.Columns = append(a.Columns, cols...)
		if a.MappedBy, _, err = lookupString(v, "mappedBy"); err != nil {
			return nil, err
		}
		if a.JoinTable, err = compileJoinTable(v); err != nil {
			return nil, err
		}

	case hasElements:
		a.Kind = KindElementCollection
		if err := a.setFamily(field, elements, v); err != nil {
			return nil, err
		}
		if err := compileScalarOptions(a, v); err != nil {
			return nil, err
		}
		if a.CollectionTable, _, err = lookupString(v, "table"); err != nil {
			return nil, err
		}
		if a.CollectionKey, err = lookupStrings(v, "key"); err != nil {
			return nil, err
		}

	default:
		return nil, &CompileError{
			Field:   field,
			Message: "attribute needs one of type, embedded, toOne, toMany or elements",
			Pos:     v.Pos(),
		}
	}

	return a, nil
}

func (a *Attribute) setFamily(field, typeName string, v cue.Value) error {
	fam, ok := ParseFamily(typeName)
	if !ok {
		return &CompileError{Field: field, Message: fmt.Sprintf("unknown type %q", typeName), Pos: v.Pos()}
	}
	a.Family = fam
	return nil
}

func compileScalarOptions(a *Attribute, v cue.Value) error {
	var err error
	if a.EnumValues, err = lookupStrings(v, "values"); err != nil {
		return err
	}
	if a.Layout, _, err = lookupString(v, "layout"); err != nil {
		return err
	}
	return nil
}

func compileJoinTable(v cue.Value) (*JoinTable, error) {
	jtVal := v.LookupPath(cue.ParsePath("joinTable"))
	if !jtVal.Exists() {
		return nil, nil
	}
	jt := &JoinTable{}
	var err error
	if jt.Name, _, err = lookupString(jtVal, "name"); err != nil {
		return nil, err
	}
	if jt.OwnerColumns, err = lookupStrings(jtVal, "ownerColumns"); err != nil {
		return nil, err
	}
	if jt.TargetColumns, err = lookupStrings(jtVal, "targetColumns"); err != nil {
		return nil, err
	}
	return jt, nil
}

func lookupString(v cue.Value, path string) (string, bool, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return "", false, nil
	}
	s, err := f.String()
	if err != nil {
		return "", false, formatCUEError(err)
	}
	return s, true, nil
}

func lookupBool(v cue.Value, path string) (bool, bool, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return false, false, nil
	}
	b, err := f.Bool()
	if err != nil {
		return false, false, formatCUEError(err)
	}
	return b, true, nil
}

func lookupStrings(v cue.Value, path string) ([]string, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return nil, nil
	}
	return stringList(f)
}

func stringList(v cue.Value) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// CompileError represents a schema compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
