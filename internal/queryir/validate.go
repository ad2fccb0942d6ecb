package queryir

import (
	"fmt"

	"github.com/roach88/qgraph/internal/ir"
)

// ValidationResult contains the structural analysis of a request.
//
// Validation is schema-free: it finds filters and selections that are
// legal but almost certainly not what the client meant. Problems that make
// a request uncompilable are CompileErrors from the compiler instead.
type ValidationResult struct {
	// Clean is true when no warnings were found.
	Clean bool

	// Warnings lists suspicious constructs, each prefixed with its path.
	Warnings []string
}

// Validate checks a request for constructs that compile but rarely mean
// what was intended:
//  1. Empty AND/OR (matches nothing)
//  2. Repeated identical criteria on one field
//  3. Double negation
//  4. Comparisons against null with criteria other than IS_NULL/NOT_NULL
//  5. Selecting the same field twice at one level
//
// Validate is a pure function with no side effects.
func Validate(req *Request) ValidationResult {
	v := &validator{
		warnings: []string{},
	}
	if req == nil {
		v.addWarning("request", "nil request")
	} else {
		v.validateFilter("where", req.Where)
		v.validateSelections("select", req.Select)
	}

	return ValidationResult{
		Clean:    len(v.warnings) == 0,
		Warnings: v.warnings,
	}
}

// validator accumulates warnings during traversal.
type validator struct {
	warnings []string
}

// addWarning appends a warning message.
func (v *validator) addWarning(path, format string, args ...any) {
	v.warnings = append(v.warnings, path+": "+fmt.Sprintf(format, args...))
}

// validateFilter recursively validates a filter node.
func (v *validator) validateFilter(path string, f Filter) {
	switch n := f.(type) {
	case nil:
		// nil filters are valid (no restriction)
	case Logical:
		v.validateLogical(path, n)
	case *Logical:
		v.validateLogical(path, *n)
	case Not:
		if _, double := n.Inner.(Not); double {
			v.addWarning(path, "double negation")
		}
		v.validateFilter(joinPath(path, KeyNot), n.Inner)
	case *Not:
		v.validateFilter(path, *n)
	case Exists:
		v.validateFilter(joinPath(path, n.Relation), n.Inner)
	case *Exists:
		v.validateFilter(path, *n)
	case FieldCriteria:
		v.validateCriteria(path, n)
	case *FieldCriteria:
		v.validateCriteria(path, *n)
	case Relation:
		v.validateFilter(joinPath(path, n.Field), n.Inner)
	case *Relation:
		v.validateFilter(path, *n)
	default:
		v.addWarning(path, "unknown filter type %T", f)
	}
}

func (v *validator) validateLogical(path string, l Logical) {
	if len(l.Children) == 0 {
		v.addWarning(path, "empty %s matches nothing", l.Op)
		return
	}

	seen := make(map[string]bool, len(l.Children))
	for i, c := range l.Children {
		if fc, ok := c.(FieldCriteria); ok {
			key := fc.Key()
			if seen[key] {
				v.addWarning(path, "repeated %s criteria on %s", fc.Criteria, fc.Field)
			}
			seen[key] = true
		}
		v.validateFilter(fmt.Sprintf("%s.%s[%d]", path, l.Op, i), c)
	}
}

func (v *validator) validateCriteria(path string, fc FieldCriteria) {
	if fc.Criteria.IsNullCheck() {
		return
	}
	if ir.IsNull(fc.Value) {
		v.addWarning(joinPath(path, fc.Field), "%s null never matches; use IS_NULL", fc.Criteria)
	}
}

func (v *validator) validateSelections(path string, sels []*Selection) {
	seen := make(map[string]bool, len(sels))
	for _, s := range sels {
		p := joinPath(path, s.Field)
		if seen[s.Field] {
			v.addWarning(p, "field selected twice")
		}
		seen[s.Field] = true
		v.validateFilter(joinPath(p, "where"), s.Where)
		v.validateSelections(p, s.Children)
	}
}
