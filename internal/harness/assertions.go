package harness

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/qgraph/internal/engine"
	"github.com/roach88/qgraph/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Step     string   // Step the assertion applies to
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Queries  []string // Statements of the step for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s (step %s)\n", e.Type, e.Step)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Queries) > 0 {
		fmt.Fprintf(&buf, "\nQueries:\n")
		for i, q := range e.Queries {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, q)
		}
	}
	return buf.String()
}

func failed(a Assertion, sr *StepResult, expected, actual string) *AssertionError {
	return &AssertionError{
		Type:     a.Type,
		Step:     a.Step,
		Expected: expected,
		Actual:   actual,
		Queries:  sr.Queries,
	}
}

func assertRowCount(sr *StepResult, a Assertion) error {
	if len(sr.Rows) != a.Count {
		return failed(a, sr, fmt.Sprintf("%d rows", a.Count), fmt.Sprintf("%d rows", len(sr.Rows)))
	}
	return nil
}

// assertRowsContain checks that some root row matches the expected row
// (subset semantics, recursively).
func assertRowsContain(sr *StepResult, a Assertion) error {
	for _, row := range sr.Rows {
		if valuesMatch(row, a.Row) {
			return nil
		}
	}
	return failed(a, sr, fmt.Sprintf("a row matching %v", a.Row), fmt.Sprintf("rows %v", sr.Rows))
}

func assertQueryCount(sr *StepResult, a Assertion) error {
	if len(sr.Queries) != a.Count {
		return failed(a, sr, fmt.Sprintf("%d queries", a.Count), fmt.Sprintf("%d queries", len(sr.Queries)))
	}
	return nil
}

func assertQueryContains(sr *StepResult, a Assertion) error {
	for _, q := range sr.Queries {
		if strings.Contains(q, a.Fragment) {
			return nil
		}
	}
	return failed(a, sr, fmt.Sprintf("a query containing %q", a.Fragment), "not found")
}

func assertFieldError(sr *StepResult, a Assertion) error {
	for _, p := range sr.FieldErrors {
		if p == a.Path {
			return nil
		}
	}
	return failed(a, sr, fmt.Sprintf("field error at %s", a.Path), fmt.Sprintf("field errors %v", sr.FieldErrors))
}

func assertWarning(sr *StepResult, a Assertion) error {
	for _, c := range sr.Warnings {
		if c == a.Code {
			return nil
		}
	}
	return failed(a, sr, fmt.Sprintf("warning %s", a.Code), fmt.Sprintf("warnings %v", sr.Warnings))
}

// valuesMatch reports whether actual matches expected.
//
// Objects match when every expected key matches (extra keys in actual are
// ignored). Lists match element-wise and must have the same length.
// Scalars match when their canonical JSON forms are equal, so YAML ints
// compare equal to scanned int64 values.
func valuesMatch(actual, expected any) bool {
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return false
		}
		keys := make([]string, 0, len(exp))
		for k := range exp {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v, exists := act[k]
			if !exists || !valuesMatch(v, exp[k]) {
				return false
			}
		}
		return true

	case []any:
		act, ok := asList(actual)
		if !ok || len(act) != len(exp) {
			return false
		}
		for i := range exp {
			if !valuesMatch(act[i], exp[i]) {
				return false
			}
		}
		return true
	}

	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}
	eb, err := ir.MarshalCanonical(expected)
	if err != nil {
		return false
	}
	ab, err := ir.MarshalCanonical(actual)
	if err != nil {
		return false
	}
	return string(eb) == string(ab)
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []engine.Row:
		out := make([]any, len(l))
		for i, r := range l {
			out[i] = r
		}
		return out, true
	}
	return nil, false
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		sr, ok := result.Step(assertion.Step)
		if !ok {
			errors = append(errors, fmt.Sprintf("assertion[%d]: unknown step %q", i, assertion.Step))
			continue
		}

		var err error
		switch assertion.Type {
		case AssertRowCount:
			err = assertRowCount(sr, assertion)
		case AssertRowsContain:
			err = assertRowsContain(sr, assertion)
		case AssertQueryCount:
			err = assertQueryCount(sr, assertion)
		case AssertQueryContains:
			err = assertQueryContains(sr, assertion)
		case AssertFieldError:
			err = assertFieldError(sr, assertion)
		case AssertWarning:
			err = assertWarning(sr, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
