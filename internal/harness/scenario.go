package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
// Scenarios run requests against a seeded database and assert on the
// shaped rows and the statements issued.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Project is the CUE project directory declaring the model.
	// Relative paths are resolved against the scenario file.
	Project string `yaml:"project"`

	// Fixtures is an optional YAML fixture file seeding the database.
	Fixtures string `yaml:"fixtures,omitempty"`

	// RequestID is the fixed request id of every step, for golden
	// comparison. Defaults to "test-request".
	RequestID string `yaml:"request_id,omitempty"`

	// Steps are the requests to run, in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the step results.
	// Supported types: row_count, rows_contain, query_count,
	// query_contains, field_error, warning
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step runs one request.
type Step struct {
	// Name identifies the step in assertions.
	Name string `yaml:"name"`

	// Request is the object form of the request.
	Request map[string]any `yaml:"request"`

	// FailOn makes statements containing any fragment fail, to exercise
	// partial results.
	FailOn []string `yaml:"fail_on,omitempty"`

	// Expect specifies the expected outcome.
	// If nil, the request must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Error is the expected compile error code (e.g. "Q101").
	Error string `yaml:"error,omitempty"`

	// Rows is the expected number of root rows.
	Rows *int `yaml:"rows,omitempty"`

	// Total is the expected count of matching roots.
	Total *int64 `yaml:"total,omitempty"`
}

// Assertion validates a step result.
type Assertion struct {
	// Type specifies the assertion type:
	// - "row_count": Check the number of root rows
	// - "rows_contain": Check a root row matches Row (subset match)
	// - "query_count": Check the number of statements issued
	// - "query_contains": Check some statement contains Fragment
	// - "field_error": Check a field error was reported at Path
	// - "warning": Check a warning with Code was reported
	Type string `yaml:"type"`

	// Step names the step the assertion applies to.
	Step string `yaml:"step"`

	// Count is the expected number (used by row_count, query_count).
	Count int `yaml:"count,omitempty"`

	// Row is the expected row (used by rows_contain).
	// Subset match - only specified fields are validated.
	Row map[string]any `yaml:"row,omitempty"`

	// Fragment is the expected SQL fragment (used by query_contains).
	Fragment string `yaml:"fragment,omitempty"`

	// Path is the expected result path (used by field_error).
	Path string `yaml:"path,omitempty"`

	// Code is the expected warning code (used by warning).
	Code string `yaml:"code,omitempty"`
}

// Assertion type constants.
const (
	AssertRowCount      = "row_count"
	AssertRowsContain   = "rows_contain"
	AssertQueryCount    = "query_count"
	AssertQueryContains = "query_contains"
	AssertFieldError    = "field_error"
	AssertWarning       = "warning"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// Project and fixture paths are resolved relative to the file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	scenario.Project = resolvePath(base, scenario.Project)
	scenario.Fixtures = resolvePath(base, scenario.Fixtures)

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Project == "" {
		return fmt.Errorf("project is required")
	}
	if _, err := os.Stat(s.Project); os.IsNotExist(err) {
		return fmt.Errorf("project directory not found: %s", s.Project)
	}
	if s.Fixtures != "" {
		if _, err := os.Stat(s.Fixtures); os.IsNotExist(err) {
			return fmt.Errorf("fixtures file not found: %s", s.Fixtures)
		}
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	names := make(map[string]bool, len(s.Steps))
	for i, step := range s.Steps {
		if step.Name == "" {
			return fmt.Errorf("steps[%d]: name is required", i)
		}
		if names[step.Name] {
			return fmt.Errorf("steps[%d]: duplicate step name %q", i, step.Name)
		}
		names[step.Name] = true
		if step.Request == nil {
			return fmt.Errorf("steps[%d]: request is required", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], names); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, steps map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if !steps[a.Step] {
		return fmt.Errorf("assertions[%d]: unknown step %q", index, a.Step)
	}

	switch a.Type {
	case AssertRowCount, AssertQueryCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertRowsContain:
		if len(a.Row) == 0 {
			return fmt.Errorf("assertions[%d]: row is required for rows_contain", index)
		}
	case AssertQueryContains:
		if a.Fragment == "" {
			return fmt.Errorf("assertions[%d]: fragment is required for query_contains", index)
		}
	case AssertFieldError:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for field_error", index)
		}
	case AssertWarning:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for warning", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
