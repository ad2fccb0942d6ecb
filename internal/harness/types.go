package harness

import "github.com/roach88/qgraph/internal/engine"

// StepResult is the outcome of one scenario step.
type StepResult struct {
	Name      string       `json:"name"`
	RequestID string       `json:"request_id,omitempty"`
	Rows      []engine.Row `json:"rows"`
	Total     *int64       `json:"total,omitempty"`
	Pages     *int64       `json:"pages,omitempty"`

	// Warnings and FieldErrors hold codes and result paths only.
	Warnings    []string `json:"warnings,omitempty"`
	FieldErrors []string `json:"field_errors,omitempty"`

	// ErrorCode is the compile error code when the step failed to compile.
	ErrorCode string `json:"error,omitempty"`

	// Queries are the statements the step issued, in order.
	Queries []string `json:"queries"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expect clause and assertion matches.
	Pass bool `json:"pass"`

	// Steps holds one entry per scenario step, in order.
	Steps []StepResult `json:"steps"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepResult{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Step returns the result of the named step.
func (r *Result) Step(name string) (*StepResult, bool) {
	for i := range r.Steps {
		if r.Steps[i].Name == name {
			return &r.Steps[i], true
		}
	}
	return nil, false
}
