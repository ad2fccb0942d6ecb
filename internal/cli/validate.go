package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/qgraph/internal/config"
	"github.com/roach88/qgraph/internal/schema"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                     `json:"valid"`
	Entities []string                 `json:"entities,omitempty"`
	Files    int                      `json:"files,omitempty"`
	Dialect  string                   `json:"dialect,omitempty"`
	Cycles   []schema.RelationCycle   `json:"cycles,omitempty"`
	Errors   []schema.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <project-dir>",
		Short: "Validate a project without touching a database",
		Long: `Validate the CUE entity model and engine settings of a project.

Checks CUE syntax, the shape of every entity and embeddable declaration,
relation targets, identities and the engine section. With --verbose,
relation cycles between entity types are listed; they are informational.

Exit codes:
  0 - Project valid
  1 - Model validation failed
  2 - Command error (directory not found, CUE syntax error, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	project, err := config.Load(dir)
	if err != nil {
		var verrs schema.ValidationErrors
		if errors.As(err, &verrs) {
			return outputValidationErrors(formatter, verrs)
		}
		return formatter.Fail("validate", err)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", project.FileCount, dir)

	result := ValidationResult{
		Valid:   true,
		Files:   project.FileCount,
		Dialect: project.Settings.Dialect,
	}
	for _, e := range project.Schema.Entities() {
		formatter.VerboseLog("Validated entity: %s (%s)", e.Name, e.Table)
		result.Entities = append(result.Entities, e.Name)
	}
	result.Cycles = schema.RelationCycles(project.Schema)
	for _, c := range result.Cycles {
		formatter.VerboseLog("Info: %s", c.Message)
	}
	if result.Dialect == "" {
		result.Dialect = "sqlite"
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Project valid: %d entities, %s dialect\n", len(result.Entities), result.Dialect)
	return nil
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs schema.ValidationErrors) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}
		if err := formatter.encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n", err.Code, err.Field, err.Message)
	}

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
