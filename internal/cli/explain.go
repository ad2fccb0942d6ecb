package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/qgraph/internal/config"
	"github.com/roach88/qgraph/internal/engine"
	"github.com/roach88/qgraph/internal/queryir"
)

// ExplainResult describes the compiled form of a request.
type ExplainResult struct {
	Entity     string             `json:"entity"`
	Mode       engine.Mode        `json:"mode"`
	Filter     string             `json:"filter_fingerprint,omitempty"`
	Statements []engine.Statement `json:"statements"`
	Warnings   []engine.Warning   `json:"warnings,omitempty"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explain <project-dir> <request-file>",
		Short: "Show the SQL a request compiles to",
		Long: `Compile a request against a project and print every statement it
would run, without a database.

Statements that take runtime keys (the content query of a paged request
and every batch query) are rendered with a single placeholder key.

Example:
  qgraph explain ./library requests/novelists.yaml
  qgraph explain ./library requests/novelists.yaml --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(rootOpts, args[0], args[1], cmd)
		},
	}

	return cmd
}

func runExplain(opts *RootOptions, dir, requestPath string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	project, req, err := loadProjectRequest(dir, requestPath)
	if err != nil {
		return formatter.Fail("explain", err)
	}

	eng, err := engine.New(project.Schema, nil,
		engine.WithSettings(project.Settings),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		return formatter.Fail("explain", err)
	}
	plan, err := eng.Plan(req)
	if err != nil {
		return formatter.Fail("explain", err)
	}
	stmts, err := plan.Statements()
	if err != nil {
		return formatter.Fail("explain", err)
	}

	result := ExplainResult{
		Entity:     req.Entity,
		Mode:       plan.Mode,
		Statements: stmts,
		Warnings:   plan.Warnings,
	}
	if req.Where != nil {
		if result.Filter, err = queryir.FilterFingerprint(req.Where); err != nil {
			return formatter.Fail("explain", err)
		}
	}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "%s (%s)\n", result.Entity, result.Mode)
	if result.Filter != "" {
		fmt.Fprintf(w, "filter: %s\n", result.Filter)
	}
	for i, st := range result.Statements {
		label := string(st.Phase)
		if st.Path != "" {
			label += " " + st.Path
		}
		fmt.Fprintf(w, "\n[%d] %s\n  %s\n", i+1, label, st.SQL)
		if len(st.Args) > 0 {
			fmt.Fprintf(w, "  args: %v\n", st.Args)
		}
	}
	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "\nwarning: %s\n", warn)
	}
	return nil
}

// loadProjectRequest loads a project directory and a request file.
func loadProjectRequest(dir, requestPath string) (*config.Project, *queryir.Request, error) {
	project, err := config.Load(dir)
	if err != nil {
		return nil, nil, err
	}
	req, err := config.LoadRequestFile(requestPath)
	if err != nil {
		return nil, nil, err
	}
	return project, req, nil
}
