package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/qgraph/internal/config"
	"github.com/roach88/qgraph/internal/engine"
	"github.com/roach88/qgraph/internal/store"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Database string

	// RequestIDs overrides the request id generator (for testing).
	// If nil, the engine default (UUIDv7) is used.
	RequestIDs engine.RequestIDGenerator
}

// QueryResult is the output of the query command.
type QueryResult struct {
	RequestID   string             `json:"request_id"`
	Rows        []engine.Row       `json:"rows"`
	Total       *int64             `json:"total,omitempty"`
	Pages       *int64             `json:"pages,omitempty"`
	Warnings    []engine.Warning   `json:"warnings,omitempty"`
	FieldErrors []FieldErrorOutput `json:"field_errors,omitempty"`
}

// FieldErrorOutput is a failed association in JSON form.
type FieldErrorOutput struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <project-dir> <request-file>",
		Short: "Run a request against a database",
		Long: `Compile a request against a project, run it and print the shaped rows.

The database uses the dialect of the project's engine section: a file path
for sqlite, a DSN for postgres and mysql. Failed nested associations are
reported as field errors and do not fail the command.

Example:
  qgraph query --db ./library.db ./library requests/novelists.yaml
  qgraph query --db ./library.db ./library requests/authors_page.yaml --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "database path or DSN (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runQuery(opts *QueryOptions, dir, requestPath string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger(cmd.ErrOrStderr())
	ctx := commandContext(cmd)

	stopTelemetry := opts.startTelemetry(ctx, logger)
	defer stopTelemetry()

	project, req, err := loadProjectRequest(dir, requestPath)
	if err != nil {
		return formatter.Fail("query", err)
	}

	logger.Debug("opening database", "dialect", project.Settings.Dialect, "db", opts.Database)
	st, err := store.OpenDSN(project.Settings.Dialect, opts.Database)
	if err != nil {
		_ = formatter.Error(config.ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	engineOpts := []engine.Option{
		engine.WithSettings(project.Settings),
		engine.WithLogger(logger),
	}
	if opts.RequestIDs != nil {
		engineOpts = append(engineOpts, engine.WithRequestIDs(opts.RequestIDs))
	}
	eng, err := engine.New(project.Schema, st, engineOpts...)
	if err != nil {
		return formatter.Fail("query", err)
	}

	res, err := eng.CompileAndRun(ctx, req)
	if err != nil {
		return formatter.Fail("query", err)
	}

	out := QueryResult{
		RequestID: res.RequestID,
		Rows:      res.Rows,
		Total:     res.Total,
		Pages:     res.Pages,
		Warnings:  res.Warnings,
	}
	for _, fe := range res.FieldErrors {
		out.FieldErrors = append(out.FieldErrors, FieldErrorOutput{Path: fe.Path, Error: fe.Err.Error()})
	}

	if formatter.Format == "json" {
		return formatter.encode(CLIResponse{Status: "ok", Data: out, RequestID: out.RequestID})
	}
	return outputQueryText(formatter, out)
}

func outputQueryText(formatter *OutputFormatter, out QueryResult) error {
	w := formatter.Writer
	data, err := json.MarshalIndent(out.Rows, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render rows: %w", err)
	}
	fmt.Fprintln(w, string(data))

	summary := fmt.Sprintf("%d row(s)", len(out.Rows))
	if out.Total != nil {
		summary += fmt.Sprintf(", %d total", *out.Total)
	}
	if out.Pages != nil {
		summary += fmt.Sprintf(", %d page(s)", *out.Pages)
	}
	fmt.Fprintf(w, "\n%s [request %s]\n", summary, out.RequestID)

	for _, warn := range out.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
	for _, fe := range out.FieldErrors {
		fmt.Fprintf(w, "field error at %s: %s\n", fe.Path, fe.Error)
	}
	return nil
}
