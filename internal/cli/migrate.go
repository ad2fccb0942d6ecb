package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/qgraph/internal/config"
	"github.com/roach88/qgraph/internal/querysql"
	"github.com/roach88/qgraph/internal/store"
)

// MigrateOptions holds flags for the migrate command.
type MigrateOptions struct {
	*RootOptions
	Database string
	Fixtures string
	DryRun   bool
}

// MigrateResult is the output of the migrate command.
type MigrateResult struct {
	Dialect    string   `json:"dialect"`
	Statements []string `json:"statements"`
	Fixtures   string   `json:"fixtures,omitempty"`
	Applied    bool     `json:"applied"`
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "migrate <project-dir>",
		Short: "Create the tables of a project",
		Long: `Create the entity, join and collection tables declared by a project,
optionally seeding them from a YAML fixture file.

Tables that already exist are left alone. With --dry-run the DDL is
printed and no database is opened.

Example:
  qgraph migrate --db ./library.db ./library
  qgraph migrate --db ./library.db ./library --fixtures ./library/fixtures.yaml
  qgraph migrate ./library --dry-run`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "database path or DSN")
	cmd.Flags().StringVar(&opts.Fixtures, "fixtures", "", "YAML fixture file to load after migrating")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "print the DDL without applying it")

	return cmd
}

func runMigrate(opts *MigrateOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger(cmd.ErrOrStderr())
	ctx := commandContext(cmd)

	if !opts.DryRun && opts.Database == "" {
		return NewExitError(ExitCommandError, "--db is required unless --dry-run is set")
	}

	project, err := config.Load(dir)
	if err != nil {
		return formatter.Fail("migrate", err)
	}
	dialect, err := querysql.DialectByName(project.Settings.Dialect)
	if err != nil {
		return formatter.Fail("migrate", err)
	}

	result := MigrateResult{
		Dialect:    dialect.Name,
		Statements: store.DDL(project.Schema, dialect),
		Fixtures:   opts.Fixtures,
	}

	if !opts.DryRun {
		st, err := store.OpenDSN(dialect.Name, opts.Database)
		if err != nil {
			_ = formatter.Error(config.ErrCodeDatabase, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()

		logger.Info("migrating", "db", opts.Database, "tables", len(result.Statements))
		if err := st.Migrate(ctx, project.Schema); err != nil {
			_ = formatter.Error(config.ErrCodeDatabase, err.Error(), nil)
			return WrapExitError(ExitFailure, "migration failed", err)
		}
		if opts.Fixtures != "" {
			logger.Info("loading fixtures", "file", opts.Fixtures)
			if err := st.LoadFixturesFile(ctx, opts.Fixtures); err != nil {
				_ = formatter.Error(config.ErrCodeFixtures, err.Error(), nil)
				return WrapExitError(ExitFailure, "loading fixtures failed", err)
			}
		}
		result.Applied = true
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	if opts.DryRun {
		for _, stmt := range result.Statements {
			fmt.Fprintf(w, "%s;\n", stmt)
		}
		return nil
	}
	fmt.Fprintf(w, "✓ Migrated %d table(s) (%s)\n", len(result.Statements), result.Dialect)
	if opts.Fixtures != "" {
		fmt.Fprintf(w, "✓ Loaded fixtures from %s\n", opts.Fixtures)
	}
	return nil
}
