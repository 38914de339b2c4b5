// Package cli implements importctl, a command-line front end to the import
// service. It loads the same configuration as the HTTP server.
package cli

import (
	"context"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/importer/internal/application"
	"github.com/JonMunkholm/importer/internal/config"
	"github.com/JonMunkholm/importer/internal/core"
	"github.com/JonMunkholm/importer/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format  string // "text" | "json" | "yaml"
	Backend string // overrides IMPORT_BACKEND when set
	Verbose bool

	app *application.App
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command for importctl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "importctl",
		Short: "Import CSV files into the budget tables",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return usageError("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			opts.Close()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", "", "storage backend (postgres|memory), overrides IMPORT_BACKEND")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewTablesCommand(opts))
	cmd.AddCommand(NewRecordsCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewResetCommand(opts))

	return cmd
}

// App returns the import service, building it from configuration on first
// use. Logs go to the command's stderr so they never mix with output.
func (o *RootOptions) App(cmd *cobra.Command) (*application.App, error) {
	if o.app != nil {
		return o.app, nil
	}

	cfg, err := config.Load(func(c *config.Config) {
		if o.Backend != "" {
			c.Import.Backend = o.Backend
		}
	})
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if o.Verbose {
		level = "debug"
	}
	slog.SetDefault(logging.New(cmd.ErrOrStderr(), level, cfg.Logging.Format))

	app, err := application.New(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}
	o.app = app
	return app, nil
}

// Close releases the service built by App.
func (o *RootOptions) Close() {
	if o.app != nil {
		o.app.Close()
	}
}

func (o *RootOptions) formatter(cmd *cobra.Command) *formatter {
	return &formatter{format: o.Format, w: cmd.OutOrStdout()}
}

// commandContext tags ctx so audit entries and logs show the CLI as source.
func commandContext(cmd *cobra.Command) context.Context {
	return core.WithRequestInfo(cmd.Context(), core.RequestInfo{
		RequestID: uuid.NewString(),
		Source:    "cli",
	})
}
