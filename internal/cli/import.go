package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/importer/internal/core"
)

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	var table string

	cmd := &cobra.Command{
		Use:   "import --table <key> <file>...",
		Short: "Import CSV files into a table",
		Long: `Queue every file for the table and commit them as one run.

Rows repeated within the files are collapsed and rows already stored are
skipped. If any file fails to parse, nothing is inserted. Use "-" to read
a file from stdin.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(rootOpts, cmd, table, args)
		},
	}

	cmd.Flags().StringVarP(&table, "table", "t", "", "table key (see the tables command)")
	cmd.MarkFlagRequired("table")

	return cmd
}

func runImport(opts *RootOptions, cmd *cobra.Command, table string, paths []string) error {
	out := opts.formatter(cmd)

	app, err := opts.App(cmd)
	if err != nil {
		return &ExitError{Code: ExitCommandError, Err: err}
	}

	sources := make([]core.Source, 0, len(paths))
	for _, path := range paths {
		if path == "-" {
			sources = append(sources, core.Source{Name: "stdin", Reader: cmd.InOrStdin()})
			continue
		}
		f, err := os.Open(path)
		if err != nil {
			return out.failure(fmt.Errorf("%w: %s", core.ErrNoFile, err), nil)
		}
		defer f.Close()
		sources = append(sources, core.Source{Name: path, Reader: f})
	}

	result, err := app.Service.Import(commandContext(cmd), table, sources...)
	if err != nil {
		if result == nil {
			return out.failure(err, nil)
		}
		return out.failure(err, result)
	}

	return out.result(result, func(w io.Writer) {
		duplicates := 0
		for _, f := range result.Files {
			duplicates += f.Duplicates
			fmt.Fprintf(w, "%s: %d rows, %d queued\n", f.FileName, f.Rows, f.Queued)
			for _, row := range f.FailedRows {
				fmt.Fprintf(w, "  line %d skipped: %s\n", row.LineNumber, row.Reason)
			}
		}
		fmt.Fprintf(w, "%s: inserted %d, already stored %d, duplicates %d",
			result.TableKey, result.Inserted, result.Existing, duplicates)
		if result.Dependents > 0 {
			fmt.Fprintf(w, ", dependents %d", result.Dependents)
		}
		fmt.Fprintf(w, " (%s)\n", result.Duration.Round(time.Millisecond))
	})
}
