package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/importer/internal/core"
)

// MutationResult reports the rows a delete or reset removed.
type MutationResult struct {
	Table   string `json:"table" yaml:"table"`
	Deleted int64  `json:"deleted" yaml:"deleted"`
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	var where []string

	cmd := &cobra.Command{
		Use:   "delete <table> --where Column=op:value...",
		Short: "Delete rows matching filters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseWhere(where)
			if err != nil {
				return err
			}
			if filter.IsEmpty() {
				return usageError("delete needs at least one --where filter; use reset to clear a table")
			}
			return runMutation(rootOpts, cmd, args[0], func(svc *core.Service) (int64, error) {
				return svc.DeleteWhere(commandContext(cmd), args[0], filter)
			})
		},
	}

	cmd.Flags().StringArrayVarP(&where, "where", "w", nil, "filter as Column=op:value (repeatable)")

	return cmd
}

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset <table> --yes",
		Short: "Delete every row of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return usageError("reset deletes every row of %s; pass --yes to confirm", args[0])
			}
			return runMutation(rootOpts, cmd, args[0], func(svc *core.Service) (int64, error) {
				return svc.Reset(commandContext(cmd), args[0])
			})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")

	return cmd
}

func runMutation(opts *RootOptions, cmd *cobra.Command, table string, mutate func(*core.Service) (int64, error)) error {
	out := opts.formatter(cmd)

	app, err := opts.App(cmd)
	if err != nil {
		return &ExitError{Code: ExitCommandError, Err: err}
	}
	n, err := mutate(app.Service)
	if err != nil {
		return out.failure(err, nil)
	}

	result := MutationResult{Table: table, Deleted: n}
	return out.result(result, func(w io.Writer) {
		fmt.Fprintf(w, "%s: deleted %d rows\n", table, n)
	})
}
