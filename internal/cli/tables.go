package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/importer/internal/core"
)

// TableSummary describes one table in tables output.
type TableSummary struct {
	core.TableInfo `yaml:",inline"`
	Columns        []core.ColumnInfo `json:"columns" yaml:"columns"`
	Pending        int               `json:"pending" yaml:"pending"`
}

// NewTablesCommand creates the tables command.
func NewTablesCommand(rootOpts *RootOptions) *cobra.Command {
	var group string

	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List importable tables and their columns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTables(rootOpts, cmd, group)
		},
	}

	cmd.Flags().StringVar(&group, "group", "", "only list tables in this group")

	return cmd
}

func runTables(opts *RootOptions, cmd *cobra.Command, group string) error {
	out := opts.formatter(cmd)

	app, err := opts.App(cmd)
	if err != nil {
		return &ExitError{Code: ExitCommandError, Err: err}
	}

	infos := app.Service.Tables()
	if group != "" {
		infos = app.Service.ByGroup(group)
	}

	summaries := make([]TableSummary, 0, len(infos))
	for _, info := range infos {
		h, err := app.Service.Table(info.Key)
		if err != nil {
			return out.failure(err, nil)
		}
		summaries = append(summaries, TableSummary{TableInfo: info, Columns: h.Columns(), Pending: h.Pending()})
	}

	return out.result(summaries, func(w io.Writer) {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tGROUP\tCOLUMNS")
		for _, s := range summaries {
			names := make([]string, len(s.Columns))
			for i, c := range s.Columns {
				names[i] = c.Name
				if c.Required {
					names[i] += "*"
				}
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Key, s.Group, strings.Join(names, ", "))
		}
		tw.Flush()
	})
}
