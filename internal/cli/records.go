package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/importer/internal/core"
)

// NewRecordsCommand creates the records command.
func NewRecordsCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		where []string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "records <table>",
		Short: "Print stored rows of a table",
		Long: `Print the stored rows of a table in identity order.

Filters take the form Column=op:value, for example
  --where Amount=lt:0 --where Payee=contains:grocer
Operators: eq ne contains starts ends gt gte lt lte in. Without an
operator the value is matched exactly.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseWhere(where)
			if err != nil {
				return err
			}
			return runRecords(rootOpts, cmd, args[0], filter, limit)
		},
	}

	cmd.Flags().StringArrayVarP(&where, "where", "w", nil, "filter as Column=op:value (repeatable)")
	cmd.Flags().IntVar(&limit, "limit", 0, "print at most this many rows (0 for all)")

	return cmd
}

func runRecords(opts *RootOptions, cmd *cobra.Command, table string, filter core.FilterSet, limit int) error {
	out := opts.formatter(cmd)

	app, err := opts.App(cmd)
	if err != nil {
		return &ExitError{Code: ExitCommandError, Err: err}
	}
	h, err := app.Service.Table(table)
	if err != nil {
		return out.failure(err, nil)
	}

	rows, err := app.Service.Records(commandContext(cmd), table, filter)
	if err != nil {
		return out.failure(err, nil)
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	return out.result(rows, func(w io.Writer) {
		names := []string{core.IDColumn}
		for _, c := range h.Columns() {
			names = append(names, c.Name)
		}

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, strings.Join(names, "\t"))
		for _, row := range rows {
			cells := make([]string, len(names))
			for i, name := range names {
				cells[i] = formatCell(row[name])
			}
			fmt.Fprintln(tw, strings.Join(cells, "\t"))
		}
		tw.Flush()
	})
}

// parseWhere turns repeated Column=op:value flags into a FilterSet.
func parseWhere(exprs []string) (core.FilterSet, error) {
	var fs core.FilterSet
	for _, expr := range exprs {
		column, cond, ok := strings.Cut(expr, "=")
		column = strings.TrimSpace(column)
		if !ok || column == "" {
			return fs, usageError("invalid filter %q: want Column=op:value", expr)
		}
		op, value := core.ParseCondition(cond)
		fs = fs.And(column, op, value)
	}
	return fs, nil
}

func formatCell(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case time.Time:
		if v.IsZero() {
			return ""
		}
		return v.Format(time.DateOnly)
	}
	return fmt.Sprint(v)
}
