package postgres

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/importer/internal/core"
)

// Condition is a filter resolved to a database column with typed values.
type Condition struct {
	DBColumn string
	Operator core.FilterOperator
	Value    any
	Values   []any // for OpIn
}

// conditions converts bound filters to SQL conditions.
func conditions[T any](filters []core.BoundFilter[T]) []Condition {
	out := make([]Condition, len(filters))
	for i, f := range filters {
		out[i] = Condition{
			DBColumn: f.Column.DBColumn,
			Operator: f.Operator,
			Value:    sqlValue(f.Value),
			Values:   f.Values,
		}
	}
	return out
}

// WhereBuilder accumulates AND-ed conditions with numbered placeholders.
type WhereBuilder struct {
	conditions []string
	args       []any
	argIndex   int
}

// NewWhereBuilder creates a builder whose first placeholder is $1.
func NewWhereBuilder() *WhereBuilder {
	return newWhereBuilderAt(1)
}

// newWhereBuilderAt creates a builder whose first placeholder is $start,
// for statements that bind other arguments first.
func newWhereBuilderAt(start int) *WhereBuilder {
	return &WhereBuilder{argIndex: start}
}

// Add adds an equality condition on an unquoted column. Empty values are skipped.
func (wb *WhereBuilder) Add(column string, value string) *WhereBuilder {
	if value == "" {
		return wb
	}
	wb.conditions = append(wb.conditions, fmt.Sprintf("%s = $%d", column, wb.argIndex))
	wb.args = append(wb.args, value)
	wb.argIndex++
	return wb
}

// AddFilters adds one condition per filter. Filters with an unknown
// operator are skipped.
func (wb *WhereBuilder) AddFilters(filters []Condition) *WhereBuilder {
	for _, f := range filters {
		sql, args, next := buildSingleFilter(f, wb.argIndex)
		if sql == "" {
			continue
		}
		wb.conditions = append(wb.conditions, sql)
		wb.args = append(wb.args, args...)
		wb.argIndex = next
	}
	return wb
}

// NextArgIndex returns the next placeholder number.
func (wb *WhereBuilder) NextArgIndex() int {
	return wb.argIndex
}

// Build returns " WHERE a AND b" and its arguments, or "" and nil when
// there are no conditions.
func (wb *WhereBuilder) Build() (string, []any) {
	if len(wb.conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(wb.conditions, " AND "), wb.args
}

// buildSingleFilter generates SQL for a single filter.
func buildSingleFilter(f Condition, argIdx int) (string, []any, int) {
	col := quoteIdentifier(f.DBColumn)

	switch f.Operator {
	case core.OpContains:
		return fmt.Sprintf("%s ILIKE $%d", col, argIdx),
			[]any{"%" + likeEscape(f.Value) + "%"}, argIdx + 1

	case core.OpStartsWith:
		return fmt.Sprintf("%s ILIKE $%d", col, argIdx),
			[]any{likeEscape(f.Value) + "%"}, argIdx + 1

	case core.OpEndsWith:
		return fmt.Sprintf("%s ILIKE $%d", col, argIdx),
			[]any{"%" + likeEscape(f.Value)}, argIdx + 1

	case core.OpEquals:
		return fmt.Sprintf("%s = $%d", col, argIdx), []any{f.Value}, argIdx + 1

	case core.OpNotEquals:
		return fmt.Sprintf("%s <> $%d", col, argIdx), []any{f.Value}, argIdx + 1

	case core.OpGreaterEq:
		return fmt.Sprintf("%s >= $%d", col, argIdx), []any{f.Value}, argIdx + 1

	case core.OpLessEq:
		return fmt.Sprintf("%s <= $%d", col, argIdx), []any{f.Value}, argIdx + 1

	case core.OpGreater:
		return fmt.Sprintf("%s > $%d", col, argIdx), []any{f.Value}, argIdx + 1

	case core.OpLess:
		return fmt.Sprintf("%s < $%d", col, argIdx), []any{f.Value}, argIdx + 1

	case core.OpIn:
		if len(f.Values) == 0 {
			return "", nil, argIdx
		}
		placeholders := make([]string, len(f.Values))
		args := make([]any, len(f.Values))
		for i, v := range f.Values {
			placeholders[i] = fmt.Sprintf("$%d", argIdx+i)
			args[i] = sqlValue(v)
		}
		return fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", ")),
			args, argIdx + len(f.Values)

	default:
		return "", nil, argIdx
	}
}

// likeEscape escapes LIKE wildcards so the value matches literally.
func likeEscape(v any) string {
	s := fmt.Sprint(v)
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// quoteIdentifier quotes a SQL identifier to prevent injection.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteColumns quotes every column name.
func quoteColumns(columns []string) []string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdentifier(c)
	}
	return quoted
}

// sqlValue converts column values to types pgx encodes directly.
func sqlValue(v any) any {
	if c, ok := v.(core.Cents); ok {
		return int64(c)
	}
	return v
}
