package core

// filter.go defines the structured predicates accepted by the storage port.
//
// A FilterSet is a conjunction of column filters. Before use it is bound to
// a Table, which resolves column names and coerces values to the column type.
// The bound form is compiled to SQL by the postgres adapter and evaluated
// directly by the in-memory adapter, so both stores agree on what matches.

import (
	"fmt"
	"strings"
	"time"
)

// FilterOperator represents a comparison operator for column filters.
type FilterOperator string

const (
	OpContains   FilterOperator = "contains"
	OpEquals     FilterOperator = "eq"
	OpNotEquals  FilterOperator = "ne"
	OpStartsWith FilterOperator = "starts"
	OpEndsWith   FilterOperator = "ends"
	OpGreaterEq  FilterOperator = "gte"
	OpLessEq     FilterOperator = "lte"
	OpGreater    FilterOperator = "gt"
	OpLess       FilterOperator = "lt"
	OpIn         FilterOperator = "in"
)

// ParseOperator validates an operator string from an API request.
func ParseOperator(s string) (FilterOperator, error) {
	op := FilterOperator(strings.ToLower(strings.TrimSpace(s)))
	switch op {
	case OpContains, OpEquals, OpNotEquals, OpStartsWith, OpEndsWith,
		OpGreaterEq, OpLessEq, OpGreater, OpLess, OpIn:
		return op, nil
	case "":
		return OpEquals, nil
	}
	return "", fmt.Errorf("%w: unknown operator %q", ErrInvalidFilter, s)
}

// ParseCondition splits query text of the form "op:value" into an operator
// and value. Text without a known operator prefix is an equality test on the
// whole string, so "a:b" still matches the literal value "a:b".
func ParseCondition(expr string) (FilterOperator, string) {
	if prefix, rest, ok := strings.Cut(expr, ":"); ok && prefix != "" {
		if op, err := ParseOperator(prefix); err == nil {
			return op, rest
		}
	}
	return OpEquals, expr
}

// ColumnFilter represents a single filter condition on a column.
type ColumnFilter struct {
	Column   string         // Column name (display or database name)
	Operator FilterOperator // Comparison operator
	Value    any            // Comparison value; a slice or comma-separated string for OpIn
}

// FilterSet represents all active filters (combined with AND logic).
// The zero FilterSet matches every row.
type FilterSet struct {
	Filters []ColumnFilter
}

// Where starts a FilterSet with one condition.
func Where(column string, op FilterOperator, value any) FilterSet {
	return FilterSet{}.And(column, op, value)
}

// And returns a copy of fs with one more condition.
func (fs FilterSet) And(column string, op FilterOperator, value any) FilterSet {
	filters := make([]ColumnFilter, len(fs.Filters), len(fs.Filters)+1)
	copy(filters, fs.Filters)
	return FilterSet{Filters: append(filters, ColumnFilter{Column: column, Operator: op, Value: value})}
}

// IsEmpty reports whether the set has no conditions.
func (fs FilterSet) IsEmpty() bool {
	return len(fs.Filters) == 0
}

// String renders the set for logs.
func (fs FilterSet) String() string {
	if fs.IsEmpty() {
		return "all"
	}
	parts := make([]string, len(fs.Filters))
	for i, f := range fs.Filters {
		parts[i] = fmt.Sprintf("%s %s %v", f.Column, f.Operator, f.Value)
	}
	return strings.Join(parts, " AND ")
}

// BoundFilter is a ColumnFilter resolved against a table.
// Value holds a typed scalar; Values holds the list for OpIn.
type BoundFilter[T any] struct {
	Column   Column[T]
	Operator FilterOperator
	Value    any
	Values   []any
}

// Bind resolves every filter in fs against the table.
func (t *Table[T]) Bind(fs FilterSet) ([]BoundFilter[T], error) {
	bound := make([]BoundFilter[T], 0, len(fs.Filters))
	for _, f := range fs.Filters {
		col, err := t.Column(f.Column)
		if err != nil {
			return nil, err
		}
		op := f.Operator
		if op == "" {
			op = OpEquals
		}
		b := BoundFilter[T]{Column: col, Operator: op}

		switch op {
		case OpContains, OpStartsWith, OpEndsWith:
			if col.Type != FieldText {
				return nil, fmt.Errorf("%w: %s requires a text column, %s is %s", ErrInvalidFilter, op, col.Name, col.Type)
			}
			b.Value, err = coerce(col.Type, f.Value)
		case OpIn:
			for _, raw := range splitList(f.Value) {
				v, cerr := coerce(col.Type, raw)
				if cerr != nil {
					err = cerr
					break
				}
				b.Values = append(b.Values, v)
			}
			if err == nil && len(b.Values) == 0 {
				err = fmt.Errorf("%w: empty list for %s", ErrInvalidFilter, col.Name)
			}
		case OpEquals, OpNotEquals, OpGreaterEq, OpLessEq, OpGreater, OpLess:
			b.Value, err = coerce(col.Type, f.Value)
		default:
			err = fmt.Errorf("%w: unknown operator %q", ErrInvalidFilter, op)
		}
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", col.Name, err)
		}
		bound = append(bound, b)
	}
	return bound, nil
}

// Matches reports whether v satisfies every bound filter.
func Matches[T any](filters []BoundFilter[T], v T) bool {
	for _, f := range filters {
		if !f.Match(v) {
			return false
		}
	}
	return true
}

// Match evaluates one bound filter against a record.
func (f BoundFilter[T]) Match(v T) bool {
	got := normalizeValue(f.Column.Get(v))

	switch f.Operator {
	case OpContains, OpStartsWith, OpEndsWith:
		s, _ := got.(string)
		want, _ := f.Value.(string)
		s, want = strings.ToLower(s), strings.ToLower(want)
		switch f.Operator {
		case OpContains:
			return strings.Contains(s, want)
		case OpStartsWith:
			return strings.HasPrefix(s, want)
		default:
			return strings.HasSuffix(s, want)
		}
	case OpIn:
		for _, want := range f.Values {
			if compareValues(got, want) == 0 {
				return true
			}
		}
		return false
	}

	c := compareValues(got, f.Value)
	switch f.Operator {
	case OpEquals:
		return c == 0
	case OpNotEquals:
		return c != 0
	case OpGreaterEq:
		return c >= 0
	case OpLessEq:
		return c <= 0
	case OpGreater:
		return c > 0
	case OpLess:
		return c < 0
	}
	return false
}

// coerce converts a filter value to the Go type a column of ft produces.
func coerce(ft FieldType, v any) (any, error) {
	if s, ok := v.(string); ok {
		return coerceString(ft, s)
	}
	n := normalizeValue(v)
	ok := false
	switch ft {
	case FieldText:
		_, ok = n.(string)
	case FieldDate:
		_, ok = n.(time.Time)
	case FieldNumeric, FieldInteger:
		_, ok = n.(int64)
	case FieldBool:
		_, ok = n.(bool)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %v (%T) is not a %s value", ErrInvalidFilter, v, v, ft)
	}
	return n, nil
}

func coerceString(ft FieldType, s string) (any, error) {
	var (
		v   any
		err error
	)
	switch ft {
	case FieldText:
		return s, nil
	case FieldDate:
		v, err = ParseDate(s)
	case FieldNumeric:
		var c Cents
		c, err = ParseCents(s)
		v = int64(c)
	case FieldInteger:
		v, err = ParseInt(s)
	case FieldBool:
		v, err = ParseBool(s)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	return v, nil
}

// normalizeValue maps column values to the comparable set
// string, int64, bool, time.Time.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case Cents:
		return int64(x)
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int64, string, bool:
		return x
	case time.Time:
		return x.UTC()
	case fmt.Stringer:
		return x.String()
	}
	return v
}

// compareValues orders two normalized values of the same kind.
// Mismatched kinds compare unequal.
func compareValues(a, b any) int {
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	case int64:
		if y, ok := b.(int64); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			}
			return 1
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	}
	return 2
}

func splitList(v any) []any {
	switch x := v.(type) {
	case string:
		var out []any
		for _, part := range strings.Split(x, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	case []int64:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = n
		}
		return out
	case []any:
		return x
	case nil:
		return nil
	}
	return []any{v}
}
