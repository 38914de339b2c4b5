package core

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"
)

// TableInfo contains display information about a record table.
type TableInfo struct {
	Key       string   // Unique identifier and SQL table name: "budget_txs"
	Group     string   // Grouping for listings: "Budget", "Banking"
	Label     string   // Display name: "Budget Line Items"
	UniqueKey []string // Column(s) that form the import-equality key, for display
}

// Column describes one persisted field of a record type T.
type Column[T any] struct {
	Name     string    // Header and API name: "Amount"
	DBColumn string    // Database column name (derived from Name if empty)
	Type     FieldType // Data type
	Required bool      // Column must exist in a CSV header and be non-empty
	Aliases  []string  // Alternative header names accepted on import

	// Get returns the field value as a plain Go value:
	// string, int64, bool or time.Time.
	Get func(T) any

	// Scan returns a pointer into the record suitable as a database scan target.
	Scan func(T) any

	// Parse sets the field from a cleaned CSV cell.
	Parse func(T, string) error
}

// Table binds a record type to its columns and storage key.
// Columns exclude the identity column, which every table has implicitly.
type Table[T Identifiable] struct {
	Info    TableInfo
	New     func() T
	Columns []Column[T]
}

// IDColumn is the name of the implicit identity column.
const IDColumn = "ID"

// Key returns the table key.
func (t *Table[T]) Key() string {
	return t.Info.Key
}

// Column looks up a column by Name or DBColumn, case-insensitively.
// The implicit identity column is returned for "ID".
func (t *Table[T]) Column(name string) (Column[T], error) {
	if strings.EqualFold(name, IDColumn) {
		return t.idColumn(), nil
	}
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) || strings.EqualFold(c.dbName(), name) {
			c.DBColumn = c.dbName()
			return c, nil
		}
	}
	return Column[T]{}, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, t.Info.Key, name)
}

// ColumnNames returns the declared column names in order.
func (t *Table[T]) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// DBColumns returns the database column names in declaration order.
func (t *Table[T]) DBColumns() []string {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = c.dbName()
	}
	return cols
}

// ResolveColumns resolves a column mask to column descriptors.
// Duplicates are collapsed and the identity column is rejected.
func (t *Table[T]) ResolveColumns(names []string) ([]Column[T], error) {
	seen := make(map[string]bool, len(names))
	cols := make([]Column[T], 0, len(names))
	for _, name := range names {
		c, err := t.Column(name)
		if err != nil {
			return nil, err
		}
		if c.Name == IDColumn {
			return nil, fmt.Errorf("%w: identity column cannot be updated", ErrUnknownColumn)
		}
		if seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		cols = append(cols, c)
	}
	return cols, nil
}

func (t *Table[T]) idColumn() Column[T] {
	return Column[T]{
		Name:     IDColumn,
		DBColumn: "id",
		Type:     FieldInteger,
		Get:      func(v T) any { return v.Identity() },
	}
}

func (c Column[T]) dbName() string {
	if c.DBColumn != "" {
		return c.DBColumn
	}
	return ToDBColumnName(c.Name)
}

// ToDBColumnName converts a display name to snake_case:
// "BankReference" -> "bank_reference", "Transaction ID" -> "transaction_id".
func ToDBColumnName(name string) string {
	var b strings.Builder
	prevLower := false
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r == ' ' || r == '-' || r == '_':
			if b.Len() > 0 && !strings.HasSuffix(b.String(), "_") {
				b.WriteByte('_')
			}
			prevLower = false
		case unicode.IsUpper(r):
			if prevLower {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			prevLower = false
		default:
			b.WriteRune(r)
			prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// Row renders v as a column-name keyed map, identity first under "ID".
func (t *Table[T]) Row(v T) map[string]any {
	row := make(map[string]any, len(t.Columns)+1)
	row[IDColumn] = v.Identity()
	for _, c := range t.Columns {
		val := c.Get(v)
		if cents, ok := val.(Cents); ok {
			val = cents.String()
		}
		row[c.Name] = val
	}
	return row
}

// Rows renders every item with Row.
func (t *Table[T]) Rows(items []T) []map[string]any {
	rows := make([]map[string]any, len(items))
	for i, v := range items {
		rows[i] = t.Row(v)
	}
	return rows
}

// ParseInto sets the named columns of v from string values, as a CSV cell
// would. Used to build the new-values record of a masked update.
func (t *Table[T]) ParseInto(v T, values map[string]string) ([]string, error) {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	slices.Sort(names)

	for i, name := range names {
		c, err := t.Column(name)
		if err != nil {
			return nil, err
		}
		if c.Parse == nil {
			return nil, fmt.Errorf("%w: %s is read-only", ErrUnknownColumn, c.Name)
		}
		if err := c.Parse(v, CleanCell(values[name])); err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		names[i] = c.Name
	}
	return names, nil
}

// ----------------------------------------------------------------------------
// Column constructors
// ----------------------------------------------------------------------------

// TextColumn declares a text column backed by the string field field(v).
func TextColumn[T any](name string, field func(T) *string) Column[T] {
	return Column[T]{
		Name:  name,
		Type:  FieldText,
		Get:   func(v T) any { return *field(v) },
		Scan:  func(v T) any { return field(v) },
		Parse: func(v T, s string) error { *field(v) = ParseText(s); return nil },
	}
}

// DateColumn declares a date column backed by a time.Time field.
func DateColumn[T any](name string, field func(T) *time.Time) Column[T] {
	return Column[T]{
		Name: name,
		Type: FieldDate,
		Get:  func(v T) any { return *field(v) },
		Scan: func(v T) any { return field(v) },
		Parse: func(v T, s string) error {
			d, err := ParseDate(s)
			if err != nil {
				return err
			}
			*field(v) = d
			return nil
		},
	}
}

// CentsColumn declares a currency column backed by a Cents field.
func CentsColumn[T any](name string, field func(T) *Cents) Column[T] {
	return Column[T]{
		Name: name,
		Type: FieldNumeric,
		Get:  func(v T) any { return *field(v) },
		Scan: func(v T) any { return (*int64)(field(v)) },
		Parse: func(v T, s string) error {
			c, err := ParseCents(s)
			if err != nil {
				return err
			}
			*field(v) = c
			return nil
		},
	}
}

// BoolColumn declares a boolean column backed by a bool field.
func BoolColumn[T any](name string, field func(T) *bool) Column[T] {
	return Column[T]{
		Name: name,
		Type: FieldBool,
		Get:  func(v T) any { return *field(v) },
		Scan: func(v T) any { return field(v) },
		Parse: func(v T, s string) error {
			b, err := ParseBool(s)
			if err != nil {
				return err
			}
			*field(v) = b
			return nil
		},
	}
}

// IntColumn declares an integer column backed by an int64 field.
func IntColumn[T any](name string, field func(T) *int64) Column[T] {
	return Column[T]{
		Name: name,
		Type: FieldInteger,
		Get:  func(v T) any { return *field(v) },
		Scan: func(v T) any { return field(v) },
		Parse: func(v T, s string) error {
			n, err := ParseInt(s)
			if err != nil {
				return err
			}
			*field(v) = n
			return nil
		},
	}
}

// Require marks the column as required on import.
func (c Column[T]) Require() Column[T] {
	c.Required = true
	return c
}

// As sets the database column name.
func (c Column[T]) As(dbColumn string) Column[T] {
	c.DBColumn = dbColumn
	return c
}

// Alias adds alternative header names.
func (c Column[T]) Alias(names ...string) Column[T] {
	c.Aliases = append(slices.Clone(c.Aliases), names...)
	return c
}
