package core

// validation.go binds CSV rows to record fields.
//
// Validation happens at two levels:
//  1. Header validation: Ensures required columns are present
//  2. Row validation: Parses each cell into its column, collecting every error
//
// A row with any error is reported whole, so the caller can skip it and show
// the user all of its problems at once.

import (
	"fmt"
	"strings"
)

// ValidationError represents a single validation error for a field.
type ValidationError struct {
	Field   string // Field/column name
	Value   string // The invalid value
	Message string // Human-readable error message
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// ValidationResult contains the result of validating a row.
type ValidationResult struct {
	Valid  bool              // True if all validations passed
	Errors []ValidationError // List of validation errors (empty if Valid)
}

// Error joins the row's problems into one message.
func (r ValidationResult) Error() string {
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// ValidateHeaders maps each table column to its position in the CSV header.
// Columns absent from the header map to -1. Returns an error listing every
// missing required column.
func ValidateHeaders[T Identifiable](headers []string, table *Table[T]) ([]int, error) {
	idx := MakeHeaderIndex(headers)
	positions := make([]int, len(table.Columns))
	var missing []string

	for i, col := range table.Columns {
		positions[i] = -1
		for _, name := range append([]string{col.Name}, col.Aliases...) {
			if pos, ok := idx[normalizeHeader(name)]; ok {
				positions[i] = pos
				break
			}
		}
		if positions[i] < 0 && col.Required {
			missing = append(missing, col.Name)
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return positions, nil
}

// RowValidator parses rows into records of a table.
type RowValidator[T Identifiable] struct {
	table     *Table[T]
	positions []int
}

// NewRowValidator creates a validator for the header positions returned by
// ValidateHeaders.
func NewRowValidator[T Identifiable](table *Table[T], positions []int) *RowValidator[T] {
	return &RowValidator[T]{table: table, positions: positions}
}

// Apply parses row into rec and returns all validation errors.
// Fields whose cells fail to parse are left at their zero value.
func (v *RowValidator[T]) Apply(rec T, row []string) ValidationResult {
	result := ValidationResult{Valid: true}

	for i, col := range v.table.Columns {
		pos := v.positions[i]
		if pos < 0 || pos >= len(row) {
			if col.Required {
				result.Valid = false
				result.Errors = append(result.Errors, ValidationError{
					Field:   col.Name,
					Message: "missing required column",
				})
			}
			continue
		}

		raw := CleanCell(row[pos])

		if raw == "" && col.Required {
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				Field:   col.Name,
				Message: "required field is empty",
			})
			continue
		}

		if raw == "" || col.Parse == nil {
			continue
		}
		if err := col.Parse(rec, raw); err != nil {
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				Field:   col.Name,
				Value:   raw,
				Message: cellMessage(col.Type, err),
			})
		}
	}

	return result
}

// ValidateCell checks a single cell value against a field type.
// Returns nil if valid, or an error describing the problem.
func ValidateCell(value string, ft FieldType) error {
	if value == "" {
		return nil
	}

	var err error
	switch ft {
	case FieldNumeric:
		_, err = ParseCents(value)
	case FieldInteger:
		_, err = ParseInt(value)
	case FieldDate:
		_, err = ParseDate(value)
	case FieldBool:
		_, err = ParseBool(value)
	}
	if err != nil {
		return fmt.Errorf("%s", cellMessage(ft, err))
	}
	return nil
}

func cellMessage(ft FieldType, err error) string {
	switch ft {
	case FieldNumeric:
		return "invalid number format"
	case FieldInteger:
		return "must be a whole number"
	case FieldDate:
		return "invalid date format (use YYYY-MM-DD or similar)"
	case FieldBool:
		return "must be yes/no, true/false, or 1/0"
	}
	return err.Error()
}
