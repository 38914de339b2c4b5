package core

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
)

// RowError reports a CSV data row that could not be bound to a record.
// ReadCSV continues past a RowError; every other error ends the sequence.
type RowError struct {
	Line   int
	Result ValidationResult
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Result.Error())
}

// HeaderError reports a header row that does not fit the table.
type HeaderError struct {
	Err error
}

func (e *HeaderError) Error() string { return "header: " + e.Err.Error() }
func (e *HeaderError) Unwrap() error { return e.Err }

// ReadCSV parses r into records of table.
//
// The first non-empty row is the header. Columns are matched by name or
// alias, case-insensitively. Blank rows are skipped. The reader is wrapped
// with NewDecodingReader, so a BOM is stripped and bad UTF-8 replaced.
func ReadCSV[T Identifiable](r io.Reader, table *Table[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T

		cr := csv.NewReader(NewDecodingReader(r))
		cr.FieldsPerRecord = -1
		cr.LazyQuotes = true // Excel writes ="00123" unquoted
		cr.TrimLeadingSpace = true
		cr.ReuseRecord = true

		var validator *RowValidator[T]
		for {
			row, err := cr.Read()
			if errors.Is(err, io.EOF) {
				if validator == nil {
					yield(zero, &HeaderError{Err: errors.New("file is empty")})
				}
				return
			}
			if err != nil {
				yield(zero, fmt.Errorf("read csv: %w", err))
				return
			}
			if blankRow(row) {
				continue
			}

			if validator == nil {
				positions, herr := ValidateHeaders(row, table)
				if herr != nil {
					yield(zero, &HeaderError{Err: herr})
					return
				}
				validator = NewRowValidator(table, positions)
				continue
			}

			line, _ := cr.FieldPos(0)
			rec := table.New()
			res := validator.Apply(rec, row)
			if !res.Valid {
				if !yield(zero, &RowError{Line: line, Result: res}) {
					return
				}
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// RowSource produces records for an importer. Implementations follow the
// ReadCSV error contract: a *RowError skips one row, any other error is fatal.
type RowSource[T any] interface {
	Rows() iter.Seq2[T, error]
}

// CSVSource adapts a CSV reader into a RowSource.
type CSVSource[T Identifiable] struct {
	Reader io.Reader
	Table  *Table[T]
}

// Rows implements RowSource.
func (s CSVSource[T]) Rows() iter.Seq2[T, error] {
	return ReadCSV(s.Reader, s.Table)
}

// SliceSource serves records already in memory.
type SliceSource[T any] []T

// Rows implements RowSource.
func (s SliceSource[T]) Rows() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for _, v := range s {
			if !yield(v, nil) {
				return
			}
		}
	}
}
