package core

import (
	"errors"
	"fmt"
	"reflect"
)

// Sentinel errors returned by the import pipeline and the storage adapters.
// Callers should match them with errors.Is; most are wrapped with context.
var (
	// ErrInvalidComparison is returned when import equality is evaluated
	// against a nil operand or a value of a different record type.
	ErrInvalidComparison = errors.New("invalid comparison")

	// ErrUnsupportedOperation is returned by an adapter that cannot perform
	// the requested bulk operation for the given record type or columns.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrParentNotInBatch is returned when a dependent row points at a parent
	// that was not part of the parent insert it is being linked against.
	ErrParentNotInBatch = errors.New("dependent parent not in insert batch")

	// ErrIdentityNotAssigned is returned when a parent row comes back from
	// BulkInsert without a store-assigned identity.
	ErrIdentityNotAssigned = errors.New("identity not assigned")

	// ErrUnknownColumn is returned when a filter or column mask names a
	// column the table does not declare.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrUnknownTable is returned when no importer is registered for a key.
	ErrUnknownTable = errors.New("unknown table")

	// ErrInvalidFilter is returned when a filter operator or value does not
	// fit the column it targets.
	ErrInvalidFilter = errors.New("invalid filter")
)

// InvalidComparison builds an ErrInvalidComparison for a mismatched operand.
// want is the record type the comparison expected.
func InvalidComparison(want string, got any) error {
	if isNil(got) {
		return fmt.Errorf("%w: %s compared with nil", ErrInvalidComparison, want)
	}
	return fmt.Errorf("%w: %s compared with %T", ErrInvalidComparison, want, got)
}

// Unsupported builds an ErrUnsupportedOperation with a reason.
func Unsupported(op, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrUnsupportedOperation, op, reason)
}

// isNil reports whether v is nil or a typed nil pointer, map, slice,
// func, chan or interface.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
