package core

import "context"

// Store is the storage port for one record type.
//
// Implementations must be safe for concurrent use across distinct record
// types. Concurrent writers of the same type must be serialized by the
// caller. Errors from the underlying store are returned as-is.
type Store[T any] interface {
	// All returns every persisted row.
	All(ctx context.Context) ([]T, error)

	// Find returns the rows matching filter, ordered by identity.
	Find(ctx context.Context, filter FilterSet) ([]T, error)

	// BulkInsert persists items and assigns each one its identity.
	// On success every item has a non-zero Identity.
	BulkInsert(ctx context.Context, items []T) error

	// BulkDelete removes the rows matching filter and returns how many were
	// removed. An empty filter removes every row.
	BulkDelete(ctx context.Context, filter FilterSet) (int64, error)

	// BulkUpdate copies the named columns from newValues into every row
	// matching filter and returns how many rows were updated. Columns not
	// named are left untouched. Adapters that cannot perform the update
	// return an error wrapping ErrUnsupportedOperation without modifying
	// any row.
	BulkUpdate(ctx context.Context, filter FilterSet, newValues T, columns []string) (int64, error)
}

// TableStore is a Store that can describe its table.
type TableStore[T Identifiable] interface {
	Store[T]
	Table() *Table[T]
}
