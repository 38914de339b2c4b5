// Package memory implements the storage port over in-process collections.
//
// It exists for tests and for running without a database. Its contract is
// narrower than the postgres adapter: BulkUpdate is only supported for
// transactions, and only for the Imported, Hidden and Selected flags.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/JonMunkholm/importer/internal/core"
	"github.com/JonMunkholm/importer/internal/core/tables"
)

// DB holds one collection per table key.
type DB struct {
	mu          sync.Mutex
	collections map[string]any
}

// NewDB creates an empty database.
func NewDB() *DB {
	return &DB{collections: make(map[string]any)}
}

type collection[T core.Identifiable] struct {
	mu   sync.RWMutex
	rows []T
	next int64 // last identity handed out; never decreases
}

// Store is the in-memory store for one table.
type Store[T core.Identifiable] struct {
	table *core.Table[T]
	coll  *collection[T]
}

// For returns the store for table. Stores for the same key share rows.
// It panics if the key is already used by a different record type.
func For[T core.Identifiable](db *DB, table *core.Table[T]) *Store[T] {
	db.mu.Lock()
	defer db.mu.Unlock()

	key := table.Key()
	existing, ok := db.collections[key]
	if !ok {
		c := &collection[T]{}
		db.collections[key] = c
		return &Store[T]{table: table, coll: c}
	}
	c, ok := existing.(*collection[T])
	if !ok {
		panic(fmt.Sprintf("memory: table %s already holds %T", key, existing))
	}
	return &Store[T]{table: table, coll: c}
}

// Stores returns memory stores for every table in the tables package.
func Stores(db *DB) tables.Stores {
	return tables.Stores{
		BudgetTxs:    For(db, tables.BudgetTxs),
		Payees:       For(db, tables.Payees),
		Transactions: For(db, tables.Transactions),
		Splits:       For(db, tables.Splits),
	}
}

// Table returns the table descriptor.
func (s *Store[T]) Table() *core.Table[T] {
	return s.table
}

// All returns every row in insertion order.
func (s *Store[T]) All(ctx context.Context) ([]T, error) {
	s.coll.mu.RLock()
	defer s.coll.mu.RUnlock()
	return slices.Clone(s.coll.rows), nil
}

// Find returns the rows matching filter in insertion order, which is also
// identity order.
func (s *Store[T]) Find(ctx context.Context, filter core.FilterSet) ([]T, error) {
	bound, err := s.table.Bind(filter)
	if err != nil {
		return nil, err
	}
	s.coll.mu.RLock()
	defer s.coll.mu.RUnlock()

	var out []T
	for _, row := range s.coll.rows {
		if core.Matches(bound, row) {
			out = append(out, row)
		}
	}
	return out, nil
}

// BulkInsert appends items with sequential identities. Like a database
// sequence, identities of deleted rows are never reused.
func (s *Store[T]) BulkInsert(ctx context.Context, items []T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.coll.mu.Lock()
	defer s.coll.mu.Unlock()

	for _, item := range items {
		s.coll.next++
		item.SetIdentity(s.coll.next)
	}
	s.coll.rows = append(s.coll.rows, items...)
	return nil
}

// BulkDelete removes the rows matching filter.
func (s *Store[T]) BulkDelete(ctx context.Context, filter core.FilterSet) (int64, error) {
	bound, err := s.table.Bind(filter)
	if err != nil {
		return 0, err
	}
	s.coll.mu.Lock()
	defer s.coll.mu.Unlock()

	before := len(s.coll.rows)
	s.coll.rows = slices.DeleteFunc(s.coll.rows, func(row T) bool {
		return core.Matches(bound, row)
	})
	return int64(before - len(s.coll.rows)), nil
}

// flagColumns are the only columns BulkUpdate can set.
var flagColumns = []string{"Imported", "Hidden", "Selected"}

// BulkUpdate copies the named flags from newValues into every matching
// transaction. Any other record type or column fails with
// core.ErrUnsupportedOperation before a row is touched.
func (s *Store[T]) BulkUpdate(ctx context.Context, filter core.FilterSet, newValues T, columns []string) (int64, error) {
	values, ok := any(newValues).(*tables.Transaction)
	if !ok || values == nil {
		return 0, core.Unsupported("BulkUpdate", fmt.Sprintf("memory store cannot update %T", newValues))
	}

	apply := make([]func(*tables.Transaction), 0, len(columns))
	for _, name := range columns {
		switch {
		case strings.EqualFold(name, "Imported"):
			apply = append(apply, func(t *tables.Transaction) { t.Imported = values.Imported })
		case strings.EqualFold(name, "Hidden"):
			apply = append(apply, func(t *tables.Transaction) { t.Hidden = values.Hidden })
		case strings.EqualFold(name, "Selected"):
			apply = append(apply, func(t *tables.Transaction) { t.Selected = values.Selected })
		default:
			return 0, core.Unsupported("BulkUpdate", fmt.Sprintf("memory store can only set %s, not %q",
				strings.Join(flagColumns, ", "), name))
		}
	}

	bound, err := s.table.Bind(filter)
	if err != nil {
		return 0, err
	}
	s.coll.mu.Lock()
	defer s.coll.mu.Unlock()

	var n int64
	for _, row := range s.coll.rows {
		if !core.Matches(bound, row) {
			continue
		}
		tx := any(row).(*tables.Transaction)
		for _, set := range apply {
			set(tx)
		}
		n++
	}
	return n, nil
}

// Len returns the number of rows held.
func (s *Store[T]) Len() int {
	s.coll.mu.RLock()
	defer s.coll.mu.RUnlock()
	return len(s.coll.rows)
}
