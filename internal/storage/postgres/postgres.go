// Package postgres implements the storage port on PostgreSQL via pgx.
//
// Each table maps to a SQL table named by its key, with a BIGSERIAL "id"
// column for the identity and one column per declared Column. Filters are
// compiled to parameterized WHERE clauses; values are never interpolated.
//
// Inserts are sent as a single pgx.Batch of INSERT ... RETURNING id inside a
// transaction, so a failed batch leaves no rows behind.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/importer/internal/core"
	"github.com/JonMunkholm/importer/internal/core/tables"
)

// DBTX is the subset of pgx satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store is the PostgreSQL store for one table.
type Store[T core.Identifiable] struct {
	db    DBTX
	table *core.Table[T]
}

// For returns the store for table on db.
func For[T core.Identifiable](db DBTX, table *core.Table[T]) *Store[T] {
	return &Store[T]{db: db, table: table}
}

// Stores returns postgres stores for every table in the tables package.
func Stores(db DBTX) tables.Stores {
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

// All returns every row ordered by identity.
func (s *Store[T]) All(ctx context.Context) ([]T, error) {
	return s.Find(ctx, core.FilterSet{})
}

// Find returns the rows matching filter ordered by identity.
func (s *Store[T]) Find(ctx context.Context, filter core.FilterSet) ([]T, error) {
	bound, err := s.table.Bind(filter)
	if err != nil {
		return nil, err
	}
	where, args := NewWhereBuilder().AddFilters(conditions(bound)).Build()

	cols := append([]string{"id"}, s.table.DBColumns()...)
	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY id",
		strings.Join(quoteColumns(cols), ", "), quoteIdentifier(s.table.Key()), where)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		item := s.table.New()
		var id int64
		dest := make([]any, 0, len(s.table.Columns)+1)
		dest = append(dest, &id)
		for _, c := range s.table.Columns {
			dest = append(dest, c.Scan(item))
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		item.SetIdentity(id)
		out = append(out, item)
	}
	return out, rows.Err()
}

// BulkInsert inserts items in one batch and assigns each its generated id.
// Identities are only assigned once the batch has committed.
func (s *Store[T]) BulkInsert(ctx context.Context, items []T) error {
	if len(items) == 0 {
		return ctx.Err()
	}
	query := s.insertSQL()

	return WithTx(ctx, s.db, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, item := range items {
			args := make([]any, len(s.table.Columns))
			for i, c := range s.table.Columns {
				args[i] = sqlValue(c.Get(item))
			}
			batch.Queue(query, args...)
		}

		ids := make([]int64, len(items))
		br := tx.SendBatch(ctx, batch)
		for i := range items {
			if err := br.QueryRow().Scan(&ids[i]); err != nil {
				br.Close()
				return err
			}
		}
		if err := br.Close(); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
		for i, item := range items {
			item.SetIdentity(ids[i])
		}
		return nil
	})
}

func (s *Store[T]) insertSQL() string {
	cols := s.table.DBColumns()
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		quoteIdentifier(s.table.Key()),
		strings.Join(quoteColumns(cols), ", "),
		strings.Join(placeholders, ", "))
}

// BulkDelete removes the rows matching filter.
func (s *Store[T]) BulkDelete(ctx context.Context, filter core.FilterSet) (int64, error) {
	bound, err := s.table.Bind(filter)
	if err != nil {
		return 0, err
	}
	where, args := NewWhereBuilder().AddFilters(conditions(bound)).Build()

	tag, err := s.db.Exec(ctx, "DELETE FROM "+quoteIdentifier(s.table.Key())+where, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// BulkUpdate sets the named columns from newValues on every matching row
// in a single UPDATE statement.
func (s *Store[T]) BulkUpdate(ctx context.Context, filter core.FilterSet, newValues T, columns []string) (int64, error) {
	cols, err := s.table.ResolveColumns(columns)
	if err != nil {
		return 0, err
	}
	if len(cols) == 0 {
		return 0, fmt.Errorf("%w: no columns to update", core.ErrInvalidFilter)
	}
	bound, err := s.table.Bind(filter)
	if err != nil {
		return 0, err
	}

	sets := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", quoteIdentifier(c.DBColumn), i+1)
		args[i] = sqlValue(c.Get(newValues))
	}
	where, whereArgs := newWhereBuilderAt(len(cols) + 1).AddFilters(conditions(bound)).Build()

	query := fmt.Sprintf("UPDATE %s SET %s%s",
		quoteIdentifier(s.table.Key()), strings.Join(sets, ", "), where)
	tag, err := s.db.Exec(ctx, query, append(args, whereArgs...)...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Count returns the number of rows in the table.
func (s *Store[T]) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM "+quoteIdentifier(s.table.Key())).Scan(&n)
	return n, err
}

// WithTx runs fn inside a transaction started on db. The transaction is
// rolled back unless fn commits it; rolling back a committed transaction
// is a no-op.
func WithTx(ctx context.Context, db DBTX, fn func(pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	return fn(tx)
}
