package core

import (
	"context"
	"io"
)

// Handle is the type-erased view of one table's importer. Service holds a
// Handle per table so callers can work with tables by key.
type Handle interface {
	Info() TableInfo
	Columns() []ColumnInfo
	State() State
	Pending() int

	QueueCSV(name string, r io.Reader) (QueueReport, error)
	Process(ctx context.Context) (RunStats, []map[string]any, error)
	Discard()

	Records(ctx context.Context, filter FilterSet) ([]map[string]any, error)
	Update(ctx context.Context, filter FilterSet, values map[string]string) (int64, []string, error)
	Delete(ctx context.Context, filter FilterSet) (int64, error)
}

// ColumnInfo describes a table column for listings.
type ColumnInfo struct {
	Name     string   `json:"name"`
	DBColumn string   `json:"dbColumn"`
	Type     string   `json:"type"`
	Required bool     `json:"required"`
	Aliases  []string `json:"aliases,omitempty"`
}

// Bind wraps an importer as a Handle.
func Bind[T Record[T]](imp *Importer[T]) Handle {
	return &importerHandle[T]{imp: imp}
}

type importerHandle[T Record[T]] struct {
	imp *Importer[T]
}

func (h *importerHandle[T]) Info() TableInfo {
	return h.imp.table.Info
}

func (h *importerHandle[T]) Columns() []ColumnInfo {
	cols := make([]ColumnInfo, len(h.imp.table.Columns))
	for i, c := range h.imp.table.Columns {
		cols[i] = ColumnInfo{
			Name:     c.Name,
			DBColumn: c.dbName(),
			Type:     c.Type.String(),
			Required: c.Required,
			Aliases:  c.Aliases,
		}
	}
	return cols
}

func (h *importerHandle[T]) State() State {
	return h.imp.State()
}

func (h *importerHandle[T]) Pending() int {
	return h.imp.Count()
}

func (h *importerHandle[T]) QueueCSV(name string, r io.Reader) (QueueReport, error) {
	return h.imp.QueueCSV(name, r)
}

func (h *importerHandle[T]) Process(ctx context.Context) (RunStats, []map[string]any, error) {
	inserted, err := h.imp.Process(ctx)
	stats := h.imp.LastRun()
	if err != nil {
		return stats, nil, err
	}
	return stats, h.imp.table.Rows(inserted), nil
}

func (h *importerHandle[T]) Discard() {
	h.imp.Reset()
}

func (h *importerHandle[T]) Records(ctx context.Context, filter FilterSet) ([]map[string]any, error) {
	items, err := h.imp.store.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	return h.imp.table.Rows(items), nil
}

func (h *importerHandle[T]) Update(ctx context.Context, filter FilterSet, values map[string]string) (int64, []string, error) {
	newValues := h.imp.table.New()
	columns, err := h.imp.table.ParseInto(newValues, values)
	if err != nil {
		return 0, nil, err
	}
	n, err := h.imp.store.BulkUpdate(ctx, filter, newValues, columns)
	return n, columns, err
}

func (h *importerHandle[T]) Delete(ctx context.Context, filter FilterSet) (int64, error) {
	return h.imp.store.BulkDelete(ctx, filter)
}
