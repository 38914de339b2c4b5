package core

import (
	"context"
	"strings"
	"sync"
)

// ============================================================================
// Test record types
// ============================================================================

// widget is a plain record: import-equal on Name, case-insensitively.
type widget struct {
	ID    int64
	Name  string
	Qty   int64
	Price Cents
	Kids  []*part
}

func (w *widget) Identity() int64      { return w.ID }
func (w *widget) SetIdentity(id int64) { w.ID = id }

func (w *widget) ImportEquals(other any) (bool, error) {
	o, ok := other.(*widget)
	if !ok || o == nil {
		return false, InvalidComparison("*widget", other)
	}
	return strings.EqualFold(strings.TrimSpace(w.Name), strings.TrimSpace(o.Name)), nil
}

func (w *widget) ImportHash() uint64 {
	return NewImportHasher().Fold(w.Name).Sum64()
}

func (w *widget) CompareDefault(o *widget) int {
	return strings.Compare(strings.ToLower(w.Name), strings.ToLower(o.Name))
}

// part is a dependent of widget.
type part struct {
	ID       int64
	WidgetID int64
	Label    string
	owner    *widget
}

func (p *part) Identity() int64                { return p.ID }
func (p *part) SetIdentity(id int64)           { p.ID = id }
func (p *part) Parent() *widget                { return p.owner }
func (p *part) SetParent(w *widget)            { p.owner = w }
func (p *part) ParentIdentity() int64          { return p.WidgetID }
func (p *part) SetParentIdentity(id int64)     { p.WidgetID = id }
func widgetParts(w *widget) []*part            { return w.Kids }
func newWidget(name string, qty int64) *widget { return &widget{Name: name, Qty: qty} }

var widgetTable = &Table[*widget]{
	Info: TableInfo{Key: "widgets", Group: "Test", Label: "Widgets", UniqueKey: []string{"Name"}},
	New:  func() *widget { return &widget{} },
	Columns: []Column[*widget]{
		{
			Name:     "Name",
			Type:     FieldText,
			Required: true,
			Aliases:  []string{"Widget"},
			Get:      func(w *widget) any { return w.Name },
			Scan:     func(w *widget) any { return &w.Name },
			Parse:    func(w *widget, s string) error { w.Name = ParseText(s); return nil },
		},
		{
			Name:  "Qty",
			Type:  FieldInteger,
			Get:   func(w *widget) any { return w.Qty },
			Scan:  func(w *widget) any { return &w.Qty },
			Parse: func(w *widget, s string) (err error) { w.Qty, err = ParseInt(s); return err },
		},
		{
			Name:  "Price",
			Type:  FieldNumeric,
			Get:   func(w *widget) any { return w.Price },
			Scan:  func(w *widget) any { return (*int64)(&w.Price) },
			Parse: func(w *widget, s string) (err error) { w.Price, err = ParseCents(s); return err },
		},
	},
}

// ============================================================================
// Fake store
// ============================================================================

// fakeStore is a minimal Store used to observe pipeline calls.
type fakeStore[T Identifiable] struct {
	mu      sync.Mutex
	rows    []T
	nextID  int64
	calls   []string
	inserts [][]T

	allErr    error
	insertErr error
	noIDs     bool // BulkInsert succeeds without assigning identities
}

func (s *fakeStore[T]) All(ctx context.Context) ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "All")
	if s.allErr != nil {
		return nil, s.allErr
	}
	return append([]T(nil), s.rows...), nil
}

func (s *fakeStore[T]) Find(ctx context.Context, filter FilterSet) ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "Find")
	return append([]T(nil), s.rows...), nil
}

func (s *fakeStore[T]) BulkInsert(ctx context.Context, items []T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "BulkInsert")
	if s.insertErr != nil {
		return s.insertErr
	}
	for _, it := range items {
		if !s.noIDs {
			s.nextID++
			it.SetIdentity(s.nextID)
		}
		s.rows = append(s.rows, it)
	}
	s.inserts = append(s.inserts, append([]T(nil), items...))
	return nil
}

func (s *fakeStore[T]) BulkDelete(ctx context.Context, filter FilterSet) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "BulkDelete")
	n := int64(len(s.rows))
	s.rows = nil
	return n, nil
}

func (s *fakeStore[T]) BulkUpdate(ctx context.Context, filter FilterSet, newValues T, columns []string) (int64, error) {
	return 0, Unsupported("BulkUpdate", "fake store")
}

func (s *fakeStore[T]) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func names(ws []*widget) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.Name
	}
	return out
}
