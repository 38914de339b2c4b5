package core

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *fakeStore[*widget], *MemoryAuditSink) {
	t.Helper()
	audit := NewMemoryAuditSink(0)
	svc := NewService(append([]ServiceOption{WithAuditSink(audit), WithImportTimeout(time.Second)}, opts...)...)
	store := &fakeStore[*widget]{}
	if err := svc.Register(Bind(NewImporter(widgetTable, Store[*widget](store)))); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return svc, store, audit
}

func gadgetTable() *Table[*widget] {
	tbl := *widgetTable
	tbl.Info = TableInfo{Key: "gadgets", Group: "Alpha", Label: "Gadgets"}
	return &tbl
}

// ============================================================================
// Registry
// ============================================================================

func TestService_Registry(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.MustRegister(Bind(NewImporter(gadgetTable(), Store[*widget](&fakeStore[*widget]{}))))

	if err := svc.Register(Bind(NewImporter(widgetTable, Store[*widget](&fakeStore[*widget]{})))); err == nil {
		t.Error("duplicate Register should fail")
	}

	var keys []string
	for _, info := range svc.Tables() {
		keys = append(keys, info.Key)
	}
	if diff := cmp.Diff([]string{"gadgets", "widgets"}, keys); diff != "" {
		t.Errorf("Tables() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Alpha", "Test"}, svc.Groups()); diff != "" {
		t.Errorf("Groups() mismatch (-want +got):\n%s", diff)
	}
	if got := svc.ByGroup("Test"); len(got) != 1 || got[0].Key != "widgets" {
		t.Errorf("ByGroup(Test) = %+v", got)
	}

	if _, err := svc.Table("nope"); !errors.Is(err, ErrUnknownTable) {
		t.Errorf("Table(nope) error = %v, want ErrUnknownTable", err)
	}
	if _, err := svc.Process(context.Background(), "nope"); !errors.Is(err, ErrUnknownTable) {
		t.Errorf("Process(nope) error = %v, want ErrUnknownTable", err)
	}
}

// ============================================================================
// Import runs
// ============================================================================

func TestService_Import(t *testing.T) {
	svc, store, audit := newTestService(t)
	ctx := WithRequestInfo(context.Background(), RequestInfo{RequestID: "req-1", Source: "cli"})

	res, err := svc.Import(ctx, "widgets",
		Source{Name: "a.csv", Reader: strings.NewReader("Name,Qty\nbolt,1\nnut,2\n")},
		Source{Name: "b.csv", Reader: strings.NewReader("Widget\nNUT\nwasher\n,\n")},
	)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	if res.Phase != PhaseComplete || res.Inserted != 3 || res.Queued != 3 {
		t.Errorf("result = %+v", res)
	}
	if res.RunID == "" {
		t.Error("RunID is empty")
	}
	if len(res.Files) != 2 || res.Files[1].Duplicates != 1 {
		t.Errorf("Files = %+v", res.Files)
	}
	var got []string
	for _, row := range res.Rows {
		got = append(got, row["Name"].(string))
	}
	if diff := cmp.Diff([]string{"bolt", "nut", "washer"}, got); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
	if len(store.rows) != 3 {
		t.Errorf("store has %d rows, want 3", len(store.rows))
	}

	entries := audit.Entries("widgets")
	if len(entries) != 3 {
		t.Fatalf("got %d audit entries, want 3", len(entries))
	}
	last := entries[2]
	if last.Action != ActionImport || last.Severity != SeverityHigh || last.RunID != res.RunID {
		t.Errorf("import audit entry = %+v", last)
	}
	if last.RequestID != "req-1" || last.Source != "cli" || last.RowsAffected != 3 {
		t.Errorf("import audit entry caller = %+v", last)
	}
}

func TestService_ImportHeaderErrorDiscardsQueue(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Import(ctx, "widgets",
		Source{Name: "good.csv", Reader: strings.NewReader("Name\nbolt\n")},
		Source{Name: "bad.csv", Reader: strings.NewReader("Qty\n1\n")},
	)
	var herr *HeaderError
	if !errors.As(err, &herr) {
		t.Fatalf("error = %v, want *HeaderError", err)
	}

	h, _ := svc.Table("widgets")
	if h.Pending() != 0 {
		t.Errorf("Pending() = %d after failed import, want 0", h.Pending())
	}
	if store.callCount() != 0 {
		t.Errorf("store was touched: %v", store.calls)
	}
}

func TestService_ImportNoSources(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.Import(context.Background(), "widgets"); !errors.Is(err, ErrNoFile) {
		t.Errorf("error = %v, want ErrNoFile", err)
	}
	if _, err := svc.QueueCSV(context.Background(), "widgets", "x.csv", nil); !errors.Is(err, ErrNoFile) {
		t.Errorf("QueueCSV(nil) error = %v, want ErrNoFile", err)
	}
}

func TestService_ProcessFailure(t *testing.T) {
	svc, store, audit := newTestService(t)
	ctx := context.Background()
	boom := errors.New("connection refused")
	store.allErr = boom

	if _, err := svc.QueueCSV(ctx, "widgets", "a.csv", strings.NewReader("Name\nbolt\n")); err != nil {
		t.Fatal(err)
	}
	res, err := svc.Process(ctx, "widgets")
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
	if res.Phase != PhaseFailed || !strings.Contains(res.Error, "DB004") {
		t.Errorf("result = %+v", res)
	}

	h, _ := svc.Table("widgets")
	if h.Pending() != 0 || h.State() != StateIdle {
		t.Errorf("after failure: pending=%d state=%v", h.Pending(), h.State())
	}
	entries := audit.Entries("widgets")
	if e := entries[len(entries)-1]; e.Error == "" {
		t.Errorf("audit entry should carry the error: %+v", e)
	}
}

func TestService_ProcessBusy(t *testing.T) {
	limiter := NewImportLimiter(1, 10*time.Millisecond)
	svc, store, _ := newTestService(t, WithLimiter(limiter))
	ctx := context.Background()

	if !limiter.TryAcquire() {
		t.Fatal("TryAcquire failed")
	}

	if _, err := svc.QueueCSV(ctx, "widgets", "a.csv", strings.NewReader("Name\nbolt\n")); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Process(ctx, "widgets"); !errors.Is(err, ErrTooManyImports) {
		t.Errorf("error = %v, want ErrTooManyImports", err)
	}

	h, _ := svc.Table("widgets")
	if got := h.Pending(); got != 1 {
		t.Fatalf("Pending after refused run = %d, want 1", got)
	}

	limiter.Release()
	res, err := svc.Process(ctx, "widgets")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if res.Inserted != 1 || len(store.rows) != 1 {
		t.Errorf("retry inserted %d, store has %d rows", res.Inserted, len(store.rows))
	}
}

func TestService_ImportBusyDiscards(t *testing.T) {
	limiter := NewImportLimiter(1, 10*time.Millisecond)
	svc, _, _ := newTestService(t, WithLimiter(limiter))

	if !limiter.TryAcquire() {
		t.Fatal("TryAcquire failed")
	}
	defer limiter.Release()

	_, err := svc.Import(context.Background(), "widgets", Source{Name: "a.csv", Reader: strings.NewReader("Name\nbolt\n")})
	if !errors.Is(err, ErrTooManyImports) {
		t.Errorf("error = %v, want ErrTooManyImports", err)
	}
	h, _ := svc.Table("widgets")
	if got := h.Pending(); got != 0 {
		t.Errorf("Pending = %d, want 0", got)
	}
}

func TestService_ProcessAll(t *testing.T) {
	svc, _, _ := newTestService(t)
	gadgets := &fakeStore[*widget]{}
	svc.MustRegister(Bind(NewImporter(gadgetTable(), Store[*widget](gadgets))))
	ctx := context.Background()

	for _, key := range []string{"widgets", "gadgets"} {
		if _, err := svc.QueueCSV(ctx, key, key+".csv", strings.NewReader("Name\none\ntwo\n")); err != nil {
			t.Fatal(err)
		}
	}

	results, err := svc.ProcessAll(ctx)
	if err != nil {
		t.Fatalf("ProcessAll: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].TableKey != "gadgets" || results[1].TableKey != "widgets" {
		t.Errorf("results not in key order: %s, %s", results[0].TableKey, results[1].TableKey)
	}
	for _, r := range results {
		if r.Inserted != 2 {
			t.Errorf("%s inserted %d, want 2", r.TableKey, r.Inserted)
		}
	}

	// Nothing pending: no runs.
	results, err = svc.ProcessAll(ctx)
	if err != nil || len(results) != 0 {
		t.Errorf("second ProcessAll = %v, %v", results, err)
	}
}

// ============================================================================
// Bulk mutations
// ============================================================================

func TestService_UpdateUnsupported(t *testing.T) {
	svc, _, audit := newTestService(t)

	_, err := svc.Update(context.Background(), "widgets", Where("Name", OpEquals, "bolt"), map[string]string{"Qty": "3"})
	if !errors.Is(err, ErrUnsupportedOperation) {
		t.Fatalf("error = %v, want ErrUnsupportedOperation", err)
	}

	e := audit.Entries("widgets")[0]
	if e.Action != ActionBulkUpdate || e.Filter != "Name eq bolt" {
		t.Errorf("audit entry = %+v", e)
	}
	if diff := cmp.Diff([]string{"Qty"}, e.Columns); diff != "" {
		t.Errorf("audit columns mismatch (-want +got):\n%s", diff)
	}
}

func TestService_UpdateBadValue(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Update(context.Background(), "widgets", FilterSet{}, map[string]string{"Qty": "many"})
	if !errors.Is(err, ErrInvalidCell) {
		t.Errorf("error = %v, want ErrInvalidCell", err)
	}
	_, err = svc.Update(context.Background(), "widgets", FilterSet{}, map[string]string{"Colour": "red"})
	if !errors.Is(err, ErrUnknownColumn) {
		t.Errorf("error = %v, want ErrUnknownColumn", err)
	}
}

func TestService_DeleteAndReset(t *testing.T) {
	svc, store, audit := newTestService(t)
	ctx := context.Background()

	if _, err := svc.DeleteWhere(ctx, "widgets", FilterSet{}); !errors.Is(err, ErrInvalidFilter) {
		t.Errorf("DeleteWhere(empty) error = %v, want ErrInvalidFilter", err)
	}

	if _, err := svc.Import(ctx, "widgets", Source{Name: "a.csv", Reader: strings.NewReader("Name\na\nb\n")}); err != nil {
		t.Fatal(err)
	}
	n, err := svc.Reset(ctx, "widgets")
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if n != 2 || len(store.rows) != 0 {
		t.Errorf("Reset removed %d, store has %d", n, len(store.rows))
	}

	entries := audit.Entries("")
	e := entries[len(entries)-1]
	if e.Action != ActionTableReset || e.Severity != SeverityCritical || e.RowsAffected != 2 {
		t.Errorf("reset audit entry = %+v", e)
	}
}

func TestService_Records(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Import(ctx, "widgets", Source{Name: "a.csv", Reader: strings.NewReader("Name,Price\nbolt,1.5\n")}); err != nil {
		t.Fatal(err)
	}
	rows, err := svc.Records(ctx, "widgets", FilterSet{})
	if err != nil {
		t.Fatal(err)
	}
	want := []map[string]any{{"ID": int64(1), "Name": "bolt", "Qty": int64(0), "Price": "1.50"}}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("Records mismatch (-want +got):\n%s", diff)
	}
}

func TestService_QueueCancelled(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.QueueCSV(ctx, "widgets", "a.csv", io.NopCloser(strings.NewReader("Name\na\n")))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
