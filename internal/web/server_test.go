package web

import (
	"bytes"
	"encoding/json"
	"io"
	"maps"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/JonMunkholm/importer/internal/config"
	"github.com/JonMunkholm/importer/internal/core"
	"github.com/JonMunkholm/importer/internal/core/tables"
	"github.com/JonMunkholm/importer/internal/metrics"
	"github.com/JonMunkholm/importer/internal/storage/memory"
)

const transactionsCSV = "Date,Payee,Amount,Bank Reference\n" +
	"2024-01-02,Grocer,-12.50,R1\n" +
	"2024-01-03,Utility,-80.00,R2\n" +
	"2024-01-03,Utility,-80.00,R2\n"

type testEnv struct {
	server *Server
	audit  *core.MemoryAuditSink
	stores tables.Stores
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	audit := core.NewMemoryAuditSink(0)
	svc := core.NewService(core.WithAuditSink(audit), core.WithImportTimeout(5*time.Second))
	m := metrics.New(svc.Limiter())

	stores := memory.Stores(memory.NewDB())
	if err := tables.Register(svc, stores, tables.Options{Observer: m}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	cfg := &config.Config{
		Server: config.ServerConfig{RequestTimeout: 5 * time.Second},
		Import: config.ImportConfig{MaxFileSize: 1 << 20},
	}
	return &testEnv{server: NewServer(svc, cfg, m.Handler()), audit: audit, stores: stores}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func multipartBody(t *testing.T, files map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range slices.Sorted(maps.Keys(files)) {
		fw, err := mw.CreateFormFile("file", name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(files[name]))
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func (e *testEnv) importTransactions(t *testing.T) core.ImportResult {
	t.Helper()
	body, ct := multipartBody(t, map[string]string{"bank.csv": transactionsCSV})
	req := httptest.NewRequest("POST", "/api/import/transactions", body)
	req.Header.Set("Content-Type", ct)
	rec := e.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("import status = %d, body %s", rec.Code, rec.Body)
	}
	return decode[core.ImportResult](t, rec)
}

// ============================================================================
// Tables
// ============================================================================

func TestListTables(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, httptest.NewRequest("GET", "/api/tables?group=Banking", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[[]TableResponse](t, rec)

	var keys []string
	for _, tbl := range got {
		keys = append(keys, tbl.Key)
	}
	if diff := cmp.Diff([]string{"splits", "transactions"}, keys); diff != "" {
		t.Errorf("tables mismatch (-want +got):\n%s", diff)
	}
	if got[1].State != "idle" || len(got[1].Columns) == 0 {
		t.Errorf("transactions = %+v", got[1])
	}
}

func TestGetTable_Unknown(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, httptest.NewRequest("GET", "/api/tables/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if resp := decode[ErrorResponse](t, rec); resp.Code != "TBL001" {
		t.Errorf("code = %q, want TBL001", resp.Code)
	}
}

// ============================================================================
// Imports
// ============================================================================

func TestImport(t *testing.T) {
	env := newTestEnv(t)
	result := env.importTransactions(t)

	if result.Phase != core.PhaseComplete || result.Inserted != 2 || len(result.Rows) != 2 {
		t.Errorf("result = %+v", result)
	}
	if len(result.Files) != 1 || result.Files[0].Duplicates != 1 {
		t.Errorf("files = %+v", result.Files)
	}

	// The same file again inserts nothing.
	if again := env.importTransactions(t); again.Inserted != 0 || again.Existing != 2 {
		t.Errorf("second import = %+v", again)
	}

	entries := env.audit.Entries("transactions")
	if len(entries) == 0 || entries[0].Source != "http" || entries[0].RequestID == "" {
		t.Errorf("audit entries = %+v", entries)
	}
}

func TestImport_NoFile(t *testing.T) {
	env := newTestEnv(t)
	body, ct := multipartBody(t, nil)
	req := httptest.NewRequest("POST", "/api/import/transactions", body)
	req.Header.Set("Content-Type", ct)

	rec := env.do(t, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestImport_MissingColumn(t *testing.T) {
	env := newTestEnv(t)
	body, ct := multipartBody(t, map[string]string{"bad.csv": "Payee\nGrocer\n"})
	req := httptest.NewRequest("POST", "/api/import/transactions", body)
	req.Header.Set("Content-Type", ct)

	rec := env.do(t, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400; body %s", rec.Code, rec.Body)
	}
	if result := decode[core.ImportResult](t, rec); result.Phase != core.PhaseFailed || result.Error == "" {
		t.Errorf("result = %+v", result)
	}
}

func TestQueueThenProcess(t *testing.T) {
	env := newTestEnv(t)
	body, ct := multipartBody(t, map[string]string{"payees.csv": "Payee,Category\nGrocer,Food\ngrocer,Food\n"})
	req := httptest.NewRequest("POST", "/api/queue/payees", body)
	req.Header.Set("Content-Type", ct)

	rec := env.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("queue status = %d, body %s", rec.Code, rec.Body)
	}
	if queued := decode[map[string]any](t, rec); queued["pending"] != float64(2) {
		t.Errorf("pending = %v, want 2", queued["pending"])
	}

	rec = env.do(t, httptest.NewRequest("POST", "/api/process", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("process status = %d, body %s", rec.Code, rec.Body)
	}
	results := decode[struct {
		Results []core.ImportResult `json:"results"`
	}](t, rec)
	if len(results.Results) != 1 || results.Results[0].TableKey != "payees" || results.Results[0].Inserted != 2 {
		t.Errorf("results = %+v", results)
	}
}

func TestQueue_PartialFailureReportsQueuedFiles(t *testing.T) {
	env := newTestEnv(t)
	body, ct := multipartBody(t, map[string]string{
		"a.csv": "Payee,Category\nGrocer,Food\n",
		"b.csv": "Category\nFood\n",
	})
	req := httptest.NewRequest("POST", "/api/queue/payees", body)
	req.Header.Set("Content-Type", ct)

	rec := env.do(t, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400; body %s", rec.Code, rec.Body)
	}
	resp := decode[QueueResponse](t, rec)
	if len(resp.Files) != 2 || resp.Files[0].Queued != 1 {
		t.Errorf("files = %+v", resp.Files)
	}
	if resp.Pending != 1 {
		t.Errorf("pending = %d, want 1", resp.Pending)
	}
	if resp.Error == nil || resp.Error.Code == "" {
		t.Errorf("error = %+v, want a coded error", resp.Error)
	}
}

// ============================================================================
// Records and mutations
// ============================================================================

func TestRecordsAndFlags(t *testing.T) {
	env := newTestEnv(t)
	env.importTransactions(t)

	rec := env.do(t, httptest.NewRequest("GET", "/api/records/transactions?filter[Payee]=contains:groc", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("records status = %d, body %s", rec.Code, rec.Body)
	}
	page := decode[struct {
		Total int              `json:"total"`
		Rows  []map[string]any `json:"rows"`
	}](t, rec)
	if page.Total != 1 || page.Rows[0]["Amount"] != "-12.50" {
		t.Errorf("records = %+v", page)
	}

	req := httptest.NewRequest("POST", "/api/transactions/hide",
		strings.NewReader(`{"filters":[{"column":"BankReference","op":"eq","value":"R2"}]}`))
	rec = env.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("hide status = %d, body %s", rec.Code, rec.Body)
	}
	if got := decode[map[string]any](t, rec); got["updated"] != float64(1) {
		t.Errorf("hide = %v", got)
	}

	hidden, err := env.stores.Transactions.Find(t.Context(), core.Where("Hidden", core.OpEquals, true))
	if err != nil || len(hidden) != 1 || hidden[0].Payee != "Utility" {
		t.Errorf("hidden rows = %v, %v", hidden, err)
	}
}

func TestUpdate_UnsupportedOnMemory(t *testing.T) {
	env := newTestEnv(t)
	env.importTransactions(t)

	req := httptest.NewRequest("POST", "/api/update/transactions",
		strings.NewReader(`{"values":{"Category":"Food"}}`))
	rec := env.do(t, req)
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501; body %s", rec.Code, rec.Body)
	}
}

func TestDeleteAndReset(t *testing.T) {
	env := newTestEnv(t)
	env.importTransactions(t)

	rec := env.do(t, httptest.NewRequest("POST", "/api/delete/transactions", strings.NewReader(`{"filters":[]}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty delete status = %d, want 400", rec.Code)
	}

	rec = env.do(t, httptest.NewRequest("POST", "/api/delete/transactions",
		strings.NewReader(`{"filters":[{"column":"Amount","op":"lt","value":-50}]}`)))
	if got := decode[map[string]any](t, rec); got["deleted"] != float64(1) {
		t.Errorf("delete = %v", got)
	}

	rec = env.do(t, httptest.NewRequest("POST", "/api/reset/transactions", nil))
	if got := decode[map[string]any](t, rec); got["deleted"] != float64(1) {
		t.Errorf("reset = %v", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.importTransactions(t)

	rec := env.do(t, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `importer_rows_inserted_total{table="transactions"} 2`) {
		t.Errorf("metrics output missing inserted counter:\n%s", rec.Body)
	}
}

func TestAuditEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.importTransactions(t)

	rec := env.do(t, httptest.NewRequest("GET", "/api/audit?table=transactions&action=import", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	got := decode[struct {
		Entries []core.AuditEntry `json:"entries"`
	}](t, rec)
	if len(got.Entries) != 1 || got.Entries[0].RowsAffected != 2 || got.Entries[0].Source != "http" {
		t.Errorf("entries = %+v", got.Entries)
	}
}
