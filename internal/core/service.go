package core

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ImportTimeout is the default maximum duration for one import run.
var ImportTimeout = 10 * time.Minute

// Service runs imports and bulk operations against registered tables.
//
// Queue and process calls for one table are serialized; distinct tables
// run concurrently, bounded by the import limiter.
type Service struct {
	mu     sync.RWMutex
	tables map[string]*tableEntry

	limiter *ImportLimiter
	audit   AuditSink
	logger  *slog.Logger
	timeout time.Duration
}

type tableEntry struct {
	mu     sync.Mutex // serializes queue and process for this table
	handle Handle
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLimiter sets the limiter bounding concurrent import runs.
func WithLimiter(l *ImportLimiter) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.limiter = l
		}
	}
}

// WithAuditSink sets where audit entries go. The default logs them.
func WithAuditSink(a AuditSink) ServiceOption {
	return func(s *Service) {
		if a != nil {
			s.audit = a
		}
	}
}

// WithServiceLogger sets the service logger.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithImportTimeout bounds each Process call. Zero disables the bound.
func WithImportTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.timeout = d
	}
}

// NewService creates a Service with no tables registered.
func NewService(opts ...ServiceOption) *Service {
	s := &Service{
		tables:  make(map[string]*tableEntry),
		limiter: NewImportLimiter(DefaultMaxConcurrentImports, DefaultMaxWaitTime),
		logger:  slog.Default(),
		timeout: ImportTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.audit == nil {
		s.audit = SlogAuditSink{Logger: s.logger}
	}
	return s
}

// ============================================================================
// Registry
// ============================================================================

// Register adds a table. Registering the same key twice is an error.
func (s *Service) Register(h Handle) error {
	key := h.Info().Key
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tables[key]; exists {
		return fmt.Errorf("table already registered: %s", key)
	}
	s.tables[key] = &tableEntry{handle: h}
	return nil
}

// MustRegister is Register that panics on a duplicate key.
func (s *Service) MustRegister(handles ...Handle) {
	for _, h := range handles {
		if err := s.Register(h); err != nil {
			panic(err)
		}
	}
}

// Table returns the handle registered under key.
func (s *Service) Table(key string) (Handle, error) {
	e, err := s.entry(key)
	if err != nil {
		return nil, err
	}
	return e.handle, nil
}

// Tables returns all registered tables, sorted by group then key.
func (s *Service) Tables() []TableInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]TableInfo, 0, len(s.tables))
	for _, e := range s.tables {
		infos = append(infos, e.handle.Info())
	}
	slices.SortFunc(infos, func(a, b TableInfo) int {
		return cmp.Or(cmp.Compare(a.Group, b.Group), cmp.Compare(a.Key, b.Key))
	})
	return infos
}

// ByGroup returns the tables of one group, sorted by key.
func (s *Service) ByGroup(group string) []TableInfo {
	var out []TableInfo
	for _, info := range s.Tables() {
		if info.Group == group {
			out = append(out, info)
		}
	}
	return out
}

// Groups returns all unique group names, sorted alphabetically.
func (s *Service) Groups() []string {
	seen := make(map[string]bool)
	for _, info := range s.Tables() {
		seen[info.Group] = true
	}
	return slices.Sorted(maps.Keys(seen))
}

// Limiter returns the limiter bounding import runs.
func (s *Service) Limiter() *ImportLimiter {
	return s.limiter
}

func (s *Service) entry(key string) (*tableEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.tables[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, key)
	}
	return e, nil
}

func (s *Service) keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.tables))
}

// ============================================================================
// Import runs
// ============================================================================

// Source is a named CSV input.
type Source struct {
	Name   string
	Reader io.Reader
}

// QueueCSV parses r and queues its rows for the next Process on key.
func (s *Service) QueueCSV(ctx context.Context, key, name string, r io.Reader) (QueueReport, error) {
	e, err := s.entry(key)
	if err != nil {
		return QueueReport{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return s.queueLocked(ctx, e, name, r)
}

func (s *Service) queueLocked(ctx context.Context, e *tableEntry, name string, r io.Reader) (QueueReport, error) {
	if err := ctx.Err(); err != nil {
		return QueueReport{FileName: name}, err
	}
	if r == nil {
		return QueueReport{FileName: name}, ErrNoFile
	}

	report, err := e.handle.QueueCSV(name, r)
	s.record(ctx, AuditLogParams{
		Action:       ActionQueue,
		TableKey:     e.handle.Info().Key,
		RowsAffected: int64(report.Queued),
		Err:          err,
	})
	if err != nil {
		return report, fmt.Errorf("queue %s: %w", name, err)
	}
	return report, nil
}

// Process commits everything queued for key.
// The result is returned even when the run fails.
func (s *Service) Process(ctx context.Context, key string) (*ImportResult, error) {
	e, err := s.entry(key)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return s.processLocked(ctx, e)
}

func (s *Service) processLocked(ctx context.Context, e *tableEntry) (*ImportResult, error) {
	key := e.handle.Info().Key
	result := &ImportResult{
		RunID:    uuid.NewString(),
		TableKey: key,
		Phase:    PhaseProcessing,
	}
	start := time.Now()
	logger := s.logger.With("run_id", result.RunID, "table", key)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	started := false
	err := s.limiter.Run(ctx, key, func(ctx context.Context) error {
		started = true
		stats, rows, err := e.handle.Process(ctx)
		result.Queued = stats.Queued
		result.Existing = stats.Existing
		result.Inserted = stats.Inserted
		result.Dependents = stats.Dependents
		result.Rows = rows
		return err
	})
	// A run refused by the limiter leaves the queue intact for a retry.
	if err != nil && started {
		e.handle.Discard()
	}
	result.Duration = time.Since(start)

	s.record(ctx, AuditLogParams{
		Action:       ActionImport,
		TableKey:     key,
		RunID:        result.RunID,
		RowsAffected: int64(result.Inserted + result.Dependents),
		Err:          err,
	})

	if err != nil {
		result.Phase = PhaseFailed
		result.Error = FormatUserError(err)
		logger.Error("import run failed", "error", err, "code", MapError(err).Code)
		return result, fmt.Errorf("process %s: %w", key, err)
	}
	result.Phase = PhaseComplete
	logger.Info("import run finished",
		"inserted", result.Inserted,
		"existing", result.Existing,
		"dependents", result.Dependents,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

// Import queues every source and processes them as one run. If any source
// fails to queue, nothing is processed and the queue is discarded.
func (s *Service) Import(ctx context.Context, key string, sources ...Source) (*ImportResult, error) {
	if len(sources) == 0 {
		return nil, ErrNoFile
	}
	e, err := s.entry(key)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	reports := make([]QueueReport, 0, len(sources))
	for _, src := range sources {
		report, err := s.queueLocked(ctx, e, src.Name, src.Reader)
		reports = append(reports, report)
		if err != nil {
			e.handle.Discard()
			return &ImportResult{
				TableKey: key,
				Phase:    PhaseFailed,
				Files:    reports,
				Error:    FormatUserError(err),
			}, err
		}
	}

	result, err := s.processLocked(ctx, e)
	if err != nil {
		e.handle.Discard()
	}
	result.Files = reports
	return result, err
}

// ProcessAll processes every table with queued rows concurrently and
// returns their results in key order. The first failure cancels the runs
// that have not started yet.
func (s *Service) ProcessAll(ctx context.Context) ([]*ImportResult, error) {
	var pending []string
	for _, key := range s.keys() {
		h, err := s.Table(key)
		if err == nil && h.Pending() > 0 {
			pending = append(pending, key)
		}
	}

	results := make([]*ImportResult, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	for i, key := range pending {
		g.Go(func() error {
			res, err := s.Process(gctx, key)
			results[i] = res
			return err
		})
	}
	err := g.Wait()
	return slices.DeleteFunc(results, func(r *ImportResult) bool { return r == nil }), err
}

// ============================================================================
// Queries and bulk mutations
// ============================================================================

// Records returns the rows of key matching filter, ordered by identity.
func (s *Service) Records(ctx context.Context, key string, filter FilterSet) ([]map[string]any, error) {
	h, err := s.Table(key)
	if err != nil {
		return nil, err
	}
	rows, err := h.Records(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("records %s: %w", key, err)
	}
	return rows, nil
}

// Update sets the given columns, as CSV-style strings, on every row of key
// matching filter.
func (s *Service) Update(ctx context.Context, key string, filter FilterSet, values map[string]string) (int64, error) {
	h, err := s.Table(key)
	if err != nil {
		return 0, err
	}
	n, columns, err := h.Update(ctx, filter, values)
	s.record(ctx, AuditLogParams{
		Action:       ActionBulkUpdate,
		TableKey:     key,
		Filter:       filter,
		Columns:      columns,
		RowsAffected: n,
		Err:          err,
	})
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", key, err)
	}
	return n, nil
}

// Flag columns set by Hide, Select and MarkImported.
const (
	FlagHidden   = "Hidden"
	FlagSelected = "Selected"
	FlagImported = "Imported"
)

// SetFlag sets one boolean column on every row of key matching filter.
func (s *Service) SetFlag(ctx context.Context, key string, filter FilterSet, column string, value bool) (int64, error) {
	return s.Update(ctx, key, filter, map[string]string{column: fmt.Sprint(value)})
}

// Hide sets the Hidden flag on matching rows.
func (s *Service) Hide(ctx context.Context, key string, filter FilterSet, hidden bool) (int64, error) {
	return s.SetFlag(ctx, key, filter, FlagHidden, hidden)
}

// Select sets the Selected flag on matching rows.
func (s *Service) Select(ctx context.Context, key string, filter FilterSet, selected bool) (int64, error) {
	return s.SetFlag(ctx, key, filter, FlagSelected, selected)
}

// MarkImported sets the Imported flag on matching rows.
func (s *Service) MarkImported(ctx context.Context, key string, filter FilterSet, imported bool) (int64, error) {
	return s.SetFlag(ctx, key, filter, FlagImported, imported)
}

// DeleteWhere removes the rows of key matching filter.
// An empty filter is rejected; use Reset to clear a table.
func (s *Service) DeleteWhere(ctx context.Context, key string, filter FilterSet) (int64, error) {
	if filter.IsEmpty() {
		return 0, fmt.Errorf("%w: delete requires at least one filter", ErrInvalidFilter)
	}
	return s.delete(ctx, key, filter, ActionBulkDelete)
}

// Reset removes every row of key.
func (s *Service) Reset(ctx context.Context, key string) (int64, error) {
	return s.delete(ctx, key, FilterSet{}, ActionTableReset)
}

func (s *Service) delete(ctx context.Context, key string, filter FilterSet, action AuditAction) (int64, error) {
	h, err := s.Table(key)
	if err != nil {
		return 0, err
	}
	n, err := h.Delete(ctx, filter)
	s.record(ctx, AuditLogParams{
		Action:       action,
		TableKey:     key,
		Filter:       filter,
		RowsAffected: n,
		Err:          err,
	})
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", key, err)
	}
	return n, nil
}

// AuditLog lists recorded audit entries, newest first, when the audit sink
// keeps them.
func (s *Service) AuditLog(ctx context.Context, q AuditQuery) ([]AuditEntry, error) {
	r, ok := s.audit.(AuditReader)
	if !ok {
		return nil, Unsupported("AuditLog", fmt.Sprintf("%T does not keep entries", s.audit))
	}
	return r.List(ctx, q)
}

func (s *Service) record(ctx context.Context, params AuditLogParams) {
	if err := s.audit.Record(ctx, NewAuditEntry(ctx, params)); err != nil {
		s.logger.Warn("failed to record audit entry", "action", params.Action, "error", err)
	}
}
