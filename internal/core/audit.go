package core

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of action being audited.
type AuditAction string

const (
	ActionImport     AuditAction = "import"
	ActionQueue      AuditAction = "queue"
	ActionBulkUpdate AuditAction = "bulk_update"
	ActionBulkDelete AuditAction = "bulk_delete"
	ActionTableReset AuditAction = "table_reset"
)

// AuditSeverity represents the severity level of an audit entry.
type AuditSeverity string

const (
	SeverityLow      AuditSeverity = "low"
	SeverityMedium   AuditSeverity = "medium"
	SeverityHigh     AuditSeverity = "high"
	SeverityCritical AuditSeverity = "critical"
)

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	ID           string        `json:"id"`
	Action       AuditAction   `json:"action"`
	Severity     AuditSeverity `json:"severity"`
	TableKey     string        `json:"tableKey"`
	RunID        string        `json:"runId,omitempty"`
	RequestID    string        `json:"requestId,omitempty"`
	IPAddress    string        `json:"ipAddress,omitempty"`
	UserAgent    string        `json:"userAgent,omitempty"`
	Source       string        `json:"source,omitempty"`
	Filter       string        `json:"filter,omitempty"`
	Columns      []string      `json:"columns,omitempty"`
	RowsAffected int64         `json:"rowsAffected"`
	Error        string        `json:"error,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// AuditLogParams contains parameters for creating an audit log entry.
type AuditLogParams struct {
	Action       AuditAction
	TableKey     string
	RunID        string
	Filter       FilterSet
	Columns      []string
	RowsAffected int64
	Err          error
}

// AuditSink stores audit entries.
type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// DefaultAuditLimit caps AuditQuery results when no limit is given.
const DefaultAuditLimit = 100

// AuditQuery selects audit entries. Zero fields match everything.
type AuditQuery struct {
	TableKey string
	Action   AuditAction
	Limit    int
}

func (q AuditQuery) limit() int {
	if q.Limit <= 0 {
		return DefaultAuditLimit
	}
	return q.Limit
}

func (q AuditQuery) matches(e AuditEntry) bool {
	return (q.TableKey == "" || e.TableKey == q.TableKey) &&
		(q.Action == "" || e.Action == q.Action)
}

// AuditReader is an AuditSink that can list what it recorded.
type AuditReader interface {
	List(ctx context.Context, q AuditQuery) ([]AuditEntry, error)
}

// determineSeverity returns the appropriate severity for an action.
func determineSeverity(action AuditAction) AuditSeverity {
	switch action {
	case ActionImport, ActionBulkUpdate, ActionBulkDelete:
		return SeverityHigh
	case ActionTableReset:
		return SeverityCritical
	case ActionQueue:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// NewAuditEntry builds an entry from params and the caller details in ctx.
func NewAuditEntry(ctx context.Context, params AuditLogParams) AuditEntry {
	info := RequestInfoFromContext(ctx)
	entry := AuditEntry{
		ID:           uuid.NewString(),
		Action:       params.Action,
		Severity:     determineSeverity(params.Action),
		TableKey:     params.TableKey,
		RunID:        params.RunID,
		RequestID:    info.RequestID,
		IPAddress:    info.IPAddress,
		UserAgent:    info.UserAgent,
		Source:       info.Source,
		Columns:      params.Columns,
		RowsAffected: params.RowsAffected,
		CreatedAt:    time.Now().UTC(),
	}
	if params.Action == ActionBulkUpdate || params.Action == ActionBulkDelete {
		entry.Filter = params.Filter.String()
	}
	if params.Err != nil {
		entry.Error = params.Err.Error()
	}
	return entry
}

// SlogAuditSink writes audit entries as structured log records.
type SlogAuditSink struct {
	Logger *slog.Logger
}

// Record implements AuditSink.
func (s SlogAuditSink) Record(ctx context.Context, e AuditEntry) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if e.Error != "" {
		level = slog.LevelWarn
	}
	logger.LogAttrs(ctx, level, "audit",
		slog.String("audit_id", e.ID),
		slog.String("action", string(e.Action)),
		slog.String("severity", string(e.Severity)),
		slog.String("table", e.TableKey),
		slog.String("run_id", e.RunID),
		slog.String("request_id", e.RequestID),
		slog.String("source", e.Source),
		slog.String("filter", e.Filter),
		slog.Any("columns", e.Columns),
		slog.Int64("rows_affected", e.RowsAffected),
		slog.String("error", e.Error),
	)
	return nil
}

// MemoryAuditSink keeps the most recent entries in memory.
type MemoryAuditSink struct {
	mu      sync.Mutex
	entries []AuditEntry
	limit   int
}

// NewMemoryAuditSink keeps at most limit entries; limit <= 0 keeps 1000.
func NewMemoryAuditSink(limit int) *MemoryAuditSink {
	if limit <= 0 {
		limit = 1000
	}
	return &MemoryAuditSink{limit: limit}
}

// Record implements AuditSink.
func (s *MemoryAuditSink) Record(_ context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	if over := len(s.entries) - s.limit; over > 0 {
		s.entries = append(s.entries[:0:0], s.entries[over:]...)
	}
	return nil
}

// Entries returns recorded entries, newest last, optionally for one table.
func (s *MemoryAuditSink) Entries(tableKey string) []AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if tableKey == "" || e.TableKey == tableKey {
			out = append(out, e)
		}
	}
	return out
}

// List implements AuditReader, newest first.
func (s *MemoryAuditSink) List(_ context.Context, q AuditQuery) ([]AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditEntry, 0, min(q.limit(), len(s.entries)))
	for i := len(s.entries) - 1; i >= 0 && len(out) < q.limit(); i-- {
		if q.matches(s.entries[i]) {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}

// MultiAuditSink fans entries out to several sinks and returns the first error.
type MultiAuditSink []AuditSink

// Record implements AuditSink.
func (m MultiAuditSink) Record(ctx context.Context, e AuditEntry) error {
	var first error
	for _, s := range m {
		if err := s.Record(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// List implements AuditReader using the first member that can list.
func (m MultiAuditSink) List(ctx context.Context, q AuditQuery) ([]AuditEntry, error) {
	for _, s := range m {
		if r, ok := s.(AuditReader); ok {
			return r.List(ctx, q)
		}
	}
	return nil, Unsupported("AuditLog", "no audit sink keeps entries")
}
