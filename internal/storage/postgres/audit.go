package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/importer/internal/core"
)

// AuditLog stores audit entries in the audit_log table. It implements
// core.AuditSink and core.AuditReader.
type AuditLog struct {
	db DBTX
}

// NewAuditLog returns an audit log backed by db.
func NewAuditLog(db DBTX) *AuditLog {
	return &AuditLog{db: db}
}

// Record implements core.AuditSink.
func (a *AuditLog) Record(ctx context.Context, e core.AuditEntry) error {
	columns := e.Columns
	if columns == nil {
		columns = []string{}
	}
	_, err := a.db.Exec(ctx, `INSERT INTO audit_log
		(id, action, severity, table_key, run_id, request_id, ip_address, user_agent,
		 source, filter, columns, rows_affected, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		e.ID, string(e.Action), string(e.Severity), e.TableKey, e.RunID, e.RequestID,
		parseIP(e.IPAddress), e.UserAgent, e.Source, e.Filter, columns, e.RowsAffected,
		e.Error, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// List implements core.AuditReader, newest first.
func (a *AuditLog) List(ctx context.Context, q core.AuditQuery) ([]core.AuditEntry, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = core.DefaultAuditLimit
	}

	wb := NewWhereBuilder()
	wb.Add("table_key", q.TableKey)
	wb.Add("action", string(q.Action))
	where, args := wb.Build()

	query := `SELECT id, action, severity, table_key, run_id, request_id,
		COALESCE(host(ip_address), ''), user_agent, source, filter, columns,
		rows_affected, error, created_at
		FROM audit_log` + where + fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", wb.NextArgIndex())
	args = append(args, limit)

	rows, err := a.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanAuditEntry)
	if err != nil {
		return nil, fmt.Errorf("scan audit log: %w", err)
	}
	return entries, nil
}

func scanAuditEntry(row pgx.CollectableRow) (core.AuditEntry, error) {
	var (
		e           core.AuditEntry
		action, sev string
		columns     []string
	)
	err := row.Scan(&e.ID, &action, &sev, &e.TableKey, &e.RunID, &e.RequestID,
		&e.IPAddress, &e.UserAgent, &e.Source, &e.Filter, &columns,
		&e.RowsAffected, &e.Error, &e.CreatedAt)
	e.Action = core.AuditAction(action)
	e.Severity = core.AuditSeverity(sev)
	if len(columns) > 0 {
		e.Columns = columns
	}
	return e, err
}

// Prune deletes entries created before cutoff, batchSize rows per
// statement, and returns how many were removed.
func (a *AuditLog) Prune(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 5000
	}
	var total int64
	for {
		tag, err := a.db.Exec(ctx, `DELETE FROM audit_log WHERE id IN (
			SELECT id FROM audit_log WHERE created_at < $1 LIMIT $2)`, cutoff, batchSize)
		if err != nil {
			return total, fmt.Errorf("prune audit log: %w", err)
		}
		total += tag.RowsAffected()
		if tag.RowsAffected() < int64(batchSize) {
			return total, nil
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

// RetentionConfig controls RunRetention.
type RetentionConfig struct {
	MaxAge    time.Duration // entries older than this are deleted
	BatchSize int           // rows per delete statement
	Interval  time.Duration // time between runs
}

// RunRetention prunes the audit log immediately and then every
// cfg.Interval until ctx is cancelled.
func (a *AuditLog) RunRetention(ctx context.Context, cfg RetentionConfig) {
	slog.Info("audit retention started",
		"max_age", cfg.MaxAge.String(),
		"interval", cfg.Interval.String(),
		"batch_size", cfg.BatchSize,
	)

	a.pruneOnce(ctx, cfg)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("audit retention stopped")
			return
		case <-ticker.C:
			a.pruneOnce(ctx, cfg)
		}
	}
}

func (a *AuditLog) pruneOnce(ctx context.Context, cfg RetentionConfig) {
	start := time.Now()
	n, err := a.Prune(ctx, start.Add(-cfg.MaxAge), cfg.BatchSize)
	if err != nil {
		slog.Error("audit prune failed", "error", err, "pruned", n)
		return
	}
	slog.Info("pruned audit log entries",
		"entries_pruned", n,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// parseIP strips a port and returns nil for anything that is not an
// address, so the column stays NULL.
func parseIP(s string) *netip.Addr {
	if s == "" {
		return nil
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return nil
	}
	return &addr
}
