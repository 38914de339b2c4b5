// Package application assembles the import service from configuration:
// the storage backend, the table importers, the limiter and metrics.
// Both the HTTP server and the importctl CLI start from New.
package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/importer/internal/config"
	"github.com/JonMunkholm/importer/internal/core"
	"github.com/JonMunkholm/importer/internal/core/tables"
	"github.com/JonMunkholm/importer/internal/metrics"
	"github.com/JonMunkholm/importer/internal/storage/memory"
	"github.com/JonMunkholm/importer/internal/storage/postgres"
)

// App is a wired import service.
type App struct {
	Service *core.Service
	Metrics *metrics.Metrics
	Stores  tables.Stores

	cfg      *config.Config
	pool     *pgxpool.Pool
	auditLog *postgres.AuditLog
}

// Option adjusts the service built by New.
type Option func(*options)

type options struct {
	audit core.AuditSink
}

// WithAuditSink replaces the default audit sinks.
func WithAuditSink(a core.AuditSink) Option {
	return func(o *options) { o.audit = a }
}

// New connects the configured backend and registers every table.
// Close must be called to release the database pool.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	app := &App{cfg: cfg}
	audit := o.audit
	switch cfg.Import.Backend {
	case config.BackendMemory:
		app.Stores = memory.Stores(memory.NewDB())
		if audit == nil {
			audit = core.MultiAuditSink{core.SlogAuditSink{}, core.NewMemoryAuditSink(0)}
		}
		slog.Info("using in-memory storage")
	case config.BackendPostgres:
		pool, err := postgres.Connect(ctx, cfg.Database.URL, postgres.PoolOptions{
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		})
		if err != nil {
			return nil, err
		}
		if cfg.Database.Migrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
			slog.Info("database schema applied")
		}
		app.pool = pool
		app.Stores = postgres.Stores(pool)
		app.auditLog = postgres.NewAuditLog(pool)
		if audit == nil {
			audit = core.MultiAuditSink{core.SlogAuditSink{}, app.auditLog}
		}
	default:
		return nil, fmt.Errorf("unknown import backend %q", cfg.Import.Backend)
	}

	limiter := core.NewImportLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime)
	app.Metrics = metrics.New(limiter)
	app.Service = core.NewService(
		core.WithLimiter(limiter),
		core.WithImportTimeout(cfg.Import.Timeout),
		core.WithAuditSink(audit),
	)

	err := tables.Register(app.Service, app.Stores, tables.Options{
		Observer:    app.Metrics,
		MaxFileSize: cfg.Import.MaxFileSize,
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("register tables: %w", err)
	}

	slog.Info("tables registered",
		"count", len(app.Service.Tables()),
		"groups", len(app.Service.Groups()),
	)
	for _, group := range app.Service.Groups() {
		slog.Debug("table group", "group", group, "tables", len(app.Service.ByGroup(group)))
	}
	return app, nil
}

// Start runs background jobs until ctx is cancelled. With the postgres
// backend it prunes audit entries older than the configured retention.
func (a *App) Start(ctx context.Context) {
	if a.auditLog == nil || a.cfg.Audit.Retention <= 0 {
		return
	}
	go a.auditLog.RunRetention(ctx, postgres.RetentionConfig{
		MaxAge:    a.cfg.Audit.Retention,
		BatchSize: a.cfg.Audit.PruneBatchSize,
		Interval:  a.cfg.Audit.PruneInterval,
	})
}

// Close releases the database pool, if any.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}
