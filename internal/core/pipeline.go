package core

// pipeline.go implements the import run for one record type.
//
// An Importer moves through Idle -> Queuing -> Processing -> Idle:
//
//	Queue/QueueCSV   add rows to the accumulator (deduplicated on arrival)
//	Process          drop rows already stored, bulk insert the rest,
//	                 run dependent phases, return survivors in default order
//
// Whatever Process returns, the accumulator is empty and the importer is
// Idle afterwards. An Importer is not safe for concurrent use; distinct
// importers are independent.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"slices"
	"time"
)

// State is the lifecycle position of an Importer.
type State int

const (
	StateIdle State = iota
	StateQueuing
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateQueuing:
		return "queuing"
	case StateProcessing:
		return "processing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// RunStats counts what one Process call did.
type RunStats struct {
	Queued     int // accumulator size when processing began
	Existing   int // queued rows dropped because the store already had them
	Inserted   int // parent rows inserted
	Dependents int // dependent rows inserted
}

// Observer receives pipeline events. The metrics package implements it.
type Observer interface {
	RowsQueued(table string, queued, duplicates int)
	RunFinished(table string, stats RunStats, elapsed time.Duration, err error)
}

// dependentPhase runs after the parent insert with the inserted parents.
// It returns the number of dependent rows it inserted.
type dependentPhase[T any] func(ctx context.Context, parents []T) (int, error)

// Option configures an Importer.
type Option[T Record[T]] func(*Importer[T])

// WithLogger sets the logger used for run summaries.
func WithLogger[T Record[T]](l *slog.Logger) Option[T] {
	return func(i *Importer[T]) {
		if l != nil {
			i.logger = l
		}
	}
}

// WithObserver registers an event observer.
func WithObserver[T Record[T]](o Observer) Option[T] {
	return func(i *Importer[T]) {
		if o != nil {
			i.observers = append(i.observers, o)
		}
	}
}

// WithMaxFileSize caps the bytes QueueCSV reads from one source.
func WithMaxFileSize[T Record[T]](n int64) Option[T] {
	return func(i *Importer[T]) {
		i.maxFileSize = n
	}
}

// Importer queues, deduplicates and commits rows of one record type.
type Importer[T Record[T]] struct {
	table       *Table[T]
	store       Store[T]
	acc         *Accumulator[T]
	state       State
	dependents  []dependentPhase[T]
	observers   []Observer
	logger      *slog.Logger
	maxFileSize int64
	last        RunStats
}

// NewImporter creates an idle importer writing through store.
func NewImporter[T Record[T]](table *Table[T], store Store[T], opts ...Option[T]) *Importer[T] {
	imp := &Importer[T]{
		table:  table,
		store:  store,
		acc:    NewAccumulator[T](),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(imp)
	}
	imp.logger = imp.logger.With("table", table.Info.Key)
	return imp
}

// Table returns the importer's table descriptor.
func (imp *Importer[T]) Table() *Table[T] {
	return imp.table
}

// Store returns the store the importer commits to.
func (imp *Importer[T]) Store() Store[T] {
	return imp.store
}

// State returns the current lifecycle state.
func (imp *Importer[T]) State() State {
	return imp.state
}

// Count returns the number of rows waiting for Process.
func (imp *Importer[T]) Count() int {
	return imp.acc.Count()
}

// LastRun returns the statistics of the most recent Process call.
func (imp *Importer[T]) LastRun() RunStats {
	return imp.last
}

// Reset drops every queued row and returns the importer to Idle.
func (imp *Importer[T]) Reset() {
	imp.acc.Reset()
	imp.state = StateIdle
}

// Queue adds rows to the pending set. Rows import-equal to one already
// queued are dropped silently. Returns how many rows were added.
func (imp *Importer[T]) Queue(items iter.Seq[T]) (int, error) {
	imp.state = StateQueuing
	total := 0
	counted := func(yield func(T) bool) {
		for v := range items {
			total++
			if !yield(v) {
				return
			}
		}
	}
	added, err := imp.acc.Queue(counted)
	imp.notifyQueued(added, total-added)
	return added, err
}

// QueueItems is Queue for a fixed list of rows.
func (imp *Importer[T]) QueueItems(items ...T) (int, error) {
	return imp.Queue(slices.Values(items))
}

// QueueRows drains a RowSource into the pending set. Rows the source
// reports as invalid are skipped and listed in the report. Any other source
// error stops queuing; rows queued before it stay queued.
func (imp *Importer[T]) QueueRows(name string, src RowSource[T]) (QueueReport, error) {
	imp.state = StateQueuing
	report := QueueReport{FileName: name}

	for rec, err := range src.Rows() {
		if err != nil {
			var rowErr *RowError
			if errors.As(err, &rowErr) {
				report.Rows++
				report.FailedRows = append(report.FailedRows, FailedRow{
					FileName:   name,
					LineNumber: rowErr.Line,
					Reason:     rowErr.Result.Error(),
				})
				continue
			}
			imp.notifyQueued(report.Queued, report.Duplicates)
			return report, err
		}

		report.Rows++
		ok, err := imp.acc.Add(rec)
		if err != nil {
			imp.notifyQueued(report.Queued, report.Duplicates)
			return report, err
		}
		if ok {
			report.Queued++
		} else {
			report.Duplicates++
		}
	}

	imp.notifyQueued(report.Queued, report.Duplicates)
	imp.logger.Debug("queued import source",
		"file", name,
		"rows", report.Rows,
		"queued", report.Queued,
		"duplicates", report.Duplicates,
		"failed", len(report.FailedRows),
	)
	return report, nil
}

// QueueCSV parses a CSV source and queues its rows.
func (imp *Importer[T]) QueueCSV(name string, r io.Reader) (QueueReport, error) {
	counted := NewCountingReader(r, imp.maxFileSize)
	return imp.QueueRows(name, CSVSource[T]{Reader: counted, Table: imp.table})
}

// Process commits the pending rows and returns those actually inserted,
// in default order. Rows already present in the store are skipped. Errors
// from the store are returned unwrapped. With nothing queued it returns an
// empty slice without touching the store.
func (imp *Importer[T]) Process(ctx context.Context) (inserted []T, err error) {
	start := time.Now()
	stats := RunStats{Queued: imp.acc.Count()}

	defer func() {
		imp.acc.Reset()
		imp.state = StateIdle
		imp.last = stats
		imp.notifyFinished(stats, time.Since(start), err)
	}()

	if stats.Queued == 0 {
		return []T{}, nil
	}
	imp.state = StateProcessing

	existing, err := imp.store.All(ctx)
	if err != nil {
		return nil, err
	}

	stats.Existing, err = imp.acc.Except(existing)
	if err != nil {
		return nil, err
	}

	survivors := imp.acc.DrainAll()
	if len(survivors) == 0 {
		imp.logger.Info("import run found nothing new", "queued", stats.Queued)
		return []T{}, nil
	}

	if err = imp.store.BulkInsert(ctx, survivors); err != nil {
		return nil, err
	}
	stats.Inserted = len(survivors)

	for _, phase := range imp.dependents {
		n, perr := phase(ctx, survivors)
		stats.Dependents += n
		if perr != nil {
			err = perr
			return nil, err
		}
	}

	imp.logger.Info("import run complete",
		"queued", stats.Queued,
		"existing", stats.Existing,
		"inserted", stats.Inserted,
		"dependents", stats.Dependents,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return DefaultOrder(survivors), nil
}

func (imp *Importer[T]) notifyQueued(queued, duplicates int) {
	for _, o := range imp.observers {
		o.RowsQueued(imp.table.Info.Key, queued, duplicates)
	}
}

func (imp *Importer[T]) notifyFinished(stats RunStats, elapsed time.Duration, err error) {
	for _, o := range imp.observers {
		o.RunFinished(imp.table.Info.Key, stats, elapsed, err)
	}
}
