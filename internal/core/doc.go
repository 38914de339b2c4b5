// Package core provides the record import pipeline.
//
// This package holds all import logic independent of any store, UI or
// transport. It can be used by web handlers, CLI tools, or tests without
// modification.
//
// # Architecture
//
// The package is organized around several key concepts:
//
//   - Records: types implementing [Record] carry an identity, an import
//     equality with a consistent [Importable.ImportHash], and a default order.
//   - Accumulator: [Accumulator] collects queued rows, keeping the first row
//     of every import-equality class.
//   - Storage port: [Store] is implemented by the postgres and memory
//     adapters; [FilterSet] expresses bulk predicates for both.
//   - Importer: [Importer] queues rows, drops those already stored, and
//     bulk inserts the rest. [WithDependents] adds the child phase for
//     composite records.
//   - Service: [Service] registers one importer per table and serializes
//     runs per table.
//
// # Tables
//
// A [Table] describes the persisted columns of a record type. The same
// descriptor drives CSV parsing, filter evaluation, SQL generation and
// JSON rendering:
//
//	var payees = &core.Table[*Payee]{
//	    Info: core.TableInfo{Key: "payees", Group: "Budget", Label: "Payees"},
//	    New:  func() *Payee { return &Payee{} },
//	    Columns: []core.Column[*Payee]{
//	        core.TextColumn("Name", func(p *Payee) *string { return &p.Name }).Require(),
//	        core.TextColumn("Category", func(p *Payee) *string { return &p.Category }),
//	    },
//	}
//
// # Import Runs
//
// A run looks like:
//
//  1. Caller queues one or more sources with [Importer.QueueCSV] or [Importer.Queue]
//  2. [Importer.Process] snapshots the store and removes import-equal rows
//  3. Survivors are bulk inserted and get their identities
//  4. Dependent phases link children to parents and insert them
//  5. Survivors are returned in default order; the importer is idle again
//
// Storage errors are returned unwrapped, and the accumulator is cleared
// whatever the outcome.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - IMP001-IMP005: Import contract errors (comparison, unsupported, linkage)
//   - VAL001-VAL007: Validation errors (formats, missing columns, filters)
//   - FILE001-FILE004: File errors (size, format, empty)
//   - DB001-DB007: Database errors (duplicates, constraints, connections)
//
// # Audit Logging
//
// Data modifications made through [Service] are recorded to an [AuditSink]
// with severity levels:
//
//   - Low: Queued files
//   - High: Import runs, bulk updates, bulk deletes
//   - Critical: Table resets
package core
