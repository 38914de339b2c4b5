// Package tables declares the importable record types and registers one
// importer per table with a core.Service.
package tables

import (
	"log/slog"

	"github.com/JonMunkholm/importer/internal/core"
)

// Stores holds the store for every table. The memory and postgres adapters
// both provide them.
type Stores struct {
	BudgetTxs    core.Store[*BudgetTx]
	Payees       core.Store[*Payee]
	Transactions core.Store[*Transaction]
	Splits       core.Store[*Split]
}

// Options configures the importers created by Register.
type Options struct {
	Logger      *slog.Logger
	Observer    core.Observer
	MaxFileSize int64
}

// Register creates an importer for every table and adds it to svc.
// Transaction imports also insert the splits each transaction owns.
func Register(svc *core.Service, stores Stores, opts Options) error {
	handles := []core.Handle{
		core.Bind(core.NewImporter(BudgetTxs, stores.BudgetTxs, importerOptions[*BudgetTx](opts)...)),
		core.Bind(core.NewImporter(Payees, stores.Payees, importerOptions[*Payee](opts)...)),
		core.Bind(core.NewImporter(Transactions, stores.Transactions,
			append(importerOptions[*Transaction](opts),
				core.WithDependents(stores.Splits, TransactionSplits))...)),
		core.Bind(core.NewImporter(Splits, stores.Splits, importerOptions[*Split](opts)...)),
	}
	for _, h := range handles {
		if err := svc.Register(h); err != nil {
			return err
		}
	}
	return nil
}

func importerOptions[T core.Record[T]](opts Options) []core.Option[T] {
	return []core.Option[T]{
		core.WithLogger[T](opts.Logger),
		core.WithObserver[T](opts.Observer),
		core.WithMaxFileSize[T](opts.MaxFileSize),
	}
}
