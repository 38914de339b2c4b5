package tables

import (
	"cmp"
	"strings"
	"time"

	"github.com/JonMunkholm/importer/internal/core"
)

// Transaction is a bank transaction. It owns zero or more Splits that
// divide its amount between categories.
//
// Two transactions are the same import record when they fall on the same
// day and either both carry the same bank reference or both lack one and
// have the same payee and amount. A row with a reference never matches a
// row without one.
type Transaction struct {
	ID            int64
	Timestamp     time.Time
	Amount        core.Cents
	Payee         string
	Category      string
	Memo          string
	BankReference string
	ReceiptURL    string
	Hidden        bool
	Imported      bool
	Selected      bool

	Splits []*Split
}

func (t *Transaction) Identity() int64      { return t.ID }
func (t *Transaction) SetIdentity(id int64) { t.ID = id }

func (t *Transaction) ImportEquals(other any) (bool, error) {
	o, ok := other.(*Transaction)
	if !ok || o == nil {
		return false, core.InvalidComparison("*Transaction", other)
	}
	if compareDay(t.Timestamp, o.Timestamp) != 0 {
		return false, nil
	}
	if (t.BankReference == "") != (o.BankReference == "") {
		return false, nil
	}
	if t.BankReference != "" {
		return t.BankReference == o.BankReference, nil
	}
	return t.Amount == o.Amount &&
		strings.EqualFold(strings.TrimSpace(t.Payee), strings.TrimSpace(o.Payee)), nil
}

// ImportHash covers the day plus the reference, or the day plus the amount
// for rows without one.
func (t *Transaction) ImportHash() uint64 {
	h := core.NewImportHasher().Date(t.Timestamp)
	if t.BankReference != "" {
		return h.String(t.BankReference).Sum64()
	}
	return h.Int(int64(t.Amount)).Sum64()
}

// CompareDefault orders newest first, then by payee.
func (t *Transaction) CompareDefault(o *Transaction) int {
	return cmp.Or(
		-compareDay(t.Timestamp, o.Timestamp),
		cmp.Compare(t.Payee, o.Payee),
	)
}

// HasSplits reports whether the transaction is divided into splits.
func (t *Transaction) HasSplits() bool {
	return len(t.Splits) > 0
}

// AddSplit appends a split owned by t.
func (t *Transaction) AddSplit(category string, amount core.Cents, memo string) *Split {
	s := &Split{Category: category, Amount: amount, Memo: memo}
	s.SetParent(t)
	t.Splits = append(t.Splits, s)
	return s
}

// TransactionSplits returns the splits of t. It is the dependent accessor
// for the transaction importer.
func TransactionSplits(t *Transaction) []*Split {
	return t.Splits
}

// Transactions describes the transaction table.
var Transactions = &core.Table[*Transaction]{
	Info: core.TableInfo{
		Key:       "transactions",
		Group:     "Banking",
		Label:     "Transactions",
		UniqueKey: []string{"Timestamp", "BankReference", "Payee", "Amount"},
	},
	New: func() *Transaction { return &Transaction{} },
	Columns: []core.Column[*Transaction]{
		core.DateColumn("Timestamp", func(t *Transaction) *time.Time { return &t.Timestamp }).Require().Alias("Date"),
		core.CentsColumn("Amount", func(t *Transaction) *core.Cents { return &t.Amount }).Require(),
		core.TextColumn("Payee", func(t *Transaction) *string { return &t.Payee }).Require().Alias("Description", "Name"),
		core.TextColumn("Category", func(t *Transaction) *string { return &t.Category }),
		core.TextColumn("Memo", func(t *Transaction) *string { return &t.Memo }),
		core.TextColumn("BankReference", func(t *Transaction) *string { return &t.BankReference }).Alias("Bank Reference", "Reference"),
		core.TextColumn("ReceiptUrl", func(t *Transaction) *string { return &t.ReceiptURL }),
		core.BoolColumn("Hidden", func(t *Transaction) *bool { return &t.Hidden }),
		core.BoolColumn("Imported", func(t *Transaction) *bool { return &t.Imported }),
		core.BoolColumn("Selected", func(t *Transaction) *bool { return &t.Selected }),
	},
}

// Split is one category's share of a Transaction. The transaction link is
// a back-reference used to copy the parent identity into TransactionID
// after the parent insert.
type Split struct {
	ID            int64
	TransactionID int64
	Amount        core.Cents
	Category      string
	Memo          string

	transaction *Transaction
}

func (s *Split) Identity() int64      { return s.ID }
func (s *Split) SetIdentity(id int64) { s.ID = id }

func (s *Split) Parent() *Transaction       { return s.transaction }
func (s *Split) SetParent(t *Transaction)   { s.transaction = t }
func (s *Split) ParentIdentity() int64      { return s.TransactionID }
func (s *Split) SetParentIdentity(id int64) { s.TransactionID = id }

// ImportEquals treats splits of the same transaction with the same
// category, amount and memo as one record.
func (s *Split) ImportEquals(other any) (bool, error) {
	o, ok := other.(*Split)
	if !ok || o == nil {
		return false, core.InvalidComparison("*Split", other)
	}
	return s.TransactionID == o.TransactionID &&
		s.Amount == o.Amount &&
		s.Category == o.Category &&
		s.Memo == o.Memo, nil
}

func (s *Split) ImportHash() uint64 {
	return core.NewImportHasher().
		Int(s.TransactionID).
		Int(int64(s.Amount)).
		String(s.Category).
		String(s.Memo).
		Sum64()
}

// CompareDefault orders by transaction, then category.
func (s *Split) CompareDefault(o *Split) int {
	return cmp.Or(
		cmp.Compare(s.TransactionID, o.TransactionID),
		cmp.Compare(s.Category, o.Category),
		cmp.Compare(s.Amount, o.Amount),
	)
}

// Splits describes the split table.
var Splits = &core.Table[*Split]{
	Info: core.TableInfo{
		Key:       "splits",
		Group:     "Banking",
		Label:     "Splits",
		UniqueKey: []string{"TransactionID", "Category", "Amount", "Memo"},
	},
	New: func() *Split { return &Split{} },
	Columns: []core.Column[*Split]{
		core.IntColumn("TransactionID", func(s *Split) *int64 { return &s.TransactionID }).Require(),
		core.CentsColumn("Amount", func(s *Split) *core.Cents { return &s.Amount }).Require(),
		core.TextColumn("Category", func(s *Split) *string { return &s.Category }),
		core.TextColumn("Memo", func(s *Split) *string { return &s.Memo }),
	},
}
