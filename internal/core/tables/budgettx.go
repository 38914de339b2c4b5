package tables

import (
	"cmp"
	"strconv"
	"time"

	"github.com/JonMunkholm/importer/internal/core"
)

// BudgetTx is a budget line item: an expected outlay for a category in a
// timeframe. Two line items are the same import record when they share the
// category and the month of their timestamp.
type BudgetTx struct {
	ID        int64
	Amount    core.Cents
	Timestamp time.Time
	Category  string
	Frequency int64 // times per year the amount is tracked; 0 and 1 mean yearly
	Memo      string
	Selected  bool
}

func (b *BudgetTx) Identity() int64      { return b.ID }
func (b *BudgetTx) SetIdentity(id int64) { b.ID = id }

func (b *BudgetTx) ImportEquals(other any) (bool, error) {
	o, ok := other.(*BudgetTx)
	if !ok || o == nil {
		return false, core.InvalidComparison("*BudgetTx", other)
	}
	return b.Timestamp.Year() == o.Timestamp.Year() &&
		b.Timestamp.Month() == o.Timestamp.Month() &&
		b.Category == o.Category, nil
}

func (b *BudgetTx) ImportHash() uint64 {
	return core.NewImportHasher().
		Int(int64(b.Timestamp.Year())).
		Int(int64(b.Timestamp.Month())).
		String(b.Category).
		Sum64()
}

// CompareDefault orders newest first, then by category.
func (b *BudgetTx) CompareDefault(o *BudgetTx) int {
	return cmp.Or(
		-compareDay(b.Timestamp, o.Timestamp),
		cmp.Compare(b.Category, o.Category),
	)
}

// FrequencyName describes Frequency for display.
func (b *BudgetTx) FrequencyName() string {
	switch {
	case b.Frequency < 0:
		return "Invalid"
	case b.Frequency <= 1:
		return "Yearly"
	case b.Frequency == 4:
		return "Quarterly"
	case b.Frequency == 12:
		return "Monthly"
	case b.Frequency == 52:
		return "Weekly"
	}
	return strconv.FormatInt(b.Frequency, 10)
}

// ParseFrequency maps a frequency name or count to a count per year.
// Unknown names mean yearly.
func ParseFrequency(s string) int64 {
	t := core.ParseText(s)
	switch t {
	case "Quarterly":
		return 4
	case "Monthly":
		return 12
	case "Weekly":
		return 52
	}
	if n, err := core.ParseInt(t); err == nil && t != "" {
		return n
	}
	return 1
}

// BudgetTxs describes the budget line item table.
var BudgetTxs = &core.Table[*BudgetTx]{
	Info: core.TableInfo{
		Key:       "budgettx",
		Group:     "Budget",
		Label:     "Budget Line Items",
		UniqueKey: []string{"Timestamp", "Category"},
	},
	New: func() *BudgetTx { return &BudgetTx{} },
	Columns: []core.Column[*BudgetTx]{
		core.CentsColumn("Amount", func(b *BudgetTx) *core.Cents { return &b.Amount }).Require(),
		core.DateColumn("Timestamp", func(b *BudgetTx) *time.Time { return &b.Timestamp }).Require().Alias("Date"),
		core.TextColumn("Category", func(b *BudgetTx) *string { return &b.Category }).Require(),
		frequencyColumn(),
		core.TextColumn("Memo", func(b *BudgetTx) *string { return &b.Memo }),
		core.BoolColumn("Selected", func(b *BudgetTx) *bool { return &b.Selected }),
	},
}

func frequencyColumn() core.Column[*BudgetTx] {
	c := core.IntColumn("Frequency", func(b *BudgetTx) *int64 { return &b.Frequency })
	c.Parse = func(b *BudgetTx, s string) error {
		b.Frequency = ParseFrequency(s)
		return nil
	}
	return c
}

// compareDay compares two timestamps by calendar day.
func compareDay(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return cmp.Or(cmp.Compare(ay, by), cmp.Compare(am, bm), cmp.Compare(ad, bd))
}
