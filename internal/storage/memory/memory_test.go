package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/JonMunkholm/importer/internal/core"
	"github.com/JonMunkholm/importer/internal/core/tables"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func seedTransactions(t *testing.T, store *Store[*tables.Transaction]) []*tables.Transaction {
	t.Helper()
	txs := []*tables.Transaction{
		{Timestamp: day(2024, 1, 2), Payee: "Grocer", Amount: -1250, Category: "Food"},
		{Timestamp: day(2024, 1, 3), Payee: "Utility", Amount: -8000, Category: "Bills", Hidden: true},
		{Timestamp: day(2024, 1, 4), Payee: "Employer", Amount: 250000, Category: "Income"},
	}
	if err := store.BulkInsert(context.Background(), txs); err != nil {
		t.Fatalf("BulkInsert: %v", err)
	}
	return txs
}

// ============================================================================
// BulkInsert / Find / BulkDelete
// ============================================================================

func TestStore_BulkInsertAssignsSequentialIdentities(t *testing.T) {
	store := For(NewDB(), tables.Payees)
	ctx := context.Background()

	first := []*tables.Payee{{Name: "a"}, {Name: "b"}}
	if err := store.BulkInsert(ctx, first); err != nil {
		t.Fatal(err)
	}
	second := []*tables.Payee{{Name: "c"}}
	if err := store.BulkInsert(ctx, second); err != nil {
		t.Fatal(err)
	}

	var ids []int64
	for _, p := range append(first, second...) {
		ids = append(ids, p.ID)
	}
	if diff := cmp.Diff([]int64{1, 2, 3}, ids); diff != "" {
		t.Errorf("identities mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_FindAndDelete(t *testing.T) {
	store := For(NewDB(), tables.Transactions)
	ctx := context.Background()
	seedTransactions(t, store)

	got, err := store.Find(ctx, core.Where("Amount", core.OpLess, "0"))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Payee != "Grocer" || got[1].Payee != "Utility" {
		t.Errorf("Find(Amount < 0) = %v", got)
	}

	got, err = store.Find(ctx, core.Where("Payee", core.OpContains, "EMPLOY"))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Category != "Income" {
		t.Errorf("Find(Payee contains EMPLOY) = %v", got)
	}

	if _, err := store.Find(ctx, core.Where("Colour", core.OpEquals, "red")); !errors.Is(err, core.ErrUnknownColumn) {
		t.Errorf("unknown column error = %v", err)
	}

	n, err := store.BulkDelete(ctx, core.Where("Hidden", core.OpEquals, true))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || store.Len() != 2 {
		t.Errorf("BulkDelete removed %d, %d left", n, store.Len())
	}

	n, err = store.BulkDelete(ctx, core.FilterSet{})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || store.Len() != 0 {
		t.Errorf("BulkDelete(all) removed %d, %d left", n, store.Len())
	}
}

func TestStore_IdentityAfterDelete(t *testing.T) {
	store := For(NewDB(), tables.Payees)
	ctx := context.Background()
	if err := store.BulkInsert(ctx, []*tables.Payee{{Name: "a"}, {Name: "b"}, {Name: "c"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.BulkDelete(ctx, core.Where("Name", core.OpEquals, "b")); err != nil {
		t.Fatal(err)
	}
	p := &tables.Payee{Name: "d"}
	if err := store.BulkInsert(ctx, []*tables.Payee{p}); err != nil {
		t.Fatal(err)
	}
	if p.ID != 4 {
		t.Errorf("identity = %d, want 4", p.ID)
	}
}

func TestStore_IdentityNotReused(t *testing.T) {
	tests := []struct {
		name  string
		clear core.FilterSet
	}{
		{"delete highest", core.Where("Name", core.OpEquals, "c")},
		{"reset", core.FilterSet{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := For(NewDB(), tables.Payees)
			ctx := context.Background()
			if err := store.BulkInsert(ctx, []*tables.Payee{{Name: "a"}, {Name: "b"}, {Name: "c"}}); err != nil {
				t.Fatal(err)
			}
			if _, err := store.BulkDelete(ctx, tt.clear); err != nil {
				t.Fatal(err)
			}
			p := &tables.Payee{Name: "d"}
			if err := store.BulkInsert(ctx, []*tables.Payee{p}); err != nil {
				t.Fatal(err)
			}
			if p.ID != 4 {
				t.Errorf("identity = %d, want 4", p.ID)
			}
		})
	}
}

func TestImporter_OrphanSplitsStayOrphaned(t *testing.T) {
	stores := Stores(NewDB())
	imp := core.NewImporter(tables.Transactions, stores.Transactions,
		core.WithDependents(stores.Splits, tables.TransactionSplits))
	ctx := context.Background()

	old := &tables.Transaction{Timestamp: day(2024, 3, 1), Payee: "Warehouse", Amount: -10000}
	old.AddSplit("Food", -10000, "")
	if _, err := imp.QueueItems(old); err != nil {
		t.Fatal(err)
	}
	if _, err := imp.Process(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := stores.Transactions.BulkDelete(ctx, core.FilterSet{}); err != nil {
		t.Fatal(err)
	}

	fresh := &tables.Transaction{Timestamp: day(2024, 4, 1), Payee: "Utility", Amount: -500}
	if _, err := imp.QueueItems(fresh); err != nil {
		t.Fatal(err)
	}
	if _, err := imp.Process(ctx); err != nil {
		t.Fatal(err)
	}

	if fresh.ID == old.ID {
		t.Fatalf("new transaction reused identity %d", fresh.ID)
	}
	splits, err := stores.Splits.Find(ctx, core.Where("TransactionID", core.OpEquals, fresh.ID))
	if err != nil {
		t.Fatal(err)
	}
	if len(splits) != 0 {
		t.Errorf("new transaction has %d splits, want 0", len(splits))
	}
}

func TestFor_SharesRowsByKey(t *testing.T) {
	db := NewDB()
	a := For(db, tables.Payees)
	b := For(db, tables.Payees)
	if err := a.BulkInsert(context.Background(), []*tables.Payee{{Name: "x"}}); err != nil {
		t.Fatal(err)
	}
	if b.Len() != 1 {
		t.Errorf("second store sees %d rows, want 1", b.Len())
	}

	defer func() {
		if recover() == nil {
			t.Error("For with a conflicting type should panic")
		}
	}()
	clash := *tables.Splits
	clash.Info.Key = tables.Payees.Key()
	For(db, &clash)
}

// ============================================================================
// BulkUpdate
// ============================================================================

func TestStore_BulkUpdateAppliesOnlyNamedColumns(t *testing.T) {
	store := For(NewDB(), tables.Transactions)
	ctx := context.Background()
	txs := seedTransactions(t, store)

	newValues := &tables.Transaction{Hidden: true, Category: "X"}
	n, err := store.BulkUpdate(ctx, core.Where("Hidden", core.OpEquals, false), newValues, []string{"Hidden"})
	if err != nil {
		t.Fatalf("BulkUpdate: %v", err)
	}
	if n != 2 {
		t.Errorf("updated %d rows, want 2", n)
	}

	for _, tx := range txs {
		if !tx.Hidden {
			t.Errorf("%s: Hidden = false, want true", tx.Payee)
		}
	}
	wantCategories := []string{"Food", "Bills", "Income"}
	for i, tx := range txs {
		if tx.Category != wantCategories[i] {
			t.Errorf("%s: Category = %q, want %q", tx.Payee, tx.Category, wantCategories[i])
		}
	}
}

func TestStore_BulkUpdateSeveralFlags(t *testing.T) {
	store := For(NewDB(), tables.Transactions)
	ctx := context.Background()
	txs := seedTransactions(t, store)

	newValues := &tables.Transaction{Imported: true, Selected: true, Hidden: true}
	filter := core.Where("Payee", core.OpIn, "Grocer,Employer")
	if _, err := store.BulkUpdate(ctx, filter, newValues, []string{"imported", "Selected"}); err != nil {
		t.Fatal(err)
	}

	got := make([][3]bool, len(txs))
	for i, tx := range txs {
		got[i] = [3]bool{tx.Imported, tx.Selected, tx.Hidden}
	}
	want := [][3]bool{{true, true, false}, {false, false, true}, {true, true, false}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("flags mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_BulkUpdateUnsupported(t *testing.T) {
	ctx := context.Background()

	t.Run("other record type", func(t *testing.T) {
		store := For(NewDB(), tables.Payees)
		rows := []*tables.Payee{{Name: "a", Category: "Old"}, {Name: "b", Category: "Old"}}
		if err := store.BulkInsert(ctx, rows); err != nil {
			t.Fatal(err)
		}

		_, err := store.BulkUpdate(ctx, core.FilterSet{}, &tables.Payee{Category: "New"}, []string{"Category"})
		if !errors.Is(err, core.ErrUnsupportedOperation) {
			t.Fatalf("error = %v, want ErrUnsupportedOperation", err)
		}
		for _, p := range rows {
			if p.Category != "Old" {
				t.Errorf("%s mutated: Category = %q", p.Name, p.Category)
			}
		}
	})

	t.Run("column outside flag set", func(t *testing.T) {
		store := For(NewDB(), tables.Transactions)
		txs := seedTransactions(t, store)

		newValues := &tables.Transaction{Hidden: true, Category: "X"}
		_, err := store.BulkUpdate(ctx, core.FilterSet{}, newValues, []string{"Hidden", "Category"})
		if !errors.Is(err, core.ErrUnsupportedOperation) {
			t.Fatalf("error = %v, want ErrUnsupportedOperation", err)
		}
		if txs[0].Hidden || txs[0].Category != "Food" {
			t.Errorf("row mutated: %+v", txs[0])
		}
	})
}

// ============================================================================
// Import pipeline over the memory store
// ============================================================================

func TestImporter_TransactionsWithSplits(t *testing.T) {
	db := NewDB()
	stores := Stores(db)
	imp := core.NewImporter(tables.Transactions, stores.Transactions,
		core.WithDependents(stores.Splits, tables.TransactionSplits))
	ctx := context.Background()

	p := &tables.Transaction{Timestamp: day(2024, 3, 1), Payee: "Warehouse", Amount: -10000}
	d1 := p.AddSplit("Food", -6000, "")
	d2 := p.AddSplit("Household", -4000, "")

	if _, err := imp.QueueItems(p); err != nil {
		t.Fatal(err)
	}
	got, err := imp.Process(ctx)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(got) != 1 || p.ID <= 0 {
		t.Fatalf("Process() = %v, parent identity %d", got, p.ID)
	}
	if d1.TransactionID != p.ID || d2.TransactionID != p.ID {
		t.Errorf("split keys = %d, %d, want %d", d1.TransactionID, d2.TransactionID, p.ID)
	}

	splits, err := stores.Splits.Find(ctx, core.Where("TransactionID", core.OpEquals, p.ID))
	if err != nil {
		t.Fatal(err)
	}
	if len(splits) != 2 || splits[0].ID == 0 {
		t.Errorf("stored splits = %v", splits)
	}
}

func TestImporter_SkipsStoredTransactions(t *testing.T) {
	stores := Stores(NewDB())
	imp := core.NewImporter(tables.Transactions, stores.Transactions)
	ctx := context.Background()

	existing := &tables.Transaction{Timestamp: day(2024, 1, 2), Payee: "B", Amount: -100, BankReference: "REF-B"}
	if err := stores.Transactions.BulkInsert(ctx, []*tables.Transaction{existing}); err != nil {
		t.Fatal(err)
	}

	a := &tables.Transaction{Timestamp: day(2024, 1, 1), Payee: "A", Amount: -100}
	b := &tables.Transaction{Timestamp: day(2024, 1, 2), Payee: "B renamed", Amount: -999, BankReference: "REF-B"}
	c := &tables.Transaction{Timestamp: day(2024, 1, 3), Payee: "C", Amount: -100}
	if _, err := imp.QueueItems(a, b, c); err != nil {
		t.Fatal(err)
	}
	got, err := imp.Process(ctx)
	if err != nil {
		t.Fatal(err)
	}

	var payees []string
	for _, tx := range got {
		payees = append(payees, tx.Payee)
	}
	if diff := cmp.Diff([]string{"C", "A"}, payees); diff != "" {
		t.Errorf("Process() mismatch (-want +got):\n%s", diff)
	}
	all, _ := stores.Transactions.All(ctx)
	if len(all) != 3 || all[0] != existing {
		t.Errorf("store rows = %v", all)
	}
}
