package tables

import (
	"cmp"
	"strings"

	"github.com/JonMunkholm/importer/internal/core"
)

// Payee assigns a category to transactions whose payee matches Name.
// Payees are the same import record when their names match.
type Payee struct {
	ID       int64
	Category string
	Name     string
	Selected bool
}

func (p *Payee) Identity() int64      { return p.ID }
func (p *Payee) SetIdentity(id int64) { p.ID = id }

func (p *Payee) ImportEquals(other any) (bool, error) {
	o, ok := other.(*Payee)
	if !ok || o == nil {
		return false, core.InvalidComparison("*Payee", other)
	}
	return strings.TrimSpace(p.Name) == strings.TrimSpace(o.Name), nil
}

func (p *Payee) ImportHash() uint64 {
	return core.NewImportHasher().String(strings.TrimSpace(p.Name)).Sum64()
}

// CompareDefault orders by category, then name.
func (p *Payee) CompareDefault(o *Payee) int {
	return cmp.Or(cmp.Compare(p.Category, o.Category), cmp.Compare(p.Name, o.Name))
}

// Payees describes the payee table.
var Payees = &core.Table[*Payee]{
	Info: core.TableInfo{
		Key:       "payees",
		Group:     "Budget",
		Label:     "Payees",
		UniqueKey: []string{"Name"},
	},
	New: func() *Payee { return &Payee{} },
	Columns: []core.Column[*Payee]{
		core.TextColumn("Category", func(p *Payee) *string { return &p.Category }),
		core.TextColumn("Name", func(p *Payee) *string { return &p.Name }).Require().Alias("Payee"),
		core.BoolColumn("Selected", func(p *Payee) *bool { return &p.Selected }),
	},
}
