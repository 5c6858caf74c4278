package ledger

import (
	"slices"

	"github.com/shopspring/decimal"
)

// Build sorts entries by calendar date and stamps each with its party's
// running balance. Ties keep normalizer emission order. The input slice is
// not modified.
func Build(entries []Entry) []Entry {
	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b Entry) int {
		return a.Date.Compare(b.Date)
	})

	running := make(map[string]decimal.Decimal)
	for i := range sorted {
		balance := running[sorted[i].Party].Add(sorted[i].Net())
		running[sorted[i].Party] = balance
		sorted[i].Balance = balance
	}
	return sorted
}
