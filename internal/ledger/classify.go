package ledger

import "github.com/shopspring/decimal"

// Classify reduces a built ledger to one balance per party, ordered by first
// appearance.
func Classify(ledger []Entry) []PartyBalance {
	index := make(map[string]int)
	balances := make([]PartyBalance, 0)
	for _, entry := range ledger {
		i, ok := index[entry.Party]
		if !ok {
			i = len(balances)
			index[entry.Party] = i
			balances = append(balances, PartyBalance{
				Party:       entry.Party,
				TotalDebit:  decimal.Zero,
				TotalCredit: decimal.Zero,
			})
		}
		pb := &balances[i]
		pb.TotalDebit = pb.TotalDebit.Add(entry.Debit)
		pb.TotalCredit = pb.TotalCredit.Add(entry.Credit)
		pb.CurrentBalance = entry.Balance
		if entry.Date.After(pb.LastTransactionDate) {
			pb.LastTransactionDate = entry.Date
		}
		if pb.Site == "" && entry.Party != UnknownSite {
			pb.Site = entry.Site
		}
	}
	for i := range balances {
		balances[i].Status = ClassifyBalance(balances[i].CurrentBalance)
	}
	return balances
}
