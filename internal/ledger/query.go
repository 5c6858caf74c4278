package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EntriesForParty filters entries by party, preserving order.
func EntriesForParty(entries []Entry, party string) []Entry {
	out := make([]Entry, 0)
	for _, entry := range entries {
		if entry.Party == party {
			out = append(out, entry)
		}
	}
	return out
}

// Filter narrows a ledger for display. Zero fields match everything; From
// and To are inclusive calendar dates.
type Filter struct {
	Query string
	Party string
	Type  EntryType
	From  *time.Time
	To    *time.Time
}

// Apply returns the entries matching the filter, preserving order.
func (f Filter) Apply(entries []Entry) []Entry {
	query := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if f.Party != "" && entry.Party != f.Party {
			continue
		}
		if f.Type != "" && entry.Type != f.Type {
			continue
		}
		if !InRange(entry.Date, f.From, f.To) {
			continue
		}
		if query != "" && !matches(entry, query) {
			continue
		}
		out = append(out, entry)
	}
	return out
}

func matches(entry Entry, query string) bool {
	for _, field := range []string{entry.Party, entry.Reference, string(entry.Type), entry.Description, entry.Status} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

// InRange reports whether date falls within the inclusive bounds. Nil bounds
// are open.
func InRange(date time.Time, from, to *time.Time) bool {
	if from != nil && date.Before(*from) {
		return false
	}
	if to != nil && date.After(*to) {
		return false
	}
	return true
}

// Statement is a party's ledger over a date window.
type Statement struct {
	Party          string          `json:"party"`
	From           *time.Time      `json:"from,omitempty"`
	To             *time.Time      `json:"to,omitempty"`
	OpeningBalance decimal.Decimal `json:"openingBalance"`
	TotalDebit     decimal.Decimal `json:"totalDebit"`
	TotalCredit    decimal.Decimal `json:"totalCredit"`
	ClosingBalance decimal.Decimal `json:"closingBalance"`
	Entries        []Entry         `json:"entries"`
}

// BuildStatement selects the party's entries inside the window from a built
// ledger. The opening balance is the running balance before the window.
func BuildStatement(entries []Entry, party string, from, to *time.Time) Statement {
	st := Statement{
		Party:          party,
		From:           from,
		To:             to,
		OpeningBalance: decimal.Zero,
		TotalDebit:     decimal.Zero,
		TotalCredit:    decimal.Zero,
		Entries:        make([]Entry, 0),
	}
	for _, entry := range entries {
		if entry.Party != party {
			continue
		}
		if from != nil && entry.Date.Before(*from) {
			st.OpeningBalance = entry.Balance
			continue
		}
		if to != nil && entry.Date.After(*to) {
			break
		}
		st.TotalDebit = st.TotalDebit.Add(entry.Debit)
		st.TotalCredit = st.TotalCredit.Add(entry.Credit)
		st.Entries = append(st.Entries, entry)
	}
	st.ClosingBalance = st.OpeningBalance.Add(st.TotalDebit).Sub(st.TotalCredit)
	return st
}
