package ledger

import "github.com/shopspring/decimal"

// SourceKind is the closed set of records the ledger is built from.
type SourceKind int

const (
	SourceInvoice SourceKind = iota
	SourcePayment
	SourceExpense
)

func (k SourceKind) String() string {
	switch k {
	case SourceInvoice:
		return "invoice"
	case SourcePayment:
		return "payment"
	case SourceExpense:
		return "expense"
	default:
		return "unknown"
	}
}

type side int

const (
	sideDebit side = iota
	sideCredit
)

// PostingRule fixes the entry type and side a source amount is posted to.
type PostingRule struct {
	Type EntryType
	side side
}

// Split places amount on the rule's side and zero on the other.
func (r PostingRule) Split(amount decimal.Decimal) (debit, credit decimal.Decimal) {
	if r.side == sideDebit {
		return amount, decimal.Zero
	}
	return decimal.Zero, amount
}

// IsDebit reports whether the rule posts to the debit side.
func (r PostingRule) IsDebit() bool {
	return r.side == sideDebit
}

// Invoices are receivables; payments and expenses both reduce the site
// balance. Receivables and payables share one ledger per site.
var postingRules = map[SourceKind]PostingRule{
	SourceInvoice: {Type: EntryTypeInvoice, side: sideDebit},
	SourcePayment: {Type: EntryTypePayment, side: sideCredit},
	SourceExpense: {Type: EntryTypeExpense, side: sideCredit},
}

// RuleFor returns the posting rule of a source kind.
func RuleFor(kind SourceKind) (PostingRule, bool) {
	rule, ok := postingRules[kind]
	return rule, ok
}
