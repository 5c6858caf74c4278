package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// UnknownSite is the party every record without site attribution is posted
// under. Unrelated records that all lack a site are aggregated together.
const UnknownSite = "Unknown Site"

// PaymentStatusCompleted is the only payment status that reaches the ledger.
const PaymentStatusCompleted = "completed"

// EntryType enumerates ledger entry kinds.
type EntryType string

const (
	EntryTypeInvoice    EntryType = "invoice"
	EntryTypePayment    EntryType = "payment"
	EntryTypeExpense    EntryType = "expense"
	EntryTypeCreditNote EntryType = "credit_note"
)

// BalanceStatus classifies a party's net position.
type BalanceStatus string

const (
	BalanceDebit   BalanceStatus = "debit"
	BalanceCredit  BalanceStatus = "credit"
	BalanceSettled BalanceStatus = "settled"
)

// Invoice is a billed service. Amount lands on the debit side.
type Invoice struct {
	ID          string              `json:"id"`
	Client      string              `json:"client"`
	Amount      decimal.NullDecimal `json:"amount"`
	Status      string              `json:"status"`
	Date        string              `json:"date"`
	DueDate     string              `json:"dueDate,omitempty"`
	Site        string              `json:"site,omitempty"`
	ServiceType string              `json:"serviceType,omitempty"`
}

// Payment settles an invoice. Only completed payments are posted.
type Payment struct {
	ID        string              `json:"id"`
	InvoiceID string              `json:"invoiceId"`
	Client    string              `json:"client"`
	Amount    decimal.NullDecimal `json:"amount"`
	Date      string              `json:"date"`
	Status    string              `json:"status"`
	Method    string              `json:"method,omitempty"`
}

// Expense is money spent on behalf of a site.
type Expense struct {
	ID          string              `json:"id"`
	Amount      decimal.NullDecimal `json:"amount"`
	Date        string              `json:"date"`
	Status      string              `json:"status"`
	Site        string              `json:"site,omitempty"`
	Vendor      string              `json:"vendor,omitempty"`
	Category    string              `json:"category,omitempty"`
	Description string              `json:"description,omitempty"`
}

// Entry is one normalized transaction. Exactly one of Debit and Credit is
// non-zero unless the source amount itself was zero.
type Entry struct {
	ID          string          `json:"id"`
	Party       string          `json:"party"`
	Type        EntryType       `json:"type"`
	Reference   string          `json:"reference"`
	Date        time.Time       `json:"date"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Balance     decimal.Decimal `json:"balance"`
	Description string          `json:"description"`
	Status      string          `json:"status"`
	Site        string          `json:"site,omitempty"`
	ServiceType string          `json:"serviceType,omitempty"`
}

// Net returns the entry's contribution to its party's balance.
func (e Entry) Net() decimal.Decimal {
	return e.Debit.Sub(e.Credit)
}

// PartyBalance summarises all entries of one party.
type PartyBalance struct {
	Party               string          `json:"party"`
	TotalDebit          decimal.Decimal `json:"totalDebit"`
	TotalCredit         decimal.Decimal `json:"totalCredit"`
	CurrentBalance      decimal.Decimal `json:"currentBalance"`
	LastTransactionDate time.Time       `json:"lastTransactionDate"`
	Status              BalanceStatus   `json:"status"`
	Site                string          `json:"site,omitempty"`
}

// ClassifyBalance maps a signed balance to its status.
func ClassifyBalance(balance decimal.Decimal) BalanceStatus {
	switch balance.Sign() {
	case 1:
		return BalanceDebit
	case -1:
		return BalanceCredit
	default:
		return BalanceSettled
	}
}

// partyOrUnknown applies the site fallback.
func partyOrUnknown(site string) string {
	if strings.TrimSpace(site) == "" {
		return UnknownSite
	}
	return site
}
