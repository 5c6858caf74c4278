package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Normalize converts the three source collections into unsorted entries.
// Emission order is invoices, then payments, then expenses, each in slice
// order; the builder relies on it to break date ties.
func Normalize(invoices []Invoice, payments []Payment, expenses []Expense) ([]Entry, error) {
	entries := make([]Entry, 0, len(invoices)+len(payments)+len(expenses))
	byID := make(map[string]Invoice, len(invoices))

	for _, inv := range invoices {
		entry, err := NormalizeInvoice(inv)
		if err != nil {
			return nil, err
		}
		if _, seen := byID[inv.ID]; !seen {
			byID[inv.ID] = inv
		}
		entries = append(entries, entry)
	}
	for _, pay := range payments {
		if !strings.EqualFold(pay.Status, PaymentStatusCompleted) {
			continue
		}
		var ref *Invoice
		if inv, ok := byID[pay.InvoiceID]; ok && pay.InvoiceID != "" {
			ref = &inv
		}
		entry, err := NormalizePayment(pay, ref)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	for _, exp := range expenses {
		entry, err := NormalizeExpense(exp)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// NormalizeInvoice maps one invoice to its debit entry.
func NormalizeInvoice(inv Invoice) (Entry, error) {
	amount, date, err := required(SourceInvoice, inv.ID, inv.Amount, inv.Date)
	if err != nil {
		return Entry{}, err
	}
	entry := newEntry(SourceInvoice, inv.ID, amount, date)
	entry.Party = partyOrUnknown(inv.Site)
	entry.Status = inv.Status
	entry.Site = inv.Site
	entry.ServiceType = inv.ServiceType
	entry.Description = invoiceDescription(inv)
	return entry, nil
}

// NormalizePayment maps a payment to its credit entry. invoice is the
// referenced invoice, nil when the reference dangles.
func NormalizePayment(pay Payment, invoice *Invoice) (Entry, error) {
	amount, date, err := required(SourcePayment, pay.ID, pay.Amount, pay.Date)
	if err != nil {
		return Entry{}, err
	}
	entry := newEntry(SourcePayment, pay.ID, amount, date)
	entry.Party = UnknownSite
	entry.Status = pay.Status
	entry.Description = "Payment received - " + pay.Client
	if invoice != nil {
		entry.Party = partyOrUnknown(invoice.Site)
		entry.Site = invoice.Site
		entry.ServiceType = invoice.ServiceType
		entry.Description += " (" + invoice.ID + ")"
	}
	return entry, nil
}

// NormalizeExpense maps one expense to its credit entry.
func NormalizeExpense(exp Expense) (Entry, error) {
	amount, date, err := required(SourceExpense, exp.ID, exp.Amount, exp.Date)
	if err != nil {
		return Entry{}, err
	}
	entry := newEntry(SourceExpense, exp.ID, amount, date)
	entry.Party = partyOrUnknown(exp.Site)
	entry.Status = exp.Status
	entry.Site = exp.Site
	entry.Description = expenseDescription(exp)
	return entry, nil
}

func newEntry(kind SourceKind, reference string, amount decimal.Decimal, date time.Time) Entry {
	rule := postingRules[kind]
	debit, credit := rule.Split(amount)
	return Entry{
		ID:        string(rule.Type) + "-" + reference,
		Type:      rule.Type,
		Reference: reference,
		Date:      date,
		Debit:     debit,
		Credit:    credit,
	}
}

func required(kind SourceKind, id string, amount decimal.NullDecimal, rawDate string) (decimal.Decimal, time.Time, error) {
	if !amount.Valid {
		return decimal.Decimal{}, time.Time{}, &ValidationError{Source: kind, RecordID: id, Field: "amount", Reason: "is required"}
	}
	if amount.Decimal.IsNegative() {
		return decimal.Decimal{}, time.Time{}, &ValidationError{Source: kind, RecordID: id, Field: "amount", Reason: "must not be negative"}
	}
	if strings.TrimSpace(rawDate) == "" {
		return decimal.Decimal{}, time.Time{}, &ValidationError{Source: kind, RecordID: id, Field: "date", Reason: "is required"}
	}
	date, err := ParseDate(rawDate)
	if err != nil {
		return decimal.Decimal{}, time.Time{}, &ValidationError{Source: kind, RecordID: id, Field: "date", Reason: "is not a calendar date: " + rawDate}
	}
	return amount.Decimal, date, nil
}

// ParseDate reads an ISO calendar date. RFC 3339 timestamps are accepted and
// truncated to their own calendar date. The result is midnight UTC.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	t, err := time.Parse(time.DateOnly, raw)
	if err == nil {
		return t, nil
	}
	ts, tsErr := time.Parse(time.RFC3339, raw)
	if tsErr != nil {
		return time.Time{}, err
	}
	y, m, d := ts.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

func invoiceDescription(inv Invoice) string {
	service := strings.TrimSpace(inv.ServiceType)
	if service == "" {
		return "Invoice - " + inv.Client
	}
	service = strings.NewReplacer("_", " ", "-", " ").Replace(service)
	// Casers carry state and are not shared between goroutines.
	return cases.Title(language.English).String(service) + " - " + inv.Client
}

func expenseDescription(exp Expense) string {
	if exp.Description != "" {
		return exp.Description
	}
	label := "Expense"
	if exp.Category != "" {
		label = exp.Category
	}
	if exp.Vendor == "" {
		return label
	}
	return label + " - " + exp.Vendor
}
