package billing

import (
	"github.com/shopspring/decimal"

	"github.com/facilitydesk/facilitydesk/internal/ledger"
	"github.com/facilitydesk/facilitydesk/internal/shared"
)

// InvoiceRequest is the payload for creating or replacing an invoice.
type InvoiceRequest struct {
	ID          string           `json:"id" validate:"omitempty,max=64"`
	Client      string           `json:"client" validate:"required,max=200"`
	Amount      *decimal.Decimal `json:"amount" validate:"required"`
	Status      string           `json:"status" validate:"required,oneof=draft sent paid overdue cancelled"`
	Date        string           `json:"date" validate:"required"`
	DueDate     string           `json:"dueDate" validate:"omitempty,datetime=2006-01-02"`
	Site        string           `json:"site" validate:"max=200"`
	ServiceType string           `json:"serviceType" validate:"max=100"`
}

func (r InvoiceRequest) toInvoice() ledger.Invoice {
	return ledger.Invoice{
		ID:          r.ID,
		Client:      r.Client,
		Amount:      nullAmount(r.Amount),
		Status:      r.Status,
		Date:        r.Date,
		DueDate:     r.DueDate,
		Site:        r.Site,
		ServiceType: r.ServiceType,
	}
}

// PaymentRequest is the payload for creating or replacing a payment.
type PaymentRequest struct {
	ID        string           `json:"id" validate:"omitempty,max=64"`
	InvoiceID string           `json:"invoiceId" validate:"max=64"`
	Client    string           `json:"client" validate:"required,max=200"`
	Amount    *decimal.Decimal `json:"amount" validate:"required"`
	Date      string           `json:"date" validate:"required"`
	Status    string           `json:"status" validate:"required,oneof=completed pending failed refunded"`
	Method    string           `json:"method" validate:"max=50"`
}

func (r PaymentRequest) toPayment() ledger.Payment {
	return ledger.Payment{
		ID:        r.ID,
		InvoiceID: r.InvoiceID,
		Client:    r.Client,
		Amount:    nullAmount(r.Amount),
		Date:      r.Date,
		Status:    r.Status,
		Method:    r.Method,
	}
}

// ExpenseRequest is the payload for creating or replacing an expense.
type ExpenseRequest struct {
	ID          string           `json:"id" validate:"omitempty,max=64"`
	Amount      *decimal.Decimal `json:"amount" validate:"required"`
	Date        string           `json:"date" validate:"required"`
	Status      string           `json:"status" validate:"required,oneof=pending approved paid rejected"`
	Site        string           `json:"site" validate:"max=200"`
	Vendor      string           `json:"vendor" validate:"max=200"`
	Category    string           `json:"category" validate:"max=100"`
	Description string           `json:"description" validate:"max=500"`
}

func (r ExpenseRequest) toExpense() ledger.Expense {
	return ledger.Expense{
		ID:          r.ID,
		Amount:      nullAmount(r.Amount),
		Date:        r.Date,
		Status:      r.Status,
		Site:        r.Site,
		Vendor:      r.Vendor,
		Category:    r.Category,
		Description: r.Description,
	}
}

// StatusRequest changes a record's status.
type StatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// Status values accepted per collection, as validator rules.
const (
	invoiceStatusRule = "oneof=draft sent paid overdue cancelled"
	paymentStatusRule = "oneof=completed pending failed refunded"
	expenseStatusRule = "oneof=pending approved paid rejected"
)

// ImportRequest replaces every source collection. Records are stored
// as given; ledger-level problems surface from the rebuild.
type ImportRequest struct {
	Invoices []ledger.Invoice `json:"invoices"`
	Payments []ledger.Payment `json:"payments"`
	Expenses []ledger.Expense `json:"expenses"`
}

// ListResponse wraps a page of items.
type ListResponse[T any] struct {
	Items      []T               `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

// SnapshotResponse describes the published ledger.
type SnapshotResponse struct {
	Version uint64 `json:"version"`
	State   string `json:"state"`
	BuiltAt string `json:"builtAt,omitempty"`
	Entries int    `json:"entries"`
	Parties int    `json:"parties"`
}

func nullAmount(v *decimal.Decimal) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*v)
}
