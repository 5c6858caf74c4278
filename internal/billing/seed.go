package billing

import (
	"github.com/shopspring/decimal"

	"github.com/facilitydesk/facilitydesk/internal/ledger"
)

func money(v string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(v))
}

// DemoSources returns the demo collections served when SEED_DEMO_DATA is set.
// It includes an expense with no site and a payment pointing at an invoice
// that does not exist, both of which land on the Unknown Site party.
func DemoSources() Sources {
	return Sources{
		Invoices: []ledger.Invoice{
			{ID: "INV-1001", Client: "Harbor View Tower", Amount: money("4800.00"), Status: "paid", Date: "2024-01-05", DueDate: "2024-02-04", Site: "Harbor View Tower", ServiceType: "hvac_maintenance"},
			{ID: "INV-1002", Client: "Northgate Mall", Amount: money("12500.00"), Status: "sent", Date: "2024-01-12", DueDate: "2024-02-11", Site: "Northgate Mall", ServiceType: "security-patrol"},
			{ID: "INV-1003", Client: "Riverside Campus", Amount: money("3200.50"), Status: "overdue", Date: "2024-01-20", DueDate: "2024-02-19", Site: "Riverside Campus", ServiceType: "cleaning"},
			{ID: "INV-1004", Client: "Harbor View Tower", Amount: money("1500.00"), Status: "draft", Date: "2024-02-02", DueDate: "2024-03-03", Site: "Harbor View Tower"},
		},
		Payments: []ledger.Payment{
			{ID: "PAY-2001", InvoiceID: "INV-1001", Client: "Harbor View Tower", Amount: money("4800.00"), Date: "2024-01-28", Status: "completed", Method: "bank_transfer"},
			{ID: "PAY-2002", InvoiceID: "INV-1002", Client: "Northgate Mall", Amount: money("6000.00"), Date: "2024-02-01", Status: "completed", Method: "card"},
			{ID: "PAY-2003", InvoiceID: "INV-1003", Client: "Riverside Campus", Amount: money("3200.50"), Date: "2024-02-03", Status: "pending", Method: "cheque"},
			{ID: "PAY-2004", InvoiceID: "INV-0999", Client: "Legacy Client", Amount: money("250.00"), Date: "2024-01-15", Status: "completed", Method: "cash"},
		},
		Expenses: []ledger.Expense{
			{ID: "EXP-3001", Amount: money("900.00"), Date: "2024-01-18", Status: "approved", Site: "Northgate Mall", Vendor: "BrightSpark Electrical", Category: "Repairs"},
			{ID: "EXP-3002", Amount: money("420.75"), Date: "2024-01-22", Status: "paid", Site: "Riverside Campus", Vendor: "CleanCo Supplies", Category: "Consumables", Description: "Floor care chemicals"},
			{ID: "EXP-3003", Amount: money("180.00"), Date: "2024-01-30", Status: "pending", Vendor: "City Parking"},
		},
	}
}
