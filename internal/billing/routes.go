package billing

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

const (
	writeRateLimit  = 60
	exportRateLimit = 10
	rateWindow      = time.Minute
)

// MountRoutes registers the ledger, balance and source collection endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	tooMany := httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
	})
	writeLimiter := httprate.Limit(writeRateLimit, rateWindow, httprate.WithKeyFuncs(httprate.KeyByIP), tooMany)
	exportLimiter := httprate.Limit(exportRateLimit, rateWindow, httprate.WithKeyFuncs(httprate.KeyByIP), tooMany)

	r.Get("/ledger", h.handleLedger)
	r.Get("/balances", h.handleBalances)
	r.Get("/parties/{party}/entries", h.handlePartyEntries)
	r.Get("/parties/{party}/statement", h.handleStatement)
	r.Get("/invoices", h.handleListInvoices)
	r.Get("/payments", h.handleListPayments)
	r.Get("/expenses", h.handleListExpenses)

	r.Group(func(gr chi.Router) {
		gr.Use(exportLimiter)
		gr.Get("/ledger.csv", h.handleLedgerCSV)
		gr.Get("/balances.csv", h.handleBalancesCSV)
		gr.Get("/parties/{party}/statement.csv", h.handleStatementCSV)
		gr.Post("/parties/{party}/statement/export", h.handleStatementExport)
	})

	r.Group(func(gr chi.Router) {
		gr.Use(writeLimiter)
		gr.Post("/ledger/rebuild", h.handleRebuild)
		gr.Put("/sources", h.handleImport)
		gr.Post("/invoices", h.handleCreateInvoice)
		gr.Put("/invoices/{id}", h.handleUpdateInvoice)
		gr.Patch("/invoices/{id}/status", h.handleInvoiceStatus)
		gr.Post("/payments", h.handleCreatePayment)
		gr.Put("/payments/{id}", h.handleUpdatePayment)
		gr.Patch("/payments/{id}/status", h.handlePaymentStatus)
		gr.Post("/expenses", h.handleCreateExpense)
		gr.Put("/expenses/{id}", h.handleUpdateExpense)
		gr.Patch("/expenses/{id}/status", h.handleExpenseStatus)
	})
}
