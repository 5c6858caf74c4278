package billing

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/facilitydesk/facilitydesk/internal/ledger"
)

var (
	// ErrNotFound indicates a missing source record.
	ErrNotFound = errors.New("billing: not found")
	// ErrDuplicate indicates a source record id already in use.
	ErrDuplicate = errors.New("billing: duplicate id")
)

// Sources is a point-in-time copy of the three source collections.
type Sources struct {
	Invoices []ledger.Invoice
	Payments []ledger.Payment
	Expenses []ledger.Expense
}

// Store keeps the source collections in memory, in insertion order. Every
// mutation calls onChange so the ledger can be marked stale.
type Store struct {
	mu       sync.RWMutex
	invoices []ledger.Invoice
	payments []ledger.Payment
	expenses []ledger.Expense
	onChange func()
}

// NewStore builds an empty store. onChange may be nil.
func NewStore(onChange func()) *Store {
	return &Store{onChange: onChange}
}

// Snapshot copies the current collections.
func (s *Store) Snapshot() Sources {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Sources{
		Invoices: slices.Clone(s.invoices),
		Payments: slices.Clone(s.payments),
		Expenses: slices.Clone(s.expenses),
	}
}

// Load replaces all collections at once.
func (s *Store) Load(src Sources) {
	s.mu.Lock()
	s.invoices = slices.Clone(src.Invoices)
	s.payments = slices.Clone(src.Payments)
	s.expenses = slices.Clone(src.Expenses)
	s.mu.Unlock()
	s.changed()
}

// ListInvoices returns all invoices.
func (s *Store) ListInvoices() []ledger.Invoice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.invoices)
}

// ListPayments returns all payments.
func (s *Store) ListPayments() []ledger.Payment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.payments)
}

// ListExpenses returns all expenses.
func (s *Store) ListExpenses() []ledger.Expense {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.expenses)
}

// AddInvoice appends an invoice, assigning an id when missing.
func (s *Store) AddInvoice(inv ledger.Invoice) (ledger.Invoice, error) {
	s.mu.Lock()
	if inv.ID == "" {
		inv.ID = newID("INV")
	}
	if indexOf(s.invoices, inv.ID, invoiceID) >= 0 {
		s.mu.Unlock()
		return ledger.Invoice{}, fmt.Errorf("invoice %s: %w", inv.ID, ErrDuplicate)
	}
	s.invoices = append(s.invoices, inv)
	s.mu.Unlock()
	s.changed()
	return inv, nil
}

// UpdateInvoice replaces an invoice in place, keeping its position.
func (s *Store) UpdateInvoice(inv ledger.Invoice) error {
	return s.mutateInvoice(inv.ID, func(cur *ledger.Invoice) { *cur = inv })
}

// SetInvoiceStatus changes an invoice status, e.g. marking it paid.
func (s *Store) SetInvoiceStatus(id, status string) (ledger.Invoice, error) {
	var out ledger.Invoice
	err := s.mutateInvoice(id, func(cur *ledger.Invoice) {
		cur.Status = status
		out = *cur
	})
	return out, err
}

func (s *Store) mutateInvoice(id string, fn func(*ledger.Invoice)) error {
	s.mu.Lock()
	i := indexOf(s.invoices, id, invoiceID)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("invoice %s: %w", id, ErrNotFound)
	}
	fn(&s.invoices[i])
	s.mu.Unlock()
	s.changed()
	return nil
}

// AddPayment appends a payment, assigning an id when missing.
func (s *Store) AddPayment(pay ledger.Payment) (ledger.Payment, error) {
	s.mu.Lock()
	if pay.ID == "" {
		pay.ID = newID("PAY")
	}
	if indexOf(s.payments, pay.ID, paymentID) >= 0 {
		s.mu.Unlock()
		return ledger.Payment{}, fmt.Errorf("payment %s: %w", pay.ID, ErrDuplicate)
	}
	s.payments = append(s.payments, pay)
	s.mu.Unlock()
	s.changed()
	return pay, nil
}

// UpdatePayment replaces a payment in place.
func (s *Store) UpdatePayment(pay ledger.Payment) error {
	return s.mutatePayment(pay.ID, func(cur *ledger.Payment) { *cur = pay })
}

// SetPaymentStatus changes a payment status.
func (s *Store) SetPaymentStatus(id, status string) (ledger.Payment, error) {
	var out ledger.Payment
	err := s.mutatePayment(id, func(cur *ledger.Payment) {
		cur.Status = status
		out = *cur
	})
	return out, err
}

func (s *Store) mutatePayment(id string, fn func(*ledger.Payment)) error {
	s.mu.Lock()
	i := indexOf(s.payments, id, paymentID)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("payment %s: %w", id, ErrNotFound)
	}
	fn(&s.payments[i])
	s.mu.Unlock()
	s.changed()
	return nil
}

// AddExpense appends an expense, assigning an id when missing.
func (s *Store) AddExpense(exp ledger.Expense) (ledger.Expense, error) {
	s.mu.Lock()
	if exp.ID == "" {
		exp.ID = newID("EXP")
	}
	if indexOf(s.expenses, exp.ID, expenseID) >= 0 {
		s.mu.Unlock()
		return ledger.Expense{}, fmt.Errorf("expense %s: %w", exp.ID, ErrDuplicate)
	}
	s.expenses = append(s.expenses, exp)
	s.mu.Unlock()
	s.changed()
	return exp, nil
}

// UpdateExpense replaces an expense in place.
func (s *Store) UpdateExpense(exp ledger.Expense) error {
	return s.mutateExpense(exp.ID, func(cur *ledger.Expense) { *cur = exp })
}

// SetExpenseStatus changes an expense status.
func (s *Store) SetExpenseStatus(id, status string) (ledger.Expense, error) {
	var out ledger.Expense
	err := s.mutateExpense(id, func(cur *ledger.Expense) {
		cur.Status = status
		out = *cur
	})
	return out, err
}

func (s *Store) mutateExpense(id string, fn func(*ledger.Expense)) error {
	s.mu.Lock()
	i := indexOf(s.expenses, id, expenseID)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("expense %s: %w", id, ErrNotFound)
	}
	fn(&s.expenses[i])
	s.mu.Unlock()
	s.changed()
	return nil
}

func (s *Store) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

func invoiceID(inv ledger.Invoice) string { return inv.ID }
func paymentID(pay ledger.Payment) string { return pay.ID }
func expenseID(exp ledger.Expense) string { return exp.ID }

func indexOf[T any](items []T, id string, key func(T) string) int {
	return slices.IndexFunc(items, func(item T) bool { return key(item) == id })
}

func newID(prefix string) string {
	return prefix + "-" + strings.ToUpper(uuid.NewString()[:8])
}
