package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/facilitydesk/facilitydesk/internal/billing/events"
	"github.com/facilitydesk/facilitydesk/internal/ledger"
)

// ErrStaleLedger is returned alongside a rebuild failure when the source
// change itself was saved. The previous snapshot stays published.
var ErrStaleLedger = errors.New("billing: change saved, ledger left stale")

// RebuildObserver records rebuild outcomes.
type RebuildObserver interface {
	ObserveRebuild(elapsed time.Duration, entries, parties int, err error)
}

// Service owns the source collections and keeps the ledger in step with them.
// Mutations and rebuilds are serialized.
type Service struct {
	mu        sync.Mutex
	store     *Store
	engine    *ledger.Engine
	publisher events.Publisher
	metrics   RebuildObserver
	logger    *slog.Logger
}

// NewService wires a store to an engine. The store must have been built with
// engine.MarkStale as its change hook.
func NewService(store *Store, engine *ledger.Engine, publisher events.Publisher, metrics RebuildObserver, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, engine: engine, publisher: publisher, metrics: metrics, logger: logger}
}

// NewInMemory builds an engine, a store bound to it and the service.
func NewInMemory(publisher events.Publisher, metrics RebuildObserver, logger *slog.Logger) *Service {
	engine := ledger.NewEngine()
	store := NewStore(engine.MarkStale)
	return NewService(store, engine, publisher, metrics, logger)
}

// Rebuild recomputes the ledger from the current source collections.
func (s *Service) Rebuild(ctx context.Context, reason string) (*ledger.Snapshot, error) {
	return s.commit(ctx, reason, nil)
}

// commit applies change and rebuilds under the service lock, then publishes
// the new snapshot once the lock is released. A rebuild failure after a
// saved change is reported as ErrStaleLedger.
func (s *Service) commit(ctx context.Context, reason string, change func() error) (*ledger.Snapshot, error) {
	s.mu.Lock()
	if change != nil {
		if err := change(); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}
	snap, err := s.rebuildLocked(reason)
	s.mu.Unlock()
	if err != nil {
		if change != nil {
			return nil, fmt.Errorf("%w: %w", ErrStaleLedger, err)
		}
		return nil, err
	}
	s.publish(ctx, snap, reason)
	return snap, nil
}

func (s *Service) rebuildLocked(reason string) (*ledger.Snapshot, error) {
	src := s.store.Snapshot()
	start := time.Now()
	snap, err := s.engine.Rebuild(src.Invoices, src.Payments, src.Expenses)
	elapsed := time.Since(start)
	if err != nil {
		s.observe(elapsed, 0, 0, err)
		s.logger.Warn("ledger rebuild rejected", slog.String("reason", reason), slog.Any("error", err))
		return nil, err
	}
	s.observe(elapsed, len(snap.Entries), len(snap.Balances), nil)
	s.logger.Info("ledger rebuilt",
		slog.String("reason", reason),
		slog.Uint64("version", snap.Version),
		slog.Int("entries", len(snap.Entries)),
		slog.Int("parties", len(snap.Balances)),
		slog.Duration("duration", elapsed),
	)
	return snap, nil
}

func (s *Service) publish(ctx context.Context, snap *ledger.Snapshot, reason string) {
	if err := s.publisher.PublishLedgerRebuilt(ctx, events.NewLedgerRebuilt(snap, reason)); err != nil {
		s.logger.Warn("publish ledger rebuilt", slog.Uint64("version", snap.Version), slog.Any("error", err))
	}
}

func (s *Service) observe(elapsed time.Duration, entries, parties int, err error) {
	if s.metrics != nil {
		s.metrics.ObserveRebuild(elapsed, entries, parties, err)
	}
}

// Import replaces every source collection and rebuilds. Invalid records are
// kept so they can be corrected; the ledger stays stale until then.
func (s *Service) Import(ctx context.Context, src Sources) (*ledger.Snapshot, error) {
	return s.commit(ctx, "import", func() error {
		s.store.Load(src)
		return nil
	})
}

// CreateInvoice validates and stores an invoice, then rebuilds.
func (s *Service) CreateInvoice(ctx context.Context, inv ledger.Invoice) (ledger.Invoice, error) {
	if _, err := ledger.NormalizeInvoice(inv); err != nil {
		return ledger.Invoice{}, err
	}
	var saved ledger.Invoice
	_, err := s.commit(ctx, "invoice created", func() (err error) {
		saved, err = s.store.AddInvoice(inv)
		return err
	})
	return saved, err
}

// UpdateInvoice replaces an invoice, then rebuilds.
func (s *Service) UpdateInvoice(ctx context.Context, inv ledger.Invoice) (ledger.Invoice, error) {
	if _, err := ledger.NormalizeInvoice(inv); err != nil {
		return ledger.Invoice{}, err
	}
	_, err := s.commit(ctx, "invoice updated", func() error {
		return s.store.UpdateInvoice(inv)
	})
	if err != nil && !errors.Is(err, ErrStaleLedger) {
		return ledger.Invoice{}, err
	}
	return inv, err
}

// SetInvoiceStatus changes an invoice status, then rebuilds.
func (s *Service) SetInvoiceStatus(ctx context.Context, id, status string) (ledger.Invoice, error) {
	var inv ledger.Invoice
	_, err := s.commit(ctx, "invoice status changed", func() (err error) {
		inv, err = s.store.SetInvoiceStatus(id, status)
		return err
	})
	return inv, err
}

// CreatePayment validates and stores a payment, then rebuilds.
func (s *Service) CreatePayment(ctx context.Context, pay ledger.Payment) (ledger.Payment, error) {
	if _, err := ledger.NormalizePayment(pay, nil); err != nil {
		return ledger.Payment{}, err
	}
	var saved ledger.Payment
	_, err := s.commit(ctx, "payment created", func() (err error) {
		saved, err = s.store.AddPayment(pay)
		return err
	})
	return saved, err
}

// UpdatePayment replaces a payment, then rebuilds.
func (s *Service) UpdatePayment(ctx context.Context, pay ledger.Payment) (ledger.Payment, error) {
	if _, err := ledger.NormalizePayment(pay, nil); err != nil {
		return ledger.Payment{}, err
	}
	_, err := s.commit(ctx, "payment updated", func() error {
		return s.store.UpdatePayment(pay)
	})
	if err != nil && !errors.Is(err, ErrStaleLedger) {
		return ledger.Payment{}, err
	}
	return pay, err
}

// SetPaymentStatus changes a payment status, then rebuilds.
func (s *Service) SetPaymentStatus(ctx context.Context, id, status string) (ledger.Payment, error) {
	var pay ledger.Payment
	_, err := s.commit(ctx, "payment status changed", func() (err error) {
		pay, err = s.store.SetPaymentStatus(id, status)
		return err
	})
	return pay, err
}

// CreateExpense validates and stores an expense, then rebuilds.
func (s *Service) CreateExpense(ctx context.Context, exp ledger.Expense) (ledger.Expense, error) {
	if _, err := ledger.NormalizeExpense(exp); err != nil {
		return ledger.Expense{}, err
	}
	var saved ledger.Expense
	_, err := s.commit(ctx, "expense created", func() (err error) {
		saved, err = s.store.AddExpense(exp)
		return err
	})
	return saved, err
}

// UpdateExpense replaces an expense, then rebuilds.
func (s *Service) UpdateExpense(ctx context.Context, exp ledger.Expense) (ledger.Expense, error) {
	if _, err := ledger.NormalizeExpense(exp); err != nil {
		return ledger.Expense{}, err
	}
	_, err := s.commit(ctx, "expense updated", func() error {
		return s.store.UpdateExpense(exp)
	})
	if err != nil && !errors.Is(err, ErrStaleLedger) {
		return ledger.Expense{}, err
	}
	return exp, err
}

// SetExpenseStatus changes an expense status, then rebuilds.
func (s *Service) SetExpenseStatus(ctx context.Context, id, status string) (ledger.Expense, error) {
	var exp ledger.Expense
	_, err := s.commit(ctx, "expense status changed", func() (err error) {
		exp, err = s.store.SetExpenseStatus(id, status)
		return err
	})
	return exp, err
}

// Invoices lists stored invoices.
func (s *Service) Invoices() []ledger.Invoice { return s.store.ListInvoices() }

// Payments lists stored payments.
func (s *Service) Payments() []ledger.Payment { return s.store.ListPayments() }

// Expenses lists stored expenses.
func (s *Service) Expenses() []ledger.Expense { return s.store.ListExpenses() }

// State reports whether the published ledger reflects the stored sources.
func (s *Service) State() ledger.State { return s.engine.State() }

// Snapshot returns the published snapshot.
func (s *Service) Snapshot() *ledger.Snapshot { return s.engine.Snapshot() }

// Ledger returns published entries matching the filter.
func (s *Service) Ledger(filter ledger.Filter) []ledger.Entry {
	return filter.Apply(s.engine.Snapshot().Entries)
}

// EntriesForParty returns the party's published entries.
func (s *Service) EntriesForParty(party string) []ledger.Entry {
	return s.engine.EntriesForParty(party)
}

// PartyBalances returns the published balances.
func (s *Service) PartyBalances() []ledger.PartyBalance {
	return s.engine.PartyBalances()
}

// Statement builds a party statement over an inclusive date window.
func (s *Service) Statement(party string, from, to *time.Time) (ledger.Statement, error) {
	snap := s.engine.Snapshot()
	if !slices.ContainsFunc(snap.Balances, func(pb ledger.PartyBalance) bool { return pb.Party == party }) {
		return ledger.Statement{}, fmt.Errorf("party %q: %w", party, ErrNotFound)
	}
	return ledger.BuildStatement(snap.Entries, party, from, to), nil
}
