package ledger

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// State tells readers whether the published snapshot reflects the latest
// source collections.
type State string

const (
	StateStale State = "stale"
	StateBuilt State = "built"
)

// Snapshot is one immutable result of a rebuild.
type Snapshot struct {
	Version  uint64
	BuiltAt  time.Time
	Entries  []Entry
	Balances []PartyBalance
}

// Engine publishes ledger snapshots. Rebuilds are serialized and swap the
// snapshot in one step; reads never block and never see a partial rebuild.
type Engine struct {
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
	changes atomic.Uint64
	built   atomic.Uint64
	clock   func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock used to stamp snapshots.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// NewEngine returns an engine holding an empty, stale snapshot.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{clock: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(e)
	}
	e.current.Store(&Snapshot{Entries: []Entry{}, Balances: []PartyBalance{}})
	e.changes.Store(1)
	return e
}

// Rebuild recomputes the ledger from the source collections and publishes
// it. On error the previous snapshot stays published and the state is
// unchanged.
func (e *Engine) Rebuild(invoices []Invoice, payments []Payment, expenses []Expense) (*Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	generation := e.changes.Load()
	normalized, err := Normalize(invoices, payments, expenses)
	if err != nil {
		return nil, err
	}
	entries := Build(normalized)
	next := &Snapshot{
		Version:  e.current.Load().Version + 1,
		BuiltAt:  e.clock(),
		Entries:  entries,
		Balances: Classify(entries),
	}
	e.current.Store(next)
	e.built.Store(generation)
	return next, nil
}

// MarkStale records that the source collections changed since the last
// rebuild. A change racing with an in-flight rebuild keeps the engine stale.
func (e *Engine) MarkStale() {
	e.changes.Add(1)
}

// State reports Stale until a rebuild succeeds after the latest change.
func (e *Engine) State() State {
	if e.built.Load() != e.changes.Load() {
		return StateStale
	}
	return StateBuilt
}

// Snapshot returns the published snapshot. Callers must not modify it.
func (e *Engine) Snapshot() *Snapshot {
	return e.current.Load()
}

// Ledger returns a copy of the published entries in date order.
func (e *Engine) Ledger() []Entry {
	return slices.Clone(e.current.Load().Entries)
}

// EntriesForParty returns the party's entries in date order.
func (e *Engine) EntriesForParty(party string) []Entry {
	return EntriesForParty(e.current.Load().Entries, party)
}

// PartyBalances returns a copy of the published balances.
func (e *Engine) PartyBalances() []PartyBalance {
	return slices.Clone(e.current.Load().Balances)
}

// Balance looks up a single party's balance.
func (e *Engine) Balance(party string) (PartyBalance, bool) {
	for _, pb := range e.current.Load().Balances {
		if pb.Party == party {
			return pb, true
		}
	}
	return PartyBalance{}, false
}
