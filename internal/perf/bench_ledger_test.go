package perf

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/facilitydesk/facilitydesk/internal/billing"
	"github.com/facilitydesk/facilitydesk/internal/ledger"
	_ "github.com/facilitydesk/facilitydesk/testing"
)

var sites = []string{"Harbor View Tower", "Northgate Mall", "Riverside Campus", "Eastside Depot", ""}

// syntheticSources spreads n invoices, n payments and n/2 expenses over a
// year of dates and a handful of sites.
func syntheticSources(n int) billing.Sources {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := billing.Sources{}
	for i := 0; i < n; i++ {
		date := start.AddDate(0, 0, (i*7)%365).Format(time.DateOnly)
		site := sites[i%len(sites)]
		id := fmt.Sprintf("INV-%06d", i)
		src.Invoices = append(src.Invoices, ledger.Invoice{
			ID: id, Client: site, Amount: decimal.NewNullDecimal(decimal.NewFromInt(int64(100 + i%900))),
			Status: "sent", Date: date, Site: site, ServiceType: "cleaning",
		})
		src.Payments = append(src.Payments, ledger.Payment{
			ID: fmt.Sprintf("PAY-%06d", i), InvoiceID: id, Client: site,
			Amount: decimal.NewNullDecimal(decimal.NewFromInt(int64(50 + i%400))), Date: date, Status: "completed",
		})
		if i%2 == 0 {
			src.Expenses = append(src.Expenses, ledger.Expense{
				ID: fmt.Sprintf("EXP-%06d", i), Amount: decimal.NewNullDecimal(decimal.NewFromInt(25)),
				Date: date, Status: "paid", Site: site, Vendor: "Supplies Co",
			})
		}
	}
	return src
}

func BenchmarkLedgerRebuild(b *testing.B) {
	src := syntheticSources(5000)
	engine := ledger.NewEngine()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Rebuild(src.Invoices, src.Payments, src.Expenses); err != nil {
			b.Fatal(err)
		}
	}
}

func TestLedgerLatencyTargets(t *testing.T) {
	if testing.Short() {
		t.Skip("latency check skipped in short mode")
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := billing.NewInMemory(nil, nil, logger)
	if _, err := svc.Import(context.Background(), syntheticSources(2000)); err != nil {
		t.Fatalf("import: %v", err)
	}
	router := chi.NewRouter()
	router.Route("/billing", billing.NewHandler(logger, svc, nil).MountRoutes)

	scenarios := []struct {
		name      string
		path      string
		threshold time.Duration
	}{
		{name: "ledger page", path: "/billing/ledger?per_page=100", threshold: 250 * time.Millisecond},
		{name: "balances", path: "/billing/balances", threshold: 100 * time.Millisecond},
		{name: "statement", path: "/billing/parties/Northgate%20Mall/statement?from=2024-06-01", threshold: 250 * time.Millisecond},
	}
	for _, scenario := range scenarios {
		samples := make([]time.Duration, 0, 20)
		for i := 0; i < 20; i++ {
			rr := httptest.NewRecorder()
			start := time.Now()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, scenario.path, nil))
			samples = append(samples, time.Since(start))
			if rr.Code != http.StatusOK {
				t.Fatalf("%s: status %d", scenario.name, rr.Code)
			}
		}
		if p95 := percentile95(samples); p95 > scenario.threshold {
			t.Fatalf("%s latency regression: p95=%s threshold=%s", scenario.name, p95, scenario.threshold)
		}
	}

	start := time.Now()
	if _, err := svc.Rebuild(context.Background(), "perf"); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("rebuild of %d entries took %s", len(svc.Snapshot().Entries), elapsed)
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
