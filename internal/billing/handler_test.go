package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/facilitydesk/facilitydesk/internal/ledger"
	"github.com/facilitydesk/facilitydesk/internal/shared"
)

type fakeQueue struct {
	party    string
	from, to *time.Time
	reason   string
}

func (f *fakeQueue) EnqueueLedgerRebuild(_ context.Context, reason string) (string, error) {
	f.reason = reason
	return "task-2", nil
}

func (f *fakeQueue) EnqueueStatementExport(_ context.Context, party string, from, to *time.Time) (string, error) {
	f.party, f.from, f.to = party, from, to
	return "task-1", nil
}

func newTestRouter(t *testing.T, queue JobQueue) (http.Handler, *Service) {
	t.Helper()
	svc, _, _ := newTestService(t)
	r := chi.NewRouter()
	r.Route("/billing", NewHandler(discardLogger(), svc, queue).MountRoutes)
	return r, svc
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandlerLedgerPagination(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rr := do(t, router, http.MethodGet, "/billing/ledger?page=2&per_page=4", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Items      []ledger.Entry `json:"items"`
		Pagination struct {
			Page, Total, TotalPages int
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 4)
	require.Equal(t, 10, resp.Pagination.Total)
	require.Equal(t, 3, resp.Pagination.TotalPages)
	require.Equal(t, "INV-1003", resp.Items[0].Reference)
}

func TestHandlerLedgerRejectsBadDate(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rr := do(t, router, http.MethodGet, "/billing/ledger?from=yesterday", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestHandlerBalancesCSV(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rr := do(t, router, http.MethodGet, "/billing/balances.csv", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Header().Get("Content-Disposition"), "balances.csv")
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\r\n")
	require.Len(t, lines, 5)
	require.Equal(t, "Unknown Site,0.00,430.00,-430.00,credit,2024-01-30,", lines[3])
}

func TestHandlerPartyEntriesUnknownSite(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rr := do(t, router, http.MethodGet, "/billing/parties/Unknown%20Site/entries", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var entries []ledger.Entry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	require.Equal(t, "PAY-2004", entries[0].Reference)
	require.Equal(t, "Payment received - Legacy Client", entries[0].Description)
}

func TestHandlerStatement(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rr := do(t, router, http.MethodGet, "/billing/parties/Northgate%20Mall/statement?from=2024-01-15&to=2024-01-31", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var st ledger.Statement
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
	require.Equal(t, "12500", st.OpeningBalance.String())
	require.Len(t, st.Entries, 1)
	require.Equal(t, "11600", st.ClosingBalance.String())

	rr = do(t, router, http.MethodGet, "/billing/parties/Nowhere/statement", "")
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, router, http.MethodGet, "/billing/parties/Northgate%20Mall/statement.csv", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Header().Get("Content-Disposition"), "statement_northgate-mall.csv")
}

func TestHandlerCreateInvoice(t *testing.T) {
	router, svc := newTestRouter(t, nil)

	rr := do(t, router, http.MethodPost, "/billing/invoices",
		`{"client":"Eastside Depot","amount":"980.40","status":"sent","date":"2024-02-12","site":"Eastside Depot","serviceType":"pest_control"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	var inv ledger.Invoice
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &inv))
	require.NotEmpty(t, inv.ID)

	entries := svc.EntriesForParty("Eastside Depot")
	require.Len(t, entries, 1)
	require.Equal(t, "Pest Control - Eastside Depot", entries[0].Description)
}

func TestHandlerCreateValidation(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rr := do(t, router, http.MethodPost, "/billing/payments", `{"client":"Alpha","date":"2024-02-01","status":"completed"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), "amount failed required")

	rr = do(t, router, http.MethodPost, "/billing/expenses", `{"amount":"-1","date":"2024-02-01","status":"pending"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), "must not be negative")

	rr = do(t, router, http.MethodPost, "/billing/expenses", `{"amount":"1","date":"2024-02-01","status":"pending","bogus":true}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, http.MethodPost, "/billing/invoices", `{"id":"INV-1001","client":"X","amount":"1","status":"sent","date":"2024-02-01"}`)
	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestHandlerStatusChanges(t *testing.T) {
	router, svc := newTestRouter(t, nil)

	rr := do(t, router, http.MethodPatch, "/billing/payments/PAY-2003/status", `{"status":"completed"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, svc.EntriesForParty("Riverside Campus"), 3)

	rr = do(t, router, http.MethodPatch, "/billing/payments/PAY-2003/status", `{"status":"lost"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(t, router, http.MethodPatch, "/billing/invoices/INV-404/status", `{"status":"paid"}`)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlerUpdateMismatchedID(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rr := do(t, router, http.MethodPut, "/billing/expenses/EXP-3001",
		`{"id":"EXP-3002","amount":"900","date":"2024-01-18","status":"approved"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerImportKeepsPreviousSnapshot(t *testing.T) {
	router, svc := newTestRouter(t, nil)
	before := svc.Snapshot().Version

	rr := do(t, router, http.MethodPut, "/billing/sources", `{"invoices":[{"id":"INV-1","client":"A","status":"sent","date":"2024-01-01"}]}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), "amount is required")
	require.Equal(t, ledger.StateStale, svc.State())
	require.Equal(t, before, svc.Snapshot().Version)

	rr = do(t, router, http.MethodPost, "/billing/expenses", `{"amount":"5","date":"2024-02-01","status":"pending","site":"Harbor View Tower"}`)
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Contains(t, rr.Body.String(), `"state":"stale"`)

	rr = do(t, router, http.MethodPut, "/billing/invoices/INV-1",
		`{"client":"A","amount":"100","status":"sent","date":"2024-01-01","site":"A"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, ledger.StateBuilt, svc.State())
}

func TestHandlerRebuild(t *testing.T) {
	router, svc := newTestRouter(t, nil)

	rr := do(t, router, http.MethodPost, "/billing/ledger/rebuild", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var resp SnapshotResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, svc.Snapshot().Version, resp.Version)
	require.Equal(t, "built", resp.State)
	require.Equal(t, 4, resp.Parties)
}

func TestHandlerRebuildAsync(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	rr := do(t, router, http.MethodPost, "/billing/ledger/rebuild?async=1", "")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	queue := &fakeQueue{}
	router, svc := newTestRouter(t, queue)
	before := svc.Snapshot().Version
	rr = do(t, router, http.MethodPost, "/billing/ledger/rebuild?async=true", "")
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.JSONEq(t, `{"taskId":"task-2"}`, rr.Body.String())
	require.Equal(t, "manual", queue.reason)
	require.Equal(t, before, svc.Snapshot().Version)
}

func TestHandlerStatementExport(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	rr := do(t, router, http.MethodPost, "/billing/parties/Northgate%20Mall/statement/export", "")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	queue := &fakeQueue{}
	router, _ = newTestRouter(t, queue)
	rr = do(t, router, http.MethodPost, "/billing/parties/Northgate%20Mall/statement/export?to=2024-01-31", "")
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Equal(t, "Northgate Mall", queue.party)
	require.Nil(t, queue.from)
	require.NotNil(t, queue.to)
}

func TestStatementFilename(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "statement_unknown-site_20240101.csv", StatementFilename(ledger.UnknownSite, &from, nil))
	require.Equal(t, "statement_party.csv", StatementFilename("***", nil, nil))
}

func TestHandlerIdempotentCreate(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	svc, _, _ := newTestService(t)
	handler := NewHandler(discardLogger(), svc, nil).WithIdempotency(shared.NewIdempotencyStore(client, time.Hour))
	router := chi.NewRouter()
	router.Route("/billing", handler.MountRoutes)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/billing/expenses", strings.NewReader(body))
		req.Header.Set(IdempotencyHeader, "req-1")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	rr := post(`{"amount":"-3","date":"2024-02-01","status":"pending"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	body := `{"amount":"75","date":"2024-02-01","status":"pending","site":"Northgate Mall"}`
	rr = post(body)
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = post(body)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Len(t, svc.Expenses(), 4)
}
