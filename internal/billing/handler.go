package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/facilitydesk/facilitydesk/internal/billing/export"
	"github.com/facilitydesk/facilitydesk/internal/ledger"
	"github.com/facilitydesk/facilitydesk/internal/platform/httpx"
	"github.com/facilitydesk/facilitydesk/internal/shared"
)

// JobQueue hands rebuilds and statement exports to the background worker.
type JobQueue interface {
	EnqueueLedgerRebuild(ctx context.Context, reason string) (string, error)
	EnqueueStatementExport(ctx context.Context, party string, from, to *time.Time) (string, error)
}

// Idempotency claims request keys so a retried create is applied once.
type Idempotency interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// IdempotencyHeader carries the client-chosen request key.
const IdempotencyHeader = "Idempotency-Key"

// Handler serves the billing HTTP API.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	queue       JobQueue
	idempotency Idempotency
	validator   *validator.Validate
}

// NewHandler builds Handler instance. queue may be nil when background
// jobs are disabled.
func NewHandler(logger *slog.Logger, service *Service, queue JobQueue) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{logger: logger, service: service, queue: queue, validator: v}
}

// WithIdempotency enables Idempotency-Key handling on create endpoints.
func (h *Handler) WithIdempotency(store Idempotency) *Handler {
	h.idempotency = store
	return h
}

func (h *Handler) handleLedger(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	page, perPage := pageParams(r.URL.Query())
	items, pagination := shared.Paginate(h.service.Ledger(filter), page, perPage)
	httpx.JSON(w, http.StatusOK, ListResponse[ledger.Entry]{Items: items, Pagination: pagination})
}

func (h *Handler) handleLedgerCSV(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.CSV(w, "ledger.csv")
	if err := export.WriteLedgerCSV(w, h.service.Ledger(filter)); err != nil {
		h.logger.Error("write ledger csv", slog.Any("error", err))
	}
}

func (h *Handler) handleBalances(w http.ResponseWriter, r *http.Request) {
	snap := h.service.Snapshot()
	httpx.JSON(w, http.StatusOK, map[string]any{
		"version":  snap.Version,
		"state":    h.service.State(),
		"balances": h.service.PartyBalances(),
	})
}

func (h *Handler) handleBalancesCSV(w http.ResponseWriter, r *http.Request) {
	httpx.CSV(w, "balances.csv")
	if err := export.WriteBalancesCSV(w, h.service.PartyBalances()); err != nil {
		h.logger.Error("write balances csv", slog.Any("error", err))
	}
}

func (h *Handler) handlePartyEntries(w http.ResponseWriter, r *http.Request) {
	party, err := partyParam(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.service.EntriesForParty(party))
}

func (h *Handler) handleStatement(w http.ResponseWriter, r *http.Request) {
	st, ok := h.statement(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, st)
}

func (h *Handler) handleStatementCSV(w http.ResponseWriter, r *http.Request) {
	st, ok := h.statement(w, r)
	if !ok {
		return
	}
	httpx.CSV(w, StatementFilename(st.Party, st.From, st.To))
	if err := export.WriteStatementCSV(w, st); err != nil {
		h.logger.Error("write statement csv", slog.Any("error", err), slog.String("party", st.Party))
	}
}

func (h *Handler) statement(w http.ResponseWriter, r *http.Request) (ledger.Statement, bool) {
	party, err := partyParam(r)
	if err != nil {
		h.respondError(w, r, err)
		return ledger.Statement{}, false
	}
	from, to, err := dateRange(r.URL.Query())
	if err != nil {
		h.respondError(w, r, err)
		return ledger.Statement{}, false
	}
	st, err := h.service.Statement(party, from, to)
	if err != nil {
		h.respondError(w, r, err)
		return ledger.Statement{}, false
	}
	return st, true
}

func (h *Handler) handleStatementExport(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		jobsDisabled(w)
		return
	}
	party, err := partyParam(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	from, to, err := dateRange(r.URL.Query())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if _, err := h.service.Statement(party, from, to); err != nil {
		h.respondError(w, r, err)
		return
	}
	taskID, err := h.queue.EnqueueStatementExport(r.Context(), party, from, to)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"taskId": taskID, "party": party})
}

func jobsDisabled(w http.ResponseWriter) {
	httpx.Problem(w, http.StatusServiceUnavailable, "Jobs Disabled", "background jobs are not enabled")
}

func (h *Handler) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		if h.queue == nil {
			jobsDisabled(w)
			return
		}
		taskID, err := h.queue.EnqueueLedgerRebuild(r.Context(), "manual")
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]string{"taskId": taskID})
		return
	}
	snap, err := h.service.Rebuild(r.Context(), "manual")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snapshotResponse(snap, h.service.State()))
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	snap, err := h.service.Import(r.Context(), Sources{Invoices: req.Invoices, Payments: req.Payments, Expenses: req.Expenses})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snapshotResponse(snap, h.service.State()))
}

func (h *Handler) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	page, perPage := pageParams(r.URL.Query())
	items, pagination := shared.Paginate(h.service.Invoices(), page, perPage)
	httpx.JSON(w, http.StatusOK, ListResponse[ledger.Invoice]{Items: items, Pagination: pagination})
}

func (h *Handler) handleListPayments(w http.ResponseWriter, r *http.Request) {
	page, perPage := pageParams(r.URL.Query())
	items, pagination := shared.Paginate(h.service.Payments(), page, perPage)
	httpx.JSON(w, http.StatusOK, ListResponse[ledger.Payment]{Items: items, Pagination: pagination})
}

func (h *Handler) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	page, perPage := pageParams(r.URL.Query())
	items, pagination := shared.Paginate(h.service.Expenses(), page, perPage)
	httpx.JSON(w, http.StatusOK, ListResponse[ledger.Expense]{Items: items, Pagination: pagination})
}

func (h *Handler) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req InvoiceRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	release, err := h.claim(r, "billing.invoices")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	inv, err := h.service.CreateInvoice(r.Context(), req.toInvoice())
	release(err)
	h.respondMutation(w, r, http.StatusCreated, inv, err)
}

func (h *Handler) handleUpdateInvoice(w http.ResponseWriter, r *http.Request) {
	var req InvoiceRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	id, err := pathID(r, req.ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	req.ID = id
	inv, err := h.service.UpdateInvoice(r.Context(), req.toInvoice())
	h.respondMutation(w, r, http.StatusOK, inv, err)
}

func (h *Handler) handleInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.decodeStatus(r, invoiceStatusRule)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	inv, err := h.service.SetInvoiceStatus(r.Context(), chi.URLParam(r, "id"), status)
	h.respondMutation(w, r, http.StatusOK, inv, err)
}

func (h *Handler) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	release, err := h.claim(r, "billing.payments")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	pay, err := h.service.CreatePayment(r.Context(), req.toPayment())
	release(err)
	h.respondMutation(w, r, http.StatusCreated, pay, err)
}

func (h *Handler) handleUpdatePayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	id, err := pathID(r, req.ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	req.ID = id
	pay, err := h.service.UpdatePayment(r.Context(), req.toPayment())
	h.respondMutation(w, r, http.StatusOK, pay, err)
}

func (h *Handler) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.decodeStatus(r, paymentStatusRule)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	pay, err := h.service.SetPaymentStatus(r.Context(), chi.URLParam(r, "id"), status)
	h.respondMutation(w, r, http.StatusOK, pay, err)
}

func (h *Handler) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req ExpenseRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	release, err := h.claim(r, "billing.expenses")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	exp, err := h.service.CreateExpense(r.Context(), req.toExpense())
	release(err)
	h.respondMutation(w, r, http.StatusCreated, exp, err)
}

func (h *Handler) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	var req ExpenseRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	id, err := pathID(r, req.ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	req.ID = id
	exp, err := h.service.UpdateExpense(r.Context(), req.toExpense())
	h.respondMutation(w, r, http.StatusOK, exp, err)
}

func (h *Handler) handleExpenseStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.decodeStatus(r, expenseStatusRule)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	exp, err := h.service.SetExpenseStatus(r.Context(), chi.URLParam(r, "id"), status)
	h.respondMutation(w, r, http.StatusOK, exp, err)
}

// claim reserves the request's idempotency key. The returned release drops
// the key again when the create was not saved.
func (h *Handler) claim(r *http.Request, module string) (func(error), error) {
	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if key == "" || h.idempotency == nil {
		return func(error) {}, nil
	}
	if err := h.idempotency.CheckAndInsert(r.Context(), key, module); err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			return nil, fmt.Errorf("%w: %w", httpx.ErrDuplicate, err)
		}
		return nil, err
	}
	return func(err error) {
		if err == nil || errors.Is(err, ErrStaleLedger) {
			return
		}
		if delErr := h.idempotency.Delete(context.WithoutCancel(r.Context()), key, module); delErr != nil {
			h.logger.Warn("release idempotency key", slog.String("module", module), slog.Any("error", delErr))
		}
	}, nil
}

func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return err
	}
	return h.validate(target)
}

func (h *Handler) decodeStatus(r *http.Request, rule string) (string, error) {
	var req StatusRequest
	if err := h.decode(r, &req); err != nil {
		return "", err
	}
	if err := h.validator.Var(req.Status, rule); err != nil {
		return "", fmt.Errorf("%w: status %q is not allowed", httpx.ErrValidation, req.Status)
	}
	return req.Status, nil
}

func (h *Handler) validate(target any) error {
	err := h.validator.Struct(target)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", httpx.ErrBadRequest, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", httpx.ErrValidation, strings.Join(msgs, "; "))
}

// staleResponse reports a saved change whose rebuild was rejected.
type staleResponse struct {
	Record any          `json:"record"`
	State  ledger.State `json:"state"`
	Detail string       `json:"detail"`
}

func (h *Handler) respondMutation(w http.ResponseWriter, r *http.Request, status int, record any, err error) {
	switch {
	case err == nil:
		httpx.JSON(w, status, record)
	case errors.Is(err, ErrStaleLedger):
		h.logger.Warn("source saved with stale ledger", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.JSON(w, http.StatusAccepted, staleResponse{Record: record, State: h.service.State(), Detail: err.Error()})
	default:
		h.respondError(w, r, err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.ErrValidation):
		err = fmt.Errorf("%w: %w", httpx.ErrValidation, err)
	case errors.Is(err, ErrNotFound):
		err = fmt.Errorf("%w: %w", httpx.ErrNotFound, err)
	case errors.Is(err, ErrDuplicate):
		err = fmt.Errorf("%w: %w", httpx.ErrDuplicate, err)
	case errors.Is(err, httpx.ErrNotFound), errors.Is(err, httpx.ErrDuplicate),
		errors.Is(err, httpx.ErrValidation), errors.Is(err, httpx.ErrBadRequest):
	default:
		h.logger.Error("billing request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func snapshotResponse(snap *ledger.Snapshot, state ledger.State) SnapshotResponse {
	resp := SnapshotResponse{Version: snap.Version, State: string(state), Entries: len(snap.Entries), Parties: len(snap.Balances)}
	if !snap.BuiltAt.IsZero() {
		resp.BuiltAt = snap.BuiltAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func partyParam(r *http.Request) (string, error) {
	party, err := url.PathUnescape(chi.URLParam(r, "party"))
	if err != nil || strings.TrimSpace(party) == "" {
		return "", fmt.Errorf("%w: invalid party", httpx.ErrBadRequest)
	}
	return party, nil
}

func pathID(r *http.Request, bodyID string) (string, error) {
	id := chi.URLParam(r, "id")
	if bodyID != "" && bodyID != id {
		return "", fmt.Errorf("%w: body id %q does not match path id %q", httpx.ErrBadRequest, bodyID, id)
	}
	return id, nil
}

func parseFilter(q url.Values) (ledger.Filter, error) {
	from, to, err := dateRange(q)
	if err != nil {
		return ledger.Filter{}, err
	}
	return ledger.Filter{
		Query: q.Get("q"),
		Party: q.Get("party"),
		Type:  ledger.EntryType(q.Get("type")),
		From:  from,
		To:    to,
	}, nil
}

func dateRange(q url.Values) (from, to *time.Time, err error) {
	if from, err = optionalDate(q, "from"); err != nil {
		return nil, nil, err
	}
	if to, err = optionalDate(q, "to"); err != nil {
		return nil, nil, err
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, nil, fmt.Errorf("%w: to precedes from", httpx.ErrBadRequest)
	}
	return from, to, nil
}

func optionalDate(q url.Values, key string) (*time.Time, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil, nil
	}
	t, err := ledger.ParseDate(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", httpx.ErrBadRequest, key, err)
	}
	return &t, nil
}

func pageParams(q url.Values) (page, perPage int) {
	page, _ = strconv.Atoi(q.Get("page"))
	perPage, _ = strconv.Atoi(q.Get("per_page"))
	if perPage > 500 {
		perPage = 500
	}
	return page, perPage
}

// StatementFilename names a statement export.
func StatementFilename(party string, from, to *time.Time) string {
	name := strings.ToLower(strings.Join(strings.Fields(party), "-"))
	name = strings.Map(func(r rune) rune {
		if r == '-' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, name)
	if name == "" {
		name = "party"
	}
	if from != nil {
		name += "_" + from.Format("20060102")
	}
	if to != nil {
		name += "_" + to.Format("20060102")
	}
	return "statement_" + name + ".csv"
}
