package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"taskstream/internal/api/middleware"
	"taskstream/internal/domain/record"
	"taskstream/internal/domain/summary"
	"taskstream/internal/domain/transaction"
	"taskstream/internal/idempotency"
	"taskstream/internal/infrastructure/websocket"
	"taskstream/internal/observer"
	"taskstream/internal/usecase"
)

type Handlers struct {
	createTransactionUC *usecase.CreateTransaction
	getTransactionUC    *usecase.GetRecord[transaction.Transaction]
	listTransactionsUC  *usecase.ListRecords[transaction.Transaction]
	createSummaryUC     *usecase.CreateSummary
	getSummaryUC        *usecase.GetRecord[summary.Summary]
	listSummariesUC     *usecase.ListRecords[summary.Summary]
	observers           *observer.Registry
	logger              *slog.Logger
}

type HandlersDeps struct {
	CreateTransaction *usecase.CreateTransaction
	GetTransaction    *usecase.GetRecord[transaction.Transaction]
	ListTransactions  *usecase.ListRecords[transaction.Transaction]
	CreateSummary     *usecase.CreateSummary
	GetSummary        *usecase.GetRecord[summary.Summary]
	ListSummaries     *usecase.ListRecords[summary.Summary]
	Observers         *observer.Registry
	Logger            *slog.Logger
}

func NewHandlers(deps HandlersDeps) *Handlers {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		createTransactionUC: deps.CreateTransaction,
		getTransactionUC:    deps.GetTransaction,
		listTransactionsUC:  deps.ListTransactions,
		createSummaryUC:     deps.CreateSummary,
		getSummaryUC:        deps.GetSummary,
		listSummariesUC:     deps.ListSummaries,
		observers:           deps.Observers,
		logger:              logger.With("component", "http"),
	}
}

func (h *Handlers) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	h.createTransaction(w, r, false)
}

func (h *Handlers) AsyncProcessTransaction(w http.ResponseWriter, r *http.Request) {
	h.createTransaction(w, r, true)
}

func (h *Handlers) createTransaction(w http.ResponseWriter, r *http.Request, async bool) {
	var req transaction.Payload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	forceFail, ok := parseFail(w, r)
	if !ok {
		return
	}

	tx, _, err := h.createTransactionUC.Execute(r.Context(), usecase.CreateTransactionParams{
		Payload:        req,
		IdempotencyKey: middleware.IdempotencyKeyFrom(r.Context()),
		Async:          async,
		ForceFail:      forceFail,
	})
	if err != nil {
		h.writeUseCaseError(w, err, "")
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

func (h *Handlers) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	items, err := h.listTransactionsUC.Execute(r.Context(), limit)
	if err != nil {
		h.writeUseCaseError(w, err, "")
		return
	}
	if items == nil {
		items = []transaction.Transaction{}
	}
	writeNoCacheJSON(w, items)
}

func (h *Handlers) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.getTransactionUC.Execute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeUseCaseError(w, err, "transaction_not_found")
		return
	}
	writeNoCacheJSON(w, tx)
}

func (h *Handlers) CreateSummaryAsync(w http.ResponseWriter, r *http.Request) {
	var req summary.Payload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	forceFail, ok := parseFail(w, r)
	if !ok {
		return
	}

	s, _, err := h.createSummaryUC.Execute(r.Context(), usecase.CreateSummaryParams{
		Payload:        req,
		IdempotencyKey: middleware.IdempotencyKeyFrom(r.Context()),
		ForceFail:      forceFail,
	})
	if err != nil {
		h.writeUseCaseError(w, err, "")
		return
	}

	writeJSON(w, http.StatusOK, s)
}

func (h *Handlers) ListSummaries(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	items, err := h.listSummariesUC.Execute(r.Context(), limit)
	if err != nil {
		h.writeUseCaseError(w, err, "")
		return
	}
	if items == nil {
		items = []summary.Summary{}
	}
	writeNoCacheJSON(w, items)
}

func (h *Handlers) GetSummary(w http.ResponseWriter, r *http.Request) {
	s, err := h.getSummaryUC.Execute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeUseCaseError(w, err, "summary_not_found")
		return
	}
	writeNoCacheJSON(w, s)
}

// Stream upgrades to a websocket and keeps the observer registered until the
// client disconnects or the server shuts down.
func (h *Handlers) Stream(w http.ResponseWriter, r *http.Request) {
	conn := websocket.NewConn(w, r)
	defer conn.Close()

	if err := h.observers.Serve(r.Context(), conn); err != nil {
		h.logger.Warn("observer stream ended", "error", err)
	}
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handlers) writeUseCaseError(w http.ResponseWriter, err error, notFound string) {
	switch {
	case errors.Is(err, record.ErrNotFound) && notFound != "":
		writeError(w, http.StatusNotFound, notFound)
	case errors.Is(err, usecase.ErrInvalidInput):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, idempotency.ErrKeyTooLong):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseFail(w http.ResponseWriter, r *http.Request) (bool, bool) {
	raw := r.URL.Query().Get("fail")
	if raw == "" {
		return false, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "fail must be a boolean")
		return false, false
	}
	return v, true
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		writeError(w, http.StatusUnprocessableEntity, "limit must be a non-negative integer")
		return 0, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeNoCacheJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	writeJSON(w, http.StatusOK, v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
