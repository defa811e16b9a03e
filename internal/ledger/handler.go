// Package ledger exposes the HTTP surface of the general ledger: chart of
// accounts maintenance, manual journal postings and reversals, and the
// financial reports built from posted activity.
package ledger

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/pamoja-sacco/pamoja-sacco/internal/ledger/accounts"
	"github.com/pamoja-sacco/pamoja-sacco/internal/ledger/journals"
	"github.com/pamoja-sacco/pamoja-sacco/internal/ledger/reports"
	"github.com/pamoja-sacco/pamoja-sacco/internal/platform/httpx"
	"github.com/pamoja-sacco/pamoja-sacco/internal/shared"
	"github.com/pamoja-sacco/pamoja-sacco/internal/tenant"
)

// SourceTypeManual marks journal entries posted directly by staff rather
// than generated by the loan or deposit engines.
const SourceTypeManual = "MANUAL"

// Handler wires the ledger endpoints. Services are resolved per request
// against the tenant organization's pool.
type Handler struct {
	logger    *slog.Logger
	registry  *tenant.Registry
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, registry *tenant.Registry) *Handler {
	return &Handler{logger: logger, registry: registry, validator: validator.New()}
}

// MountRoutes registers ledger routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts", h.listAccounts)
	r.Post("/accounts", h.createAccount)
	r.Get("/journal-entries", h.listEntries)
	r.Get("/journal-entries/{entryID}", h.getEntry)
	r.Post("/journal-entries", h.postEntry)
	r.Post("/journal-entries/{entryID}/reverse", h.reverseEntry)
	r.Get("/reports/trial-balance", h.trialBalance)
	r.Get("/reports/income-statement", h.incomeStatement)
	r.Get("/reports/balance-sheet", h.balanceSheet)
}

func (h *Handler) journals(r *http.Request) (*journals.Service, error) {
	pool, err := h.registry.Pool(r.Context(), shared.OrgFromContext(r.Context()))
	if err != nil {
		return nil, err
	}
	return journals.NewService(journals.NewRepository(pool), shared.NewAuditLogger(pool)), nil
}

func (h *Handler) accounts(r *http.Request) (*accounts.Service, error) {
	pool, err := h.registry.Pool(r.Context(), shared.OrgFromContext(r.Context()))
	if err != nil {
		return nil, err
	}
	return accounts.NewService(accounts.NewRepository(pool)), nil
}

func (h *Handler) reports(r *http.Request) (reports.Repository, error) {
	pool, err := h.registry.Pool(r.Context(), shared.OrgFromContext(r.Context()))
	if err != nil {
		return nil, err
	}
	return reports.NewRepository(pool), nil
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	svc, err := h.accounts(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	accs, err := svc.List(r.Context())
	if err != nil {
		h.logger.Error("list accounts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	items := make([]accountResponse, 0, len(accs))
	for _, acc := range accs {
		items = append(items, toAccountResponse(acc))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	svc, err := h.accounts(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	acc, err := svc.Create(r.Context(), accounts.Account{
		Code:     req.Code,
		Name:     req.Name,
		Type:     accounts.AccountType(req.Type),
		ParentID: req.ParentID,
		IsHeader: req.IsHeader,
	})
	if err != nil {
		h.logger.Error("create account", slog.String("code", req.Code), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAccountResponse(acc))
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	svc, err := h.journals(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, err := svc.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("list journal entries", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	items := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, toEntryResponse(e))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) getEntry(w http.ResponseWriter, r *http.Request) {
	entryID, err := entryIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	svc, err := h.journals(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := svc.Get(r.Context(), entryID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *Handler) postEntry(w http.ResponseWriter, r *http.Request) {
	var req postEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
		return
	}
	sourceID := uuid.New()
	if req.SourceID != "" {
		parsed, err := uuid.Parse(req.SourceID)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "source_id must be a UUID")
			return
		}
		sourceID = parsed
	}
	input := journals.PostingInput{
		Date:        date,
		Description: req.Description,
		SourceType:  SourceTypeManual,
		SourceID:    sourceID,
		PostedBy:    shared.ActorFromContext(r.Context()),
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, journals.PostingLineInput{
			AccountID: line.AccountID,
			Debit:     line.Debit,
			Credit:    line.Credit,
		})
	}
	svc, err := h.journals(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := svc.Post(r.Context(), input)
	if err != nil {
		h.logger.Error("post journal entry", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (h *Handler) reverseEntry(w http.ResponseWriter, r *http.Request) {
	entryID, err := entryIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	// The memo body is optional.
	var req reverseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	svc, err := h.journals(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	reversal, err := svc.Reverse(r.Context(), journals.ReverseInput{
		EntryID: entryID,
		ActorID: shared.ActorFromContext(r.Context()),
		Memo:    req.Memo,
	})
	if err != nil {
		h.logger.Error("reverse journal entry", slog.Int64("entry", entryID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryResponse(reversal))
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	from, to, err := reportWindow(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	balances, err := h.accountActivity(r, from, to)
	if err != nil {
		h.logger.Error("trial balance", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTrialBalanceResponse(reports.BuildTrialBalance(balances), from, to))
}

func (h *Handler) incomeStatement(w http.ResponseWriter, r *http.Request) {
	from, to, err := reportWindow(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	balances, err := h.accountActivity(r, from, to)
	if err != nil {
		h.logger.Error("income statement", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toIncomeStatementResponse(reports.BuildIncomeStatement(balances), from, to))
}

// balanceSheet reports closing positions as of a date; the window opens at
// the epoch so every posted line contributes to the closing balance.
func (h *Handler) balanceSheet(w http.ResponseWriter, r *http.Request) {
	asOf := time.Now().UTC()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.RespondError(w, shared.Validationf("as_of must be YYYY-MM-DD"))
			return
		}
		asOf = parsed
	}
	balances, err := h.accountActivity(r, time.Time{}, asOf)
	if err != nil {
		h.logger.Error("balance sheet", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBalanceSheetResponse(reports.BuildBalanceSheet(balances), asOf))
}

func (h *Handler) accountActivity(r *http.Request, from, to time.Time) ([]reports.AccountBalance, error) {
	repo, err := h.reports(r)
	if err != nil {
		return nil, err
	}
	return repo.AccountActivity(r.Context(), from, to)
}

// reportWindow parses the from/to query params, defaulting to the current
// calendar month.
func reportWindow(r *http.Request) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := now
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return time.Time{}, time.Time{}, shared.Validationf("from must be YYYY-MM-DD")
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return time.Time{}, time.Time{}, shared.Validationf("to must be YYYY-MM-DD")
		}
		to = parsed
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, shared.Validationf("report window ends before it starts")
	}
	return from, to, nil
}

func entryIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "entryID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Validationf("invalid journal entry id")
	}
	return id, nil
}
