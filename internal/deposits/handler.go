package deposits

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/pamoja-sacco/pamoja-sacco/internal/platform/httpx"
	"github.com/pamoja-sacco/pamoja-sacco/internal/shared"
)

type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers deposit routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/deposits", h.open)
	r.Get("/deposits", h.list)
	r.Get("/deposits/{depositID}", h.get)
	r.Post("/deposits/process-matured", h.processMatured)
}

type openRequest struct {
	MemberID     int64           `json:"member_id" validate:"required,gt=0"`
	Principal    decimal.Decimal `json:"principal" validate:"required"`
	Rate         decimal.Decimal `json:"rate" validate:"required"`
	TermMonths   int             `json:"term_months" validate:"required,gt=0"`
	AutoRollover bool            `json:"auto_rollover"`
}

type depositResponse struct {
	ID               int64           `json:"id"`
	MemberID         int64           `json:"member_id"`
	Principal        decimal.Decimal `json:"principal"`
	Rate             decimal.Decimal `json:"rate"`
	TermMonths       int             `json:"term_months"`
	StartDate        time.Time       `json:"start_date"`
	MaturityDate     time.Time       `json:"maturity_date"`
	ExpectedInterest decimal.Decimal `json:"expected_interest"`
	MaturityAmount   decimal.Decimal `json:"maturity_amount"`
	ActualInterest   decimal.Decimal `json:"actual_interest"`
	ActualPayout     decimal.Decimal `json:"actual_payout"`
	AutoRollover     bool            `json:"auto_rollover"`
	RolloverCount    int             `json:"rollover_count"`
	ParentDepositID  *int64          `json:"parent_deposit_id,omitempty"`
	Status           DepositStatus   `json:"status"`
}

func toDepositResponse(d FixedDeposit) depositResponse {
	return depositResponse{
		ID:               d.ID,
		MemberID:         d.MemberID,
		Principal:        d.Principal,
		Rate:             d.Rate,
		TermMonths:       d.TermMonths,
		StartDate:        d.StartDate,
		MaturityDate:     d.MaturityDate,
		ExpectedInterest: d.ExpectedInterest,
		MaturityAmount:   d.MaturityAmount,
		ActualInterest:   d.ActualInterest,
		ActualPayout:     d.ActualPayout,
		AutoRollover:     d.AutoRollover,
		RolloverCount:    d.RolloverCount,
		ParentDepositID:  d.ParentDepositID,
		Status:           d.Status,
	}
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	dep, err := h.service.Open(r.Context(), shared.OrgFromContext(r.Context()), OpenInput{
		MemberID:     req.MemberID,
		Principal:    req.Principal,
		Rate:         req.Rate,
		TermMonths:   req.TermMonths,
		AutoRollover: req.AutoRollover,
	})
	if err != nil {
		h.logger.Error("open deposit", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toDepositResponse(dep))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	memberID, _ := strconv.ParseInt(r.URL.Query().Get("member_id"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	deps, total, err := h.service.List(r.Context(), shared.OrgFromContext(r.Context()), memberID, limit, offset)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items := make([]depositResponse, 0, len(deps))
	for _, d := range deps {
		items = append(items, toDepositResponse(d))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "depositID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, shared.Validationf("invalid deposit id"))
		return
	}
	dep, err := h.service.Get(r.Context(), shared.OrgFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDepositResponse(dep))
}

// processMatured triggers a maturity run on demand; the worker invokes the
// same service method on its daily schedule.
func (h *Handler) processMatured(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ProcessMatured(r.Context(), shared.OrgFromContext(r.Context()))
	if err != nil {
		h.logger.Error("process matured deposits", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
