package loans

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pamoja-sacco/pamoja-sacco/internal/platform/httpx"
	"github.com/pamoja-sacco/pamoja-sacco/internal/shared"
)

// Handler wires the loan endpoints. The tenant organization is resolved by
// middleware and read from the request context.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers loan routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/loans", h.create)
	r.Post("/loans/quote", h.quote)
	r.Get("/loans", h.list)
	r.Get("/loans/{loanID}", h.get)
	r.Post("/loans/{loanID}/approve", h.approve)
	r.Post("/loans/{loanID}/reject", h.reject)
	r.Post("/loans/{loanID}/disburse", h.disburse)
	r.Post("/loans/{loanID}/repayments", h.repay)
	r.Post("/loans/{loanID}/restructure", h.restructure)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	loan, err := h.service.Create(r.Context(), shared.OrgFromContext(r.Context()), CreateInput{
		MemberID:                req.MemberID,
		Principal:               req.Principal,
		TermMonths:              req.TermMonths,
		InterestRate:            req.InterestRate,
		InterestType:            InterestType(req.InterestType),
		Frequency:               Frequency(req.Frequency),
		InterestDeductedUpfront: req.InterestDeductedUpfront,
	})
	if err != nil {
		h.logger.Error("create loan", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toLoanResponse(loan))
}

// quote prices a prospective loan without storing anything.
func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	terms, err := CalculateLoan(req.Principal, req.TermMonths, req.InterestRate, InterestType(req.InterestType))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"monthly_repayment": terms.MonthlyRepayment,
		"total_interest":    terms.TotalInterest,
		"total_repayment":   terms.TotalRepayment,
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	loans, total, err := h.service.List(r.Context(), shared.OrgFromContext(r.Context()), limit, offset)
	if err != nil {
		h.logger.Error("list loans", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	items := make([]loanResponse, 0, len(loans))
	for _, l := range loans {
		items = append(items, toLoanResponse(l))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	loanID, err := loanIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	loan, instalments, err := h.service.Get(r.Context(), shared.OrgFromContext(r.Context()), loanID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"loan":     toLoanResponse(loan),
		"schedule": toInstalmentResponses(instalments),
	})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Approve)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Reject)
}

func (h *Handler) disburse(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Disburse)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, org string, id int64) (LoanApplication, error)) {
	loanID, err := loanIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	loan, err := op(r.Context(), shared.OrgFromContext(r.Context()), loanID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toLoanResponse(loan))
}

func (h *Handler) repay(w http.ResponseWriter, r *http.Request) {
	loanID, err := loanIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req repaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := ApplyPaymentInput{LoanID: loanID, Amount: req.Amount, Reference: req.Reference, Method: req.Method}
	if req.PaidAt != nil {
		input.PaidAt = *req.PaidAt
	}
	result, err := h.service.ApplyPayment(r.Context(), shared.OrgFromContext(r.Context()), input)
	if err != nil {
		h.logger.Error("apply payment", slog.Int64("loan", loanID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	httpx.JSON(w, status, repaymentResponse{
		ID:               result.Repayment.ID,
		Reference:        result.Repayment.Reference,
		Amount:           result.Repayment.Amount,
		PrincipalApplied: result.Repayment.PrincipalApplied,
		InterestApplied:  result.Repayment.InterestApplied,
		PenaltyApplied:   result.Repayment.PenaltyApplied,
		Overpayment:      result.Repayment.Overpayment,
		Duplicate:        result.Duplicate,
		OutstandingAfter: result.Loan.OutstandingBalance,
		LoanStatus:       result.Loan.Status,
	})
}

func (h *Handler) restructure(w http.ResponseWriter, r *http.Request) {
	loanID, err := loanIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req restructureRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	record, err := h.service.Restructure(r.Context(), shared.OrgFromContext(r.Context()), loanID, RestructureType(req.Type), RestructureParams{
		NewTerm:     req.NewTerm,
		NewPayment:  req.NewPayment,
		NewRate:     req.NewRate,
		WaiveAmount: req.WaiveAmount,
		GraceDays:   req.GraceDays,
		Reason:      req.Reason,
	})
	if err != nil {
		h.logger.Error("restructure loan", slog.Int64("loan", loanID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, restructureResponse{
		ID:           record.ID,
		LoanID:       record.LoanID,
		Type:         record.Type,
		OldTerm:      record.OldTerm,
		NewTerm:      record.NewTerm,
		OldRate:      record.OldRate,
		NewRate:      record.NewRate,
		OldPayment:   record.OldPayment,
		NewPayment:   record.NewPayment,
		WaivedAmount: record.WaivedAmount,
		GraceDays:    record.GraceDays,
		Reason:       record.Reason,
	})
}

func loanIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "loanID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Validationf("invalid loan id")
	}
	return id, nil
}
