package returns

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/calypso-pos/calypso-pos/internal/checkout"
	"github.com/calypso-pos/calypso-pos/internal/platform/docstore"
	"github.com/calypso-pos/calypso-pos/internal/platform/httpx"
	"github.com/calypso-pos/calypso-pos/internal/shared"
)

// Handler wires HTTP endpoints for the returns module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs returns handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers returns routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleProcess)
	r.Get("/", h.handleList)
}

type processRequest struct {
	TransactionID string `json:"transaction_id" validate:"required"`
	LineID        string `json:"line_id" validate:"required"`
	Reason        string `json:"reason" validate:"required"`
}

type processResponse struct {
	Record          ReturnRecord `json:"record"`
	StockAdjusted   bool         `json:"stock_adjusted"`
	Warning         string       `json:"warning,omitempty"`
	FormattedRefund string       `json:"formatted_refund"`
}

func (h *Handler) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.Process(r.Context(), req.TransactionID, req.LineID, req.Reason, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, processResponse{
		Record:          result.Record,
		StockAdjusted:   result.StockAdjusted,
		Warning:         result.Warning,
		FormattedRefund: httpx.FormatMoney(result.Record.RefundedAmount),
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		TransactionID: q.Get("transaction_id"),
		ProductID:     q.Get("product_id"),
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	records, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"returns": records})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEmptyReason):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrAlreadyReturned):
		httpx.Problem(w, http.StatusConflict, "Already Returned", err.Error())
	case errors.Is(err, ErrLineNotFound), errors.Is(err, checkout.ErrTransactionNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrCommitConflict):
		httpx.Problem(w, http.StatusConflict, "Commit Conflict", err.Error())
	case errors.Is(err, docstore.ErrUnavailable):
		httpx.Problem(w, http.StatusServiceUnavailable, "Store Unavailable", err.Error())
	default:
		h.logger.Error("returns request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
