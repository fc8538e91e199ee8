package checkout

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/calypso-pos/calypso-pos/internal/cart"
	"github.com/calypso-pos/calypso-pos/internal/catalog"
	"github.com/calypso-pos/calypso-pos/internal/platform/docstore"
	"github.com/calypso-pos/calypso-pos/internal/platform/httpx"
	"github.com/calypso-pos/calypso-pos/internal/shared"
)

// Handler wires HTTP endpoints for the checkout module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	products  *catalog.Service
	validator *validator.Validate
}

// NewHandler constructs checkout handler.
func NewHandler(logger *slog.Logger, service *Service, products *catalog.Service) *Handler {
	return &Handler{logger: logger, service: service, products: products, validator: validator.New()}
}

// MountRoutes registers checkout routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCommit)
	r.Get("/", h.handleList)
	r.Get("/{transactionID}", h.handleGet)
}

type commitLineRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Qty       int64  `json:"qty" validate:"required,gt=0"`
}

type commitRequest struct {
	Lines          []commitLineRequest `json:"lines" validate:"required,min=1,dive"`
	IdempotencyKey string              `json:"idempotency_key"`
}

type commitResponse struct {
	Transaction    Transaction `json:"transaction"`
	FormattedTotal string      `json:"formatted_total"`
}

func (h *Handler) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	basket := cart.New()
	for _, line := range req.Lines {
		snapshot, err := h.products.Get(r.Context(), line.ProductID)
		if err != nil {
			h.respondError(w, err)
			return
		}
		if err := basket.AddLine(snapshot, line.Qty); err != nil {
			h.respondError(w, err)
			return
		}
	}

	committed, err := h.service.Commit(r.Context(), CommitInput{
		Cart:           basket,
		IdempotencyKey: req.IdempotencyKey,
	}, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, commitResponse{
		Transaction:    committed,
		FormattedTotal: httpx.FormatMoney(committed.Total),
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	tx, err := h.service.Get(r.Context(), chi.URLParam(r, "transactionID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tx)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	if raw := q.Get("from"); raw != "" {
		if from, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.From = from
		}
	}
	if raw := q.Get("to"); raw != "" {
		if to, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.To = to
		}
	}
	txs, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var (
		insufficient *catalog.InsufficientStockError
		removed      *ProductRemovedError
	)
	switch {
	case errors.Is(err, ErrEmptyCart), errors.Is(err, cart.ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrNotAuthenticated):
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.As(err, &insufficient):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", insufficient.Error())
	case errors.As(err, &removed):
		httpx.Problem(w, http.StatusConflict, "Product Removed", removed.Error())
	case errors.Is(err, ErrCommitConflict), errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Commit Conflict", err.Error())
	case errors.Is(err, ErrTransactionNotFound), errors.Is(err, catalog.ErrProductNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, docstore.ErrUnavailable):
		httpx.Problem(w, http.StatusServiceUnavailable, "Store Unavailable", err.Error())
	default:
		h.logger.Error("checkout request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
