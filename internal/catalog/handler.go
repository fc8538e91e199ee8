package catalog

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/calypso-pos/calypso-pos/internal/platform/docstore"
	"github.com/calypso-pos/calypso-pos/internal/platform/httpx"
	"github.com/calypso-pos/calypso-pos/internal/shared"
)

// Handler wires HTTP endpoints for the catalog module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs catalog handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{productID}", h.handleGet)
	r.Post("/{productID}/restock", h.handleRestock)
	r.Post("/{productID}/disable", h.handleDisable)
	r.Post("/{productID}/enable", h.handleEnable)
	r.Get("/{productID}/purchase-history", h.handlePurchaseHistory)
}

type createProductRequest struct {
	Name              string  `json:"name" validate:"required"`
	Category          string  `json:"category"`
	SubCategory       string  `json:"sub_category"`
	Unit              string  `json:"unit"`
	SellingPrice      float64 `json:"selling_price" validate:"gte=0"`
	PurchasePrice     float64 `json:"purchase_price" validate:"gte=0"`
	InitialQty        int64   `json:"initial_qty" validate:"gte=0"`
	LowStockThreshold int64   `json:"low_stock_threshold" validate:"gte=0"`
	Vendor            string  `json:"vendor"`
	Note              string  `json:"note"`
}

type restockRequest struct {
	Qty      int64   `json:"qty" validate:"required,gt=0"`
	UnitCost float64 `json:"unit_cost" validate:"gte=0"`
	Vendor   string  `json:"vendor"`
	Note     string  `json:"note"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	product, err := h.service.RecordInitialStock(r.Context(), InitialStockInput{
		Name:              req.Name,
		Category:          req.Category,
		SubCategory:       req.SubCategory,
		Unit:              req.Unit,
		SellingPrice:      req.SellingPrice,
		PurchasePrice:     req.PurchasePrice,
		InitialQty:        req.InitialQty,
		LowStockThreshold: req.LowStockThreshold,
		Vendor:            req.Vendor,
		Note:              req.Note,
	}, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) handleRestock(w http.ResponseWriter, r *http.Request) {
	var req restockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	product, entry, err := h.service.Restock(r.Context(), RestockInput{
		ProductID: chi.URLParam(r, "productID"),
		Qty:       req.Qty,
		UnitCost:  req.UnitCost,
		Vendor:    req.Vendor,
		Note:      req.Note,
	}, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"product": product,
		"entry":   entry,
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.Get(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Category:        q.Get("category"),
		Search:          q.Get("search"),
		LowStockOnly:    q.Get("low_stock") == "1",
		IncludeDisabled: q.Get("include_disabled") == "1",
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))
	products, page, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"products":   products,
		"pagination": page,
	})
}

func (h *Handler) handleDisable(w http.ResponseWriter, r *http.Request) {
	h.setDisabled(w, r, true)
}

func (h *Handler) handleEnable(w http.ResponseWriter, r *http.Request) {
	h.setDisabled(w, r, false)
}

func (h *Handler) setDisabled(w http.ResponseWriter, r *http.Request, disabled bool) {
	product, err := h.service.SetDisabled(r.Context(), chi.URLParam(r, "productID"), disabled, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) handlePurchaseHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.PurchaseHistory(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidUnitCost), errors.Is(err, ErrNameRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrProductNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, docstore.ErrConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, docstore.ErrUnavailable):
		httpx.Problem(w, http.StatusServiceUnavailable, "Store Unavailable", err.Error())
	default:
		h.logger.Error("catalog request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
