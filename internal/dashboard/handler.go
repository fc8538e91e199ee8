package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/singleflight"

	"github.com/calypso-pos/calypso-pos/internal/platform/docstore"
	"github.com/calypso-pos/calypso-pos/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the dashboard module. Concurrent requests
// for the same view collapse into one computation via singleflight.
type Handler struct {
	logger  *slog.Logger
	service *Service
	group   singleflight.Group
}

// NewHandler constructs dashboard handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers dashboard routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/summary", h.handleSummary)
	r.Get("/top-products", h.handleTopProducts)
	r.Get("/low-stock", h.handleLowStock)
	r.Get("/recent", h.handleRecent)
}

func (h *Handler) singleflightDo(ctx context.Context, key string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	resultChan := h.group.DoChan(key, func() (interface{}, error) {
		return fn(ctx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		return res.Val, res.Err
	}
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	window, err := ParseWindow(r.URL.Query().Get("window"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	value, err := h.singleflightDo(r.Context(), "summary:"+string(window), func(ctx context.Context) (interface{}, error) {
		return h.service.Summary(ctx, window)
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	summary := value.(Summary)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"summary":               summary,
		"formatted_total_sales": httpx.FormatMoney(summary.TotalSales),
		"formatted_today_sales": httpx.FormatMoney(summary.TodaySales),
	})
}

func (h *Handler) handleTopProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	window, err := ParseWindow(q.Get("window"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	key := "top:" + string(window) + ":" + strconv.Itoa(limit)
	value, err := h.singleflightDo(r.Context(), key, func(ctx context.Context) (interface{}, error) {
		return h.service.TopProducts(ctx, window, limit)
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": value})
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.LowStock(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	txs, err := h.service.Recent(r.Context(), limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	if errors.Is(err, docstore.ErrUnavailable) {
		httpx.Problem(w, http.StatusServiceUnavailable, "Store Unavailable", err.Error())
		return
	}
	h.logger.Error("dashboard request failed", slog.Any("error", err))
	httpx.RespondError(w, err)
}
