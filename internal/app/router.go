package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/calypso-pos/calypso-pos/internal/catalog"
	"github.com/calypso-pos/calypso-pos/internal/checkout"
	"github.com/calypso-pos/calypso-pos/internal/dashboard"
	"github.com/calypso-pos/calypso-pos/internal/platform/httpx"
	"github.com/calypso-pos/calypso-pos/internal/returns"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	ActorResolver    ActorResolver
	CatalogHandler   *catalog.Handler
	CheckoutHandler  *checkout.Handler
	ReturnsHandler   *returns.Handler
	DashboardHandler *dashboard.Handler
}

// NewRouter constructs the chi.Router with Calypso defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:        params.Logger,
		Config:        params.Config,
		ActorResolver: params.ActorResolver,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/products", params.CatalogHandler.MountRoutes)
		r.Route("/checkout", params.CheckoutHandler.MountRoutes)
		r.Route("/returns", params.ReturnsHandler.MountRoutes)
		r.Route("/dashboard", params.DashboardHandler.MountRoutes)
	})

	return r
}
