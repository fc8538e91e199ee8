package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/calypso-pos/calypso-pos/internal/cart"
	"github.com/calypso-pos/calypso-pos/internal/catalog"
	"github.com/calypso-pos/calypso-pos/internal/shared"
)

func newTestRouter(t *testing.T, env *testEnv) chi.Router {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(logger, env.checkout, env.catalog)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := r.Header.Get("X-Actor-ID"); id != "" {
				ctx := shared.ContextWithActor(r.Context(), shared.Actor{ID: id, Name: r.Header.Get("X-Actor-Name")})
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Route("/api/checkout", handler.MountRoutes)
	return r
}

func postCommit(t *testing.T, router http.Handler, body map[string]any, actor shared.Actor) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/checkout/", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if actor.ID != "" {
		req.Header.Set("X-Actor-ID", actor.ID)
		req.Header.Set("X-Actor-Name", actor.Name)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleCommit(t *testing.T) {
	env := newTestEnv(t)
	rice := env.seedProduct(t, "Rice", 10, 2.5)
	router := newTestRouter(t, env)

	rec := postCommit(t, router, map[string]any{
		"lines": []map[string]any{{"product_id": rice.ID, "qty": 4}},
	}, cashier)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp commitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Transaction.Lines, 1)
	require.InDelta(t, 10.0, resp.Transaction.Total, 1e-9)
	require.Equal(t, "10.00", resp.FormattedTotal)
}

func TestHandleCommitValidation(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(t, env)

	rec := postCommit(t, router, map[string]any{"lines": []map[string]any{}}, cashier)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/checkout/", bytes.NewReader([]byte("{not json")))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCommitWithoutActor(t *testing.T) {
	env := newTestEnv(t)
	rice := env.seedProduct(t, "Rice", 10, 2.5)
	router := newTestRouter(t, env)

	rec := postCommit(t, router, map[string]any{
		"lines": []map[string]any{{"product_id": rice.ID, "qty": 1}},
	}, shared.Actor{})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleCommitInsufficientStock(t *testing.T) {
	env := newTestEnv(t)
	rice := env.seedProduct(t, "Rice", 3, 2.5)
	router := newTestRouter(t, env)

	rec := postCommit(t, router, map[string]any{
		"lines": []map[string]any{{"product_id": rice.ID, "qty": 5}},
	}, cashier)
	require.Equal(t, http.StatusConflict, rec.Code)

	var problem map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, "Insufficient Stock", problem["title"])
}

func TestHandleCommitUnknownProduct(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(t, env)

	rec := postCommit(t, router, map[string]any{
		"lines": []map[string]any{{"product_id": "ghost", "qty": 1}},
	}, cashier)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetAndList(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	rice := env.seedProduct(t, "Rice", 10, 2.5)
	router := newTestRouter(t, env)

	c := cart.New()
	require.NoError(t, c.AddLine(catalog.Product{ID: rice.ID, Name: rice.Name, SellingPrice: rice.SellingPrice, PurchasedQty: rice.PurchasedQty}, 2))
	committed, err := env.checkout.Commit(ctx, CommitInput{Cart: c}, cashier)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/checkout/%s", committed.ID), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var tx Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tx))
	require.Equal(t, committed.ID, tx.ID)

	req = httptest.NewRequest(http.MethodGet, "/api/checkout/?limit=10", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var listing struct {
		Transactions []Transaction `json:"transactions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	require.Len(t, listing.Transactions, 1)

	req = httptest.NewRequest(http.MethodGet, "/api/checkout/ghost", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
