package returns

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calypso-pos/calypso-pos/internal/cart"
	"github.com/calypso-pos/calypso-pos/internal/catalog"
	"github.com/calypso-pos/calypso-pos/internal/checkout"
	"github.com/calypso-pos/calypso-pos/internal/platform/docstore"
	"github.com/calypso-pos/calypso-pos/internal/shared"
)

var cashier = shared.Actor{ID: "u1", Name: "Amina"}

type testEnv struct {
	store    *docstore.Memory
	catalog  *catalog.Service
	checkout *checkout.Service
	returns  *Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := docstore.NewMemory()
	audit := shared.NewAuditLogger(store)
	return &testEnv{
		store:    store,
		catalog:  catalog.NewService(catalog.NewRepository(store), audit, catalog.ServiceConfig{}),
		checkout: checkout.NewService(checkout.NewRepository(store), audit, nil, nil, checkout.ServiceConfig{}),
		returns:  NewService(NewRepository(store), audit, nil, ServiceConfig{}),
	}
}

// sell seeds a product and commits one sale of qty units, returning the
// product and the committed transaction.
func (e *testEnv) sell(t *testing.T, name string, stocked, qty int64, price float64) (catalog.Product, checkout.Transaction) {
	t.Helper()
	ctx := context.Background()
	product, err := e.catalog.RecordInitialStock(ctx, catalog.InitialStockInput{
		Name: name, Unit: "pcs", SellingPrice: price, InitialQty: stocked,
	}, cashier)
	require.NoError(t, err)

	c := cart.New()
	require.NoError(t, c.AddLine(product, qty))
	tx, err := e.checkout.Commit(ctx, checkout.CommitInput{Cart: c}, cashier)
	require.NoError(t, err)
	return product, tx
}

func TestProcess(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	product, tx := env.sell(t, "Rice", 10, 4, 2.5)
	lineID := tx.Lines[0].LineID

	result, err := env.returns.Process(ctx, tx.ID, lineID, "damaged packaging", cashier)
	require.NoError(t, err)
	require.True(t, result.StockAdjusted)
	require.Empty(t, result.Warning)
	require.Equal(t, int64(4), result.Record.Qty)
	require.InDelta(t, 10.0, result.Record.RefundedAmount, 1e-9)
	require.Equal(t, "damaged packaging", result.Record.Reason)

	// Stock restored.
	live, err := env.catalog.Get(ctx, product.ID)
	require.NoError(t, err)
	require.Zero(t, live.SoldQty)
	require.Equal(t, int64(10), live.Remaining())

	// Line flagged, other transaction fields untouched.
	stored, err := env.checkout.Get(ctx, tx.ID)
	require.NoError(t, err)
	line, ok := stored.Line(lineID)
	require.True(t, ok)
	require.True(t, line.IsReturned)
	require.Equal(t, "damaged packaging", line.ReturnReason)
	require.Equal(t, cashier.ID, line.ReturnedBy)
	require.NotNil(t, line.ReturnedAt)
	require.InDelta(t, tx.Total, stored.Total, 1e-9)

	records, err := env.returns.List(ctx, ListFilter{TransactionID: tx.ID})
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestProcessEmptyReason(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	_, tx := env.sell(t, "Rice", 10, 2, 2.5)

	_, err := env.returns.Process(ctx, tx.ID, tx.Lines[0].LineID, "   ", cashier)
	require.ErrorIs(t, err, ErrEmptyReason)
}

func TestProcessAlreadyReturned(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	product, tx := env.sell(t, "Rice", 10, 3, 2.5)
	lineID := tx.Lines[0].LineID

	_, err := env.returns.Process(ctx, tx.ID, lineID, "wrong item", cashier)
	require.NoError(t, err)

	// The second attempt is rejected and adjusts nothing.
	_, err = env.returns.Process(ctx, tx.ID, lineID, "wrong item", cashier)
	require.ErrorIs(t, err, ErrAlreadyReturned)

	live, err := env.catalog.Get(ctx, product.ID)
	require.NoError(t, err)
	require.Zero(t, live.SoldQty)

	records, err := env.returns.List(ctx, ListFilter{TransactionID: tx.ID})
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestProcessUnknownTransactionAndLine(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	_, tx := env.sell(t, "Rice", 10, 2, 2.5)

	_, err := env.returns.Process(ctx, "ghost", "line", "reason", cashier)
	require.ErrorIs(t, err, checkout.ErrTransactionNotFound)

	_, err = env.returns.Process(ctx, tx.ID, "ghost-line", "reason", cashier)
	require.ErrorIs(t, err, ErrLineNotFound)
}

func TestProcessMissingProductSkipsAdjustment(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	product, tx := env.sell(t, "Rice", 10, 2, 2.5)
	lineID := tx.Lines[0].LineID

	// The product document disappears between sale and return: copy the
	// transaction into a store that never had the product.
	fresh := docstore.NewMemory()
	doc, err := env.store.Get(ctx, checkout.CollectionTransactions, tx.ID)
	require.NoError(t, err)
	require.NoError(t, fresh.Put(ctx, checkout.CollectionTransactions, tx.ID, doc.Data))

	service := NewService(NewRepository(fresh), nil, nil, ServiceConfig{})
	result, err := service.Process(ctx, tx.ID, lineID, "damaged", cashier)
	require.NoError(t, err)
	require.False(t, result.StockAdjusted)
	require.Equal(t, WarningInventoryAdjustmentSkipped, result.Warning)

	// The line flag and return record still committed.
	stored, err := checkout.NewRepository(fresh).GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	line, ok := stored.Line(lineID)
	require.True(t, ok)
	require.True(t, line.IsReturned)

	records, err := service.List(ctx, ListFilter{TransactionID: tx.ID})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, product.ID, records[0].ProductID)
}

func TestProcessFloorsSoldQtyAtZero(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	product, tx := env.sell(t, "Rice", 10, 4, 2.5)
	lineID := tx.Lines[0].LineID

	// An out-of-band correction already lowered the sold counter.
	corrected, err := env.catalog.Get(ctx, product.ID)
	require.NoError(t, err)
	corrected.SoldQty = 1
	fields, err := docstore.Encode(corrected)
	require.NoError(t, err)
	require.NoError(t, env.store.Put(ctx, catalog.CollectionProducts, product.ID, fields))

	result, err := env.returns.Process(ctx, tx.ID, lineID, "damaged", cashier)
	require.NoError(t, err)
	require.True(t, result.StockAdjusted)

	live, err := env.catalog.Get(ctx, product.ID)
	require.NoError(t, err)
	require.Zero(t, live.SoldQty)
}

func TestRestockSellReturnRoundTrip(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	product, tx := env.sell(t, "Rice", 10, 6, 2.5)

	_, _, err := env.catalog.Restock(ctx, catalog.RestockInput{ProductID: product.ID, Qty: 5, UnitCost: 2}, cashier)
	require.NoError(t, err)

	_, err = env.returns.Process(ctx, tx.ID, tx.Lines[0].LineID, "customer changed mind", cashier)
	require.NoError(t, err)

	live, err := env.catalog.Get(ctx, product.ID)
	require.NoError(t, err)
	require.Equal(t, int64(15), live.PurchasedQty)
	require.Zero(t, live.SoldQty)
	require.Equal(t, int64(15), live.Remaining())

	// The ledger still sums to cumulative purchases; returns never touch it.
	entries, err := env.catalog.PurchaseHistory(ctx, product.ID)
	require.NoError(t, err)
	var sum int64
	for _, e := range entries {
		sum += e.Qty
	}
	require.Equal(t, live.PurchasedQty, sum)
}
