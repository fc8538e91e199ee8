package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/calypso-pos/calypso-pos/internal/cart"
	"github.com/calypso-pos/calypso-pos/internal/catalog"
	"github.com/calypso-pos/calypso-pos/internal/platform/docstore"
	"github.com/calypso-pos/calypso-pos/internal/shared"
)

var cashier = shared.Actor{ID: "u1", Name: "Amina"}

type testEnv struct {
	store    *docstore.Memory
	catalog  *catalog.Service
	checkout *Service
	bumps    *bumpCounter
}

type bumpCounter struct {
	mu    sync.Mutex
	count int
}

func (b *bumpCounter) Bump(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count++
	return nil
}

func (b *bumpCounter) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := docstore.NewMemory()
	audit := shared.NewAuditLogger(store)
	bumps := &bumpCounter{}
	return &testEnv{
		store:    store,
		catalog:  catalog.NewService(catalog.NewRepository(store), audit, catalog.ServiceConfig{}),
		checkout: NewService(NewRepository(store), audit, nil, bumps, ServiceConfig{}),
		bumps:    bumps,
	}
}

func (e *testEnv) seedProduct(t *testing.T, name string, qty int64, price float64) catalog.Product {
	t.Helper()
	product, err := e.catalog.RecordInitialStock(context.Background(), catalog.InitialStockInput{
		Name: name, Unit: "pcs", SellingPrice: price, InitialQty: qty,
	}, cashier)
	require.NoError(t, err)
	return product
}

func buildCart(t *testing.T, items map[catalog.Product]int64) *cart.Cart {
	t.Helper()
	c := cart.New()
	for product, qty := range items {
		require.NoError(t, c.AddLine(product, qty))
	}
	return c
}

func TestCommit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	rice := env.seedProduct(t, "Rice", 10, 2.5)
	beans := env.seedProduct(t, "Beans", 5, 4)

	c := buildCart(t, map[catalog.Product]int64{rice: 4, beans: 2})
	tx, err := env.checkout.Commit(ctx, CommitInput{Cart: c}, cashier)
	require.NoError(t, err)
	require.NotEmpty(t, tx.ID)
	require.Equal(t, StatusCompleted, tx.Status)
	require.Len(t, tx.Lines, 2)
	require.InDelta(t, 18.0, tx.Total, 1e-9)
	require.Equal(t, cashier.ID, tx.ActorID)

	for _, line := range tx.Lines {
		require.NotEmpty(t, line.LineID)
		require.False(t, line.IsReturned)
	}

	liveRice, err := env.catalog.Get(ctx, rice.ID)
	require.NoError(t, err)
	require.Equal(t, int64(4), liveRice.SoldQty)
	require.Equal(t, int64(6), liveRice.Remaining())

	stored, err := env.checkout.Get(ctx, tx.ID)
	require.NoError(t, err)
	require.InDelta(t, tx.Total, stored.Total, 1e-9)

	require.Equal(t, 1, env.bumps.Count())
}

func TestCommitSnapshotsLivePrice(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	rice := env.seedProduct(t, "Rice", 10, 2.5)

	// Cart built against the old snapshot; price changes before commit.
	c := buildCart(t, map[catalog.Product]int64{rice: 2})
	_, _, err := env.catalog.Restock(ctx, catalog.RestockInput{ProductID: rice.ID, Qty: 1, UnitCost: 2}, cashier)
	require.NoError(t, err)

	tx, err := env.checkout.Commit(ctx, CommitInput{Cart: c}, cashier)
	require.NoError(t, err)
	// Unit price comes from the live record at commit time.
	require.InDelta(t, 2.5, tx.Lines[0].UnitPrice, 1e-9)
	require.Equal(t, "Rice", tx.Lines[0].ProductName)
}

func TestCommitEmptyCart(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.checkout.Commit(ctx, CommitInput{Cart: cart.New()}, cashier)
	require.ErrorIs(t, err, ErrEmptyCart)

	_, err = env.checkout.Commit(ctx, CommitInput{}, cashier)
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestCommitRequiresActor(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	rice := env.seedProduct(t, "Rice", 10, 2.5)

	c := buildCart(t, map[catalog.Product]int64{rice: 1})
	_, err := env.checkout.Commit(ctx, CommitInput{Cart: c}, shared.Actor{})
	require.ErrorIs(t, err, ErrNotAuthenticated)

	// Nothing was charged.
	live, err := env.catalog.Get(ctx, rice.ID)
	require.NoError(t, err)
	require.Zero(t, live.SoldQty)
}

func TestCommitStaleCartInsufficientStock(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	rice := env.seedProduct(t, "Rice", 5, 2.5)
	beans := env.seedProduct(t, "Beans", 5, 4)

	// Valid when built, stale by commit time: another sale drains rice.
	c := buildCart(t, map[catalog.Product]int64{rice: 4, beans: 2})
	drain := buildCart(t, map[catalog.Product]int64{rice: 3})
	_, err := env.checkout.Commit(ctx, CommitInput{Cart: drain}, cashier)
	require.NoError(t, err)

	_, err = env.checkout.Commit(ctx, CommitInput{Cart: c}, cashier)
	var insufficient *catalog.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, int64(4), insufficient.Requested)
	require.Equal(t, int64(2), insufficient.Available)

	// The failed commit left no partial effects on either product.
	liveBeans, err := env.catalog.Get(ctx, beans.ID)
	require.NoError(t, err)
	require.Zero(t, liveBeans.SoldQty)
	txs, err := env.checkout.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, txs, 1)
}

func TestCommitProductRemoved(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	rice := env.seedProduct(t, "Rice", 5, 2.5)

	c := buildCart(t, map[catalog.Product]int64{rice: 1})
	_, err := env.catalog.SetDisabled(ctx, rice.ID, true, cashier)
	require.NoError(t, err)

	_, err = env.checkout.Commit(ctx, CommitInput{Cart: c}, cashier)
	var removed *ProductRemovedError
	require.ErrorAs(t, err, &removed)
	require.Equal(t, rice.ID, removed.ProductID)
}

func TestConcurrentCommitsExactlyOneWinner(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	rice := env.seedProduct(t, "Rice", 5, 2.5)

	const contenders = 8
	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := cart.New()
			if err := c.AddLine(rice, 5); err != nil {
				errs[i] = err
				return
			}
			_, errs[i] = env.checkout.Commit(ctx, CommitInput{Cart: c}, cashier)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		var insufficient *catalog.InsufficientStockError
		if !errors.As(err, &insufficient) {
			require.ErrorIs(t, err, ErrCommitConflict)
		}
	}
	require.Equal(t, 1, winners)

	live, err := env.catalog.Get(ctx, rice.ID)
	require.NoError(t, err)
	require.Equal(t, int64(5), live.SoldQty)
	require.Zero(t, live.Remaining())

	txs, err := env.checkout.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, txs, 1)
}

func TestCommitIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	rice := env.seedProduct(t, "Rice", 10, 2.5)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	idempotency := shared.NewIdempotencyStore(client, 0)

	service := NewService(NewRepository(env.store), nil, idempotency, nil, ServiceConfig{})

	c := buildCart(t, map[catalog.Product]int64{rice: 2})
	_, err := service.Commit(ctx, CommitInput{Cart: c, IdempotencyKey: "req-1"}, cashier)
	require.NoError(t, err)

	// Resubmitting the same key is rejected before any stock is touched.
	again := buildCart(t, map[catalog.Product]int64{rice: 2})
	_, err = service.Commit(ctx, CommitInput{Cart: again, IdempotencyKey: "req-1"}, cashier)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)

	live, err := env.catalog.Get(ctx, rice.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), live.SoldQty)
}

func TestCommitIdempotencyKeyReleasedOnFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	rice := env.seedProduct(t, "Rice", 3, 2.5)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	idempotency := shared.NewIdempotencyStore(client, 0)

	service := NewService(NewRepository(env.store), nil, idempotency, nil, ServiceConfig{})

	over := buildCart(t, map[catalog.Product]int64{rice: 3})
	drain := buildCart(t, map[catalog.Product]int64{rice: 1})
	_, err := service.Commit(ctx, CommitInput{Cart: drain}, cashier)
	require.NoError(t, err)

	_, err = service.Commit(ctx, CommitInput{Cart: over, IdempotencyKey: "req-2"}, cashier)
	var insufficient *catalog.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)

	// The key was rolled back, so a corrected retry may reuse it.
	retry := buildCart(t, map[catalog.Product]int64{rice: 2})
	_, err = service.Commit(ctx, CommitInput{Cart: retry, IdempotencyKey: "req-2"}, cashier)
	require.NoError(t, err)
}

// timeoutRepo simulates a store round trip whose outcome was lost: the
// atomic block may have committed server-side, but the caller only sees the
// deadline error.
type timeoutRepo struct {
	*Repository
}

func (r *timeoutRepo) WithAtomic(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return context.DeadlineExceeded
}

func TestCommitIdempotencyKeyKeptOnUnknownOutcome(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	rice := env.seedProduct(t, "Rice", 10, 2.5)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	idempotency := shared.NewIdempotencyStore(client, 0)

	flaky := NewService(&timeoutRepo{Repository: NewRepository(env.store)}, nil, idempotency, nil, ServiceConfig{})

	c := buildCart(t, map[catalog.Product]int64{rice: 2})
	_, err := flaky.Commit(ctx, CommitInput{Cart: c, IdempotencyKey: "req-3"}, cashier)
	require.ErrorIs(t, err, ErrCommitConflict)

	// The store may have charged the stock before the response was lost, so
	// the key must survive and block a blind resubmit on a healthy service.
	healthy := NewService(NewRepository(env.store), nil, idempotency, nil, ServiceConfig{})
	again := buildCart(t, map[catalog.Product]int64{rice: 2})
	_, err = healthy.Commit(ctx, CommitInput{Cart: again, IdempotencyKey: "req-3"}, cashier)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)

	live, err := env.catalog.Get(ctx, rice.ID)
	require.NoError(t, err)
	require.Zero(t, live.SoldQty)
}

func TestGetUnknownTransaction(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.checkout.Get(ctx, "ghost")
	require.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	rice := env.seedProduct(t, "Rice", 100, 2.5)

	var ids []string
	for i := 0; i < 3; i++ {
		c := buildCart(t, map[catalog.Product]int64{rice: 1})
		tx, err := env.checkout.Commit(ctx, CommitInput{Cart: c}, cashier)
		require.NoError(t, err)
		ids = append(ids, tx.ID)
		time.Sleep(time.Millisecond)
	}

	txs, err := env.checkout.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, txs, 3)
	require.Equal(t, ids[2], txs[0].ID)
	require.Equal(t, ids[0], txs[2].ID)
}
