package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/calypso-pos/calypso-pos/internal/catalog"
	"github.com/calypso-pos/calypso-pos/internal/platform/docstore"
)

// CollectionTransactions holds committed sale records.
const CollectionTransactions = "transactions"

// Repository persists transactions and touches product documents inside
// atomic commits.
type Repository struct {
	store docstore.Store
}

// NewRepository constructs Repository.
func NewRepository(store docstore.Store) *Repository {
	return &Repository{store: store}
}

// TxRepository exposes the operations available inside an atomic commit.
type TxRepository interface {
	GetProduct(ctx context.Context, id string) (catalog.Product, error)
	PutProduct(ctx context.Context, product catalog.Product) error
	InsertTransaction(ctx context.Context, tx Transaction) error
}

type txRepo struct {
	tx docstore.Tx
}

// WithAtomic executes fn inside one optimistic store transaction.
func (r *Repository) WithAtomic(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.store.RunAtomic(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// GetTransaction loads one committed transaction.
func (r *Repository) GetTransaction(ctx context.Context, id string) (Transaction, error) {
	doc, err := r.store.Get(ctx, CollectionTransactions, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return Transaction{}, fmt.Errorf("%s: %w", id, ErrTransactionNotFound)
		}
		return Transaction{}, err
	}
	var tx Transaction
	if err := doc.Decode(&tx); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// ListTransactions returns committed transactions, newest first.
func (r *Repository) ListTransactions(ctx context.Context, filter ListFilter) ([]Transaction, error) {
	q := docstore.Query{OrderBy: "createdAt", TimeOrder: true, Descending: true, Limit: filter.Limit}
	if !filter.From.IsZero() {
		q.Filters = append(q.Filters, docstore.Filter{
			Field: "createdAt", Op: docstore.OpGreaterOrEqual, Value: filter.From.UTC(),
		})
	}
	if !filter.To.IsZero() {
		q.Filters = append(q.Filters, docstore.Filter{
			Field: "createdAt", Op: docstore.OpLess, Value: filter.To.UTC(),
		})
	}
	docs, err := r.store.Query(ctx, CollectionTransactions, q)
	if err != nil {
		return nil, err
	}
	txs := make([]Transaction, 0, len(docs))
	for _, doc := range docs {
		var tx Transaction
		if err := doc.Decode(&tx); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func (t *txRepo) GetProduct(ctx context.Context, id string) (catalog.Product, error) {
	doc, err := t.tx.Read(ctx, catalog.CollectionProducts, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return catalog.Product{}, fmt.Errorf("%s: %w", id, catalog.ErrProductNotFound)
		}
		return catalog.Product{}, err
	}
	var p catalog.Product
	if err := doc.Decode(&p); err != nil {
		return catalog.Product{}, err
	}
	return p, nil
}

func (t *txRepo) PutProduct(ctx context.Context, product catalog.Product) error {
	fields, err := docstore.Encode(product)
	if err != nil {
		return err
	}
	return t.tx.Write(ctx, catalog.CollectionProducts, product.ID, fields)
}

func (t *txRepo) InsertTransaction(ctx context.Context, tx Transaction) error {
	fields, err := docstore.Encode(tx)
	if err != nil {
		return err
	}
	return t.tx.Write(ctx, CollectionTransactions, tx.ID, fields)
}
