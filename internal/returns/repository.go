package returns

import (
	"context"
	"errors"
	"fmt"

	"github.com/calypso-pos/calypso-pos/internal/catalog"
	"github.com/calypso-pos/calypso-pos/internal/checkout"
	"github.com/calypso-pos/calypso-pos/internal/platform/docstore"
)

// CollectionReturns holds append-only return records.
const CollectionReturns = "returns"

// Repository persists return records and mutates the return sub-fields of
// transaction lines inside atomic blocks.
type Repository struct {
	store docstore.Store
}

// NewRepository constructs Repository.
func NewRepository(store docstore.Store) *Repository {
	return &Repository{store: store}
}

// TxRepository exposes the operations available inside an atomic block.
type TxRepository interface {
	GetTransaction(ctx context.Context, id string) (checkout.Transaction, error)
	UpdateTransactionLines(ctx context.Context, id string, lines []checkout.Line) error
	GetProduct(ctx context.Context, id string) (catalog.Product, error)
	PutProduct(ctx context.Context, product catalog.Product) error
	AppendReturnRecord(ctx context.Context, record ReturnRecord) error
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

// ListReturns returns records, newest first.
func (r *Repository) ListReturns(ctx context.Context, filter ListFilter) ([]ReturnRecord, error) {
	q := docstore.Query{OrderBy: "createdAt", TimeOrder: true, Descending: true, Limit: filter.Limit}
	if filter.TransactionID != "" {
		q.Filters = append(q.Filters, docstore.Filter{Field: "transactionId", Op: docstore.OpEqual, Value: filter.TransactionID})
	}
	if filter.ProductID != "" {
		q.Filters = append(q.Filters, docstore.Filter{Field: "productId", Op: docstore.OpEqual, Value: filter.ProductID})
	}
	docs, err := r.store.Query(ctx, CollectionReturns, q)
	if err != nil {
		return nil, err
	}
	records := make([]ReturnRecord, 0, len(docs))
	for _, doc := range docs {
		var record ReturnRecord
		if err := doc.Decode(&record); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func (t *txRepo) GetTransaction(ctx context.Context, id string) (checkout.Transaction, error) {
	doc, err := t.tx.Read(ctx, checkout.CollectionTransactions, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return checkout.Transaction{}, fmt.Errorf("%s: %w", id, checkout.ErrTransactionNotFound)
		}
		return checkout.Transaction{}, err
	}
	var tx checkout.Transaction
	if err := doc.Decode(&tx); err != nil {
		return checkout.Transaction{}, err
	}
	return tx, nil
}

// UpdateTransactionLines rewrites only the lines field; every other
// transaction field stays untouched.
func (t *txRepo) UpdateTransactionLines(ctx context.Context, id string, lines []checkout.Line) error {
	return t.tx.Update(ctx, checkout.CollectionTransactions, id, map[string]any{"lines": lines})
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

func (t *txRepo) AppendReturnRecord(ctx context.Context, record ReturnRecord) error {
	fields, err := docstore.Encode(record)
	if err != nil {
		return err
	}
	return t.tx.Write(ctx, CollectionReturns, record.ID, fields)
}
