package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/calypso-pos/calypso-pos/internal/platform/docstore"
)

// Collections owned by the catalog module.
const (
	CollectionProducts        = "products"
	CollectionPurchaseHistory = "purchaseHistory"
)

// Repository persists products and ledger entries as documents.
type Repository struct {
	store docstore.Store
}

// NewRepository constructs Repository.
func NewRepository(store docstore.Store) *Repository {
	return &Repository{store: store}
}

// TxRepository exposes the operations available inside an atomic block.
type TxRepository interface {
	GetProduct(ctx context.Context, id string) (Product, error)
	PutProduct(ctx context.Context, product Product) error
	AppendLedgerEntry(ctx context.Context, entry LedgerEntry) error
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

// GetProduct loads one product outside any transaction.
func (r *Repository) GetProduct(ctx context.Context, id string) (Product, error) {
	doc, err := r.store.Get(ctx, CollectionProducts, id)
	if err != nil {
		return Product{}, mapNotFound(err)
	}
	return decodeProduct(doc)
}

// ListProducts returns all products; filtering that depends on derived
// quantities happens in the service layer.
func (r *Repository) ListProducts(ctx context.Context, filter ListFilter) ([]Product, error) {
	q := docstore.Query{OrderBy: "name"}
	if filter.Category != "" {
		q.Filters = append(q.Filters, docstore.Filter{Field: "category", Op: docstore.OpEqual, Value: filter.Category})
	}
	docs, err := r.store.Query(ctx, CollectionProducts, q)
	if err != nil {
		return nil, err
	}
	products := make([]Product, 0, len(docs))
	for _, doc := range docs {
		p, err := decodeProduct(doc)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

// LedgerEntries returns a product's purchase history, newest first.
func (r *Repository) LedgerEntries(ctx context.Context, productID string) ([]LedgerEntry, error) {
	docs, err := r.store.Query(ctx, CollectionPurchaseHistory, docstore.Query{
		Filters:    []docstore.Filter{{Field: "productId", Op: docstore.OpEqual, Value: productID}},
		OrderBy:    "createdAt",
		TimeOrder:  true,
		Descending: true,
	})
	if err != nil {
		return nil, err
	}
	entries := make([]LedgerEntry, 0, len(docs))
	for _, doc := range docs {
		var entry LedgerEntry
		if err := doc.Decode(&entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (t *txRepo) GetProduct(ctx context.Context, id string) (Product, error) {
	doc, err := t.tx.Read(ctx, CollectionProducts, id)
	if err != nil {
		return Product{}, mapNotFound(err)
	}
	return decodeProduct(doc)
}

func (t *txRepo) PutProduct(ctx context.Context, product Product) error {
	fields, err := docstore.Encode(product)
	if err != nil {
		return err
	}
	return t.tx.Write(ctx, CollectionProducts, product.ID, fields)
}

func (t *txRepo) AppendLedgerEntry(ctx context.Context, entry LedgerEntry) error {
	fields, err := docstore.Encode(entry)
	if err != nil {
		return err
	}
	return t.tx.Write(ctx, CollectionPurchaseHistory, entry.ID, fields)
}

func decodeProduct(doc docstore.Document) (Product, error) {
	var p Product
	if err := doc.Decode(&p); err != nil {
		return Product{}, err
	}
	if p.ID == "" {
		p.ID = doc.ID
	}
	return p, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("%s: %w", err, ErrProductNotFound)
	}
	return err
}
