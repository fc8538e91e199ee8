package catalog

import (
	"errors"
	"fmt"
	"time"
)

// LedgerKind enumerates stock-increasing event kinds.
type LedgerKind string

const (
	// LedgerKindInitialStock marks the entry written when a product is created.
	LedgerKindInitialStock LedgerKind = "initial_stock"
	// LedgerKindRestock marks a subsequent replenishment.
	LedgerKindRestock LedgerKind = "restock"
)

// Product is the canonical stock record for one sellable item. Purchased and
// sold quantities are cumulative; the saleable remainder is derived, never
// stored, and must stay non-negative after every committed mutation.
type Product struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Category          string    `json:"category"`
	SubCategory       string    `json:"subCategory"`
	Unit              string    `json:"unit"`
	SellingPrice      float64   `json:"sellingPrice"`
	PurchasePrice     float64   `json:"purchasePrice"`
	PurchasedQty      int64     `json:"purchasedQty"`
	SoldQty           int64     `json:"soldQty"`
	LowStockThreshold int64     `json:"lowStockThreshold"`
	Disabled          bool      `json:"disabled"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Remaining returns the saleable quantity.
func (p Product) Remaining() int64 {
	return p.PurchasedQty - p.SoldQty
}

// LowStock reports whether the remainder is at or below the threshold.
func (p Product) LowStock() bool {
	return p.Remaining() <= p.LowStockThreshold
}

// LedgerEntry is one append-only purchase-history record. Entries are never
// mutated or deleted; for any product the sum of entry quantities equals the
// product's cumulative purchased quantity.
type LedgerEntry struct {
	ID        string     `json:"id"`
	ProductID string     `json:"productId"`
	Qty       int64      `json:"qty"`
	UnitCost  float64    `json:"unitCost"`
	TotalCost float64    `json:"totalCost"`
	Vendor    string     `json:"vendor,omitempty"`
	Note      string     `json:"note,omitempty"`
	Kind      LedgerKind `json:"kind"`
	CreatedAt time.Time  `json:"createdAt"`
}

// InitialStockInput describes a product being stocked for the first time.
type InitialStockInput struct {
	Name              string
	Category          string
	SubCategory       string
	Unit              string
	SellingPrice      float64
	PurchasePrice     float64
	InitialQty        int64
	LowStockThreshold int64
	Vendor            string
	Note              string
}

// RestockInput describes a replenishment of an existing product.
type RestockInput struct {
	ProductID string
	Qty       int64
	UnitCost  float64
	Vendor    string
	Note      string
}

// ListFilter narrows product listings.
type ListFilter struct {
	Category        string
	Search          string
	LowStockOnly    bool
	IncludeDisabled bool
	Page            int
	PerPage         int
}

// ErrProductNotFound indicates the referenced product does not exist.
var ErrProductNotFound = errors.New("catalog: product not found")

// ErrInvalidQuantity indicates a non-positive quantity.
var ErrInvalidQuantity = errors.New("catalog: quantity must be positive")

// ErrInvalidUnitCost indicates a negative unit cost or price.
var ErrInvalidUnitCost = errors.New("catalog: unit cost must be >= 0")

// ErrNameRequired indicates a blank product name.
var ErrNameRequired = errors.New("catalog: product name required")

// InsufficientStockError reports a requested quantity above the saleable
// remainder. It carries enough context to render an actionable message.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("catalog: insufficient stock for %q: requested %d, available %d", e.Name, e.Requested, e.Available)
}
