package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/calypso-pos/calypso-pos/internal/platform/docstore"
	"github.com/calypso-pos/calypso-pos/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithAtomic(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetProduct(ctx context.Context, id string) (Product, error)
	ListProducts(ctx context.Context, filter ListFilter) ([]Product, error)
	LedgerEntries(ctx context.Context, productID string) ([]LedgerEntry, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// CommitRetries bounds internal retries after optimistic conflicts.
	CommitRetries int
}

// Service coordinates stock-record and purchase-ledger operations. Every
// stock mutation goes through the store's atomic read-verify-write; plain
// unconditional writes to the quantity fields are not offered.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	retries int
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, cfg ServiceConfig) *Service {
	retries := cfg.CommitRetries
	if retries <= 0 {
		retries = 3
	}
	return &Service{repo: repo, audit: audit, retries: retries}
}

// RecordInitialStock creates the stock record together with its opening
// ledger entry.
func (s *Service) RecordInitialStock(ctx context.Context, input InitialStockInput, actor shared.Actor) (Product, error) {
	if strings.TrimSpace(input.Name) == "" {
		return Product{}, ErrNameRequired
	}
	if input.InitialQty < 0 {
		return Product{}, ErrInvalidQuantity
	}
	if input.SellingPrice < 0 || input.PurchasePrice < 0 {
		return Product{}, ErrInvalidUnitCost
	}
	now := time.Now().UTC()
	product := Product{
		ID:                uuid.NewString(),
		Name:              strings.TrimSpace(input.Name),
		Category:          input.Category,
		SubCategory:       input.SubCategory,
		Unit:              input.Unit,
		SellingPrice:      input.SellingPrice,
		PurchasePrice:     input.PurchasePrice,
		PurchasedQty:      input.InitialQty,
		SoldQty:           0,
		LowStockThreshold: input.LowStockThreshold,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	err := s.repo.WithAtomic(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.PutProduct(ctx, product); err != nil {
			return err
		}
		if input.InitialQty == 0 {
			return nil
		}
		entry := LedgerEntry{
			ID:        uuid.NewString(),
			ProductID: product.ID,
			Qty:       input.InitialQty,
			UnitCost:  input.PurchasePrice,
			TotalCost: float64(input.InitialQty) * input.PurchasePrice,
			Vendor:    input.Vendor,
			Note:      input.Note,
			Kind:      LedgerKindInitialStock,
			CreatedAt: now,
		}
		return tx.AppendLedgerEntry(ctx, entry)
	})
	if err != nil {
		return Product{}, err
	}
	s.recordAudit(ctx, actor, "catalog:create", product.ID, map[string]any{
		"name":        product.Name,
		"initial_qty": input.InitialQty,
	})
	return product, nil
}

// Restock increments the purchased quantity and appends one restock ledger
// entry. The read-increment-write runs atomically so two concurrent restocks
// on the same product cannot lose an increment.
func (s *Service) Restock(ctx context.Context, input RestockInput, actor shared.Actor) (Product, LedgerEntry, error) {
	if input.Qty <= 0 {
		return Product{}, LedgerEntry{}, ErrInvalidQuantity
	}
	if input.UnitCost < 0 {
		return Product{}, LedgerEntry{}, ErrInvalidUnitCost
	}
	var (
		product Product
		entry   LedgerEntry
	)
	err := docstore.RetryConflict(ctx, s.retries, func() error {
		return s.repo.WithAtomic(ctx, func(ctx context.Context, tx TxRepository) error {
			live, err := tx.GetProduct(ctx, input.ProductID)
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			live.PurchasedQty += input.Qty
			live.PurchasePrice = input.UnitCost
			live.UpdatedAt = now
			if err := tx.PutProduct(ctx, live); err != nil {
				return err
			}
			entry = LedgerEntry{
				ID:        uuid.NewString(),
				ProductID: live.ID,
				Qty:       input.Qty,
				UnitCost:  input.UnitCost,
				TotalCost: float64(input.Qty) * input.UnitCost,
				Vendor:    input.Vendor,
				Note:      input.Note,
				Kind:      LedgerKindRestock,
				CreatedAt: now,
			}
			if err := tx.AppendLedgerEntry(ctx, entry); err != nil {
				return err
			}
			product = live
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, docstore.ErrConflict) {
			return Product{}, LedgerEntry{}, fmt.Errorf("catalog: restock %s: %w", input.ProductID, err)
		}
		return Product{}, LedgerEntry{}, err
	}
	s.recordAudit(ctx, actor, "catalog:restock", product.ID, map[string]any{
		"qty":       input.Qty,
		"unit_cost": input.UnitCost,
		"vendor":    input.Vendor,
	})
	return product, entry, nil
}

// SetDisabled soft-disables or re-enables a product. Products referenced by
// ledger or transaction history are never physically deleted.
func (s *Service) SetDisabled(ctx context.Context, productID string, disabled bool, actor shared.Actor) (Product, error) {
	var product Product
	err := docstore.RetryConflict(ctx, s.retries, func() error {
		return s.repo.WithAtomic(ctx, func(ctx context.Context, tx TxRepository) error {
			live, err := tx.GetProduct(ctx, productID)
			if err != nil {
				return err
			}
			live.Disabled = disabled
			live.UpdatedAt = time.Now().UTC()
			if err := tx.PutProduct(ctx, live); err != nil {
				return err
			}
			product = live
			return nil
		})
	})
	if err != nil {
		return Product{}, err
	}
	action := "catalog:disable"
	if !disabled {
		action = "catalog:enable"
	}
	s.recordAudit(ctx, actor, action, product.ID, nil)
	return product, nil
}

// Get loads one product.
func (s *Service) Get(ctx context.Context, productID string) (Product, error) {
	return s.repo.GetProduct(ctx, productID)
}

// List returns products after applying filters the store cannot express,
// with pagination metadata.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Product, shared.Pagination, error) {
	products, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	filtered := products[:0]
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	for _, p := range products {
		if p.Disabled && !filter.IncludeDisabled {
			continue
		}
		if filter.LowStockOnly && !p.LowStock() {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) {
			continue
		}
		filtered = append(filtered, p)
	}
	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Name < filtered[j].Name })

	page := shared.NewPagination(filter.Page, filter.PerPage, len(filtered))
	start := page.Offset()
	if start > len(filtered) {
		start = len(filtered)
	}
	end := start + page.PerPage
	if end > len(filtered) {
		end = len(filtered)
	}
	return filtered[start:end], page, nil
}

// PurchaseHistory lists a product's ledger entries, newest first.
func (s *Service) PurchaseHistory(ctx context.Context, productID string) ([]LedgerEntry, error) {
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.repo.LedgerEntries(ctx, productID)
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "product",
		EntityID: entityID,
		Meta:     meta,
	})
}
