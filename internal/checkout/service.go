package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/calypso-pos/calypso-pos/internal/cart"
	"github.com/calypso-pos/calypso-pos/internal/catalog"
	"github.com/calypso-pos/calypso-pos/internal/platform/docstore"
	"github.com/calypso-pos/calypso-pos/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithAtomic(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetTransaction(ctx context.Context, id string) (Transaction, error)
	ListTransactions(ctx context.Context, filter ListFilter) ([]Transaction, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards against double submits of the same commit.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// InvalidatorPort is notified after a successful commit so derived read
// models can drop stale caches.
type InvalidatorPort interface {
	Bump(ctx context.Context) error
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// CommitRetries bounds internal retries after optimistic conflicts.
	CommitRetries int
}

// Service converts a validated cart into a committed transaction while
// decrementing stock, correct under concurrent checkouts on the same
// product.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	invalidator InvalidatorPort
	retries     int
}

// NewService builds Service. audit, idempotency and invalidator are
// optional.
func NewService(repo RepositoryPort, audit AuditPort, idempotency IdempotencyPort, invalidator InvalidatorPort, cfg ServiceConfig) *Service {
	retries := cfg.CommitRetries
	if retries <= 0 {
		retries = 3
	}
	return &Service{repo: repo, audit: audit, idempotency: idempotency, invalidator: invalidator, retries: retries}
}

// CommitInput carries one commit request. IdempotencyKey is optional; when
// set, resubmitting the same key after an unknown outcome is rejected
// instead of charging stock twice.
type CommitInput struct {
	Cart           *cart.Cart
	IdempotencyKey string
}

// Commit validates every cart line against live stock and, in a single
// atomic block, increments each product's sold quantity and writes the
// transaction record with immutable name and price snapshots. The whole
// block retries on optimistic conflicts up to a fixed bound; two concurrent
// commits jointly overselling a product can never both succeed.
func (s *Service) Commit(ctx context.Context, input CommitInput, actor shared.Actor) (Transaction, error) {
	if input.Cart == nil || input.Cart.Empty() {
		return Transaction{}, ErrEmptyCart
	}
	if !actor.Authenticated() {
		return Transaction{}, ErrNotAuthenticated
	}

	insertedKey := false
	if s.idempotency != nil && input.IdempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "checkout"); err != nil {
			return Transaction{}, err
		}
		insertedKey = true
	}

	lines := input.Cart.Lines()
	txID := uuid.NewString()

	var committed Transaction
	err := docstore.RetryConflict(ctx, s.retries, func() error {
		return s.repo.WithAtomic(ctx, func(ctx context.Context, tx TxRepository) error {
			now := time.Now().UTC()
			record := Transaction{
				ID:        txID,
				Lines:     make([]Line, 0, len(lines)),
				ActorID:   actor.ID,
				ActorName: actor.Name,
				Status:    StatusCompleted,
				CreatedAt: now,
			}
			for _, line := range lines {
				live, err := tx.GetProduct(ctx, line.ProductID)
				if err != nil {
					if errors.Is(err, catalog.ErrProductNotFound) {
						return &ProductRemovedError{ProductID: line.ProductID, Name: line.Name}
					}
					return err
				}
				if live.Disabled {
					return &ProductRemovedError{ProductID: live.ID, Name: live.Name}
				}
				if line.Qty > live.Remaining() {
					return &catalog.InsufficientStockError{
						ProductID: live.ID,
						Name:      live.Name,
						Requested: line.Qty,
						Available: live.Remaining(),
					}
				}
				live.SoldQty += line.Qty
				live.UpdatedAt = now
				if err := tx.PutProduct(ctx, live); err != nil {
					return err
				}
				committedLine := Line{
					LineID:      uuid.NewString(),
					ProductID:   live.ID,
					ProductName: live.Name,
					Unit:        live.Unit,
					Qty:         line.Qty,
					UnitPrice:   live.SellingPrice,
					LineTotal:   float64(line.Qty) * live.SellingPrice,
				}
				record.Lines = append(record.Lines, committedLine)
				record.Total += committedLine.LineTotal
			}
			if err := tx.InsertTransaction(ctx, record); err != nil {
				return err
			}
			committed = record
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// Unknown outcome: the transaction may or may not have
			// committed. The idempotency key must stay so a blind resubmit
			// cannot charge stock twice; callers re-query by id first.
			return Transaction{}, fmt.Errorf("commit outcome unknown for %s: %w", txID, ErrCommitConflict)
		}
		if insertedKey {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey, "checkout")
		}
		if errors.Is(err, docstore.ErrConflict) {
			return Transaction{}, fmt.Errorf("%s: %w", err, ErrCommitConflict)
		}
		return Transaction{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actor.ID,
			Action:   "checkout:commit",
			Entity:   "transaction",
			EntityID: committed.ID,
			Meta: map[string]any{
				"total": committed.Total,
				"lines": len(committed.Lines),
			},
		})
	}
	if s.invalidator != nil {
		_ = s.invalidator.Bump(ctx)
	}
	return committed, nil
}

// Get loads one committed transaction.
func (s *Service) Get(ctx context.Context, id string) (Transaction, error) {
	return s.repo.GetTransaction(ctx, id)
}

// List returns committed transactions, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Transaction, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	return s.repo.ListTransactions(ctx, filter)
}
