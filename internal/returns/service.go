package returns

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/calypso-pos/calypso-pos/internal/catalog"
	"github.com/calypso-pos/calypso-pos/internal/platform/docstore"
	"github.com/calypso-pos/calypso-pos/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithAtomic(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListReturns(ctx context.Context, filter ListFilter) ([]ReturnRecord, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// InvalidatorPort is notified after a processed return.
type InvalidatorPort interface {
	Bump(ctx context.Context) error
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	CommitRetries int
}

// Service reverses exactly one previously committed sale line, restoring
// stock and producing an auditable record.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	invalidator InvalidatorPort
	retries     int
}

// NewService builds Service. audit and invalidator are optional.
func NewService(repo RepositoryPort, audit AuditPort, invalidator InvalidatorPort, cfg ServiceConfig) *Service {
	retries := cfg.CommitRetries
	if retries <= 0 {
		retries = 3
	}
	return &Service{repo: repo, audit: audit, invalidator: invalidator, retries: retries}
}

// Process marks a line returned, restores its stock and appends the return
// record, all in one atomic block. A missing product record does not block
// the audit trail: the line flag and return record still commit and the
// skipped stock adjustment is reported as a warning on the result.
func (s *Service) Process(ctx context.Context, transactionID, lineID, reason string, actor shared.Actor) (Result, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Result{}, ErrEmptyReason
	}

	var result Result
	err := docstore.RetryConflict(ctx, s.retries, func() error {
		return s.repo.WithAtomic(ctx, func(ctx context.Context, tx TxRepository) error {
			record, err := tx.GetTransaction(ctx, transactionID)
			if err != nil {
				return err
			}
			line, ok := record.Line(lineID)
			if !ok {
				return fmt.Errorf("%s/%s: %w", transactionID, lineID, ErrLineNotFound)
			}
			if line.IsReturned {
				return ErrAlreadyReturned
			}

			now := time.Now().UTC()
			lines := record.Lines
			for i := range lines {
				if lines[i].LineID != lineID {
					continue
				}
				lines[i].IsReturned = true
				lines[i].ReturnReason = reason
				lines[i].ReturnedBy = actor.ID
				returnedAt := now
				lines[i].ReturnedAt = &returnedAt
			}
			if err := tx.UpdateTransactionLines(ctx, transactionID, lines); err != nil {
				return err
			}

			stockAdjusted := false
			product, err := tx.GetProduct(ctx, line.ProductID)
			switch {
			case err == nil:
				// Floor at zero when the sold counter is already
				// inconsistent rather than going negative.
				if product.SoldQty < line.Qty {
					product.SoldQty = 0
				} else {
					product.SoldQty -= line.Qty
				}
				product.UpdatedAt = now
				if err := tx.PutProduct(ctx, product); err != nil {
					return err
				}
				stockAdjusted = true
			case errors.Is(err, catalog.ErrProductNotFound):
				// Product gone; record the return anyway.
			default:
				return err
			}

			ret := ReturnRecord{
				ID:             uuid.NewString(),
				TransactionID:  transactionID,
				LineID:         lineID,
				ProductID:      line.ProductID,
				ProductName:    line.ProductName,
				Qty:            line.Qty,
				RefundedAmount: line.LineTotal,
				Reason:         reason,
				ActorID:        actor.ID,
				CreatedAt:      now,
			}
			if err := tx.AppendReturnRecord(ctx, ret); err != nil {
				return err
			}

			result = Result{Record: ret, StockAdjusted: stockAdjusted}
			if !stockAdjusted {
				result.Warning = WarningInventoryAdjustmentSkipped
			}
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, docstore.ErrConflict) {
			return Result{}, fmt.Errorf("%s: %w", err, ErrCommitConflict)
		}
		return Result{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actor.ID,
			Action:   "returns:process",
			Entity:   "transaction_line",
			EntityID: fmt.Sprintf("%s:%s", transactionID, lineID),
			Meta: map[string]any{
				"qty":            result.Record.Qty,
				"refunded":       result.Record.RefundedAmount,
				"reason":         reason,
				"stock_adjusted": result.StockAdjusted,
			},
		})
	}
	if s.invalidator != nil {
		_ = s.invalidator.Bump(ctx)
	}
	return result, nil
}

// List returns processed returns, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]ReturnRecord, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	return s.repo.ListReturns(ctx, filter)
}
