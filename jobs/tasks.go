package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/calypso-pos/calypso-pos/internal/dashboard"
	"github.com/calypso-pos/calypso-pos/internal/shared"
)

const (
	// TaskLowStockScan walks the catalog for products at or below their
	// low-stock threshold.
	TaskLowStockScan = "stock:low_scan"
	// TaskDashboardWarmup primes the dashboard cache ahead of requests.
	TaskDashboardWarmup = "dashboard:warmup"
)

// LowStockScanPayload carries scheduling metadata.
type LowStockScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLowStockScanTask constructs an Asynq task for the low-stock scan.
func NewLowStockScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(LowStockScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, body, asynq.Queue(QueueDefault)), nil
}

// DashboardWarmupPayload carries scheduling metadata.
type DashboardWarmupPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewDashboardWarmupTask constructs an Asynq task for the cache warmup.
func NewDashboardWarmupTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(DashboardWarmupPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDashboardWarmup, body, asynq.Queue(QueueDefault)), nil
}

// NewLowStockScanHandler reports products running low so staff can restock.
// audit is optional.
func NewLowStockScanHandler(service *dashboard.Service, audit *shared.AuditLogger, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload LowStockScanPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		items, err := service.LowStock(ctx)
		if err != nil {
			return err
		}
		for _, item := range items {
			logger.Warn("low stock",
				slog.String("product_id", item.ProductID),
				slog.String("name", item.Name),
				slog.Int64("remaining", item.Remaining),
				slog.Int64("threshold", item.Threshold),
			)
		}
		if audit != nil && len(items) > 0 {
			flagged := make([]string, 0, len(items))
			for _, item := range items {
				flagged = append(flagged, item.ProductID)
			}
			if err := audit.Record(ctx, shared.AuditLog{
				ActorID:  "system",
				Action:   "jobs:low_stock_scan",
				Entity:   "product",
				EntityID: "batch",
				Meta: map[string]any{
					"flagged":  flagged,
					"ran_at":   time.Now().UTC(),
					"schedule": payload.ScheduledFor,
				},
			}); err != nil {
				logger.Warn("audit low stock scan", slog.Any("error", err))
			}
		}
		logger.Info("low stock scan finished", slog.Int("flagged", len(items)))
		return nil
	}
}

// NewDashboardWarmupHandler recomputes the cached dashboard views.
func NewDashboardWarmupHandler(service *dashboard.Service, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload DashboardWarmupPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		for _, window := range []dashboard.Window{dashboard.WindowAll, dashboard.WindowToday, dashboard.WindowWeek, dashboard.WindowMonth} {
			if _, err := service.Summary(ctx, window); err != nil {
				return err
			}
			if _, err := service.TopProducts(ctx, window, 5); err != nil {
				return err
			}
		}
		logger.Info("dashboard warmup finished")
		return nil
	}
}
