package dashboard

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/calypso-pos/calypso-pos/internal/catalog"
	"github.com/calypso-pos/calypso-pos/internal/checkout"
	"github.com/calypso-pos/calypso-pos/internal/returns"
)

// TransactionsPort reads committed transactions.
type TransactionsPort interface {
	ListTransactions(ctx context.Context, filter checkout.ListFilter) ([]checkout.Transaction, error)
}

// ProductsPort reads stock records.
type ProductsPort interface {
	ListProducts(ctx context.Context, filter catalog.ListFilter) ([]catalog.Product, error)
}

// ReturnsPort reads processed returns.
type ReturnsPort interface {
	ListReturns(ctx context.Context, filter returns.ListFilter) ([]returns.ReturnRecord, error)
}

// Service computes read-only derived views by folding over the transaction
// and stock-record collections. It performs no writes.
type Service struct {
	transactions TransactionsPort
	products     ProductsPort
	returnsRepo  ReturnsPort
	cache        *Cache
	now          func() time.Time
}

// NewService wires the read ports with an optional cache.
func NewService(transactions TransactionsPort, products ProductsPort, returnsRepo ReturnsPort, cache *Cache) *Service {
	return &Service{
		transactions: transactions,
		products:     products,
		returnsRepo:  returnsRepo,
		cache:        cache,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Summary aggregates sales for the window plus today's figures.
func (s *Service) Summary(ctx context.Context, window Window) (Summary, error) {
	key, err := s.cache.BuildKey(ctx, "dashboard", "summary", string(window))
	if err != nil {
		return Summary{}, err
	}
	var summary Summary
	err = s.cache.FetchJSON(ctx, key, &summary, func(ctx context.Context) (interface{}, error) {
		return s.computeSummary(ctx, window)
	})
	return summary, err
}

func (s *Service) computeSummary(ctx context.Context, window Window) (Summary, error) {
	now := s.now()
	txs, err := s.transactions.ListTransactions(ctx, checkout.ListFilter{From: window.Start(now)})
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{Window: window}
	todayStart := WindowToday.Start(now)
	for _, tx := range txs {
		summary.TotalSales += tx.Total
		summary.TransactionCount++
		for _, line := range tx.Lines {
			summary.ItemsSold += line.Qty
		}
		if !tx.CreatedAt.Before(todayStart) {
			summary.TodaySales += tx.Total
			summary.TodayTransactions++
		}
	}
	rets, err := s.returnsRepo.ListReturns(ctx, returns.ListFilter{})
	if err != nil {
		return Summary{}, err
	}
	start := window.Start(now)
	for _, ret := range rets {
		if !start.IsZero() && ret.CreatedAt.Before(start) {
			continue
		}
		summary.TotalRefunded += ret.RefundedAmount
		summary.ReturnCount++
	}
	return summary, nil
}

// TopProducts lists the best sellers of the window by quantity sold,
// excluding returned lines.
func (s *Service) TopProducts(ctx context.Context, window Window, limit int) ([]TopProduct, error) {
	if limit <= 0 {
		limit = 5
	}
	key, err := s.cache.BuildKey(ctx, "dashboard", "top", string(window), strconv.Itoa(limit))
	if err != nil {
		return nil, err
	}
	var top []TopProduct
	err = s.cache.FetchJSON(ctx, key, &top, func(ctx context.Context) (interface{}, error) {
		return s.computeTopProducts(ctx, window, limit)
	})
	return top, err
}

func (s *Service) computeTopProducts(ctx context.Context, window Window, limit int) ([]TopProduct, error) {
	txs, err := s.transactions.ListTransactions(ctx, checkout.ListFilter{From: window.Start(s.now())})
	if err != nil {
		return nil, err
	}
	byProduct := map[string]*TopProduct{}
	for _, tx := range txs {
		for _, line := range tx.Lines {
			if line.IsReturned {
				continue
			}
			entry, ok := byProduct[line.ProductID]
			if !ok {
				entry = &TopProduct{ProductID: line.ProductID, Name: line.ProductName}
				byProduct[line.ProductID] = entry
			}
			entry.QtySold += line.Qty
			entry.Revenue += line.LineTotal
		}
	}
	top := make([]TopProduct, 0, len(byProduct))
	for _, entry := range byProduct {
		top = append(top, *entry)
	}
	sort.SliceStable(top, func(i, j int) bool {
		if top[i].QtySold != top[j].QtySold {
			return top[i].QtySold > top[j].QtySold
		}
		return top[i].Name < top[j].Name
	})
	if len(top) > limit {
		top = top[:limit]
	}
	return top, nil
}

// LowStock lists enabled products at or below their threshold.
func (s *Service) LowStock(ctx context.Context) ([]LowStockItem, error) {
	products, err := s.products.ListProducts(ctx, catalog.ListFilter{})
	if err != nil {
		return nil, err
	}
	var items []LowStockItem
	for _, p := range products {
		if p.Disabled || !p.LowStock() {
			continue
		}
		items = append(items, LowStockItem{
			ProductID: p.ID,
			Name:      p.Name,
			Remaining: p.Remaining(),
			Threshold: p.LowStockThreshold,
		})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Remaining < items[j].Remaining })
	return items, nil
}

// Recent returns the latest committed transactions.
func (s *Service) Recent(ctx context.Context, limit int) ([]checkout.Transaction, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.transactions.ListTransactions(ctx, checkout.ListFilter{Limit: limit})
}
