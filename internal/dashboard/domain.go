package dashboard

import (
	"fmt"
	"time"
)

// Window selects the reporting time range.
type Window string

const (
	WindowAll   Window = "all"
	WindowToday Window = "today"
	WindowWeek  Window = "week"
	WindowMonth Window = "month"
)

// ParseWindow validates a window token, defaulting blank input to all.
func ParseWindow(raw string) (Window, error) {
	switch Window(raw) {
	case "":
		return WindowAll, nil
	case WindowAll, WindowToday, WindowWeek, WindowMonth:
		return Window(raw), nil
	default:
		return "", fmt.Errorf("dashboard: unknown window %q", raw)
	}
}

// Start returns the inclusive lower time boundary for the window; the zero
// time means unbounded.
func (w Window) Start(now time.Time) time.Time {
	now = now.UTC()
	switch w {
	case WindowToday:
		return now.Truncate(24 * time.Hour)
	case WindowWeek:
		return now.AddDate(0, 0, -7)
	case WindowMonth:
		return now.AddDate(0, -1, 0)
	default:
		return time.Time{}
	}
}

// Summary aggregates sales figures for one window.
type Summary struct {
	Window            Window  `json:"window"`
	TotalSales        float64 `json:"totalSales"`
	TransactionCount  int     `json:"transactionCount"`
	ItemsSold         int64   `json:"itemsSold"`
	TodaySales        float64 `json:"todaySales"`
	TodayTransactions int     `json:"todayTransactions"`
	TotalRefunded     float64 `json:"totalRefunded"`
	ReturnCount       int     `json:"returnCount"`
}

// TopProduct is one entry of the top-selling listing. Returned lines are
// excluded from the counts.
type TopProduct struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	QtySold   int64   `json:"qtySold"`
	Revenue   float64 `json:"revenue"`
}

// LowStockItem is one product at or below its low-stock threshold.
type LowStockItem struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Remaining int64  `json:"remaining"`
	Threshold int64  `json:"threshold"`
}
