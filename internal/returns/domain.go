package returns

import (
	"errors"
	"time"
)

// ReturnRecord is one append-only compensation record for a transaction
// line. At most one record exists per line, enforced by the line's
// isReturned flag.
type ReturnRecord struct {
	ID             string    `json:"id"`
	TransactionID  string    `json:"transactionId"`
	LineID         string    `json:"lineId"`
	ProductID      string    `json:"productId"`
	ProductName    string    `json:"productName"`
	Qty            int64     `json:"qty"`
	RefundedAmount float64   `json:"refundedAmount"`
	Reason         string    `json:"reason"`
	ActorID        string    `json:"actorId"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Result reports a processed return. StockAdjusted is false when the
// product record had disappeared: the audit trail still commits, but the
// inventory adjustment is skipped and reported as a warning, not a failure.
type Result struct {
	Record        ReturnRecord
	StockAdjusted bool
	Warning       string
}

// WarningInventoryAdjustmentSkipped flags the partial-success outcome.
const WarningInventoryAdjustmentSkipped = "InventoryAdjustmentSkipped"

// ListFilter narrows return listings.
type ListFilter struct {
	TransactionID string
	ProductID     string
	Limit         int
}

// ErrEmptyReason indicates a blank return reason.
var ErrEmptyReason = errors.New("returns: reason required")

// ErrAlreadyReturned indicates the line was returned before. A line can be
// returned at most once.
var ErrAlreadyReturned = errors.New("returns: line already returned")

// ErrLineNotFound indicates an unknown line id on the transaction.
var ErrLineNotFound = errors.New("returns: transaction line not found")

// ErrCommitConflict indicates the bounded conflict retries were exhausted.
var ErrCommitConflict = errors.New("returns: commit conflict")
