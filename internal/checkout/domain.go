package checkout

import (
	"errors"
	"fmt"
	"time"
)

// Status enumerates transaction states. Commits are all-or-nothing, so the
// only persisted state is completed.
type Status string

// StatusCompleted marks a committed transaction.
const StatusCompleted Status = "completed"

// Line is one sold item inside a committed transaction. Name and unit price
// are snapshots taken at commit time and stay immutable even when the
// product record later changes; the return sub-fields are the only fields
// ever mutated after commit, exactly once, by the return processor.
type Line struct {
	LineID       string     `json:"lineId"`
	ProductID    string     `json:"productId"`
	ProductName  string     `json:"productName"`
	Unit         string     `json:"unit,omitempty"`
	Qty          int64      `json:"qty"`
	UnitPrice    float64    `json:"unitPrice"`
	LineTotal    float64    `json:"lineTotal"`
	IsReturned   bool       `json:"isReturned"`
	ReturnReason string     `json:"returnReason,omitempty"`
	ReturnedBy   string     `json:"returnedBy,omitempty"`
	ReturnedAt   *time.Time `json:"returnedAt,omitempty"`
}

// Transaction is the immutable record of one completed sale.
type Transaction struct {
	ID        string    `json:"id"`
	Lines     []Line    `json:"lines"`
	Total     float64   `json:"total"`
	ActorID   string    `json:"actorId"`
	ActorName string    `json:"actorName,omitempty"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// Line returns the line with the given id.
func (t Transaction) Line(lineID string) (Line, bool) {
	for _, line := range t.Lines {
		if line.LineID == lineID {
			return line, true
		}
	}
	return Line{}, false
}

// ListFilter narrows transaction listings.
type ListFilter struct {
	From  time.Time
	To    time.Time
	Limit int
}

// ErrEmptyCart indicates a commit attempt with no lines.
var ErrEmptyCart = errors.New("checkout: cart is empty")

// ErrNotAuthenticated indicates a commit without an actor identity.
var ErrNotAuthenticated = errors.New("checkout: actor identity required")

// ErrCommitConflict indicates the bounded conflict retries were exhausted,
// or the commit outcome is unknown after a transport timeout. Callers should
// re-query the transaction before resubmitting.
var ErrCommitConflict = errors.New("checkout: commit conflict")

// ErrTransactionNotFound indicates an unknown transaction id.
var ErrTransactionNotFound = errors.New("checkout: transaction not found")

// ProductRemovedError fails a whole commit when a cart line references a
// product that no longer exists or was disabled since the cart was built.
type ProductRemovedError struct {
	ProductID string
	Name      string
}

func (e *ProductRemovedError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("checkout: product %q no longer available", e.Name)
	}
	return fmt.Sprintf("checkout: product %s no longer available", e.ProductID)
}
