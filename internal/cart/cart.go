// Package cart accumulates a candidate multi-line order before any
// persistent effect occurs. Its stock checks are advisory only: they compare
// against the product snapshot the caller passed in, and the checkout engine
// re-validates every line against live stock at commit time.
package cart

import (
	"errors"

	"github.com/calypso-pos/calypso-pos/internal/catalog"
)

// ErrInvalidQuantity indicates a non-positive quantity.
var ErrInvalidQuantity = errors.New("cart: quantity must be positive")

// Line is one desired order line with the unit price captured at add time.
type Line struct {
	ProductID string
	Name      string
	Unit      string
	Qty       int64
	UnitPrice float64
}

// Total returns qty × unit price for the line.
func (l Line) Total() float64 {
	return float64(l.Qty) * l.UnitPrice
}

// Cart is a transient, single-user order under construction. It is never
// persisted and performs no store access.
type Cart struct {
	lines []Line
}

// New returns an empty cart.
func New() *Cart {
	return &Cart{}
}

// AddLine adds qty of the product. If the product is already in the cart the
// quantities are summed and the combined quantity is re-checked against the
// snapshot's remainder, since the snapshot predates any commit.
func (c *Cart) AddLine(snapshot catalog.Product, qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	combined := qty
	if existing := c.find(snapshot.ID); existing != nil {
		combined += existing.Qty
	}
	if combined > snapshot.Remaining() {
		return &catalog.InsufficientStockError{
			ProductID: snapshot.ID,
			Name:      snapshot.Name,
			Requested: combined,
			Available: snapshot.Remaining(),
		}
	}
	if existing := c.find(snapshot.ID); existing != nil {
		existing.Qty = combined
		return nil
	}
	c.lines = append(c.lines, Line{
		ProductID: snapshot.ID,
		Name:      snapshot.Name,
		Unit:      snapshot.Unit,
		Qty:       qty,
		UnitPrice: snapshot.SellingPrice,
	})
	return nil
}

// UpdateLine replaces the line's quantity. A quantity of zero or less
// removes the line.
func (c *Cart) UpdateLine(snapshot catalog.Product, qty int64) error {
	if qty <= 0 {
		c.RemoveLine(snapshot.ID)
		return nil
	}
	if qty > snapshot.Remaining() {
		return &catalog.InsufficientStockError{
			ProductID: snapshot.ID,
			Name:      snapshot.Name,
			Requested: qty,
			Available: snapshot.Remaining(),
		}
	}
	if existing := c.find(snapshot.ID); existing != nil {
		existing.Qty = qty
		return nil
	}
	c.lines = append(c.lines, Line{
		ProductID: snapshot.ID,
		Name:      snapshot.Name,
		Unit:      snapshot.Unit,
		Qty:       qty,
		UnitPrice: snapshot.SellingPrice,
	})
	return nil
}

// RemoveLine drops the product from the cart. Removing an absent product is
// a no-op.
func (c *Cart) RemoveLine(productID string) {
	for i, line := range c.lines {
		if line.ProductID == productID {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			return
		}
	}
}

// Lines returns the order lines in insertion order.
func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// Total sums qty × unit price across lines.
func (c *Cart) Total() float64 {
	var total float64
	for _, line := range c.lines {
		total += line.Total()
	}
	return total
}

// Empty reports whether the cart has no lines.
func (c *Cart) Empty() bool {
	return len(c.lines) == 0
}

func (c *Cart) find(productID string) *Line {
	for i := range c.lines {
		if c.lines[i].ProductID == productID {
			return &c.lines[i]
		}
	}
	return nil
}
