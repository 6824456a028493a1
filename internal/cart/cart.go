// Package cart holds the in-progress working set of a sale.
//
// A Cart keeps value snapshots of the catalog taken when a product was added.
// It never reads the catalog itself; stock ceilings may therefore be stale and
// are re-validated when the sale is committed.
package cart

import (
	"inventory-service/internal/models"

	"github.com/shopspring/decimal"
)

// Line is one product in the cart
type Line struct {
	ProductID    int64           `json:"id"`
	Name         string          `json:"name"`
	SellingPrice decimal.Decimal `json:"sellingPrice"`
	Cost         decimal.Decimal `json:"cost"`
	Quantity     int             `json:"quantity"`
	Available    int             `json:"available"`
}

// Subtotal returns sellingPrice * quantity
func (l Line) Subtotal() decimal.Decimal {
	return l.SellingPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is an ordered set of lines keyed by product id. Not safe for
// concurrent use; a cart belongs to a single sale session.
type Cart struct {
	lines []Line
}

// New creates an empty cart
func New() *Cart {
	return &Cart{}
}

func (c *Cart) index(productID int64) int {
	for i := range c.lines {
		if c.lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// AddLine adds one unit of the product. An existing line grows by one, capped
// at the stock ceiling of the snapshot. Out-of-stock products are not added.
// It reports whether a unit was added.
func (c *Cart) AddLine(snapshot models.Product) bool {
	if i := c.index(snapshot.ID); i >= 0 {
		line := &c.lines[i]
		line.Available = snapshot.Stock
		line.SellingPrice = snapshot.SellingPrice
		line.Cost = snapshot.Cost
		if line.Quantity >= line.Available {
			if line.Quantity > line.Available {
				c.clampAt(i)
			}
			return false
		}
		line.Quantity++
		return true
	}

	if snapshot.Stock <= 0 {
		return false
	}
	c.lines = append(c.lines, Line{
		ProductID:    snapshot.ID,
		Name:         snapshot.Name,
		SellingPrice: snapshot.SellingPrice,
		Cost:         snapshot.Cost,
		Quantity:     1,
		Available:    snapshot.Stock,
	})
	return true
}

// SetQuantity clamps requested to [1, available]. A line whose clamped
// quantity is not positive is removed. It reports whether the line exists
// after the call.
func (c *Cart) SetQuantity(productID int64, requested int) bool {
	i := c.index(productID)
	if i < 0 {
		return false
	}
	if requested <= 0 {
		c.removeAt(i)
		return false
	}
	c.lines[i].Quantity = requested
	return c.clampAt(i)
}

func (c *Cart) clampAt(i int) bool {
	line := &c.lines[i]
	q := line.Quantity
	if q > line.Available {
		q = line.Available
	}
	if q < 1 {
		q = 1
	}
	if q > line.Available {
		c.removeAt(i)
		return false
	}
	line.Quantity = q
	return true
}

// RemoveLine removes the product unconditionally
func (c *Cart) RemoveLine(productID int64) {
	if i := c.index(productID); i >= 0 {
		c.removeAt(i)
	}
}

func (c *Cart) removeAt(i int) {
	c.lines = append(c.lines[:i], c.lines[i+1:]...)
}

// Line returns the line for a product
func (c *Cart) Line(productID int64) (Line, bool) {
	if i := c.index(productID); i >= 0 {
		return c.lines[i], true
	}
	return Line{}, false
}

// Lines returns a copy of the lines in insertion order
func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// Total returns the bill total, recomputed on every call
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// IsEmpty reports whether the cart has no lines
func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

// Len returns the number of lines
func (c *Cart) Len() int {
	return len(c.lines)
}

// Clear removes every line
func (c *Cart) Clear() {
	c.lines = nil
}

// SaleLines converts the cart into (product, quantity) pairs
func (c *Cart) SaleLines() []models.SaleLine {
	out := make([]models.SaleLine, len(c.lines))
	for i, l := range c.lines {
		out[i] = models.SaleLine{ProductID: l.ProductID, Quantity: l.Quantity}
	}
	return out
}
