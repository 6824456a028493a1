package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultLowStockThreshold applies to products without their own threshold
const DefaultLowStockThreshold = 10

// Product represents a product in the catalog
type Product struct {
	ID                int64           `db:"id" json:"id"`
	Name              string          `db:"name" json:"name"`
	Description       string          `db:"description" json:"description,omitempty"`
	Cost              decimal.Decimal `db:"cost" json:"cost"`
	SellingPrice      decimal.Decimal `db:"selling_price" json:"sellingPrice"`
	Stock             int             `db:"stock" json:"stock"`
	LowStockThreshold int             `db:"low_stock_threshold" json:"lowStockThreshold"`
	SupplierID        *int64          `db:"supplier_id" json:"supplierId,omitempty"`
	Version           int64           `db:"version" json:"version"`
	CreatedAt         time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updatedAt"`
}

// Threshold returns the effective low-stock threshold
func (p *Product) Threshold() int {
	if p.LowStockThreshold <= 0 {
		return DefaultLowStockThreshold
	}
	return p.LowStockThreshold
}

// IsLowStock reports whether the product is running low but not out of stock
func (p *Product) IsLowStock() bool {
	return p.Stock > 0 && p.Stock < p.Threshold()
}

// Supplier represents a supplier of products
type Supplier struct {
	ID            int64     `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	ContactPerson string    `db:"contact_person" json:"contactPerson"`
	Email         string    `db:"email" json:"email"`
	Phone         string    `db:"phone" json:"phone"`
	Address       string    `db:"address" json:"address"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

// ProductRef identifies a product by id and name
type ProductRef struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// SaleLine is one (product, quantity) pair of a sale transaction
type SaleLine struct {
	ProductID int64 `json:"id"`
	Quantity  int   `json:"quantity"`
}

// AppliedLine is a sale line after it was applied against the catalog.
// Cost and price are the catalog-recorded values at commit time.
type AppliedLine struct {
	ProductID   int64           `db:"product_id" json:"productId"`
	ProductName string          `db:"product_name" json:"productName"`
	Quantity    int             `db:"quantity" json:"quantity"`
	UnitCost    decimal.Decimal `db:"unit_cost" json:"unitCost"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unitPrice"`
	StockAfter  int             `db:"stock_after" json:"stockAfter"`
	Threshold   int             `db:"-" json:"-"`
}

// Profit returns (price - cost) * quantity for the line
func (l AppliedLine) Profit() decimal.Decimal {
	return l.UnitPrice.Sub(l.UnitCost).Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Amount returns price * quantity for the line
func (l AppliedLine) Amount() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Sale is a committed sale transaction
type Sale struct {
	ID             string          `db:"id" json:"id"`
	IdempotencyKey *string         `db:"idempotency_key" json:"idempotencyKey,omitempty"`
	TotalAmount    decimal.Decimal `db:"total_amount" json:"totalAmount"`
	Profit         decimal.Decimal `db:"profit" json:"profit"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
	Lines          []AppliedLine   `db:"-" json:"lines"`
}

// Settle fills the sale lines and totals from the applied catalog lines
func (s *Sale) Settle(applied []AppliedLine) {
	s.Lines = applied
	s.TotalAmount = decimal.Zero
	s.Profit = decimal.Zero
	for _, l := range applied {
		s.TotalAmount = s.TotalAmount.Add(l.Amount())
		s.Profit = s.Profit.Add(l.Profit())
	}
}

// AppliedStock maps every sold product to its stock after the sale
func (s *Sale) AppliedStock() map[int64]int {
	out := make(map[int64]int, len(s.Lines))
	for _, l := range s.Lines {
		out[l.ProductID] = l.StockAfter
	}
	return out
}

// ProfitState is the profit ledger row
type ProfitState struct {
	Total       decimal.Decimal `db:"total" json:"profit"`
	LastResetAt time.Time       `db:"last_reset_at" json:"lastResetTimestamp"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updatedAt"`
}

// ProfitReset is the outcome of a ledger reset
type ProfitReset struct {
	PreviousTotal  decimal.Decimal `json:"previousTotal"`
	ResetTimestamp time.Time       `json:"resetTimestamp"`
}

// InventoryStats are dashboard metrics derived from the catalog
type InventoryStats struct {
	TotalProducts   int             `json:"totalProducts"`
	TotalValue      decimal.Decimal `json:"totalValue"`
	LowStockItems   int             `json:"lowStockItems"`
	OutOfStockItems int             `json:"outOfStockItems"`
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

// SaleCatalogItem is the snapshot row a cart is built from
type SaleCatalogItem struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	SellingPrice decimal.Decimal `json:"sellingPrice"`
	Cost         decimal.Decimal `json:"cost"`
	Stock        int             `json:"stock"`
}
