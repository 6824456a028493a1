package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeSaleCommitted = "SALE_COMMITTED"
	EventTypeProfitReset   = "PROFIT_RESET"
	EventTypeProfitCredit  = "PROFIT_CREDITED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// SaleCommittedEvent published when a sale is committed
type SaleCommittedEvent struct {
	BaseEvent
	SaleID      string          `json:"sale_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Profit      decimal.Decimal `json:"profit"`
	Items       []SaleItemData  `json:"items"`
}

// ProfitResetEvent published when the profit ledger is reset
type ProfitResetEvent struct {
	BaseEvent
	PreviousTotal decimal.Decimal `json:"previous_total"`
}

// ProfitCreditedEvent published for manual ledger adjustments
type ProfitCreditedEvent struct {
	BaseEvent
	Amount decimal.Decimal `json:"amount"`
	Total  decimal.Decimal `json:"total"`
}

// SaleItemData represents item data in events
type SaleItemData struct {
	ProductID  int64           `json:"product_id"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	StockAfter int             `json:"stock_after"`
	Threshold  int             `json:"threshold"`
}
