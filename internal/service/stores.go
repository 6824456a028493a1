package service

import (
	"context"
	"time"

	"inventory-service/internal/models"

	"github.com/shopspring/decimal"
)

// CatalogStore is the authoritative product store
type CatalogStore interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	CreateProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, id int64) error
	DecrementStock(ctx context.Context, productID int64, qty int) (int, error)
	ApplyBatch(ctx context.Context, lines []models.SaleLine) ([]models.AppliedLine, error)
}

// SupplierStore persists suppliers and enforces product references on delete
type SupplierStore interface {
	CreateSupplier(ctx context.Context, sup *models.Supplier) error
	GetSupplier(ctx context.Context, id int64) (*models.Supplier, error)
	ListSuppliers(ctx context.Context) ([]models.Supplier, error)
	UpdateSupplier(ctx context.Context, sup *models.Supplier) error
	DeleteSupplier(ctx context.Context, id int64) error
}

// SaleStore commits sales. CommitSale applies the lines to the catalog,
// records the sale and credits its profit to the ledger as one unit.
type SaleStore interface {
	CommitSale(ctx context.Context, sale *models.Sale, lines []models.SaleLine) error
	GetSaleByIdempotencyKey(ctx context.Context, key string) (*models.Sale, error)
	ListSales(ctx context.Context, limit int) ([]models.Sale, error)
}

// LedgerStore persists the profit ledger row
type LedgerStore interface {
	CurrentProfit(ctx context.Context) (*models.ProfitState, error)
	CreditProfit(ctx context.Context, amount decimal.Decimal) (*models.ProfitState, error)
	ResetProfit(ctx context.Context) (*models.ProfitReset, error)
}

// EventLog de-duplicates consumed events
type EventLog interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// Store is everything the service layer needs from persistence
type Store interface {
	CatalogStore
	SupplierStore
	SaleStore
	LedgerStore
	EventLog
	Ping(ctx context.Context) error
	Close() error
}

// IdempotencyCache is a fast path in front of the sale store's key check
type IdempotencyCache interface {
	ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error)
	CompleteIdempotencyKey(ctx context.Context, key, saleID string, ttl time.Duration) error
	ReleaseIdempotencyKey(ctx context.Context, key string) error
	LookupIdempotencyKey(ctx context.Context, key string) (saleID string, pending bool, found bool, err error)
}

// CatalogCache caches the serialized sale catalog snapshot
type CatalogCache interface {
	GetCatalogSnapshot(ctx context.Context) ([]byte, bool, error)
	SetCatalogSnapshot(ctx context.Context, data []byte, ttl time.Duration) error
	InvalidateCatalogSnapshot(ctx context.Context) error
}
