package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"inventory-service/internal/apperr"
	"inventory-service/internal/models"
	"inventory-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProductInput is a validated create/update request for a product
type ProductInput struct {
	Name              string
	Description       string
	Cost              decimal.Decimal
	SellingPrice      decimal.Decimal
	Stock             int
	LowStockThreshold int
	SupplierID        *int64
	Version           int64
}

// Validate checks required fields and ranges
func (in *ProductInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return apperr.Validation("product name is required")
	}
	if in.Cost.IsNegative() {
		return apperr.Validation("cost must not be negative")
	}
	if in.SellingPrice.IsNegative() {
		return apperr.Validation("selling price must not be negative")
	}
	if in.Stock < 0 {
		return apperr.Validation("stock must not be negative, got %d", in.Stock)
	}
	if in.LowStockThreshold < 0 {
		return apperr.Validation("low stock threshold must not be negative, got %d", in.LowStockThreshold)
	}
	if in.SupplierID != nil && *in.SupplierID <= 0 {
		return apperr.Validation("invalid supplier id %d", *in.SupplierID)
	}
	return nil
}

func (in *ProductInput) product(defaultThreshold int) *models.Product {
	threshold := in.LowStockThreshold
	if threshold == 0 {
		threshold = defaultThreshold
	}
	return &models.Product{
		Name:              strings.TrimSpace(in.Name),
		Description:       in.Description,
		Cost:              in.Cost,
		SellingPrice:      in.SellingPrice,
		Stock:             in.Stock,
		LowStockThreshold: threshold,
		SupplierID:        in.SupplierID,
		Version:           in.Version,
	}
}

// SupplierInput is a create/update request for a supplier
type SupplierInput struct {
	Name          string
	ContactPerson string
	Email         string
	Phone         string
	Address       string
}

// Validate checks the required supplier fields
func (in *SupplierInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return apperr.Validation("supplier name is required")
	}
	if strings.TrimSpace(in.ContactPerson) == "" {
		return apperr.Validation("supplier contact person is required")
	}
	return nil
}

func (in *SupplierInput) supplier() *models.Supplier {
	return &models.Supplier{
		Name:          strings.TrimSpace(in.Name),
		ContactPerson: strings.TrimSpace(in.ContactPerson),
		Email:         in.Email,
		Phone:         in.Phone,
		Address:       in.Address,
	}
}

// CatalogService manages products and suppliers and serves the sale catalog
type CatalogService struct {
	catalog   CatalogStore
	suppliers SupplierStore
	cache     CatalogCache
	cacheTTL  time.Duration
	threshold int
	logger    *zap.Logger

	// bumped on every invalidation
	generation atomic.Uint64
}

// NewCatalogService creates a catalog service. cache may be nil.
func NewCatalogService(catalog CatalogStore, suppliers SupplierStore, cache CatalogCache, cacheTTL time.Duration) *CatalogService {
	return &CatalogService{
		catalog:   catalog,
		suppliers: suppliers,
		cache:     cache,
		cacheTTL:  cacheTTL,
		threshold: models.DefaultLowStockThreshold,
		logger:    util.GetLogger(),
	}
}

// SetDefaultThreshold sets the low-stock threshold given to products
// created or updated without one
func (s *CatalogService) SetDefaultThreshold(n int) {
	if n > 0 {
		s.threshold = n
	}
}

// GetProduct retrieves a product
func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.GetProduct")
	defer span.End()

	p, err := s.catalog.GetProduct(ctx, id)
	if err != nil {
		return nil, wrapTransport("failed to get product", err)
	}
	return p, nil
}

// ListProducts lists every product
func (s *CatalogService) ListProducts(ctx context.Context) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListProducts")
	defer span.End()

	products, err := s.catalog.ListProducts(ctx)
	if err != nil {
		return nil, wrapTransport("failed to list products", err)
	}
	return products, nil
}

// CreateProduct validates and inserts a product
func (s *CatalogService) CreateProduct(ctx context.Context, in *ProductInput) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateProduct")
	defer span.End()

	if err := in.Validate(); err != nil {
		return nil, err
	}
	p := in.product(s.threshold)
	if err := s.catalog.CreateProduct(ctx, p); err != nil {
		return nil, wrapTransport("failed to create product", err)
	}

	s.logger.Info("Product created", zap.Int64("product_id", p.ID), zap.String("name", p.Name))
	s.InvalidateSaleCatalog(ctx)
	return p, nil
}

// UpdateProduct validates and overwrites a product. A non-zero Version must
// match the stored one.
func (s *CatalogService) UpdateProduct(ctx context.Context, id int64, in *ProductInput) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.UpdateProduct")
	defer span.End()

	if err := in.Validate(); err != nil {
		return nil, err
	}
	p := in.product(s.threshold)
	p.ID = id
	if err := s.catalog.UpdateProduct(ctx, p); err != nil {
		return nil, wrapTransport("failed to update product", err)
	}

	s.logger.Info("Product updated", zap.Int64("product_id", p.ID), zap.Int64("version", p.Version))
	s.InvalidateSaleCatalog(ctx)
	return p, nil
}

// DeleteProduct removes a product
func (s *CatalogService) DeleteProduct(ctx context.Context, id int64) error {
	ctx, span := util.StartSpan(ctx, "CatalogService.DeleteProduct")
	defer span.End()

	if err := s.catalog.DeleteProduct(ctx, id); err != nil {
		return wrapTransport("failed to delete product", err)
	}

	s.logger.Info("Product deleted", zap.Int64("product_id", id))
	s.InvalidateSaleCatalog(ctx)
	return nil
}

// CreateSupplier validates and inserts a supplier
func (s *CatalogService) CreateSupplier(ctx context.Context, in *SupplierInput) (*models.Supplier, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateSupplier")
	defer span.End()

	if err := in.Validate(); err != nil {
		return nil, err
	}
	sup := in.supplier()
	if err := s.suppliers.CreateSupplier(ctx, sup); err != nil {
		return nil, wrapTransport("failed to create supplier", err)
	}

	s.logger.Info("Supplier created", zap.Int64("supplier_id", sup.ID), zap.String("name", sup.Name))
	return sup, nil
}

// GetSupplier retrieves a supplier
func (s *CatalogService) GetSupplier(ctx context.Context, id int64) (*models.Supplier, error) {
	sup, err := s.suppliers.GetSupplier(ctx, id)
	if err != nil {
		return nil, wrapTransport("failed to get supplier", err)
	}
	return sup, nil
}

// ListSuppliers lists every supplier
func (s *CatalogService) ListSuppliers(ctx context.Context) ([]models.Supplier, error) {
	suppliers, err := s.suppliers.ListSuppliers(ctx)
	if err != nil {
		return nil, wrapTransport("failed to list suppliers", err)
	}
	return suppliers, nil
}

// UpdateSupplier validates and overwrites a supplier's fields
func (s *CatalogService) UpdateSupplier(ctx context.Context, id int64, in *SupplierInput) (*models.Supplier, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.UpdateSupplier")
	defer span.End()

	if err := in.Validate(); err != nil {
		return nil, err
	}
	sup := in.supplier()
	sup.ID = id
	if err := s.suppliers.UpdateSupplier(ctx, sup); err != nil {
		return nil, wrapTransport("failed to update supplier", err)
	}
	return sup, nil
}

// DeleteSupplier removes a supplier. It fails with ReferentialConflict,
// listing the products, while any product still references the supplier.
func (s *CatalogService) DeleteSupplier(ctx context.Context, id int64) error {
	ctx, span := util.StartSpan(ctx, "CatalogService.DeleteSupplier")
	defer span.End()

	err := s.suppliers.DeleteSupplier(ctx, id)
	if err != nil {
		if e, ok := apperr.As(err); ok && e.Kind == apperr.KindReferentialConflict {
			ids := make([]int64, len(e.Blocking))
			for i, ref := range e.Blocking {
				ids[i] = ref.ID
			}
			s.logger.Warn("Supplier deletion refused",
				zap.Int64("supplier_id", id),
				zap.Int64s("blocking_products", ids))
		}
		return wrapTransport("failed to delete supplier", err)
	}

	s.logger.Info("Supplier deleted", zap.Int64("supplier_id", id))
	return nil
}

// SaleCatalog returns the snapshot a cart is built from. The cached copy is
// served when present; the catalog store remains authoritative at commit.
func (s *CatalogService) SaleCatalog(ctx context.Context) ([]models.SaleCatalogItem, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.SaleCatalog")
	defer span.End()

	if s.cache != nil {
		data, found, err := s.cache.GetCatalogSnapshot(ctx)
		switch {
		case err != nil:
			util.CatalogCacheTotal.WithLabelValues("error").Inc()
			s.logger.Warn("Catalog cache read failed", zap.Error(err))
		case found:
			var items []models.SaleCatalogItem
			if err := json.Unmarshal(data, &items); err == nil {
				util.CatalogCacheTotal.WithLabelValues("hit").Inc()
				return items, nil
			}
			util.CatalogCacheTotal.WithLabelValues("corrupt").Inc()
		default:
			util.CatalogCacheTotal.WithLabelValues("miss").Inc()
		}
	}

	gen := s.generation.Load()
	products, err := s.catalog.ListProducts(ctx)
	if err != nil {
		return nil, wrapTransport("failed to list products", err)
	}
	items := make([]models.SaleCatalogItem, len(products))
	for i, p := range products {
		items[i] = models.SaleCatalogItem{
			ID:           p.ID,
			Name:         p.Name,
			SellingPrice: p.SellingPrice,
			Cost:         p.Cost,
			Stock:        p.Stock,
		}
	}

	if s.cache != nil {
		s.storeSnapshot(ctx, items)
		// An invalidation that raced the read may have run before our write.
		if s.generation.Load() != gen {
			s.InvalidateSaleCatalog(ctx)
		}
	}
	return items, nil
}

// WarmSaleCatalog loads the sale catalog into the cache
func (s *CatalogService) WarmSaleCatalog(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	s.InvalidateSaleCatalog(ctx)
	items, err := s.SaleCatalog(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("Sale catalog cache warmed", zap.Int("count", len(items)))
	return nil
}

// InvalidateSaleCatalog drops the cached sale catalog
func (s *CatalogService) InvalidateSaleCatalog(ctx context.Context) {
	if s.cache == nil {
		return
	}
	s.generation.Add(1)
	if err := s.cache.InvalidateCatalogSnapshot(ctx); err != nil {
		s.logger.Warn("Failed to invalidate catalog cache", zap.Error(err))
	}
}

// Observer invalidates the cached sale catalog after every sale
func (s *CatalogService) Observer() Observer {
	return func(ctx context.Context, change LedgerChange) {
		if change.Kind == ChangeSale {
			s.InvalidateSaleCatalog(ctx)
		}
	}
}

func (s *CatalogService) storeSnapshot(ctx context.Context, items []models.SaleCatalogItem) {
	data, err := json.Marshal(items)
	if err != nil {
		s.logger.Warn("Failed to encode catalog snapshot", zap.Error(err))
		return
	}
	if err := s.cache.SetCatalogSnapshot(ctx, data, s.cacheTTL); err != nil {
		s.logger.Warn("Failed to cache catalog snapshot", zap.Error(err))
	}
}
