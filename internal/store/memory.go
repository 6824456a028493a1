package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"inventory-service/internal/apperr"
	"inventory-service/internal/models"

	"github.com/shopspring/decimal"
)

type productEntry struct {
	mu      sync.Mutex
	product models.Product
}

// MemoryStore is an in-process store with the same method set as Store.
//
// Lock order: catalogMu, then product locks in ascending id order, then
// ledgerMu, then salesMu.
type MemoryStore struct {
	catalogMu     sync.RWMutex
	products      map[int64]*productEntry
	suppliers     map[int64]models.Supplier
	nextProductID int64
	nextSupplier  int64

	ledgerMu sync.Mutex
	ledger   models.ProfitState

	salesMu   sync.Mutex
	sales     []models.Sale
	keys      map[string]int // idempotency key -> index in sales, -1 while pending
	processed map[string]models.ProcessedEvent

	now func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	now := time.Now().UTC()
	return &MemoryStore{
		products:  make(map[int64]*productEntry),
		suppliers: make(map[int64]models.Supplier),
		ledger:    models.ProfitState{Total: decimal.Zero, LastResetAt: now, UpdatedAt: now},
		keys:      make(map[string]int),
		processed: make(map[string]models.ProcessedEvent),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Ping always succeeds
func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (m *MemoryStore) Close() error {
	return nil
}

// GetProduct retrieves a product by ID
func (m *MemoryStore) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	m.catalogMu.RLock()
	defer m.catalogMu.RUnlock()

	e, ok := m.products[id]
	if !ok {
		return nil, apperr.ProductNotFound(id)
	}
	e.mu.Lock()
	p := e.product
	e.mu.Unlock()
	return &p, nil
}

// ListProducts retrieves all products ordered by id
func (m *MemoryStore) ListProducts(ctx context.Context) ([]models.Product, error) {
	m.catalogMu.RLock()
	defer m.catalogMu.RUnlock()

	products := make([]models.Product, 0, len(m.products))
	for _, e := range m.products {
		e.mu.Lock()
		products = append(products, e.product)
		e.mu.Unlock()
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

// CreateProduct inserts a product and fills its generated fields
func (m *MemoryStore) CreateProduct(ctx context.Context, p *models.Product) error {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()

	if p.SupplierID != nil {
		if _, ok := m.suppliers[*p.SupplierID]; !ok {
			return apperr.NotFound("supplier not found: %d", *p.SupplierID)
		}
	}

	m.nextProductID++
	now := m.now()
	p.ID = m.nextProductID
	p.Version = 1
	p.CreatedAt = now
	p.UpdatedAt = now
	m.products[p.ID] = &productEntry{product: *p}
	return nil
}

// UpdateProduct overwrites a product. A non-zero Version must match the stored row.
func (m *MemoryStore) UpdateProduct(ctx context.Context, p *models.Product) error {
	m.catalogMu.RLock()
	defer m.catalogMu.RUnlock()

	e, ok := m.products[p.ID]
	if !ok {
		return apperr.ProductNotFound(p.ID)
	}
	if p.SupplierID != nil {
		if _, ok := m.suppliers[*p.SupplierID]; !ok {
			return apperr.NotFound("supplier not found: %d", *p.SupplierID)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if p.Version != 0 && p.Version != e.product.Version {
		return apperr.Validation("stale version %d for product %d", p.Version, p.ID)
	}
	p.Version = e.product.Version + 1
	p.CreatedAt = e.product.CreatedAt
	p.UpdatedAt = m.now()
	e.product = *p
	return nil
}

// DeleteProduct removes a product
func (m *MemoryStore) DeleteProduct(ctx context.Context, id int64) error {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()

	if _, ok := m.products[id]; !ok {
		return apperr.ProductNotFound(id)
	}
	delete(m.products, id)
	return nil
}

// DecrementStock removes qty units from a single product
func (m *MemoryStore) DecrementStock(ctx context.Context, productID int64, qty int) (int, error) {
	if qty <= 0 {
		return 0, apperr.Validation("quantity must be positive, got %d", qty)
	}

	m.catalogMu.RLock()
	defer m.catalogMu.RUnlock()

	e, ok := m.products[productID]
	if !ok {
		return 0, apperr.ProductNotFound(productID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.product.Stock < qty {
		return 0, apperr.InsufficientStock(productID, e.product.Stock, qty)
	}
	e.product.Stock -= qty
	e.product.Version++
	e.product.UpdatedAt = m.now()
	return e.product.Stock, nil
}

// ApplyBatch decrements stock for every line or for none of them
func (m *MemoryStore) ApplyBatch(ctx context.Context, lines []models.SaleLine) ([]models.AppliedLine, error) {
	m.catalogMu.RLock()
	defer m.catalogMu.RUnlock()

	applied, unlock, err := m.lockAndApply(lines)
	if err != nil {
		return nil, err
	}
	unlock()
	return applied, nil
}

// lockAndApply must be called with catalogMu held for reading. On success
// the product locks stay held until the returned unlock is called.
func (m *MemoryStore) lockAndApply(lines []models.SaleLine) ([]models.AppliedLine, func(), error) {
	if err := checkLines(lines); err != nil {
		return nil, nil, err
	}

	for i, line := range lines {
		if _, ok := m.products[line.ProductID]; !ok {
			return nil, nil, apperr.ProductNotFound(line.ProductID).AtLine(i)
		}
	}

	ids := make([]int64, len(lines))
	for i, line := range lines {
		ids[i] = line.ProductID
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		m.products[id].mu.Lock()
	}
	unlock := func() {
		for i := len(ids) - 1; i >= 0; i-- {
			m.products[ids[i]].mu.Unlock()
		}
	}

	for i, line := range lines {
		p := &m.products[line.ProductID].product
		if p.Stock < line.Quantity {
			unlock()
			return nil, nil, apperr.InsufficientStock(p.ID, p.Stock, line.Quantity).AtLine(i)
		}
	}

	now := m.now()
	applied := make([]models.AppliedLine, 0, len(lines))
	for _, line := range lines {
		p := &m.products[line.ProductID].product
		p.Stock -= line.Quantity
		p.Version++
		p.UpdatedAt = now

		applied = append(applied, models.AppliedLine{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    line.Quantity,
			UnitCost:    p.Cost,
			UnitPrice:   p.SellingPrice,
			StockAfter:  p.Stock,
			Threshold:   p.Threshold(),
		})
	}
	return applied, unlock, nil
}

// CommitSale applies the batch, records the sale and credits its profit to
// the ledger while the product locks are held.
func (m *MemoryStore) CommitSale(ctx context.Context, sale *models.Sale, lines []models.SaleLine) error {
	if sale.IdempotencyKey != nil {
		if err := m.claimKey(*sale.IdempotencyKey); err != nil {
			return err
		}
	}

	m.catalogMu.RLock()
	defer m.catalogMu.RUnlock()

	applied, unlock, err := m.lockAndApply(lines)
	if err != nil {
		if sale.IdempotencyKey != nil {
			m.releaseKey(*sale.IdempotencyKey)
		}
		return err
	}
	defer unlock()

	sale.Settle(applied)
	sale.CreatedAt = m.now()

	m.ledgerMu.Lock()
	m.ledger.Total = m.ledger.Total.Add(sale.Profit)
	m.ledger.UpdatedAt = sale.CreatedAt
	m.ledgerMu.Unlock()

	m.salesMu.Lock()
	m.sales = append(m.sales, *sale)
	if sale.IdempotencyKey != nil {
		m.keys[*sale.IdempotencyKey] = len(m.sales) - 1
	}
	m.salesMu.Unlock()
	return nil
}

func (m *MemoryStore) claimKey(key string) error {
	m.salesMu.Lock()
	defer m.salesMu.Unlock()

	idx, seen := m.keys[key]
	if !seen {
		m.keys[key] = -1
		return nil
	}
	if idx < 0 {
		return apperr.Duplicate(key, nil)
	}
	sale := m.sales[idx]
	return apperr.Duplicate(key, &sale)
}

func (m *MemoryStore) releaseKey(key string) {
	m.salesMu.Lock()
	defer m.salesMu.Unlock()

	if m.keys[key] < 0 {
		delete(m.keys, key)
	}
}

// GetSaleByIdempotencyKey retrieves a sale by idempotency key
func (m *MemoryStore) GetSaleByIdempotencyKey(ctx context.Context, key string) (*models.Sale, error) {
	m.salesMu.Lock()
	defer m.salesMu.Unlock()

	idx, ok := m.keys[key]
	if !ok || idx < 0 {
		return nil, apperr.NotFound("no sale for idempotency key %q", key)
	}
	sale := m.sales[idx]
	return &sale, nil
}

// ListSales retrieves the most recent sales, newest first
func (m *MemoryStore) ListSales(ctx context.Context, limit int) ([]models.Sale, error) {
	m.salesMu.Lock()
	defer m.salesMu.Unlock()

	out := make([]models.Sale, 0, limit)
	for i := len(m.sales) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.sales[i])
	}
	return out, nil
}

// CurrentProfit reads the profit ledger
func (m *MemoryStore) CurrentProfit(ctx context.Context) (*models.ProfitState, error) {
	m.ledgerMu.Lock()
	defer m.ledgerMu.Unlock()

	state := m.ledger
	return &state, nil
}

// CreditProfit adds amount to the ledger and returns the new state
func (m *MemoryStore) CreditProfit(ctx context.Context, amount decimal.Decimal) (*models.ProfitState, error) {
	m.ledgerMu.Lock()
	defer m.ledgerMu.Unlock()

	m.ledger.Total = m.ledger.Total.Add(amount)
	m.ledger.UpdatedAt = m.now()
	state := m.ledger
	return &state, nil
}

// ResetProfit zeroes the ledger and returns the total it held
func (m *MemoryStore) ResetProfit(ctx context.Context) (*models.ProfitReset, error) {
	m.ledgerMu.Lock()
	defer m.ledgerMu.Unlock()

	now := m.now()
	reset := &models.ProfitReset{PreviousTotal: m.ledger.Total, ResetTimestamp: now}
	m.ledger.Total = decimal.Zero
	m.ledger.LastResetAt = now
	m.ledger.UpdatedAt = now
	return reset, nil
}

// CreateSupplier inserts a supplier
func (m *MemoryStore) CreateSupplier(ctx context.Context, sup *models.Supplier) error {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()

	m.nextSupplier++
	now := m.now()
	sup.ID = m.nextSupplier
	sup.CreatedAt = now
	sup.UpdatedAt = now
	m.suppliers[sup.ID] = *sup
	return nil
}

// GetSupplier retrieves a supplier by ID
func (m *MemoryStore) GetSupplier(ctx context.Context, id int64) (*models.Supplier, error) {
	m.catalogMu.RLock()
	defer m.catalogMu.RUnlock()

	sup, ok := m.suppliers[id]
	if !ok {
		return nil, apperr.NotFound("supplier not found: %d", id)
	}
	return &sup, nil
}

// ListSuppliers retrieves all suppliers ordered by id
func (m *MemoryStore) ListSuppliers(ctx context.Context) ([]models.Supplier, error) {
	m.catalogMu.RLock()
	defer m.catalogMu.RUnlock()

	suppliers := make([]models.Supplier, 0, len(m.suppliers))
	for _, sup := range m.suppliers {
		suppliers = append(suppliers, sup)
	}
	sort.Slice(suppliers, func(i, j int) bool { return suppliers[i].ID < suppliers[j].ID })
	return suppliers, nil
}

// UpdateSupplier overwrites a supplier's contact fields
func (m *MemoryStore) UpdateSupplier(ctx context.Context, sup *models.Supplier) error {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()

	existing, ok := m.suppliers[sup.ID]
	if !ok {
		return apperr.NotFound("supplier not found: %d", sup.ID)
	}
	sup.CreatedAt = existing.CreatedAt
	sup.UpdatedAt = m.now()
	m.suppliers[sup.ID] = *sup
	return nil
}

// DeleteSupplier removes a supplier that no product references
func (m *MemoryStore) DeleteSupplier(ctx context.Context, id int64) error {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()

	if _, ok := m.suppliers[id]; !ok {
		return apperr.NotFound("supplier not found: %d", id)
	}

	blocking := []models.ProductRef{}
	for _, e := range m.products {
		if e.product.SupplierID != nil && *e.product.SupplierID == id {
			blocking = append(blocking, models.ProductRef{ID: e.product.ID, Name: e.product.Name})
		}
	}
	if len(blocking) > 0 {
		sort.Slice(blocking, func(i, j int) bool { return blocking[i].ID < blocking[j].ID })
		return apperr.ReferentialConflict(id, blocking)
	}

	delete(m.suppliers, id)
	return nil
}

// IsEventProcessed checks if an event has been processed
func (m *MemoryStore) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	m.salesMu.Lock()
	defer m.salesMu.Unlock()

	_, ok := m.processed[eventID]
	return ok, nil
}

// MarkEventProcessed marks an event as processed
func (m *MemoryStore) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	m.salesMu.Lock()
	defer m.salesMu.Unlock()

	if _, ok := m.processed[eventID]; !ok {
		m.processed[eventID] = models.ProcessedEvent{EventID: eventID, EventType: eventType, ProcessedAt: m.now()}
	}
	return nil
}
