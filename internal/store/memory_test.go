package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"inventory-service/internal/apperr"
	"inventory-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedProduct(t *testing.T, m *MemoryStore, name string, stock int, cost, price int64) *models.Product {
	t.Helper()
	p := &models.Product{
		Name:         name,
		Cost:         decimal.NewFromInt(cost),
		SellingPrice: decimal.NewFromInt(price),
		Stock:        stock,
	}
	require.NoError(t, m.CreateProduct(context.Background(), p))
	return p
}

func TestMemoryDecrementStock(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	p := seedProduct(t, m, "A", 5, 10, 15)

	left, err := m.DecrementStock(ctx, p.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, left)

	_, err = m.DecrementStock(ctx, p.ID, 3)
	assert.True(t, errors.Is(err, apperr.ErrInsufficientStock))

	_, err = m.DecrementStock(ctx, 999, 1)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = m.DecrementStock(ctx, p.ID, 0)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	got, err := m.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Stock)
}

func TestMemoryApplyBatchIsAtomic(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	a := seedProduct(t, m, "A", 5, 1, 2)
	b := seedProduct(t, m, "B", 1, 1, 2)

	_, err := m.ApplyBatch(ctx, []models.SaleLine{
		{ProductID: a.ID, Quantity: 2},
		{ProductID: b.ID, Quantity: 2},
	})
	require.Error(t, err)

	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindInsufficientStock, e.Kind)
	assert.Equal(t, 1, e.LineIndex)
	assert.Equal(t, b.ID, e.ProductID)

	gotA, _ := m.GetProduct(ctx, a.ID)
	gotB, _ := m.GetProduct(ctx, b.ID)
	assert.Equal(t, 5, gotA.Stock)
	assert.Equal(t, 1, gotB.Stock)
}

func TestMemoryApplyBatchRejectsBadLines(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	a := seedProduct(t, m, "A", 5, 1, 2)

	tests := []struct {
		name  string
		lines []models.SaleLine
		kind  apperr.Kind
		index int
	}{
		{"empty", nil, apperr.KindValidation, apperr.NoLine},
		{"zero quantity", []models.SaleLine{{ProductID: a.ID, Quantity: 0}}, apperr.KindValidation, 0},
		{"duplicate product", []models.SaleLine{{ProductID: a.ID, Quantity: 1}, {ProductID: a.ID, Quantity: 1}}, apperr.KindValidation, 1},
		{"unknown product", []models.SaleLine{{ProductID: a.ID, Quantity: 1}, {ProductID: 42, Quantity: 1}}, apperr.KindNotFound, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.ApplyBatch(ctx, tt.lines)
			e, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.kind, e.Kind)
			assert.Equal(t, tt.index, e.LineIndex)
		})
	}

	got, _ := m.GetProduct(ctx, a.ID)
	assert.Equal(t, 5, got.Stock)
}

func TestMemoryConcurrentSalesNeverOversell(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	a := seedProduct(t, m, "A", 50, 10, 15)
	b := seedProduct(t, m, "B", 30, 2, 5)

	var wg sync.WaitGroup
	var mu sync.Mutex
	committed := 0

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Alternate line order so lock ordering is exercised
			lines := []models.SaleLine{{ProductID: a.ID, Quantity: 1}, {ProductID: b.ID, Quantity: 1}}
			if i%2 == 1 {
				lines[0], lines[1] = lines[1], lines[0]
			}
			err := m.CommitSale(ctx, &models.Sale{ID: uuid.NewString()}, lines)
			if err == nil {
				mu.Lock()
				committed++
				mu.Unlock()
				return
			}
			assert.True(t, errors.Is(err, apperr.ErrInsufficientStock))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 30, committed)

	gotA, _ := m.GetProduct(ctx, a.ID)
	gotB, _ := m.GetProduct(ctx, b.ID)
	assert.Equal(t, 20, gotA.Stock)
	assert.Equal(t, 0, gotB.Stock)

	profit, err := m.CurrentProfit(ctx)
	require.NoError(t, err)
	// 30 sales of (15-10) + (5-2)
	assert.True(t, decimal.NewFromInt(30*8).Equal(profit.Total), profit.Total.String())
}

func TestMemoryCommitSaleIdempotencyKey(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	a := seedProduct(t, m, "A", 5, 10, 15)

	key := "checkout-1"
	first := &models.Sale{ID: uuid.NewString(), IdempotencyKey: &key}
	require.NoError(t, m.CommitSale(ctx, first, []models.SaleLine{{ProductID: a.ID, Quantity: 1}}))

	err := m.CommitSale(ctx, &models.Sale{ID: uuid.NewString(), IdempotencyKey: &key}, []models.SaleLine{{ProductID: a.ID, Quantity: 1}})
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindDuplicate, e.Kind)
	require.NotNil(t, e.Sale)
	assert.Equal(t, first.ID, e.Sale.ID)

	got, _ := m.GetProduct(ctx, a.ID)
	assert.Equal(t, 4, got.Stock)

	stored, err := m.GetSaleByIdempotencyKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, first.ID, stored.ID)
}

func TestMemoryRejectedSaleReleasesKey(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	a := seedProduct(t, m, "A", 1, 10, 15)

	key := "retry-me"
	err := m.CommitSale(ctx, &models.Sale{ID: uuid.NewString(), IdempotencyKey: &key}, []models.SaleLine{{ProductID: a.ID, Quantity: 2}})
	require.True(t, errors.Is(err, apperr.ErrInsufficientStock))

	// The corrected retry with the same key goes through
	err = m.CommitSale(ctx, &models.Sale{ID: uuid.NewString(), IdempotencyKey: &key}, []models.SaleLine{{ProductID: a.ID, Quantity: 1}})
	assert.NoError(t, err)
}

func TestMemoryProfitLedgerReset(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	_, err := m.CreditProfit(ctx, decimal.NewFromInt(12))
	require.NoError(t, err)
	_, err = m.CreditProfit(ctx, decimal.NewFromInt(-2))
	require.NoError(t, err)

	reset, err := m.ResetProfit(ctx)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(reset.PreviousTotal))

	state, err := m.CurrentProfit(ctx)
	require.NoError(t, err)
	assert.True(t, state.Total.IsZero())
	assert.Equal(t, reset.ResetTimestamp, state.LastResetAt)
}

func TestMemoryDeleteReferencedSupplier(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	sup := &models.Supplier{Name: "Acme", ContactPerson: "Jo"}
	require.NoError(t, m.CreateSupplier(ctx, sup))
	other := &models.Supplier{Name: "Other", ContactPerson: "Al"}
	require.NoError(t, m.CreateSupplier(ctx, other))

	p1 := &models.Product{Name: "Anvil", SupplierID: &sup.ID}
	p2 := &models.Product{Name: "Rope", SupplierID: &sup.ID}
	p3 := &models.Product{Name: "Nail", SupplierID: &other.ID}
	for _, p := range []*models.Product{p1, p2, p3} {
		require.NoError(t, m.CreateProduct(ctx, p))
	}

	err := m.DeleteSupplier(ctx, sup.ID)
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindReferentialConflict, e.Kind)
	assert.Equal(t, []models.ProductRef{{ID: p1.ID, Name: "Anvil"}, {ID: p2.ID, Name: "Rope"}}, e.Blocking)

	_, err = m.GetSupplier(ctx, sup.ID)
	assert.NoError(t, err)
	products, _ := m.ListProducts(ctx)
	assert.Len(t, products, 3)

	require.NoError(t, m.DeleteProduct(ctx, p3.ID))
	assert.NoError(t, m.DeleteSupplier(ctx, other.ID))
}

func TestMemoryCreateProductUnknownSupplier(t *testing.T) {
	m := NewMemoryStore()
	missing := int64(7)
	err := m.CreateProduct(context.Background(), &models.Product{Name: "X", SupplierID: &missing})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestMemoryUpdateProductVersion(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	p := seedProduct(t, m, "A", 5, 1, 2)

	update := *p
	update.Stock = 8
	require.NoError(t, m.UpdateProduct(ctx, &update))
	assert.Equal(t, int64(2), update.Version)

	stale := *p
	err := m.UpdateProduct(ctx, &stale)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	got, _ := m.GetProduct(ctx, p.ID)
	assert.Equal(t, 8, got.Stock)
}
