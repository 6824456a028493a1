package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"inventory-service/internal/apperr"
	"inventory-service/internal/models"
	"inventory-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductInputValidate(t *testing.T) {
	bad := int64(-1)
	tests := []struct {
		name string
		in   ProductInput
	}{
		{"missing name", ProductInput{Name: "  "}},
		{"negative cost", ProductInput{Name: "x", Cost: decimal.NewFromInt(-1)}},
		{"negative price", ProductInput{Name: "x", SellingPrice: decimal.NewFromInt(-1)}},
		{"negative stock", ProductInput{Name: "x", Stock: -1}},
		{"negative threshold", ProductInput{Name: "x", LowStockThreshold: -2}},
		{"bad supplier", ProductInput{Name: "x", SupplierID: &bad}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			assert.True(t, errors.Is(err, apperr.ErrValidation))
		})
	}

	ok := ProductInput{Name: "x", Cost: decimal.NewFromInt(1), SellingPrice: decimal.NewFromInt(2), Stock: 0}
	assert.NoError(t, ok.Validate())
}

func TestCatalogServiceProducts(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	svc := NewCatalogService(st, st, nil, 0)
	svc.SetDefaultThreshold(7)

	p, err := svc.CreateProduct(ctx, &ProductInput{
		Name:         " Widget ",
		Cost:         decimal.NewFromInt(3),
		SellingPrice: decimal.NewFromInt(5),
		Stock:        20,
	})
	require.NoError(t, err)
	assert.Equal(t, "Widget", p.Name)
	assert.Equal(t, 7, p.LowStockThreshold)

	missing := int64(99)
	_, err = svc.CreateProduct(ctx, &ProductInput{Name: "Orphan", SupplierID: &missing})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	updated, err := svc.UpdateProduct(ctx, p.ID, &ProductInput{
		Name:              "Widget",
		Cost:              decimal.NewFromInt(3),
		SellingPrice:      decimal.NewFromInt(6),
		Stock:             18,
		LowStockThreshold: 4,
		Version:           p.Version,
	})
	require.NoError(t, err)
	assert.Equal(t, p.Version+1, updated.Version)

	_, err = svc.UpdateProduct(ctx, p.ID, &ProductInput{Name: "Widget", Version: p.Version})
	assert.True(t, errors.Is(err, apperr.ErrValidation), "stale version is refused")

	require.NoError(t, svc.DeleteProduct(ctx, p.ID))
	_, err = svc.GetProduct(ctx, p.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestCatalogServiceSuppliers(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	svc := NewCatalogService(st, st, nil, 0)

	_, err := svc.CreateSupplier(ctx, &SupplierInput{Name: "Acme"})
	assert.True(t, errors.Is(err, apperr.ErrValidation), "contact person is required")

	sup, err := svc.CreateSupplier(ctx, &SupplierInput{Name: "Acme", ContactPerson: "Jo", Email: "jo@acme.test"})
	require.NoError(t, err)

	p, err := svc.CreateProduct(ctx, &ProductInput{Name: "Anvil", SupplierID: &sup.ID})
	require.NoError(t, err)

	err = svc.DeleteSupplier(ctx, sup.ID)
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindReferentialConflict, e.Kind)
	assert.Equal(t, []models.ProductRef{{ID: p.ID, Name: "Anvil"}}, e.Blocking)

	got, err := svc.GetSupplier(ctx, sup.ID)
	require.NoError(t, err)
	assert.Equal(t, "jo@acme.test", got.Email)

	updated, err := svc.UpdateSupplier(ctx, sup.ID, &SupplierInput{Name: "Acme Ltd", ContactPerson: "Jo"})
	require.NoError(t, err)
	assert.Equal(t, "Acme Ltd", updated.Name)

	require.NoError(t, svc.DeleteProduct(ctx, p.ID))
	require.NoError(t, svc.DeleteSupplier(ctx, sup.ID))

	suppliers, err := svc.ListSuppliers(ctx)
	require.NoError(t, err)
	assert.Empty(t, suppliers)
}

func TestSaleCatalogCache(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	cache := newMemoryCache()
	svc := NewCatalogService(st, st, cache, time.Minute)
	a := addProduct(t, st, "A", 5, "10", "15")

	require.NoError(t, svc.WarmSaleCatalog(ctx))
	require.NotNil(t, cache.snapshot)

	items, err := svc.SaleCatalog(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, a.ID, items[0].ID)
	assert.Equal(t, "A", items[0].Name)
	assert.Equal(t, 5, items[0].Stock)
	assert.True(t, decimal.NewFromInt(15).Equal(items[0].SellingPrice))
	assert.True(t, decimal.NewFromInt(10).Equal(items[0].Cost))

	// A sale invalidates the snapshot through the ledger observer
	notifier := NewNotifier()
	notifier.Subscribe(svc.Observer())
	committer := NewSaleCommitter(st, st, notifier)
	txn, _ := NewSaleTransaction([]models.SaleLine{{ProductID: a.ID, Quantity: 2}}, "")
	_, err = committer.Commit(ctx, txn)
	require.NoError(t, err)
	assert.Nil(t, cache.snapshot)

	items, err = svc.SaleCatalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, items[0].Stock)
	assert.NotNil(t, cache.snapshot)

	// Catalog edits invalidate it too
	_, err = svc.CreateProduct(ctx, &ProductInput{Name: "B", Stock: 1})
	require.NoError(t, err)
	assert.Nil(t, cache.snapshot)
}

// racingCatalog runs onList after every product listing
type racingCatalog struct {
	*store.MemoryStore
	onList func()
}

func (r *racingCatalog) ListProducts(ctx context.Context) ([]models.Product, error) {
	products, err := r.MemoryStore.ListProducts(ctx)
	if r.onList != nil {
		r.onList()
	}
	return products, err
}

func TestSaleCatalogDropsSnapshotInvalidatedDuringRead(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	cache := newMemoryCache()
	catalog := &racingCatalog{MemoryStore: st}
	svc := NewCatalogService(catalog, st, cache, time.Minute)
	a := addProduct(t, st, "A", 5, "10", "15")

	catalog.onList = func() {
		catalog.onList = nil
		_, err := st.DecrementStock(ctx, a.ID, 2)
		require.NoError(t, err)
		svc.InvalidateSaleCatalog(ctx)
	}

	items, err := svc.SaleCatalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, items[0].Stock)
	assert.Nil(t, cache.snapshot)

	items, err = svc.SaleCatalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, items[0].Stock)
	assert.NotNil(t, cache.snapshot)
}
