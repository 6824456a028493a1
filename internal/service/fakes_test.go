package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"inventory-service/internal/models"
	"inventory-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const pendingSale = "__pending__"

// memoryCache implements IdempotencyCache and CatalogCache in process
type memoryCache struct {
	mu       sync.Mutex
	keys     map[string]string
	snapshot []byte
	fail     bool
}

func newMemoryCache() *memoryCache {
	return &memoryCache{keys: make(map[string]string)}
}

var errCacheDown = errors.New("cache down")

func (c *memoryCache) ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return false, errCacheDown
	}
	if _, ok := c.keys[key]; ok {
		return false, nil
	}
	c.keys[key] = pendingSale
	return true, nil
}

func (c *memoryCache) CompleteIdempotencyKey(ctx context.Context, key, saleID string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keys[key] == pendingSale {
		c.keys[key] = saleID
	}
	return nil
}

func (c *memoryCache) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keys[key] == pendingSale {
		delete(c.keys, key)
	}
	return nil
}

func (c *memoryCache) LookupIdempotencyKey(ctx context.Context, key string) (string, bool, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.keys[key]
	if !ok {
		return "", false, false, nil
	}
	if v == pendingSale {
		return "", true, true, nil
	}
	return v, false, true, nil
}

func (c *memoryCache) GetCatalogSnapshot(ctx context.Context) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil {
		return nil, false, nil
	}
	return c.snapshot, true, nil
}

func (c *memoryCache) SetCatalogSnapshot(ctx context.Context, data []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = data
	return nil
}

func (c *memoryCache) InvalidateCatalogSnapshot(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = nil
	return nil
}

// gatedSales holds CommitSale until release is closed
type gatedSales struct {
	SaleStore
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSales) CommitSale(ctx context.Context, sale *models.Sale, lines []models.SaleLine) error {
	close(g.entered)
	<-g.release
	return g.SaleStore.CommitSale(ctx, sale, lines)
}

func addProduct(t *testing.T, st *store.MemoryStore, name string, stock int, cost, price string) *models.Product {
	t.Helper()
	p := &models.Product{
		Name:         name,
		Cost:         decimal.RequireFromString(cost),
		SellingPrice: decimal.RequireFromString(price),
		Stock:        stock,
	}
	require.NoError(t, st.CreateProduct(context.Background(), p))
	return p
}

func stockOf(t *testing.T, st *store.MemoryStore, id int64) int {
	t.Helper()
	p, err := st.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}
