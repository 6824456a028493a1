package service

import (
	"context"

	"inventory-service/internal/models"
	"inventory-service/internal/util"

	"github.com/shopspring/decimal"
)

// ComputeStats derives dashboard metrics from a catalog snapshot
func ComputeStats(products []models.Product) models.InventoryStats {
	stats := models.InventoryStats{
		TotalProducts: len(products),
		TotalValue:    decimal.Zero,
	}
	for i := range products {
		p := &products[i]
		stats.TotalValue = stats.TotalValue.Add(p.Cost.Mul(decimal.NewFromInt(int64(p.Stock))))
		switch {
		case p.Stock == 0:
			stats.OutOfStockItems++
		case p.IsLowStock():
			stats.LowStockItems++
		}
	}
	return stats
}

// StatsAggregator recomputes inventory stats on demand
type StatsAggregator struct {
	catalog CatalogStore
}

// NewStatsAggregator creates a stats aggregator
func NewStatsAggregator(catalog CatalogStore) *StatsAggregator {
	return &StatsAggregator{catalog: catalog}
}

// Stats scans the catalog. The result is a snapshot and may be stale by the
// time it is read.
func (a *StatsAggregator) Stats(ctx context.Context) (*models.InventoryStats, error) {
	ctx, span := util.StartSpan(ctx, "StatsAggregator.Stats")
	defer span.End()

	products, err := a.catalog.ListProducts(ctx)
	if err != nil {
		return nil, wrapTransport("failed to list products", err)
	}
	stats := ComputeStats(products)
	return &stats, nil
}
