package service

import (
	"context"

	"inventory-service/internal/models"
	"inventory-service/internal/util"
)

const (
	DefaultSaleHistoryLimit = 50
	MaxSaleHistoryLimit     = 500
)

// RecentSales lists committed sales, newest first. limit is clamped to
// [1, MaxSaleHistoryLimit]; zero selects the default.
func (c *SaleCommitter) RecentSales(ctx context.Context, limit int) ([]models.Sale, error) {
	ctx, span := util.StartSpan(ctx, "SaleCommitter.RecentSales")
	defer span.End()

	switch {
	case limit <= 0:
		limit = DefaultSaleHistoryLimit
	case limit > MaxSaleHistoryLimit:
		limit = MaxSaleHistoryLimit
	}

	sales, err := c.sales.ListSales(ctx, limit)
	if err != nil {
		return nil, wrapTransport("failed to list sales", err)
	}
	return sales, nil
}
