package store

import (
	"inventory-service/internal/apperr"
	"inventory-service/internal/models"
)

// checkLines rejects empty batches, non-positive quantities and repeated products
func checkLines(lines []models.SaleLine) error {
	if len(lines) == 0 {
		return apperr.Validation("batch has no lines")
	}

	seen := make(map[int64]struct{}, len(lines))
	for i, line := range lines {
		if line.ProductID <= 0 {
			return apperr.Validation("invalid product id %d", line.ProductID).AtLine(i)
		}
		if line.Quantity <= 0 {
			return apperr.Validation("quantity must be positive, got %d", line.Quantity).AtLine(i)
		}
		if _, dup := seen[line.ProductID]; dup {
			return apperr.Validation("product %d appears more than once", line.ProductID).AtLine(i)
		}
		seen[line.ProductID] = struct{}{}
	}
	return nil
}
