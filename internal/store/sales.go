package store

import (
	"context"
	"database/sql"
	"errors"

	"inventory-service/internal/apperr"
	"inventory-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// CommitSale applies the batch, records the sale and credits its profit to
// the ledger in one transaction.
func (s *Store) CommitSale(ctx context.Context, sale *models.Sale, lines []models.SaleLine) error {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		applied, err := applyBatchTx(ctx, tx, lines)
		if err != nil {
			return err
		}
		sale.Settle(applied)

		err = tx.QueryRowxContext(ctx, `
			INSERT INTO sales (id, idempotency_key, total_amount, profit)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at`,
			sale.ID, sale.IdempotencyKey, sale.TotalAmount, sale.Profit).Scan(&sale.CreatedAt)
		if err != nil {
			return err
		}

		for i, l := range applied {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO sale_lines (sale_id, line_no, product_id, product_name, quantity, unit_cost, unit_price, stock_after)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				sale.ID, i, l.ProductID, l.ProductName, l.Quantity, l.UnitCost, l.UnitPrice, l.StockAfter)
			if err != nil {
				return apperr.Transport("failed to record sale line", err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE profit_ledger SET total = total + $1, updated_at = NOW() WHERE id = 1",
			sale.Profit); err != nil {
			return apperr.Transport("failed to credit profit", err)
		}
		return nil
	})

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation && sale.IdempotencyKey != nil {
		existing, getErr := s.GetSaleByIdempotencyKey(ctx, *sale.IdempotencyKey)
		if getErr != nil {
			return getErr
		}
		return apperr.Duplicate(*sale.IdempotencyKey, existing)
	}
	if err != nil {
		if _, tagged := apperr.As(err); tagged {
			return err
		}
		return apperr.Transport("failed to commit sale", err)
	}
	return nil
}

// GetSaleByIdempotencyKey retrieves a sale by idempotency key
func (s *Store) GetSaleByIdempotencyKey(ctx context.Context, key string) (*models.Sale, error) {
	var sale models.Sale
	err := s.db.GetContext(ctx, &sale, "SELECT * FROM sales WHERE idempotency_key = $1", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no sale for idempotency key %q", key)
	}
	if err != nil {
		return nil, apperr.Transport("failed to get sale", err)
	}

	if err := s.db.SelectContext(ctx, &sale.Lines, `
		SELECT product_id, product_name, quantity, unit_cost, unit_price, stock_after
		FROM sale_lines WHERE sale_id = $1 ORDER BY line_no`, sale.ID); err != nil {
		return nil, apperr.Transport("failed to get sale lines", err)
	}
	return &sale, nil
}

type saleLineRow struct {
	SaleID string `db:"sale_id"`
	models.AppliedLine
}

// ListSales retrieves the most recent sales, newest first
func (s *Store) ListSales(ctx context.Context, limit int) ([]models.Sale, error) {
	sales := []models.Sale{}
	if err := s.db.SelectContext(ctx, &sales,
		"SELECT * FROM sales ORDER BY created_at DESC LIMIT $1", limit); err != nil {
		return nil, apperr.Transport("failed to list sales", err)
	}
	if len(sales) == 0 {
		return sales, nil
	}

	ids := make([]string, len(sales))
	for i := range sales {
		ids[i] = sales[i].ID
	}

	query, args, err := sqlx.In(`
		SELECT sale_id, product_id, product_name, quantity, unit_cost, unit_price, stock_after
		FROM sale_lines WHERE sale_id IN (?) ORDER BY sale_id, line_no`, ids)
	if err != nil {
		return nil, err
	}

	var rows []saleLineRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, apperr.Transport("failed to list sale lines", err)
	}

	bySale := make(map[string][]models.AppliedLine, len(sales))
	for _, r := range rows {
		bySale[r.SaleID] = append(bySale[r.SaleID], r.AppliedLine)
	}
	for i := range sales {
		sales[i].Lines = bySale[sales[i].ID]
	}
	return sales, nil
}

// CurrentProfit reads the profit ledger row
func (s *Store) CurrentProfit(ctx context.Context) (*models.ProfitState, error) {
	var state models.ProfitState
	err := s.db.GetContext(ctx, &state,
		"SELECT total, last_reset_at, updated_at FROM profit_ledger WHERE id = 1")
	if err != nil {
		return nil, apperr.Transport("failed to read profit ledger", err)
	}
	return &state, nil
}

// CreditProfit adds amount to the ledger and returns the new state
func (s *Store) CreditProfit(ctx context.Context, amount decimal.Decimal) (*models.ProfitState, error) {
	var state models.ProfitState
	err := s.db.GetContext(ctx, &state, `
		UPDATE profit_ledger SET total = total + $1, updated_at = NOW()
		WHERE id = 1
		RETURNING total, last_reset_at, updated_at`, amount)
	if err != nil {
		return nil, apperr.Transport("failed to credit profit", err)
	}
	return &state, nil
}

// ResetProfit zeroes the ledger and returns the total it held
func (s *Store) ResetProfit(ctx context.Context) (*models.ProfitReset, error) {
	var reset models.ProfitReset
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &reset.PreviousTotal,
			"SELECT total FROM profit_ledger WHERE id = 1 FOR UPDATE"); err != nil {
			return apperr.Transport("failed to lock profit ledger", err)
		}
		if err := tx.GetContext(ctx, &reset.ResetTimestamp, `
			UPDATE profit_ledger SET total = 0, last_reset_at = NOW(), updated_at = NOW()
			WHERE id = 1
			RETURNING last_reset_at`); err != nil {
			return apperr.Transport("failed to reset profit ledger", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &reset, nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
