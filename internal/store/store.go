package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"time"

	"inventory-service/internal/apperr"
	"inventory-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

// Postgres error codes
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// Store is the Postgres-backed catalog, supplier, sale and ledger store
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Migrate creates the schema if it does not exist
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return apperr.Transport("database ping failed", err)
	}
	return nil
}

// withTx runs fn inside a transaction, committing only if fn succeeds
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Transport("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperr.Transport("failed to commit transaction", err)
	}
	return nil
}

// GetProduct retrieves a product by ID
func (s *Store) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ProductNotFound(id)
	}
	if err != nil {
		return nil, apperr.Transport("failed to get product", err)
	}
	return &product, nil
}

// ListProducts retrieves all products
func (s *Store) ListProducts(ctx context.Context) ([]models.Product, error) {
	products := []models.Product{}
	if err := s.db.SelectContext(ctx, &products, "SELECT * FROM products ORDER BY id"); err != nil {
		return nil, apperr.Transport("failed to list products", err)
	}
	return products, nil
}

// CreateProduct inserts a product and fills its generated fields
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (name, description, cost, selling_price, stock, low_stock_threshold, supplier_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, version, created_at, updated_at`

	row := s.db.QueryRowxContext(ctx, query,
		p.Name, p.Description, p.Cost, p.SellingPrice, p.Stock, p.LowStockThreshold, p.SupplierID)
	if err := row.Scan(&p.ID, &p.Version, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return mapWriteError("failed to create product", err, p.SupplierID)
	}
	return nil
}

// UpdateProduct overwrites a product. A non-zero Version must match the stored row.
func (s *Store) UpdateProduct(ctx context.Context, p *models.Product) error {
	query := `
		UPDATE products
		SET name = $1, description = $2, cost = $3, selling_price = $4, stock = $5,
		    low_stock_threshold = $6, supplier_id = $7, version = version + 1, updated_at = NOW()
		WHERE id = $8 AND ($9::bigint = 0 OR version = $9::bigint)
		RETURNING version, created_at, updated_at`

	row := s.db.QueryRowxContext(ctx, query,
		p.Name, p.Description, p.Cost, p.SellingPrice, p.Stock, p.LowStockThreshold, p.SupplierID, p.ID, p.Version)
	err := row.Scan(&p.Version, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.GetProduct(ctx, p.ID); getErr != nil {
			return getErr
		}
		return apperr.Validation("stale version %d for product %d", p.Version, p.ID)
	}
	if err != nil {
		return mapWriteError("failed to update product", err, p.SupplierID)
	}
	return nil
}

// DeleteProduct removes a product
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return apperr.Transport("failed to delete product", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ProductNotFound(id)
	}
	return nil
}

// DecrementStock removes qty units from a single product
func (s *Store) DecrementStock(ctx context.Context, productID int64, qty int) (int, error) {
	if qty <= 0 {
		return 0, apperr.Validation("quantity must be positive, got %d", qty)
	}

	var newStock int
	err := s.db.GetContext(ctx, &newStock, `
		UPDATE products SET stock = stock - $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND stock >= $1
		RETURNING stock`, qty, productID)
	if errors.Is(err, sql.ErrNoRows) {
		p, getErr := s.GetProduct(ctx, productID)
		if getErr != nil {
			return 0, getErr
		}
		return 0, apperr.InsufficientStock(productID, p.Stock, qty)
	}
	if err != nil {
		return 0, apperr.Transport("failed to decrement stock", err)
	}
	return newStock, nil
}

// ApplyBatch decrements stock for every line or for none of them
func (s *Store) ApplyBatch(ctx context.Context, lines []models.SaleLine) ([]models.AppliedLine, error) {
	var applied []models.AppliedLine
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		applied, err = applyBatchTx(ctx, tx, lines)
		return err
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

// applyBatchTx locks the rows in id order (FOR UPDATE), validates every line
// against the locked values and only then writes.
func applyBatchTx(ctx context.Context, tx *sqlx.Tx, lines []models.SaleLine) ([]models.AppliedLine, error) {
	if err := checkLines(lines); err != nil {
		return nil, err
	}

	ids := make([]int64, len(lines))
	for i, line := range lines {
		ids[i] = line.ProductID
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?) ORDER BY id FOR UPDATE", ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build lock query: %w", err)
	}

	var locked []models.Product
	if err := tx.SelectContext(ctx, &locked, tx.Rebind(query), args...); err != nil {
		return nil, apperr.Transport("failed to lock products", err)
	}

	byID := make(map[int64]*models.Product, len(locked))
	for i := range locked {
		byID[locked[i].ID] = &locked[i]
	}

	for i, line := range lines {
		p, ok := byID[line.ProductID]
		if !ok {
			return nil, apperr.ProductNotFound(line.ProductID).AtLine(i)
		}
		if p.Stock < line.Quantity {
			return nil, apperr.InsufficientStock(p.ID, p.Stock, line.Quantity).AtLine(i)
		}
	}

	applied := make([]models.AppliedLine, 0, len(lines))
	for _, line := range lines {
		p := byID[line.ProductID]

		var newStock int
		err := tx.GetContext(ctx, &newStock, `
			UPDATE products SET stock = stock - $1, version = version + 1, updated_at = NOW()
			WHERE id = $2
			RETURNING stock`, line.Quantity, line.ProductID)
		if err != nil {
			return nil, apperr.Transport("failed to decrement stock", err)
		}

		applied = append(applied, models.AppliedLine{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    line.Quantity,
			UnitCost:    p.Cost,
			UnitPrice:   p.SellingPrice,
			StockAfter:  newStock,
			Threshold:   p.Threshold(),
		})
	}

	return applied, nil
}

// mapWriteError translates constraint violations into tagged errors
func mapWriteError(op string, err error, supplierID *int64) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqForeignKeyViolation:
			if supplierID != nil {
				return apperr.NotFound("supplier not found: %d", *supplierID)
			}
			return apperr.NotFound("referenced record not found")
		case pqUniqueViolation:
			return apperr.Validation("%s: duplicate value", op)
		}
		if pqErr.Code.Class() == "23" {
			return apperr.Validation("%s: %s", op, pqErr.Message)
		}
	}
	return apperr.Transport(op, err)
}
