package store

import (
	"context"
	"database/sql"
	"errors"

	"inventory-service/internal/apperr"
	"inventory-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateSupplier inserts a supplier
func (s *Store) CreateSupplier(ctx context.Context, sup *models.Supplier) error {
	query := `
		INSERT INTO suppliers (name, contact_person, email, phone, address)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	row := s.db.QueryRowxContext(ctx, query, sup.Name, sup.ContactPerson, sup.Email, sup.Phone, sup.Address)
	if err := row.Scan(&sup.ID, &sup.CreatedAt, &sup.UpdatedAt); err != nil {
		return mapWriteError("failed to create supplier", err, nil)
	}
	return nil
}

// GetSupplier retrieves a supplier by ID
func (s *Store) GetSupplier(ctx context.Context, id int64) (*models.Supplier, error) {
	var sup models.Supplier
	err := s.db.GetContext(ctx, &sup, "SELECT * FROM suppliers WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("supplier not found: %d", id)
	}
	if err != nil {
		return nil, apperr.Transport("failed to get supplier", err)
	}
	return &sup, nil
}

// ListSuppliers retrieves all suppliers
func (s *Store) ListSuppliers(ctx context.Context) ([]models.Supplier, error) {
	suppliers := []models.Supplier{}
	if err := s.db.SelectContext(ctx, &suppliers, "SELECT * FROM suppliers ORDER BY id"); err != nil {
		return nil, apperr.Transport("failed to list suppliers", err)
	}
	return suppliers, nil
}

// UpdateSupplier overwrites a supplier's contact fields
func (s *Store) UpdateSupplier(ctx context.Context, sup *models.Supplier) error {
	query := `
		UPDATE suppliers
		SET name = $1, contact_person = $2, email = $3, phone = $4, address = $5, updated_at = NOW()
		WHERE id = $6
		RETURNING created_at, updated_at`

	row := s.db.QueryRowxContext(ctx, query, sup.Name, sup.ContactPerson, sup.Email, sup.Phone, sup.Address, sup.ID)
	err := row.Scan(&sup.CreatedAt, &sup.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("supplier not found: %d", sup.ID)
	}
	if err != nil {
		return mapWriteError("failed to update supplier", err, nil)
	}
	return nil
}

// DeleteSupplier removes a supplier that no product references.
// The supplier row is locked first so no product can be attached meanwhile.
func (s *Store) DeleteSupplier(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var locked int64
		err := tx.GetContext(ctx, &locked, "SELECT id FROM suppliers WHERE id = $1 FOR UPDATE", id)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("supplier not found: %d", id)
		}
		if err != nil {
			return apperr.Transport("failed to lock supplier", err)
		}

		blocking := []models.ProductRef{}
		if err := tx.SelectContext(ctx, &blocking,
			"SELECT id, name FROM products WHERE supplier_id = $1 ORDER BY id", id); err != nil {
			return apperr.Transport("failed to check supplier references", err)
		}
		if len(blocking) > 0 {
			return apperr.ReferentialConflict(id, blocking)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM suppliers WHERE id = $1", id); err != nil {
			return mapWriteError("failed to delete supplier", err, nil)
		}
		return nil
	})
}
