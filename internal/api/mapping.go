package api

import (
	"inventory-service/internal/models"
	"inventory-service/internal/service"

	"github.com/shopspring/decimal"
)

// productRequest is the wire form of a product. Older clients send
// "quantity" for stock and "supplier_id" for the supplier reference.
type productRequest struct {
	Name              string          `json:"name" binding:"required"`
	Description       string          `json:"description"`
	Cost              decimal.Decimal `json:"cost"`
	SellingPrice      decimal.Decimal `json:"sellingPrice"`
	Stock             *int            `json:"stock"`
	Quantity          *int            `json:"quantity"`
	LowStockThreshold int             `json:"lowStockThreshold"`
	SupplierID        *int64          `json:"supplierId"`
	SupplierIDLegacy  *int64          `json:"supplier_id"`
	Version           int64           `json:"version"`
}

func (r *productRequest) toInput() *service.ProductInput {
	in := &service.ProductInput{
		Name:              r.Name,
		Description:       r.Description,
		Cost:              r.Cost,
		SellingPrice:      r.SellingPrice,
		LowStockThreshold: r.LowStockThreshold,
		SupplierID:        r.SupplierID,
		Version:           r.Version,
	}
	switch {
	case r.Stock != nil:
		in.Stock = *r.Stock
	case r.Quantity != nil:
		in.Stock = *r.Quantity
	}
	if in.SupplierID == nil {
		in.SupplierID = r.SupplierIDLegacy
	}
	return in
}

// productResponse mirrors stock as "quantity" for older clients
type productResponse struct {
	models.Product
	Quantity int  `json:"quantity"`
	LowStock bool `json:"lowStock"`
}

func toProductResponse(p *models.Product) productResponse {
	return productResponse{Product: *p, Quantity: p.Stock, LowStock: p.IsLowStock()}
}

func toProductResponses(products []models.Product) []productResponse {
	out := make([]productResponse, len(products))
	for i := range products {
		out[i] = toProductResponse(&products[i])
	}
	return out
}

type supplierRequest struct {
	Name                string `json:"name" binding:"required"`
	ContactPerson       string `json:"contactPerson"`
	ContactPersonLegacy string `json:"contact_person"`
	Email               string `json:"email"`
	Phone               string `json:"phone"`
	Address             string `json:"address"`
}

func (r *supplierRequest) toInput() *service.SupplierInput {
	contact := r.ContactPerson
	if contact == "" {
		contact = r.ContactPersonLegacy
	}
	return &service.SupplierInput{
		Name:          r.Name,
		ContactPerson: contact,
		Email:         r.Email,
		Phone:         r.Phone,
		Address:       r.Address,
	}
}

type saleRequest struct {
	Items          []models.SaleLine `json:"items"`
	IdempotencyKey string            `json:"idempotencyKey"`
}

type saleResponse struct {
	SaleID       string               `json:"saleId"`
	State        service.SaleState    `json:"state"`
	AppliedStock map[int64]int        `json:"appliedStock"`
	TotalAmount  decimal.Decimal      `json:"totalAmount"`
	Profit       decimal.Decimal      `json:"profit"`
	Lines        []models.AppliedLine `json:"lines"`
}

func toSaleResponse(o *service.Outcome) saleResponse {
	return saleResponse{
		SaleID:       o.Sale.ID,
		State:        o.State,
		AppliedStock: o.Sale.AppliedStock(),
		TotalAmount:  o.Sale.TotalAmount,
		Profit:       o.Sale.Profit,
		Lines:        o.Sale.Lines,
	}
}

type adjustmentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

type cartItemRequest struct {
	ID int64 `json:"id" binding:"required"`
}

type cartQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type checkoutRequest struct {
	IdempotencyKey string `json:"idempotencyKey"`
}
