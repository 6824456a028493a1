package service

import (
	"context"
	"time"

	"inventory-service/internal/apperr"
	"inventory-service/internal/cart"
	"inventory-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartView is a read-only copy of a cart session
type CartView struct {
	ID    string          `json:"id"`
	Lines []cart.Line     `json:"lines"`
	Total decimal.Decimal `json:"total"`
}

// CartSessions drives server-held carts: lines are added from catalog
// snapshots and checked out through the sale committer.
type CartSessions struct {
	registry  *cart.Registry
	catalog   CatalogStore
	committer *SaleCommitter
	logger    *zap.Logger
}

// NewCartSessions creates a cart session service
func NewCartSessions(registry *cart.Registry, catalog CatalogStore, committer *SaleCommitter) *CartSessions {
	return &CartSessions{
		registry:  registry,
		catalog:   catalog,
		committer: committer,
		logger:    util.GetLogger(),
	}
}

// Open starts an empty cart session
func (s *CartSessions) Open() CartView {
	id := s.registry.Open()
	util.CartSessionsOpen.Set(float64(s.registry.Len()))
	return CartView{ID: id, Lines: []cart.Line{}, Total: decimal.Zero}
}

// View returns the session's lines and total
func (s *CartSessions) View(id string) (*CartView, error) {
	var view *CartView
	err := s.with(id, func(c *cart.Cart) error {
		view = snapshot(id, c)
		return nil
	})
	return view, err
}

// AddProduct adds one unit of the product using a fresh catalog snapshot.
// When the product has sold out its existing line is dropped and the
// updated view is returned together with InsufficientStock.
func (s *CartSessions) AddProduct(ctx context.Context, id string, productID int64) (*CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartSessions.AddProduct")
	defer span.End()

	if productID <= 0 {
		return nil, apperr.Validation("missing or invalid product id")
	}
	p, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, wrapTransport("failed to get product", err)
	}

	var view *CartView
	err = s.with(id, func(c *cart.Cart) error {
		if !c.AddLine(*p) {
			if _, ok := c.Line(productID); !ok {
				view = snapshot(id, c)
				return apperr.InsufficientStock(productID, p.Stock, 1)
			}
		}
		view = snapshot(id, c)
		return nil
	})
	return view, err
}

// SetQuantity clamps the line to its stock ceiling; a quantity <= 0 removes it
func (s *CartSessions) SetQuantity(id string, productID int64, quantity int) (*CartView, error) {
	var view *CartView
	err := s.with(id, func(c *cart.Cart) error {
		if _, ok := c.Line(productID); !ok {
			return apperr.NotFound("product %d is not in the cart", productID)
		}
		c.SetQuantity(productID, quantity)
		view = snapshot(id, c)
		return nil
	})
	return view, err
}

// RemoveProduct drops the product's line
func (s *CartSessions) RemoveProduct(id string, productID int64) (*CartView, error) {
	var view *CartView
	err := s.with(id, func(c *cart.Cart) error {
		c.RemoveLine(productID)
		view = snapshot(id, c)
		return nil
	})
	return view, err
}

// Checkout commits the cart. The session survives a rejection with its
// lines intact and is closed after a successful commit.
func (s *CartSessions) Checkout(ctx context.Context, id, idempotencyKey string) (*Outcome, error) {
	var outcome *Outcome
	err := s.with(id, func(c *cart.Cart) error {
		var err error
		outcome, err = s.committer.CommitCart(ctx, c, idempotencyKey)
		return err
	})
	if err != nil {
		return outcome, err
	}

	s.registry.Abandon(id)
	util.CartSessionsOpen.Set(float64(s.registry.Len()))
	return outcome, nil
}

// Abandon discards the session without touching the catalog
func (s *CartSessions) Abandon(id string) error {
	if !s.registry.Abandon(id) {
		return apperr.NotFound("cart session not found: %s", id)
	}
	util.CartSessionsOpen.Set(float64(s.registry.Len()))
	s.logger.Debug("Cart session abandoned", zap.String("cart_id", id))
	return nil
}

// Sweep drops idle sessions
func (s *CartSessions) Sweep() int {
	removed := s.registry.Sweep()
	util.CartSessionsOpen.Set(float64(s.registry.Len()))
	if removed > 0 {
		s.logger.Info("Expired cart sessions removed", zap.Int("count", removed))
	}
	return removed
}

// RunSweeper sweeps idle sessions every interval until ctx is done
func (s *CartSessions) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *CartSessions) with(id string, fn func(c *cart.Cart) error) error {
	found, err := s.registry.With(id, fn)
	if !found {
		return apperr.NotFound("cart session not found: %s", id)
	}
	return err
}

func snapshot(id string, c *cart.Cart) *CartView {
	return &CartView{ID: id, Lines: c.Lines(), Total: c.Total()}
}
