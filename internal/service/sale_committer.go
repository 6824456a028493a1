package service

import (
	"context"
	"time"

	"inventory-service/internal/apperr"
	"inventory-service/internal/cart"
	"inventory-service/internal/models"
	"inventory-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SaleState is the state of a single commit attempt
type SaleState string

const (
	StateEmpty      SaleState = "EMPTY"
	StateValidating SaleState = "VALIDATING"
	StateCommitting SaleState = "COMMITTING"
	StateCommitted  SaleState = "COMMITTED"
	StateRejected   SaleState = "REJECTED"
)

// Terminal reports whether no further transition is possible
func (s SaleState) Terminal() bool {
	return s == StateCommitted || s == StateRejected
}

// SaleTransaction is an immutable, validated list of sale lines
type SaleTransaction struct {
	lines          []models.SaleLine
	idempotencyKey string
}

// NewSaleTransaction validates lines: at least one, positive ids and
// quantities, each product at most once.
func NewSaleTransaction(lines []models.SaleLine, idempotencyKey string) (*SaleTransaction, error) {
	if len(lines) == 0 {
		return nil, apperr.Validation("sale has no lines")
	}

	seen := make(map[int64]struct{}, len(lines))
	for i, line := range lines {
		if line.ProductID <= 0 {
			return nil, apperr.Validation("missing or invalid product id").AtLine(i)
		}
		if line.Quantity <= 0 {
			return nil, apperr.Validation("quantity must be positive, got %d", line.Quantity).AtLine(i)
		}
		if _, dup := seen[line.ProductID]; dup {
			return nil, apperr.Validation("product %d appears more than once", line.ProductID).AtLine(i)
		}
		seen[line.ProductID] = struct{}{}
	}

	owned := make([]models.SaleLine, len(lines))
	copy(owned, lines)
	return &SaleTransaction{lines: owned, idempotencyKey: idempotencyKey}, nil
}

// Lines returns a copy of the transaction lines
func (t *SaleTransaction) Lines() []models.SaleLine {
	out := make([]models.SaleLine, len(t.lines))
	copy(out, t.lines)
	return out
}

// IdempotencyKey returns the caller-supplied key, if any
func (t *SaleTransaction) IdempotencyKey() string {
	return t.idempotencyKey
}

// Outcome is the terminal result of a commit attempt
type Outcome struct {
	State SaleState
	Sale  *models.Sale
}

// SaleCommitter turns a cart or sale transaction into a committed sale
type SaleCommitter struct {
	catalog       CatalogStore
	sales         SaleStore
	idempotency   IdempotencyCache
	notifier      *Notifier
	idemTTL       time.Duration
	commitTimeout time.Duration
	logger        *zap.Logger
}

// CommitterOption configures a SaleCommitter
type CommitterOption func(*SaleCommitter)

// WithIdempotencyCache puts a cache in front of the store's key check
func WithIdempotencyCache(cache IdempotencyCache, ttl time.Duration) CommitterOption {
	return func(c *SaleCommitter) {
		c.idempotency = cache
		c.idemTTL = ttl
	}
}

// WithCommitTimeout bounds how long the committing phase may run
func WithCommitTimeout(d time.Duration) CommitterOption {
	return func(c *SaleCommitter) {
		c.commitTimeout = d
	}
}

// NewSaleCommitter creates a sale committer. notifier may be nil.
func NewSaleCommitter(catalog CatalogStore, sales SaleStore, notifier *Notifier, opts ...CommitterOption) *SaleCommitter {
	c := &SaleCommitter{
		catalog:       catalog,
		sales:         sales,
		notifier:      notifier,
		idemTTL:       24 * time.Hour,
		commitTimeout: 15 * time.Second,
		logger:        util.GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CommitCart commits the cart's lines. On success the cart is cleared; on
// rejection it is left intact so quantities can be corrected and retried.
func (c *SaleCommitter) CommitCart(ctx context.Context, crt *cart.Cart, idempotencyKey string) (*Outcome, error) {
	if crt == nil || crt.IsEmpty() {
		return c.reject(apperr.Validation("cart is empty"))
	}

	txn, err := NewSaleTransaction(crt.SaleLines(), idempotencyKey)
	if err != nil {
		return c.reject(err)
	}

	outcome, err := c.Commit(ctx, txn)
	if err != nil {
		return outcome, err
	}
	crt.Clear()
	return outcome, nil
}

// Commit runs a sale transaction to a terminal state. Cancelling ctx aborts
// validation; once committing has started the attempt runs to completion.
func (c *SaleCommitter) Commit(ctx context.Context, txn *SaleTransaction) (*Outcome, error) {
	ctx, span := util.StartSpan(ctx, "SaleCommitter.Commit")
	defer span.End()

	if txn == nil || len(txn.lines) == 0 {
		return c.reject(apperr.Validation("sale has no lines"))
	}

	key := txn.idempotencyKey
	cached := key != "" && c.idempotency != nil
	if cached {
		if err := c.claim(ctx, key); err != nil {
			return c.reject(err)
		}
	}

	// Validating: re-check against the live catalog, not the cart snapshot.
	if err := c.validate(ctx, txn); err != nil {
		if cached {
			c.release(context.WithoutCancel(ctx), key)
		}
		return c.reject(err)
	}

	// Committing: detached from the caller so it always reaches a terminal state.
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.commitTimeout)
	defer cancel()

	start := time.Now()
	sale := &models.Sale{ID: uuid.New().String()}
	if key != "" {
		sale.IdempotencyKey = &key
	}

	err := c.sales.CommitSale(commitCtx, sale, txn.Lines())
	util.SaleCommitLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		if cached {
			c.settle(commitCtx, key, err)
		}
		return c.reject(err)
	}

	if cached {
		if err := c.idempotency.CompleteIdempotencyKey(commitCtx, key, sale.ID, c.idemTTL); err != nil {
			c.logger.Warn("Failed to complete idempotency key", zap.String("key", key), zap.Error(err))
		}
	}

	util.SalesCommittedTotal.Inc()
	util.SaleLinesCommittedTotal.Add(float64(len(sale.Lines)))
	if f, _ := sale.Profit.Float64(); f > 0 {
		util.ProfitCreditedTotal.Add(f)
	}

	c.logger.Info("Sale committed",
		zap.String("sale_id", sale.ID),
		zap.Int("lines", len(sale.Lines)),
		zap.String("total", sale.TotalAmount.StringFixed(2)),
		zap.String("profit", sale.Profit.StringFixed(2)))

	c.notifier.Notify(commitCtx, LedgerChange{
		Kind:   ChangeSale,
		Sale:   sale,
		Amount: sale.Profit,
		At:     sale.CreatedAt,
	})

	return &Outcome{State: StateCommitted, Sale: sale}, nil
}

// validate is an advisory pre-flight: the store re-checks under lock.
func (c *SaleCommitter) validate(ctx context.Context, txn *SaleTransaction) error {
	for i, line := range txn.lines {
		if err := ctx.Err(); err != nil {
			return apperr.Transport("sale validation cancelled", err)
		}
		p, err := c.catalog.GetProduct(ctx, line.ProductID)
		if err != nil {
			if e, ok := apperr.As(err); ok {
				return e.AtLine(i)
			}
			return apperr.Transport("failed to read product", err).AtLine(i)
		}
		if p.Stock < line.Quantity {
			return apperr.InsufficientStock(p.ID, p.Stock, line.Quantity).AtLine(i)
		}
	}
	return nil
}

// claim reserves key in the cache; an existing claim short-circuits to a
// duplicate. Cache failures fall through to the store's own key check.
func (c *SaleCommitter) claim(ctx context.Context, key string) error {
	ok, err := c.idempotency.ClaimIdempotencyKey(ctx, key, c.idemTTL)
	if err != nil {
		c.logger.Warn("Idempotency cache unavailable, relying on store",
			zap.String("key", key), zap.Error(err))
		return nil
	}
	if ok {
		return nil
	}

	saleID, pending, found, err := c.idempotency.LookupIdempotencyKey(ctx, key)
	if err != nil || !found {
		return nil
	}
	if pending {
		return apperr.Duplicate(key, nil)
	}

	existing, err := c.sales.GetSaleByIdempotencyKey(ctx, key)
	if err != nil {
		c.logger.Warn("Idempotency key cached without stored sale",
			zap.String("key", key), zap.String("sale_id", saleID), zap.Error(err))
		return nil
	}
	return apperr.Duplicate(key, existing)
}

// settle resolves our pending claim after the store refused the sale. A
// duplicate the store already holds is recorded against its sale so later
// retries resolve from the cache; any other claim is dropped.
func (c *SaleCommitter) settle(ctx context.Context, key string, err error) {
	if e, ok := apperr.As(err); ok && e.Kind == apperr.KindDuplicate && e.Sale != nil {
		if err := c.idempotency.CompleteIdempotencyKey(ctx, key, e.Sale.ID, c.idemTTL); err != nil {
			c.logger.Warn("Failed to complete idempotency key", zap.String("key", key), zap.Error(err))
		}
		return
	}
	c.release(ctx, key)
}

func (c *SaleCommitter) release(ctx context.Context, key string) {
	if err := c.idempotency.ReleaseIdempotencyKey(ctx, key); err != nil {
		c.logger.Warn("Failed to release idempotency key", zap.String("key", key), zap.Error(err))
	}
}

func (c *SaleCommitter) reject(err error) (*Outcome, error) {
	kind := apperr.KindOf(err)
	util.SalesRejectedTotal.WithLabelValues(string(kind)).Inc()

	fields := []zap.Field{zap.String("kind", string(kind)), zap.Error(err)}
	if e, ok := apperr.As(err); ok && e.LineIndex != apperr.NoLine {
		fields = append(fields, zap.Int("line_index", e.LineIndex), zap.Int64("product_id", e.ProductID))
	}
	c.logger.Warn("Sale rejected", fields...)

	var sale *models.Sale
	if e, ok := apperr.As(err); ok && e.Kind == apperr.KindDuplicate {
		sale = e.Sale
	}
	return &Outcome{State: StateRejected, Sale: sale}, err
}
