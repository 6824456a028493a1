package service

import (
	"context"
	"sync"
	"time"

	"inventory-service/internal/models"
	"inventory-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ChangeKind tells observers why the ledger changed
type ChangeKind string

const (
	ChangeSale   ChangeKind = "sale"
	ChangeReset  ChangeKind = "reset"
	ChangeCredit ChangeKind = "credit"
)

// LedgerChange is delivered to observers after a change is durable
type LedgerChange struct {
	Kind   ChangeKind
	Sale   *models.Sale
	Reset  *models.ProfitReset
	Amount decimal.Decimal
	Total  *decimal.Decimal
	At     time.Time
}

// Observer receives ledger changes
type Observer func(ctx context.Context, change LedgerChange)

// Notifier fans ledger changes out to subscribed observers. Observers run
// synchronously in subscription order; a panicking observer is logged and
// skipped.
type Notifier struct {
	mu        sync.RWMutex
	observers []Observer
	logger    *zap.Logger
}

// NewNotifier creates a notifier without observers
func NewNotifier() *Notifier {
	return &Notifier{logger: util.GetLogger()}
}

// Subscribe registers an observer
func (n *Notifier) Subscribe(o Observer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.observers = append(n.observers, o)
}

// Notify delivers change to every observer
func (n *Notifier) Notify(ctx context.Context, change LedgerChange) {
	if n == nil {
		return
	}

	n.mu.RLock()
	observers := make([]Observer, len(n.observers))
	copy(observers, n.observers)
	n.mu.RUnlock()

	for _, o := range observers {
		n.deliver(ctx, o, change)
	}
}

func (n *Notifier) deliver(ctx context.Context, o Observer, change LedgerChange) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("Ledger observer panicked",
				zap.String("kind", string(change.Kind)),
				zap.Any("panic", r))
		}
	}()
	o(ctx, change)
}
