package service

import (
	"context"

	"inventory-service/internal/apperr"
	"inventory-service/internal/models"
	"inventory-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProfitLedger is the running profit total since the last reset. Sale
// credits are applied by the sale store inside the commit; Credit is for
// manual adjustments.
type ProfitLedger struct {
	store    LedgerStore
	notifier *Notifier
	logger   *zap.Logger
}

// NewProfitLedger creates a profit ledger. notifier may be nil.
func NewProfitLedger(store LedgerStore, notifier *Notifier) *ProfitLedger {
	return &ProfitLedger{
		store:    store,
		notifier: notifier,
		logger:   util.GetLogger(),
	}
}

// Credit adds amount (of any sign) to the running total
func (l *ProfitLedger) Credit(ctx context.Context, amount decimal.Decimal) (*models.ProfitState, error) {
	ctx, span := util.StartSpan(ctx, "ProfitLedger.Credit")
	defer span.End()

	state, err := l.store.CreditProfit(ctx, amount)
	if err != nil {
		return nil, wrapTransport("failed to credit profit", err)
	}

	util.ProfitLedgerTotal.Set(toFloat(state.Total))
	l.logger.Info("Profit credited",
		zap.String("amount", amount.StringFixed(2)),
		zap.String("total", state.Total.StringFixed(2)))

	total := state.Total
	l.notifier.Notify(ctx, LedgerChange{
		Kind:   ChangeCredit,
		Amount: amount,
		Total:  &total,
		At:     state.UpdatedAt,
	})
	return state, nil
}

// State returns the ledger total and the time of the last reset
func (l *ProfitLedger) State(ctx context.Context) (*models.ProfitState, error) {
	ctx, span := util.StartSpan(ctx, "ProfitLedger.State")
	defer span.End()

	state, err := l.store.CurrentProfit(ctx)
	if err != nil {
		return nil, wrapTransport("failed to read profit", err)
	}
	return state, nil
}

// CurrentTotal returns the sum of credits since the last reset
func (l *ProfitLedger) CurrentTotal(ctx context.Context) (decimal.Decimal, error) {
	state, err := l.State(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return state.Total, nil
}

// Reset zeroes the total and returns the total it held. A sale already
// committing when Reset runs lands its credit after the reset.
func (l *ProfitLedger) Reset(ctx context.Context) (*models.ProfitReset, error) {
	ctx, span := util.StartSpan(ctx, "ProfitLedger.Reset")
	defer span.End()

	reset, err := l.store.ResetProfit(ctx)
	if err != nil {
		return nil, wrapTransport("failed to reset profit", err)
	}

	util.ProfitResetsTotal.Inc()
	util.ProfitLedgerTotal.Set(0)
	l.logger.Info("Profit ledger reset",
		zap.String("previous_total", reset.PreviousTotal.StringFixed(2)),
		zap.Time("reset_at", reset.ResetTimestamp))

	l.notifier.Notify(ctx, LedgerChange{
		Kind:   ChangeReset,
		Reset:  reset,
		Amount: reset.PreviousTotal.Neg(),
		At:     reset.ResetTimestamp,
	})
	return reset, nil
}

// wrapTransport keeps tagged errors and tags anything else as a transport failure
func wrapTransport(op string, err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.Transport(op, err)
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
