package service

import (
	"context"
	"testing"

	"inventory-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfitLedgerCreditAndReset(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	notifier := NewNotifier()

	var kinds []ChangeKind
	notifier.Subscribe(func(ctx context.Context, change LedgerChange) {
		kinds = append(kinds, change.Kind)
	})
	ledger := NewProfitLedger(st, notifier)

	state, err := ledger.Credit(ctx, decimal.RequireFromString("12.50"))
	require.NoError(t, err)
	assert.Equal(t, "12.50", state.Total.StringFixed(2))

	_, err = ledger.Credit(ctx, decimal.RequireFromString("-2.50"))
	require.NoError(t, err)

	total, err := ledger.CurrentTotal(ctx)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(total))

	before, err := ledger.State(ctx)
	require.NoError(t, err)

	reset, err := ledger.Reset(ctx)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(reset.PreviousTotal))
	assert.False(t, reset.ResetTimestamp.Before(before.LastResetAt))

	after, err := ledger.State(ctx)
	require.NoError(t, err)
	assert.True(t, after.Total.IsZero())
	assert.Equal(t, reset.ResetTimestamp, after.LastResetAt)

	assert.Equal(t, []ChangeKind{ChangeCredit, ChangeCredit, ChangeReset}, kinds)
}

func TestProfitLedgerResetTwice(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	ledger := NewProfitLedger(st, nil)

	_, err := ledger.Credit(ctx, decimal.NewFromInt(3))
	require.NoError(t, err)
	_, err = ledger.Reset(ctx)
	require.NoError(t, err)

	reset, err := ledger.Reset(ctx)
	require.NoError(t, err)
	assert.True(t, reset.PreviousTotal.IsZero())
}

func TestNotifierSurvivesPanickingObserver(t *testing.T) {
	notifier := NewNotifier()
	calls := 0
	notifier.Subscribe(func(ctx context.Context, change LedgerChange) {
		panic("boom")
	})
	notifier.Subscribe(func(ctx context.Context, change LedgerChange) {
		calls++
	})

	assert.NotPanics(t, func() {
		notifier.Notify(context.Background(), LedgerChange{Kind: ChangeSale})
	})
	assert.Equal(t, 1, calls)

	var nilNotifier *Notifier
	assert.NotPanics(t, func() {
		nilNotifier.Notify(context.Background(), LedgerChange{Kind: ChangeReset})
	})
}
