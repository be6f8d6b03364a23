package ledger

import (
	"context"
	"errors"
	"testing"

	"lv-tradesim/internal/apperr"
	"lv-tradesim/internal/events"
	"lv-tradesim/internal/model"
	"lv-tradesim/internal/pricefeed"
	"lv-tradesim/internal/store"
	"lv-tradesim/internal/types"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertIdentity(t *testing.T, acc model.Account) {
	t.Helper()
	want := acc.Balance.Add(acc.RealizedPnL).Sub(acc.UsedMargin)
	assert.True(t, want.Equal(acc.AvailableFunds), "available %s, want %s", acc.AvailableFunds, want)
	assert.False(t, acc.UsedMargin.IsNegative())
}

func TestReserveReleaseKeepsIdentity(t *testing.T) {
	acc := model.NewAccount("u1", d("10000"))
	require.NoError(t, ReserveMargin(&acc, d("1200")))
	assertIdentity(t, acc)
	require.NoError(t, ReserveMargin(&acc, d("300.5")))
	assertIdentity(t, acc)
	ReleaseMargin(&acc, d("1200"), d("-45.25"))
	assertIdentity(t, acc)
	ReleaseMargin(&acc, d("300.5"), d("100"))
	assertIdentity(t, acc)
	assert.True(t, acc.UsedMargin.IsZero())
	assert.Equal(t, "54.75", acc.RealizedPnL.String())
}

func TestReserveRejectsOverdraw(t *testing.T) {
	acc := model.NewAccount("u1", d("100"))
	err := ReserveMargin(&acc, d("100.01"))
	require.Error(t, err)
	assert.Equal(t, apperr.KindInsufficientFunds, apperr.KindOf(err))
	assert.True(t, acc.UsedMargin.IsZero())

	err = ReserveMargin(&acc, d("-1"))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestReleaseFloorsUsedMargin(t *testing.T) {
	acc := model.NewAccount("u1", d("100"))
	require.NoError(t, ReserveMargin(&acc, d("10")))
	ReleaseMargin(&acc, d("25"), decimal.Zero)
	assert.True(t, acc.UsedMargin.IsZero())
	assertIdentity(t, acc)
}

func TestDepositValidatesAmount(t *testing.T) {
	acc := model.NewAccount("u1", d("100"))
	require.NoError(t, Deposit(&acc, d("50")))
	assert.Equal(t, "150", acc.Balance.String())
	assertIdentity(t, acc)
	assert.Error(t, Deposit(&acc, decimal.Zero))
}

func TestSnapshotUsesOraclePrices(t *testing.T) {
	prices := pricefeed.NewStore()
	require.NoError(t, prices.Set("BTCUSD", d("110")))
	acc := model.NewAccount("u1", d("1000"))
	require.NoError(t, ReserveMargin(&acc, d("20")))
	open := []model.Position{
		{Symbol: "BTCUSD", Side: types.OrderSideBuy, Qty: d("2"), EntryPrice: d("100"), MarginRequired: d("4")},
		{Symbol: "NOQUOTE", Side: types.OrderSideSell, Qty: d("1"), EntryPrice: d("50"), MarginRequired: d("16")},
	}
	snap, withPnL := Snapshot(acc, open, prices)
	assert.Equal(t, "270", snap.Exposure.String())
	assert.Equal(t, "1020", snap.Equity.String())
	assert.Equal(t, "5100", snap.MarginLevel.String())
	assert.Equal(t, "20", withPnL[0].UnrealizedPnL.String())
	assert.True(t, withPnL[1].UnrealizedPnL.IsZero())
}

func TestSnapshotZeroMarginLevelWithoutMargin(t *testing.T) {
	snap, _ := Snapshot(model.NewAccount("u1", d("10")), nil, nil)
	assert.True(t, snap.MarginLevel.IsZero())
	assert.Equal(t, "10", snap.Equity.String())
}

type capture struct{ got []events.Event }

func (c *capture) Emit(evt events.Event) { c.got = append(c.got, evt) }

func TestServiceCreatesAccountLazilyAndRollsBackOnError(t *testing.T) {
	mem := store.NewMemoryStore()
	bus := &capture{}
	svc := NewService(mem.Repositories(), pricefeed.NewStore(), bus, nil, d("10000"), zerolog.Nop())
	ctx := context.Background()

	err := svc.WithAccount(ctx, "u1", func(_ context.Context, acc *model.Account) error {
		if err := ReserveMargin(acc, d("500")); err != nil {
			return err
		}
		return apperr.Validation("boom")
	})
	require.Error(t, err)
	_, err = mem.GetAccount(ctx, "u1")
	require.ErrorIs(t, err, store.ErrNotFound)

	snap, err := svc.Deposit(ctx, "u1", d("250"))
	require.NoError(t, err)
	assert.Equal(t, "10250", snap.Balance.String())
	require.Len(t, bus.got, 1)
	assert.Equal(t, types.EventAccountMetricsUpdate, bus.got[0].Type)
	assert.Equal(t, "u1", bus.got[0].UserID)
}

func TestWithAccountRollsBackEveryWrite(t *testing.T) {
	mem := store.NewMemoryStore()
	svc := NewService(mem.Repositories(), pricefeed.NewStore(), nil, nil, d("10000"), zerolog.Nop())
	ctx := context.Background()
	_, err := svc.Deposit(ctx, "u1", d("1"))
	require.NoError(t, err)

	committed := false
	err = svc.WithAccount(ctx, "u1", func(ctx context.Context, acc *model.Account) error {
		require.NoError(t, ReserveMargin(acc, d("500")))
		require.NoError(t, mem.SaveOrder(ctx, model.Order{ID: "o1", UserID: "u1"}))
		require.NoError(t, mem.SavePosition(ctx, model.Position{ID: "p1", UserID: "u1"}))
		store.AfterCommit(ctx, func() { committed = true })
		return errors.New("disk full")
	})
	require.EqualError(t, err, "disk full")
	assert.False(t, committed)

	acc, err := mem.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, acc.UsedMargin.IsZero())
	_, err = mem.GetOrder(ctx, "o1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = mem.GetPosition(ctx, "p1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestServiceRequiresUser(t *testing.T) {
	svc := NewService(store.NewMemoryStore().Repositories(), nil, nil, nil, d("1"), zerolog.Nop())
	err := svc.WithAccount(context.Background(), "", func(context.Context, *model.Account) error { return nil })
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}
