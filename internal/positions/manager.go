// Package positions opens and closes leveraged positions against the margin
// ledger.
package positions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lv-tradesim/internal/apperr"
	"lv-tradesim/internal/ledger"
	"lv-tradesim/internal/margin"
	"lv-tradesim/internal/model"
	"lv-tradesim/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrPositionNotFound = apperr.NotFound("position not found")

// Manager mutates an account the caller already holds the lock for. Callers
// pass the ctx of the account's unit of work so a failed write rolls back the
// writes before it.
type Manager struct {
	repo store.PositionRepository
	now  func() time.Time
}

func NewManager(repo store.PositionRepository) *Manager {
	return &Manager{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

func (m *Manager) Open(ctx context.Context, acc *model.Account, order model.Order, fillPrice, qty decimal.Decimal) (model.Position, error) {
	if !fillPrice.IsPositive() || !qty.IsPositive() {
		return model.Position{}, apperr.Validation("fill price and quantity must be positive")
	}
	required := margin.Required(fillPrice, qty, order.AssetClass)
	if err := ledger.ReserveMargin(acc, required); err != nil {
		return model.Position{}, err
	}
	pos := model.Position{
		ID:             uuid.NewString(),
		UserID:         order.UserID,
		OrderID:        order.ID,
		Symbol:         order.Symbol,
		AssetClass:     order.AssetClass,
		Side:           order.Side,
		Qty:            qty,
		EntryPrice:     fillPrice,
		MarginRequired: required,
		TakeProfit:     order.TakeProfitPrice,
		StopLoss:       order.StopLossPrice,
		CreatedAt:      m.now(),
		UnrealizedPnL:  decimal.Zero,
	}
	if err := m.repo.SavePosition(ctx, pos); err != nil {
		ledger.ReleaseMargin(acc, required, decimal.Zero)
		return model.Position{}, fmt.Errorf("save position: %w", err)
	}
	return pos, nil
}

// Close settles the position at closingPrice, books its pnl and moves it to
// history.
func (m *Manager) Close(ctx context.Context, acc *model.Account, userID, id string, closingPrice decimal.Decimal) (model.ClosedPosition, error) {
	pos, err := m.repo.GetPosition(ctx, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && pos.UserID != userID) {
		return model.ClosedPosition{}, ErrPositionNotFound
	}
	if err != nil {
		return model.ClosedPosition{}, fmt.Errorf("load position: %w", err)
	}
	if !closingPrice.IsPositive() {
		return model.ClosedPosition{}, apperr.Validation("closing price must be positive")
	}
	pnl := pos.PnLAt(closingPrice)
	pos.UnrealizedPnL = decimal.Zero
	closed := model.ClosedPosition{Position: pos, ClosingPrice: closingPrice, PnL: pnl, ClosedAt: m.now()}
	if err := m.repo.SaveClosedPosition(ctx, closed); err != nil {
		return model.ClosedPosition{}, fmt.Errorf("save closed position: %w", err)
	}
	if err := m.repo.DeletePosition(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.ClosedPosition{}, ErrPositionNotFound
		}
		return model.ClosedPosition{}, fmt.Errorf("delete position: %w", err)
	}
	ledger.ReleaseMargin(acc, pos.MarginRequired, pnl)
	return closed, nil
}
