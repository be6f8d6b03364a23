// Package ledger maintains the per-account margin ledger. The pure functions
// in this file keep availableFunds == balance + realizedPnl - usedMargin after
// every mutation; Service serializes them per account and persists the result.
package ledger

import (
	"time"

	"lv-tradesim/internal/apperr"
	"lv-tradesim/internal/model"
	"lv-tradesim/internal/pricefeed"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

func recompute(acc *model.Account) {
	acc.AvailableFunds = acc.Balance.Add(acc.RealizedPnL).Sub(acc.UsedMargin)
	acc.UpdatedAt = time.Now().UTC()
}

func ReserveMargin(acc *model.Account, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return apperr.Validation("margin amount must not be negative")
	}
	if acc.AvailableFunds.LessThan(amount) {
		return apperr.InsufficientFunds("insufficient funds: required margin %s, available %s", amount.StringFixed(2), acc.AvailableFunds.StringFixed(2))
	}
	acc.UsedMargin = acc.UsedMargin.Add(amount)
	recompute(acc)
	return nil
}

// ReleaseMargin frees amount of used margin and books pnl. Used margin never
// goes below zero.
func ReleaseMargin(acc *model.Account, amount, pnl decimal.Decimal) {
	acc.UsedMargin = acc.UsedMargin.Sub(amount)
	if acc.UsedMargin.IsNegative() {
		acc.UsedMargin = decimal.Zero
	}
	acc.Balance = acc.Balance.Add(pnl)
	acc.RealizedPnL = acc.RealizedPnL.Add(pnl)
	recompute(acc)
}

func Deposit(acc *model.Account, amount decimal.Decimal) error {
	if !amount.GreaterThan(decimal.Zero) {
		return apperr.Validation("amount must be positive")
	}
	acc.Balance = acc.Balance.Add(amount)
	recompute(acc)
	return nil
}

// Snapshot recomputes exposure, unrealized pnl, equity and margin level from
// live prices. Positions without a quote are valued at their entry price.
// The returned positions carry their unrealized pnl.
func Snapshot(acc model.Account, open []model.Position, oracle pricefeed.Oracle) (model.Account, []model.Position) {
	exposure := decimal.Zero
	unrealized := decimal.Zero
	out := make([]model.Position, len(open))
	for i, p := range open {
		price := p.EntryPrice
		if oracle != nil {
			if px, ok := oracle.CurrentPrice(p.Symbol); ok {
				price = px
			}
		}
		p.UnrealizedPnL = p.PnLAt(price)
		exposure = exposure.Add(price.Mul(p.Qty))
		unrealized = unrealized.Add(p.UnrealizedPnL)
		out[i] = p
	}
	acc.Exposure = exposure
	acc.Equity = acc.Balance.Add(acc.RealizedPnL).Add(unrealized)
	acc.AvailableFunds = acc.Balance.Add(acc.RealizedPnL).Sub(acc.UsedMargin)
	if acc.UsedMargin.GreaterThan(decimal.Zero) {
		acc.MarginLevel = acc.Equity.Div(acc.UsedMargin).Mul(hundred)
	} else {
		acc.MarginLevel = decimal.Zero
	}
	return acc, out
}
