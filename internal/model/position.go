package model

import (
	"time"

	"lv-tradesim/internal/types"

	"github.com/shopspring/decimal"
)

type Position struct {
	ID               string           `json:"id"`
	UserID           string           `json:"user_id"`
	OrderID          string           `json:"order_id"`
	Symbol           string           `json:"symbol"`
	AssetClass       types.AssetClass `json:"asset_class"`
	Side             types.OrderSide  `json:"direction"`
	Qty              decimal.Decimal  `json:"quantity"`
	EntryPrice       decimal.Decimal  `json:"entry_price"`
	MarginRequired   decimal.Decimal  `json:"margin_required"`
	TakeProfit       *decimal.Decimal `json:"tp,omitempty"`
	StopLoss         *decimal.Decimal `json:"sl,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UnrealizedPnL    decimal.Decimal  `json:"unrealized_pnl"`
	LiquidationPrice *decimal.Decimal `json:"liquidation_price,omitempty"`
}

// PnLAt is the profit of the position if it were closed at price.
func (p Position) PnLAt(price decimal.Decimal) decimal.Decimal {
	if p.Side == types.OrderSideSell {
		return p.EntryPrice.Sub(price).Mul(p.Qty)
	}
	return price.Sub(p.EntryPrice).Mul(p.Qty)
}

type ClosedPosition struct {
	Position     Position        `json:"closedPosition"`
	ClosingPrice decimal.Decimal `json:"closing_price"`
	PnL          decimal.Decimal `json:"pnl"`
	ClosedAt     time.Time       `json:"closed_at"`
}
