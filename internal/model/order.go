package model

import (
	"time"

	"lv-tradesim/internal/types"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID              string            `json:"id"`
	UserID          string            `json:"user_id"`
	Symbol          string            `json:"symbol"`
	AssetClass      types.AssetClass  `json:"asset_class"`
	Type            types.OrderType   `json:"order_type"`
	Side            types.OrderSide   `json:"direction"`
	Qty             decimal.Decimal   `json:"quantity"`
	FilledQty       decimal.Decimal   `json:"filled_quantity"`
	Price           *decimal.Decimal  `json:"price"`
	Slippage        decimal.Decimal   `json:"slippage"`
	Status          types.OrderStatus `json:"status"`
	StopLossPrice   *decimal.Decimal  `json:"stop_loss_price,omitempty"`
	TakeProfitPrice *decimal.Decimal  `json:"take_profit_price,omitempty"`
	Expiration      *time.Time        `json:"expiration,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	FilledAt        *time.Time        `json:"filled_at,omitempty"`
	UpdatedAt       *time.Time        `json:"updated_at,omitempty"`
}

func (o Order) IsPending() bool {
	return o.Status == types.OrderStatusPending
}
