package margin

import (
	"lv-tradesim/internal/types"

	"github.com/shopspring/decimal"
)

var leverageByClass = map[types.AssetClass]int64{
	types.AssetClassStocks:      20,
	types.AssetClassIndices:     50,
	types.AssetClassCommodities: 50,
	types.AssetClassForex:       100,
	types.AssetClassCrypto:      50,
}

var DefaultStopOutLevel = decimal.NewFromFloat(0.5)

// Leverage returns the leverage multiplier for the class. Unknown classes
// trade unleveraged.
func Leverage(assetClass types.AssetClass) decimal.Decimal {
	if v, ok := leverageByClass[assetClass.Normalize()]; ok {
		return decimal.NewFromInt(v)
	}
	return decimal.NewFromInt(1)
}

func Required(price, qty decimal.Decimal, assetClass types.AssetClass) decimal.Decimal {
	return price.Mul(qty).Div(Leverage(assetClass))
}

// LiquidationPrice is the price at which the position's margin would be
// consumed down to stopOutLevel. It is informational only.
func LiquidationPrice(side types.OrderSide, entryPrice decimal.Decimal, assetClass types.AssetClass, stopOutLevel decimal.Decimal) decimal.Decimal {
	if !stopOutLevel.GreaterThan(decimal.Zero) {
		stopOutLevel = DefaultStopOutLevel
	}
	threshold := decimal.NewFromInt(1).Div(Leverage(assetClass)).Mul(stopOutLevel)
	one := decimal.NewFromInt(1)
	if side == types.OrderSideSell {
		return entryPrice.Mul(one.Add(threshold))
	}
	return entryPrice.Mul(one.Sub(threshold))
}
