package matching

import (
	"math"
	"math/rand"
	"sync"

	"lv-tradesim/internal/types"

	"github.com/shopspring/decimal"
)

// LiquidityModel reports how many units the simulated market absorbs for a
// request. It stands in for real book depth.
type LiquidityModel interface {
	Depth(symbol string, side types.OrderSide, requested decimal.Decimal) decimal.Decimal
}

// RandomLiquidity draws depth uniformly from [0, requested].
type RandomLiquidity struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandomLiquidity(seed int64) *RandomLiquidity {
	return &RandomLiquidity{rng: rand.New(rand.NewSource(seed))}
}

func (l *RandomLiquidity) Depth(_ string, _ types.OrderSide, requested decimal.Decimal) decimal.Decimal {
	l.mu.Lock()
	f := l.rng.Float64()
	l.mu.Unlock()
	return requested.Mul(decimal.NewFromFloat(f))
}

// FullLiquidity always fills the whole request.
type FullLiquidity struct{}

func (FullLiquidity) Depth(_ string, _ types.OrderSide, requested decimal.Decimal) decimal.Decimal {
	return requested
}

// SlippageFunc returns the fractional price impact of filling units.
type SlippageFunc func(assetClass types.AssetClass, filledUnits decimal.Decimal) decimal.Decimal

var baseSlippage = map[types.AssetClass]decimal.Decimal{
	types.AssetClassCrypto:      decimal.RequireFromString("0.002"),
	types.AssetClassForex:       decimal.RequireFromString("0.0005"),
	types.AssetClassStocks:      decimal.RequireFromString("0.001"),
	types.AssetClassIndices:     decimal.RequireFromString("0.0008"),
	types.AssetClassCommodities: decimal.RequireFromString("0.001"),
}

var defaultBaseSlippage = decimal.RequireFromString("0.001")

var sizeImpact = decimal.RequireFromString("0.001")

func BaseSlippage(assetClass types.AssetClass) decimal.Decimal {
	if v, ok := baseSlippage[assetClass.Normalize()]; ok {
		return v
	}
	return defaultBaseSlippage
}

// DefaultSlippage is base(assetClass) + log10(filledUnits)*0.001, floored at
// zero so fractional fills never improve on the reference price.
func DefaultSlippage(assetClass types.AssetClass, filledUnits decimal.Decimal) decimal.Decimal {
	base := BaseSlippage(assetClass)
	if !filledUnits.IsPositive() {
		return base
	}
	impact := decimal.NewFromFloat(math.Log10(filledUnits.InexactFloat64())).Mul(sizeImpact)
	slip := base.Add(impact).Round(10)
	if slip.IsNegative() {
		return decimal.Zero
	}
	return slip
}

// FixedSlippage ignores size and returns v.
func FixedSlippage(v decimal.Decimal) SlippageFunc {
	return func(types.AssetClass, decimal.Decimal) decimal.Decimal { return v }
}
