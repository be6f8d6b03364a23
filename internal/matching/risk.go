package matching

import (
	"fmt"

	"lv-tradesim/internal/margin"
	"lv-tradesim/internal/types"

	"github.com/shopspring/decimal"
)

// Limit caps exposure for one asset class. A zero field is not enforced.
type Limit struct {
	MaxNotional  decimal.Decimal
	DailyLossCap decimal.Decimal
}

type RiskChecker struct {
	limits map[types.AssetClass]Limit
}

func NewRiskChecker(limits map[types.AssetClass]Limit) *RiskChecker {
	norm := make(map[types.AssetClass]Limit, len(limits))
	for k, v := range limits {
		norm[k.Normalize()] = v
	}
	return &RiskChecker{limits: norm}
}

// Check returns ReasonNone when req may proceed, otherwise the reason and a
// message.
func (r *RiskChecker) Check(req Request) (Reason, string) {
	required := margin.Required(req.ReferencePrice, req.Units, req.AssetClass)
	if required.GreaterThan(req.AvailableMargin) {
		return ReasonInsufficientMargin, fmt.Sprintf("insufficient margin: required %s, available %s", required.StringFixed(2), req.AvailableMargin.StringFixed(2))
	}
	if r == nil {
		return ReasonNone, ""
	}
	lim, ok := r.limits[req.AssetClass.Normalize()]
	if !ok {
		return ReasonNone, ""
	}
	notional := req.ReferencePrice.Mul(req.Units)
	if lim.MaxNotional.IsPositive() && notional.GreaterThan(lim.MaxNotional) {
		return ReasonRisk, fmt.Sprintf("notional %s exceeds %s limit %s", notional.StringFixed(2), req.AssetClass, lim.MaxNotional.StringFixed(2))
	}
	if lim.DailyLossCap.IsPositive() && req.DailyLoss.GreaterThanOrEqual(lim.DailyLossCap) {
		return ReasonRisk, fmt.Sprintf("daily loss limit reached for %s", req.AssetClass)
	}
	return ReasonNone, ""
}
