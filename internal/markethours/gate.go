// Package markethours decides whether an asset class is tradable at a given
// instant. It uses fixed UTC sessions with no holiday calendar and no DST
// correction.
package markethours

import (
	"time"

	"lv-tradesim/internal/types"
)

const (
	stocksOpenMinute  = 13*60 + 30
	stocksCloseMinute = 20 * 60
	fxWeekBoundary    = 21
)

// IsOpen reports whether assetClass trades at now. now is converted to UTC.
func IsOpen(assetClass types.AssetClass, now time.Time) bool {
	now = now.UTC()
	switch assetClass.Normalize() {
	case types.AssetClassCrypto:
		return true
	case types.AssetClassStocks:
		return stocksOpen(now)
	default:
		return fxOpen(now)
	}
}

func stocksOpen(now time.Time) bool {
	switch now.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	minute := now.Hour()*60 + now.Minute()
	return minute >= stocksOpenMinute && minute <= stocksCloseMinute
}

// fxOpen approximates the 24/5 week: Sunday 21:00 UTC to Friday 21:00 UTC.
func fxOpen(now time.Time) bool {
	switch now.Weekday() {
	case time.Saturday:
		return false
	case time.Sunday:
		return now.Hour() >= fxWeekBoundary
	case time.Friday:
		return now.Hour() < fxWeekBoundary
	default:
		return true
	}
}

// Gate binds IsOpen to a clock.
type Gate struct {
	now func() time.Time
}

func NewGate(now func() time.Time) *Gate {
	if now == nil {
		now = time.Now
	}
	return &Gate{now: now}
}

func (g *Gate) IsOpen(assetClass types.AssetClass) bool {
	return IsOpen(assetClass, g.now())
}

func (g *Gate) Now() time.Time {
	return g.now().UTC()
}
