package markethours

import (
	"testing"
	"time"

	"lv-tradesim/internal/types"

	"github.com/stretchr/testify/assert"
)

// 2024-06-01 is a Saturday.
func at(day, hour, minute int) time.Time {
	return time.Date(2024, time.June, day, hour, minute, 0, 0, time.UTC)
}

func TestCryptoAlwaysOpen(t *testing.T) {
	start := at(1, 0, 0)
	for h := 0; h < 24*7; h++ {
		assert.True(t, IsOpen(types.AssetClassCrypto, start.Add(time.Duration(h)*time.Hour+17*time.Minute)))
	}
}

func TestStocksClosedEverySaturdayHour(t *testing.T) {
	for h := 0; h < 24; h++ {
		assert.False(t, IsOpen(types.AssetClassStocks, at(1, h, 0)), "hour %d", h)
		assert.False(t, IsOpen(types.AssetClassStocks, at(1, h, 45)), "hour %d", h)
	}
}

func TestStocksSessionBounds(t *testing.T) {
	// 2024-06-03 is a Monday.
	assert.False(t, IsOpen(types.AssetClassStocks, at(3, 13, 29)))
	assert.True(t, IsOpen(types.AssetClassStocks, at(3, 13, 30)))
	assert.True(t, IsOpen(types.AssetClassStocks, at(3, 17, 0)))
	assert.True(t, IsOpen(types.AssetClassStocks, at(3, 20, 0)))
	assert.False(t, IsOpen(types.AssetClassStocks, at(3, 20, 1)))
	assert.False(t, IsOpen(types.AssetClassStocks, at(2, 15, 0)), "sunday")
}

func TestForexWeek(t *testing.T) {
	assert.False(t, IsOpen(types.AssetClassForex, at(1, 12, 0)), "saturday")
	assert.False(t, IsOpen(types.AssetClassForex, at(2, 20, 59)), "sunday before open")
	assert.True(t, IsOpen(types.AssetClassForex, at(2, 21, 0)), "sunday open")
	assert.True(t, IsOpen(types.AssetClassForex, at(4, 3, 0)), "tuesday")
	assert.True(t, IsOpen(types.AssetClassForex, at(7, 20, 59)), "friday before close")
	assert.False(t, IsOpen(types.AssetClassForex, at(7, 21, 0)), "friday close")
}

func TestOtherClassesFollowForex(t *testing.T) {
	for _, c := range []types.AssetClass{types.AssetClassIndices, types.AssetClassCommodities, "BONDS"} {
		assert.False(t, IsOpen(c, at(1, 12, 0)))
		assert.True(t, IsOpen(c, at(4, 12, 0)))
	}
}

func TestCaseInsensitive(t *testing.T) {
	assert.True(t, IsOpen("crypto", at(1, 12, 0)))
	assert.False(t, IsOpen("stocks", at(1, 15, 0)))
}

func TestGateUsesClock(t *testing.T) {
	g := NewGate(func() time.Time { return at(1, 15, 0) })
	assert.False(t, g.IsOpen(types.AssetClassStocks))
	assert.True(t, g.IsOpen(types.AssetClassCrypto))
	assert.Equal(t, at(1, 15, 0), g.Now())
}

func TestGateConvertsToUTC(t *testing.T) {
	ny := time.FixedZone("EST", -5*3600)
	// 09:00 EST Monday is 14:00 UTC.
	assert.True(t, IsOpen(types.AssetClassStocks, time.Date(2024, time.June, 3, 9, 0, 0, 0, ny)))
}
