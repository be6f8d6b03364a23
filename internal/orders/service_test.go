package orders

import (
	"context"
	"testing"
	"time"

	"lv-tradesim/internal/apperr"
	"lv-tradesim/internal/events"
	"lv-tradesim/internal/ledger"
	"lv-tradesim/internal/markethours"
	"lv-tradesim/internal/matching"
	"lv-tradesim/internal/model"
	"lv-tradesim/internal/positions"
	"lv-tradesim/internal/pricefeed"
	"lv-tradesim/internal/store"
	"lv-tradesim/internal/types"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

type capture struct{ got []events.Event }

func (c *capture) Emit(evt events.Event) { c.got = append(c.got, evt) }

func (c *capture) types() []types.EventType {
	out := make([]types.EventType, len(c.got))
	for i, e := range c.got {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	mem    *store.MemoryStore
	prices *pricefeed.Store
	svc    *Service
	pos    *positions.Service
	queue  *Queue
	bus    *capture
	now    time.Time
}

var monday = time.Date(2024, 6, 3, 15, 0, 0, 0, time.UTC)

type fixtureOpts struct {
	liquidity matching.LiquidityModel
	slippage  matching.SlippageFunc
	positions func(store.PositionRepository) store.PositionRepository
}

func newFixture(t *testing.T, at time.Time) *fixture {
	return newFixtureWith(t, at, fixtureOpts{})
}

func newFixtureWith(t *testing.T, at time.Time, opts fixtureOpts) *fixture {
	t.Helper()
	f := &fixture{now: at}
	gate := markethours.NewGate(func() time.Time { return f.now })
	f.mem = store.NewMemoryStore()
	f.prices = pricefeed.NewStore()
	f.bus = &capture{}
	f.queue = NewQueue()
	repos := f.mem.Repositories()
	if opts.positions != nil {
		repos.Positions = opts.positions(repos.Positions)
	}
	if opts.liquidity == nil {
		opts.liquidity = matching.FullLiquidity{}
	}
	led := ledger.NewService(repos, f.prices, f.bus, nil, d("10000"), zerolog.Nop())
	f.pos = positions.NewService(positions.NewManager(repos.Positions), repos.Positions, led, f.prices, f.bus, nil, d("0.5"), zerolog.Nop())
	engine := matching.NewEngine(gate, nil, opts.liquidity, f.queue, zerolog.Nop())
	if opts.slippage != nil {
		engine = engine.WithSlippage(opts.slippage)
	}
	f.svc = NewService(Deps{
		Orders:    repos.Orders,
		Ledger:    led,
		Positions: f.pos,
		Engine:    engine,
		Queue:     f.queue,
		Gate:      gate,
		Oracle:    f.prices,
		Bus:       f.bus,
		Log:       zerolog.Nop(),
	})
	require.NoError(t, f.prices.Set("BTCUSD", d("60000")))
	require.NoError(t, f.prices.Set("AAPL", d("190")))
	require.NoError(t, f.prices.Set("EURUSD", d("1.1")))
	return f
}

func (f *fixture) account(t *testing.T, userID string) model.Account {
	t.Helper()
	acc, err := f.mem.GetAccount(context.Background(), userID)
	require.NoError(t, err)
	return acc
}

func btcBuy(qty string) MarketOrderRequest {
	return MarketOrderRequest{UserID: "u1", Symbol: "btcusd", AssetClass: "crypto", Side: types.OrderSideBuy, Qty: d(qty)}
}

func TestPlaceMarketFillsAndOpensPosition(t *testing.T) {
	f := newFixture(t, monday)
	res, err := f.svc.PlaceMarket(context.Background(), btcBuy("1"))
	require.NoError(t, err)

	assert.Equal(t, types.OrderStatusFilled, res.Order.Status)
	require.NotNil(t, res.Order.Price)
	fill := *res.Order.Price
	assert.True(t, fill.GreaterThan(d("60000")))
	assert.True(t, res.Position.MarginRequired.Equal(fill.Div(decimal.NewFromInt(50))))
	assert.Equal(t, "BTCUSD", res.Position.Symbol)

	acc := f.account(t, "u1")
	assert.True(t, acc.UsedMargin.Equal(res.Position.MarginRequired))
	assert.True(t, acc.AvailableFunds.Equal(d("10000").Sub(res.Position.MarginRequired)))
	assert.Equal(t, []types.EventType{types.EventOrderFilled, types.EventAccountMetricsUpdate}, f.bus.types())
	assert.Equal(t, 0, f.queue.MarketOrderCount())
}

type fixedDepth struct{ units decimal.Decimal }

func (l fixedDepth) Depth(string, types.OrderSide, decimal.Decimal) decimal.Decimal { return l.units }

func TestPlaceMarketPartialFillReservesFilledUnitsOnly(t *testing.T) {
	f := newFixtureWith(t, monday, fixtureOpts{liquidity: fixedDepth{d("0.5")}, slippage: matching.FixedSlippage(decimal.Zero)})
	res, err := f.svc.PlaceMarket(context.Background(), btcBuy("1"))
	require.NoError(t, err)

	assert.True(t, res.Order.Qty.Equal(d("1")))
	assert.True(t, res.Order.FilledQty.Equal(d("0.5")))
	assert.True(t, res.Position.Qty.Equal(res.Order.FilledQty))
	assert.True(t, res.Position.MarginRequired.Equal(d("600")), res.Position.MarginRequired.String())

	acc := f.account(t, "u1")
	assert.True(t, acc.UsedMargin.Equal(d("600")))
	assert.True(t, acc.AvailableFunds.Equal(acc.Balance.Add(acc.RealizedPnL).Sub(acc.UsedMargin)))
	assert.True(t, acc.AvailableFunds.Equal(d("9400")))
	assert.Equal(t, 0, f.queue.MarketOrderCount())
}

func TestPlaceMarketStocksOnSaturdayIsForbidden(t *testing.T) {
	f := newFixture(t, time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC))
	_, err := f.svc.PlaceMarket(context.Background(), MarketOrderRequest{UserID: "u1", Symbol: "AAPL", AssetClass: types.AssetClassStocks, Side: types.OrderSideBuy, Qty: d("1")})
	require.Error(t, err)
	assert.Equal(t, apperr.KindMarketClosed, apperr.KindOf(err))
	assert.Equal(t, 403, apperr.KindOf(err).Status())
	assert.Equal(t, "Market is closed for STOCKS", apperr.Message(err))

	orders, err := f.svc.List(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestPlaceMarketInsufficientFundsLeavesNoRecord(t *testing.T) {
	f := newFixture(t, monday)
	_, err := f.svc.PlaceMarket(context.Background(), btcBuy("10"))
	require.Error(t, err)
	assert.Equal(t, apperr.KindInsufficientFunds, apperr.KindOf(err))

	_, err = f.mem.GetAccount(context.Background(), "u1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	orders, err := f.svc.List(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestPlaceMarketValidation(t *testing.T) {
	f := newFixture(t, monday)
	req := btcBuy("0")
	_, err := f.svc.PlaceMarket(context.Background(), req)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	req = btcBuy("1")
	req.Symbol = "NOPRICE"
	_, err = f.svc.PlaceMarket(context.Background(), req)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func entryReq(side types.OrderSide, price string) EntryOrderRequest {
	return EntryOrderRequest{UserID: "u1", Symbol: "BTCUSD", AssetClass: types.AssetClassCrypto, Side: side, Qty: d("1"), Price: d(price)}
}

func TestPlaceEntryRestsWithoutReservingMargin(t *testing.T) {
	f := newFixture(t, monday)
	order, err := f.svc.PlaceEntry(context.Background(), entryReq(types.OrderSideBuy, "59000"))
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusPending, order.Status)
	assert.Equal(t, 1, f.queue.Len())
	assert.True(t, f.account(t, "u1").UsedMargin.IsZero())
	assert.Equal(t, []types.EventType{types.EventOrderPending}, f.bus.types())

	_, err = f.svc.PlaceEntry(context.Background(), entryReq(types.OrderSideBuy, "600000"))
	assert.Equal(t, apperr.KindInsufficientFunds, apperr.KindOf(err))
}

func TestCancelPendingThenCancelAgainIsInvalidState(t *testing.T) {
	f := newFixture(t, monday)
	ctx := context.Background()
	order, err := f.svc.PlaceEntry(ctx, entryReq(types.OrderSideBuy, "59000"))
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(ctx, "u1", order.ID)
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 0, f.queue.Len())

	_, err = f.svc.Cancel(ctx, "u1", order.ID)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
	_, err = f.svc.Modify(ctx, "u1", order.ID, ModifyRequest{Qty: dp("2")})
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
}

func TestCancelFilledOrderIsInvalidState(t *testing.T) {
	f := newFixture(t, monday)
	res, err := f.svc.PlaceMarket(context.Background(), btcBuy("1"))
	require.NoError(t, err)
	_, err = f.svc.Cancel(context.Background(), "u1", res.Order.ID)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
}

func TestForeignOrderIsNotFound(t *testing.T) {
	f := newFixture(t, monday)
	order, err := f.svc.PlaceEntry(context.Background(), entryReq(types.OrderSideBuy, "59000"))
	require.NoError(t, err)
	_, err = f.svc.Get(context.Background(), "u2", order.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	_, err = f.svc.Cancel(context.Background(), "u2", order.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestModifyRepricesInQueue(t *testing.T) {
	f := newFixture(t, monday)
	ctx := context.Background()
	order, err := f.svc.PlaceEntry(ctx, entryReq(types.OrderSideBuy, "59000"))
	require.NoError(t, err)

	updated, err := f.svc.Modify(ctx, "u1", order.ID, ModifyRequest{Price: dp("58000"), StopLoss: dp("50000")})
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusPending, updated.Status)
	assert.Equal(t, "58000", updated.Price.String())
	q, ok := f.queue.Get(order.ID)
	require.True(t, ok)
	assert.Equal(t, "58000", q.Price.String())
	assert.Equal(t, "50000", q.StopLoss.String())
}

func TestTriggerEntryOrderFillsAtLimit(t *testing.T) {
	f := newFixture(t, monday)
	ctx := context.Background()
	buy, err := f.svc.PlaceEntry(ctx, entryReq(types.OrderSideBuy, "59000"))
	require.NoError(t, err)
	sell, err := f.svc.PlaceEntry(ctx, entryReq(types.OrderSideSell, "61000"))
	require.NoError(t, err)

	filled := f.svc.TriggerEntryOrders(ctx, "BTCUSD", d("58950"))
	require.Len(t, filled, 1)
	assert.Equal(t, buy.ID, filled[0].Order.ID)
	assert.Equal(t, "59000", filled[0].Position.EntryPrice.String())
	assert.Equal(t, "1180", filled[0].Position.MarginRequired.String())

	got, err := f.svc.Get(ctx, "u1", buy.ID)
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusFilled, got.Status)
	_, ok := f.queue.Get(sell.ID)
	assert.True(t, ok)
	assert.Equal(t, "1180", f.account(t, "u1").UsedMargin.String())
}

func TestTriggerCancelsWhenMarginGone(t *testing.T) {
	f := newFixture(t, monday)
	ctx := context.Background()
	order, err := f.svc.PlaceEntry(ctx, entryReq(types.OrderSideBuy, "59000"))
	require.NoError(t, err)
	_, err = f.svc.PlaceMarket(ctx, btcBuy("8"))
	require.NoError(t, err)

	filled := f.svc.TriggerEntryOrders(ctx, "BTCUSD", d("59000"))
	assert.Empty(t, filled)
	got, err := f.svc.Get(ctx, "u1", order.ID)
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusCancelled, got.Status)
	assert.Equal(t, 0, f.queue.Len())
}

func TestListPendingSweepsExpired(t *testing.T) {
	f := newFixture(t, monday)
	ctx := context.Background()
	exp := monday.Add(time.Hour)
	req := entryReq(types.OrderSideBuy, "59000")
	req.Expiration = &exp
	order, err := f.svc.PlaceEntry(ctx, req)
	require.NoError(t, err)
	_, err = f.svc.PlaceEntry(ctx, entryReq(types.OrderSideBuy, "58000"))
	require.NoError(t, err)

	f.now = monday.Add(2 * time.Hour)
	pending, err := f.svc.ListPending(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.NotEqual(t, order.ID, pending[0].ID)

	got, err := f.svc.Get(ctx, "u1", order.ID)
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusCancelled, got.Status)
	assert.Contains(t, f.bus.types(), types.EventOrderCancelled)
}

func TestRebuildRestoresQueue(t *testing.T) {
	f := newFixture(t, monday)
	ctx := context.Background()
	_, err := f.svc.PlaceEntry(ctx, entryReq(types.OrderSideBuy, "59000"))
	require.NoError(t, err)

	fresh := NewService(Deps{Orders: f.mem, Queue: NewQueue(), Log: zerolog.Nop()})
	require.NoError(t, fresh.Rebuild(ctx))
	assert.Equal(t, 1, fresh.queue.Len())
}

// hookPositions runs onSave once, before the first position is stored.
type hookPositions struct {
	store.PositionRepository
	onSave func()
}

func (h *hookPositions) SavePosition(ctx context.Context, p model.Position) error {
	if h.onSave != nil {
		fn := h.onSave
		h.onSave = nil
		fn()
	}
	return h.PositionRepository.SavePosition(ctx, p)
}

func TestTriggerHonoursModifyAfterScan(t *testing.T) {
	hook := &hookPositions{}
	f := newFixtureWith(t, monday, fixtureOpts{positions: func(r store.PositionRepository) store.PositionRepository {
		hook.PositionRepository = r
		return hook
	}})
	ctx := context.Background()

	first := entryReq(types.OrderSideBuy, "59000")
	first.UserID = "u2"
	_, err := f.svc.PlaceEntry(ctx, first)
	require.NoError(t, err)
	second := entryReq(types.OrderSideBuy, "58900")
	second.Qty = d("0.1")
	order, err := f.svc.PlaceEntry(ctx, second)
	require.NoError(t, err)

	// u2 ranks first, so u1's order is modified after the trigger has
	// already scanned the queue.
	hook.onSave = func() {
		_, err := f.svc.Modify(context.Background(), "u1", order.ID, ModifyRequest{Price: dp("50000"), Qty: dp("0.2")})
		require.NoError(t, err)
	}
	filled := f.svc.TriggerEntryOrders(ctx, "BTCUSD", d("58000"))
	require.Len(t, filled, 1)
	assert.Equal(t, "u2", filled[0].Order.UserID)

	got, err := f.svc.Get(ctx, "u1", order.ID)
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusPending, got.Status)
	assert.True(t, got.Price.Equal(d("50000")))
	assert.True(t, got.Qty.Equal(d("0.2")))
	assert.True(t, got.FilledQty.IsZero())
	q, ok := f.queue.Get(order.ID)
	require.True(t, ok)
	assert.True(t, q.Price.Equal(d("50000")))
	assert.True(t, f.account(t, "u1").UsedMargin.IsZero())
}

func TestTriggerFillsModifiedSize(t *testing.T) {
	f := newFixture(t, monday)
	ctx := context.Background()
	order, err := f.svc.PlaceEntry(ctx, entryReq(types.OrderSideBuy, "59000"))
	require.NoError(t, err)
	_, err = f.svc.Modify(ctx, "u1", order.ID, ModifyRequest{Qty: dp("0.5")})
	require.NoError(t, err)

	filled := f.svc.TriggerEntryOrders(ctx, "BTCUSD", d("59000"))
	require.Len(t, filled, 1)
	assert.True(t, filled[0].Position.Qty.Equal(d("0.5")))
	assert.True(t, filled[0].Order.FilledQty.Equal(filled[0].Order.Qty))
	assert.Equal(t, 0, f.queue.Len())
}
