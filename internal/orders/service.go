package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lv-tradesim/internal/apperr"
	"lv-tradesim/internal/events"
	"lv-tradesim/internal/ledger"
	"lv-tradesim/internal/margin"
	"lv-tradesim/internal/markethours"
	"lv-tradesim/internal/matching"
	"lv-tradesim/internal/model"
	"lv-tradesim/internal/observability"
	"lv-tradesim/internal/positions"
	"lv-tradesim/internal/pricefeed"
	"lv-tradesim/internal/store"
	"lv-tradesim/internal/types"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var ErrOrderNotFound = apperr.NotFound("order not found")

type Service struct {
	orders    store.OrderRepository
	ledger    *ledger.Service
	positions *positions.Service
	engine    *matching.Engine
	queue     *Queue
	gate      *markethours.Gate
	oracle    pricefeed.Oracle
	bus       events.Broadcaster
	metrics   *observability.Metrics
	log       zerolog.Logger
}

type Deps struct {
	Orders    store.OrderRepository
	Ledger    *ledger.Service
	Positions *positions.Service
	Engine    *matching.Engine
	Queue     *Queue
	Gate      *markethours.Gate
	Oracle    pricefeed.Oracle
	Bus       events.Broadcaster
	Metrics   *observability.Metrics
	Log       zerolog.Logger
}

func NewService(d Deps) *Service {
	if d.Bus == nil {
		d.Bus = events.Discard{}
	}
	if d.Gate == nil {
		d.Gate = markethours.NewGate(nil)
	}
	if d.Queue == nil {
		d.Queue = NewQueue()
	}
	return &Service{
		orders:    d.Orders,
		ledger:    d.Ledger,
		positions: d.Positions,
		engine:    d.Engine,
		queue:     d.Queue,
		gate:      d.Gate,
		oracle:    d.Oracle,
		bus:       d.Bus,
		metrics:   d.Metrics,
		log:       d.Log,
	}
}

type MarketOrderRequest struct {
	UserID     string
	Symbol     string
	AssetClass types.AssetClass
	Side       types.OrderSide
	Qty        decimal.Decimal
	StopLoss   *decimal.Decimal
	TakeProfit *decimal.Decimal
}

type EntryOrderRequest struct {
	UserID     string
	Symbol     string
	AssetClass types.AssetClass
	Side       types.OrderSide
	Qty        decimal.Decimal
	Price      decimal.Decimal
	StopLoss   *decimal.Decimal
	TakeProfit *decimal.Decimal
	Expiration *time.Time
}

type ModifyRequest struct {
	Qty        *decimal.Decimal
	Price      *decimal.Decimal
	StopLoss   *decimal.Decimal
	TakeProfit *decimal.Decimal
}

type MarketResult struct {
	Order    model.Order    `json:"order"`
	Position model.Position `json:"position"`
}

func validateCommon(userID, symbol string, class types.AssetClass, side types.OrderSide, qty decimal.Decimal, sl, tp *decimal.Decimal) error {
	if userID == "" {
		return apperr.Unauthorized("missing user")
	}
	if symbol == "" {
		return apperr.Validation("symbol is required")
	}
	if class == "" {
		return apperr.Validation("asset_class is required")
	}
	if !side.Valid() {
		return apperr.Validation("direction must be buy or sell")
	}
	if !qty.IsPositive() {
		return apperr.Validation("quantity must be positive")
	}
	if sl != nil && !sl.IsPositive() {
		return apperr.Validation("stop_loss_price must be positive")
	}
	if tp != nil && !tp.IsPositive() {
		return apperr.Validation("take_profit_price must be positive")
	}
	return nil
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// PlaceMarket fills a market order through the matching engine and opens the
// resulting position. Refused orders leave no record.
func (s *Service) PlaceMarket(ctx context.Context, req MarketOrderRequest) (MarketResult, error) {
	req.Symbol = normalizeSymbol(req.Symbol)
	req.AssetClass = req.AssetClass.Normalize()
	if err := validateCommon(req.UserID, req.Symbol, req.AssetClass, req.Side, req.Qty, req.StopLoss, req.TakeProfit); err != nil {
		s.metrics.OrderRejected(string(types.OrderTypeMarket), string(apperr.KindOf(err)))
		return MarketResult{}, err
	}
	if !s.gate.IsOpen(req.AssetClass) {
		s.metrics.OrderRejected(string(types.OrderTypeMarket), string(apperr.KindMarketClosed))
		return MarketResult{}, apperr.MarketClosed(string(req.AssetClass))
	}
	ref, ok := s.oracle.CurrentPrice(req.Symbol)
	if !ok {
		return MarketResult{}, apperr.Validation("no price available for %s", req.Symbol)
	}

	var out MarketResult
	var fill matching.Result
	err := s.ledger.WithAccount(ctx, req.UserID, func(ctx context.Context, acc *model.Account) error {
		loss, err := s.positions.DailyLoss(ctx, req.UserID, req.AssetClass, s.gate.Now())
		if err != nil {
			return err
		}
		fill = s.engine.Execute(ctx, matching.Request{
			Symbol:          req.Symbol,
			AssetClass:      req.AssetClass,
			Side:            req.Side,
			Units:           req.Qty,
			ReferencePrice:  ref,
			UserID:          req.UserID,
			AvailableMargin: acc.AvailableFunds,
			DailyLoss:       loss,
		})
		if err := fillError(fill); err != nil {
			return err
		}
		required := margin.Required(fill.AveragePrice, fill.FilledUnits, req.AssetClass)
		if acc.AvailableFunds.LessThan(required) {
			return apperr.InsufficientFunds("insufficient funds: required margin %s, available %s", required.StringFixed(2), acc.AvailableFunds.StringFixed(2))
		}

		now := s.gate.Now()
		price := fill.AveragePrice
		order := model.Order{
			ID:              uuid.NewString(),
			UserID:          req.UserID,
			Symbol:          req.Symbol,
			AssetClass:      req.AssetClass,
			Type:            types.OrderTypeMarket,
			Side:            req.Side,
			Qty:             req.Qty,
			FilledQty:       fill.FilledUnits,
			Price:           &price,
			Slippage:        fill.Slippage,
			Status:          types.OrderStatusFilled,
			StopLossPrice:   req.StopLoss,
			TakeProfitPrice: req.TakeProfit,
			CreatedAt:       now,
			FilledAt:        &now,
		}
		pos, err := s.positions.Manager().Open(ctx, acc, order, price, fill.FilledUnits)
		if err != nil {
			return err
		}
		if err := s.orders.SaveOrder(ctx, order); err != nil {
			return fmt.Errorf("save order: %w", err)
		}
		out = MarketResult{Order: order, Position: pos}
		return nil
	})
	if err != nil {
		s.metrics.OrderRejected(string(types.OrderTypeMarket), string(apperr.KindOf(err)))
		return MarketResult{}, err
	}

	s.metrics.OrderPlaced(string(types.OrderTypeMarket), string(req.AssetClass))
	s.metrics.Fill(string(req.AssetClass), fill.Partial(req.Qty))
	s.log.Info().
		Str("user_id", req.UserID).
		Str("order_id", out.Order.ID).
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Str("filled", fill.FilledUnits.String()).
		Str("price", fill.AveragePrice.String()).
		Msg(fill.Message)
	s.emit(events.New(types.EventOrderFilled, req.UserID, out))
	s.refreshMetrics(ctx, req.UserID)
	return out, nil
}

func fillError(res matching.Result) error {
	switch res.Status {
	case matching.StatusFilled:
		return nil
	case matching.StatusRejected:
		switch res.Reason {
		case matching.ReasonMarketClosed:
			return apperr.New(apperr.KindMarketClosed, "%s", res.Message)
		case matching.ReasonInsufficientMargin:
			return apperr.InsufficientFunds("%s", res.Message)
		default:
			return apperr.Validation("%s", res.Message)
		}
	default:
		return apperr.Internal(errors.New(res.Message))
	}
}

// PlaceEntry rests a limit order. Margin is checked at the entry price but
// only reserved once the order fills.
func (s *Service) PlaceEntry(ctx context.Context, req EntryOrderRequest) (model.Order, error) {
	req.Symbol = normalizeSymbol(req.Symbol)
	req.AssetClass = req.AssetClass.Normalize()
	if err := validateCommon(req.UserID, req.Symbol, req.AssetClass, req.Side, req.Qty, req.StopLoss, req.TakeProfit); err != nil {
		s.metrics.OrderRejected(string(types.OrderTypeEntry), string(apperr.KindOf(err)))
		return model.Order{}, err
	}
	if !req.Price.IsPositive() {
		return model.Order{}, apperr.Validation("price must be positive")
	}
	now := s.gate.Now()
	if req.Expiration != nil && !req.Expiration.After(now) {
		return model.Order{}, apperr.Validation("expiration must be in the future")
	}
	if !s.gate.IsOpen(req.AssetClass) {
		s.metrics.OrderRejected(string(types.OrderTypeEntry), string(apperr.KindMarketClosed))
		return model.Order{}, apperr.MarketClosed(string(req.AssetClass))
	}

	price := req.Price
	order := model.Order{
		ID:              uuid.NewString(),
		UserID:          req.UserID,
		Symbol:          req.Symbol,
		AssetClass:      req.AssetClass,
		Type:            types.OrderTypeEntry,
		Side:            req.Side,
		Qty:             req.Qty,
		FilledQty:       decimal.Zero,
		Price:           &price,
		Status:          types.OrderStatusPending,
		StopLossPrice:   req.StopLoss,
		TakeProfitPrice: req.TakeProfit,
		Expiration:      req.Expiration,
		CreatedAt:       now,
	}
	err := s.ledger.WithAccount(ctx, req.UserID, func(ctx context.Context, acc *model.Account) error {
		required := margin.Required(price, req.Qty, req.AssetClass)
		if acc.AvailableFunds.LessThan(required) {
			return apperr.InsufficientFunds("insufficient funds: required margin %s, available %s", required.StringFixed(2), acc.AvailableFunds.StringFixed(2))
		}
		if err := s.orders.SaveOrder(ctx, order); err != nil {
			return fmt.Errorf("save order: %w", err)
		}
		store.AfterCommit(ctx, func() { s.queue.AddLimitOrder(queuedFrom(order)) })
		return nil
	})
	if err != nil {
		s.metrics.OrderRejected(string(types.OrderTypeEntry), string(apperr.KindOf(err)))
		return model.Order{}, err
	}
	s.metrics.OrderPlaced(string(types.OrderTypeEntry), string(req.AssetClass))
	s.metrics.SetQueueDepth(s.queue.Len())
	s.log.Info().Str("user_id", req.UserID).Str("order_id", order.ID).Str("symbol", order.Symbol).Str("price", price.String()).Msg("entry order resting")
	s.emit(events.New(types.EventOrderPending, req.UserID, order))
	return order, nil
}

func queuedFrom(o model.Order) QueuedOrder {
	q := QueuedOrder{
		ID:         o.ID,
		UserID:     o.UserID,
		Symbol:     o.Symbol,
		Side:       o.Side,
		Units:      o.Qty,
		Timestamp:  o.CreatedAt,
		StopLoss:   o.StopLossPrice,
		TakeProfit: o.TakeProfitPrice,
		Expiration: o.Expiration,
	}
	if o.Price != nil {
		q.Price = *o.Price
	}
	return q
}

// ownedPending loads the caller's order and requires it to still be pending.
func (s *Service) ownedPending(ctx context.Context, userID, id string) (model.Order, error) {
	o, err := s.owned(ctx, userID, id)
	if err != nil {
		return model.Order{}, err
	}
	if !o.IsPending() {
		return model.Order{}, apperr.InvalidState("order is %s", o.Status)
	}
	return o, nil
}

func (s *Service) owned(ctx context.Context, userID, id string) (model.Order, error) {
	o, err := s.orders.GetOrder(ctx, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && o.UserID != userID) {
		return model.Order{}, ErrOrderNotFound
	}
	if err != nil {
		return model.Order{}, fmt.Errorf("load order: %w", err)
	}
	return o, nil
}

func (s *Service) Cancel(ctx context.Context, userID, id string) (model.Order, error) {
	var out model.Order
	err := s.ledger.WithAccount(ctx, userID, func(ctx context.Context, _ *model.Account) error {
		o, err := s.ownedPending(ctx, userID, id)
		if err != nil {
			return err
		}
		out, err = s.cancelLocked(ctx, o)
		return err
	})
	if err != nil {
		return model.Order{}, err
	}
	s.log.Info().Str("user_id", userID).Str("order_id", id).Msg("order cancelled")
	s.emit(events.New(types.EventOrderCancelled, userID, out))
	return out, nil
}

func (s *Service) cancelLocked(ctx context.Context, o model.Order) (model.Order, error) {
	now := s.gate.Now()
	o.Status = types.OrderStatusCancelled
	o.UpdatedAt = &now
	if err := s.orders.SaveOrder(ctx, o); err != nil {
		return model.Order{}, fmt.Errorf("save order: %w", err)
	}
	store.AfterCommit(ctx, func() {
		s.queue.Remove(o.ID)
		s.metrics.SetQueueDepth(s.queue.Len())
	})
	return o, nil
}

// Modify edits a pending order in place. Margin is rechecked when the size
// or price changes.
func (s *Service) Modify(ctx context.Context, userID, id string, req ModifyRequest) (model.Order, error) {
	if req.Qty != nil && !req.Qty.IsPositive() {
		return model.Order{}, apperr.Validation("quantity must be positive")
	}
	if req.Price != nil && !req.Price.IsPositive() {
		return model.Order{}, apperr.Validation("price must be positive")
	}
	if req.StopLoss != nil && !req.StopLoss.IsPositive() {
		return model.Order{}, apperr.Validation("stop_loss_price must be positive")
	}
	if req.TakeProfit != nil && !req.TakeProfit.IsPositive() {
		return model.Order{}, apperr.Validation("take_profit_price must be positive")
	}
	var out model.Order
	err := s.ledger.WithAccount(ctx, userID, func(ctx context.Context, acc *model.Account) error {
		o, err := s.ownedPending(ctx, userID, id)
		if err != nil {
			return err
		}
		if req.Qty != nil {
			o.Qty = *req.Qty
		}
		if req.Price != nil {
			p := *req.Price
			o.Price = &p
		}
		if req.StopLoss != nil {
			o.StopLossPrice = req.StopLoss
		}
		if req.TakeProfit != nil {
			o.TakeProfitPrice = req.TakeProfit
		}
		if (req.Qty != nil || req.Price != nil) && o.Price != nil {
			required := margin.Required(*o.Price, o.Qty, o.AssetClass)
			if acc.AvailableFunds.LessThan(required) {
				return apperr.InsufficientFunds("insufficient funds: required margin %s, available %s", required.StringFixed(2), acc.AvailableFunds.StringFixed(2))
			}
		}
		now := s.gate.Now()
		o.UpdatedAt = &now
		if err := s.orders.SaveOrder(ctx, o); err != nil {
			return fmt.Errorf("save order: %w", err)
		}
		next := queuedFrom(o)
		store.AfterCommit(ctx, func() {
			if err := s.queue.Update(next.ID, func(q *QueuedOrder) {
				q.Units = next.Units
				q.RemainingUnits = next.Units
				q.Price = next.Price
				q.StopLoss = next.StopLoss
				q.TakeProfit = next.TakeProfit
			}); err != nil {
				s.queue.AddLimitOrder(next)
			}
		})
		out = o
		return nil
	})
	if err != nil {
		return model.Order{}, err
	}
	s.emit(events.New(types.EventOrderModified, userID, out))
	return out, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]model.Order, error) {
	out, err := s.orders.ListOrders(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return out, nil
}

// ListPending sweeps expired orders before listing what still rests.
func (s *Service) ListPending(ctx context.Context, userID string) ([]model.Order, error) {
	s.SweepExpired(ctx, s.gate.Now())
	out, err := s.orders.ListOrdersByStatus(ctx, userID, types.OrderStatusPending)
	if err != nil {
		return nil, fmt.Errorf("list pending orders: %w", err)
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, userID, id string) (model.Order, error) {
	return s.owned(ctx, userID, id)
}

// SweepExpired cancels every resting order whose expiration has passed.
func (s *Service) SweepExpired(ctx context.Context, now time.Time) []model.Order {
	var out []model.Order
	for _, q := range s.queue.ClearExpiredOrders(now) {
		var cancelled model.Order
		err := s.ledger.WithAccount(ctx, q.UserID, func(ctx context.Context, _ *model.Account) error {
			o, err := s.ownedPending(ctx, q.UserID, q.ID)
			if err != nil {
				return err
			}
			cancelled, err = s.cancelLocked(ctx, o)
			return err
		})
		if err != nil {
			if !errors.Is(err, apperr.ErrNotFound) && !errors.Is(err, apperr.ErrInvalidState) {
				s.log.Error().Err(err).Str("order_id", q.ID).Msg("expire order")
			}
			continue
		}
		s.log.Info().Str("user_id", q.UserID).Str("order_id", q.ID).Msg("order expired")
		s.emit(events.New(types.EventOrderCancelled, q.UserID, cancelled))
		out = append(out, cancelled)
	}
	return out
}

func crossed(side types.OrderSide, limit, price decimal.Decimal) bool {
	if side == types.OrderSideSell {
		return price.GreaterThanOrEqual(limit)
	}
	return price.LessThanOrEqual(limit)
}

type entryOutcome int

const (
	entrySkipped entryOutcome = iota
	entryFilled
	entryCancelled
)

// TriggerEntryOrders fills resting orders on symbol whose level price has
// reached, at their limit price. An order whose account cannot carry the
// margin at fill time is cancelled.
func (s *Service) TriggerEntryOrders(ctx context.Context, symbol string, price decimal.Decimal) []MarketResult {
	symbol = normalizeSymbol(symbol)
	var out []MarketResult
	for _, q := range s.queue.LimitOrders(symbol) {
		if !crossed(q.Side, q.Price, price) {
			continue
		}
		res, outcome, err := s.fillEntry(ctx, q.UserID, q.ID, price)
		if err != nil {
			if !errors.Is(err, apperr.ErrNotFound) && !errors.Is(err, apperr.ErrInvalidState) && !errors.Is(err, apperr.ErrMarketClosed) {
				s.log.Error().Err(err).Str("order_id", q.ID).Msg("trigger entry order")
			}
			continue
		}
		switch outcome {
		case entryCancelled:
			s.emit(events.New(types.EventOrderCancelled, q.UserID, res.Order))
		case entryFilled:
			s.metrics.Fill(string(res.Order.AssetClass), false)
			s.log.Info().Str("user_id", q.UserID).Str("order_id", q.ID).Str("price", res.Position.EntryPrice.String()).Msg("entry order filled")
			s.emit(events.New(types.EventOrderFilled, q.UserID, res))
			s.refreshMetrics(ctx, q.UserID)
			out = append(out, res)
		}
	}
	s.metrics.SetQueueDepth(s.queue.Len())
	return out
}

// fillEntry decides on the stored order under the account lock. The queue
// snapshot the trigger scanned may predate a Modify, so its price and size
// are not trusted here.
func (s *Service) fillEntry(ctx context.Context, userID, id string, price decimal.Decimal) (MarketResult, entryOutcome, error) {
	var res MarketResult
	outcome := entrySkipped
	err := s.ledger.WithAccount(ctx, userID, func(ctx context.Context, acc *model.Account) error {
		o, err := s.ownedPending(ctx, userID, id)
		if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrInvalidState) {
			s.queue.Remove(id)
		}
		if err != nil {
			return err
		}
		if o.Price == nil {
			s.queue.Remove(id)
			return apperr.InvalidState("entry order %s has no price", id)
		}
		limit := *o.Price
		units := o.Qty.Sub(o.FilledQty)
		if !crossed(o.Side, limit, price) {
			return nil
		}
		if !s.gate.IsOpen(o.AssetClass) {
			return apperr.MarketClosed(string(o.AssetClass))
		}
		required := margin.Required(limit, units, o.AssetClass)
		if acc.AvailableFunds.LessThan(required) {
			o, err = s.cancelLocked(ctx, o)
			res.Order = o
			outcome = entryCancelled
			return err
		}
		now := s.gate.Now()
		o.Status = types.OrderStatusFilled
		o.FilledQty = o.Qty
		o.FilledAt = &now
		o.UpdatedAt = &now
		pos, err := s.positions.Manager().Open(ctx, acc, o, limit, units)
		if err != nil {
			return err
		}
		if err := s.orders.SaveOrder(ctx, o); err != nil {
			return fmt.Errorf("save order: %w", err)
		}
		store.AfterCommit(ctx, func() { s.queue.Remove(id) })
		res = MarketResult{Order: o, Position: pos}
		outcome = entryFilled
		return nil
	})
	if err != nil {
		return MarketResult{}, entrySkipped, err
	}
	return res, outcome, nil
}

// Rebuild loads resting orders from the repository into the queue.
func (s *Service) Rebuild(ctx context.Context) error {
	pending, err := s.orders.ListPendingOrders(ctx)
	if err != nil {
		return fmt.Errorf("list pending orders: %w", err)
	}
	for _, o := range pending {
		if o.Type != types.OrderTypeEntry {
			continue
		}
		s.queue.AddLimitOrder(queuedFrom(o))
	}
	s.metrics.SetQueueDepth(s.queue.Len())
	s.log.Info().Int("orders", len(pending)).Msg("order queue rebuilt")
	return nil
}

// OnPrice expires stale orders and then fills those the new price reaches.
func (s *Service) OnPrice(ctx context.Context, symbol string, price decimal.Decimal) {
	s.SweepExpired(ctx, s.gate.Now())
	s.TriggerEntryOrders(ctx, symbol, price)
}

func (s *Service) refreshMetrics(ctx context.Context, userID string) {
	if _, err := s.ledger.Metrics(ctx, userID); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("metrics refresh failed")
	}
}

func (s *Service) emit(evt events.Event) {
	s.metrics.EventEmitted(string(evt.Type))
	s.bus.Emit(evt)
}
