package positions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lv-tradesim/internal/apperr"
	"lv-tradesim/internal/events"
	"lv-tradesim/internal/ledger"
	"lv-tradesim/internal/margin"
	"lv-tradesim/internal/model"
	"lv-tradesim/internal/observability"
	"lv-tradesim/internal/pricefeed"
	"lv-tradesim/internal/store"
	"lv-tradesim/internal/types"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type Service struct {
	mgr     *Manager
	repo    store.PositionRepository
	ledger  *ledger.Service
	oracle  pricefeed.Oracle
	bus     events.Broadcaster
	metrics *observability.Metrics
	stopOut decimal.Decimal
	log     zerolog.Logger
}

func NewService(mgr *Manager, repo store.PositionRepository, ledgerSvc *ledger.Service, oracle pricefeed.Oracle, bus events.Broadcaster, metrics *observability.Metrics, stopOut decimal.Decimal, log zerolog.Logger) *Service {
	if bus == nil {
		bus = events.Discard{}
	}
	return &Service{mgr: mgr, repo: repo, ledger: ledgerSvc, oracle: oracle, bus: bus, metrics: metrics, stopOut: stopOut, log: log}
}

func (s *Service) Manager() *Manager {
	return s.mgr
}

// Close settles the caller's position at the current quote.
func (s *Service) Close(ctx context.Context, userID, id string) (model.ClosedPosition, error) {
	pos, err := s.repo.GetPosition(ctx, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && pos.UserID != userID) {
		return model.ClosedPosition{}, ErrPositionNotFound
	}
	if err != nil {
		return model.ClosedPosition{}, fmt.Errorf("load position: %w", err)
	}
	price, ok := s.oracle.CurrentPrice(pos.Symbol)
	if !ok {
		return model.ClosedPosition{}, apperr.Validation("no price available for %s", pos.Symbol)
	}
	return s.closeAt(ctx, userID, id, price, "manual")
}

func (s *Service) closeAt(ctx context.Context, userID, id string, price decimal.Decimal, trigger string) (model.ClosedPosition, error) {
	var closed model.ClosedPosition
	err := s.ledger.WithAccount(ctx, userID, func(ctx context.Context, acc *model.Account) error {
		var err error
		closed, err = s.mgr.Close(ctx, acc, userID, id, price)
		return err
	})
	if err != nil {
		return model.ClosedPosition{}, err
	}
	s.metrics.PositionClosed(trigger)
	s.log.Info().
		Str("user_id", userID).
		Str("position_id", id).
		Str("price", price.String()).
		Str("pnl", closed.PnL.String()).
		Str("trigger", trigger).
		Msg("position closed")
	s.emit(events.New(types.EventPositionClosed, userID, closed))
	if _, err := s.ledger.Metrics(ctx, userID); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("metrics refresh failed")
	}
	return closed, nil
}

// List returns open positions valued at current quotes, with their
// liquidation price.
func (s *Service) List(ctx context.Context, userID string) ([]model.Position, error) {
	open, err := s.repo.ListPositions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	out := make([]model.Position, 0, len(open))
	for _, p := range open {
		out = append(out, s.decorate(p))
	}
	return out, nil
}

func (s *Service) decorate(p model.Position) model.Position {
	price := p.EntryPrice
	if px, ok := s.oracle.CurrentPrice(p.Symbol); ok {
		price = px
	}
	p.UnrealizedPnL = p.PnLAt(price)
	liq := margin.LiquidationPrice(p.Side, p.EntryPrice, p.AssetClass, s.stopOut)
	p.LiquidationPrice = &liq
	return p
}

func (s *Service) History(ctx context.Context, userID string) ([]model.ClosedPosition, error) {
	out, err := s.repo.ListClosedPositions(ctx, userID, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("list closed positions: %w", err)
	}
	return out, nil
}

// DailyLoss sums the realized losses of assetClass since UTC midnight, as a
// positive number.
func (s *Service) DailyLoss(ctx context.Context, userID string, assetClass types.AssetClass, now time.Time) (decimal.Decimal, error) {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	closed, err := s.repo.ListClosedPositions(ctx, userID, midnight)
	if err != nil {
		return decimal.Zero, fmt.Errorf("list closed positions: %w", err)
	}
	loss := decimal.Zero
	for _, c := range closed {
		if c.Position.AssetClass.Normalize() != assetClass.Normalize() || !c.PnL.IsNegative() {
			continue
		}
		loss = loss.Sub(c.PnL)
	}
	return loss, nil
}

// stopHit reports which protective level price crossed, if any.
func stopHit(p model.Position, price decimal.Decimal) string {
	if p.Side == types.OrderSideSell {
		if p.StopLoss != nil && price.GreaterThanOrEqual(*p.StopLoss) {
			return "stop_loss"
		}
		if p.TakeProfit != nil && price.LessThanOrEqual(*p.TakeProfit) {
			return "take_profit"
		}
		return ""
	}
	if p.StopLoss != nil && price.LessThanOrEqual(*p.StopLoss) {
		return "stop_loss"
	}
	if p.TakeProfit != nil && price.GreaterThanOrEqual(*p.TakeProfit) {
		return "take_profit"
	}
	return ""
}

// CheckProtectiveStops closes every position on symbol whose stop loss or
// take profit price has crossed.
func (s *Service) CheckProtectiveStops(ctx context.Context, symbol string, price decimal.Decimal) []model.ClosedPosition {
	open, err := s.repo.ListPositionsBySymbol(ctx, symbol)
	if err != nil {
		s.log.Error().Err(err).Str("symbol", symbol).Msg("list positions for stops")
		return nil
	}
	var out []model.ClosedPosition
	for _, p := range open {
		trigger := stopHit(p, price)
		if trigger == "" {
			continue
		}
		closed, err := s.closeAt(ctx, p.UserID, p.ID, price, trigger)
		if err != nil {
			if !errors.Is(err, apperr.ErrNotFound) {
				s.log.Error().Err(err).Str("position_id", p.ID).Msg("protective close failed")
			}
			continue
		}
		out = append(out, closed)
	}
	return out
}

func (s *Service) OnPrice(ctx context.Context, symbol string, price decimal.Decimal) {
	s.CheckProtectiveStops(ctx, symbol, price)
}

func (s *Service) emit(evt events.Event) {
	s.metrics.EventEmitted(string(evt.Type))
	s.bus.Emit(evt)
}
