package matching

import (
	"context"
	"fmt"

	"lv-tradesim/internal/markethours"
	"lv-tradesim/internal/types"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusFilled   Status = "filled"
	StatusRejected Status = "rejected"
	StatusFailed   Status = "failed"
)

// Reason classifies a rejection so callers can pick a status code.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonMarketClosed       Reason = "market_closed"
	ReasonInsufficientMargin Reason = "insufficient_margin"
	ReasonRisk               Reason = "risk"
	ReasonNoLiquidity        Reason = "no_liquidity"
	ReasonInvalid            Reason = "invalid"
	ReasonBook               Reason = "book"
)

type Request struct {
	Symbol          string
	AssetClass      types.AssetClass
	Side            types.OrderSide
	Units           decimal.Decimal
	ReferencePrice  decimal.Decimal
	UserID          string
	AvailableMargin decimal.Decimal
	DailyLoss       decimal.Decimal
}

type Result struct {
	Status       Status
	Reason       Reason
	FilledUnits  decimal.Decimal
	AveragePrice decimal.Decimal
	Slippage     decimal.Decimal
	Message      string
	BookID       string
}

func (r Result) Partial(requested decimal.Decimal) bool {
	return r.Status == StatusFilled && r.FilledUnits.LessThan(requested)
}

// OrderBook records the transient market order a fill consumed.
type OrderBook interface {
	RecordMarketFill(userID, symbol string, side types.OrderSide, requested, filled decimal.Decimal) (string, error)
}

type Engine struct {
	gate      *markethours.Gate
	risk      *RiskChecker
	liquidity LiquidityModel
	slippage  SlippageFunc
	book      OrderBook
	log       zerolog.Logger
}

func NewEngine(gate *markethours.Gate, risk *RiskChecker, liquidity LiquidityModel, book OrderBook, log zerolog.Logger) *Engine {
	if gate == nil {
		gate = markethours.NewGate(nil)
	}
	if liquidity == nil {
		liquidity = FullLiquidity{}
	}
	return &Engine{gate: gate, risk: risk, liquidity: liquidity, slippage: DefaultSlippage, book: book, log: log}
}

// WithSlippage replaces the slippage model.
func (e *Engine) WithSlippage(fn SlippageFunc) *Engine {
	if fn != nil {
		e.slippage = fn
	}
	return e
}

func rejected(reason Reason, msg string) Result {
	return Result{Status: StatusRejected, Reason: reason, Message: msg}
}

// Execute simulates a market fill. Every outcome is reported in the Result;
// Execute never returns an error and a refused request may be resubmitted.
func (e *Engine) Execute(ctx context.Context, req Request) Result {
	if !req.Units.IsPositive() || !req.ReferencePrice.IsPositive() || !req.Side.Valid() || req.Symbol == "" {
		return Result{Status: StatusFailed, Reason: ReasonInvalid, Message: "invalid order request"}
	}
	if !e.gate.IsOpen(req.AssetClass) {
		return rejected(ReasonMarketClosed, fmt.Sprintf("Market is closed for %s", req.AssetClass.Normalize()))
	}
	if reason, msg := e.risk.Check(req); reason != ReasonNone {
		return rejected(reason, msg)
	}

	depth := e.liquidity.Depth(req.Symbol, req.Side, req.Units)
	filled := decimal.Min(req.Units, depth).Truncate(8)
	slip := e.slippage(req.AssetClass, filled)
	if !filled.IsPositive() {
		return rejected(ReasonNoLiquidity, "no liquidity")
	}

	price := req.ReferencePrice.Mul(decimal.NewFromInt(1).Add(slip))
	if req.Side == types.OrderSideSell {
		price = req.ReferencePrice.Mul(decimal.NewFromInt(1).Sub(slip))
	}

	res := Result{Status: StatusFilled, FilledUnits: filled, AveragePrice: price, Slippage: slip}
	if e.book != nil {
		id, err := e.book.RecordMarketFill(req.UserID, req.Symbol, req.Side, req.Units, filled)
		if err != nil {
			e.log.Error().Err(err).Str("symbol", req.Symbol).Msg("record market fill")
			return Result{Status: StatusFailed, Reason: ReasonBook, Message: "order book unavailable"}
		}
		res.BookID = id
	}
	if filled.Equal(req.Units) {
		res.Message = "fully filled"
	} else {
		res.Message = fmt.Sprintf("partially filled %s of %s", filled.String(), req.Units.String())
	}
	e.log.Debug().
		Str("user_id", req.UserID).
		Str("symbol", req.Symbol).
		Str("filled", filled.String()).
		Str("price", price.String()).
		Msg("market fill")
	return res
}
