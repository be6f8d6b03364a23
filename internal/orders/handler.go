package orders

import (
	"net/http"
	"time"

	"lv-tradesim/internal/apperr"
	"lv-tradesim/internal/httputil"
	"lv-tradesim/internal/types"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type Handler struct {
	svc *Service
	log zerolog.Logger
}

func NewHandler(svc *Service, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Numeric fields accept JSON numbers or strings.
type placeOrderRequest struct {
	Symbol          string           `json:"symbol"`
	AssetClass      string           `json:"asset_class"`
	Direction       string           `json:"direction"`
	Quantity        *decimal.Decimal `json:"quantity"`
	Price           *decimal.Decimal `json:"price"`
	StopLossPrice   *decimal.Decimal `json:"stop_loss_price"`
	TakeProfitPrice *decimal.Decimal `json:"take_profit_price"`
	Expiration      *time.Time       `json:"expiration"`
}

func (req placeOrderRequest) required() error {
	if req.Symbol == "" || req.AssetClass == "" || req.Direction == "" || req.Quantity == nil {
		return apperr.Validation("symbol, asset_class, direction and quantity are required")
	}
	return nil
}

func (h *Handler) PlaceMarket(w http.ResponseWriter, r *http.Request, userID string) {
	var req placeOrderRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if err := req.required(); err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	if req.Price != nil {
		httputil.WriteError(w, h.log, apperr.Validation("price not allowed for market order"))
		return
	}
	side, _ := types.ParseOrderSide(req.Direction)
	res, err := h.svc.PlaceMarket(r.Context(), MarketOrderRequest{
		UserID:     userID,
		Symbol:     req.Symbol,
		AssetClass: types.AssetClass(req.AssetClass),
		Side:       side,
		Qty:        *req.Quantity,
		StopLoss:   req.StopLossPrice,
		TakeProfit: req.TakeProfitPrice,
	})
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) PlaceEntry(w http.ResponseWriter, r *http.Request, userID string) {
	var req placeOrderRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if err := req.required(); err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	if req.Price == nil {
		httputil.WriteError(w, h.log, apperr.Validation("price is required for entry order"))
		return
	}
	side, _ := types.ParseOrderSide(req.Direction)
	order, err := h.svc.PlaceEntry(r.Context(), EntryOrderRequest{
		UserID:     userID,
		Symbol:     req.Symbol,
		AssetClass: types.AssetClass(req.AssetClass),
		Side:       side,
		Qty:        *req.Quantity,
		Price:      *req.Price,
		StopLoss:   req.StopLossPrice,
		TakeProfit: req.TakeProfitPrice,
		Expiration: req.Expiration,
	})
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, order)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request, userID string) {
	order, err := h.svc.Cancel(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, order)
}

type modifyOrderRequest struct {
	Quantity        *decimal.Decimal `json:"quantity"`
	Price           *decimal.Decimal `json:"price"`
	StopLossPrice   *decimal.Decimal `json:"stop_loss_price"`
	TakeProfitPrice *decimal.Decimal `json:"take_profit_price"`
}

func (h *Handler) Modify(w http.ResponseWriter, r *http.Request, userID string) {
	var req modifyOrderRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	order, err := h.svc.Modify(r.Context(), userID, chi.URLParam(r, "id"), ModifyRequest{
		Qty:        req.Quantity,
		Price:      req.Price,
		StopLoss:   req.StopLossPrice,
		TakeProfit: req.TakeProfitPrice,
	})
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, order)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request, userID string) {
	out, err := h.svc.List(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request, userID string) {
	out, err := h.svc.ListPending(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request, userID string) {
	order, err := h.svc.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, order)
}
