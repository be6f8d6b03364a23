package pricefeed

import (
	"context"
	"net/http"

	"lv-tradesim/internal/httputil"

	"github.com/shopspring/decimal"
)

// Listener is notified after a quote changes so resting orders and
// protective stops can react to it.
type Listener interface {
	OnPrice(ctx context.Context, symbol string, price decimal.Decimal)
}

type Handler struct {
	store     *Store
	listeners []Listener
}

func NewHandler(store *Store, listeners ...Listener) *Handler {
	return &Handler{store: store, listeners: listeners}
}

type updatePriceRequest struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req updatePriceRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid price"})
		return
	}
	if err := h.store.Set(req.Symbol, price); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	symbol := normalizeSymbol(req.Symbol)
	for _, l := range h.listeners {
		l.OnPrice(r.Context(), symbol, price)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"symbol": symbol, "price": price.String()})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.store.Quotes())
}
