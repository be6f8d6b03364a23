package ledger

import (
	"net/http"
	"strings"

	"lv-tradesim/internal/apperr"
	"lv-tradesim/internal/httputil"

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

func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request, userID string) {
	acc, err := h.svc.Metrics(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, acc)
}

type depositRequest struct {
	UserID string `json:"user_id"`
	Amount string `json:"amount"`
}

// Deposit credits an account from the internal API.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		httputil.WriteError(w, h.log, apperr.Validation("user_id is required"))
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		httputil.WriteError(w, h.log, apperr.Validation("invalid amount"))
		return
	}
	acc, err := h.svc.Deposit(r.Context(), userID, amount)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, acc)
}
