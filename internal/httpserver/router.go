package httpserver

import (
	"net/http"
	"time"

	"lv-tradesim/internal/auth"
	"lv-tradesim/internal/health"
	"lv-tradesim/internal/httputil"
	"lv-tradesim/internal/ledger"
	"lv-tradesim/internal/orders"
	"lv-tradesim/internal/positions"
	"lv-tradesim/internal/pricefeed"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

type RouterDeps struct {
	OrderHandler    *orders.Handler
	PositionHandler *positions.Handler
	LedgerHandler   *ledger.Handler
	PriceHandler    *pricefeed.Handler
	HealthHandler   *health.Handler
	AuthService     *auth.Service
	WSHandler       http.Handler
	MetricsHandler  http.Handler
	RateLimiter     *RateLimiter
	InternalToken   string
	Origin          string
	Log             zerolog.Logger
}

// userHandler is a handler that receives the authenticated user id.
type userHandler func(w http.ResponseWriter, r *http.Request, userID string)

func withUser(h userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := UserID(r)
		if !ok {
			httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
			return
		}
		h(w, r, userID)
	}
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	origins := []string{"*"}
	if d.Origin != "" && d.Origin != "*" {
		origins = []string{d.Origin}
	}
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Internal-Token"},
		AllowCredentials: d.Origin != "" && d.Origin != "*",
	}).Handler)
	r.Use(SecurityHeaders)
	r.Use(AccessLog(d.Log))
	if d.RateLimiter != nil {
		r.Use(d.RateLimiter.Middleware)
	}

	hh := d.HealthHandler
	if hh == nil {
		hh = health.NewHandler(nil, time.Now())
	}
	r.Get("/health", hh.Ready)
	r.Get("/health/live", hh.Live)
	if d.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", d.MetricsHandler)
	}
	if d.WSHandler != nil {
		r.Get("/ws", d.WSHandler.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(WithAuth(d.AuthService))
		r.Post("/orders/market", withUser(d.OrderHandler.PlaceMarket))
		r.Post("/orders/entry", withUser(d.OrderHandler.PlaceEntry))
		r.Get("/orders", withUser(d.OrderHandler.List))
		r.Get("/orders/pending", withUser(d.OrderHandler.ListPending))
		r.Get("/orders/{id}", withUser(d.OrderHandler.Get))
		r.Put("/orders/{id}", withUser(d.OrderHandler.Modify))
		r.Delete("/orders/{id}", withUser(d.OrderHandler.Cancel))

		r.Get("/positions", withUser(d.PositionHandler.List))
		r.Get("/positions/history", withUser(d.PositionHandler.History))
		r.Post("/positions/{id}/close", withUser(d.PositionHandler.Close))

		r.Get("/account/metrics", withUser(d.LedgerHandler.Metrics))
	})

	r.Route("/internal", func(r chi.Router) {
		r.Use(InternalAuth(d.InternalToken))
		r.Get("/prices", d.PriceHandler.List)
		r.Post("/prices", d.PriceHandler.Update)
		r.Post("/deposits", d.LedgerHandler.Deposit)
	})

	return r
}
