package httpserver

import (
	"net/http"
	"strings"
	"time"

	"lv-tradesim/internal/auth"
	"lv-tradesim/internal/events"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WSHandler streams the caller's own events from the bus.
type WSHandler struct {
	bus      *events.Bus
	authSvc  *auth.Service
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewWSHandler(bus *events.Bus, authSvc *auth.Service, origin string, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		bus:     bus,
		authSvc: authSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return allowOrigin(r, origin) },
		},
		log: log,
	}
}

func allowOrigin(r *http.Request, origin string) bool {
	if origin == "" || origin == "*" {
		return true
	}
	reqOrigin := r.Header.Get("Origin")
	if reqOrigin == "" {
		return true
	}
	return strings.EqualFold(reqOrigin, origin)
}

// visible reports whether evt belongs on userID's stream. Events without a
// user are broadcast.
func visible(evt events.Event, userID string) bool {
	return evt.UserID == "" || evt.UserID == userID
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	userID, err := h.authSvc.ParseToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	sub := h.bus.Subscribe()
	defer h.bus.Unsubscribe(sub)
	h.log.Debug().Str("user_id", userID).Msg("ws connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	for {
		select {
		case evt, ok := <-sub:
			if !ok {
				return
			}
			if !visible(evt, userID) {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
