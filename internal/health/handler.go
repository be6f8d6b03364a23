package health

import (
	"context"
	"net/http"
	"time"

	"lv-tradesim/internal/httputil"
)

// Pinger is satisfied by *pgxpool.Pool. A nil Pinger means the in-memory
// store is in use and readiness never degrades.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	db        Pinger
	startedAt time.Time
	timeout   time.Duration
}

func NewHandler(db Pinger, startedAt time.Time) *Handler {
	start := startedAt.UTC()
	if start.IsZero() {
		start = time.Now().UTC()
	}
	return &Handler{db: db, startedAt: start, timeout: time.Second}
}

type liveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	UptimeSec int64  `json:"uptime_sec"`
	Uptime    string `json:"uptime"`
}

type readinessResponse struct {
	liveResponse
	Database databaseStat `json:"database"`
}

type databaseStat struct {
	Configured bool   `json:"configured"`
	Reachable  bool   `json:"reachable"`
	PingMs     int64  `json:"ping_ms"`
	Error      string `json:"error,omitempty"`
}

func (h *Handler) live(now time.Time) liveResponse {
	uptime := now.Sub(h.startedAt)
	if uptime < 0 {
		uptime = 0
	}
	return liveResponse{
		Status:    "ok",
		Timestamp: now.Format(time.RFC3339),
		UptimeSec: int64(uptime.Seconds()),
		Uptime:    uptime.String(),
	}
}

func (h *Handler) ping(ctx context.Context) databaseStat {
	if h.db == nil {
		return databaseStat{Reachable: true}
	}
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	err := h.db.Ping(ctx)
	stat := databaseStat{Configured: true, PingMs: time.Since(start).Milliseconds()}
	if err != nil {
		stat.Error = err.Error()
		return stat
	}
	stat.Reachable = true
	return stat
}

// Live does not touch the database.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.live(time.Now().UTC()))
}

// Ready returns 503 when the configured database does not answer a ping.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	resp := readinessResponse{liveResponse: h.live(time.Now().UTC()), Database: h.ping(r.Context())}
	status := http.StatusOK
	if !resp.Database.Reachable {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, resp)
}
