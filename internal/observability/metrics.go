package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	OrdersPlaced    *prometheus.CounterVec
	OrdersRejected  *prometheus.CounterVec
	Fills           *prometheus.CounterVec
	PositionsClosed *prometheus.CounterVec
	EventsEmitted   *prometheus.CounterVec
	QueueDepth      prometheus.Gauge

	gatherer prometheus.Gatherer
}

// NewMetrics registers every metric on reg. Pass prometheus.NewRegistry() in
// tests so repeated construction does not collide.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OrdersPlaced: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesim_orders_placed_total",
			Help: "Orders accepted, by order type",
		}, []string{"order_type", "asset_class"}),

		OrdersRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesim_orders_rejected_total",
			Help: "Orders refused, by reason kind",
		}, []string{"order_type", "reason"}),

		Fills: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesim_fills_total",
			Help: "Simulated fills, full or partial",
		}, []string{"asset_class", "kind"}),

		PositionsClosed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesim_positions_closed_total",
			Help: "Closed positions, by trigger",
		}, []string{"trigger"}),

		EventsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesim_events_emitted_total",
			Help: "Events handed to the broadcaster",
		}, []string{"event_type"}),

		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "tradesim_resting_orders",
			Help: "Entry orders resting in the queue",
		}),

		gatherer: reg,
	}
}

func (m *Metrics) OrderPlaced(orderType, assetClass string) {
	if m == nil {
		return
	}
	m.OrdersPlaced.WithLabelValues(orderType, assetClass).Inc()
}

func (m *Metrics) OrderRejected(orderType, reason string) {
	if m == nil {
		return
	}
	m.OrdersRejected.WithLabelValues(orderType, reason).Inc()
}

func (m *Metrics) Fill(assetClass string, partial bool) {
	if m == nil {
		return
	}
	kind := "full"
	if partial {
		kind = "partial"
	}
	m.Fills.WithLabelValues(assetClass, kind).Inc()
}

func (m *Metrics) PositionClosed(trigger string) {
	if m == nil {
		return
	}
	m.PositionsClosed.WithLabelValues(trigger).Inc()
}

func (m *Metrics) EventEmitted(eventType string) {
	if m == nil {
		return
	}
	m.EventsEmitted.WithLabelValues(eventType).Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
