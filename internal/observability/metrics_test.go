package observability

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCountAndServe(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.OrderPlaced("market", "CRYPTO")
	m.OrderPlaced("market", "CRYPTO")
	m.Fill("CRYPTO", true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `tradesim_orders_placed_total{asset_class="CRYPTO",order_type="market"} 2`)
	assert.Contains(t, body, `tradesim_fills_total{asset_class="CRYPTO",kind="partial"} 1`)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.OrderPlaced("entry", "FOREX")
		m.EventEmitted("ORDER_FILLED")
		m.SetQueueDepth(3)
	})
}

func TestLoggerCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerTo(&buf, "orders", zerolog.InfoLevel)
	log.Debug().Msg("hidden")
	log.Info().Msg("shown")
	out := buf.String()
	assert.False(t, strings.Contains(out, "hidden"))
	assert.Contains(t, out, `"component":"orders"`)
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("WARN"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("bogus"))
}
