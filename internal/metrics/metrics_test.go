package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RegisterAndRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("order-service")
	require.NoError(t, m.Register(reg))

	m.RecordOrderPlaced()
	m.RecordOrderPlaced()
	m.RecordOrderRejected("insufficient_stock")
	m.RecordPublish("rabbitmq", ResultDelivered)
	m.RecordHTTPRequest("POST", "/orders", 201, 15*time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.OrdersPlaced))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.OrdersRejected.WithLabelValues("insufficient_stock")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsPublished.WithLabelValues("rabbitmq", ResultDelivered)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST", "/orders", "201")))
}

func TestMetrics_DoubleRegisterFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, New("customer-service").Register(reg))

	assert.Error(t, New("customer-service").Register(reg))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordOrderPlaced()
		m.RecordOrderRejected("validation")
		m.RecordPublish("kafka", ResultFailed)
		m.RecordConsumed("kafka", ResultAcked)
		m.RecordProjection(ResultCreated)
		m.RecordRelay(ResultDelivered)
		m.RecordHTTPRequest("GET", "/healthz", 200, time.Millisecond)
	})
}

func TestHandler_ExposesMetricNames(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("customer-service")
	require.NoError(t, m.Register(reg))
	m.RecordProjection(ResultDuplicate)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `ecommerce_customer_service_customer_order_projections_total{result="duplicate"} 1`)
}
