// Package metrics holds the Prometheus collectors of both services.
//
// All Record methods are safe on a nil *Metrics so components can run without
// instrumentation in tests.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ecommerce"

// Result labels.
const (
	ResultDelivered    = "delivered"
	ResultUnrouted     = "unrouted"
	ResultFailed       = "failed"
	ResultAcked        = "acked"
	ResultDeadLettered = "dead_lettered"
	ResultCreated      = "created"
	ResultDuplicate    = "duplicate"
)

type Metrics struct {
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	OrdersPlaced   prometheus.Counter
	OrdersRejected *prometheus.CounterVec

	EventsPublished  *prometheus.CounterVec
	MessagesConsumed *prometheus.CounterVec
	Projections      *prometheus.CounterVec
	OutboxRelayed    *prometheus.CounterVec
}

func New(serviceName string) *Metrics {
	subsystem := strings.ReplaceAll(serviceName, "-", "_")
	return &Metrics{
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		OrdersPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "orders_placed_total",
			Help:      "Orders committed",
		}),
		OrdersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "orders_rejected_total",
			Help:      "Orders rejected by kind",
		}, []string{"reason"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_published_total",
			Help:      "OrderCreated publish attempts by transport and result",
		}, []string{"transport", "result"}),
		MessagesConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_consumed_total",
			Help:      "Consumed messages by transport and outcome",
		}, []string{"transport", "result"}),
		Projections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "customer_order_projections_total",
			Help:      "Customer order projection writes",
		}, []string{"result"}),
		OutboxRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_relayed_total",
			Help:      "Outbox events republished by the relay",
		}, []string{"result"}),
	}
}

// Register registers every collector with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.HTTPRequests,
		m.HTTPRequestDuration,
		m.OrdersPlaced,
		m.OrdersRejected,
		m.EventsPublished,
		m.MessagesConsumed,
		m.Projections,
		m.OutboxRelayed,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) RecordOrderPlaced() {
	if m == nil {
		return
	}
	m.OrdersPlaced.Inc()
}

func (m *Metrics) RecordOrderRejected(reason string) {
	if m == nil {
		return
	}
	m.OrdersRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordPublish(transport, result string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(transport, result).Inc()
}

func (m *Metrics) RecordConsumed(transport, result string) {
	if m == nil {
		return
	}
	m.MessagesConsumed.WithLabelValues(transport, result).Inc()
}

func (m *Metrics) RecordProjection(result string) {
	if m == nil {
		return
	}
	m.Projections.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordRelay(result string) {
	if m == nil {
		return
	}
	m.OutboxRelayed.WithLabelValues(result).Inc()
}
