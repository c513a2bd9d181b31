package metrics

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const Namespace = "waiterboard"

// Metrics contains metrics exposed by the board service.
// see PrometheusMetrics for descriptions.
type Metrics struct {
	// Orders entered, by order type.
	OrdersCreated metrics.Counter
	// Audited mutations, by action.
	Mutations metrics.Counter
	// Orders completed by the auto-clear sweep.
	AutoCleared metrics.Counter
	// Orders currently shown, by board.
	BoardSize metrics.Gauge
	// Active orders past their due time.
	Overdue metrics.Gauge
	// Outbox publish attempts, by result.
	Broadcasts metrics.Counter
	// Outbox entries, by state.
	OutboxDepth metrics.Gauge
	// HTTP request latency, by route and status code.
	RequestSeconds metrics.Histogram
}

// PrometheusMetrics returns Metrics registered with the default Prometheus
// registry. Call it once per process.
func PrometheusMetrics() *Metrics {
	return &Metrics{
		OrdersCreated: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "orders",
			Name:      "created_total",
			Help:      "Orders entered.",
		}, []string{"type"}),
		Mutations: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "orders",
			Name:      "mutations_total",
			Help:      "Audited order mutations.",
		}, []string{"action"}),
		AutoCleared: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "orders",
			Name:      "auto_cleared_total",
			Help:      "Orders completed by the auto-clear sweep.",
		}, []string{}),
		BoardSize: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "board",
			Name:      "size",
			Help:      "Orders currently shown on a board.",
		}, []string{"board"}),
		Overdue: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "board",
			Name:      "overdue",
			Help:      "Active orders past their due time.",
		}, []string{}),
		Broadcasts: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "outbox",
			Name:      "broadcasts_total",
			Help:      "Outbox publish attempts.",
		}, []string{"result"}),
		OutboxDepth: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "outbox",
			Name:      "depth",
			Help:      "Outbox entries by state.",
		}, []string{"state"}),
		RequestSeconds: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_seconds",
			Help:      "HTTP request latency.",
			Buckets:   stdprometheus.DefBuckets,
		}, []string{"route", "code"}),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		OrdersCreated:  discard.NewCounter(),
		Mutations:      discard.NewCounter(),
		AutoCleared:    discard.NewCounter(),
		BoardSize:      discard.NewGauge(),
		Overdue:        discard.NewGauge(),
		Broadcasts:     discard.NewCounter(),
		OutboxDepth:    discard.NewGauge(),
		RequestSeconds: discard.NewHistogram(),
	}
}
