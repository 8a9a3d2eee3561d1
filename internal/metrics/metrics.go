package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()
	once     sync.Once

	matchingLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "matching_latency_seconds",
		Help:    "Latency of order submission and matching in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	ordersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_submitted_total",
			Help: "Total number of order submissions by side and result.",
		},
		[]string{"side", "result"},
	)
	tradesCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trades_created_total",
			Help: "Total number of trades created.",
		},
		[]string{"pair"},
	)
	orderbookDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orderbook_depth",
			Help: "Current number of resting orders per side.",
		},
		[]string{"pair", "side"},
	)
	internalInconsistencies = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "matching_internal_inconsistencies_total",
		Help: "Total number of aborted matching passes due to inconsistent state.",
	})
	eventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "engine_events_dropped_total",
		Help: "Total number of engine events dropped because the buffer was full.",
	})
	publishErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_publish_errors_total",
			Help: "Total number of event stream publish errors.",
		},
		[]string{"stream"},
	)
)

// Init registers metrics with the registry once.
func Init() {
	once.Do(func() {
		registry.MustRegister(
			prometheus.NewGoCollector(),
			prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
			matchingLatency,
			ordersSubmitted,
			tradesCreated,
			orderbookDepth,
			internalInconsistencies,
			eventsDropped,
			publishErrors,
		)
	})
}

// Handler exposes the Prometheus metrics endpoint handler.
func Handler() http.Handler {
	Init()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ObserveMatchingLatency records a submission latency duration.
func ObserveMatchingLatency(d time.Duration) {
	Init()
	matchingLatency.Observe(d.Seconds())
}

// IncOrdersSubmitted increments the submission counter for a side and result.
func IncOrdersSubmitted(side, result string) {
	Init()
	ordersSubmitted.WithLabelValues(side, result).Inc()
}

// IncTradesCreated increments the trades created counter for a pair.
func IncTradesCreated(pair string) {
	Init()
	tradesCreated.WithLabelValues(pair).Inc()
}

// SetOrderbookDepth sets the current orderbook depth for a pair and side.
func SetOrderbookDepth(pair, side string, depth float64) {
	Init()
	orderbookDepth.WithLabelValues(pair, side).Set(depth)
}

// IncInternalInconsistency increments the aborted matching pass counter.
func IncInternalInconsistency() {
	Init()
	internalInconsistencies.Inc()
}

// IncEventsDropped increments the dropped engine event counter.
func IncEventsDropped() {
	Init()
	eventsDropped.Inc()
}

// IncPublishError increments the event publish error counter for a stream.
func IncPublishError(stream string) {
	Init()
	publishErrors.WithLabelValues(stream).Inc()
}
