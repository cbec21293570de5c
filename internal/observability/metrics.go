package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feedctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "feedctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	sessionAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feedctl",
			Subsystem: "stream",
			Name:      "attempts_total",
			Help:      "Connection attempts by terminal outcome.",
		},
		[]string{"outcome"},
	)
	sessionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "feedctl",
			Subsystem: "stream",
			Name:      "attempt_duration_seconds",
			Help:      "Connection attempt lifetime in seconds.",
			Buckets:   []float64{0.1, 1, 5, 30, 90, 300, 900, 3600, 21600},
		},
		[]string{"outcome"},
	)
	streamConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "feedctl",
			Subsystem: "stream",
			Name:      "connected",
			Help:      "1 while a 2xx stream is being read.",
		},
	)
	backoffSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "feedctl",
			Subsystem: "stream",
			Name:      "backoff_seconds",
			Help:      "Current reconnect backoff value.",
		},
	)
	chunks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feedctl",
			Subsystem: "stream",
			Name:      "chunks_total",
			Help:      "Inbound chunks by classification.",
		},
		[]string{"kind"},
	)
	dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feedctl",
			Subsystem: "consumer",
			Name:      "dispatch_total",
			Help:      "Record deliveries by result.",
		},
		[]string{"consumer", "result"},
	)
	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "feedctl",
			Subsystem: "consumer",
			Name:      "consume_duration_seconds",
			Help:      "Consumer call duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 5.0},
		},
		[]string{"consumer"},
	)
	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "feedctl",
			Subsystem: "consumer",
			Name:      "queue_depth",
			Help:      "Records waiting for a consumer worker.",
		},
		[]string{"consumer"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			sessionAttempts,
			sessionDuration,
			streamConnected,
			backoffSeconds,
			chunks,
			dispatches,
			dispatchDuration,
			queueDepth,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordAttempt(outcome string, duration time.Duration) {
	RegisterMetrics()
	sessionAttempts.WithLabelValues(outcome).Inc()
	sessionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func SetConnected(connected bool) {
	RegisterMetrics()
	if connected {
		streamConnected.Set(1)
		return
	}
	streamConnected.Set(0)
}

func SetBackoff(d time.Duration) {
	RegisterMetrics()
	backoffSeconds.Set(d.Seconds())
}

func RecordChunk(kind string) {
	RegisterMetrics()
	chunks.WithLabelValues(kind).Inc()
}

func RecordDispatch(consumer, result string, duration time.Duration) {
	RegisterMetrics()
	dispatches.WithLabelValues(consumer, result).Inc()
	if duration > 0 {
		dispatchDuration.WithLabelValues(consumer).Observe(duration.Seconds())
	}
}

func SetQueueDepth(consumer string, depth int) {
	RegisterMetrics()
	queueDepth.WithLabelValues(consumer).Set(float64(depth))
}
