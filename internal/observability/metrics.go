package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "radioctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total diagnostics HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "radioctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Diagnostics HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	transactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "radioctl",
			Subsystem: "driver",
			Name:      "transactions_total",
			Help:      "Resolved outbound messages by terminal state.",
		},
		[]string{"state"},
	)
	transactionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "radioctl",
			Subsystem: "driver",
			Name:      "transaction_duration_seconds",
			Help:      "Time from transmit start to resolution.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"state"},
	)
	retries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "radioctl",
			Subsystem: "driver",
			Name:      "retries_total",
			Help:      "Retransmissions by cause.",
		},
		[]string{"cause"},
	)
	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "radioctl",
			Subsystem: "driver",
			Name:      "frames_received_total",
			Help:      "Frames extracted from the channel by kind.",
		},
		[]string{"kind"},
	)
	framingErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "radioctl",
			Subsystem: "driver",
			Name:      "framing_errors_total",
			Help:      "Discarded bytes by framing error.",
		},
		[]string{"reason"},
	)
	loopRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "radioctl",
			Subsystem: "driver",
			Name:      "loop_restarts_total",
			Help:      "Supervised worker loop restarts.",
		},
		[]string{"loop"},
	)
	desyncs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "radioctl",
			Subsystem: "driver",
			Name:      "desyncs_total",
			Help:      "Receive buffers abandoned after never completing a frame.",
		},
	)
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "radioctl",
			Subsystem: "driver",
			Name:      "queue_depth",
			Help:      "Outbound messages waiting for transmission.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			transactions, transactionDuration, retries,
			framesReceived, framingErrors, loopRestarts, desyncs, queueDepth,
		)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func RecordTransaction(state string, duration time.Duration) {
	RegisterMetrics()
	transactions.WithLabelValues(state).Inc()
	transactionDuration.WithLabelValues(state).Observe(duration.Seconds())
}

func RecordRetry(cause string) {
	RegisterMetrics()
	retries.WithLabelValues(cause).Inc()
}

func RecordFrame(kind string) {
	RegisterMetrics()
	framesReceived.WithLabelValues(kind).Inc()
}

func RecordFramingError(reason string) {
	RegisterMetrics()
	framingErrors.WithLabelValues(reason).Inc()
}

func RecordLoopRestart(loop string) {
	RegisterMetrics()
	loopRestarts.WithLabelValues(loop).Inc()
}

func RecordDesync() {
	RegisterMetrics()
	desyncs.Inc()
}

func SetQueueDepth(n int) {
	RegisterMetrics()
	queueDepth.Set(float64(n))
}
