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
			Namespace: "ual",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"agent", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ual",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"agent", "method", "path", "status"},
	)
	codecEncodes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ual",
			Subsystem: "codec",
			Name:      "encode_total",
			Help:      "Envelopes encoded by mode (full, delta, handshake).",
		},
		[]string{"mode"},
	)
	codecDecodes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ual",
			Subsystem: "codec",
			Name:      "decode_total",
			Help:      "Envelopes decoded by payload type and result.",
		},
		[]string{"type", "result"},
	)
	codecPayloadBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ual",
			Subsystem: "codec",
			Name:      "payload_bytes",
			Help:      "Serialized envelope size in bytes.",
			Buckets:   prometheus.ExponentialBuckets(32, 2, 12),
		},
		[]string{"direction"},
	)
	compilerDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ual",
			Subsystem: "compiler",
			Name:      "dropped_tokens_total",
			Help:      "Words dropped because no concept resolved.",
		},
	)
	compilerFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ual",
			Subsystem: "compiler",
			Name:      "fallback_total",
			Help:      "Compilations served by the fallback compiler.",
		},
		[]string{"reason"},
	)
	syncDeltaNodes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ual",
			Subsystem: "sync",
			Name:      "delta_nodes",
			Help:      "Nodes carried per delta frame.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64},
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			codecEncodes,
			codecDecodes,
			codecPayloadBytes,
			compilerDropped,
			compilerFallbacks,
			syncDeltaNodes,
		)
	})
}

func RecordHTTPRequest(agent, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(agent, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(agent, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordEncode(mode string, size int) {
	RegisterMetrics()
	codecEncodes.WithLabelValues(mode).Inc()
	codecPayloadBytes.WithLabelValues("out").Observe(float64(size))
}

func RecordDecode(payloadType, result string, size int) {
	RegisterMetrics()
	codecDecodes.WithLabelValues(payloadType, result).Inc()
	codecPayloadBytes.WithLabelValues("in").Observe(float64(size))
}

func RecordDroppedTokens(n int) {
	if n <= 0 {
		return
	}
	RegisterMetrics()
	compilerDropped.Add(float64(n))
}

func RecordCompilerFallback(reason string) {
	RegisterMetrics()
	compilerFallbacks.WithLabelValues(reason).Inc()
}

func RecordDeltaNodes(n int) {
	RegisterMetrics()
	syncDeltaNodes.Observe(float64(n))
}
