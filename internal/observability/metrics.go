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
			Namespace: "armlink",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total diagnostics HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "armlink",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Diagnostics HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "armlink",
			Subsystem: "command",
			Name:      "total",
			Help:      "Dispatched controller commands by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "armlink",
			Subsystem: "command",
			Name:      "duration_seconds",
			Help:      "Request to response latency of controller commands.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30},
		},
		[]string{"kind"},
	)
	cycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "armlink",
			Subsystem: "cycle",
			Name:      "total",
			Help:      "State exchange cycles by result.",
		},
		[]string{"result"},
	)
	missedCycles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "armlink",
			Subsystem: "cycle",
			Name:      "missed_total",
			Help:      "State messages skipped between consecutive periodic reads.",
		},
	)
	staleStates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "armlink",
			Subsystem: "transport",
			Name:      "stale_states_dropped_total",
			Help:      "State datagrams replaced by a newer one before being read.",
		},
	)
	sessionAborts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "armlink",
			Subsystem: "transport",
			Name:      "aborts_total",
			Help:      "Sessions ended by a fatal transport failure.",
		},
		[]string{"channel"},
	)
	motions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "armlink",
			Subsystem: "motion",
			Name:      "total",
			Help:      "Motion lifecycle terminations by result.",
		},
		[]string{"result"},
	)
	activeMotion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "armlink",
			Subsystem: "motion",
			Name:      "active",
			Help:      "1 while a motion is starting or running.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			commands, commandDuration,
			cycles, missedCycles,
			staleStates, sessionAborts,
			motions, activeMotion,
		)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func RecordCommand(kind, outcome string, duration time.Duration) {
	RegisterMetrics()
	commands.WithLabelValues(kind, outcome).Inc()
	commandDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func RecordCycle(result string, missed uint64) {
	RegisterMetrics()
	cycles.WithLabelValues(result).Inc()
	if missed > 0 {
		missedCycles.Add(float64(missed))
	}
}

func RecordStaleState() {
	RegisterMetrics()
	staleStates.Inc()
}

func RecordSessionAbort(channel string) {
	RegisterMetrics()
	sessionAborts.WithLabelValues(channel).Inc()
}

func RecordMotionEnd(result string) {
	RegisterMetrics()
	motions.WithLabelValues(result).Inc()
	activeMotion.Set(0)
}

func SetMotionActive() {
	RegisterMetrics()
	activeMotion.Set(1)
}
