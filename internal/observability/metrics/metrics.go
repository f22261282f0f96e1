package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "alarmcast_"

	resultSuccess = "success"
	resultError   = "error"

	sessionConnected    = "connected"
	sessionDisconnected = "disconnected"
)

var (
	registerOnce sync.Once
	gaugeOnce    sync.Once

	pollTicks   *prometheus.CounterVec
	pollLatency *prometheus.HistogramVec
	pollChanges prometheus.Counter

	broadcastCycles  *prometheus.CounterVec
	broadcastLatency *prometheus.HistogramVec

	deliveries      *prometheus.CounterVec
	resolveFailures prometheus.Counter

	sessionEvents *prometheus.CounterVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		pollTicks = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "poll_ticks_total",
				Help: "Total alarm poll ticks by result",
			},
			[]string{"result"},
		)
		pollLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "poll_latency_seconds",
				Help:    "Alarm fetch latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		pollChanges = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "poll_changes_total",
				Help: "Total detected alarm set changes",
			},
		)

		broadcastCycles = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "broadcast_cycles_total",
				Help: "Total broadcast cycles by result",
			},
			[]string{"result"},
		)
		broadcastLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "broadcast_latency_seconds",
				Help:    "Broadcast cycle latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		deliveries = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "deliveries_total",
				Help: "Total per-connection deliveries by result",
			},
			[]string{"result"},
		)
		resolveFailures = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "permission_resolve_failures_total",
				Help: "Total per-user permission resolution failures",
			},
		)

		sessionEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "sessions_total",
				Help: "Total websocket session events by type",
			},
			[]string{"event"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total alarm export operations by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Alarm export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			pollTicks,
			pollLatency,
			pollChanges,
			broadcastCycles,
			broadcastLatency,
			deliveries,
			resolveFailures,
			sessionEvents,
			exportTotal,
			exportLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// RegisterConnectionGauges exposes live registry counts. Safe to call
// once after the registry exists; later calls are ignored.
func RegisterConnectionGauges(onlineUsers, openConnections func() int) {
	if onlineUsers == nil || openConnections == nil {
		return
	}
	gaugeOnce.Do(func() {
		prometheus.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: metricPrefix + "online_users",
				Help: "Users with at least one open connection",
			},
			func() float64 { return float64(onlineUsers()) },
		))
		prometheus.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: metricPrefix + "open_connections",
				Help: "Open websocket connections",
			},
			func() float64 { return float64(openConnections()) },
		))
	})
}

// ObservePollTick records one poll tick's fetch duration and result.
func ObservePollTick(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if pollTicks != nil {
		pollTicks.WithLabelValues(result).Inc()
	}
	if pollLatency != nil {
		pollLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncPollChange increments the detected-change counter.
func IncPollChange() {
	if pollChanges != nil {
		pollChanges.Inc()
	}
}

// ObserveBroadcastCycle records one fan-out cycle's duration and result.
func ObserveBroadcastCycle(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if broadcastCycles != nil {
		broadcastCycles.WithLabelValues(result).Inc()
	}
	if broadcastLatency != nil {
		broadcastLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncDelivery increments the per-connection delivery counter.
func IncDelivery(result string) {
	if result == "" {
		result = resultSuccess
	}
	if deliveries != nil {
		deliveries.WithLabelValues(result).Inc()
	}
}

// IncResolveFailure increments the permission resolution failure counter.
func IncResolveFailure() {
	if resolveFailures != nil {
		resolveFailures.Inc()
	}
}

// IncSession increments websocket session counters.
func IncSession(event string) {
	if event == "" {
		event = "unknown"
	}
	if sessionEvents != nil {
		sessionEvents.WithLabelValues(event).Inc()
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	SessionConnected    = sessionConnected
	SessionDisconnected = sessionDisconnected
)
