package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	queueSize    *prometheus.GaugeVec
	enqueueTotal *prometheus.CounterVec
	dequeueTotal *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec

	activeSessions *prometheus.GaugeVec

	orchestrationTotal    *prometheus.CounterVec
	orchestrationDuration *prometheus.HistogramVec

	providerCallTotal    *prometheus.CounterVec
	providerCallDuration *prometheus.HistogramVec

	toolCallTotal    *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec

	circuitState *prometheus.GaugeVec
	retryTotal   *prometheus.CounterVec

	syncRunTotal    *prometheus.CounterVec
	syncRecords     *prometheus.GaugeVec
	catalogRefresh  *prometheus.CounterVec
	routingDecision *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			queueSize: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "toolgate_queue_depth",
					Help: "Current queue depth by lane.",
				},
				[]string{"lane"},
			),
			enqueueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "toolgate_enqueue_total",
					Help: "Total enqueue operations by lane.",
				},
				[]string{"lane"},
			),
			dequeueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "toolgate_dequeue_total",
					Help: "Total task completions by lane and status.",
				},
				[]string{"lane", "status"},
			),
			taskDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "toolgate_task_duration_seconds",
					Help:    "Task execution duration in seconds by lane.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"lane"},
			),
			activeSessions: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "toolgate_active_sessions",
					Help: "Sessions with history by provider.",
				},
				[]string{"provider"},
			),
			orchestrationTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "toolgate_orchestrations_total",
					Help: "Total orchestrated requests by strategy and status.",
				},
				[]string{"strategy", "status"},
			),
			orchestrationDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "toolgate_orchestration_duration_seconds",
					Help:    "End-to-end orchestration duration in seconds by strategy.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"strategy"},
			),
			providerCallTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "toolgate_provider_calls_total",
					Help: "Total LLM provider calls by provider and result.",
				},
				[]string{"provider", "result"},
			),
			providerCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "toolgate_provider_call_duration_seconds",
					Help:    "LLM provider call duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			toolCallTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "toolgate_tool_calls_total",
					Help: "Total backend tool calls by backend, tool and status.",
				},
				[]string{"backend", "tool", "status"},
			),
			toolCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "toolgate_tool_call_duration_seconds",
					Help:    "Backend tool call duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"backend"},
			),
			circuitState: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "toolgate_circuit_state",
					Help: "Circuit breaker state by dependency (0 closed, 1 half-open, 2 open).",
				},
				[]string{"dependency"},
			),
			retryTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "toolgate_retries_total",
					Help: "Total retried attempts by dependency.",
				},
				[]string{"dependency"},
			),
			syncRunTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "toolgate_sync_runs_total",
					Help: "Total synchronization runs by scope and result.",
				},
				[]string{"scope", "result"},
			),
			syncRecords: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "toolgate_sync_records",
					Help: "Records written by the last successful sync per scope.",
				},
				[]string{"scope"},
			),
			catalogRefresh: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "toolgate_tool_catalog_refresh_total",
					Help: "Tool catalog lookups by source (cache or backend).",
				},
				[]string{"source"},
			),
			routingDecision: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "toolgate_routing_decisions_total",
					Help: "Strategy decisions by rule and strategy.",
				},
				[]string{"rule", "strategy"},
			),
		}

		prometheus.MustRegister(
			m.queueSize,
			m.enqueueTotal,
			m.dequeueTotal,
			m.taskDuration,
			m.activeSessions,
			m.orchestrationTotal,
			m.orchestrationDuration,
			m.providerCallTotal,
			m.providerCallDuration,
			m.toolCallTotal,
			m.toolCallDuration,
			m.circuitState,
			m.retryTotal,
			m.syncRunTotal,
			m.syncRecords,
			m.catalogRefresh,
			m.routingDecision,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func RecordQueueEnqueue(lane string, queueSize int) {
	m := getMetrics()
	m.enqueueTotal.WithLabelValues(lane).Inc()
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func SetQueueSize(lane string, queueSize int) {
	m := getMetrics()
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func RecordQueueCompletion(lane string, duration time.Duration, success bool, queueSize int) {
	m := getMetrics()
	m.dequeueTotal.WithLabelValues(lane, status(success)).Inc()
	m.taskDuration.WithLabelValues(lane).Observe(duration.Seconds())
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func SetActiveSessions(provider string, count int) {
	getMetrics().activeSessions.WithLabelValues(provider).Set(float64(count))
}

func RecordOrchestration(strategy string, duration time.Duration, success bool) {
	m := getMetrics()
	m.orchestrationTotal.WithLabelValues(strategy, status(success)).Inc()
	m.orchestrationDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

// RecordProviderCall records one guarded provider call. result is "success" or a fault kind.
func RecordProviderCall(provider, result string, duration time.Duration) {
	m := getMetrics()
	m.providerCallTotal.WithLabelValues(provider, result).Inc()
	m.providerCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func RecordToolCall(backend, tool string, duration time.Duration, success bool) {
	m := getMetrics()
	m.toolCallTotal.WithLabelValues(backend, tool, status(success)).Inc()
	m.toolCallDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// SetCircuitState exports a breaker state: 0 closed, 1 half-open, 2 open.
func SetCircuitState(dependency string, value int) {
	getMetrics().circuitState.WithLabelValues(dependency).Set(float64(value))
}

func RecordRetry(dependency string) {
	getMetrics().retryTotal.WithLabelValues(dependency).Inc()
}

// RecordSyncRun records a sync outcome. result is "success", "skipped" or "error".
func RecordSyncRun(scope, result string, records int) {
	m := getMetrics()
	m.syncRunTotal.WithLabelValues(scope, result).Inc()
	if result == "success" {
		m.syncRecords.WithLabelValues(scope).Set(float64(records))
	}
}

func RecordCatalogLookup(source string) {
	getMetrics().catalogRefresh.WithLabelValues(source).Inc()
}

func RecordRoutingDecision(rule, strategy string) {
	getMetrics().routingDecision.WithLabelValues(rule, strategy).Inc()
}
