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
	jobDuration  *prometheus.HistogramVec
	jobRetries   *prometheus.CounterVec

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec
	toolErrorsTotal       *prometheus.CounterVec

	agentRunTotal    *prometheus.CounterVec
	agentRunDuration *prometheus.HistogramVec
	agentTurnsUsed   *prometheus.HistogramVec

	routerIntentTotal *prometheus.CounterVec

	remindersDeliveredTotal *prometheus.CounterVec
	remindersDeferredTotal  prometheus.Counter
	remindersCancelledTotal prometheus.Counter

	approvalsTotal *prometheus.CounterVec

	overdueTasksFlagged prometheus.Counter
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
					Name: "queue_size",
					Help: "Current queue size by lane.",
				},
				[]string{"lane"},
			),
			enqueueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "enqueue_total",
					Help: "Total enqueue operations by lane.",
				},
				[]string{"lane"},
			),
			dequeueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dequeue_total",
					Help: "Total job completions by lane and status.",
				},
				[]string{"lane", "status"},
			),
			jobDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "job_duration_seconds",
					Help:    "Job execution duration in seconds by lane.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"lane"},
			),
			jobRetries: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "job_retries_total",
					Help: "Total job retry attempts by lane.",
				},
				[]string{"lane"},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_execution_total",
					Help: "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_execution_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			toolErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_errors_total",
					Help: "Total tool execution errors by tool.",
				},
				[]string{"tool"},
			),
			agentRunTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agent_run_total",
					Help: "Total agent runs by agent and status.",
				},
				[]string{"agent", "status"},
			),
			agentRunDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "agent_run_duration_seconds",
					Help:    "Agent run duration in seconds by agent.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"agent"},
			),
			agentTurnsUsed: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "agent_turns_used",
					Help:    "Model turns consumed per agent run.",
					Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
				},
				[]string{"agent"},
			),
			routerIntentTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "router_intent_total",
					Help: "Total routed instructions by intent.",
				},
				[]string{"intent"},
			),
			remindersDeliveredTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "reminders_delivered_total",
					Help: "Total reminders delivered by type.",
				},
				[]string{"type"},
			),
			remindersDeferredTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "reminders_deferred_total",
					Help: "Total reminder deliveries deferred by the quiet window.",
				},
			),
			remindersCancelledTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "reminders_cancelled_total",
					Help: "Total reminders marked sent without delivery.",
				},
			),
			approvalsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "approvals_total",
					Help: "Total approval resolutions by outcome.",
				},
				[]string{"outcome"},
			),
			overdueTasksFlagged: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "overdue_tasks_flagged_total",
					Help: "Total tasks flagged overdue by the deadline sweep.",
				},
			),
		}

		prometheus.MustRegister(
			m.queueSize,
			m.enqueueTotal,
			m.dequeueTotal,
			m.jobDuration,
			m.jobRetries,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.toolErrorsTotal,
			m.agentRunTotal,
			m.agentRunDuration,
			m.agentTurnsUsed,
			m.routerIntentTotal,
			m.remindersDeliveredTotal,
			m.remindersDeferredTotal,
			m.remindersCancelledTotal,
			m.approvalsTotal,
			m.overdueTasksFlagged,
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
	status := "error"
	if success {
		status = "success"
	}
	m.dequeueTotal.WithLabelValues(lane, status).Inc()
	m.jobDuration.WithLabelValues(lane).Observe(duration.Seconds())
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func RecordJobRetry(lane string) {
	getMetrics().jobRetries.WithLabelValues(lane).Inc()
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.toolExecutionTotal.WithLabelValues(tool, status).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
	if !success {
		m.toolErrorsTotal.WithLabelValues(tool).Inc()
	}
}

func RecordAgentRun(agent string, duration time.Duration, turns int, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.agentRunTotal.WithLabelValues(agent, status).Inc()
	m.agentRunDuration.WithLabelValues(agent).Observe(duration.Seconds())
	m.agentTurnsUsed.WithLabelValues(agent).Observe(float64(turns))
}

func RecordRouterIntent(intent string) {
	getMetrics().routerIntentTotal.WithLabelValues(intent).Inc()
}

func RecordReminderDelivered(reminderType string) {
	getMetrics().remindersDeliveredTotal.WithLabelValues(reminderType).Inc()
}

func RecordReminderDeferred() {
	getMetrics().remindersDeferredTotal.Inc()
}

func RecordReminderCancelled() {
	getMetrics().remindersCancelledTotal.Inc()
}

func RecordApproval(outcome string) {
	getMetrics().approvalsTotal.WithLabelValues(outcome).Inc()
}

func RecordOverdueFlagged(count int) {
	getMetrics().overdueTasksFlagged.Add(float64(count))
}
