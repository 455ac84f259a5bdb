package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	chatTurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbchat_turns_total",
			Help: "Total number of completed chat turns by outcome kind.",
		},
		[]string{"outcome"},
	)
	chatTurnLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dbchat_turn_latency_ms",
			Help:    "End-to-end chat turn latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 20000, 40000},
		},
	)
	pipelineStageLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dbchat_pipeline_stage_latency_ms",
			Help:    "Latency of individual pipeline stages in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2000, 5000, 10000, 20000},
		},
		[]string{"stage", "result"},
	)
	connectAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbchat_connect_attempts_total",
			Help: "Total number of database connect attempts by dialect and result.",
		},
		[]string{"dialect", "result"},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dbchat_active_sessions",
			Help: "Current number of open chat sessions.",
		},
	)
	auditWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbchat_audit_writes_total",
			Help: "Total number of turn audit object writes by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		chatTurnsTotal,
		chatTurnLatencyMs,
		pipelineStageLatencyMs,
		connectAttemptsTotal,
		activeSessions,
		auditWritesTotal,
	)
}

// ObserveTurn records a finished turn. outcome is "ok" or a failure kind.
func ObserveTurn(outcome string, elapsed time.Duration) {
	if outcome == "" {
		outcome = "ok"
	}
	chatTurnsTotal.WithLabelValues(outcome).Inc()
	chatTurnLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func ObservePipelineStage(stage string, failed bool, elapsed time.Duration) {
	pipelineStageLatencyMs.WithLabelValues(stage, resultLabel(failed)).Observe(float64(elapsed.Milliseconds()))
}

func ObserveConnectAttempt(dialect string, failed bool) {
	connectAttemptsTotal.WithLabelValues(dialect, resultLabel(failed)).Inc()
}

func SetActiveSessions(count int) {
	if count < 0 {
		count = 0
	}
	activeSessions.Set(float64(count))
}

func ObserveAuditWrite(failed bool) {
	auditWritesTotal.WithLabelValues(resultLabel(failed)).Inc()
}

func resultLabel(failed bool) string {
	if failed {
		return "error"
	}
	return "ok"
}
