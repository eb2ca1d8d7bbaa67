package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "robofleet"

var (
	// ExecutorConnectivityStatus records the state of the executor gRPC channel.
	// 1 = Ready, 0 = Not Ready (Idle, Connecting, TransientFailure)
	ExecutorConnectivityStatus = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "executor_connectivity_status",
			Help:      "The connectivity status to the robot executor (1=Ready, 0=NotReady).",
		},
	)

	ExecutorCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executor_calls_total",
			Help:      "Total number of executor calls.",
		},
		[]string{"op", "status"}, // op: start/stop, status: success/failed/unreachable
	)

	ExecutorCallLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "executor_call_latency_seconds",
			Help:      "Latency of executor calls via gRPC.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	TelemetryMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_messages_total",
			Help:      "Total number of executor telemetry messages by kind and outcome.",
		},
		[]string{"kind", "result"}, // result: handled/malformed/dropped/failed
	)

	MissionLaunchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mission_launches_total",
			Help:      "Total number of mission launch attempts by outcome.",
		},
		[]string{"result"}, // result: started/denied/failed
	)

	AutoScheduledJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "autoscheduled_jobs_total",
			Help:      "Total number of auto-schedule job events.",
		},
		[]string{"event"}, // event: scheduled/skipped/fired/failed
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Total number of failure notifications by sink and outcome.",
		},
		[]string{"sink", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		ExecutorConnectivityStatus,
		ExecutorCallsTotal,
		ExecutorCallLatency,
		TelemetryMessagesTotal,
		MissionLaunchesTotal,
		AutoScheduledJobsTotal,
		NotificationsTotal,
	)
}
