package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/client-go/util/workqueue"
)

const workQueueSubsystem = "workqueue"

var (
	wqDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: workQueueSubsystem,
		Name: "depth",
		Help: "Current depth of the work queue.",
	}, []string{"name"})

	wqAdds = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: workQueueSubsystem,
		Name: "adds_total",
		Help: "Total number of adds handled by the work queue.",
	}, []string{"name"})

	wqLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: workQueueSubsystem,
		Name:    "queue_duration_seconds",
		Help:    "How long an item stays in the work queue before being processed.",
		Buckets: prometheus.ExponentialBuckets(10e-9, 10, 12),
	}, []string{"name"})

	wqWorkDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: workQueueSubsystem,
		Name:    "work_duration_seconds",
		Help:    "How long processing an item from the work queue takes.",
		Buckets: prometheus.ExponentialBuckets(10e-9, 10, 12),
	}, []string{"name"})

	wqUnfinished = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: workQueueSubsystem,
		Name: "unfinished_work_seconds",
		Help: "Seconds of work in progress not yet observed by work_duration.",
	}, []string{"name"})

	wqLongestRunning = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: workQueueSubsystem,
		Name: "longest_running_processor_seconds",
		Help: "Seconds the longest running processor has been running.",
	}, []string{"name"})

	wqRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: workQueueSubsystem,
		Name: "retries_total",
		Help: "Total number of retries handled by the work queue.",
	}, []string{"name"})
)

func init() {
	prometheus.MustRegister(wqDepth, wqAdds, wqLatency, wqWorkDuration, wqUnfinished, wqLongestRunning, wqRetries)
}

// WorkQueueProvider exports client-go work queue metrics to Prometheus.
type WorkQueueProvider struct{}

var _ workqueue.MetricsProvider = WorkQueueProvider{}

func (WorkQueueProvider) NewDepthMetric(name string) workqueue.GaugeMetric {
	return wqDepth.WithLabelValues(name)
}

func (WorkQueueProvider) NewAddsMetric(name string) workqueue.CounterMetric {
	return wqAdds.WithLabelValues(name)
}

func (WorkQueueProvider) NewLatencyMetric(name string) workqueue.HistogramMetric {
	return wqLatency.WithLabelValues(name)
}

func (WorkQueueProvider) NewWorkDurationMetric(name string) workqueue.HistogramMetric {
	return wqWorkDuration.WithLabelValues(name)
}

func (WorkQueueProvider) NewUnfinishedWorkSecondsMetric(name string) workqueue.SettableGaugeMetric {
	return wqUnfinished.WithLabelValues(name)
}

func (WorkQueueProvider) NewLongestRunningProcessorSecondsMetric(name string) workqueue.SettableGaugeMetric {
	return wqLongestRunning.WithLabelValues(name)
}

func (WorkQueueProvider) NewRetriesMetric(name string) workqueue.CounterMetric {
	return wqRetries.WithLabelValues(name)
}
