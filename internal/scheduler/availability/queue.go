// Package availability turns "robot became available" signals into
// deduplicated launch attempts processed by a worker pool.
package availability

import (
	"context"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/workqueue"

	"github.com/autopeer-io/robofleet/internal/pkg/metrics"
	"github.com/autopeer-io/robofleet/internal/scheduler/core"
	"github.com/autopeer-io/robofleet/pkg/log"
)

const queueName = "robot_available"

// DefaultMaxRetries bounds how often a failing robot is re-queued.
const DefaultMaxRetries = 5

// Handler processes one robot id. A returned error re-queues the robot.
type Handler func(ctx context.Context, robotID string) error

// Queue is a rate limited work queue of robot ids. A robot enqueued several
// times before a worker picks it up is processed once.
type Queue struct {
	queue      workqueue.TypedRateLimitingInterface[string]
	maxRetries int
	logger     log.Logger
}

var _ core.AvailabilityQueue = (*Queue)(nil)

// Option configures a Queue.
type Option func(*Queue)

// WithMaxRetries sets the retry bound. Zero disables retries.
func WithMaxRetries(n int) Option {
	return func(q *Queue) { q.maxRetries = n }
}

// WithRateLimiter replaces the default per-item exponential backoff.
func WithRateLimiter(rl workqueue.TypedRateLimiter[string]) Option {
	return func(q *Queue) {
		q.queue = newQueue(rl)
	}
}

// New creates a queue. Call Run to start processing.
func New(opts ...Option) *Queue {
	q := &Queue{
		maxRetries: DefaultMaxRetries,
		logger:     log.WithName("availability"),
	}
	for _, o := range opts {
		o(q)
	}
	if q.queue == nil {
		q.queue = newQueue(workqueue.DefaultTypedControllerRateLimiter[string]())
	}
	return q
}

func newQueue(rl workqueue.TypedRateLimiter[string]) workqueue.TypedRateLimitingInterface[string] {
	return workqueue.NewTypedRateLimitingQueueWithConfig(rl, workqueue.TypedRateLimitingQueueConfig[string]{
		Name:            queueName,
		MetricsProvider: metrics.WorkQueueProvider{},
	})
}

// Enqueue signals that robotID may be able to start its next run.
func (q *Queue) Enqueue(robotID string) {
	if robotID == "" {
		return
	}
	q.queue.Add(robotID)
}

// Len returns the number of robots waiting to be processed.
func (q *Queue) Len() int {
	return q.queue.Len()
}

// Run processes robots with the given number of workers until ctx is
// cancelled, then shuts the queue down and waits for in-flight work.
func (q *Queue) Run(ctx context.Context, workers int, handle Handler) {
	if workers < 1 {
		workers = 1
	}
	q.logger.Info("Starting availability workers", "workers", workers)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wait.UntilWithContext(ctx, func(ctx context.Context) {
				for q.processNext(ctx, handle) {
				}
			}, time.Second)
		}()
	}

	<-ctx.Done()
	q.queue.ShutDown()
	wg.Wait()
	q.logger.Info("Availability workers stopped")
}

func (q *Queue) processNext(ctx context.Context, handle Handler) bool {
	robotID, shutdown := q.queue.Get()
	if shutdown {
		return false
	}
	defer q.queue.Done(robotID)

	err := handle(ctx, robotID)
	if err == nil {
		q.queue.Forget(robotID)
		return true
	}

	if retries := q.queue.NumRequeues(robotID); retries < q.maxRetries {
		q.logger.Warn("Launching next mission failed, retrying", "robotID", robotID, "attempt", retries+1, "error", err)
		q.queue.AddRateLimited(robotID)
		return true
	}

	q.logger.Error(err, "Launching next mission failed, giving up", "robotID", robotID, "retries", q.maxRetries)
	q.queue.Forget(robotID)
	return true
}
