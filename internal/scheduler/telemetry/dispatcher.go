// Package telemetry routes executor telemetry to its handlers on a bounded
// worker pool.
package telemetry

import (
	"context"
	"errors"
	"sync"

	"github.com/autopeer-io/robofleet/internal/pkg/metrics"
	"github.com/autopeer-io/robofleet/internal/scheduler/core"
	"github.com/autopeer-io/robofleet/internal/scheduler/core/model"
	"github.com/autopeer-io/robofleet/pkg/log"
)

// Envelope is a raw telemetry message awaiting dispatch.
type Envelope struct {
	Kind    model.TelemetryKind
	Payload []byte
}

// Dispatcher queues envelopes on a bounded channel and processes them
// concurrently. Messages of the same robot may be handled out of order.
type Dispatcher struct {
	queue    chan Envelope
	workers  int
	handlers map[model.TelemetryKind]HandlerFunc
	logger   log.Logger
}

// NewDispatcher creates a dispatcher with the given channel capacity and
// worker count.
func NewDispatcher(buffer, workers int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		queue:    make(chan Envelope, buffer),
		workers:  workers,
		handlers: make(map[model.TelemetryKind]HandlerFunc),
		logger:   log.WithName("telemetry"),
	}
}

// Register sets the handler of kind. It must be called before Run.
func (d *Dispatcher) Register(kind model.TelemetryKind, h HandlerFunc) {
	d.handlers[kind] = h
}

// Submit queues env, blocking while the channel is full.
func (d *Dispatcher) Submit(ctx context.Context, env Envelope) error {
	select {
	case d.queue <- env:
		return nil
	case <-ctx.Done():
		metrics.TelemetryMessagesTotal.WithLabelValues(string(env.Kind), "dropped").Inc()
		return ctx.Err()
	}
}

// Run processes envelopes until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("Starting telemetry workers", "workers", d.workers, "buffer", cap(d.queue))

	var wg sync.WaitGroup
	for range d.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case env := <-d.queue:
					d.dispatch(ctx, env)
				}
			}
		}()
	}

	wg.Wait()
	d.logger.Info("Telemetry workers stopped")
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, env Envelope) {
	kind := string(env.Kind)

	h, ok := d.handlers[env.Kind]
	if !ok {
		metrics.TelemetryMessagesTotal.WithLabelValues(kind, "dropped").Inc()
		d.logger.Warn("No handler for telemetry kind", "kind", kind)
		return
	}

	err := h(ctx, env.Payload)

	var malformed *core.MalformedTelemetryError
	switch {
	case err == nil:
		metrics.TelemetryMessagesTotal.WithLabelValues(kind, "handled").Inc()
	case errors.As(err, &malformed):
		metrics.TelemetryMessagesTotal.WithLabelValues(kind, "malformed").Inc()
		d.logger.Warn("Discarding malformed telemetry", "kind", kind, "error", err)
	default:
		metrics.TelemetryMessagesTotal.WithLabelValues(kind, "failed").Inc()
		d.logger.Error(err, "Telemetry handler failed", "kind", kind)
	}
}
