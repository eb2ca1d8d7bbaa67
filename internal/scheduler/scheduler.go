// Package scheduler assembles the robofleet scheduler process.
package scheduler

import (
	"context"
	"errors"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/autopeer-io/robofleet/internal/scheduler/availability"
	"github.com/autopeer-io/robofleet/internal/scheduler/core"
	"github.com/autopeer-io/robofleet/internal/scheduler/server"
	"github.com/autopeer-io/robofleet/internal/scheduler/store"
	"github.com/autopeer-io/robofleet/pkg/log"
)

// Scheduler is the running robofleet scheduler.
type Scheduler struct {
	store   store.Store
	queue   *availability.Queue
	manager *server.Manager
	closers []func() error
}

// Run serves until ctx is cancelled and then releases all resources.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.close()

	if err := s.enqueueRobots(ctx); err != nil {
		return err
	}

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn("Failed to notify systemd", "error", err)
	} else if sent {
		log.Debug("Notified systemd of readiness")
	}

	err := s.manager.Start(ctx)

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// enqueueRobots evaluates every robot once so pending runs left over from a
// previous process are picked up.
func (s *Scheduler) enqueueRobots(ctx context.Context) error {
	robots, err := s.store.Robots().List(ctx, core.RobotFilter{})
	if err != nil {
		return err
	}
	for _, r := range robots {
		s.queue.Enqueue(r.ID)
	}
	log.Info("Queued robots for launch evaluation", "count", len(robots))
	return nil
}

func (s *Scheduler) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Error(err, "Failed to release resource")
		}
	}
	s.closers = nil
}
