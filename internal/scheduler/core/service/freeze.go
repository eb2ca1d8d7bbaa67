package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/autopeer-io/robofleet/internal/scheduler/core"
	"github.com/autopeer-io/robofleet/internal/scheduler/core/model"
)

// FreezeMissionQueue stops the robot from starting anything but Emergency runs.
func (s *Service) FreezeMissionQueue(ctx context.Context, robotID string) error {
	if err := s.setQueueFrozen(ctx, robotID, true); err != nil {
		return err
	}
	s.logger.Info("Mission queue was frozen", "robotID", robotID)
	return nil
}

// UnfreezeMissionQueue lifts a freeze and re-evaluates the robot's queue.
func (s *Service) UnfreezeMissionQueue(ctx context.Context, robotID string) error {
	if err := s.setQueueFrozen(ctx, robotID, false); err != nil {
		return err
	}
	s.logger.Info("Mission queue was unfrozen", "robotID", robotID)
	s.enqueue(robotID)
	return nil
}

func (s *Service) setQueueFrozen(ctx context.Context, robotID string, frozen bool) error {
	_, err := s.robots.Modify(ctx, robotID, func(r *model.Robot) error {
		if r.MissionQueueFrozen == frozen {
			return core.ErrUnchanged
		}
		r.MissionQueueFrozen = frozen
		r.UpdatedAt = s.clock.Now()
		return nil
	})
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("failed to update mission queue freeze: %w", err)
	}
	return err
}
