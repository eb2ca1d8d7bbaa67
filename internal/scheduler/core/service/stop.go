package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/autopeer-io/robofleet/internal/scheduler/core"
	"github.com/autopeer-io/robofleet/internal/scheduler/core/model"
)

const reasonUnreachable = "Mission failed because the executor could not be reached"

// StopCurrentMission stops the robot's active mission and re-queues the
// interrupted runs as new Normal priority runs. Stopping an idle robot is
// not an error. When the executor cannot be reached the robot is taken
// offline and the error is returned as an *core.OperationalError. A caller
// that cancels ctx before the executor answers gets the context error and
// nothing is changed.
func (s *Service) StopCurrentMission(ctx context.Context, robotID string) error {
	robot, err := s.robots.Get(ctx, robotID)
	if err != nil {
		s.logger.Error(err, "Robot was not found", "robotID", robotID)
		return err
	}
	logger := s.logger.WithValues("robot", robot.Name)

	ongoing, err := s.runs.List(ctx, core.MissionRunFilter{
		RobotID:  robotID,
		Statuses: []model.MissionStatus{model.MissionStatusOngoing},
	})
	if err != nil {
		return fmt.Errorf("failed to list ongoing missions: %w", err)
	}
	if len(ongoing) == 0 {
		logger.Warn("There were no ongoing mission runs to stop")
	}

	err = s.executor.StopMission(ctx, robot)
	wctx := context.WithoutCancel(ctx)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		logger.Warn("Stopping mission was abandoned by the caller", "error", err)
		return err
	case errors.Is(err, core.ErrNoActiveMission):
		logger.Warn("No mission was running on the executor")
	case errors.Is(err, core.ErrExecutorUnreachable):
		logger.Error(err, "Error connecting to the executor while stopping mission")
		if oerr := s.takeOffline(wctx, robot.ID); oerr != nil {
			logger.Error(oerr, "Failed to take robot offline")
		}
		return &core.OperationalError{Op: "stop mission", RobotID: robot.ID, Err: err}
	case errors.Is(err, core.ErrMalformedResponse):
		logger.Error(err, "Error while processing the response from the executor")
		return &core.OperationalError{Op: "stop mission", RobotID: robot.ID, Err: err}
	default:
		logger.Error(err, "Error while stopping executor mission")
		return &core.OperationalError{Op: "stop mission", RobotID: robot.ID, Err: err}
	}

	if err := s.requeueInterrupted(wctx, ongoing); err != nil {
		return err
	}

	_, err = s.robots.Modify(wctx, robot.ID, func(r *model.Robot) error {
		if !r.HasCurrentMission() {
			return core.ErrUnchanged
		}
		r.CurrentMissionID = nil
		r.UpdatedAt = s.clock.Now()
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to clear current mission: %w", err)
	}
	return nil
}

// requeueInterrupted cancels each interrupted run and queues a copy of it.
// The copy always has Normal priority, even when the original was Emergency.
func (s *Service) requeueInterrupted(ctx context.Context, interrupted []*model.MissionRun) error {
	for _, run := range interrupted {
		requeued := &model.MissionRun{
			ID:                  s.newID(),
			Name:                run.Name,
			MissionDefinitionID: run.MissionDefinitionID,
			RobotID:             run.RobotID,
			AreaID:              run.AreaID,
			InstallationCode:    run.InstallationCode,
			Status:              model.MissionStatusPending,
			Priority:            model.PriorityNormal,
			DesiredStartTime:    s.clock.Now(),
			Tasks:               model.CopyTasks(run.Tasks, s.newID),
		}
		if err := s.runs.Create(ctx, requeued); err != nil {
			return fmt.Errorf("failed to re-queue mission run %s: %w", run.ID, err)
		}

		_, err := s.runs.Modify(ctx, run.ID, func(r *model.MissionRun) error {
			return s.transition(ctx, r, EventCancel, "Interrupted and moved back to the queue")
		})
		if err != nil {
			return fmt.Errorf("failed to cancel interrupted mission run %s: %w", run.ID, err)
		}

		s.logger.Info("Moved interrupted mission run to the queue", "missionRun", run.ID, "newMissionRun", requeued.ID)
	}
	return nil
}

// takeOffline disables the robot and fails the mission it was running.
func (s *Service) takeOffline(ctx context.Context, robotID string) error {
	var current *string
	_, err := s.robots.Modify(ctx, robotID, func(r *model.Robot) error {
		current = r.CurrentMissionID
		r.Status = model.RobotStatusOffline
		r.Enabled = false
		r.CurrentMissionID = nil
		r.UpdatedAt = s.clock.Now()
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to take robot offline: %w", err)
	}
	if current == nil {
		return nil
	}

	_, err = s.runs.Modify(ctx, *current, func(r *model.MissionRun) error {
		return s.transition(ctx, r, EventFail, reasonUnreachable)
	})
	switch {
	case errors.Is(err, core.ErrNotFound):
		s.logger.Warn("Current mission run of robot was not found", "missionRun", *current)
	case err != nil:
		return fmt.Errorf("failed to persist failed mission run: %w", err)
	default:
		s.logger.Warn("Mission failed because the executor could not be reached", "missionRun", *current)
	}
	return nil
}
