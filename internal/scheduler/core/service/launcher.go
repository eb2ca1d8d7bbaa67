package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/autopeer-io/robofleet/internal/pkg/metrics"
	"github.com/autopeer-io/robofleet/internal/scheduler/core"
	"github.com/autopeer-io/robofleet/internal/scheduler/core/model"
)

// Launch starts the pending run runID when admission allows it. A denied run
// stays Pending and Launch returns nil. A run the executor refuses ends
// Failed and is never retried; the error is an *core.OperationalError.
func (s *Service) Launch(ctx context.Context, runID string) error {
	run, err := s.runs.Get(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to load mission run: %w", err)
	}

	robot, err := s.robots.Get(ctx, run.RobotID)
	if err != nil {
		return fmt.Errorf("failed to load robot of mission run %s: %w", run.ID, err)
	}

	_, err = s.launch(ctx, robot, run)
	return err
}

// LaunchNext launches the robot's next due pending run, Emergency runs first
// and then by desired start time. Only errors raised before the executor was
// asked to start the run are returned. A failed launch attempt is logged and
// LaunchNext returns nil, so a robot signal never causes a second attempt.
func (s *Service) LaunchNext(ctx context.Context, robotID string) error {
	robot, err := s.robots.Get(ctx, robotID)
	if err != nil {
		return fmt.Errorf("failed to load robot: %w", err)
	}

	pending, err := s.runs.List(ctx, core.MissionRunFilter{
		RobotID:  robotID,
		Statuses: []model.MissionStatus{model.MissionStatusPending},
	})
	if err != nil {
		return fmt.Errorf("failed to list pending missions: %w", err)
	}
	if len(pending) == 0 {
		s.logger.Debug("No pending mission runs", "robot", robot.Name)
		return nil
	}

	sortQueue(pending)

	now := s.clock.Now()
	for _, run := range pending {
		if run.DesiredStartTime.After(now) {
			continue
		}
		attempted, err := s.launch(ctx, robot, run)
		if err != nil && attempted {
			s.logger.Error(err, "Launching next mission run failed", "robot", robot.Name, "missionRun", run.ID)
			return nil
		}
		return err
	}
	return nil
}

func sortQueue(runs []*model.MissionRun) {
	sort.SliceStable(runs, func(i, j int) bool {
		ei := runs[i].Priority == model.PriorityEmergency
		ej := runs[j].Priority == model.PriorityEmergency
		if ei != ej {
			return ei
		}
		return runs[i].DesiredStartTime.Before(runs[j].DesiredStartTime)
	})
}

// launch reports whether the executor was asked to start run. Writes after
// that call are detached from ctx cancellation so the store always reflects
// what the executor was told.
func (s *Service) launch(ctx context.Context, robot *model.Robot, run *model.MissionRun) (bool, error) {
	logger := s.logger.WithValues("missionRun", run.ID, "robot", robot.Name)

	if run.Status != model.MissionStatusPending {
		logger.Info("Mission run is not pending, not launching", "status", run.Status)
		return false, nil
	}

	decision, err := s.admit(ctx, robot, run)
	if err != nil {
		return false, err
	}
	if !decision.Allowed {
		logger.Info("Mission run was put on the queue as the system may not start a mission now", "reason", decision.Reason)
		metrics.MissionLaunchesTotal.WithLabelValues("denied").Inc()
		return false, nil
	}

	started, err := s.executor.StartMission(ctx, robot, run)
	wctx := context.WithoutCancel(ctx)
	if err != nil {
		reason := fmt.Sprintf("Failed to start: '%s'", err)
		logger.Warn("Mission run was not started successfully", "reason", reason)
		metrics.MissionLaunchesTotal.WithLabelValues("failed").Inc()

		if _, uerr := s.runs.Modify(wctx, run.ID, func(r *model.MissionRun) error {
			return s.transition(wctx, r, EventFail, reason)
		}); uerr != nil {
			logger.Error(uerr, "Failed to persist failed mission run")
		}
		return true, &core.OperationalError{Op: "start mission", RobotID: robot.ID, RunID: run.ID, Err: err}
	}

	run, err = s.runs.Modify(wctx, run.ID, func(r *model.MissionRun) error {
		applyStarted(r, started)
		return s.transition(wctx, r, EventStart, "")
	})
	if err != nil {
		return true, fmt.Errorf("failed to persist started mission run: %w", err)
	}

	_, err = s.robots.Modify(wctx, robot.ID, func(r *model.Robot) error {
		r.CurrentMissionID = model.Ptr(run.ID)
		r.Status = model.RobotStatusBusy
		r.UpdatedAt = s.clock.Now()
		return nil
	})
	if err != nil {
		return true, fmt.Errorf("failed to persist robot after launch: %w", err)
	}

	metrics.MissionLaunchesTotal.WithLabelValues("started").Inc()
	logger.Info("Started mission run", "executorMission", run.ExecutorMissionID)
	return true, nil
}

// applyStarted records the executor ids of a started mission on run.
func applyStarted(run *model.MissionRun, started *core.StartedMission) {
	if started == nil {
		return
	}
	run.ExecutorMissionID = started.ExecutorMissionID
	for _, st := range started.Tasks {
		task, ok := run.TaskByID(st.TaskID)
		if !ok {
			continue
		}
		task.ExecutorTaskID = st.ExecutorTaskID
		for i := range task.Inspections {
			if stepID, ok := st.Steps[task.Inspections[i].ID]; ok {
				task.Inspections[i].ExecutorStepID = stepID
			}
		}
	}
}
