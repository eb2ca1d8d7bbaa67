package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/autopeer-io/robofleet/internal/scheduler/core"
	"github.com/autopeer-io/robofleet/internal/scheduler/core/model"
)

// Telemetry handlers resolve the entity once and then apply their change
// through Modify, so fields written concurrently by other handlers or by
// operator actions are never overwritten with stale values. Duplicated or
// reordered delivery converges on the latest report. Unknown robots and
// missions are logged and discarded; unparseable statuses yield a
// *core.MalformedTelemetryError and mutate nothing.

// HandleRobotStatus overwrites the robot status reported by its executor.
func (s *Service) HandleRobotStatus(ctx context.Context, msg *model.RobotStatusMessage) error {
	status, err := model.ParseRobotStatus(msg.Status)
	if err != nil {
		return &core.MalformedTelemetryError{Kind: string(msg.Kind()), Value: msg.Status, Err: err}
	}

	robot, err := s.robots.GetByExecutorID(ctx, msg.ExecutorID)
	if err != nil {
		return s.absorb(err, "Received message from unknown executor instance", "executorID", msg.ExecutorID, "robotName", msg.RobotName)
	}

	changed := false
	robot, err = s.robots.Modify(ctx, robot.ID, func(r *model.Robot) error {
		changed = r.Status != status
		if !changed {
			return core.ErrUnchanged
		}
		r.Status = status
		r.UpdatedAt = s.clock.Now()
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update robot status: %w", err)
	}
	if !changed {
		return nil
	}
	s.logger.Info("Updated robot status", "robot", robot.Name, "status", status)

	if status == model.RobotStatusAvailable {
		s.enqueue(robot.ID)
	}
	return nil
}

// HandleRobotInfo registers unknown robots and syncs connection details of known ones.
func (s *Service) HandleRobotInfo(ctx context.Context, msg *model.RobotInfoMessage) error {
	robot, err := s.robots.GetByExecutorID(ctx, msg.ExecutorID)
	if errors.Is(err, core.ErrNotFound) {
		s.logger.Info("Received message from new executor instance, adding robot", "executorID", msg.ExecutorID, "robotName", msg.RobotName)
		robot = &model.Robot{
			ID:           s.newID(),
			ExecutorID:   msg.ExecutorID,
			Name:         msg.RobotName,
			Model:        msg.Model,
			SerialNumber: msg.SerialNumber,
			VideoStreams: msg.VideoStreams,
			Host:         msg.Host,
			Port:         msg.Port,
			Status:       model.RobotStatusAvailable,
			Enabled:      true,
			UpdatedAt:    s.clock.Now(),
		}
		if err := s.robots.Create(ctx, robot); err != nil {
			return fmt.Errorf("failed to create robot: %w", err)
		}
		s.logger.Info("Added robot", "robot", robot.Name)
		s.enqueue(robot.ID)
		return nil
	}
	if err != nil {
		return err
	}

	var changes []string
	robot, err = s.robots.Modify(ctx, robot.ID, func(r *model.Robot) error {
		changes = changes[:0]
		if !model.SameVideoStreams(r.VideoStreams, msg.VideoStreams) {
			changes = append(changes, fmt.Sprintf("videoStreams (%d -> %d streams)", len(r.VideoStreams), len(msg.VideoStreams)))
			r.VideoStreams = msg.VideoStreams
		}
		if r.Host != msg.Host {
			changes = append(changes, fmt.Sprintf("host (%s -> %s)", r.Host, msg.Host))
			r.Host = msg.Host
		}
		if r.Port != msg.Port {
			changes = append(changes, fmt.Sprintf("port (%d -> %d)", r.Port, msg.Port))
			r.Port = msg.Port
		}
		if len(changes) == 0 {
			return core.ErrUnchanged
		}
		r.UpdatedAt = s.clock.Now()
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update robot info: %w", err)
	}
	if len(changes) > 0 {
		s.logger.Info("Updated robot", "robot", robot.Name, "changes", strings.Join(changes, ", "))
	}
	return nil
}

// HandleMission syncs a run's status and derives the robot's availability from it.
func (s *Service) HandleMission(ctx context.Context, msg *model.MissionMessage) error {
	status, err := model.ParseMissionStatus(msg.Status)
	if err != nil {
		return &core.MalformedTelemetryError{Kind: string(msg.Kind()), Value: msg.Status, Err: err}
	}

	run, err := s.runs.GetByExecutorMissionID(ctx, msg.MissionID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			s.logger.Error(err, "No mission run found for executor mission, status not updated", "executorMission", msg.MissionID, "status", status)
			return nil
		}
		return err
	}

	now := s.clock.Now()
	run, err = s.runs.Modify(ctx, run.ID, func(r *model.MissionRun) error {
		r.Status = status
		switch {
		case status.IsTerminal():
			r.EndTime = model.Ptr(now)
		case status == model.MissionStatusOngoing && r.StartTime == nil:
			r.StartTime = model.Ptr(now)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update mission run status: %w", err)
	}
	s.logger.Info("Mission run status updated", "missionRun", run.ID, "executorMission", msg.MissionID, "status", status, "robot", msg.RobotName)

	robot, err := s.robots.GetByName(ctx, msg.RobotName)
	if err != nil {
		return s.absorb(err, "Could not find robot, robot status is not updated", "robotName", msg.RobotName)
	}

	robot, err = s.robots.Modify(ctx, robot.ID, func(r *model.Robot) error {
		if status.IsTerminal() {
			r.Status = model.RobotStatusAvailable
			if r.HasCurrentMission() && *r.CurrentMissionID == run.ID {
				r.CurrentMissionID = nil
			}
		} else {
			r.Status = model.RobotStatusBusy
		}
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update robot status: %w", err)
	}
	s.logger.Info("Robot status set", "robot", robot.Name, "status", robot.Status)

	if robot.Status == model.RobotStatusAvailable {
		s.enqueue(robot.ID)
	}
	return nil
}

// HandleTask syncs a task's status. A task reported InProgress on a run that
// is not Ongoing resumes the run and resets every later task.
func (s *Service) HandleTask(ctx context.Context, msg *model.TaskMessage) error {
	status, err := model.ParseTaskStatus(msg.Status)
	if err != nil {
		return &core.MalformedTelemetryError{Kind: string(msg.Kind()), Value: msg.Status, Err: err}
	}

	run, err := s.runs.GetByExecutorMissionID(ctx, msg.MissionID)
	if err != nil {
		return s.absorb(err, "Could not update task status as the mission run was not found", "executorTask", msg.TaskID, "executorMission", msg.MissionID)
	}

	var missing, resumed bool
	run, err = s.runs.Modify(ctx, run.ID, func(r *model.MissionRun) error {
		missing, resumed = false, false
		task, ok := r.Task(msg.TaskID)
		if !ok {
			missing = true
			return core.ErrUnchanged
		}

		task.Status = status
		if status == model.TaskStatusInProgress && r.Status != model.MissionStatusOngoing {
			order := task.TaskOrder
			if err := s.transition(ctx, r, EventHeal, ""); err != nil {
				return err
			}
			r.ResetTasksAfter(order)
			resumed = true
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	if missing {
		s.logger.Warn("Could not update task status as the task was not found", "executorTask", msg.TaskID, "missionRun", run.ID)
		return nil
	}
	if resumed {
		s.logger.Info("Resumed mission run after renewed progress", "missionRun", run.ID, "executorTask", msg.TaskID)
	}
	s.logger.Info("Task status updated", "executorTask", msg.TaskID, "status", status, "robot", msg.RobotName, "timestamp", msg.Timestamp)
	return nil
}

// HandleStep syncs the status of an inspection step.
func (s *Service) HandleStep(ctx context.Context, msg *model.StepMessage) error {
	status, err := model.ParseInspectionStatus(msg.Status)
	if err != nil {
		return &core.MalformedTelemetryError{Kind: string(msg.Kind()), Value: msg.Status, Err: err}
	}

	run, err := s.runs.GetByExecutorMissionID(ctx, msg.MissionID)
	if err != nil {
		return s.absorb(err, "Could not update step status as the mission run was not found", "executorStep", msg.StepID, "executorMission", msg.MissionID)
	}

	var missing string
	run, err = s.runs.Modify(ctx, run.ID, func(r *model.MissionRun) error {
		missing = ""
		task, ok := r.Task(msg.TaskID)
		if !ok {
			missing = "task"
			return core.ErrUnchanged
		}
		inspection, ok := task.Inspection(msg.StepID)
		if !ok {
			missing = "inspection"
			return core.ErrUnchanged
		}
		inspection.Status = status
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update step status: %w", err)
	}
	switch missing {
	case "task":
		s.logger.Warn("Could not update step status as the task was not found", "executorTask", msg.TaskID, "missionRun", run.ID)
		return nil
	case "inspection":
		s.logger.Warn("Could not update step status as the inspection was not found", "executorStep", msg.StepID, "missionRun", run.ID)
		return nil
	}
	s.logger.Info("Step status updated", "executorStep", msg.StepID, "status", status, "robot", msg.RobotName, "timestamp", msg.Timestamp)
	return nil
}

// HandleBattery overwrites the robot's battery level.
func (s *Service) HandleBattery(ctx context.Context, msg *model.BatteryMessage) error {
	robot, err := s.robots.GetByName(ctx, msg.RobotName)
	if err != nil {
		return s.absorb(err, "Could not find corresponding robot for battery update", "robotName", msg.RobotName)
	}

	_, err = s.robots.Modify(ctx, robot.ID, func(r *model.Robot) error {
		r.BatteryLevel = msg.BatteryLevel
		r.UpdatedAt = s.clock.Now()
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update battery: %w", err)
	}
	s.logger.Debug("Updated battery", "robot", robot.Name, "level", msg.BatteryLevel)
	return nil
}

// HandlePose overwrites the robot's pose.
func (s *Service) HandlePose(ctx context.Context, msg *model.PoseMessage) error {
	robot, err := s.robots.GetByName(ctx, msg.RobotName)
	if err != nil {
		return s.absorb(err, "Could not find corresponding robot for pose update", "robotName", msg.RobotName)
	}

	_, err = s.robots.Modify(ctx, robot.ID, func(r *model.Robot) error {
		r.Pose = msg.Pose
		r.UpdatedAt = s.clock.Now()
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update pose: %w", err)
	}
	s.logger.Debug("Updated pose", "robot", robot.Name)
	return nil
}

// absorb logs lookup misses and swallows them. Other errors are returned.
func (s *Service) absorb(err error, msg string, keysAndValues ...any) error {
	if errors.Is(err, core.ErrNotFound) {
		s.logger.Warn(msg, keysAndValues...)
		return nil
	}
	return err
}
