package service

import (
	"context"

	"github.com/autopeer-io/robofleet/internal/scheduler/core"
	"github.com/autopeer-io/robofleet/internal/scheduler/core/model"
)

// SafePositionMissionName names the emergency run driving a robot to safety.
const SafePositionMissionName = "Drive to Safe Position"

// ScheduleReturnToSafePosition queues an Emergency run taking the robot to
// the safe position of the area nearest to its current pose. A missing robot
// or area is logged and ignored. An area without safe positions yields a
// *core.SafeZoneError.
func (s *Service) ScheduleReturnToSafePosition(ctx context.Context, robotID, areaID string) (*model.MissionRun, error) {
	area, err := s.areas.Get(ctx, areaID)
	if err != nil {
		s.logger.Error(err, "Could not find area", "areaID", areaID)
		return nil, nil
	}

	robot, err := s.robots.Get(ctx, robotID)
	if err != nil {
		s.logger.Error(err, "Robot was not found", "robotID", robotID)
		return nil, nil
	}

	nearest, ok := robot.Pose.Nearest(area.SafePositions)
	if !ok {
		return nil, &core.SafeZoneError{AreaID: area.ID}
	}

	run := &model.MissionRun{
		ID:               s.newID(),
		Name:             SafePositionMissionName,
		RobotID:          robot.ID,
		AreaID:           area.ID,
		InstallationCode: area.InstallationCode,
		Status:           model.MissionStatusPending,
		Priority:         model.PriorityEmergency,
		DesiredStartTime: s.clock.Now(),
		Tasks: []model.MissionTask{{
			ID:          s.newID(),
			TaskOrder:   0,
			Description: SafePositionMissionName,
			RobotPose:   nearest,
			Status:      model.TaskStatusNotStarted,
			Inspections: []model.Inspection{},
		}},
	}

	if err := s.runs.Create(ctx, run); err != nil {
		return nil, err
	}

	s.logger.Info("Scheduled return to safe position", "robot", robot.Name, "area", area.Name, "missionRun", run.ID)
	s.enqueue(robot.ID)
	return run, nil
}
