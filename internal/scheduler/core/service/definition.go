package service

import (
	"context"
	"fmt"

	"github.com/autopeer-io/robofleet/internal/scheduler/core/model"
)

// ScheduleFromLastSuccessfulRun queues a Pending Normal copy of the
// definition's last successful run on robotID. Task and inspection statuses
// start over and executor ids are cleared.
func (s *Service) ScheduleFromLastSuccessfulRun(ctx context.Context, definitionID, robotID string) (*model.MissionRun, error) {
	def, err := s.definitions.Get(ctx, definitionID)
	if err != nil {
		return nil, err
	}
	if def.LastSuccessfulRunID == nil {
		return nil, fmt.Errorf("mission definition %s has no last successful run", def.ID)
	}

	last, err := s.runs.Get(ctx, *def.LastSuccessfulRunID)
	if err != nil {
		return nil, fmt.Errorf("failed to load last successful run: %w", err)
	}

	if _, err := s.robots.Get(ctx, robotID); err != nil {
		return nil, err
	}

	areaID := def.InspectionAreaID
	if areaID == "" {
		areaID = last.AreaID
	}

	run := &model.MissionRun{
		ID:                  s.newID(),
		Name:                last.Name,
		MissionDefinitionID: def.ID,
		RobotID:             robotID,
		AreaID:              areaID,
		InstallationCode:    def.InstallationCode,
		Status:              model.MissionStatusPending,
		Priority:            model.PriorityNormal,
		DesiredStartTime:    s.clock.Now(),
		Tasks:               model.CloneTasks(last.Tasks, s.newID),
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create mission run: %w", err)
	}

	s.logger.Info("Scheduled mission run from definition", "definition", def.ID, "missionRun", run.ID, "robotID", robotID)
	s.enqueue(robotID)
	return run, nil
}
