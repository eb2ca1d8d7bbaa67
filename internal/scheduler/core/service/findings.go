package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/autopeer-io/robofleet/internal/scheduler/core"
	"github.com/autopeer-io/robofleet/internal/scheduler/core/model"
)

// AddInspectionFinding records an operator observation on an inspection.
func (s *Service) AddInspectionFinding(ctx context.Context, runID, taskID, inspectionID, finding string) (*model.MissionRun, error) {
	finding = strings.TrimSpace(finding)
	if finding == "" {
		return nil, fmt.Errorf("finding must not be empty")
	}

	run, err := s.runs.Modify(ctx, runID, func(r *model.MissionRun) error {
		task, ok := r.TaskByID(taskID)
		if !ok {
			return core.NewNotFound("task", taskID)
		}
		for i := range task.Inspections {
			if task.Inspections[i].ID == inspectionID {
				task.Inspections[i].Findings = append(task.Inspections[i].Findings, model.InspectionFinding{
					Finding:        finding,
					InspectionDate: s.clock.Now(),
				})
				return nil
			}
		}
		return core.NewNotFound("inspection", inspectionID)
	})
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to store finding: %w", err)
	}

	s.logger.Info("Added inspection finding", "missionRun", run.ID, "inspection", inspectionID)
	return run, nil
}
