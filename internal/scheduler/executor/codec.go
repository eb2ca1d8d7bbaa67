package executor

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/autopeer-io/robofleet/internal/scheduler/core"
	"github.com/autopeer-io/robofleet/internal/scheduler/core/model"
)

func startRequest(robot *model.Robot, run *model.MissionRun) map[string]any {
	tasks := make([]any, 0, len(run.Tasks))
	for _, t := range run.Tasks {
		inspections := make([]any, 0, len(t.Inspections))
		for _, i := range t.Inspections {
			inspections = append(inspections, map[string]any{
				"inspection_id": i.ID,
				"type":          i.Type,
			})
		}
		tasks = append(tasks, map[string]any{
			"task_id":     t.ID,
			"order":       t.TaskOrder,
			"tag_id":      t.TagID,
			"description": t.Description,
			"pose":        encodePose(t.RobotPose),
			"inspections": inspections,
		})
	}

	return map[string]any{
		"executor_id": robot.ExecutorID,
		"robot_name":  robot.Name,
		"mission": map[string]any{
			"run_id": run.ID,
			"name":   run.Name,
			"tasks":  tasks,
		},
	}
}

func encodePose(p model.Pose) map[string]any {
	return map[string]any{
		"frame": p.Frame,
		"position": map[string]any{
			"x": p.Position.X, "y": p.Position.Y, "z": p.Position.Z,
		},
		"orientation": map[string]any{
			"x": p.Orientation.X, "y": p.Orientation.Y, "z": p.Orientation.Z, "w": p.Orientation.W,
		},
	}
}

func decodeStarted(resp *structpb.Struct) (*core.StartedMission, error) {
	fields := resp.GetFields()

	missionID := fields["mission_id"].GetStringValue()
	if missionID == "" {
		return nil, fmt.Errorf("response has no mission_id")
	}
	started := &core.StartedMission{ExecutorMissionID: missionID}

	for n, v := range fields["tasks"].GetListValue().GetValues() {
		task := v.GetStructValue().GetFields()
		if task == nil {
			return nil, fmt.Errorf("task %d is not an object", n)
		}

		st := core.StartedTask{
			TaskID:         task["task_id"].GetStringValue(),
			ExecutorTaskID: task["executor_task_id"].GetStringValue(),
			Steps:          make(map[string]string),
		}
		if st.TaskID == "" || st.ExecutorTaskID == "" {
			return nil, fmt.Errorf("task %d lacks task_id or executor_task_id", n)
		}

		for inspectionID, step := range task["steps"].GetStructValue().GetFields() {
			stepID := step.GetStringValue()
			if stepID == "" {
				return nil, fmt.Errorf("step of inspection %s is not a string", inspectionID)
			}
			st.Steps[inspectionID] = stepID
		}
		started.Tasks = append(started.Tasks, st)
	}

	return started, nil
}
