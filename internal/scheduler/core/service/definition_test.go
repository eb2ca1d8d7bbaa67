package service

import (
	"context"
	"errors"
	"testing"

	"github.com/autopeer-io/robofleet/internal/scheduler/core"
	"github.com/autopeer-io/robofleet/internal/scheduler/core/model"
)

func TestScheduleFromLastSuccessfulRun(t *testing.T) {
	f := newFixture(t)
	f.addRobot(t, nil)
	f.addRun(t, func(r *model.MissionRun) {
		r.Status = model.MissionStatusSuccessful
		r.Priority = model.PriorityEmergency
		r.ExecutorMissionID = "m-1"
		r.Tasks[0].Status = model.TaskStatusSuccessful
		r.Tasks[0].ExecutorTaskID = "x1"
		r.Tasks[0].Inspections[0].Status = model.InspectionStatusSuccessful
		r.Tasks[0].Inspections[0].Findings = []model.InspectionFinding{{Finding: "leak", InspectionDate: testNow}}
	})
	ctx := context.Background()
	def := &model.MissionDefinition{ID: "def-1", InstallationCode: "JSV", InspectionAreaID: "area-1", LastSuccessfulRunID: model.Ptr("run-1")}
	if err := f.store.Definitions().Create(ctx, def); err != nil {
		t.Fatalf("create definition: %v", err)
	}

	run, err := f.svc.ScheduleFromLastSuccessfulRun(ctx, "def-1", "robot-1")
	if err != nil {
		t.Fatalf("ScheduleFromLastSuccessfulRun: %v", err)
	}

	got := f.run(t, run.ID)
	if got.Status != model.MissionStatusPending || got.Priority != model.PriorityNormal || got.MissionDefinitionID != "def-1" {
		t.Errorf("run = %s/%s from %q, want Pending/Normal from def-1", got.Status, got.Priority, got.MissionDefinitionID)
	}
	if !got.DesiredStartTime.Equal(testNow) || got.ExecutorMissionID != "" {
		t.Errorf("run desired start %v, executor mission %q", got.DesiredStartTime, got.ExecutorMissionID)
	}
	task := got.Tasks[0]
	if task.ID == "t1" || task.ExecutorTaskID != "" || task.Status != model.TaskStatusNotStarted {
		t.Errorf("task was not reset: %+v", task)
	}
	if insp := task.Inspections[0]; insp.Status != model.InspectionStatusNotStarted || len(insp.Findings) != 0 {
		t.Errorf("inspection was not reset: %+v", insp)
	}
	if len(f.queue.items) != 1 || f.queue.items[0] != "robot-1" {
		t.Errorf("queue = %v, want [robot-1]", f.queue.items)
	}
}

func TestScheduleFromLastSuccessfulRunFailures(t *testing.T) {
	f := newFixture(t)
	f.addRobot(t, nil)
	ctx := context.Background()
	if err := f.store.Definitions().Create(ctx, &model.MissionDefinition{ID: "def-1"}); err != nil {
		t.Fatalf("create definition: %v", err)
	}

	if _, err := f.svc.ScheduleFromLastSuccessfulRun(ctx, "missing", "robot-1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("missing definition = %v, want ErrNotFound", err)
	}
	if _, err := f.svc.ScheduleFromLastSuccessfulRun(ctx, "def-1", "robot-1"); err == nil {
		t.Errorf("definition without a last successful run was scheduled")
	}
	if len(f.queue.items) != 0 {
		t.Errorf("queue = %v, want empty", f.queue.items)
	}
}
