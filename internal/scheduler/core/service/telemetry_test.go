package service

import (
	"context"
	"errors"
	"testing"

	"github.com/autopeer-io/robofleet/internal/scheduler/core"
	"github.com/autopeer-io/robofleet/internal/scheduler/core/model"
)

func header(robotName string) model.Header {
	return model.Header{ExecutorID: "isar-1", RobotName: robotName, Timestamp: testNow}
}

func TestSelfHealing(t *testing.T) {
	f := newFixture(t)
	f.addRobot(t, nil)
	f.addRun(t, func(r *model.MissionRun) {
		r.Status = model.MissionStatusFailed
		r.StatusReason = reasonUnreachable
		r.EndTime = model.Ptr(testNow)
		r.ExecutorMissionID = "m-1"
		r.Tasks = []model.MissionTask{
			{ID: "t1", ExecutorTaskID: "x1", TaskOrder: 0, Status: model.TaskStatusSuccessful,
				Inspections: []model.Inspection{{ID: "i1", Status: model.InspectionStatusSuccessful}}},
			{ID: "t2", ExecutorTaskID: "x2", TaskOrder: 1, Status: model.TaskStatusFailed,
				Inspections: []model.Inspection{{ID: "i2", Status: model.InspectionStatusFailed}}},
			{ID: "t3", ExecutorTaskID: "x3", TaskOrder: 2, Status: model.TaskStatusNotStarted,
				Inspections: []model.Inspection{{ID: "i3", Status: model.InspectionStatusInProgress}}},
		}
	})

	msg := &model.TaskMessage{Header: header("anymal"), MissionID: "m-1", TaskID: "x2", Status: "in_progress"}
	if err := f.svc.HandleTask(context.Background(), msg); err != nil {
		t.Fatalf("HandleTask: %v", err)
	}

	run := f.run(t, "run-1")
	if run.Status != model.MissionStatusOngoing || run.EndTime != nil || run.StatusReason != "" {
		t.Errorf("run = %s (end %v, reason %q), want Ongoing and reopened", run.Status, run.EndTime, run.StatusReason)
	}
	want := []struct {
		task model.TaskStatus
		insp model.InspectionStatus
	}{
		{model.TaskStatusSuccessful, model.InspectionStatusSuccessful},
		{model.TaskStatusInProgress, model.InspectionStatusFailed},
		{model.TaskStatusNotStarted, model.InspectionStatusNotStarted},
	}
	for i, w := range want {
		if got := run.Tasks[i]; got.Status != w.task || got.Inspections[0].Status != w.insp {
			t.Errorf("task %d = %s/%s, want %s/%s", i, got.Status, got.Inspections[0].Status, w.task, w.insp)
		}
	}
}

func TestHandleTaskOnOngoingRunDoesNotReset(t *testing.T) {
	f := newFixture(t)
	f.addRun(t, func(r *model.MissionRun) {
		r.Status = model.MissionStatusOngoing
		r.ExecutorMissionID = "m-1"
		r.Tasks[0].ExecutorTaskID = "x1"
		r.Tasks[1].Status = model.TaskStatusSuccessful
	})

	msg := &model.TaskMessage{Header: header("anymal"), MissionID: "m-1", TaskID: "x1", Status: "in_progress"}
	if err := f.svc.HandleTask(context.Background(), msg); err != nil {
		t.Fatalf("HandleTask: %v", err)
	}
	if got := f.run(t, "run-1").Tasks[1].Status; got != model.TaskStatusSuccessful {
		t.Errorf("later task = %s, want untouched Successful", got)
	}
}

func TestHandleMission(t *testing.T) {
	tests := []struct {
		status      string
		wantRun     model.MissionStatus
		wantRobot   model.RobotStatus
		wantEnqueue bool
	}{
		{"in_progress", model.MissionStatusOngoing, model.RobotStatusBusy, false},
		{"paused", model.MissionStatusPaused, model.RobotStatusBusy, false},
		{"successful", model.MissionStatusSuccessful, model.RobotStatusAvailable, true},
		{"failed", model.MissionStatusFailed, model.RobotStatusAvailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			f := newFixture(t)
			f.addRobot(t, func(r *model.Robot) { r.Status = model.RobotStatusBusy; r.CurrentMissionID = model.Ptr("run-1") })
			f.addRun(t, func(r *model.MissionRun) { r.Status = model.MissionStatusOngoing; r.ExecutorMissionID = "m-1" })

			msg := &model.MissionMessage{Header: header("anymal"), MissionID: "m-1", Status: tt.status}
			if err := f.svc.HandleMission(context.Background(), msg); err != nil {
				t.Fatalf("HandleMission: %v", err)
			}

			run := f.run(t, "run-1")
			if run.Status != tt.wantRun {
				t.Errorf("run status = %s, want %s", run.Status, tt.wantRun)
			}
			if tt.wantRun.IsTerminal() != (run.EndTime != nil) {
				t.Errorf("end time = %v for status %s", run.EndTime, run.Status)
			}

			robot := f.robot(t, "robot-1")
			if robot.Status != tt.wantRobot {
				t.Errorf("robot status = %s, want %s", robot.Status, tt.wantRobot)
			}
			if tt.wantEnqueue && (robot.HasCurrentMission() || len(f.queue.items) != 1) {
				t.Errorf("finished mission: current %v, queue %v", robot.CurrentMissionID, f.queue.items)
			}
		})
	}
}

func TestMalformedTelemetry(t *testing.T) {
	f := newFixture(t)
	f.addRobot(t, nil)
	f.addRun(t, func(r *model.MissionRun) { r.Status = model.MissionStatusOngoing; r.ExecutorMissionID = "m-1" })

	ctx := context.Background()
	errs := []error{
		f.svc.HandleMission(ctx, &model.MissionMessage{Header: header("anymal"), MissionID: "m-1", Status: "exploded"}),
		f.svc.HandleTask(ctx, &model.TaskMessage{Header: header("anymal"), MissionID: "m-1", TaskID: "t1", Status: "??"}),
		f.svc.HandleStep(ctx, &model.StepMessage{Header: header("anymal"), MissionID: "m-1", TaskID: "t1", StepID: "s1", Status: ""}),
		f.svc.HandleRobotStatus(ctx, &model.RobotStatusMessage{Header: header("anymal"), Status: "dancing"}),
	}
	for i, err := range errs {
		var malformed *core.MalformedTelemetryError
		if !errors.As(err, &malformed) {
			t.Errorf("message %d: error = %v, want *core.MalformedTelemetryError", i, err)
		}
	}

	if got := f.run(t, "run-1").Status; got != model.MissionStatusOngoing {
		t.Errorf("malformed message mutated run status to %s", got)
	}
}

func TestUnknownTelemetryIsAbsorbed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	unknown := header("ghost")
	unknown.ExecutorID = "isar-ghost"
	errs := []error{
		f.svc.HandleRobotStatus(ctx, &model.RobotStatusMessage{Header: unknown, Status: "available"}),
		f.svc.HandleMission(ctx, &model.MissionMessage{Header: unknown, MissionID: "m-x", Status: "successful"}),
		f.svc.HandleTask(ctx, &model.TaskMessage{Header: unknown, MissionID: "m-x", TaskID: "t", Status: "successful"}),
		f.svc.HandleStep(ctx, &model.StepMessage{Header: unknown, MissionID: "m-x", TaskID: "t", StepID: "s", Status: "successful"}),
		f.svc.HandleBattery(ctx, &model.BatteryMessage{Header: unknown, BatteryLevel: 50}),
		f.svc.HandlePose(ctx, &model.PoseMessage{Header: unknown}),
	}
	for i, err := range errs {
		if err != nil {
			t.Errorf("message %d: error = %v, want nil", i, err)
		}
	}
}

func TestHandleRobotStatus(t *testing.T) {
	f := newFixture(t)
	f.addRobot(t, func(r *model.Robot) { r.Status = model.RobotStatusBusy })
	ctx := context.Background()

	msg := &model.RobotStatusMessage{Header: header("anymal"), Status: "available"}
	if err := f.svc.HandleRobotStatus(ctx, msg); err != nil {
		t.Fatalf("HandleRobotStatus: %v", err)
	}
	if got := f.robot(t, "robot-1").Status; got != model.RobotStatusAvailable {
		t.Errorf("robot status = %s, want Available", got)
	}

	// A repeated report is a no-op and does not enqueue twice.
	if err := f.svc.HandleRobotStatus(ctx, msg); err != nil {
		t.Fatalf("HandleRobotStatus: %v", err)
	}
	if len(f.queue.items) != 1 {
		t.Errorf("queue = %v, want a single entry", f.queue.items)
	}
}

func TestHandleRobotInfo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	streams := []model.VideoStream{{Name: "front", URL: "rtsp://a/front", Type: "rtsp"}, {Name: "rear", URL: "rtsp://a/rear", Type: "rtsp"}}

	msg := &model.RobotInfoMessage{Header: header("anymal"), Model: "AnymalX", SerialNumber: "X-1", VideoStreams: streams, Host: "10.0.0.1", Port: 3000}
	if err := f.svc.HandleRobotInfo(ctx, msg); err != nil {
		t.Fatalf("HandleRobotInfo: %v", err)
	}

	robot, err := f.store.Robots().GetByExecutorID(ctx, "isar-1")
	if err != nil {
		t.Fatalf("robot was not created: %v", err)
	}
	if robot.Status != model.RobotStatusAvailable || !robot.Enabled || robot.Name != "anymal" || robot.Port != 3000 {
		t.Errorf("created robot = %+v", robot)
	}

	// Reordered streams are not a change.
	msg.VideoStreams = []model.VideoStream{streams[1], streams[0]}
	msg.Port = 3001
	if err := f.svc.HandleRobotInfo(ctx, msg); err != nil {
		t.Fatalf("HandleRobotInfo: %v", err)
	}
	updated, _ := f.store.Robots().GetByExecutorID(ctx, "isar-1")
	if updated.Port != 3001 || updated.Host != "10.0.0.1" {
		t.Errorf("updated robot = %s:%d, want 10.0.0.1:3001", updated.Host, updated.Port)
	}
}

func TestHandleStepBatteryPose(t *testing.T) {
	f := newFixture(t)
	f.addRobot(t, nil)
	f.addRun(t, func(r *model.MissionRun) {
		r.Status = model.MissionStatusOngoing
		r.ExecutorMissionID = "m-1"
		r.Tasks[1].ExecutorTaskID = "x2"
		r.Tasks[1].Inspections[0].ExecutorStepID = "s2"
	})
	ctx := context.Background()

	if err := f.svc.HandleStep(ctx, &model.StepMessage{Header: header("anymal"), MissionID: "m-1", TaskID: "x2", StepID: "s2", Status: "successful"}); err != nil {
		t.Fatalf("HandleStep: %v", err)
	}
	if got := f.run(t, "run-1").Tasks[1].Inspections[0].Status; got != model.InspectionStatusSuccessful {
		t.Errorf("inspection status = %s, want Successful", got)
	}

	if err := f.svc.HandleBattery(ctx, &model.BatteryMessage{Header: header("anymal"), BatteryLevel: 42.5}); err != nil {
		t.Fatalf("HandleBattery: %v", err)
	}
	p := pose(1, 2, 3)
	if err := f.svc.HandlePose(ctx, &model.PoseMessage{Header: header("anymal"), Pose: p}); err != nil {
		t.Fatalf("HandlePose: %v", err)
	}
	robot := f.robot(t, "robot-1")
	if robot.BatteryLevel != 42.5 || robot.Pose != p {
		t.Errorf("robot battery %v pose %v, want 42.5 and %v", robot.BatteryLevel, robot.Pose, p)
	}
}
