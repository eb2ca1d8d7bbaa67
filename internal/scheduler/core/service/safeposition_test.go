package service

import (
	"context"
	"errors"
	"testing"

	"github.com/autopeer-io/robofleet/internal/scheduler/core"
	"github.com/autopeer-io/robofleet/internal/scheduler/core/model"
)

func pose(x, y, z float64) model.Pose {
	return model.Pose{Position: model.Position{X: x, Y: y, Z: z}, Orientation: model.Orientation{W: 1}}
}

func TestNearestSafePosition(t *testing.T) {
	origin := pose(0, 0, 0)

	tests := []struct {
		name       string
		candidates []model.Pose
		want       model.Pose
	}{
		{"exact match", []model.Pose{pose(3, 4, 0), pose(0, 0, 0), pose(1, 1, 1)}, pose(0, 0, 0)},
		{"closest wins", []model.Pose{pose(3, 4, 0), pose(1, 1, 1)}, pose(1, 1, 1)},
		{"tie keeps the first", []model.Pose{pose(0, 2, 0), pose(2, 0, 0)}, pose(0, 2, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := origin.Nearest(tt.candidates)
			if !ok || got != tt.want {
				t.Errorf("Nearest() = (%v, %v), want %v", got, ok, tt.want)
			}
		})
	}
}

func TestScheduleReturnToSafePosition(t *testing.T) {
	f := newFixture(t)
	f.addRobot(t, func(r *model.Robot) { r.Pose = pose(0, 0, 0) })
	area := &model.Area{ID: "area-1", Name: "Weather deck", InstallationCode: "JSV", SafePositions: []model.Pose{pose(3, 4, 0), pose(1, 1, 1)}}
	if err := f.store.Areas().Create(context.Background(), area); err != nil {
		t.Fatalf("create area: %v", err)
	}

	run, err := f.svc.ScheduleReturnToSafePosition(context.Background(), "robot-1", "area-1")
	if err != nil {
		t.Fatalf("ScheduleReturnToSafePosition: %v", err)
	}

	stored := f.run(t, run.ID)
	if stored.Priority != model.PriorityEmergency || stored.Status != model.MissionStatusPending || stored.Name != SafePositionMissionName {
		t.Errorf("run = %+v, want a pending emergency safe position run", stored)
	}
	if len(stored.Tasks) != 1 || stored.Tasks[0].TaskOrder != 0 || stored.Tasks[0].RobotPose != pose(1, 1, 1) {
		t.Errorf("tasks = %+v, want one task targeting (1,1,1)", stored.Tasks)
	}
	if !stored.DesiredStartTime.Equal(testNow) {
		t.Errorf("desired start = %v, want now", stored.DesiredStartTime)
	}
	if len(f.queue.items) != 1 || f.queue.items[0] != "robot-1" {
		t.Errorf("queue = %v, want robot-1 enqueued", f.queue.items)
	}
}

func TestScheduleReturnToSafePositionFailures(t *testing.T) {
	f := newFixture(t)
	f.addRobot(t, nil)
	if err := f.store.Areas().Create(context.Background(), &model.Area{ID: "bare"}); err != nil {
		t.Fatalf("create area: %v", err)
	}

	_, err := f.svc.ScheduleReturnToSafePosition(context.Background(), "robot-1", "bare")
	var zoneErr *core.SafeZoneError
	if !errors.As(err, &zoneErr) || zoneErr.AreaID != "bare" {
		t.Errorf("error = %v, want *core.SafeZoneError for bare", err)
	}

	for _, tc := range []struct{ robot, area string }{{"robot-1", "missing"}, {"ghost", "bare"}} {
		run, err := f.svc.ScheduleReturnToSafePosition(context.Background(), tc.robot, tc.area)
		if run != nil || err != nil {
			t.Errorf("ScheduleReturnToSafePosition(%s, %s) = (%v, %v), want a silent no-op", tc.robot, tc.area, run, err)
		}
	}
}
