package service

import (
	"context"
	"fmt"
	"time"

	"github.com/autopeer-io/robofleet/internal/scheduler/core"
	"github.com/autopeer-io/robofleet/internal/scheduler/core/model"
)

// Denial reasons reported by CanLaunch.
const (
	ReasonQueueFrozen    = "mission queue is frozen"
	ReasonOngoingMission = "robot already has an ongoing mission"
	ReasonNotAvailable   = "robot is not available"
	ReasonNotEnabled     = "robot is not enabled"
	ReasonNotDue         = "desired start time is in the future"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed bool
	Reason  string
}

// CanLaunch decides whether run may start on robot now. ongoing reports
// whether the robot already runs a mission. Checks short-circuit in order
// and Emergency priority only bypasses the queue freeze.
func CanLaunch(robot *model.Robot, run *model.MissionRun, ongoing bool, now time.Time) Decision {
	switch {
	case robot.MissionQueueFrozen && run.Priority != model.PriorityEmergency:
		return Decision{Reason: ReasonQueueFrozen}
	case ongoing:
		return Decision{Reason: ReasonOngoingMission}
	case robot.Status != model.RobotStatusAvailable:
		return Decision{Reason: ReasonNotAvailable}
	case !robot.Enabled:
		return Decision{Reason: ReasonNotEnabled}
	case run.DesiredStartTime.After(now):
		return Decision{Reason: ReasonNotDue}
	}
	return Decision{Allowed: true}
}

// admit evaluates CanLaunch against freshly read repository state.
// The check and the following launch are not atomic.
func (s *Service) admit(ctx context.Context, robot *model.Robot, run *model.MissionRun) (Decision, error) {
	ongoing, err := s.hasOngoingMission(ctx, robot)
	if err != nil {
		return Decision{}, err
	}
	return CanLaunch(robot, run, ongoing, s.clock.Now()), nil
}

// hasOngoingMission looks for Ongoing runs only. CurrentMissionID can be
// stale when mission telemetry names an unknown robot.
func (s *Service) hasOngoingMission(ctx context.Context, robot *model.Robot) (bool, error) {
	runs, err := s.runs.List(ctx, core.MissionRunFilter{
		RobotID:  robot.ID,
		Statuses: []model.MissionStatus{model.MissionStatusOngoing},
	})
	if err != nil {
		return false, fmt.Errorf("failed to list ongoing missions: %w", err)
	}
	return len(runs) > 0, nil
}
