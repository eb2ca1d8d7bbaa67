package core

import (
	"context"
	"errors"

	"github.com/autopeer-io/robofleet/internal/scheduler/core/model"
)

var (
	// ErrNoActiveMission is returned by StopMission when the robot is idle.
	ErrNoActiveMission = errors.New("executor has no active mission")

	// ErrExecutorUnreachable is returned when the executor cannot be contacted.
	ErrExecutorUnreachable = errors.New("executor unreachable")

	// ErrMalformedResponse is returned when the executor reply cannot be decoded.
	ErrMalformedResponse = errors.New("malformed executor response")
)

// StartedTask maps an internal task to the executor's task and step ids.
type StartedTask struct {
	TaskID         string
	ExecutorTaskID string

	// Steps maps inspection ids to executor step ids.
	Steps map[string]string
}

// StartedMission is the executor's reply to a started mission.
type StartedMission struct {
	ExecutorMissionID string
	Tasks             []StartedTask
}

// Executor drives robots. Calls are attempted once.
type Executor interface {
	StartMission(ctx context.Context, robot *model.Robot, run *model.MissionRun) (*StartedMission, error)
	StopMission(ctx context.Context, robot *model.Robot) error
}
