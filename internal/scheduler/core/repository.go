package core

import (
	"context"
	"time"

	"github.com/autopeer-io/robofleet/internal/scheduler/core/model"
)

// RobotFilter narrows RobotRepository.List. Zero fields match everything.
type RobotFilter struct {
	Status  model.RobotStatus
	AreaID  string
	Enabled *bool
}

// MissionRunFilter narrows MissionRunRepository.List. Zero fields match everything.
type MissionRunFilter struct {
	RobotID      string
	Statuses     []model.MissionStatus
	DefinitionID string
}

// DefinitionFilter narrows MissionDefinitionRepository.List.
type DefinitionFilter struct {
	// WithFrequency keeps only auto-scheduled definitions.
	WithFrequency     bool
	IncludeDeprecated bool
}

// Finding is an inspection finding joined with the run it belongs to.
type Finding struct {
	RunID            string
	RunName          string
	RobotID          string
	InstallationCode string
	TagID            string
	InspectionID     string
	model.InspectionFinding
}

// RobotRepository persists robots. Lookups return an error matching
// ErrNotFound on a miss.
//
// Modify applies mutate to the latest stored robot and writes the result
// atomically with respect to concurrent Modify and Update calls. mutate may
// run more than once and must not call back into the repository. When mutate
// returns ErrUnchanged nothing is written and Modify returns the robot as read.
type RobotRepository interface {
	Create(ctx context.Context, robot *model.Robot) error
	Get(ctx context.Context, id string) (*model.Robot, error)
	GetByExecutorID(ctx context.Context, executorID string) (*model.Robot, error)
	GetByName(ctx context.Context, name string) (*model.Robot, error)
	List(ctx context.Context, filter RobotFilter) ([]*model.Robot, error)
	Update(ctx context.Context, robot *model.Robot) error
	Modify(ctx context.Context, id string, mutate func(*model.Robot) error) (*model.Robot, error)
	Delete(ctx context.Context, id string) error
}

// MissionRunRepository persists mission runs. Modify has the same contract
// as RobotRepository.Modify.
type MissionRunRepository interface {
	Create(ctx context.Context, run *model.MissionRun) error
	Get(ctx context.Context, id string) (*model.MissionRun, error)
	GetByExecutorMissionID(ctx context.Context, executorMissionID string) (*model.MissionRun, error)

	// List returns matching runs ordered by desired start time.
	List(ctx context.Context, filter MissionRunFilter) ([]*model.MissionRun, error)
	Update(ctx context.Context, run *model.MissionRun) error
	Modify(ctx context.Context, id string, mutate func(*model.MissionRun) error) (*model.MissionRun, error)
	Delete(ctx context.Context, id string) error

	// FindingsSince returns findings with an inspection date at or after since.
	FindingsSince(ctx context.Context, since time.Time) ([]Finding, error)
}

// MissionDefinitionRepository persists mission definitions.
type MissionDefinitionRepository interface {
	Create(ctx context.Context, def *model.MissionDefinition) error
	Get(ctx context.Context, id string) (*model.MissionDefinition, error)
	List(ctx context.Context, filter DefinitionFilter) ([]*model.MissionDefinition, error)
	Update(ctx context.Context, def *model.MissionDefinition) error
	Delete(ctx context.Context, id string) error
}

// AreaRepository persists inspection areas and their safe positions.
type AreaRepository interface {
	Create(ctx context.Context, area *model.Area) error
	Get(ctx context.Context, id string) (*model.Area, error)
	List(ctx context.Context) ([]*model.Area, error)
	Update(ctx context.Context, area *model.Area) error
	Delete(ctx context.Context, id string) error
}

// Repository groups the repositories of one backing store.
type Repository interface {
	Robots() RobotRepository
	MissionRuns() MissionRunRepository
	Definitions() MissionDefinitionRepository
	Areas() AreaRepository
}
