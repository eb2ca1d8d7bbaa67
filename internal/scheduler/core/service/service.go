package service

import (
	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/robofleet/internal/scheduler/core"
	"github.com/autopeer-io/robofleet/pkg/log"
)

// Service implements the mission admission and scheduling use cases.
// It orchestrates calls between the model entities and the adapters (ports).
type Service struct {
	robots      core.RobotRepository
	runs        core.MissionRunRepository
	definitions core.MissionDefinitionRepository
	areas       core.AreaRepository

	executor core.Executor
	queue    core.AvailabilityQueue

	clock  clock.PassiveClock
	newID  func() string
	logger log.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.PassiveClock) Option {
	return func(s *Service) { s.clock = c }
}

// WithIDGenerator replaces the uuid based id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// WithLogger sets the logger used by the service.
func WithLogger(l log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates the core service. Dependency injection happens here.
func New(repo core.Repository, executor core.Executor, queue core.AvailabilityQueue, opts ...Option) *Service {
	s := &Service{
		robots:      repo.Robots(),
		runs:        repo.MissionRuns(),
		definitions: repo.Definitions(),
		areas:       repo.Areas(),
		executor:    executor,
		queue:       queue,
		clock:       clock.RealClock{},
		newID:       uuid.NewString,
		logger:      log.WithName("service"),
	}

	for _, o := range opts {
		o(s)
	}

	return s
}

func (s *Service) enqueue(robotID string) {
	if s.queue != nil {
		s.queue.Enqueue(robotID)
	}
}
