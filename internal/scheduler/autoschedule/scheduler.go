// Package autoschedule places recurring mission definitions on the deferred
// job scheduler and turns fired jobs into pending mission runs.
package autoschedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/robofleet/internal/pkg/metrics"
	"github.com/autopeer-io/robofleet/internal/scheduler/core"
	"github.com/autopeer-io/robofleet/internal/scheduler/core/model"
	"github.com/autopeer-io/robofleet/pkg/log"
)

// DefaultInterval is the time between two scheduling passes.
const DefaultInterval = 3 * time.Minute

var (
	errNoLastSuccessfulRun = errors.New("mission definition does not have a last successful mission run")
	errNoInspectionArea    = errors.New("mission definition has no inspection area")
	errNoRobot             = errors.New("no enabled robot is deployed to the inspection area")
)

// RunScheduler creates mission runs from a definition's last successful run.
type RunScheduler interface {
	ScheduleFromLastSuccessfulRun(ctx context.Context, definitionID, robotID string) (*model.MissionRun, error)
}

// Scheduler submits one deferred job per due time of day of every
// auto-scheduled mission definition. Submitted jobs are recorded on the
// definition so a time is submitted at most once per day.
type Scheduler struct {
	definitions core.MissionDefinitionRepository
	robots      core.RobotRepository

	jobs     core.JobScheduler
	runs     RunScheduler
	notifier core.Notifier

	clock    clock.WithTicker
	location *time.Location
	interval time.Duration
	logger   log.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.WithTicker) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithLocation sets the zone times of day are expressed in.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.location = loc }
}

// WithInterval sets the time between two scheduling passes.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.interval = d }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New creates a Scheduler. notifier may be nil.
func New(repo core.Repository, jobs core.JobScheduler, runs RunScheduler, notifier core.Notifier, opts ...Option) *Scheduler {
	s := &Scheduler{
		definitions: repo.Definitions(),
		robots:      repo.Robots(),
		jobs:        jobs,
		runs:        runs,
		notifier:    notifier,
		clock:       clock.RealClock{},
		location:    time.UTC,
		interval:    DefaultInterval,
		logger:      log.WithName("autoschedule"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start runs a scheduling pass immediately and then once per interval until
// ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("Auto scheduler running", "interval", s.interval, "timezone", s.location.String())

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Auto scheduler stopping")
			return nil
		case <-ticker.C():
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	defs, err := s.definitions.List(ctx, core.DefinitionFilter{WithFrequency: true})
	if err != nil {
		s.logger.Error(err, "Failed to load auto scheduled mission definitions")
		return
	}
	if len(defs) == 0 {
		s.logger.Debug("No mission definitions with auto scheduling found")
		return
	}

	now := s.clock.Now()
	today := model.JobDay(now)

	// Every definition is rolled over before anything is scheduled.
	current := defs[:0]
	for _, def := range defs {
		if err := s.rollover(ctx, def, today); err != nil {
			s.logger.Error(err, "Failed to clear previous day's scheduled jobs", "definition", def.ID)
			continue
		}
		current = append(current, def)
	}

	for _, def := range current {
		s.scheduleDefinition(ctx, def, now, today)
	}
}

// rollover drops job ids recorded on an earlier day.
func (s *Scheduler) rollover(ctx context.Context, def *model.MissionDefinition, today string) error {
	jobs := &def.AutoScheduleFrequency.Jobs
	if !jobs.Stale(today) {
		return nil
	}
	s.logger.Debug("Clearing scheduled jobs of previous day", "definition", def.ID, "day", jobs.Day)
	jobs.Clear()
	return s.definitions.Update(ctx, def)
}

func (s *Scheduler) scheduleDefinition(ctx context.Context, def *model.MissionDefinition, now time.Time, today string) {
	freq := def.AutoScheduleFrequency
	due := freq.DueTimes(now, s.location)
	if len(due) == 0 {
		return
	}

	if def.LastSuccessfulRunID == nil {
		s.report(ctx, def, &core.SchedulingError{DefinitionID: def.ID, Err: errNoLastSuccessfulRun})
		return
	}

	for _, d := range due {
		if freq.Jobs.Has(d.TimeOfDay) {
			continue
		}

		jobID, err := s.jobs.Schedule(ctx, core.Job{DefinitionID: def.ID, TimeOfDay: d.TimeOfDay}, d.Delay)
		if err != nil {
			s.report(ctx, def, &core.SchedulingError{DefinitionID: def.ID, TimeOfDay: d.TimeOfDay.String(), Err: err})
			continue
		}

		freq.Jobs.Set(today, d.TimeOfDay, jobID)
		if err := s.definitions.Update(ctx, def); err != nil {
			// The job is already submitted. Cancel it so the next pass can retry.
			if cerr := s.jobs.Cancel(ctx, jobID); cerr != nil {
				s.logger.Error(cerr, "Failed to cancel unrecorded job, it may still fire", "definition", def.ID, "timeOfDay", d.TimeOfDay, "job", jobID)
				err = errors.Join(err, fmt.Errorf("cancel job %s: %w", jobID, cerr))
			}
			delete(freq.Jobs.Entries, d.TimeOfDay)
			s.report(ctx, def, &core.SchedulingError{DefinitionID: def.ID, TimeOfDay: d.TimeOfDay.String(), Err: err})
			continue
		}

		metrics.AutoScheduledJobsTotal.WithLabelValues("scheduled").Inc()
		s.logger.Info("Scheduled mission run for mission definition", "definition", def.ID, "timeOfDay", d.TimeOfDay, "in", d.Delay, "job", jobID)
	}
}

// RunJob creates the mission run of a fired job on an enabled robot deployed
// to the definition's inspection area. Failures are reported and dropped.
func (s *Scheduler) RunJob(ctx context.Context, job core.Job) {
	metrics.AutoScheduledJobsTotal.WithLabelValues("fired").Inc()
	logger := s.logger.WithValues("definition", job.DefinitionID, "timeOfDay", job.TimeOfDay)

	def, err := s.definitions.Get(ctx, job.DefinitionID)
	if err != nil {
		logger.Error(err, "Auto scheduled job refers to an unknown mission definition")
		metrics.AutoScheduledJobsTotal.WithLabelValues("failed").Inc()
		return
	}

	fail := func(err error) {
		s.report(ctx, def, &core.SchedulingError{DefinitionID: def.ID, TimeOfDay: job.TimeOfDay.String(), Err: err})
	}

	if def.InspectionAreaID == "" {
		fail(errNoInspectionArea)
		return
	}

	robots, err := s.robots.List(ctx, core.RobotFilter{AreaID: def.InspectionAreaID, Enabled: model.Ptr(true)})
	if err != nil {
		fail(fmt.Errorf("failed to list robots: %w", err))
		return
	}
	if len(robots) == 0 {
		fail(fmt.Errorf("%w %s", errNoRobot, def.InspectionAreaID))
		return
	}

	robot := robots[0]
	run, err := s.runs.ScheduleFromLastSuccessfulRun(ctx, def.ID, robot.ID)
	if err != nil {
		fail(err)
		return
	}
	logger.Info("Auto scheduled mission run", "missionRun", run.ID, "robot", robot.Name)
}

// Skip cancels the job submitted for timeOfDay today. The slot stays recorded
// so the occurrence is not submitted again.
func (s *Scheduler) Skip(ctx context.Context, definitionID string, timeOfDay model.TimeOfDay) error {
	def, err := s.definitions.Get(ctx, definitionID)
	if err != nil {
		return err
	}
	if !def.HasFrequency() {
		return core.NewNotFound("auto schedule frequency of mission definition", definitionID)
	}

	jobID, ok := def.AutoScheduleFrequency.Jobs.Get(timeOfDay)
	if !ok {
		return core.NewNotFound("scheduled job", fmt.Sprintf("%s@%s", definitionID, timeOfDay))
	}

	if err := s.jobs.Cancel(ctx, jobID); err != nil {
		return fmt.Errorf("failed to cancel job %s: %w", jobID, err)
	}

	metrics.AutoScheduledJobsTotal.WithLabelValues("skipped").Inc()
	s.logger.Info("Skipped auto scheduled mission run", "definition", definitionID, "timeOfDay", timeOfDay, "job", jobID)
	return nil
}

func (s *Scheduler) report(ctx context.Context, def *model.MissionDefinition, err *core.SchedulingError) {
	metrics.AutoScheduledJobsTotal.WithLabelValues("failed").Inc()
	s.logger.Error(err, "Auto scheduling failed", "definition", def.ID, "name", def.Name)

	if s.notifier == nil {
		return
	}
	fields := map[string]string{
		"missionDefinitionId": def.ID,
		"missionDefinition":   def.Name,
		"installationCode":    def.InstallationCode,
	}
	if err.TimeOfDay != "" {
		fields["timeOfDay"] = err.TimeOfDay
	}
	if nerr := s.notifier.ReportFailure(ctx, err.Error(), fields); nerr != nil {
		s.logger.Warn("Failed to send auto scheduling failure notification", "definition", def.ID, "error", nerr)
	}
}
