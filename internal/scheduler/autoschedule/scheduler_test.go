package autoschedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	testingclock "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/robofleet/internal/scheduler/core"
	"github.com/autopeer-io/robofleet/internal/scheduler/core/model"
	"github.com/autopeer-io/robofleet/internal/scheduler/store"
)

// Wednesday 09:00 in Oslo.
var testNow = time.Date(2025, time.January, 15, 8, 0, 0, 0, time.UTC)

type scheduledJob struct {
	id    string
	job   core.Job
	delay time.Duration
}

type fakeJobs struct {
	mu         sync.Mutex
	err        error
	cancelErr  error
	onSchedule func(core.Job)
	scheduled  []scheduledJob
	cancelled  []string
}

func (f *fakeJobs) Schedule(_ context.Context, job core.Job, delay time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if f.onSchedule != nil {
		f.onSchedule(job)
	}
	id := fmt.Sprintf("job-%d", len(f.scheduled)+1)
	f.scheduled = append(f.scheduled, scheduledJob{id: id, job: job, delay: delay})
	return id, nil
}

func (f *fakeJobs) Cancel(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, jobID)
	return f.cancelErr
}

type fakeRuns struct {
	err   error
	calls []string
}

func (f *fakeRuns) ScheduleFromLastSuccessfulRun(_ context.Context, definitionID, robotID string) (*model.MissionRun, error) {
	f.calls = append(f.calls, definitionID+"/"+robotID)
	if f.err != nil {
		return nil, f.err
	}
	return &model.MissionRun{ID: "run-new", RobotID: robotID}, nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	fields   []map[string]string
}

func (f *fakeNotifier) ReportFailure(_ context.Context, message string, fields map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	f.fields = append(f.fields, fields)
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

type fixture struct {
	sched    *Scheduler
	store    *store.Memory
	jobs     *fakeJobs
	runs     *fakeRuns
	notifier *fakeNotifier
	clock    *testingclock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	oslo, err := time.LoadLocation("Europe/Oslo")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	f := &fixture{
		store:    store.NewMemory(),
		jobs:     &fakeJobs{},
		runs:     &fakeRuns{},
		notifier: &fakeNotifier{},
		clock:    testingclock.NewFakeClock(testNow),
	}
	f.sched = New(f.store, f.jobs, f.runs, f.notifier,
		WithClock(f.clock),
		WithLocation(oslo),
		WithInterval(time.Minute),
	)
	return f
}

func (f *fixture) addDefinition(t *testing.T, id string, mutate func(d *model.MissionDefinition)) {
	t.Helper()
	d := &model.MissionDefinition{
		ID:                  id,
		Name:                "Gauge round " + id,
		InstallationCode:    "JSV",
		InspectionAreaID:    "area-1",
		LastSuccessfulRunID: model.Ptr("run-1"),
		AutoScheduleFrequency: &model.AutoScheduleFrequency{
			// 07:00 tomorrow is past the next UTC midnight and not due yet.
			TimesOfDay: []model.TimeOfDay{model.NewTimeOfDay(7, 0, 0), model.NewTimeOfDay(10, 0, 0), model.NewTimeOfDay(20, 0, 0)},
			DaysOfWeek: []time.Weekday{time.Wednesday, time.Thursday},
		},
	}
	if mutate != nil {
		mutate(d)
	}
	if err := f.store.Definitions().Create(context.Background(), d); err != nil {
		t.Fatalf("create definition: %v", err)
	}
}

func (f *fixture) definition(t *testing.T, id string) *model.MissionDefinition {
	t.Helper()
	d, err := f.store.Definitions().Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get definition: %v", err)
	}
	return d
}

func TestTickSchedulesDueTimes(t *testing.T) {
	f := newFixture(t)
	f.addDefinition(t, "def-1", nil)

	f.sched.tick(context.Background())

	want := []scheduledJob{
		{id: "job-1", job: core.Job{DefinitionID: "def-1", TimeOfDay: model.NewTimeOfDay(10, 0, 0)}, delay: time.Hour},
		{id: "job-2", job: core.Job{DefinitionID: "def-1", TimeOfDay: model.NewTimeOfDay(20, 0, 0)}, delay: 11 * time.Hour},
	}
	if len(f.jobs.scheduled) != len(want) {
		t.Fatalf("scheduled %+v, want %+v", f.jobs.scheduled, want)
	}
	for i := range want {
		if f.jobs.scheduled[i] != want[i] {
			t.Errorf("job %d = %+v, want %+v", i, f.jobs.scheduled[i], want[i])
		}
	}

	jobs := f.definition(t, "def-1").AutoScheduleFrequency.Jobs
	if jobs.Day != "2025-01-15" {
		t.Errorf("jobs day = %q, want 2025-01-15", jobs.Day)
	}
	if id, _ := jobs.Get(model.NewTimeOfDay(20, 0, 0)); id != "job-2" {
		t.Errorf("20:00 job = %q, want job-2", id)
	}
}

func TestTickDoesNotScheduleTwice(t *testing.T) {
	f := newFixture(t)
	f.addDefinition(t, "def-1", nil)
	ctx := context.Background()

	f.sched.tick(ctx)
	f.clock.Step(3 * time.Minute)
	f.sched.tick(ctx)

	if got := len(f.jobs.scheduled); got != 2 {
		t.Errorf("scheduled %d jobs over two passes, want 2", got)
	}
}

func TestTickClearsPreviousDay(t *testing.T) {
	f := newFixture(t)
	f.addDefinition(t, "def-1", func(d *model.MissionDefinition) {
		d.AutoScheduleFrequency.Jobs.Set("2025-01-14", model.NewTimeOfDay(10, 0, 0), "stale")
		d.AutoScheduleFrequency.Jobs.Set("2025-01-14", model.NewTimeOfDay(7, 0, 0), "stale-2")
	})

	f.sched.tick(context.Background())

	jobs := f.definition(t, "def-1").AutoScheduleFrequency.Jobs
	if jobs.Day != "2025-01-15" || jobs.Has(model.NewTimeOfDay(7, 0, 0)) {
		t.Errorf("previous day's jobs survived: %+v", jobs)
	}
	if id, _ := jobs.Get(model.NewTimeOfDay(10, 0, 0)); id != "job-1" {
		t.Errorf("10:00 job = %q, want a fresh job-1", id)
	}
}

func TestTickReportsDefinitionWithoutSuccessfulRun(t *testing.T) {
	f := newFixture(t)
	f.addDefinition(t, "def-1", func(d *model.MissionDefinition) { d.LastSuccessfulRunID = nil })
	f.addDefinition(t, "def-2", nil)

	f.sched.tick(context.Background())

	if f.notifier.count() != 1 || f.notifier.fields[0]["missionDefinitionId"] != "def-1" {
		t.Errorf("notifications = %v %v, want one for def-1", f.notifier.messages, f.notifier.fields)
	}
	for _, j := range f.jobs.scheduled {
		if j.job.DefinitionID != "def-2" {
			t.Errorf("scheduled job for %s", j.job.DefinitionID)
		}
	}
	if len(f.jobs.scheduled) != 2 {
		t.Errorf("def-2 got %d jobs, want 2", len(f.jobs.scheduled))
	}
}

func TestTickReportsSubmissionFailure(t *testing.T) {
	f := newFixture(t)
	f.addDefinition(t, "def-1", nil)
	f.jobs.err = errors.New("redis: connection refused")

	f.sched.tick(context.Background())

	if got := f.notifier.count(); got != 2 {
		t.Errorf("notifications = %d, want one per due time", got)
	}
	if jobs := f.definition(t, "def-1").AutoScheduleFrequency.Jobs; len(jobs.Entries) != 0 {
		t.Errorf("failed submissions were recorded: %+v", jobs)
	}
}

func TestSkip(t *testing.T) {
	f := newFixture(t)
	f.addDefinition(t, "def-1", nil)
	f.addDefinition(t, "def-2", func(d *model.MissionDefinition) { d.AutoScheduleFrequency = nil })
	ctx := context.Background()
	f.sched.tick(ctx)

	if err := f.sched.Skip(ctx, "def-1", model.NewTimeOfDay(20, 0, 0)); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	if len(f.jobs.cancelled) != 1 || f.jobs.cancelled[0] != "job-2" {
		t.Errorf("cancelled = %v, want [job-2]", f.jobs.cancelled)
	}

	// The skipped slot stays recorded and is not submitted again.
	f.sched.tick(ctx)
	if got := len(f.jobs.scheduled); got != 2 {
		t.Errorf("scheduled %d jobs after skip, want 2", got)
	}

	tests := []struct {
		name string
		id   string
		tod  model.TimeOfDay
	}{
		{"unknown definition", "nope", model.NewTimeOfDay(10, 0, 0)},
		{"no frequency", "def-2", model.NewTimeOfDay(10, 0, 0)},
		{"no job at time", "def-1", model.NewTimeOfDay(11, 0, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := f.sched.Skip(ctx, tt.id, tt.tod); !errors.Is(err, core.ErrNotFound) {
				t.Errorf("Skip = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestRunJob(t *testing.T) {
	ctx := context.Background()
	job := core.Job{DefinitionID: "def-1", TimeOfDay: model.NewTimeOfDay(10, 0, 0)}

	tests := []struct {
		name       string
		robots     []*model.Robot
		definition func(d *model.MissionDefinition)
		runErr     error
		wantCalls  []string
		wantReport bool
	}{
		{
			name: "robot in area",
			robots: []*model.Robot{
				{ID: "robot-2", Name: "elsewhere", Enabled: true, CurrentAreaID: model.Ptr("area-2")},
				{ID: "robot-1", Name: "anymal", Enabled: true, CurrentAreaID: model.Ptr("area-1")},
			},
			wantCalls: []string{"def-1/robot-1"},
		},
		{
			name:       "disabled robot in area",
			robots:     []*model.Robot{{ID: "robot-1", Name: "anymal", CurrentAreaID: model.Ptr("area-1")}},
			wantReport: true,
		},
		{
			name:       "no inspection area",
			robots:     []*model.Robot{{ID: "robot-1", Name: "anymal", Enabled: true, CurrentAreaID: model.Ptr("area-1")}},
			definition: func(d *model.MissionDefinition) { d.InspectionAreaID = "" },
			wantReport: true,
		},
		{
			name:       "run creation fails",
			robots:     []*model.Robot{{ID: "robot-1", Name: "anymal", Enabled: true, CurrentAreaID: model.Ptr("area-1")}},
			runErr:     errors.New("store unavailable"),
			wantCalls:  []string{"def-1/robot-1"},
			wantReport: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.addDefinition(t, "def-1", tt.definition)
			for _, r := range tt.robots {
				if err := f.store.Robots().Create(ctx, r); err != nil {
					t.Fatalf("create robot: %v", err)
				}
			}
			f.runs.err = tt.runErr

			f.sched.RunJob(ctx, job)

			if fmt.Sprint(f.runs.calls) != fmt.Sprint(tt.wantCalls) {
				t.Errorf("run calls = %v, want %v", f.runs.calls, tt.wantCalls)
			}
			if got := f.notifier.count() > 0; got != tt.wantReport {
				t.Errorf("reported = %v, want %v (%v)", got, tt.wantReport, f.notifier.messages)
			}
		})
	}
}

func TestStartTicksUntilCancelled(t *testing.T) {
	f := newFixture(t)
	// Every pass reports the definition, which makes passes countable.
	f.addDefinition(t, "def-1", func(d *model.MissionDefinition) { d.LastSuccessfulRunID = nil })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.sched.Start(ctx) }()

	waitFor := func(cond func() bool, what string) {
		t.Helper()
		deadline := time.Now().Add(5 * time.Second)
		for !cond() {
			if time.Now().After(deadline) {
				t.Fatalf("timed out waiting for %s", what)
			}
			time.Sleep(time.Millisecond)
		}
	}

	waitFor(func() bool { return f.notifier.count() == 1 && f.clock.HasWaiters() }, "the first pass")
	f.clock.Step(time.Minute)
	waitFor(func() bool { return f.notifier.count() == 2 }, "the second pass")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancellation")
	}
}

type recordingDefinitions struct {
	core.MissionDefinitionRepository
	updateErr error
	record    func(event string)
}

func (d recordingDefinitions) Update(ctx context.Context, def *model.MissionDefinition) error {
	if d.record != nil {
		event := "record " + def.ID
		if len(def.AutoScheduleFrequency.Jobs.Entries) == 0 {
			event = "clear " + def.ID
		}
		d.record(event)
	}
	if d.updateErr != nil {
		return d.updateErr
	}
	return d.MissionDefinitionRepository.Update(ctx, def)
}

type definitionsRepo struct {
	*store.Memory
	defs core.MissionDefinitionRepository
}

func (r definitionsRepo) Definitions() core.MissionDefinitionRepository { return r.defs }

func TestTickRollsOverEveryDefinitionFirst(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"def-1", "def-2"} {
		f.addDefinition(t, id, func(d *model.MissionDefinition) {
			d.AutoScheduleFrequency.Jobs.Set("2025-01-14", model.NewTimeOfDay(10, 0, 0), "stale")
		})
	}

	var events []string
	record := func(event string) { events = append(events, event) }
	f.jobs.onSchedule = func(job core.Job) { record("schedule " + job.DefinitionID) }
	repo := definitionsRepo{Memory: f.store, defs: recordingDefinitions{MissionDefinitionRepository: f.store.Definitions(), record: record}}
	sched := New(repo, f.jobs, f.runs, f.notifier, WithClock(f.clock), WithLocation(f.sched.location))

	sched.tick(context.Background())

	if len(events) < 3 || events[0] != "clear def-1" || events[1] != "clear def-2" {
		t.Errorf("events = %v, want both rollovers before any scheduling", events)
	}
}

func TestTickReportsJobThatCouldNotBeCancelled(t *testing.T) {
	f := newFixture(t)
	f.addDefinition(t, "def-1", nil)
	f.jobs.cancelErr = errors.New("redis: connection reset")
	repo := definitionsRepo{Memory: f.store, defs: recordingDefinitions{MissionDefinitionRepository: f.store.Definitions(), updateErr: errors.New("database is locked")}}
	sched := New(repo, f.jobs, f.runs, f.notifier, WithClock(f.clock), WithLocation(f.sched.location))

	sched.tick(context.Background())

	if len(f.jobs.cancelled) != 2 {
		t.Fatalf("cancelled %v, want both unrecorded jobs", f.jobs.cancelled)
	}
	if got := f.notifier.count(); got != 2 {
		t.Fatalf("notifications = %d, want 2", got)
	}
	for i, msg := range f.notifier.messages {
		want := fmt.Sprintf("cancel job job-%d", i+1)
		if !strings.Contains(msg, "database is locked") || !strings.Contains(msg, want) {
			t.Errorf("notification %d = %q, want the update failure and %q", i, msg, want)
		}
	}
}
