package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	testingclock "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/robofleet/internal/scheduler/core"
	"github.com/autopeer-io/robofleet/internal/scheduler/core/model"
	"github.com/autopeer-io/robofleet/internal/scheduler/store"
)

var testNow = time.Date(2025, time.January, 15, 8, 0, 0, 0, time.UTC)

type fakeExecutor struct {
	mu       sync.Mutex
	startErr error
	stopErr  error
	attempts int
	started  []string
	stopped  int
}

func (f *fakeExecutor) StartMission(_ context.Context, _ *model.Robot, run *model.MissionRun) (*core.StartedMission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.started = append(f.started, run.ID)
	started := &core.StartedMission{ExecutorMissionID: "exec-" + run.ID}
	for _, t := range run.Tasks {
		st := core.StartedTask{TaskID: t.ID, ExecutorTaskID: "exec-" + t.ID, Steps: map[string]string{}}
		for _, i := range t.Inspections {
			st.Steps[i.ID] = "exec-" + i.ID
		}
		started.Tasks = append(started.Tasks, st)
	}
	return started, nil
}

func (f *fakeExecutor) startAttempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func (f *fakeExecutor) StopMission(context.Context, *model.Robot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	return f.stopErr
}

type fakeQueue struct {
	mu    sync.Mutex
	items []string
}

func (q *fakeQueue) Enqueue(robotID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, robotID)
}

type fixture struct {
	svc   *Service
	store *store.Memory
	exec  *fakeExecutor
	queue *fakeQueue
	clock *testingclock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: store.NewMemory(),
		exec:  &fakeExecutor{},
		queue: &fakeQueue{},
		clock: testingclock.NewFakeClock(testNow),
	}
	n := 0
	f.svc = New(f.store, f.exec, f.queue,
		WithClock(f.clock),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%d", n) }),
	)
	return f
}

func (f *fixture) addRobot(t *testing.T, mutate func(r *model.Robot)) *model.Robot {
	t.Helper()
	r := &model.Robot{
		ID:         "robot-1",
		ExecutorID: "isar-1",
		Name:       "anymal",
		Status:     model.RobotStatusAvailable,
		Enabled:    true,
	}
	if mutate != nil {
		mutate(r)
	}
	if err := f.store.Robots().Create(context.Background(), r); err != nil {
		t.Fatalf("create robot: %v", err)
	}
	return r
}

func (f *fixture) addRun(t *testing.T, mutate func(r *model.MissionRun)) *model.MissionRun {
	t.Helper()
	r := &model.MissionRun{
		ID:               "run-1",
		Name:             "Weekly gauge reading",
		RobotID:          "robot-1",
		AreaID:           "area-1",
		InstallationCode: "JSV",
		Status:           model.MissionStatusPending,
		Priority:         model.PriorityNormal,
		DesiredStartTime: testNow.Add(-time.Minute),
		Tasks: []model.MissionTask{
			{ID: "t1", TaskOrder: 0, Status: model.TaskStatusNotStarted, Inspections: []model.Inspection{{ID: "i1", Type: "Image"}}},
			{ID: "t2", TaskOrder: 1, Status: model.TaskStatusNotStarted, Inspections: []model.Inspection{{ID: "i2", Type: "Image"}}},
		},
	}
	if mutate != nil {
		mutate(r)
	}
	if err := f.store.MissionRuns().Create(context.Background(), r); err != nil {
		t.Fatalf("create run: %v", err)
	}
	return r
}

func (f *fixture) robot(t *testing.T, id string) *model.Robot {
	t.Helper()
	r, err := f.store.Robots().Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get robot %s: %v", id, err)
	}
	return r
}

func (f *fixture) run(t *testing.T, id string) *model.MissionRun {
	t.Helper()
	r, err := f.store.MissionRuns().Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get run %s: %v", id, err)
	}
	return r
}
