package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/robofleet/internal/scheduler/core"
	"github.com/autopeer-io/robofleet/internal/scheduler/core/model"
)

var testNow = time.Date(2025, time.January, 15, 8, 0, 0, 0, time.UTC)

type collector struct {
	mu   sync.Mutex
	jobs []core.Job
	ch   chan core.Job
}

func newCollector() *collector {
	return &collector{ch: make(chan core.Job, 16)}
}

func (c *collector) handle(_ context.Context, job core.Job) {
	c.mu.Lock()
	c.jobs = append(c.jobs, job)
	c.mu.Unlock()
	c.ch <- job
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.jobs)
}

func newRedis(t *testing.T, clk *testingclock.FakeClock) *Redis {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisWithClient(client, "test", time.Second, WithRedisClock(clk))
}

func TestRedisDeliversDueJobs(t *testing.T) {
	ctx := context.Background()
	clk := testingclock.NewFakeClock(testNow)
	r := newRedis(t, clk)
	c := newCollector()

	early := core.Job{DefinitionID: "def-1", TimeOfDay: model.NewTimeOfDay(9, 0, 0)}
	late := core.Job{DefinitionID: "def-1", TimeOfDay: model.NewTimeOfDay(20, 0, 0)}
	if _, err := r.Schedule(ctx, early, time.Hour); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if _, err := r.Schedule(ctx, late, 12*time.Hour); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	if err := r.poll(ctx, c.handle); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if c.count() != 0 {
		t.Fatalf("delivered %v before they were due", c.jobs)
	}

	clk.Step(time.Hour)
	if err := r.poll(ctx, c.handle); err != nil {
		t.Fatalf("poll: %v", err)
	}
	// A second poll must not deliver the same job again.
	if err := r.poll(ctx, c.handle); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if c.count() != 1 || c.jobs[0] != early {
		t.Errorf("delivered %v, want [%v]", c.jobs, early)
	}

	if n, _ := r.Pending(ctx); n != 1 {
		t.Errorf("Pending() = %d, want 1", n)
	}
}

func TestRedisCancel(t *testing.T) {
	ctx := context.Background()
	clk := testingclock.NewFakeClock(testNow)
	r := newRedis(t, clk)
	c := newCollector()

	id, err := r.Schedule(ctx, core.Job{DefinitionID: "def-1", TimeOfDay: model.NewTimeOfDay(9, 0, 0)}, time.Minute)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := r.Cancel(ctx, id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	// Cancelling again, or cancelling an unknown job, is not an error.
	if err := r.Cancel(ctx, id); err != nil {
		t.Fatalf("second Cancel: %v", err)
	}
	if err := r.Cancel(ctx, "unknown"); err != nil {
		t.Fatalf("Cancel(unknown): %v", err)
	}

	clk.Step(time.Hour)
	if err := r.poll(ctx, c.handle); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if c.count() != 0 {
		t.Errorf("cancelled job was delivered: %v", c.jobs)
	}
}

func TestRedisRun(t *testing.T) {
	clk := testingclock.NewFakeClock(testNow)
	r := newRedis(t, clk)
	c := newCollector()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job := core.Job{DefinitionID: "def-1", TimeOfDay: model.NewTimeOfDay(9, 0, 0)}
	if _, err := r.Schedule(ctx, job, 30*time.Second); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, c.handle) }()

	for !clk.HasWaiters() {
		time.Sleep(time.Millisecond)
	}
	clk.Step(time.Minute)

	select {
	case got := <-c.ch:
		if got != job {
			t.Errorf("delivered %v, want %v", got, job)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("job was not delivered")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
}

func TestMemory(t *testing.T) {
	clk := testingclock.NewFakeClock(testNow)
	m := NewMemory(WithMemoryClock(clk))
	c := newCollector()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, c.handle) }()

	kept := core.Job{DefinitionID: "def-1", TimeOfDay: model.NewTimeOfDay(9, 0, 0)}
	skipped := core.Job{DefinitionID: "def-2", TimeOfDay: model.NewTimeOfDay(9, 0, 0)}
	if _, err := m.Schedule(ctx, kept, time.Hour); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	id, err := m.Schedule(ctx, skipped, time.Hour)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := m.Cancel(ctx, id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got := m.Pending(); got != 1 {
		t.Fatalf("Pending() = %d, want 1", got)
	}

	clk.Step(time.Hour)
	select {
	case got := <-c.ch:
		if got != kept {
			t.Errorf("delivered %v, want %v", got, kept)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("job was not delivered")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
	if c.count() != 1 {
		t.Errorf("delivered %d jobs, want 1", c.count())
	}
}

func TestMemoryShutdownReleasesFiredTimers(t *testing.T) {
	clk := testingclock.NewFakeClock(testNow)
	m := NewMemory(WithMemoryClock(clk))
	c := newCollector()
	job := core.Job{DefinitionID: "def-1", TimeOfDay: model.NewTimeOfDay(9, 0, 0)}

	// The timer fires while nothing is receiving.
	if _, err := m.Schedule(context.Background(), job, time.Minute); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	clk.Step(time.Minute)
	waitPending(t, m, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, c.handle) }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return while a fired timer was pending")
	}

	// Timers firing after shutdown must not block either.
	if _, err := m.Schedule(context.Background(), job, time.Minute); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	clk.Step(time.Minute)
	waitPending(t, m, 0)

	stopped := make(chan struct{})
	go func() {
		m.stopAll()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("timer callback is still blocked after shutdown")
	}
}

func waitPending(t *testing.T, m *Memory, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for m.Pending() != want {
		if time.Now().After(deadline) {
			t.Fatalf("Pending() = %d, want %d", m.Pending(), want)
		}
		time.Sleep(time.Millisecond)
	}
}
