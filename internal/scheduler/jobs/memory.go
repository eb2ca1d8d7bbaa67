package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/robofleet/internal/scheduler/core"
	"github.com/autopeer-io/robofleet/pkg/log"
)

type firing struct {
	id  string
	job core.Job
}

// Memory keeps jobs in timers. Pending jobs are lost on restart.
type Memory struct {
	clock  clock.WithDelayedExecution
	logger log.Logger

	mu      sync.Mutex
	pending map[string]clock.Timer

	fired    chan firing
	done     chan struct{}
	stopOnce sync.Once
	inflight sync.WaitGroup
}

var _ Scheduler = (*Memory)(nil)

// MemoryOption configures a Memory scheduler.
type MemoryOption func(*Memory)

// WithMemoryClock replaces the wall clock, mainly for tests.
func WithMemoryClock(c clock.WithDelayedExecution) MemoryOption {
	return func(m *Memory) { m.clock = c }
}

// NewMemory creates an in-process job scheduler.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		clock:   clock.RealClock{},
		logger:  log.WithName("jobs.memory"),
		pending: make(map[string]clock.Timer),
		fired:   make(chan firing),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Memory) Schedule(_ context.Context, job core.Job, delay time.Duration) (string, error) {
	id := uuid.NewString()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[id] = m.clock.AfterFunc(delay, func() {
		m.mu.Lock()
		_, ok := m.pending[id]
		delete(m.pending, id)
		if ok {
			m.inflight.Add(1)
		}
		m.mu.Unlock()
		if !ok {
			return
		}
		defer m.inflight.Done()

		select {
		case m.fired <- firing{id: id, job: job}:
		case <-m.done:
			m.logger.Debug("Dropping job that fired during shutdown", "job", id, "definition", job.DefinitionID)
		}
	})
	return id, nil
}

func (m *Memory) Cancel(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.pending[jobID]; ok {
		t.Stop()
		delete(m.pending, jobID)
	}
	return nil
}

// Pending returns the number of jobs not yet delivered.
func (m *Memory) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *Memory) Run(ctx context.Context, handle core.JobHandler) error {
	for {
		select {
		case <-ctx.Done():
			m.stopAll()
			return nil
		case f := <-m.fired:
			m.logger.Debug("Job is due", "job", f.id, "definition", f.job.DefinitionID)
			handle(ctx, f.job)
		}
	}
}

// stopAll cancels pending timers and waits for timers that already fired.
func (m *Memory) stopAll() {
	m.mu.Lock()
	for id, t := range m.pending {
		t.Stop()
		delete(m.pending, id)
	}
	m.stopOnce.Do(func() { close(m.done) })
	m.mu.Unlock()

	m.inflight.Wait()
}
