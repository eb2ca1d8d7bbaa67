package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/autopeer-io/robofleet/internal/scheduler/core"
	"github.com/autopeer-io/robofleet/internal/scheduler/core/model"
)

// Memory keeps every entity as an encoded document in process memory, so
// callers never share state with the store.
type Memory struct {
	mu     sync.RWMutex
	robots map[string][]byte
	runs   map[string][]byte
	defs   map[string][]byte
	areas  map[string][]byte
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		robots: make(map[string][]byte),
		runs:   make(map[string][]byte),
		defs:   make(map[string][]byte),
		areas:  make(map[string][]byte),
	}
}

func (m *Memory) Robots() core.RobotRepository                  { return memRobots{m} }
func (m *Memory) MissionRuns() core.MissionRunRepository        { return memRuns{m} }
func (m *Memory) Definitions() core.MissionDefinitionRepository { return memDefinitions{m} }
func (m *Memory) Areas() core.AreaRepository                    { return memAreas{m} }
func (m *Memory) Ping(context.Context) error                    { return nil }
func (m *Memory) Close() error                                  { return nil }

func encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return b, nil
}

func decode[T any](b []byte) (*T, error) {
	v := new(T)
	if err := json.Unmarshal(b, v); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return v, nil
}

func decodeAll[T any](rows map[string][]byte, keep func(*T) bool) ([]*T, error) {
	out := make([]*T, 0, len(rows))
	for _, b := range rows {
		v, err := decode[T](b)
		if err != nil {
			return nil, err
		}
		if keep(v) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *Memory) put(rows map[string][]byte, kind, id string, v any, create bool) error {
	if id == "" {
		return fmt.Errorf("%s id must not be empty", kind)
	}
	_, exists := rows[id]
	if create && exists {
		return fmt.Errorf("%s %q: %w", kind, id, ErrAlreadyExists)
	}
	if !create && !exists {
		return core.NewNotFound(kind, id)
	}
	b, err := encode(v)
	if err != nil {
		return err
	}
	rows[id] = b
	return nil
}

// modifyDoc decodes the stored document, applies mutate and stores the
// result. Caller holds the write lock.
func modifyDoc[T any](m *Memory, rows map[string][]byte, kind, id string, mutate func(*T) error, check func(*T) error) (*T, error) {
	b, err := m.get(rows, kind, id)
	if err != nil {
		return nil, err
	}
	v, err := decode[T](b)
	if err != nil {
		return nil, err
	}
	if err := mutate(v); err != nil {
		if errors.Is(err, core.ErrUnchanged) {
			return v, nil
		}
		return nil, err
	}
	if check != nil {
		if err := check(v); err != nil {
			return nil, err
		}
	}
	if err := m.put(rows, kind, id, v, false); err != nil {
		return nil, err
	}
	return v, nil
}

func (m *Memory) get(rows map[string][]byte, kind, id string) ([]byte, error) {
	b, ok := rows[id]
	if !ok {
		return nil, core.NewNotFound(kind, id)
	}
	return b, nil
}

func (m *Memory) delete(rows map[string][]byte, kind, id string) error {
	if _, ok := rows[id]; !ok {
		return core.NewNotFound(kind, id)
	}
	delete(rows, id)
	return nil
}

type memRobots struct{ m *Memory }

func (r memRobots) Create(_ context.Context, robot *model.Robot) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.checkUnique(robot); err != nil {
		return err
	}
	return r.m.put(r.m.robots, "robot", robot.ID, robot, true)
}

func (r memRobots) Update(_ context.Context, robot *model.Robot) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.checkUnique(robot); err != nil {
		return err
	}
	return r.m.put(r.m.robots, "robot", robot.ID, robot, false)
}

func (r memRobots) Modify(_ context.Context, id string, mutate func(*model.Robot) error) (*model.Robot, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return modifyDoc(r.m, r.m.robots, "robot", id, mutate, r.checkUnique)
}

// checkUnique enforces unique executor ids and names. Caller holds the lock.
func (r memRobots) checkUnique(robot *model.Robot) error {
	for id, b := range r.m.robots {
		if id == robot.ID {
			continue
		}
		other, err := decode[model.Robot](b)
		if err != nil {
			return err
		}
		if (robot.ExecutorID != "" && other.ExecutorID == robot.ExecutorID) || other.Name == robot.Name {
			return fmt.Errorf("robot %q: executor id or name taken by %q: %w", robot.ID, id, ErrAlreadyExists)
		}
	}
	return nil
}

func (r memRobots) Get(_ context.Context, id string) (*model.Robot, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	b, err := r.m.get(r.m.robots, "robot", id)
	if err != nil {
		return nil, err
	}
	return decode[model.Robot](b)
}

func (r memRobots) findOne(kind, key string, match func(*model.Robot) bool) (*model.Robot, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	found, err := decodeAll(r.m.robots, match)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, core.NewNotFound(kind, key)
	}
	return found[0], nil
}

func (r memRobots) GetByExecutorID(_ context.Context, executorID string) (*model.Robot, error) {
	return r.findOne("robot with executor id", executorID, func(rb *model.Robot) bool { return rb.ExecutorID == executorID })
}

func (r memRobots) GetByName(_ context.Context, name string) (*model.Robot, error) {
	return r.findOne("robot with name", name, func(rb *model.Robot) bool { return rb.Name == name })
}

func (r memRobots) List(_ context.Context, filter core.RobotFilter) ([]*model.Robot, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	robots, err := decodeAll(r.m.robots, func(rb *model.Robot) bool { return matchRobot(filter, rb) })
	if err != nil {
		return nil, err
	}
	sort.Slice(robots, func(i, j int) bool { return robots[i].Name < robots[j].Name })
	return robots, nil
}

func (r memRobots) Delete(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.m.delete(r.m.robots, "robot", id)
}

type memRuns struct{ m *Memory }

func (r memRuns) Create(_ context.Context, run *model.MissionRun) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.m.put(r.m.runs, "mission run", run.ID, run, true)
}

func (r memRuns) Update(_ context.Context, run *model.MissionRun) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.m.put(r.m.runs, "mission run", run.ID, run, false)
}

func (r memRuns) Modify(_ context.Context, id string, mutate func(*model.MissionRun) error) (*model.MissionRun, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return modifyDoc(r.m, r.m.runs, "mission run", id, mutate, nil)
}

func (r memRuns) Get(_ context.Context, id string) (*model.MissionRun, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	b, err := r.m.get(r.m.runs, "mission run", id)
	if err != nil {
		return nil, err
	}
	return decode[model.MissionRun](b)
}

func (r memRuns) GetByExecutorMissionID(_ context.Context, executorMissionID string) (*model.MissionRun, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	runs, err := decodeAll(r.m.runs, func(run *model.MissionRun) bool {
		return executorMissionID != "" && run.ExecutorMissionID == executorMissionID
	})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, core.NewNotFound("mission run with executor id", executorMissionID)
	}
	return runs[0], nil
}

func (r memRuns) List(_ context.Context, filter core.MissionRunFilter) ([]*model.MissionRun, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	runs, err := decodeAll(r.m.runs, func(run *model.MissionRun) bool { return matchRun(filter, run) })
	if err != nil {
		return nil, err
	}
	sortRuns(runs)
	return runs, nil
}

func (r memRuns) Delete(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.m.delete(r.m.runs, "mission run", id)
}

func (r memRuns) FindingsSince(_ context.Context, since time.Time) ([]core.Finding, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	runs, err := decodeAll(r.m.runs, (*model.MissionRun).HasFindings)
	if err != nil {
		return nil, err
	}
	var findings []core.Finding
	for _, run := range runs {
		findings = append(findings, findingsOf(run, since)...)
	}
	sortFindings(findings)
	return findings, nil
}

type memDefinitions struct{ m *Memory }

func (r memDefinitions) Create(_ context.Context, def *model.MissionDefinition) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.m.put(r.m.defs, "mission definition", def.ID, def, true)
}

func (r memDefinitions) Update(_ context.Context, def *model.MissionDefinition) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.m.put(r.m.defs, "mission definition", def.ID, def, false)
}

func (r memDefinitions) Get(_ context.Context, id string) (*model.MissionDefinition, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	b, err := r.m.get(r.m.defs, "mission definition", id)
	if err != nil {
		return nil, err
	}
	return decode[model.MissionDefinition](b)
}

func (r memDefinitions) List(_ context.Context, filter core.DefinitionFilter) ([]*model.MissionDefinition, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	defs, err := decodeAll(r.m.defs, func(d *model.MissionDefinition) bool { return matchDefinition(filter, d) })
	if err != nil {
		return nil, err
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	return defs, nil
}

func (r memDefinitions) Delete(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.m.delete(r.m.defs, "mission definition", id)
}

type memAreas struct{ m *Memory }

func (r memAreas) Create(_ context.Context, area *model.Area) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.m.put(r.m.areas, "area", area.ID, area, true)
}

func (r memAreas) Update(_ context.Context, area *model.Area) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.m.put(r.m.areas, "area", area.ID, area, false)
}

func (r memAreas) Get(_ context.Context, id string) (*model.Area, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	b, err := r.m.get(r.m.areas, "area", id)
	if err != nil {
		return nil, err
	}
	return decode[model.Area](b)
}

func (r memAreas) List(_ context.Context) ([]*model.Area, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	areas, err := decodeAll(r.m.areas, func(*model.Area) bool { return true })
	if err != nil {
		return nil, err
	}
	sort.Slice(areas, func(i, j int) bool { return areas[i].ID < areas[j].ID })
	return areas, nil
}

func (r memAreas) Delete(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.m.delete(r.m.areas, "area", id)
}
