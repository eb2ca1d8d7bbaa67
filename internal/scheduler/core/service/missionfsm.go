package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/looplab/fsm"

	"github.com/autopeer-io/robofleet/internal/scheduler/core/model"
)

const (
	// EventStart moves a queued run onto the robot.
	EventStart = "event_start"
	// EventFail ends a run that could not start or lost its executor.
	EventFail = "event_fail"
	// EventCancel ends a run interrupted by an operator stop.
	EventCancel = "event_cancel"
	// EventHeal resumes a run after the executor reports renewed progress.
	EventHeal = "event_heal"
)

var (
	active = []string{
		string(model.MissionStatusPending),
		string(model.MissionStatusOngoing),
		string(model.MissionStatusPaused),
	}
	notOngoing = []string{
		string(model.MissionStatusPending),
		string(model.MissionStatusPaused),
		string(model.MissionStatusAborted),
		string(model.MissionStatusCancelled),
		string(model.MissionStatusFailed),
		string(model.MissionStatusSuccessful),
		string(model.MissionStatusPartiallySuccessful),
	}
)

// missionMachine drives MissionRun.Status. The run is passed as the first
// event argument and is mutated by the enter callbacks.
type missionMachine struct {
	*fsm.FSM
	now func() time.Time
}

func newMissionMachine(run *model.MissionRun, now func() time.Time) *missionMachine {
	m := &missionMachine{now: now}

	events := fsm.Events{
		{Name: EventStart, Src: []string{string(model.MissionStatusPending)}, Dst: string(model.MissionStatusOngoing)},
		{Name: EventFail, Src: active, Dst: string(model.MissionStatusFailed)},
		{Name: EventCancel, Src: active, Dst: string(model.MissionStatusCancelled)},
		{Name: EventHeal, Src: notOngoing, Dst: string(model.MissionStatusOngoing)},
	}

	callbacks := fsm.Callbacks{
		"enter_" + string(model.MissionStatusOngoing):   withError(m.actionEnterOngoing),
		"enter_" + string(model.MissionStatusFailed):    withError(m.actionEnterTerminal),
		"enter_" + string(model.MissionStatusCancelled): withError(m.actionEnterTerminal),
	}

	m.FSM = fsm.NewFSM(string(run.Status), events, callbacks)
	return m
}

// withError stores the callback's error on the event, so FSM.Event returns it.
func withError(fn func(ctx context.Context, e *fsm.Event) error) fsm.Callback {
	return func(ctx context.Context, e *fsm.Event) {
		if err := fn(ctx, e); err != nil {
			e.Err = err
		}
	}
}

func (m *missionMachine) actionEnterOngoing(_ context.Context, e *fsm.Event) error {
	run := e.Args[0].(*model.MissionRun)
	run.Status = model.MissionStatusOngoing

	switch e.Event {
	case EventStart:
		run.StartTime = model.Ptr(m.now())
		run.StatusReason = ""
	case EventHeal:
		run.EndTime = nil
		run.StatusReason = ""
	}
	return nil
}

func (m *missionMachine) actionEnterTerminal(_ context.Context, e *fsm.Event) error {
	run := e.Args[0].(*model.MissionRun)
	run.Status = model.MissionStatus(e.Dst)
	run.EndTime = model.Ptr(m.now())
	if len(e.Args) > 1 {
		if reason, ok := e.Args[1].(string); ok {
			run.StatusReason = reason
		}
	}
	return nil
}

// transition fires event on run. reason is recorded on terminal states.
func (s *Service) transition(ctx context.Context, run *model.MissionRun, event string, reason string) error {
	m := newMissionMachine(run, s.clock.Now)
	if err := m.Event(ctx, event, run, reason); err != nil && isFsmRealError(err) {
		return fmt.Errorf("mission run %s: %s from %s: %w", run.ID, event, run.Status, err)
	}
	return nil
}

func isFsmRealError(err error) bool {
	if err == nil {
		return false
	}

	var noTransition fsm.NoTransitionError
	var canceled fsm.CanceledError

	return !errors.As(err, &noTransition) && !errors.As(err, &canceled)
}
