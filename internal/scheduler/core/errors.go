package core

import (
	"errors"
	"fmt"
)

// ErrNotFound is matched by every lookup miss.
var ErrNotFound = errors.New("not found")

// ErrUnchanged is returned by a Modify mutation to skip the write.
var ErrUnchanged = errors.New("unchanged")

// NotFoundError reports a missing robot, mission run, definition or area.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFound returns a NotFoundError for kind and id.
func NewNotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// OperationalError reports a failed or unreachable executor call.
type OperationalError struct {
	Op      string
	RobotID string
	RunID   string
	Err     error
}

func (e *OperationalError) Error() string {
	msg := fmt.Sprintf("%s failed for robot %q", e.Op, e.RobotID)
	if e.RunID != "" {
		msg += fmt.Sprintf(" (mission run %q)", e.RunID)
	}
	return msg + ": " + e.Err.Error()
}

func (e *OperationalError) Unwrap() error { return e.Err }

// SafeZoneError reports an area without any configured safe position.
type SafeZoneError struct {
	AreaID string
}

func (e *SafeZoneError) Error() string {
	return fmt.Sprintf("area %q has no safe positions", e.AreaID)
}

// MalformedTelemetryError reports an undecodable payload or status string.
type MalformedTelemetryError struct {
	Kind  string
	Value string
	Err   error
}

func (e *MalformedTelemetryError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("malformed %s telemetry: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("malformed %s telemetry %q: %v", e.Kind, e.Value, e.Err)
}

func (e *MalformedTelemetryError) Unwrap() error { return e.Err }

// SchedulingError reports an occurrence the auto-scheduler could not place or run.
type SchedulingError struct {
	DefinitionID string
	TimeOfDay    string
	Err          error
}

func (e *SchedulingError) Error() string {
	if e.TimeOfDay == "" {
		return fmt.Sprintf("scheduling mission definition %q: %v", e.DefinitionID, e.Err)
	}
	return fmt.Sprintf("scheduling mission definition %q at %s: %v", e.DefinitionID, e.TimeOfDay, e.Err)
}

func (e *SchedulingError) Unwrap() error { return e.Err }
