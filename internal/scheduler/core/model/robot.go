package model

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// RobotStatus is the availability of a robot as reported by its executor.
type RobotStatus string

const (
	RobotStatusAvailable             RobotStatus = "Available"
	RobotStatusBusy                  RobotStatus = "Busy"
	RobotStatusOffline               RobotStatus = "Offline"
	RobotStatusStuck                 RobotStatus = "Stuck"
	RobotStatusBlockedProtectiveStop RobotStatus = "BlockedProtectiveStop"
)

var robotStatuses = map[string]RobotStatus{
	"available":               RobotStatusAvailable,
	"busy":                    RobotStatusBusy,
	"offline":                 RobotStatusOffline,
	"stuck":                   RobotStatusStuck,
	"blockedprotectivestop":   RobotStatusBlockedProtectiveStop,
	"blocked_protective_stop": RobotStatusBlockedProtectiveStop,
}

// ParseRobotStatus parses an executor robot status, ignoring case.
func ParseRobotStatus(s string) (RobotStatus, error) {
	if st, ok := robotStatuses[strings.ToLower(strings.TrimSpace(s))]; ok {
		return st, nil
	}
	return "", fmt.Errorf("unknown robot status %q", s)
}

// VideoStream describes a camera feed offered by a robot.
type VideoStream struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
}

// Robot is a fleet member driven by an executor instance.
type Robot struct {
	ID string `json:"id"`

	// ExecutorID is the id assigned by the executor instance driving the robot.
	ExecutorID   string        `json:"executorId"`
	Name         string        `json:"name"`
	Model        string        `json:"model"`
	SerialNumber string        `json:"serialNumber"`
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	VideoStreams []VideoStream `json:"videoStreams"`

	Status             RobotStatus `json:"status"`
	Enabled            bool        `json:"enabled"`
	MissionQueueFrozen bool        `json:"missionQueueFrozen"`

	// CurrentMissionID references the run the robot is executing, if any.
	CurrentMissionID *string `json:"currentMissionId,omitempty"`

	// CurrentAreaID is the inspection area the robot is deployed to, if any.
	CurrentAreaID *string `json:"currentAreaId,omitempty"`

	BatteryLevel float64   `json:"batteryLevel"`
	Pose         Pose      `json:"pose"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// HasCurrentMission reports whether the robot references a current mission.
func (r *Robot) HasCurrentMission() bool {
	return r.CurrentMissionID != nil && *r.CurrentMissionID != ""
}

// InArea reports whether the robot is deployed to areaID.
func (r *Robot) InArea(areaID string) bool {
	return r.CurrentAreaID != nil && *r.CurrentAreaID == areaID
}

// SameVideoStreams reports whether a and b contain the same streams, ignoring order.
func SameVideoStreams(a, b []VideoStream) bool {
	if len(a) != len(b) {
		return false
	}
	for _, s := range a {
		if !slices.Contains(b, s) {
			return false
		}
	}
	for _, s := range b {
		if !slices.Contains(a, s) {
			return false
		}
	}
	return true
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
