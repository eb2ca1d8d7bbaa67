package model

import "time"

// TelemetryKind identifies the type of an executor telemetry message.
type TelemetryKind string

const (
	KindRobotStatus TelemetryKind = "robot_status"
	KindRobotInfo   TelemetryKind = "robot_info"
	KindMission     TelemetryKind = "mission"
	KindTask        TelemetryKind = "task"
	KindStep        TelemetryKind = "step"
	KindBattery     TelemetryKind = "battery"
	KindPose        TelemetryKind = "pose"
)

// TelemetryMessage is implemented by every executor telemetry message.
type TelemetryMessage interface {
	Kind() TelemetryKind
}

// Header carries the fields common to all executor messages.
type Header struct {
	ExecutorID string    `json:"isar_id"`
	RobotName  string    `json:"robot_name"`
	Timestamp  time.Time `json:"timestamp"`
}

type RobotStatusMessage struct {
	Header
	Status string `json:"robot_status"`
}

type RobotInfoMessage struct {
	Header
	Model        string        `json:"robot_model"`
	SerialNumber string        `json:"robot_serial_number"`
	VideoStreams []VideoStream `json:"video_streams"`
	Host         string        `json:"host"`
	Port         int           `json:"port"`
}

type MissionMessage struct {
	Header
	MissionID string `json:"mission_id"`
	Status    string `json:"status"`
}

type TaskMessage struct {
	Header
	MissionID string `json:"mission_id"`
	TaskID    string `json:"task_id"`
	Status    string `json:"status"`
}

type StepMessage struct {
	Header
	MissionID string `json:"mission_id"`
	TaskID    string `json:"task_id"`
	StepID    string `json:"step_id"`
	StepType  string `json:"step_type"`
	Status    string `json:"status"`
}

type BatteryMessage struct {
	Header
	BatteryLevel float64 `json:"battery_level"`
}

type PoseMessage struct {
	Header
	Pose Pose `json:"pose"`
}

func (RobotStatusMessage) Kind() TelemetryKind { return KindRobotStatus }
func (RobotInfoMessage) Kind() TelemetryKind   { return KindRobotInfo }
func (MissionMessage) Kind() TelemetryKind     { return KindMission }
func (TaskMessage) Kind() TelemetryKind        { return KindTask }
func (StepMessage) Kind() TelemetryKind        { return KindStep }
func (BatteryMessage) Kind() TelemetryKind     { return KindBattery }
func (PoseMessage) Kind() TelemetryKind        { return KindPose }
