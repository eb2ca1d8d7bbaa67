package topic

// Standard MQTT wildcard definitions.
const (
	// Wildcard matches exactly one topic level.
	Wildcard = "+"

	// MultiWildcard matches the current level and all subsequent levels.
	MultiWildcard = "#"
)

// Telemetry segments published by the executor for each robot.
// Structure: {root}/{robotName}/{segment}
const (
	RobotStatus = "status"
	RobotInfo   = "robot_info"
	Mission     = "mission"
	Task        = "task"
	Step        = "step"
	Battery     = "battery"
	Pose        = "pose"
)

// Segments published by robofleet itself.
// Structure: {root}/{segment}/{scope}
const (
	// Failure carries scheduling and launch failures for operators.
	Failure = "notifications/failure"
)

// TelemetrySegments lists every per-robot telemetry segment.
var TelemetrySegments = []string{RobotStatus, RobotInfo, Mission, Task, Step, Battery, Pose}
