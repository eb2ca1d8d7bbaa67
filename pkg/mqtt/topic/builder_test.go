package topic

import "testing"

func TestBuilder(t *testing.T) {
	b := NewBuilder("isar/")

	if got, want := b.Robot(Mission, "robot-1"), "isar/robot-1/mission"; got != want {
		t.Errorf("Robot() = %q, want %q", got, want)
	}
	if got, want := b.Wildcard(Pose), "isar/+/pose"; got != want {
		t.Errorf("Wildcard() = %q, want %q", got, want)
	}
	if got, want := b.Shared("robofleet").Wildcard(RobotInfo), "$share/robofleet/isar/+/robot_info"; got != want {
		t.Errorf("Shared().Wildcard() = %q, want %q", got, want)
	}
	if got, want := NewBuilder("robofleet").Notification(Failure, "scheduler"), "robofleet/notifications/failure/scheduler"; got != want {
		t.Errorf("Notification() = %q, want %q", got, want)
	}
}

func TestBuilderParse(t *testing.T) {
	b := NewBuilder("isar")

	tests := []struct {
		topic   string
		name    string
		ok      bool
		segment string
	}{
		{"isar/robot-1/mission", "robot-1", true, "mission"},
		{"isar/robot-1/robot_info", "robot-1", true, "robot_info"},
		{"other/robot-1/mission", "", false, "mission"},
		{"isar//mission", "", false, "mission"},
	}

	for _, tt := range tests {
		name, ok := b.RobotName(tt.topic)
		if name != tt.name || ok != tt.ok {
			t.Errorf("RobotName(%q) = (%q, %v), want (%q, %v)", tt.topic, name, ok, tt.name, tt.ok)
		}
		if got := b.Segment(tt.topic); got != tt.segment {
			t.Errorf("Segment(%q) = %q, want %q", tt.topic, got, tt.segment)
		}
	}
}
