package topic

import (
	"fmt"
	"strings"
)

// Builder constructs MQTT topic strings below a root namespace.
type Builder struct {
	root  string
	share string
}

// NewBuilder creates a Builder for the given root namespace (e.g. "isar").
func NewBuilder(root string) *Builder {
	return &Builder{root: strings.TrimSuffix(root, "/")}
}

// Shared returns a copy of the builder whose filters use the MQTT v5 shared
// subscription prefix $share/{group}/, so replicas split the load.
func (b *Builder) Shared(group string) *Builder {
	return &Builder{root: b.root, share: group}
}

// Robot returns the topic a robot's executor publishes segment on.
func (b *Builder) Robot(segment, robotName string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, robotName, segment)
}

// Wildcard returns the subscription filter for segment across all robots.
// Result: [$share/{group}/]{root}/+/{segment}
func (b *Builder) Wildcard(segment string) string {
	return b.prefix() + fmt.Sprintf("%s/%s/%s", b.root, Wildcard, segment)
}

// Notification returns the topic robofleet publishes a notification on.
func (b *Builder) Notification(segment, scope string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, segment, scope)
}

// RobotName extracts the robot segment from a telemetry topic.
func (b *Builder) RobotName(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, b.root+"/")
	if !ok {
		return "", false
	}
	name, _, ok := strings.Cut(rest, "/")
	return name, ok && name != ""
}

// Segment extracts the trailing segment from a telemetry topic.
func (b *Builder) Segment(topic string) string {
	if i := strings.LastIndex(topic, "/"); i >= 0 {
		return topic[i+1:]
	}
	return topic
}

func (b *Builder) prefix() string {
	if b.share == "" {
		return ""
	}
	return fmt.Sprintf("$share/%s/", b.share)
}
