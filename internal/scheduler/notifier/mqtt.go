package notifier

import (
	"context"
	"encoding/json"

	"k8s.io/utils/clock"
)

// Publisher is the subset of the MQTT client the sink needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error
}

// MQTT publishes reports as JSON on a fixed topic.
type MQTT struct {
	client Publisher
	topic  string
	qos    int
	clock  clock.PassiveClock
}

var _ Sink = (*MQTT)(nil)

// NewMQTT creates an MQTT sink publishing on topic.
func NewMQTT(client Publisher, topic string, qos int) *MQTT {
	return &MQTT{client: client, topic: topic, qos: qos, clock: clock.RealClock{}}
}

func (m *MQTT) Name() string { return "mqtt" }

func (m *MQTT) ReportFailure(ctx context.Context, message string, fields map[string]string) error {
	payload, err := json.Marshal(Report{Message: message, Fields: fields, Timestamp: m.clock.Now().UTC()})
	if err != nil {
		return err
	}
	return m.client.Publish(ctx, m.topic, m.qos, false, payload)
}
