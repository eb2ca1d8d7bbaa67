package mqtt

import (
	"context"
	"fmt"
	"time"

	"github.com/autopeer-io/robofleet/internal/scheduler/core/model"
	"github.com/autopeer-io/robofleet/internal/scheduler/telemetry"
	"github.com/autopeer-io/robofleet/pkg/log"
	pkgmqtt "github.com/autopeer-io/robofleet/pkg/mqtt"
	"github.com/autopeer-io/robofleet/pkg/mqtt/topic"
)

// segmentKinds maps executor topic segments to telemetry kinds.
var segmentKinds = map[string]model.TelemetryKind{
	topic.RobotStatus: model.KindRobotStatus,
	topic.RobotInfo:   model.KindRobotInfo,
	topic.Mission:     model.KindMission,
	topic.Task:        model.KindTask,
	topic.Step:        model.KindStep,
	topic.Battery:     model.KindBattery,
	topic.Pose:        model.KindPose,
}

// Submitter accepts raw telemetry for dispatch.
type Submitter interface {
	Submit(ctx context.Context, env telemetry.Envelope) error
}

// Server implements the MQTT telemetry ingress.
type Server struct {
	client     pkgmqtt.Client
	topics     *topic.Builder
	dispatcher Submitter
	qos        int
	logger     log.Logger
}

// NewServer creates the ingress. A builder with a shared group makes
// replicas split the telemetry load.
func NewServer(client pkgmqtt.Client, builder *topic.Builder, dispatcher Submitter, qos int) *Server {
	return &Server{
		client:     client,
		topics:     builder,
		dispatcher: dispatcher,
		qos:        qos,
		logger:     log.WithName("mqtt-server"),
	}
}

// Start connects to the broker, subscribes to every telemetry segment and
// blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := s.client.Start(ctx); err != nil {
		return err
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.client.Disconnect(shutdownCtx)
	}()

	s.logger.Info("Waiting for MQTT connection...")
	if err := s.client.AwaitConnection(ctx); err != nil {
		return err
	}

	if err := s.subscribe(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}

// Ready reports whether the broker connection is up.
func (s *Server) Ready() bool {
	return s.client.IsConnected()
}

func (s *Server) subscribe(ctx context.Context) error {
	for _, segment := range topic.TelemetrySegments {
		kind, ok := segmentKinds[segment]
		if !ok {
			continue
		}

		filter := s.topics.Wildcard(segment)
		if err := s.client.Subscribe(ctx, filter, s.qos, s.handler(kind)); err != nil {
			return fmt.Errorf("failed to subscribe to topic: %s, err: %w", filter, err)
		}
	}
	return nil
}

func (s *Server) handler(kind model.TelemetryKind) pkgmqtt.MessageHandler {
	return func(ctx context.Context, t string, payload []byte) {
		if err := s.dispatcher.Submit(ctx, telemetry.Envelope{Kind: kind, Payload: payload}); err != nil {
			s.logger.Warn("Dropping telemetry message", "topic", t, "error", err)
		}
	}
}
