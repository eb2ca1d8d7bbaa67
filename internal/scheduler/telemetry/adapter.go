package telemetry

import (
	"context"
	"encoding/json"

	"github.com/autopeer-io/robofleet/internal/scheduler/core"
	"github.com/autopeer-io/robofleet/internal/scheduler/core/model"
)

// HandlerFunc processes one raw telemetry payload.
type HandlerFunc func(ctx context.Context, payload []byte) error

// TypedHandlerFunc processes one decoded telemetry message.
type TypedHandlerFunc[T any, P interface {
	*T
	model.TelemetryMessage
}] func(ctx context.Context, msg P) error

// Typed decodes JSON payloads into T before calling handler. Undecodable
// payloads yield a *core.MalformedTelemetryError.
func Typed[T any, P interface {
	*T
	model.TelemetryMessage
}](handler TypedHandlerFunc[T, P]) HandlerFunc {
	return func(ctx context.Context, payload []byte) error {
		var msg P = new(T)
		if err := json.Unmarshal(payload, msg); err != nil {
			return &core.MalformedTelemetryError{Kind: string(msg.Kind()), Err: err}
		}
		return handler(ctx, msg)
	}
}

// Handlers is implemented by the core service.
type Handlers interface {
	HandleRobotStatus(ctx context.Context, msg *model.RobotStatusMessage) error
	HandleRobotInfo(ctx context.Context, msg *model.RobotInfoMessage) error
	HandleMission(ctx context.Context, msg *model.MissionMessage) error
	HandleTask(ctx context.Context, msg *model.TaskMessage) error
	HandleStep(ctx context.Context, msg *model.StepMessage) error
	HandleBattery(ctx context.Context, msg *model.BatteryMessage) error
	HandlePose(ctx context.Context, msg *model.PoseMessage) error
}

// RegisterHandlers routes every telemetry kind to h.
func RegisterHandlers(d *Dispatcher, h Handlers) {
	d.Register(model.KindRobotStatus, Typed(h.HandleRobotStatus))
	d.Register(model.KindRobotInfo, Typed(h.HandleRobotInfo))
	d.Register(model.KindMission, Typed(h.HandleMission))
	d.Register(model.KindTask, Typed(h.HandleTask))
	d.Register(model.KindStep, Typed(h.HandleStep))
	d.Register(model.KindBattery, Typed(h.HandleBattery))
	d.Register(model.KindPose, Typed(h.HandlePose))
}
