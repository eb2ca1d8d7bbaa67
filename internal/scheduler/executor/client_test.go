package executor

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/autopeer-io/robofleet/internal/scheduler/core"
	"github.com/autopeer-io/robofleet/internal/scheduler/core/model"
	"github.com/autopeer-io/robofleet/pkg/options"
)

type fakeGateway struct {
	startResp *structpb.Struct
	err       error
	lastStart map[string]any
	lastStop  map[string]any
}

func (g *fakeGateway) StartMission(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	g.lastStart = req.AsMap()
	if g.err != nil {
		return nil, g.err
	}
	return g.startResp, nil
}

func (g *fakeGateway) StopMission(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	g.lastStop = req.AsMap()
	if g.err != nil {
		return nil, g.err
	}
	return &structpb.Struct{}, nil
}

func newTestClient(t *testing.T, gw GatewayServer) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterGatewayServer(srv, gw)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	opts := options.NewGrpcOptions()
	opts.Addr = "passthrough:///bufnet"
	opts.Timeout = 2 * time.Second
	c, err := NewClient(opts, grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = c.conn.Close() })
	return c
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	return s
}

func testRun() (*model.Robot, *model.MissionRun) {
	robot := &model.Robot{ID: "robot-1", ExecutorID: "isar-1", Name: "anymal"}
	run := &model.MissionRun{
		ID:   "run-1",
		Name: "Gauge round",
		Tasks: []model.MissionTask{{
			ID:          "t1",
			TaskOrder:   0,
			TagID:       "20-PT-001",
			RobotPose:   model.Pose{Position: model.Position{X: 1, Y: 2}, Orientation: model.Orientation{W: 1}, Frame: "asset"},
			Inspections: []model.Inspection{{ID: "i1", Type: "Image"}},
		}},
	}
	return robot, run
}

func TestStartMission(t *testing.T) {
	gw := &fakeGateway{}
	gw.startResp = mustStruct(t, map[string]any{
		"mission_id": "m-1",
		"tasks": []any{
			map[string]any{"task_id": "t1", "executor_task_id": "x1", "steps": map[string]any{"i1": "s1"}},
		},
	})
	c := newTestClient(t, gw)
	robot, run := testRun()

	started, err := c.StartMission(context.Background(), robot, run)
	if err != nil {
		t.Fatalf("StartMission: %v", err)
	}
	if started.ExecutorMissionID != "m-1" || len(started.Tasks) != 1 {
		t.Fatalf("started = %+v", started)
	}
	if task := started.Tasks[0]; task.TaskID != "t1" || task.ExecutorTaskID != "x1" || task.Steps["i1"] != "s1" {
		t.Errorf("started task = %+v", task)
	}

	if gw.lastStart["executor_id"] != "isar-1" {
		t.Errorf("request executor_id = %v", gw.lastStart["executor_id"])
	}
	mission := gw.lastStart["mission"].(map[string]any)
	tasks := mission["tasks"].([]any)
	if tag := tasks[0].(map[string]any)["tag_id"]; tag != "20-PT-001" {
		t.Errorf("request tag_id = %v", tag)
	}
}

func TestStartMissionMalformedResponse(t *testing.T) {
	tests := []struct {
		name string
		resp map[string]any
	}{
		{"no mission id", map[string]any{"tasks": []any{}}},
		{"task without ids", map[string]any{"mission_id": "m-1", "tasks": []any{map[string]any{"task_id": "t1"}}}},
		{"task not an object", map[string]any{"mission_id": "m-1", "tasks": []any{"t1"}}},
		{"step not a string", map[string]any{"mission_id": "m-1", "tasks": []any{
			map[string]any{"task_id": "t1", "executor_task_id": "x1", "steps": map[string]any{"i1": 3.0}},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, &fakeGateway{startResp: mustStruct(t, tt.resp)})
			robot, run := testRun()

			if _, err := c.StartMission(context.Background(), robot, run); !errors.Is(err, core.ErrMalformedResponse) {
				t.Errorf("StartMission = %v, want ErrMalformedResponse", err)
			}
		})
	}
}

func TestStopMissionErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"success", nil, nil},
		{"no active mission", status.Error(codes.NotFound, "no mission running"), core.ErrNoActiveMission},
		{"conflict", status.Error(codes.FailedPrecondition, "idle"), core.ErrNoActiveMission},
		{"unreachable", status.Error(codes.Unavailable, "robot offline"), core.ErrExecutorUnreachable},
		{"timeout", status.Error(codes.DeadlineExceeded, "slow"), core.ErrExecutorUnreachable},
		{"data loss", status.Error(codes.DataLoss, "garbled"), core.ErrMalformedResponse},
		{"cancelled by gateway", status.Error(codes.Canceled, "gone"), context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{err: tt.err}
			c := newTestClient(t, gw)
			robot, _ := testRun()

			err := c.StopMission(context.Background(), robot)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("StopMission: %v", err)
				}
				if gw.lastStop["robot_name"] != "anymal" {
					t.Errorf("request robot_name = %v", gw.lastStop["robot_name"])
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("StopMission = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStopMissionOtherErrorIsNotASentinel(t *testing.T) {
	c := newTestClient(t, &fakeGateway{err: status.Error(codes.PermissionDenied, "nope")})
	robot, _ := testRun()

	err := c.StopMission(context.Background(), robot)
	if err == nil {
		t.Fatal("StopMission succeeded")
	}
	for _, sentinel := range []error{core.ErrNoActiveMission, core.ErrExecutorUnreachable, core.ErrMalformedResponse} {
		if errors.Is(err, sentinel) {
			t.Errorf("StopMission = %v, unexpectedly matches %v", err, sentinel)
		}
	}
}

type stallingGateway struct {
	fakeGateway
	entered chan struct{}
}

func (g *stallingGateway) StopMission(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	close(g.entered)
	<-ctx.Done()
	return nil, status.FromContextError(ctx.Err()).Err()
}

func TestStopMissionCallerCancelled(t *testing.T) {
	gw := &stallingGateway{entered: make(chan struct{})}
	c := newTestClient(t, gw)
	robot, _ := testRun()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-gw.entered
		cancel()
	}()

	err := c.StopMission(ctx, robot)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("StopMission = %v, want context.Canceled", err)
	}
	if errors.Is(err, core.ErrExecutorUnreachable) {
		t.Errorf("a cancelled caller was reported as an unreachable executor")
	}
}
