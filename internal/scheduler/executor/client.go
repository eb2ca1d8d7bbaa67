// Package executor talks to the robot executor gateway over gRPC.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/autopeer-io/robofleet/internal/pkg/metrics"
	grpcmiddleware "github.com/autopeer-io/robofleet/internal/pkg/middleware/grpc"
	"github.com/autopeer-io/robofleet/internal/scheduler/core"
	"github.com/autopeer-io/robofleet/internal/scheduler/core/model"
	"github.com/autopeer-io/robofleet/pkg/log"
	"github.com/autopeer-io/robofleet/pkg/options"
)

// Client implements core.Executor against the executor gateway. Every call
// is attempted once.
type Client struct {
	conn   *grpc.ClientConn
	logger log.Logger
}

var _ core.Executor = (*Client)(nil)

// NewClient creates a client for the configured gateway. The connection is
// established lazily on the first call.
func NewClient(opts *options.GrpcOptions, dialOpts ...grpc.DialOption) (*Client, error) {
	creds := insecure.NewCredentials()
	if !opts.Insecure {
		creds = credentials.NewTLS(nil)
	}

	dialOpts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithUnaryInterceptor(grpcmiddleware.UnaryTimeoutInterceptor(opts.Timeout)),
	}, dialOpts...)

	conn, err := grpc.NewClient(opts.Addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize executor client for %q: %w", opts.Addr, err)
	}

	return &Client{conn: conn, logger: log.WithName("executor")}, nil
}

// StartMission asks the executor driving robot to run the mission.
//
// Request fields: executor_id, robot_name, mission {run_id, name, tasks
// [{task_id, order, tag_id, description, pose, inspections [{inspection_id,
// type}]}]}. Response fields: mission_id, tasks [{task_id,
// executor_task_id, steps {inspection_id: step_id}}].
func (c *Client) StartMission(ctx context.Context, robot *model.Robot, run *model.MissionRun) (*core.StartedMission, error) {
	req, err := structpb.NewStruct(startRequest(robot, run))
	if err != nil {
		return nil, fmt.Errorf("failed to encode start request: %w", err)
	}

	resp := new(structpb.Struct)
	if err := c.invoke(ctx, "start", StartMissionMethod, req, resp); err != nil {
		return nil, err
	}

	started, err := decodeStarted(resp)
	if err != nil {
		metrics.ExecutorCallsTotal.WithLabelValues("start", "malformed").Inc()
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedResponse, err)
	}
	return started, nil
}

// StopMission asks the executor driving robot to stop its current mission.
//
// Request fields: executor_id, robot_name. The response carries no fields.
func (c *Client) StopMission(ctx context.Context, robot *model.Robot) error {
	req, err := structpb.NewStruct(map[string]any{
		"executor_id": robot.ExecutorID,
		"robot_name":  robot.Name,
	})
	if err != nil {
		return fmt.Errorf("failed to encode stop request: %w", err)
	}
	return c.invoke(ctx, "stop", StopMissionMethod, req, new(structpb.Struct))
}

func (c *Client) invoke(ctx context.Context, op, method string, req, resp *structpb.Struct) error {
	start := time.Now()
	err := c.conn.Invoke(ctx, method, req, resp)
	metrics.ExecutorCallLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err == nil {
		metrics.ExecutorCallsTotal.WithLabelValues(op, "success").Inc()
		return nil
	}

	// A caller that gave up says nothing about the executor.
	if ctxErr := ctx.Err(); ctxErr != nil {
		metrics.ExecutorCallsTotal.WithLabelValues(op, "canceled").Inc()
		c.logger.Debug("Executor call abandoned by caller", "op", op, "error", err)
		return ctxErr
	}

	mapped := mapError(err)
	switch {
	case errors.Is(mapped, core.ErrExecutorUnreachable):
		metrics.ExecutorCallsTotal.WithLabelValues(op, "unreachable").Inc()
	default:
		metrics.ExecutorCallsTotal.WithLabelValues(op, "failed").Inc()
	}
	c.logger.Debug("Executor call failed", "op", op, "error", err)
	return mapped
}

// mapError translates gRPC status codes into the executor sentinels.
func mapError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %v", core.ErrExecutorUnreachable, err)
	}

	switch st.Code() {
	case codes.NotFound, codes.FailedPrecondition:
		return fmt.Errorf("%w: %s", core.ErrNoActiveMission, st.Message())
	case codes.Canceled:
		return fmt.Errorf("%w: %s", context.Canceled, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", core.ErrExecutorUnreachable, st.Message())
	case codes.DataLoss:
		return fmt.Errorf("%w: %s", core.ErrMalformedResponse, st.Message())
	case codes.Internal:
		if strings.Contains(st.Message(), "unmarshal") {
			return fmt.Errorf("%w: %s", core.ErrMalformedResponse, st.Message())
		}
		return fmt.Errorf("executor error: %s", st.Message())
	default:
		return fmt.Errorf("executor returned %s: %s", st.Code(), st.Message())
	}
}

// Start reports the connection state on the connectivity gauge until ctx is
// cancelled and then closes the connection.
func (c *Client) Start(ctx context.Context) error {
	c.logger.Info("Executor client started", "target", c.conn.Target())

	go c.monitorConnection(ctx)

	<-ctx.Done()

	c.logger.Info("Executor client shutting down, closing gRPC connection")
	return c.conn.Close()
}

func (c *Client) monitorConnection(ctx context.Context) {
	lastState := c.conn.GetState()
	updateMetric(lastState)

	for {
		if !c.conn.WaitForStateChange(ctx, lastState) {
			return
		}

		newState := c.conn.GetState()
		c.logger.Info("Executor connection state changed", "from", lastState, "to", newState)

		updateMetric(newState)
		lastState = newState
	}
}

func updateMetric(state connectivity.State) {
	if state == connectivity.Ready {
		metrics.ExecutorConnectivityStatus.Set(1)
	} else {
		metrics.ExecutorConnectivityStatus.Set(0)
	}
}
