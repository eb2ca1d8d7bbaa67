package http

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autopeer-io/robofleet/internal/scheduler/core/model"
	"github.com/autopeer-io/robofleet/pkg/log"
	"github.com/autopeer-io/robofleet/pkg/options"
)

// Operator is the set of use cases exposed to operators.
type Operator interface {
	StopCurrentMission(ctx context.Context, robotID string) error
	FreezeMissionQueue(ctx context.Context, robotID string) error
	UnfreezeMissionQueue(ctx context.Context, robotID string) error
	ScheduleReturnToSafePosition(ctx context.Context, robotID, areaID string) (*model.MissionRun, error)
	Launch(ctx context.Context, runID string) error
	AddInspectionFinding(ctx context.Context, runID, taskID, inspectionID, finding string) (*model.MissionRun, error)
}

// Skipper cancels a single auto-scheduled occurrence.
type Skipper interface {
	Skip(ctx context.Context, definitionID string, timeOfDay model.TimeOfDay) error
}

// ReadyCheck reports whether a dependency can serve traffic.
type ReadyCheck func(ctx context.Context) error

type Server struct {
	server  *http.Server
	options *options.HttpOptions
	logger  log.Logger
}

func NewServer(opts *options.HttpOptions, ops Operator, skipper Skipper, checks ...ReadyCheck) *Server {
	logger := log.WithName("http-server")
	h := &handler{ops: ops, skipper: skipper, checks: checks, logger: logger}

	return &Server{
		server: &http.Server{
			Addr:         opts.Addr,
			Handler:      h.router(),
			ReadTimeout:  opts.Timeout,
			WriteTimeout: opts.Timeout,
		},
		options: opts,
		logger:  logger,
	}
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen(s.options.Network, s.server.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("Starting HTTP Server", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.options.ShutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

func (h *handler) router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.readyz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/robots/{id}/stop", h.stop).Methods(http.MethodPost)
	api.HandleFunc("/robots/{id}/freeze", h.freeze).Methods(http.MethodPost)
	api.HandleFunc("/robots/{id}/unfreeze", h.unfreeze).Methods(http.MethodPost)
	api.HandleFunc("/robots/{id}/safe-position", h.safePosition).Methods(http.MethodPost).Queries("area", "{area}")
	api.HandleFunc("/missions/{id}/launch", h.launch).Methods(http.MethodPost)
	api.HandleFunc("/missions/{id}/tasks/{task}/inspections/{inspection}/findings", h.addFinding).Methods(http.MethodPost)
	api.HandleFunc("/definitions/{id}/skip", h.skip).Methods(http.MethodPost).Queries("time", "{time}")

	return r
}
