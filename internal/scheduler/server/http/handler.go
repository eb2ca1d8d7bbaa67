package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/autopeer-io/robofleet/internal/scheduler/core"
	"github.com/autopeer-io/robofleet/internal/scheduler/core/model"
	"github.com/autopeer-io/robofleet/pkg/log"
)

const maxFindingBytes = 64 << 10

type handler struct {
	ops     Operator
	skipper Skipper
	checks  []ReadyCheck
	logger  log.Logger
}

type errorResponse struct {
	Error string `json:"error"`
}

type findingRequest struct {
	Finding string `json:"finding"`
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *handler) readyz(w http.ResponseWriter, r *http.Request) {
	for _, check := range h.checks {
		if err := check(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *handler) stop(w http.ResponseWriter, r *http.Request) {
	h.robotAction(w, r, h.ops.StopCurrentMission)
}

func (h *handler) freeze(w http.ResponseWriter, r *http.Request) {
	h.robotAction(w, r, h.ops.FreezeMissionQueue)
}

func (h *handler) unfreeze(w http.ResponseWriter, r *http.Request) {
	h.robotAction(w, r, h.ops.UnfreezeMissionQueue)
}

func (h *handler) robotAction(w http.ResponseWriter, r *http.Request, action func(context.Context, string) error) {
	if err := action(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) safePosition(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	run, err := h.ops.ScheduleReturnToSafePosition(r.Context(), vars["id"], vars["area"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	if run == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "robot or area not found"})
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

func (h *handler) launch(w http.ResponseWriter, r *http.Request) {
	if err := h.ops.Launch(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *handler) addFinding(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req findingRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxFindingBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Finding) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "finding must not be empty"})
		return
	}

	run, err := h.ops.AddInspectionFinding(r.Context(), vars["id"], vars["task"], vars["inspection"], req.Finding)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *handler) skip(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	tod, err := model.ParseTimeOfDay(vars["time"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if err := h.skipper.Skip(r.Context(), vars["id"], tod); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) writeError(w http.ResponseWriter, err error) {
	var (
		safeZone    *core.SafeZoneError
		operational *core.OperationalError
	)

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &safeZone):
		status = http.StatusConflict
	case errors.As(err, &operational):
		status = http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		h.logger.Error(err, "Operator request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
