// Package httpx provides the JSON admin API of the job scheduler.
package httpx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/target/hrm-scheduler/internal/domain/catalog"
	"github.com/target/hrm-scheduler/internal/domain/model"
	apperrors "github.com/target/hrm-scheduler/internal/errors"
	"github.com/target/hrm-scheduler/internal/service"
)

// TriggerRunner runs the trigger pipeline. Implemented by *service.TriggerService.
type TriggerRunner interface {
	Trigger(ctx context.Context, req service.TriggerRequest) (*service.TriggerResponse, error)
	Running() []service.HeldKey
}

// JobHandlers provides HTTP handlers for the job catalog and manual triggers.
type JobHandlers struct {
	Catalog *catalog.Catalog
	Runner  TriggerRunner
	Logger  *slog.Logger
}

type jobListResponse struct {
	Jobs    []catalog.Definition `json:"jobs"`
	Running []service.HeldKey    `json:"running"`
}

// List returns the job catalog and the guard keys currently executing with their start times.
func (h *JobHandlers) List(w http.ResponseWriter, _ *http.Request) {
	running := h.Runner.Running()
	if running == nil {
		running = []service.HeldKey{}
	}
	WriteJSON(w, http.StatusOK, jobListResponse{Jobs: h.Catalog.List(), Running: running})
}

// Trigger runs one job or group on behalf of the authenticated caller.
func (h *JobHandlers) Trigger(w http.ResponseWriter, r *http.Request) {
	var req service.TriggerRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	req.CreatedBy = ActorID(r.Context())
	req.TriggeredBy = model.TriggeredByManual

	resp, err := h.Runner.Trigger(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, triggerStatus(resp), resp)
}

// triggerStatus maps a pipeline outcome to an HTTP status. Handler failures keep 200 and
// report success=false in the body.
func triggerStatus(resp *service.TriggerResponse) int {
	if resp.Success {
		return http.StatusOK
	}
	switch apperrors.ErrorCode(resp.ErrorCode) {
	case apperrors.ErrCodeJobInProgress, apperrors.ErrCodeAlreadyProcessed:
		return http.StatusConflict
	case apperrors.ErrCodeDependencyNotMet:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusOK
	}
}
