package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"

	applog "pcb-mes/internal/log"
	appTemporal "pcb-mes/internal/temporal"
)

type advanceRequest struct {
	ExpectedStage string `json:"expected_stage,omitempty"`
}

// transitionConflicts are the workflow failure types that mean "not allowed
// right now" rather than "something broke".
var transitionConflicts = map[string]bool{
	appTemporal.ErrTypeChecklistIncomplete: true,
	appTemporal.ErrTypeFinalStage:          true,
	appTemporal.ErrTypeStageMismatch:       true,
	appTemporal.ErrTypeCamIncomplete:       true,
	appTemporal.ErrTypeUnknownStage:        true,
}

// AdvanceWorkOrder runs the stage transition workflow and waits for it. If
// the configured wait runs out first the request is answered with 202 and the
// workflow keeps going.
func (h *Handler) AdvanceWorkOrder(w http.ResponseWriter, r *http.Request, workOrderID string) {
	var req advanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}

	lookupCtx, cancelLookup := context.WithTimeout(r.Context(), h.cfg.TransitionTimeout())
	_, err := h.store.GetWorkOrder(lookupCtx, workOrderID)
	cancelLookup()
	if err != nil {
		h.writeLoadError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.TransitionTimeout())
	defer cancel()

	workflowID := fmt.Sprintf("%s-%s-%s", h.cfg.AdvanceWorkflowPrefix, workOrderID, uuid.NewString())
	run, err := h.temporalClient.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: h.cfg.TemporalTaskQueue,
	}, appTemporal.StageTransitionWorkflowName, appTemporal.StageTransitionInput{
		WorkOrderID:   workOrderID,
		ExpectedStage: req.ExpectedStage,
		Actor:         actorFromContext(r.Context()),
	})
	if err != nil {
		applog.FromContext(r.Context(), "api").Error().Err(err).Str("work_order_id", workOrderID).Msg("start transition workflow")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to start transition"})
		return
	}

	var result appTemporal.StageTransitionResult
	if err := run.Get(ctx, &result); err != nil {
		var appErr *temporal.ApplicationError
		switch {
		case errors.As(err, &appErr) && transitionConflicts[appErr.Type()]:
			writeJSON(w, http.StatusConflict, map[string]any{"error": appErr.Error(), "reason": appErr.Type()})
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			writeJSON(w, http.StatusAccepted, map[string]any{"work_order_id": workOrderID, "workflow_id": workflowID, "status": "transition_pending"})
		default:
			applog.FromContext(r.Context(), "api").Error().Err(err).Str("workflow_id", workflowID).Msg("transition workflow failed")
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "transition failed"})
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"work_order_id": result.WorkOrderID,
		"from":          result.From,
		"to":            result.To,
		"workflow_id":   workflowID,
	})
}
