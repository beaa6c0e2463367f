package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	applog "pcb-mes/internal/log"
	appTemporal "pcb-mes/internal/temporal"
)

// IntakeStarter starts one AttachmentIntakeWorkflow per uploaded attachment.
// The workflow id is derived from the attachment id, so duplicate bucket
// notifications for the same object are harmless.
type IntakeStarter struct {
	Client    client.Client
	TaskQueue string
	Prefix    string
	Timeout   time.Duration
}

func (s *IntakeStarter) WorkflowID(attachmentID string) string {
	return fmt.Sprintf("%s-%s", s.Prefix, attachmentID)
}

func (s *IntakeStarter) Handle(parent context.Context, event UploadEvent) error {
	logger := applog.WithComponent("event-handler")
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	execCtx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	workflowID := s.WorkflowID(event.AttachmentID)
	_, err := s.Client.ExecuteWorkflow(execCtx, client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: s.TaskQueue,
	}, appTemporal.AttachmentIntakeWorkflowName, appTemporal.AttachmentIntakeInput{
		WorkOrderID:  event.WorkOrderID,
		AttachmentID: event.AttachmentID,
		Filename:     event.Filename,
		ObjectKey:    event.ObjectKey,
	})
	if err != nil {
		var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &alreadyStarted) {
			logger.Info().Str("object_key", event.ObjectKey).Str("workflow_id", workflowID).Msg("intake workflow already started")
			return nil
		}
		return fmt.Errorf("start intake workflow for object %s: %w", event.ObjectKey, err)
	}

	logger.Info().Str("workflow_id", workflowID).Str("object_key", event.ObjectKey).Msg("started intake workflow")
	return nil
}
