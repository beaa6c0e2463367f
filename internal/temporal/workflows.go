package temporal

import (
	"go.temporal.io/sdk/workflow"

	"pcb-mes/internal/domain"
)

const (
	AttachmentIntakeWorkflowName = "AttachmentIntakeWorkflow"
	StageTransitionWorkflowName  = "StageTransitionWorkflow"
)

type AttachmentIntakeInput struct {
	WorkOrderID  string
	AttachmentID string
	Filename     string
	ObjectKey    string
}

type AttachmentIntakeResult struct {
	AttachmentID   string
	ApprovalStatus domain.ApprovalStatus
}

type StageTransitionInput struct {
	WorkOrderID   string
	ExpectedStage string
	Actor         string
}

type StageTransitionResult struct {
	WorkOrderID string
	From        string
	To          string
}

// AttachmentIntakeWorkflow registers an uploaded CAM file. Job cards then wait
// for an approval decision signal; anything else is released immediately.
func AttachmentIntakeWorkflow(ctx workflow.Context, input AttachmentIntakeInput) (AttachmentIntakeResult, error) {
	var registered RegisterAttachmentOutput
	if err := workflow.ExecuteActivity(mustActivityContext(ctx, ActivityPolicyRegisterAttachment), (*Activities).RegisterAttachmentActivity, RegisterAttachmentInput{
		WorkOrderID:  input.WorkOrderID,
		AttachmentID: input.AttachmentID,
		ObjectKey:    input.ObjectKey,
	}).Get(ctx, &registered); err != nil {
		return AttachmentIntakeResult{}, err
	}

	if !registered.RequiresApproval || registered.ApprovalStatus == domain.ApprovalApproved {
		return AttachmentIntakeResult{AttachmentID: input.AttachmentID, ApprovalStatus: registered.ApprovalStatus}, nil
	}

	if err := workflow.ExecuteActivity(mustActivityContext(ctx, ActivityPolicyQueueApproval), (*Activities).QueueApprovalActivity, QueueApprovalInput{
		WorkOrderID:  input.WorkOrderID,
		AttachmentID: input.AttachmentID,
		Filename:     registered.Filename,
	}).Get(ctx, nil); err != nil {
		return AttachmentIntakeResult{}, err
	}

	signalChan := workflow.GetSignalChannel(ctx, ApprovalDecisionSignalName)
	for {
		var decision ApprovalDecisionSignal
		signalChan.Receive(ctx, &decision)

		switch decision.Decision {
		case domain.ApprovalDecisionApprove, domain.ApprovalDecisionReject:
		default:
			workflow.GetLogger(ctx).Warn("ignoring unknown approval decision", "decision", decision.Decision)
			continue
		}

		if err := workflow.ExecuteActivity(mustActivityContext(ctx, ActivityPolicyResolveApproval), (*Activities).ResolveApprovalActivity, ResolveApprovalInput{
			WorkOrderID:  input.WorkOrderID,
			AttachmentID: input.AttachmentID,
			Decision:     decision.Decision,
			Approver:     decision.Approver,
			Reason:       decision.Reason,
		}).Get(ctx, nil); err != nil {
			return AttachmentIntakeResult{}, err
		}

		status := domain.ApprovalApproved
		if decision.Decision == domain.ApprovalDecisionReject {
			status = domain.ApprovalRejected
		}
		return AttachmentIntakeResult{AttachmentID: input.AttachmentID, ApprovalStatus: status}, nil
	}
}

// StageTransitionWorkflow moves a work order to the next pipeline stage once
// validation passes.
func StageTransitionWorkflow(ctx workflow.Context, input StageTransitionInput) (StageTransitionResult, error) {
	var validated ValidateTransitionOutput
	if err := workflow.ExecuteActivity(mustActivityContext(ctx, ActivityPolicyValidateTransition), (*Activities).ValidateTransitionActivity, ValidateTransitionInput{
		WorkOrderID:   input.WorkOrderID,
		ExpectedStage: input.ExpectedStage,
	}).Get(ctx, &validated); err != nil {
		return StageTransitionResult{}, err
	}

	if err := workflow.ExecuteActivity(mustActivityContext(ctx, ActivityPolicyAdvanceStage), (*Activities).AdvanceStageActivity, AdvanceStageInput{
		WorkOrderID: input.WorkOrderID,
		From:        validated.From,
		To:          validated.To,
		Actor:       input.Actor,
	}).Get(ctx, nil); err != nil {
		return StageTransitionResult{}, err
	}

	return StageTransitionResult{WorkOrderID: input.WorkOrderID, From: validated.From, To: validated.To}, nil
}
