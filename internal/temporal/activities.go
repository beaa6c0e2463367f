package temporal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.temporal.io/sdk/temporal"

	"pcb-mes/internal/domain"
	applog "pcb-mes/internal/log"
	"pcb-mes/internal/metrics"
	"pcb-mes/internal/pipeline"
)

const systemActor = "system"

type ActivityStore interface {
	GetAttachment(ctx context.Context, attachmentID string) (domain.Attachment, error)
	SetAttachmentObjectKey(ctx context.Context, attachmentID, objectKey string) error
	RecordAttachmentApproval(ctx context.Context, attachmentID string, status domain.ApprovalStatus, approver *string, ev domain.TravelerEvent) error
	LoadWorkOrder(ctx context.Context, id string) (domain.WorkOrder, error)
	ListChecklist(ctx context.Context, workOrderID, stage string) ([]domain.ChecklistItem, error)
	AdvanceStage(ctx context.Context, workOrderID, from, to, actor string) error
}

type Activities struct {
	Store ActivityStore
}

type RegisterAttachmentInput struct {
	WorkOrderID  string
	AttachmentID string
	ObjectKey    string
}

type RegisterAttachmentOutput struct {
	Kind             string
	Category         string
	Filename         string
	RequiresApproval bool
	ApprovalStatus   domain.ApprovalStatus
}

type QueueApprovalInput struct {
	WorkOrderID  string
	AttachmentID string
	Filename     string
}

type ResolveApprovalInput struct {
	WorkOrderID  string
	AttachmentID string
	Decision     domain.ApprovalDecisionType
	Approver     string
	Reason       string
}

type ValidateTransitionInput struct {
	WorkOrderID   string
	ExpectedStage string
}

type ValidateTransitionOutput struct {
	From string
	To   string
}

type AdvanceStageInput struct {
	WorkOrderID string
	From        string
	To          string
	Actor       string
}

// RegisterAttachmentActivity records the uploaded object against its
// attachment row. Kinds that need no sign-off are approved on the spot.
func (a *Activities) RegisterAttachmentActivity(ctx context.Context, input RegisterAttachmentInput) (RegisterAttachmentOutput, error) {
	att, err := a.Store.GetAttachment(ctx, input.AttachmentID)
	if err != nil {
		return RegisterAttachmentOutput{}, fmt.Errorf("load attachment %s: %w", input.AttachmentID, err)
	}
	if att.WorkOrderID != input.WorkOrderID {
		return RegisterAttachmentOutput{}, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("attachment %s belongs to work order %s, not %s", att.ID, att.WorkOrderID, input.WorkOrderID),
			ErrTypeAttachmentMismatch, nil)
	}
	if att.ObjectKey == "" {
		if err := a.Store.SetAttachmentObjectKey(ctx, att.ID, input.ObjectKey); err != nil {
			return RegisterAttachmentOutput{}, err
		}
	}

	out := RegisterAttachmentOutput{
		Kind:             att.Kind,
		Category:         att.Category,
		Filename:         att.Filename,
		RequiresApproval: domain.RequiresApproval(att.Kind),
		ApprovalStatus:   att.ApprovalStatus,
	}
	if !out.RequiresApproval && att.ApprovalStatus != domain.ApprovalApproved {
		approver := systemActor
		if err := a.Store.RecordAttachmentApproval(ctx, att.ID, domain.ApprovalApproved, &approver, domain.TravelerEvent{
			WorkOrderID: att.WorkOrderID,
			Stage:       domain.StageCAM,
			Type:        domain.TravelerAttachmentUploaded,
			Actor:       systemActor,
			Note:        fmt.Sprintf("%s/%s %s", att.Category, att.Kind, att.Filename),
		}); err != nil {
			return RegisterAttachmentOutput{}, err
		}
		out.ApprovalStatus = domain.ApprovalApproved
		metrics.RecordAttachmentRegistered(att.Kind)
	}
	return out, nil
}

func (a *Activities) QueueApprovalActivity(ctx context.Context, input QueueApprovalInput) error {
	if err := a.Store.RecordAttachmentApproval(ctx, input.AttachmentID, domain.ApprovalPending, nil, domain.TravelerEvent{
		WorkOrderID: input.WorkOrderID,
		Stage:       domain.StageCAM,
		Type:        domain.TravelerAttachmentUploaded,
		Actor:       systemActor,
		Note:        fmt.Sprintf("job card %s awaiting approval", input.Filename),
	}); err != nil {
		return err
	}
	metrics.RecordAttachmentRegistered(domain.KindJobCard)
	return nil
}

func (a *Activities) ResolveApprovalActivity(ctx context.Context, input ResolveApprovalInput) error {
	status := domain.ApprovalApproved
	eventType := domain.TravelerJobCardApproved
	if input.Decision == domain.ApprovalDecisionReject {
		status = domain.ApprovalRejected
		eventType = domain.TravelerJobCardRejected
	}
	approver := input.Approver
	if approver == "" {
		approver = systemActor
	}
	if err := a.Store.RecordAttachmentApproval(ctx, input.AttachmentID, status, &approver, domain.TravelerEvent{
		WorkOrderID: input.WorkOrderID,
		Stage:       domain.StageCAM,
		Type:        eventType,
		Actor:       approver,
		Note:        input.Reason,
	}); err != nil {
		return err
	}
	metrics.RecordApprovalDecision(string(input.Decision))
	return nil
}

// ValidateTransitionActivity decides the target stage and refuses the move if
// the work order is not ready for it. Refusals are non-retryable.
func (a *Activities) ValidateTransitionActivity(ctx context.Context, input ValidateTransitionInput) (ValidateTransitionOutput, error) {
	logger := applog.WithComponent("transition")

	wo, err := a.Store.LoadWorkOrder(ctx, input.WorkOrderID)
	if err != nil {
		return ValidateTransitionOutput{}, fmt.Errorf("load work order %s: %w", input.WorkOrderID, err)
	}

	current := pipeline.CanonicalPcbStageID(wo.Stage)
	if input.ExpectedStage != "" && pipeline.CanonicalPcbStageID(input.ExpectedStage) != current {
		return ValidateTransitionOutput{}, rejectTransition(ErrTypeStageMismatch,
			fmt.Errorf("%w: at %q, expected %q", domain.ErrStageMismatch, wo.Stage, input.ExpectedStage))
	}

	var next string
	if strings.EqualFold(current, domain.StageCAM) {
		if pipeline.CamStageStatus(&wo, pipeline.UpdateJobCards) != pipeline.StateCompleted {
			return ValidateTransitionOutput{}, rejectTransition(ErrTypeCamIncomplete,
				fmt.Errorf("%w: no approved job card", domain.ErrCamIncomplete))
		}
		next = pipeline.PcbStages()[0].ID
	} else {
		if !pipeline.IsPcbStage(current) {
			return ValidateTransitionOutput{}, rejectTransition(ErrTypeUnknownStage,
				fmt.Errorf("work order stage %q is not a fabrication stage", wo.Stage))
		}
		var ok bool
		next, ok = pipeline.NextPcbStage(current)
		if !ok {
			return ValidateTransitionOutput{}, rejectTransition(ErrTypeFinalStage, domain.ErrFinalStage)
		}
	}

	items, err := a.Store.ListChecklist(ctx, wo.ID, current)
	if err != nil {
		return ValidateTransitionOutput{}, err
	}
	if !domain.ChecklistComplete(items) {
		return ValidateTransitionOutput{}, rejectTransition(ErrTypeChecklistIncomplete,
			fmt.Errorf("%w at %s", domain.ErrChecklistIncomplete, current))
	}

	logger.Debug().Str("work_order_id", wo.ID).Str("from", wo.Stage).Str("to", next).Msg("transition validated")
	return ValidateTransitionOutput{From: wo.Stage, To: next}, nil
}

func (a *Activities) AdvanceStageActivity(ctx context.Context, input AdvanceStageInput) error {
	actor := input.Actor
	if actor == "" {
		actor = systemActor
	}
	err := a.Store.AdvanceStage(ctx, input.WorkOrderID, input.From, input.To, actor)
	if errors.Is(err, domain.ErrStageMismatch) {
		return rejectTransition(ErrTypeStageMismatch, err)
	}
	if err != nil {
		return err
	}
	metrics.RecordStageTransition(pipeline.CanonicalPcbStageID(input.From), input.To)
	return nil
}

func rejectTransition(errType string, cause error) error {
	metrics.RecordTransitionRejected(errType)
	return temporal.NewNonRetryableApplicationError(cause.Error(), errType, cause)
}
