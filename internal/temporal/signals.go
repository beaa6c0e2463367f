package temporal

import "pcb-mes/internal/domain"

const ApprovalDecisionSignalName = "approvalDecision"

type ApprovalDecisionSignal struct {
	Decision domain.ApprovalDecisionType `json:"decision"`
	Approver string                      `json:"approver,omitempty"`
	Reason   string                      `json:"reason,omitempty"`
}

// Application error types returned by transition activities. The API maps
// these onto HTTP conflicts.
const (
	ErrTypeChecklistIncomplete = "ChecklistIncomplete"
	ErrTypeFinalStage          = "FinalStage"
	ErrTypeStageMismatch       = "StageMismatch"
	ErrTypeCamIncomplete       = "CamIncomplete"
	ErrTypeUnknownStage        = "UnknownStage"
	ErrTypeAttachmentMismatch  = "AttachmentMismatch"
)
