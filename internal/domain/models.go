package domain

import "time"

type WorkOrder struct {
	ID             string                   `json:"id"`
	Number         string                   `json:"number"`
	Customer       string                   `json:"customer"`
	Product        string                   `json:"product"`
	Quantity       int                      `json:"quantity"`
	Stage          string                   `json:"stage"`
	CamAttachments []Attachment             `json:"cam_attachments"`
	Stations       map[string]StationStatus `json:"stations,omitempty"`
	CreatedAt      time.Time                `json:"created_at"`
	UpdatedAt      time.Time                `json:"updated_at"`
}

// Station returns the status sub-object recorded for stage, or nil.
func (w *WorkOrder) Station(stage string) *StationStatus {
	if w == nil || w.Stations == nil {
		return nil
	}
	s, ok := w.Stations[stage]
	if !ok {
		return nil
	}
	return &s
}

type Attachment struct {
	ID             string         `json:"id"`
	WorkOrderID    string         `json:"work_order_id"`
	Category       string         `json:"category"`
	Kind           string         `json:"kind"`
	Filename       string         `json:"filename"`
	ObjectKey      string         `json:"object_key,omitempty"`
	ApprovalStatus ApprovalStatus `json:"approval_status"`
	ApprovedBy     *string        `json:"approved_by,omitempty"`
	UploadedAt     time.Time      `json:"uploaded_at"`
}

// StationStatus is the per-stage status sub-object a station dashboard edits.
type StationStatus struct {
	Stage         string     `json:"stage"`
	State         string     `json:"state"`
	Owner         string     `json:"owner,omitempty"`
	ReleaseTarget string     `json:"release_target,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	ReleasedAt    *time.Time `json:"released_at,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
}

type ChecklistItem struct {
	ID          string     `json:"id"`
	WorkOrderID string     `json:"work_order_id"`
	Stage       string     `json:"stage"`
	Label       string     `json:"label"`
	Required    bool       `json:"required"`
	Done        bool       `json:"done"`
	ToggledBy   *string    `json:"toggled_by,omitempty"`
	ToggledAt   *time.Time `json:"toggled_at,omitempty"`
}

type TravelerEvent struct {
	ID          int64             `json:"id"`
	WorkOrderID string            `json:"work_order_id"`
	Stage       string            `json:"stage"`
	Type        TravelerEventType `json:"type"`
	Actor       string            `json:"actor"`
	Note        string            `json:"note,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

type NewWorkOrder struct {
	Number   string `json:"number"`
	Customer string `json:"customer"`
	Product  string `json:"product"`
	Quantity int    `json:"quantity"`
	Stage    string `json:"stage"`
}

type ApprovalDecision struct {
	Decision ApprovalDecisionType `json:"decision"`
	Approver string               `json:"approver,omitempty"`
	Reason   string               `json:"reason,omitempty"`
}

type ValidationResult struct {
	FailedRules []string `json:"failed_rules"`
}

// RequiresApproval reports whether attachments of kind wait for an explicit
// approval decision before they count as released.
func RequiresApproval(kind string) bool {
	return kind == KindJobCard
}
