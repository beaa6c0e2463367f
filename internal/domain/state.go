package domain

import "errors"

const (
	CategoryIntake     = "intake"
	CategoryNCDrill    = "nc_drill"
	CategoryPhototools = "phototools"
	CategoryJobCards   = "job_cards"
)

const (
	KindGerber    = "gerber"
	KindBOM       = "bom"
	KindDrillFile = "drill_file"
	KindFilm      = "film"
	KindPhotoFile = "photo_file"
	KindJobCard   = "job_card"
)

// StageCAM is the work order stage while it is still in CAM intake.
const StageCAM = "cam"

var attachmentKindsByCategory = map[string][]string{
	CategoryIntake:     {KindGerber, KindBOM},
	CategoryNCDrill:    {KindDrillFile},
	CategoryPhototools: {KindFilm, KindPhotoFile},
	CategoryJobCards:   {KindJobCard},
}

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

type ApprovalDecisionType string

const (
	ApprovalDecisionApprove ApprovalDecisionType = "approve"
	ApprovalDecisionReject  ApprovalDecisionType = "reject"
)

type TravelerEventType string

const (
	TravelerStageAdvanced        TravelerEventType = "stage_advanced"
	TravelerAttachmentUploaded   TravelerEventType = "attachment_uploaded"
	TravelerJobCardApproved      TravelerEventType = "job_card_approved"
	TravelerJobCardRejected      TravelerEventType = "job_card_rejected"
	TravelerChecklistToggled     TravelerEventType = "checklist_toggled"
	TravelerStationStatusUpdated TravelerEventType = "station_status_updated"
	TravelerNote                 TravelerEventType = "note"
)

var (
	ErrChecklistIncomplete = errors.New("required checklist items are not done")
	ErrFinalStage          = errors.New("work order is already at the final stage")
	ErrStageMismatch       = errors.New("work order is not at the expected stage")
	ErrCamIncomplete       = errors.New("CAM intake is not complete")
)
