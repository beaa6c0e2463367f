package pipeline

import (
	"strings"
	"time"

	"pcb-mes/internal/domain"
)

type attachmentPredicate func(domain.Attachment) bool

var camStageChecks = map[string]func(*domain.WorkOrder) bool{
	CamUploads: anyAttachment(func(a domain.Attachment) bool {
		return a.Category == domain.CategoryIntake && (a.Kind == domain.KindGerber || a.Kind == domain.KindBOM)
	}),
	NCDrillUpload: anyAttachment(func(a domain.Attachment) bool {
		return a.Category == domain.CategoryNCDrill && a.Kind == domain.KindDrillFile
	}),
	FilmUpload: anyAttachment(func(a domain.Attachment) bool {
		return a.Category == domain.CategoryPhototools && (a.Kind == domain.KindFilm || a.Kind == domain.KindPhotoFile)
	}),
	JobCardCreation: anyAttachment(isJobCard),
	JobCardsList:    anyAttachment(isJobCard),
	UpdateJobCards: anyAttachment(func(a domain.Attachment) bool {
		return isJobCard(a) && a.ApprovalStatus == domain.ApprovalApproved
	}),
	AssemblyDispatch: func(wo *domain.WorkOrder) bool {
		return wo.Stage != "" && strings.ToLower(wo.Stage) != domain.StageCAM
	},
}

func isJobCard(a domain.Attachment) bool {
	return a.Kind == domain.KindJobCard
}

func anyAttachment(match attachmentPredicate) func(*domain.WorkOrder) bool {
	return func(wo *domain.WorkOrder) bool {
		for _, a := range wo.CamAttachments {
			if match(a) {
				return true
			}
		}
		return false
	}
}

// CamStageStatus derives a CAM stage status from the work order's attachments.
// It only ever returns StatePending or StateCompleted.
func CamStageStatus(wo *domain.WorkOrder, stageID string) StageState {
	if wo == nil {
		return StatePending
	}
	check, ok := camStageChecks[stageID]
	if !ok || !check(wo) {
		return StatePending
	}
	return StateCompleted
}

// PcbStageStatus compares stageID with the work order's current stage by
// position in the fabrication sequence. Stages the catalog does not know,
// queried or current, resolve to StatePending.
func PcbStageStatus(wo *domain.WorkOrder, stageID string) StageState {
	if wo == nil || wo.Stage == "" {
		return StatePending
	}
	stageIndex := pcbIndex(stageID)
	currentIndex := pcbIndex(wo.Stage)
	if stageIndex < 0 || currentIndex < 0 {
		return StatePending
	}
	switch {
	case stageIndex < currentIndex:
		return StateCompleted
	case stageIndex == currentIndex:
		return StateInProgress
	default:
		return StatePending
	}
}

// NextPcbStage returns the stage after currentStage, or false when currentStage
// is unknown or already the last stage.
func NextPcbStage(currentStage string) (string, bool) {
	i := pcbIndex(currentStage)
	if i < 0 || i+1 >= len(pcbPipelineStages) {
		return "", false
	}
	return pcbPipelineStages[i+1].ID, true
}

// StageTimestamp picks the first timestamp set on status, checking updated,
// completed, released and started in that order.
func StageTimestamp(status *domain.StationStatus) *time.Time {
	if status == nil {
		return nil
	}
	for _, ts := range []*time.Time{status.UpdatedAt, status.CompletedAt, status.ReleasedAt, status.StartedAt} {
		if ts != nil {
			return ts
		}
	}
	return nil
}
