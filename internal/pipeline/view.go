package pipeline

import (
	"time"

	"pcb-mes/internal/domain"
)

type StageView struct {
	StageDescriptor
	Status        StageState    `json:"status"`
	Display       StatusDisplay `json:"display"`
	StationState  StageState    `json:"station_state,omitempty"`
	Owner         string        `json:"owner,omitempty"`
	ReleaseTarget string        `json:"release_target,omitempty"`
	Timestamp     *time.Time    `json:"timestamp,omitempty"`
}

type View struct {
	WorkOrderID  string      `json:"work_order_id"`
	CurrentStage string      `json:"current_stage"`
	NextStage    string      `json:"next_stage,omitempty"`
	Cam          []StageView `json:"cam"`
	Pcb          []StageView `json:"pcb"`
}

// BuildView projects wo onto both stage catalogs. A station status sub-object,
// when present, contributes its normalized state, owner and timestamp; the
// positional status is left untouched.
func BuildView(wo *domain.WorkOrder) View {
	v := View{
		Cam: make([]StageView, 0, len(camPipelineStages)),
		Pcb: make([]StageView, 0, len(pcbPipelineStages)),
	}
	if wo != nil {
		v.WorkOrderID = wo.ID
		v.CurrentStage = CanonicalPcbStageID(wo.Stage)
		if next, ok := NextPcbStage(wo.Stage); ok {
			v.NextStage = next
		}
	}

	for _, s := range camPipelineStages {
		status := CamStageStatus(wo, s.ID)
		v.Cam = append(v.Cam, StageView{StageDescriptor: s, Status: status, Display: StageStatusDisplay(status)})
	}

	for _, s := range pcbPipelineStages {
		status := PcbStageStatus(wo, s.ID)
		sv := StageView{StageDescriptor: s, Status: status, Display: StageStatusDisplay(status)}
		if station := wo.Station(s.ID); station != nil {
			sv.StationState = NormalizeStageState(station.State)
			sv.Owner = station.Owner
			sv.ReleaseTarget = station.ReleaseTarget
			sv.Timestamp = StageTimestamp(station)
		}
		v.Pcb = append(v.Pcb, sv)
	}
	return v
}
