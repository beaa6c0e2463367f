// Package pipeline holds the CAM and PCB stage catalogs and derives per-stage
// status for a work order. Everything here is pure and safe for concurrent use.
package pipeline

type StageDescriptor struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

const (
	CamUploads       = "cam_uploads"
	NCDrillUpload    = "nc_drill_upload"
	FilmUpload       = "film_upload"
	JobCardCreation  = "job_card_creation"
	JobCardsList     = "job_cards_list"
	UpdateJobCards   = "update_job_cards"
	AssemblyDispatch = "assembly_dispatch"
)

const (
	SheetCutting   = "sheet_cutting"
	CNCDrilling    = "cnc_drilling"
	PTHLine        = "pth_line"
	Brushing       = "brushing"
	PhotoImaging   = "photo_imaging"
	Developer      = "developer"
	EtchingStation = "etching_station"
	TinStripping   = "tin_stripping"
	SolderMask     = "solder_mask"
	HALStation     = "hal_station"
	LegendPrint    = "legend_print"
	CNCRouting     = "cnc_routing"
	VScoring       = "v_scoring"
	FlyingProbe    = "flying_probe"
	FinalQC        = "final_qc_pdir"
	Dispatch       = "dispatch"
)

var camPipelineStages = []StageDescriptor{
	{ID: CamUploads, Label: "CAM Uploads", Description: "Gerber and BOM files received from the customer"},
	{ID: NCDrillUpload, Label: "NC Drill Upload", Description: "NC drill program uploaded"},
	{ID: FilmUpload, Label: "Film Upload", Description: "Phototool films for imaging uploaded"},
	{ID: JobCardCreation, Label: "Job Card Creation", Description: "Job card generated for the work order"},
	{ID: JobCardsList, Label: "Job Cards List", Description: "Job cards available to the shop floor"},
	{ID: UpdateJobCards, Label: "Update Job Cards", Description: "Job card reviewed and approved"},
	{ID: AssemblyDispatch, Label: "Assembly Dispatch", Description: "Released from CAM into fabrication"},
}

var pcbPipelineStages = []StageDescriptor{
	{ID: SheetCutting, Label: "Sheet Cutting", Description: "Laminate cut to panel size"},
	{ID: CNCDrilling, Label: "CNC Drilling", Description: "Through holes and vias drilled"},
	{ID: PTHLine, Label: "PTH Line", Description: "Plated through hole metallisation"},
	{ID: Brushing, Label: "Brushing", Description: "Panel surface cleaned and deburred"},
	{ID: PhotoImaging, Label: "Photo Imaging", Description: "Dry film laminated and exposed"},
	{ID: Developer, Label: "Developer", Description: "Unexposed resist developed away"},
	{ID: EtchingStation, Label: "Etching", Description: "Copper etched to circuit pattern"},
	{ID: TinStripping, Label: "Tin Stripping", Description: "Etch resist tin removed"},
	{ID: SolderMask, Label: "Solder Mask", Description: "Solder mask applied and cured"},
	{ID: HALStation, Label: "HAL", Description: "Hot air levelling surface finish"},
	{ID: LegendPrint, Label: "Legend Printing", Description: "Component legend printed"},
	{ID: CNCRouting, Label: "CNC Routing", Description: "Board outline routed"},
	{ID: VScoring, Label: "V-Scoring", Description: "Panel V-grooves cut for depanelling"},
	{ID: FlyingProbe, Label: "Flying Probe", Description: "Electrical test"},
	{ID: FinalQC, Label: "Final QC / PDIR", Description: "Final inspection and pre-dispatch report"},
	{ID: Dispatch, Label: "Dispatch", Description: "Packed and shipped"},
}

var pcbStageAliases = map[string]string{
	"tin_strip": TinStripping,
}

var (
	camStageIndex = indexStages(camPipelineStages)
	pcbStageIndex = indexStages(pcbPipelineStages)
)

func indexStages(stages []StageDescriptor) map[string]int {
	idx := make(map[string]int, len(stages))
	for i, s := range stages {
		idx[s.ID] = i
	}
	return idx
}

// CamStages returns the CAM intake stages in pipeline order.
func CamStages() []StageDescriptor {
	return append([]StageDescriptor(nil), camPipelineStages...)
}

// PcbStages returns the PCB fabrication stages in pipeline order.
func PcbStages() []StageDescriptor {
	return append([]StageDescriptor(nil), pcbPipelineStages...)
}

// CanonicalPcbStageID rewrites known aliases to their catalog id.
func CanonicalPcbStageID(id string) string {
	if canonical, ok := pcbStageAliases[id]; ok {
		return canonical
	}
	return id
}

func FindPcbStage(id string) (StageDescriptor, bool) {
	i, ok := pcbStageIndex[CanonicalPcbStageID(id)]
	if !ok {
		return StageDescriptor{}, false
	}
	return pcbPipelineStages[i], true
}

func FindCamStage(id string) (StageDescriptor, bool) {
	i, ok := camStageIndex[id]
	if !ok {
		return StageDescriptor{}, false
	}
	return camPipelineStages[i], true
}

// IsPcbStage reports whether id (after alias rewrite) is a fabrication stage.
func IsPcbStage(id string) bool {
	_, ok := FindPcbStage(id)
	return ok
}

// pcbIndex returns the position of id in the fabrication sequence, or -1.
func pcbIndex(id string) int {
	i, ok := pcbStageIndex[CanonicalPcbStageID(id)]
	if !ok {
		return -1
	}
	return i
}
