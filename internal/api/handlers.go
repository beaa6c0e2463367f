package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"golang.org/x/sync/errgroup"

	"pcb-mes/internal/config"
	"pcb-mes/internal/domain"
	applog "pcb-mes/internal/log"
	"pcb-mes/internal/pipeline"
	"pcb-mes/internal/storage"
	appTemporal "pcb-mes/internal/temporal"
)

type Handler struct {
	cfg            config.Config
	store          workOrderStore
	blob           attachmentBlobStore
	temporalClient client.Client
	now            func() time.Time
}

// workOrderStore is the slice of storage.PostgresStore the API needs.
type workOrderStore interface {
	Ping(ctx context.Context) error
	CreateWorkOrder(ctx context.Context, id string, in domain.NewWorkOrder) error
	GetWorkOrder(ctx context.Context, id string) (domain.WorkOrder, error)
	ListWorkOrders(ctx context.Context, stage string) ([]domain.WorkOrder, error)
	CreatePendingAttachment(ctx context.Context, a domain.Attachment) error
	SetAttachmentObjectKey(ctx context.Context, attachmentID, objectKey string) error
	GetAttachment(ctx context.Context, attachmentID string) (domain.Attachment, error)
	ListAttachments(ctx context.Context, workOrderID string) ([]domain.Attachment, error)
	ListStationStatuses(ctx context.Context, workOrderID string) (map[string]domain.StationStatus, error)
	UpsertStationStatus(ctx context.Context, workOrderID string, st domain.StationStatus) error
	CreateChecklistItem(ctx context.Context, item domain.ChecklistItem) error
	ListChecklist(ctx context.Context, workOrderID, stage string) ([]domain.ChecklistItem, error)
	ToggleChecklistItem(ctx context.Context, workOrderID, itemID, actor string) (domain.ChecklistItem, error)
	InsertTravelerEvent(ctx context.Context, ev domain.TravelerEvent) error
	ListTravelerEvents(ctx context.Context, workOrderID string) ([]domain.TravelerEvent, error)
}

type attachmentBlobStore interface {
	PutAttachment(ctx context.Context, workOrderID, attachmentID, filename string, content []byte) (string, error)
	GetAttachment(ctx context.Context, objectKey string) ([]byte, error)
}

type stagesResponse struct {
	Cam []pipeline.StageDescriptor `json:"cam"`
	Pcb []pipeline.StageDescriptor `json:"pcb"`
}

type approvalRequest struct {
	Decision string `json:"decision"`
	Approver string `json:"approver,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type stationStatusRequest struct {
	State         string `json:"state"`
	Owner         string `json:"owner,omitempty"`
	ReleaseTarget string `json:"release_target,omitempty"`
}

type checklistItemRequest struct {
	Label    string `json:"label"`
	Required *bool  `json:"required,omitempty"`
}

type travelerNoteRequest struct {
	Note string `json:"note"`
}

func NewHandler(cfg config.Config, store workOrderStore, blob attachmentBlobStore, temporalClient client.Client) *Handler {
	return &Handler{cfg: cfg, store: store, blob: blob, temporalClient: temporalClient, now: time.Now}
}

func (h *Handler) ListStages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, stagesResponse{Cam: pipeline.CamStages(), Pcb: pipeline.PcbStages()})
}

func (h *Handler) CreateWorkOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var req domain.NewWorkOrder
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	if res := domain.ValidateNewWorkOrder(req); !domain.ValidationPassed(res) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid work order", "failed_rules": res.FailedRules})
		return
	}
	if req.Stage != "" {
		req.Stage = normalizeStageParam(req.Stage)
		if req.Stage != domain.StageCAM && !pipeline.IsPcbStage(req.Stage) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unknown stage"})
			return
		}
	}

	id := uuid.NewString()
	if err := h.store.CreateWorkOrder(ctx, id, req); err != nil {
		applog.FromContext(ctx, "api").Error().Err(err).Msg("create work order")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to create work order"})
		return
	}
	wo, err := h.store.GetWorkOrder(ctx, id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to fetch work order"})
		return
	}
	writeJSON(w, http.StatusCreated, wo)
}

func (h *Handler) ListWorkOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	stage := normalizeStageParam(r.URL.Query().Get("stage"))
	items, err := h.store.ListWorkOrders(ctx, stage)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to list work orders"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) GetWorkOrder(w http.ResponseWriter, r *http.Request, workOrderID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	wo, err := h.loadWorkOrder(ctx, workOrderID)
	if err != nil {
		h.writeLoadError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wo)
}

// GetPipeline returns both stage catalogs resolved against the work order.
func (h *Handler) GetPipeline(w http.ResponseWriter, r *http.Request, workOrderID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	wo, err := h.loadWorkOrder(ctx, workOrderID)
	if err != nil {
		h.writeLoadError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pipeline.BuildView(&wo))
}

func (h *Handler) UploadAttachment(w http.ResponseWriter, r *http.Request, workOrderID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	if err := r.ParseMultipartForm(h.cfg.AllowedUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid multipart payload"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "file form field is required"})
		return
	}
	defer file.Close()

	category := r.FormValue("category")
	kind := r.FormValue("kind")
	if res := domain.ValidateAttachment(category, kind, header.Filename); !domain.ValidationPassed(res) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid attachment", "failed_rules": res.FailedRules})
		return
	}

	body, err := io.ReadAll(io.LimitReader(file, h.cfg.AllowedUploadBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "failed to read file"})
		return
	}
	if int64(len(body)) > h.cfg.AllowedUploadBytes {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "file exceeds size limit"})
		return
	}

	if _, err := h.store.GetWorkOrder(ctx, workOrderID); err != nil {
		h.writeLoadError(w, err)
		return
	}

	att := domain.Attachment{
		ID:             uuid.NewString(),
		WorkOrderID:    workOrderID,
		Category:       category,
		Kind:           kind,
		Filename:       header.Filename,
		ApprovalStatus: domain.ApprovalPending,
	}
	if err := h.store.CreatePendingAttachment(ctx, att); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to create attachment"})
		return
	}

	objectKey, err := h.blob.PutAttachment(ctx, workOrderID, att.ID, att.Filename, body)
	if err != nil {
		applog.FromContext(ctx, "api").Error().Err(err).Str("attachment_id", att.ID).Msg("upload attachment")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to upload file"})
		return
	}
	if err := h.store.SetAttachmentObjectKey(ctx, att.ID, objectKey); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to record upload"})
		return
	}

	// The intake workflow is started by the event handler once the bucket
	// notification for objectKey arrives.
	writeJSON(w, http.StatusAccepted, map[string]any{
		"attachment_id":   att.ID,
		"work_order_id":   workOrderID,
		"object_key":      objectKey,
		"workflow_id":     h.intakeWorkflowID(att.ID),
		"approval_status": att.ApprovalStatus,
	})
}

func (h *Handler) DownloadAttachment(w http.ResponseWriter, r *http.Request, workOrderID, attachmentID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	att, ok := h.attachmentFor(ctx, w, workOrderID, attachmentID)
	if !ok {
		return
	}
	if att.ObjectKey == "" {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "attachment has no content yet"})
		return
	}
	body, err := h.blob.GetAttachment(ctx, att.ObjectKey)
	if errors.Is(err, storage.ErrObjectNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "attachment content is missing"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": "failed to read attachment"})
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", contentDisposition(att.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) SubmitApproval(w http.ResponseWriter, r *http.Request, workOrderID, attachmentID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var req approvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}

	decision := domain.ApprovalDecisionType(req.Decision)
	switch decision {
	case domain.ApprovalDecisionApprove, domain.ApprovalDecisionReject:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid decision"})
		return
	}

	att, ok := h.attachmentFor(ctx, w, workOrderID, attachmentID)
	if !ok {
		return
	}
	if !domain.RequiresApproval(att.Kind) {
		writeJSON(w, http.StatusConflict, map[string]any{"error": "attachment does not take approval decisions"})
		return
	}
	if att.ApprovalStatus != domain.ApprovalPending {
		writeJSON(w, http.StatusConflict, map[string]any{"error": "attachment already decided", "approval_status": att.ApprovalStatus})
		return
	}

	approver := req.Approver
	if approver == "" {
		approver = actorFromContext(r.Context())
	}
	signal := appTemporal.ApprovalDecisionSignal{Decision: decision, Approver: approver, Reason: req.Reason}
	err := h.temporalClient.SignalWorkflow(ctx, h.intakeWorkflowID(attachmentID), "", appTemporal.ApprovalDecisionSignalName, signal)
	var notFound *serviceerror.NotFound
	if errors.As(err, &notFound) {
		// The intake workflow starts when the bucket notification arrives.
		writeJSON(w, http.StatusConflict, map[string]any{"error": "intake not started yet", "attachment_id": attachmentID})
		return
	}
	if err != nil {
		applog.FromContext(ctx, "api").Error().Err(err).Str("attachment_id", attachmentID).Msg("signal approval")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to signal workflow"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"attachment_id": attachmentID, "status": "approval_signal_sent"})
}

// UpdateStationStatus upserts the station sub-object for a fabrication stage.
// Free-form state text is folded onto the canonical vocabulary when it
// matches one; anything else is stored as given.
func (h *Handler) UpdateStationStatus(w http.ResponseWriter, r *http.Request, workOrderID, stage string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	stage = normalizeStageParam(stage)
	if !pipeline.IsPcbStage(stage) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unknown stage"})
		return
	}

	var req stationStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.State) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "state is required"})
		return
	}
	if _, err := h.store.GetWorkOrder(ctx, workOrderID); err != nil {
		h.writeLoadError(w, err)
		return
	}

	now := h.now().UTC()
	state := pipeline.NormalizeStageState(req.State)
	st := domain.StationStatus{
		Stage:         stage,
		State:         string(state),
		Owner:         req.Owner,
		ReleaseTarget: req.ReleaseTarget,
		UpdatedAt:     &now,
	}
	switch state {
	case pipeline.StateInProgress:
		st.StartedAt = &now
	case pipeline.StateCompleted:
		st.CompletedAt = &now
	}

	if err := h.store.UpsertStationStatus(ctx, workOrderID, st); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to update station status"})
		return
	}
	h.recordTraveler(ctx, domain.TravelerEvent{
		WorkOrderID: workOrderID,
		Stage:       stage,
		Type:        domain.TravelerStationStatusUpdated,
		Actor:       actorFromContext(r.Context()),
		Note:        st.State,
	})

	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) ListChecklist(w http.ResponseWriter, r *http.Request, workOrderID, stage string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	items, err := h.store.ListChecklist(ctx, workOrderID, normalizeStageParam(stage))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to list checklist"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "complete": domain.ChecklistComplete(items)})
}

func (h *Handler) CreateChecklistItem(w http.ResponseWriter, r *http.Request, workOrderID, stage string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	stage = normalizeStageParam(stage)
	if stage != domain.StageCAM && !pipeline.IsPcbStage(stage) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unknown stage"})
		return
	}

	var req checklistItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Label) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "label is required"})
		return
	}
	if _, err := h.store.GetWorkOrder(ctx, workOrderID); err != nil {
		h.writeLoadError(w, err)
		return
	}

	item := domain.ChecklistItem{
		ID:          uuid.NewString(),
		WorkOrderID: workOrderID,
		Stage:       stage,
		Label:       strings.TrimSpace(req.Label),
		Required:    req.Required == nil || *req.Required,
	}
	if err := h.store.CreateChecklistItem(ctx, item); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to create checklist item"})
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *Handler) ToggleChecklistItem(w http.ResponseWriter, r *http.Request, workOrderID, itemID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	actor := actorFromContext(r.Context())
	item, err := h.store.ToggleChecklistItem(ctx, workOrderID, itemID, actor)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "checklist item not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to toggle checklist item"})
		return
	}

	note := "unchecked " + item.Label
	if item.Done {
		note = "checked " + item.Label
	}
	h.recordTraveler(ctx, domain.TravelerEvent{
		WorkOrderID: workOrderID,
		Stage:       item.Stage,
		Type:        domain.TravelerChecklistToggled,
		Actor:       actor,
		Note:        note,
	})
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) ListTraveler(w http.ResponseWriter, r *http.Request, workOrderID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	items, err := h.store.ListTravelerEvents(ctx, workOrderID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to list traveler"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) AddTravelerNote(w http.ResponseWriter, r *http.Request, workOrderID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var req travelerNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Note) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "note is required"})
		return
	}
	wo, err := h.store.GetWorkOrder(ctx, workOrderID)
	if err != nil {
		h.writeLoadError(w, err)
		return
	}

	ev := domain.TravelerEvent{
		WorkOrderID: workOrderID,
		Stage:       wo.Stage,
		Type:        domain.TravelerNote,
		Actor:       actorFromContext(r.Context()),
		Note:        strings.TrimSpace(req.Note),
	}
	if err := h.store.InsertTravelerEvent(ctx, ev); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to add note"})
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// loadWorkOrder fetches the work order row, its uploaded attachments and its
// station statuses concurrently.
func (h *Handler) loadWorkOrder(ctx context.Context, workOrderID string) (domain.WorkOrder, error) {
	var (
		wo          domain.WorkOrder
		attachments []domain.Attachment
		stations    map[string]domain.StationStatus
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		wo, err = h.store.GetWorkOrder(gctx, workOrderID)
		return err
	})
	g.Go(func() error {
		var err error
		attachments, err = h.store.ListAttachments(gctx, workOrderID)
		return err
	})
	g.Go(func() error {
		var err error
		stations, err = h.store.ListStationStatuses(gctx, workOrderID)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.WorkOrder{}, err
	}
	wo.CamAttachments = attachments
	wo.Stations = stations
	return wo, nil
}

func (h *Handler) attachmentFor(ctx context.Context, w http.ResponseWriter, workOrderID, attachmentID string) (domain.Attachment, bool) {
	att, err := h.store.GetAttachment(ctx, attachmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "attachment not found"})
			return domain.Attachment{}, false
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to fetch attachment"})
		return domain.Attachment{}, false
	}
	if att.WorkOrderID != workOrderID {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "attachment not found"})
		return domain.Attachment{}, false
	}
	return att, true
}

func (h *Handler) writeLoadError(w http.ResponseWriter, err error) {
	if errors.Is(err, sql.ErrNoRows) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "work order not found"})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to fetch work order"})
}

// recordTraveler appends a traveler entry. The primary write already
// succeeded, so a failure here is logged rather than returned.
func (h *Handler) recordTraveler(ctx context.Context, ev domain.TravelerEvent) {
	if err := h.store.InsertTravelerEvent(ctx, ev); err != nil {
		applog.FromContext(ctx, "api").Warn().Err(err).
			Str("work_order_id", ev.WorkOrderID).
			Str("event_type", string(ev.Type)).
			Msg("traveler write failed")
	}
}

func (h *Handler) intakeWorkflowID(attachmentID string) string {
	return fmt.Sprintf("%s-%s", h.cfg.IntakeWorkflowPrefix, attachmentID)
}

// normalizeStageParam folds a stage from a path, query or body onto its
// canonical id.
func normalizeStageParam(stage string) string {
	stage = strings.ToLower(strings.TrimSpace(stage))
	return pipeline.CanonicalPcbStageID(stage)
}

// contentDisposition falls back to a bare "attachment" when the filename
// cannot be encoded as a parameter.
func contentDisposition(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
