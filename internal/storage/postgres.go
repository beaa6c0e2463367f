package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"pcb-mes/internal/domain"
)

//go:embed migrations/*.sql
var migrations embed.FS

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	sqlText, err := migrations.ReadFile("migrations/001_init.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, string(sqlText)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateWorkOrder(ctx context.Context, id string, in domain.NewWorkOrder) error {
	stage := in.Stage
	if stage == "" {
		stage = domain.StageCAM
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO work_orders (id, number, customer, product, quantity, stage)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, in.Number, in.Customer, in.Product, in.Quantity, stage)
	return err
}

func (s *PostgresStore) GetWorkOrder(ctx context.Context, id string) (domain.WorkOrder, error) {
	var wo domain.WorkOrder
	row := s.db.QueryRowContext(ctx, `
		SELECT id, number, customer, product, quantity, stage, created_at, updated_at
		FROM work_orders
		WHERE id = $1
	`, id)
	if err := row.Scan(&wo.ID, &wo.Number, &wo.Customer, &wo.Product, &wo.Quantity, &wo.Stage, &wo.CreatedAt, &wo.UpdatedAt); err != nil {
		return domain.WorkOrder{}, err
	}
	return wo, nil
}

// LoadWorkOrder returns the work order with its attachments and station
// statuses filled in.
func (s *PostgresStore) LoadWorkOrder(ctx context.Context, id string) (domain.WorkOrder, error) {
	wo, err := s.GetWorkOrder(ctx, id)
	if err != nil {
		return domain.WorkOrder{}, err
	}
	if wo.CamAttachments, err = s.ListAttachments(ctx, id); err != nil {
		return domain.WorkOrder{}, err
	}
	if wo.Stations, err = s.ListStationStatuses(ctx, id); err != nil {
		return domain.WorkOrder{}, err
	}
	return wo, nil
}

func (s *PostgresStore) ListWorkOrders(ctx context.Context, stage string) ([]domain.WorkOrder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, number, customer, product, quantity, stage, created_at, updated_at
		FROM work_orders
		WHERE $1::text = '' OR stage = $1::text
		ORDER BY created_at ASC
	`, stage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.WorkOrder, 0)
	for rows.Next() {
		var wo domain.WorkOrder
		if err := rows.Scan(&wo.ID, &wo.Number, &wo.Customer, &wo.Product, &wo.Quantity, &wo.Stage, &wo.CreatedAt, &wo.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, wo)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *PostgresStore) CreatePendingAttachment(ctx context.Context, a domain.Attachment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attachments (id, work_order_id, category, kind, filename, approval_status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, a.ID, a.WorkOrderID, a.Category, a.Kind, a.Filename, domain.ApprovalPending)
	return err
}

func (s *PostgresStore) SetAttachmentObjectKey(ctx context.Context, attachmentID, objectKey string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE attachments
		SET object_key = $2
		WHERE id = $1
	`, attachmentID, objectKey)
	return err
}

func (s *PostgresStore) GetAttachment(ctx context.Context, attachmentID string) (domain.Attachment, error) {
	var a domain.Attachment
	row := s.db.QueryRowContext(ctx, `
		SELECT id, work_order_id, category, kind, filename, COALESCE(object_key, ''), approval_status, approved_by, uploaded_at
		FROM attachments
		WHERE id = $1
	`, attachmentID)
	if err := row.Scan(&a.ID, &a.WorkOrderID, &a.Category, &a.Kind, &a.Filename, &a.ObjectKey, &a.ApprovalStatus, &a.ApprovedBy, &a.UploadedAt); err != nil {
		return domain.Attachment{}, err
	}
	return a, nil
}

func (s *PostgresStore) ListAttachments(ctx context.Context, workOrderID string) ([]domain.Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, work_order_id, category, kind, filename, COALESCE(object_key, ''), approval_status, approved_by, uploaded_at
		FROM attachments
		WHERE work_order_id = $1 AND object_key IS NOT NULL
		ORDER BY uploaded_at ASC
	`, workOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Attachment, 0)
	for rows.Next() {
		var a domain.Attachment
		if err := rows.Scan(&a.ID, &a.WorkOrderID, &a.Category, &a.Kind, &a.Filename, &a.ObjectKey, &a.ApprovalStatus, &a.ApprovedBy, &a.UploadedAt); err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// RecordAttachmentApproval sets the approval status and writes ev in one
// transaction, so a failed traveler insert leaves the status untouched.
func (s *PostgresStore) RecordAttachmentApproval(ctx context.Context, attachmentID string, status domain.ApprovalStatus, approver *string, ev domain.TravelerEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE attachments
		SET approval_status = $2, approved_by = $3
		WHERE id = $1
	`, attachmentID, status, approver)
	if err != nil {
		return err
	}
	if err := requireAffected(res); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO traveler_events (work_order_id, stage, event_type, actor, note)
		VALUES ($1, $2, $3, $4, $5)
	`, ev.WorkOrderID, ev.Stage, ev.Type, ev.Actor, ev.Note); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) ListStationStatuses(ctx context.Context, workOrderID string) (map[string]domain.StationStatus, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stage, state, owner, release_target, updated_at, completed_at, released_at, started_at, approved_at
		FROM station_statuses
		WHERE work_order_id = $1
	`, workOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]domain.StationStatus)
	for rows.Next() {
		var st domain.StationStatus
		if err := rows.Scan(&st.Stage, &st.State, &st.Owner, &st.ReleaseTarget, &st.UpdatedAt, &st.CompletedAt, &st.ReleasedAt, &st.StartedAt, &st.ApprovedAt); err != nil {
			return nil, err
		}
		out[st.Stage] = st
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// UpsertStationStatus writes the editable fields of a station status. Null
// timestamps in st keep whatever is already stored.
func (s *PostgresStore) UpsertStationStatus(ctx context.Context, workOrderID string, st domain.StationStatus) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO station_statuses (work_order_id, stage, state, owner, release_target, updated_at, completed_at, released_at, started_at, approved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (work_order_id, stage) DO UPDATE SET
			state = EXCLUDED.state,
			owner = EXCLUDED.owner,
			release_target = EXCLUDED.release_target,
			updated_at = COALESCE(EXCLUDED.updated_at, station_statuses.updated_at),
			completed_at = COALESCE(EXCLUDED.completed_at, station_statuses.completed_at),
			released_at = COALESCE(EXCLUDED.released_at, station_statuses.released_at),
			started_at = COALESCE(EXCLUDED.started_at, station_statuses.started_at),
			approved_at = COALESCE(EXCLUDED.approved_at, station_statuses.approved_at)
	`, workOrderID, st.Stage, st.State, st.Owner, st.ReleaseTarget, st.UpdatedAt, st.CompletedAt, st.ReleasedAt, st.StartedAt, st.ApprovedAt)
	return err
}

func (s *PostgresStore) CreateChecklistItem(ctx context.Context, item domain.ChecklistItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checklist_items (id, work_order_id, stage, label, required)
		VALUES ($1, $2, $3, $4, $5)
	`, item.ID, item.WorkOrderID, item.Stage, item.Label, item.Required)
	return err
}

func (s *PostgresStore) ListChecklist(ctx context.Context, workOrderID, stage string) ([]domain.ChecklistItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, work_order_id, stage, label, required, done, toggled_by, toggled_at
		FROM checklist_items
		WHERE work_order_id = $1 AND stage = $2
		ORDER BY created_at ASC
	`, workOrderID, stage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.ChecklistItem, 0)
	for rows.Next() {
		var item domain.ChecklistItem
		if err := rows.Scan(&item.ID, &item.WorkOrderID, &item.Stage, &item.Label, &item.Required, &item.Done, &item.ToggledBy, &item.ToggledAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *PostgresStore) ToggleChecklistItem(ctx context.Context, workOrderID, itemID, actor string) (domain.ChecklistItem, error) {
	var item domain.ChecklistItem
	row := s.db.QueryRowContext(ctx, `
		UPDATE checklist_items
		SET done = NOT done, toggled_by = $3, toggled_at = NOW()
		WHERE id = $2 AND work_order_id = $1
		RETURNING id, work_order_id, stage, label, required, done, toggled_by, toggled_at
	`, workOrderID, itemID, actor)
	if err := row.Scan(&item.ID, &item.WorkOrderID, &item.Stage, &item.Label, &item.Required, &item.Done, &item.ToggledBy, &item.ToggledAt); err != nil {
		return domain.ChecklistItem{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertTravelerEvent(ctx context.Context, ev domain.TravelerEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO traveler_events (work_order_id, stage, event_type, actor, note)
		VALUES ($1, $2, $3, $4, $5)
	`, ev.WorkOrderID, ev.Stage, ev.Type, ev.Actor, ev.Note)
	return err
}

func (s *PostgresStore) ListTravelerEvents(ctx context.Context, workOrderID string) ([]domain.TravelerEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, work_order_id, stage, event_type, actor, note, created_at
		FROM traveler_events
		WHERE work_order_id = $1
		ORDER BY id ASC
	`, workOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.TravelerEvent, 0)
	for rows.Next() {
		var ev domain.TravelerEvent
		if err := rows.Scan(&ev.ID, &ev.WorkOrderID, &ev.Stage, &ev.Type, &ev.Actor, &ev.Note, &ev.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// AdvanceStage moves a work order from one stage to the next in a single
// transaction: the stage column, both station statuses and the traveler entry.
// It returns domain.ErrStageMismatch if the work order is no longer at from.
// A new target station starts in_progress; a state an operator already set
// on it is kept.
func (s *PostgresStore) AdvanceStage(ctx context.Context, workOrderID, from, to, actor string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE work_orders
		SET stage = $3, updated_at = NOW()
		WHERE id = $1 AND stage = $2
	`, workOrderID, from, to)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return domain.ErrStageMismatch
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO station_statuses (work_order_id, stage, state, updated_at, completed_at, released_at)
		VALUES ($1, $2, 'completed', $3, $3, $3)
		ON CONFLICT (work_order_id, stage) DO UPDATE SET
			state = 'completed', updated_at = $3, completed_at = $3, released_at = $3
	`, workOrderID, from, now)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO station_statuses (work_order_id, stage, state, updated_at, started_at)
		VALUES ($1, $2, 'in_progress', $3, $3)
		ON CONFLICT (work_order_id, stage) DO UPDATE SET
			updated_at = $3,
			started_at = COALESCE(station_statuses.started_at, $3)
	`, workOrderID, to, now)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO traveler_events (work_order_id, stage, event_type, actor, note)
		VALUES ($1, $2, $3, $4, $5)
	`, workOrderID, to, domain.TravelerStageAdvanced, actor, fmt.Sprintf("%s -> %s", from, to))
	if err != nil {
		return err
	}

	return tx.Commit()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
