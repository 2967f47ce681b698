package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/clinsight/ctr-registry-api/internal/models"
)

// TrackerRepository provides persistence for per-item trackers,
// including the incrementally maintained unresolved-comment counter.
type TrackerRepository struct {
	db *sqlx.DB
}

// NewTrackerRepository constructs the repository.
func NewTrackerRepository(db *sqlx.DB) *TrackerRepository {
	return &TrackerRepository{db: db}
}

const trackerColumns = `id, reporting_effort_item_id, production_user_id, qc_user_id, production_status, qc_status, priority, due_date, unresolved_comment_count, created_at, updated_at`

// FindByID fetches one tracker; returns (nil, nil) when absent.
func (r *TrackerRepository) FindByID(ctx context.Context, id string) (*models.Tracker, error) {
	return r.find(ctx, r.db, `WHERE id = $1`, id)
}

// Get fetches one tracker inside the caller's transaction.
func (r *TrackerRepository) Get(ctx context.Context, q sqlx.ExtContext, id string) (*models.Tracker, error) {
	return r.find(ctx, q, `WHERE id = $1`, id)
}

// FindByItemID fetches the tracker owned by an item.
func (r *TrackerRepository) FindByItemID(ctx context.Context, itemID string) (*models.Tracker, error) {
	return r.find(ctx, r.db, `WHERE reporting_effort_item_id = $1`, itemID)
}

// GetByItemID fetches an item's tracker inside the caller's transaction.
func (r *TrackerRepository) GetByItemID(ctx context.Context, q sqlx.ExtContext, itemID string) (*models.Tracker, error) {
	return r.find(ctx, q, `WHERE reporting_effort_item_id = $1`, itemID)
}

func (r *TrackerRepository) find(ctx context.Context, q sqlx.QueryerContext, where, arg string) (*models.Tracker, error) {
	query := `SELECT ` + trackerColumns + ` FROM trackers ` + where

	var tracker models.Tracker
	if err := sqlx.GetContext(ctx, q, &tracker, query, arg); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get tracker: %w", err)
	}
	return &tracker, nil
}

// ListRowsByEffort returns the joined tracker matrix for one effort,
// with item identity and assignee names resolved.
func (r *TrackerRepository) ListRowsByEffort(ctx context.Context, effortID string) ([]models.TrackerRow, error) {
	const query = `
SELECT
	t.id AS tracker_id,
	i.id AS item_id,
	i.item_type,
	i.item_subtype,
	i.item_code,
	t.production_status,
	t.qc_status,
	t.priority,
	t.due_date,
	t.unresolved_comment_count,
	pu.full_name AS production_user_name,
	qu.full_name AS qc_user_name
FROM trackers t
JOIN reporting_effort_items i ON i.id = t.reporting_effort_item_id
LEFT JOIN users pu ON pu.id = t.production_user_id
LEFT JOIN users qu ON qu.id = t.qc_user_id
WHERE i.reporting_effort_id = $1
ORDER BY i.item_type, i.item_subtype, i.item_code`

	var rows []models.TrackerRow
	if err := r.db.SelectContext(ctx, &rows, query, effortID); err != nil {
		return nil, fmt.Errorf("list tracker rows: %w", err)
	}
	return rows, nil
}

// Insert persists a new tracker.
func (r *TrackerRepository) Insert(ctx context.Context, q sqlx.ExtContext, tracker *models.Tracker) error {
	const query = `INSERT INTO trackers (id, reporting_effort_item_id, production_user_id, qc_user_id, production_status, qc_status, priority, due_date, unresolved_comment_count, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	if _, err := q.ExecContext(ctx, query,
		tracker.ID, tracker.ReportingEffortItemID, tracker.ProductionUserID, tracker.QCUserID,
		tracker.ProductionStatus, tracker.QCStatus, tracker.Priority, tracker.DueDate,
		tracker.UnresolvedCommentCount, tracker.CreatedAt, tracker.UpdatedAt); err != nil {
		return fmt.Errorf("insert tracker: %w", err)
	}
	return nil
}

// Update persists mutable tracker workflow fields. The counter is not
// written here; only AdjustUnresolvedCount touches it.
func (r *TrackerRepository) Update(ctx context.Context, q sqlx.ExtContext, tracker *models.Tracker) error {
	const query = `UPDATE trackers SET
	production_user_id = $1,
	qc_user_id = $2,
	production_status = $3,
	qc_status = $4,
	priority = $5,
	due_date = $6,
	updated_at = $7
WHERE id = $8`

	if _, err := q.ExecContext(ctx, query,
		tracker.ProductionUserID, tracker.QCUserID, tracker.ProductionStatus, tracker.QCStatus,
		tracker.Priority, tracker.DueDate, tracker.UpdatedAt, tracker.ID); err != nil {
		return fmt.Errorf("update tracker: %w", err)
	}
	return nil
}

// AdjustUnresolvedCount applies a ±1 delta to the derived counter and
// returns the resulting value. The caller inspects the result: a
// negative return means the transition bookkeeping went wrong and must
// be clamped and reported.
func (r *TrackerRepository) AdjustUnresolvedCount(ctx context.Context, q sqlx.ExtContext, trackerID string, delta int) (int, error) {
	const query = `UPDATE trackers SET unresolved_comment_count = unresolved_comment_count + $1, updated_at = NOW() WHERE id = $2 RETURNING unresolved_comment_count`

	var count int
	if err := sqlx.GetContext(ctx, q, &count, query, delta, trackerID); err != nil {
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("adjust counter: tracker %s not found", trackerID)
		}
		return 0, fmt.Errorf("adjust counter: %w", err)
	}
	return count, nil
}

// ClampUnresolvedCount forces a negative counter back to zero.
func (r *TrackerRepository) ClampUnresolvedCount(ctx context.Context, q sqlx.ExtContext, trackerID string) error {
	const query = `UPDATE trackers SET unresolved_comment_count = 0 WHERE id = $1 AND unresolved_comment_count < 0`

	if _, err := q.ExecContext(ctx, query, trackerID); err != nil {
		return fmt.Errorf("clamp counter: %w", err)
	}
	return nil
}

// NullifyAssignee clears both assignment fields referencing a user and
// returns the number of trackers touched. Backs the SET NULL policy.
func (r *TrackerRepository) NullifyAssignee(ctx context.Context, q sqlx.ExtContext, userID string) (int64, error) {
	const query = `UPDATE trackers SET
	production_user_id = CASE WHEN production_user_id = $1 THEN NULL ELSE production_user_id END,
	qc_user_id = CASE WHEN qc_user_id = $1 THEN NULL ELSE qc_user_id END,
	updated_at = NOW()
WHERE production_user_id = $1 OR qc_user_id = $1`

	res, err := q.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("nullify assignee: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

// DeleteByItem removes the tracker owned by one item.
func (r *TrackerRepository) DeleteByItem(ctx context.Context, q sqlx.ExtContext, itemID string) (int64, error) {
	const query = `DELETE FROM trackers WHERE reporting_effort_item_id = $1`

	res, err := q.ExecContext(ctx, query, itemID)
	if err != nil {
		return 0, fmt.Errorf("delete tracker: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

// DeleteByEffort removes every tracker under an effort.
func (r *TrackerRepository) DeleteByEffort(ctx context.Context, q sqlx.ExtContext, effortID string) (int64, error) {
	const query = `DELETE FROM trackers WHERE reporting_effort_item_id IN (SELECT id FROM reporting_effort_items WHERE reporting_effort_id = $1)`

	res, err := q.ExecContext(ctx, query, effortID)
	if err != nil {
		return 0, fmt.Errorf("delete trackers: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}
