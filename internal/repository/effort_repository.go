package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/clinsight/ctr-registry-api/internal/models"
)

// EffortRepository provides persistence for reporting efforts.
type EffortRepository struct {
	db *sqlx.DB
}

// NewEffortRepository constructs the repository.
func NewEffortRepository(db *sqlx.DB) *EffortRepository {
	return &EffortRepository{db: db}
}

const effortColumns = `id, study_id, database_release_id, label, description, due_date, created_at, updated_at`

// ListByRelease returns the efforts under one database release.
func (r *EffortRepository) ListByRelease(ctx context.Context, releaseID string) ([]models.ReportingEffort, error) {
	query := `SELECT ` + effortColumns + ` FROM reporting_efforts WHERE database_release_id = $1 ORDER BY label ASC`

	var efforts []models.ReportingEffort
	if err := r.db.SelectContext(ctx, &efforts, query, releaseID); err != nil {
		return nil, fmt.Errorf("list efforts: %w", err)
	}
	return efforts, nil
}

// ListByStudy returns all efforts for a study across its releases.
func (r *EffortRepository) ListByStudy(ctx context.Context, studyID string) ([]models.ReportingEffort, error) {
	query := `SELECT ` + effortColumns + ` FROM reporting_efforts WHERE study_id = $1 ORDER BY label ASC`

	var efforts []models.ReportingEffort
	if err := r.db.SelectContext(ctx, &efforts, query, studyID); err != nil {
		return nil, fmt.Errorf("list efforts by study: %w", err)
	}
	return efforts, nil
}

// FindByID fetches one effort; returns (nil, nil) when absent.
func (r *EffortRepository) FindByID(ctx context.Context, id string) (*models.ReportingEffort, error) {
	return r.find(ctx, r.db, id)
}

// Get fetches one effort inside the caller's transaction.
func (r *EffortRepository) Get(ctx context.Context, q sqlx.ExtContext, id string) (*models.ReportingEffort, error) {
	return r.find(ctx, q, id)
}

func (r *EffortRepository) find(ctx context.Context, q sqlx.QueryerContext, id string) (*models.ReportingEffort, error) {
	query := `SELECT ` + effortColumns + ` FROM reporting_efforts WHERE id = $1`

	var effort models.ReportingEffort
	if err := sqlx.GetContext(ctx, q, &effort, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get effort: %w", err)
	}
	return &effort, nil
}

// LabelExists reports whether the release already has an effort with
// the label, optionally excluding one id.
func (r *EffortRepository) LabelExists(ctx context.Context, q sqlx.ExtContext, releaseID, label, excludeID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM reporting_efforts WHERE database_release_id = $1 AND label = $2 AND id <> $3)`

	var exists bool
	if err := sqlx.GetContext(ctx, q, &exists, query, releaseID, label, excludeID); err != nil {
		return false, fmt.Errorf("check effort label: %w", err)
	}
	return exists, nil
}

// CountByRelease counts the efforts blocking a release delete.
func (r *EffortRepository) CountByRelease(ctx context.Context, q sqlx.ExtContext, releaseID string) (int, error) {
	const query = `SELECT COUNT(*) FROM reporting_efforts WHERE database_release_id = $1`

	var count int
	if err := sqlx.GetContext(ctx, q, &count, query, releaseID); err != nil {
		return 0, fmt.Errorf("count efforts: %w", err)
	}
	return count, nil
}

// SampleLabelsByRelease returns up to limit effort labels for conflict
// reporting.
func (r *EffortRepository) SampleLabelsByRelease(ctx context.Context, q sqlx.ExtContext, releaseID string, limit int) ([]string, error) {
	const query = `SELECT label FROM reporting_efforts WHERE database_release_id = $1 ORDER BY label ASC LIMIT $2`

	var labels []string
	if err := sqlx.SelectContext(ctx, q, &labels, query, releaseID, limit); err != nil {
		return nil, fmt.Errorf("sample effort labels: %w", err)
	}
	return labels, nil
}

// Insert persists a new effort.
func (r *EffortRepository) Insert(ctx context.Context, q sqlx.ExtContext, effort *models.ReportingEffort) error {
	const query = `INSERT INTO reporting_efforts (id, study_id, database_release_id, label, description, due_date, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	if _, err := q.ExecContext(ctx, query,
		effort.ID, effort.StudyID, effort.DatabaseReleaseID, effort.Label,
		effort.Description, effort.DueDate, effort.CreatedAt, effort.UpdatedAt); err != nil {
		return fmt.Errorf("insert effort: %w", err)
	}
	return nil
}

// Update persists mutable effort fields.
func (r *EffortRepository) Update(ctx context.Context, q sqlx.ExtContext, effort *models.ReportingEffort) error {
	const query = `UPDATE reporting_efforts SET label = $1, description = $2, due_date = $3, updated_at = $4 WHERE id = $5`

	if _, err := q.ExecContext(ctx, query, effort.Label, effort.Description, effort.DueDate, effort.UpdatedAt, effort.ID); err != nil {
		return fmt.Errorf("update effort: %w", err)
	}
	return nil
}

// Delete removes an effort row.
func (r *EffortRepository) Delete(ctx context.Context, q sqlx.ExtContext, id string) (int64, error) {
	const query = `DELETE FROM reporting_efforts WHERE id = $1`

	res, err := q.ExecContext(ctx, query, id)
	if err != nil {
		return 0, fmt.Errorf("delete effort: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}
