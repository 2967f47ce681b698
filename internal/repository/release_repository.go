package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/clinsight/ctr-registry-api/internal/models"
)

// ReleaseRepository provides persistence for database releases.
type ReleaseRepository struct {
	db *sqlx.DB
}

// NewReleaseRepository constructs the repository.
func NewReleaseRepository(db *sqlx.DB) *ReleaseRepository {
	return &ReleaseRepository{db: db}
}

const releaseColumns = `id, study_id, label, description, created_at, updated_at`

// ListByStudy returns the releases belonging to one study.
func (r *ReleaseRepository) ListByStudy(ctx context.Context, studyID string) ([]models.DatabaseRelease, error) {
	query := `SELECT ` + releaseColumns + ` FROM database_releases WHERE study_id = $1 ORDER BY label ASC`

	var releases []models.DatabaseRelease
	if err := r.db.SelectContext(ctx, &releases, query, studyID); err != nil {
		return nil, fmt.Errorf("list releases: %w", err)
	}
	return releases, nil
}

// FindByID fetches one release; returns (nil, nil) when absent.
func (r *ReleaseRepository) FindByID(ctx context.Context, id string) (*models.DatabaseRelease, error) {
	return r.find(ctx, r.db, id)
}

// Get fetches one release inside the caller's transaction.
func (r *ReleaseRepository) Get(ctx context.Context, q sqlx.ExtContext, id string) (*models.DatabaseRelease, error) {
	return r.find(ctx, q, id)
}

func (r *ReleaseRepository) find(ctx context.Context, q sqlx.QueryerContext, id string) (*models.DatabaseRelease, error) {
	query := `SELECT ` + releaseColumns + ` FROM database_releases WHERE id = $1`

	var release models.DatabaseRelease
	if err := sqlx.GetContext(ctx, q, &release, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get release: %w", err)
	}
	return &release, nil
}

// LabelExists reports whether the study already has a release with the
// label, optionally excluding one id.
func (r *ReleaseRepository) LabelExists(ctx context.Context, q sqlx.ExtContext, studyID, label, excludeID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM database_releases WHERE study_id = $1 AND label = $2 AND id <> $3)`

	var exists bool
	if err := sqlx.GetContext(ctx, q, &exists, query, studyID, label, excludeID); err != nil {
		return false, fmt.Errorf("check release label: %w", err)
	}
	return exists, nil
}

// CountByStudy counts the releases blocking a study delete.
func (r *ReleaseRepository) CountByStudy(ctx context.Context, q sqlx.ExtContext, studyID string) (int, error) {
	const query = `SELECT COUNT(*) FROM database_releases WHERE study_id = $1`

	var count int
	if err := sqlx.GetContext(ctx, q, &count, query, studyID); err != nil {
		return 0, fmt.Errorf("count releases: %w", err)
	}
	return count, nil
}

// SampleLabelsByStudy returns up to limit release labels for conflict
// reporting.
func (r *ReleaseRepository) SampleLabelsByStudy(ctx context.Context, q sqlx.ExtContext, studyID string, limit int) ([]string, error) {
	const query = `SELECT label FROM database_releases WHERE study_id = $1 ORDER BY label ASC LIMIT $2`

	var labels []string
	if err := sqlx.SelectContext(ctx, q, &labels, query, studyID, limit); err != nil {
		return nil, fmt.Errorf("sample release labels: %w", err)
	}
	return labels, nil
}

// Insert persists a new release.
func (r *ReleaseRepository) Insert(ctx context.Context, q sqlx.ExtContext, release *models.DatabaseRelease) error {
	const query = `INSERT INTO database_releases (id, study_id, label, description, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := q.ExecContext(ctx, query, release.ID, release.StudyID, release.Label, release.Description, release.CreatedAt, release.UpdatedAt); err != nil {
		return fmt.Errorf("insert release: %w", err)
	}
	return nil
}

// Update persists mutable release fields.
func (r *ReleaseRepository) Update(ctx context.Context, q sqlx.ExtContext, release *models.DatabaseRelease) error {
	const query = `UPDATE database_releases SET label = $1, description = $2, updated_at = $3 WHERE id = $4`

	if _, err := q.ExecContext(ctx, query, release.Label, release.Description, release.UpdatedAt, release.ID); err != nil {
		return fmt.Errorf("update release: %w", err)
	}
	return nil
}

// Delete removes a release row.
func (r *ReleaseRepository) Delete(ctx context.Context, q sqlx.ExtContext, id string) (int64, error) {
	const query = `DELETE FROM database_releases WHERE id = $1`

	res, err := q.ExecContext(ctx, query, id)
	if err != nil {
		return 0, fmt.Errorf("delete release: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}
