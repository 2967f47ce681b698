package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/clinsight/ctr-registry-api/internal/models"
)

// StudyRepository provides persistence for studies, the hierarchy root.
// Write methods take a sqlx.ExtContext so they can participate in a
// caller-owned transaction.
type StudyRepository struct {
	db *sqlx.DB
}

// NewStudyRepository constructs the repository.
func NewStudyRepository(db *sqlx.DB) *StudyRepository {
	return &StudyRepository{db: db}
}

// List returns all studies ordered by label.
func (r *StudyRepository) List(ctx context.Context) ([]models.Study, error) {
	const query = `SELECT id, label, description, created_at, updated_at FROM studies ORDER BY label ASC`

	var studies []models.Study
	if err := r.db.SelectContext(ctx, &studies, query); err != nil {
		return nil, fmt.Errorf("list studies: %w", err)
	}
	return studies, nil
}

// FindByID fetches one study; returns (nil, nil) when absent.
func (r *StudyRepository) FindByID(ctx context.Context, id string) (*models.Study, error) {
	const query = `SELECT id, label, description, created_at, updated_at FROM studies WHERE id = $1`

	var study models.Study
	if err := r.db.GetContext(ctx, &study, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find study: %w", err)
	}
	return &study, nil
}

// Get fetches one study inside the caller's transaction.
func (r *StudyRepository) Get(ctx context.Context, q sqlx.ExtContext, id string) (*models.Study, error) {
	const query = `SELECT id, label, description, created_at, updated_at FROM studies WHERE id = $1`

	var study models.Study
	if err := sqlx.GetContext(ctx, q, &study, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get study: %w", err)
	}
	return &study, nil
}

// LabelExists reports whether a study with the label already exists,
// optionally excluding one id (for updates).
func (r *StudyRepository) LabelExists(ctx context.Context, q sqlx.ExtContext, label, excludeID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM studies WHERE label = $1 AND id <> $2)`

	var exists bool
	if err := sqlx.GetContext(ctx, q, &exists, query, label, excludeID); err != nil {
		return false, fmt.Errorf("check study label: %w", err)
	}
	return exists, nil
}

// Insert persists a new study.
func (r *StudyRepository) Insert(ctx context.Context, q sqlx.ExtContext, study *models.Study) error {
	const query = `INSERT INTO studies (id, label, description, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5)`

	if _, err := q.ExecContext(ctx, query, study.ID, study.Label, study.Description, study.CreatedAt, study.UpdatedAt); err != nil {
		return fmt.Errorf("insert study: %w", err)
	}
	return nil
}

// Update persists mutable study fields.
func (r *StudyRepository) Update(ctx context.Context, q sqlx.ExtContext, study *models.Study) error {
	const query = `UPDATE studies SET label = $1, description = $2, updated_at = $3 WHERE id = $4`

	if _, err := q.ExecContext(ctx, query, study.Label, study.Description, study.UpdatedAt, study.ID); err != nil {
		return fmt.Errorf("update study: %w", err)
	}
	return nil
}

// Delete removes a study row. Dependent checks are the integrity
// engine's job; this only issues the statement.
func (r *StudyRepository) Delete(ctx context.Context, q sqlx.ExtContext, id string) (int64, error) {
	const query = `DELETE FROM studies WHERE id = $1`

	res, err := q.ExecContext(ctx, query, id)
	if err != nil {
		return 0, fmt.Errorf("delete study: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}
