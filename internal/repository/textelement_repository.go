package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/clinsight/ctr-registry-api/internal/models"
)

// TextElementRepository provides persistence for the shared text
// dictionary (titles, footnote sets, acronym sets, population sets,
// ICH categories).
type TextElementRepository struct {
	db *sqlx.DB
}

// NewTextElementRepository constructs the repository.
func NewTextElementRepository(db *sqlx.DB) *TextElementRepository {
	return &TextElementRepository{db: db}
}

const textElementColumns = `id, kind, label, content, created_at, updated_at`

// List returns dictionary entries, optionally filtered by kind.
func (r *TextElementRepository) List(ctx context.Context, kind string) ([]models.TextElement, error) {
	var (
		elements []models.TextElement
		err      error
	)
	if kind == "" {
		err = r.db.SelectContext(ctx, &elements, `SELECT `+textElementColumns+` FROM text_elements ORDER BY kind, label`)
	} else {
		err = r.db.SelectContext(ctx, &elements, `SELECT `+textElementColumns+` FROM text_elements WHERE kind = $1 ORDER BY label`, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("list text elements: %w", err)
	}
	return elements, nil
}

// FindByID fetches one entry; returns (nil, nil) when absent.
func (r *TextElementRepository) FindByID(ctx context.Context, id string) (*models.TextElement, error) {
	query := `SELECT ` + textElementColumns + ` FROM text_elements WHERE id = $1`

	var element models.TextElement
	if err := r.db.GetContext(ctx, &element, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get text element: %w", err)
	}
	return &element, nil
}

// Get fetches one entry on the caller's transaction; returns (nil, nil)
// when absent.
func (r *TextElementRepository) Get(ctx context.Context, q sqlx.ExtContext, id string) (*models.TextElement, error) {
	query := `SELECT ` + textElementColumns + ` FROM text_elements WHERE id = $1`

	var element models.TextElement
	if err := sqlx.GetContext(ctx, q, &element, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get text element: %w", err)
	}
	return &element, nil
}

// Insert persists a new dictionary entry.
func (r *TextElementRepository) Insert(ctx context.Context, q sqlx.ExtContext, element *models.TextElement) error {
	const query = `INSERT INTO text_elements (id, kind, label, content, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := q.ExecContext(ctx, query, element.ID, element.Kind, element.Label, element.Content, element.CreatedAt, element.UpdatedAt); err != nil {
		return fmt.Errorf("insert text element: %w", err)
	}
	return nil
}

// Update persists mutable entry fields.
func (r *TextElementRepository) Update(ctx context.Context, q sqlx.ExtContext, element *models.TextElement) error {
	const query = `UPDATE text_elements SET label = $1, content = $2, updated_at = $3 WHERE id = $4`

	if _, err := q.ExecContext(ctx, query, element.Label, element.Content, element.UpdatedAt, element.ID); err != nil {
		return fmt.Errorf("update text element: %w", err)
	}
	return nil
}

// Delete removes an entry. Item detail references use ON DELETE SET
// NULL at the schema level, so detail rows survive with the reference
// cleared.
func (r *TextElementRepository) Delete(ctx context.Context, q sqlx.ExtContext, id string) (int64, error) {
	const query = `DELETE FROM text_elements WHERE id = $1`

	res, err := q.ExecContext(ctx, query, id)
	if err != nil {
		return 0, fmt.Errorf("delete text element: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}
