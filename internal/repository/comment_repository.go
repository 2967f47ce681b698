package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/clinsight/ctr-registry-api/internal/models"
)

// CommentRepository provides persistence for threaded tracker comments.
// Comments live in a flat table keyed by id with a nullable parent
// pointer; the reply tree is rebuilt at read time.
type CommentRepository struct {
	db *sqlx.DB
}

// NewCommentRepository constructs the repository.
func NewCommentRepository(db *sqlx.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

const commentColumns = `id, tracker_id, user_id, parent_comment_id, body, is_resolved, resolved_by_user_id, resolved_at, is_deleted, created_at, updated_at`

// ListByTracker returns every comment of a tracker, oldest first;
// soft-deleted rows are included so thread structure stays intact.
func (r *CommentRepository) ListByTracker(ctx context.Context, trackerID string) ([]models.Comment, error) {
	query := `SELECT ` + commentColumns + ` FROM comments WHERE tracker_id = $1 ORDER BY created_at ASC`

	var comments []models.Comment
	if err := r.db.SelectContext(ctx, &comments, query, trackerID); err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

// Get fetches one comment inside the caller's transaction; returns
// (nil, nil) when absent.
func (r *CommentRepository) Get(ctx context.Context, q sqlx.ExtContext, id string) (*models.Comment, error) {
	query := `SELECT ` + commentColumns + ` FROM comments WHERE id = $1`

	var comment models.Comment
	if err := sqlx.GetContext(ctx, q, &comment, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get comment: %w", err)
	}
	return &comment, nil
}

// Insert persists a new comment.
func (r *CommentRepository) Insert(ctx context.Context, q sqlx.ExtContext, comment *models.Comment) error {
	const query = `INSERT INTO comments (id, tracker_id, user_id, parent_comment_id, body, is_resolved, resolved_by_user_id, resolved_at, is_deleted, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	if _, err := q.ExecContext(ctx, query,
		comment.ID, comment.TrackerID, comment.UserID, comment.ParentCommentID, comment.Body,
		comment.IsResolved, comment.ResolvedByUserID, comment.ResolvedAt, comment.IsDeleted,
		comment.CreatedAt, comment.UpdatedAt); err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

// SetResolved flips the resolution state of a comment.
func (r *CommentRepository) SetResolved(ctx context.Context, q sqlx.ExtContext, id string, resolved bool, resolvedBy *string, at time.Time) error {
	const query = `UPDATE comments SET is_resolved = $1, resolved_by_user_id = $2, resolved_at = $3, updated_at = $4 WHERE id = $5`

	var resolvedAt *time.Time
	if resolved {
		resolvedAt = &at
	}
	if _, err := q.ExecContext(ctx, query, resolved, resolvedBy, resolvedAt, at, id); err != nil {
		return fmt.Errorf("set comment resolved: %w", err)
	}
	return nil
}

// SoftDelete flags a comment deleted without removing the row, so
// replies keep their anchor.
func (r *CommentRepository) SoftDelete(ctx context.Context, q sqlx.ExtContext, id string, at time.Time) error {
	const query = `UPDATE comments SET is_deleted = TRUE, updated_at = $1 WHERE id = $2`

	if _, err := q.ExecContext(ctx, query, at, id); err != nil {
		return fmt.Errorf("soft delete comment: %w", err)
	}
	return nil
}

// DeleteByTracker hard-deletes every comment of one tracker (cascade
// path only).
func (r *CommentRepository) DeleteByTracker(ctx context.Context, q sqlx.ExtContext, trackerID string) (int64, error) {
	const query = `DELETE FROM comments WHERE tracker_id = $1`

	res, err := q.ExecContext(ctx, query, trackerID)
	if err != nil {
		return 0, fmt.Errorf("delete comments: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

// DeleteByEffort hard-deletes every comment under an effort's trackers
// (cascade path only).
func (r *CommentRepository) DeleteByEffort(ctx context.Context, q sqlx.ExtContext, effortID string) (int64, error) {
	const query = `DELETE FROM comments WHERE tracker_id IN (
SELECT t.id FROM trackers t
JOIN reporting_effort_items i ON i.id = t.reporting_effort_item_id
WHERE i.reporting_effort_id = $1)`

	res, err := q.ExecContext(ctx, query, effortID)
	if err != nil {
		return 0, fmt.Errorf("delete comments by effort: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

// CountByAuthor counts the comments written by a user. A user with
// authored comments cannot be deleted.
func (r *CommentRepository) CountByAuthor(ctx context.Context, q sqlx.ExtContext, userID string) (int, error) {
	const query = `SELECT COUNT(*) FROM comments WHERE user_id = $1`

	var count int
	if err := sqlx.GetContext(ctx, q, &count, query, userID); err != nil {
		return 0, fmt.Errorf("count comments by author: %w", err)
	}
	return count, nil
}

// CountUnresolvedByTracker recomputes the live unresolved count for a
// tracker. Only consistency checks use it; the serving path reads the
// stored counter.
func (r *CommentRepository) CountUnresolvedByTracker(ctx context.Context, trackerID string) (int, error) {
	const query = `SELECT COUNT(*) FROM comments WHERE tracker_id = $1 AND is_resolved = FALSE AND is_deleted = FALSE`

	var count int
	if err := r.db.GetContext(ctx, &count, query, trackerID); err != nil {
		return 0, fmt.Errorf("count unresolved comments: %w", err)
	}
	return count, nil
}
