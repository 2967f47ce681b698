package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/clinsight/ctr-registry-api/internal/models"
)

// AuditRepository appends to and reads from the audit trail. The table
// is append-only: this type deliberately exposes no update or delete.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert appends one audit row inside the caller's transaction. A
// failure here must fail the whole transaction; an un-audited mutation
// is a broken invariant, not a degraded mode.
func (r *AuditRepository) Insert(ctx context.Context, q sqlx.ExtContext, entry *models.AuditEntry) error {
	const query = `INSERT INTO audit_log (id, table_name, record_id, action, actor_id, changes, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	if _, err := q.ExecContext(ctx, query,
		entry.ID, entry.TableName, entry.RecordID, entry.Action, entry.ActorID, entry.Changes, entry.CreatedAt); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// List returns audit entries newest first with a total count for
// pagination.
func (r *AuditRepository) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, int, error) {
	where := strings.Builder{}
	where.WriteString("WHERE 1=1")
	args := []interface{}{}

	if filter.TableName != "" {
		args = append(args, filter.TableName)
		fmt.Fprintf(&where, " AND table_name = $%d", len(args))
	}
	if filter.RecordID != "" {
		args = append(args, filter.RecordID)
		fmt.Fprintf(&where, " AND record_id = $%d", len(args))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		fmt.Fprintf(&where, " AND action = $%d", len(args))
	}
	if filter.ActorID != "" {
		args = append(args, filter.ActorID)
		fmt.Fprintf(&where, " AND actor_id = $%d", len(args))
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM audit_log " + where.String()
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}
	args = append(args, pageSize, (page-1)*pageSize)
	listQuery := fmt.Sprintf(
		"SELECT id, table_name, record_id, action, actor_id, changes, created_at FROM audit_log %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		where.String(), len(args)-1, len(args),
	)

	var entries []models.AuditEntry
	if err := r.db.SelectContext(ctx, &entries, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, total, nil
}
