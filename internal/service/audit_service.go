package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/clinsight/ctr-registry-api/internal/models"
)

// CreatedPayload is the audit body for a create.
type CreatedPayload struct {
	Created interface{} `json:"created"`
}

// UpdatedPayload is the audit body for an update: plain structural
// snapshots taken before and after the mutation, not a field diff.
type UpdatedPayload struct {
	Before interface{} `json:"before"`
	After  interface{} `json:"after"`
}

// DeletedPayload is the audit body for a delete, including cascade
// counts per table for subtree removals.
type DeletedPayload struct {
	Deleted  interface{}    `json:"deleted"`
	Cascaded map[string]int `json:"cascaded,omitempty"`
}

type auditRepository interface {
	Insert(ctx context.Context, q sqlx.ExtContext, entry *models.AuditEntry) error
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, int, error)
}

// AuditService writes and reads the append-only audit trail.
type AuditService struct {
	repo   auditRepository
	logger *zap.Logger
}

// NewAuditService constructs an AuditService.
func NewAuditService(repo auditRepository, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{repo: repo, logger: logger}
}

// Record appends one audit row inside the caller's transaction. The
// payload is marshalled structurally; any failure here is returned so
// the enclosing transaction rolls back with the mutation.
func (s *AuditService) Record(ctx context.Context, q sqlx.ExtContext, tableName, recordID, action string, actorID *string, payload interface{}) error {
	changes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload for %s/%s: %w", tableName, action, err)
	}

	entry := &models.AuditEntry{
		ID:        uuid.NewString(),
		TableName: tableName,
		RecordID:  recordID,
		Action:    action,
		ActorID:   actorID,
		Changes:   changes,
		CreatedAt: time.Now().UTC(),
	}
	return s.repo.Insert(ctx, q, entry)
}

// List returns audit entries with pagination metadata.
func (s *AuditService) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, *models.Pagination, error) {
	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}
	return entries, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}
