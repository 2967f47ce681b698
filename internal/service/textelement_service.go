package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/clinsight/ctr-registry-api/internal/dto"
	"github.com/clinsight/ctr-registry-api/internal/models"
	"github.com/clinsight/ctr-registry-api/internal/realtime"
	"github.com/clinsight/ctr-registry-api/pkg/database"
	appErrors "github.com/clinsight/ctr-registry-api/pkg/errors"
)

type textElementRepository interface {
	List(ctx context.Context, kind string) ([]models.TextElement, error)
	FindByID(ctx context.Context, id string) (*models.TextElement, error)
	Insert(ctx context.Context, q sqlx.ExtContext, element *models.TextElement) error
	Update(ctx context.Context, q sqlx.ExtContext, element *models.TextElement) error
}

// TextElementService manages the shared text dictionary.
type TextElementService struct {
	runner  database.Runner
	repo    textElementRepository
	audit   auditRecorder
	hub     broadcaster
	metrics mutationMetrics
	logger  *zap.Logger
}

// NewTextElementService constructs a TextElementService.
func NewTextElementService(runner database.Runner, repo textElementRepository, audit auditRecorder, hub broadcaster, metrics mutationMetrics, logger *zap.Logger) *TextElementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TextElementService{runner: runner, repo: repo, audit: audit, hub: hub, metrics: metrics, logger: logger}
}

// List returns dictionary entries, optionally filtered by kind.
func (s *TextElementService) List(ctx context.Context, kind string) ([]models.TextElement, error) {
	return s.repo.List(ctx, kind)
}

// GetByID returns one dictionary entry.
func (s *TextElementService) GetByID(ctx context.Context, id string) (*models.TextElement, error) {
	element, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if element == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "text element not found")
	}
	return element, nil
}

// Create adds a dictionary entry.
func (s *TextElementService) Create(ctx context.Context, req dto.CreateTextElementRequest, actor *models.JWTClaims) (*models.TextElement, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	element := &models.TextElement{
		ID:        uuid.NewString(),
		Kind:      models.TextElementKind(req.Kind),
		Label:     req.Label,
		Content:   req.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.runner.RunInTx(ctx, func(q sqlx.ExtContext) error {
		if err := s.repo.Insert(ctx, q, element); err != nil {
			return err
		}
		return s.audit.Record(ctx, q, dto.EntityTextElement, element.ID, models.AuditActionCreate, actor.ActorID(), CreatedPayload{Created: element})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.MutationCommitted(dto.EntityTextElement, models.AuditActionCreate)
	s.hub.Publish(realtime.Event{Type: "text_element_created", Scope: realtime.ScopeGlobal, Data: element})
	return element, nil
}

// Update patches a dictionary entry. Every item that references it
// sees the new content immediately.
func (s *TextElementService) Update(ctx context.Context, id string, req dto.UpdateTextElementRequest, actor *models.JWTClaims) (*models.TextElement, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	var updated *models.TextElement
	err := s.runner.RunInTx(ctx, func(q sqlx.ExtContext) error {
		element, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if element == nil {
			return appErrors.Clone(appErrors.ErrNotFound, "text element not found")
		}
		before := *element

		if req.Label != nil {
			element.Label = *req.Label
		}
		if req.Content != nil {
			element.Content = *req.Content
		}
		element.UpdatedAt = time.Now().UTC()

		if err := s.repo.Update(ctx, q, element); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, q, dto.EntityTextElement, element.ID, models.AuditActionUpdate, actor.ActorID(), UpdatedPayload{Before: before, After: element}); err != nil {
			return err
		}
		updated = element
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.MutationCommitted(dto.EntityTextElement, models.AuditActionUpdate)
	s.hub.Publish(realtime.Event{Type: "text_element_updated", Scope: realtime.ScopeGlobal, Data: updated})
	return updated, nil
}
