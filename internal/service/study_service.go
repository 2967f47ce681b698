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

type studyRepository interface {
	List(ctx context.Context) ([]models.Study, error)
	FindByID(ctx context.Context, id string) (*models.Study, error)
	Get(ctx context.Context, q sqlx.ExtContext, id string) (*models.Study, error)
	LabelExists(ctx context.Context, q sqlx.ExtContext, label, excludeID string) (bool, error)
	Insert(ctx context.Context, q sqlx.ExtContext, study *models.Study) error
	Update(ctx context.Context, q sqlx.ExtContext, study *models.Study) error
}

// StudyService manages the root of the reporting hierarchy.
type StudyService struct {
	runner  database.Runner
	repo    studyRepository
	audit   auditRecorder
	hub     broadcaster
	metrics mutationMetrics
	logger  *zap.Logger
}

// NewStudyService constructs a StudyService.
func NewStudyService(runner database.Runner, repo studyRepository, audit auditRecorder, hub broadcaster, metrics mutationMetrics, logger *zap.Logger) *StudyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudyService{runner: runner, repo: repo, audit: audit, hub: hub, metrics: metrics, logger: logger}
}

// List returns all studies.
func (s *StudyService) List(ctx context.Context) ([]models.Study, error) {
	return s.repo.List(ctx)
}

// GetByID returns one study.
func (s *StudyService) GetByID(ctx context.Context, id string) (*models.Study, error) {
	study, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if study == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "study not found")
	}
	return study, nil
}

// Create adds a study. Labels are globally unique.
func (s *StudyService) Create(ctx context.Context, req dto.CreateStudyRequest, actor *models.JWTClaims) (*models.Study, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	study := &models.Study{
		ID:          uuid.NewString(),
		Label:       req.Label,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.runner.RunInTx(ctx, func(q sqlx.ExtContext) error {
		exists, err := s.repo.LabelExists(ctx, q, req.Label, "")
		if err != nil {
			return err
		}
		if exists {
			return appErrors.Clone(appErrors.ErrConflict, "a study with this label already exists")
		}
		if err := s.repo.Insert(ctx, q, study); err != nil {
			return err
		}
		return s.audit.Record(ctx, q, dto.EntityStudy, study.ID, models.AuditActionCreate, actor.ActorID(), CreatedPayload{Created: study})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.MutationCommitted(dto.EntityStudy, models.AuditActionCreate)
	s.hub.Publish(realtime.Event{Type: "study_created", Scope: realtime.ScopeGlobal, Data: study})
	return study, nil
}

// Update patches the study's mutable fields.
func (s *StudyService) Update(ctx context.Context, id string, req dto.UpdateStudyRequest, actor *models.JWTClaims) (*models.Study, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	var updated *models.Study
	err := s.runner.RunInTx(ctx, func(q sqlx.ExtContext) error {
		study, err := s.repo.Get(ctx, q, id)
		if err != nil {
			return err
		}
		if study == nil {
			return appErrors.Clone(appErrors.ErrNotFound, "study not found")
		}
		before := *study

		if req.Label != nil && *req.Label != study.Label {
			exists, err := s.repo.LabelExists(ctx, q, *req.Label, id)
			if err != nil {
				return err
			}
			if exists {
				return appErrors.Clone(appErrors.ErrConflict, "a study with this label already exists")
			}
			study.Label = *req.Label
		}
		if req.Description != nil {
			study.Description = req.Description
		}
		study.UpdatedAt = time.Now().UTC()

		if err := s.repo.Update(ctx, q, study); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, q, dto.EntityStudy, study.ID, models.AuditActionUpdate, actor.ActorID(), UpdatedPayload{Before: before, After: study}); err != nil {
			return err
		}
		updated = study
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.MutationCommitted(dto.EntityStudy, models.AuditActionUpdate)
	s.hub.Publish(realtime.Event{Type: "study_updated", Scope: realtime.ScopeGlobal, Data: updated})
	return updated, nil
}
