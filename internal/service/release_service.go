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

type releaseRepository interface {
	ListByStudy(ctx context.Context, studyID string) ([]models.DatabaseRelease, error)
	FindByID(ctx context.Context, id string) (*models.DatabaseRelease, error)
	Get(ctx context.Context, q sqlx.ExtContext, id string) (*models.DatabaseRelease, error)
	LabelExists(ctx context.Context, q sqlx.ExtContext, studyID, label, excludeID string) (bool, error)
	Insert(ctx context.Context, q sqlx.ExtContext, release *models.DatabaseRelease) error
	Update(ctx context.Context, q sqlx.ExtContext, release *models.DatabaseRelease) error
}

type releaseStudyReader interface {
	Get(ctx context.Context, q sqlx.ExtContext, id string) (*models.Study, error)
}

// ReleaseService manages database releases within a study.
type ReleaseService struct {
	runner  database.Runner
	repo    releaseRepository
	studies releaseStudyReader
	audit   auditRecorder
	hub     broadcaster
	metrics mutationMetrics
	logger  *zap.Logger
}

// NewReleaseService constructs a ReleaseService.
func NewReleaseService(runner database.Runner, repo releaseRepository, studies releaseStudyReader, audit auditRecorder, hub broadcaster, metrics mutationMetrics, logger *zap.Logger) *ReleaseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReleaseService{runner: runner, repo: repo, studies: studies, audit: audit, hub: hub, metrics: metrics, logger: logger}
}

// ListByStudy returns the releases of one study.
func (s *ReleaseService) ListByStudy(ctx context.Context, studyID string) ([]models.DatabaseRelease, error) {
	return s.repo.ListByStudy(ctx, studyID)
}

// GetByID returns one release.
func (s *ReleaseService) GetByID(ctx context.Context, id string) (*models.DatabaseRelease, error) {
	release, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if release == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "database release not found")
	}
	return release, nil
}

// Create adds a release under a study. Labels are unique per study.
func (s *ReleaseService) Create(ctx context.Context, req dto.CreateReleaseRequest, actor *models.JWTClaims) (*models.DatabaseRelease, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	release := &models.DatabaseRelease{
		ID:          uuid.NewString(),
		StudyID:     req.StudyID,
		Label:       req.Label,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.runner.RunInTx(ctx, func(q sqlx.ExtContext) error {
		study, err := s.studies.Get(ctx, q, req.StudyID)
		if err != nil {
			return err
		}
		if study == nil {
			return appErrors.Clone(appErrors.ErrNotFound, "study not found")
		}
		exists, err := s.repo.LabelExists(ctx, q, req.StudyID, req.Label, "")
		if err != nil {
			return err
		}
		if exists {
			return appErrors.Clone(appErrors.ErrConflict, "a release with this label already exists in the study")
		}
		if err := s.repo.Insert(ctx, q, release); err != nil {
			return err
		}
		return s.audit.Record(ctx, q, dto.EntityDatabaseRelease, release.ID, models.AuditActionCreate, actor.ActorID(), CreatedPayload{Created: release})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.MutationCommitted(dto.EntityDatabaseRelease, models.AuditActionCreate)
	s.hub.Publish(realtime.Event{Type: "database_release_created", Scope: realtime.StudyScope(release.StudyID), Data: release})
	return release, nil
}

// Update patches mutable release fields.
func (s *ReleaseService) Update(ctx context.Context, id string, req dto.UpdateReleaseRequest, actor *models.JWTClaims) (*models.DatabaseRelease, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	var updated *models.DatabaseRelease
	err := s.runner.RunInTx(ctx, func(q sqlx.ExtContext) error {
		release, err := s.repo.Get(ctx, q, id)
		if err != nil {
			return err
		}
		if release == nil {
			return appErrors.Clone(appErrors.ErrNotFound, "database release not found")
		}
		before := *release

		if req.Label != nil && *req.Label != release.Label {
			exists, err := s.repo.LabelExists(ctx, q, release.StudyID, *req.Label, id)
			if err != nil {
				return err
			}
			if exists {
				return appErrors.Clone(appErrors.ErrConflict, "a release with this label already exists in the study")
			}
			release.Label = *req.Label
		}
		if req.Description != nil {
			release.Description = req.Description
		}
		release.UpdatedAt = time.Now().UTC()

		if err := s.repo.Update(ctx, q, release); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, q, dto.EntityDatabaseRelease, release.ID, models.AuditActionUpdate, actor.ActorID(), UpdatedPayload{Before: before, After: release}); err != nil {
			return err
		}
		updated = release
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.MutationCommitted(dto.EntityDatabaseRelease, models.AuditActionUpdate)
	s.hub.Publish(realtime.Event{Type: "database_release_updated", Scope: realtime.StudyScope(updated.StudyID), Data: updated})
	return updated, nil
}
