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

type effortRepository interface {
	ListByRelease(ctx context.Context, releaseID string) ([]models.ReportingEffort, error)
	ListByStudy(ctx context.Context, studyID string) ([]models.ReportingEffort, error)
	FindByID(ctx context.Context, id string) (*models.ReportingEffort, error)
	Get(ctx context.Context, q sqlx.ExtContext, id string) (*models.ReportingEffort, error)
	LabelExists(ctx context.Context, q sqlx.ExtContext, releaseID, label, excludeID string) (bool, error)
	Insert(ctx context.Context, q sqlx.ExtContext, effort *models.ReportingEffort) error
	Update(ctx context.Context, q sqlx.ExtContext, effort *models.ReportingEffort) error
}

type effortReleaseReader interface {
	Get(ctx context.Context, q sqlx.ExtContext, id string) (*models.DatabaseRelease, error)
}

// EffortService manages reporting efforts within a database release.
type EffortService struct {
	runner   database.Runner
	repo     effortRepository
	releases effortReleaseReader
	audit    auditRecorder
	hub      broadcaster
	metrics  mutationMetrics
	logger   *zap.Logger
}

// NewEffortService constructs an EffortService.
func NewEffortService(runner database.Runner, repo effortRepository, releases effortReleaseReader, audit auditRecorder, hub broadcaster, metrics mutationMetrics, logger *zap.Logger) *EffortService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EffortService{runner: runner, repo: repo, releases: releases, audit: audit, hub: hub, metrics: metrics, logger: logger}
}

// ListByRelease returns the efforts of one release.
func (s *EffortService) ListByRelease(ctx context.Context, releaseID string) ([]models.ReportingEffort, error) {
	return s.repo.ListByRelease(ctx, releaseID)
}

// ListByStudy returns all efforts of a study across its releases.
func (s *EffortService) ListByStudy(ctx context.Context, studyID string) ([]models.ReportingEffort, error) {
	return s.repo.ListByStudy(ctx, studyID)
}

// GetByID returns one effort.
func (s *EffortService) GetByID(ctx context.Context, id string) (*models.ReportingEffort, error) {
	effort, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if effort == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "reporting effort not found")
	}
	return effort, nil
}

// Create adds an effort under a release. The release must belong to
// the study named in the request; labels are unique per release.
func (s *EffortService) Create(ctx context.Context, req dto.CreateEffortRequest, actor *models.JWTClaims) (*models.ReportingEffort, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	dueDate, err := parseDate(req.DueDate)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	effort := &models.ReportingEffort{
		ID:                uuid.NewString(),
		StudyID:           req.StudyID,
		DatabaseReleaseID: req.DatabaseReleaseID,
		Label:             req.Label,
		Description:       req.Description,
		DueDate:           dueDate,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err = s.runner.RunInTx(ctx, func(q sqlx.ExtContext) error {
		release, err := s.releases.Get(ctx, q, req.DatabaseReleaseID)
		if err != nil {
			return err
		}
		if release == nil {
			return appErrors.Clone(appErrors.ErrNotFound, "database release not found")
		}
		if release.StudyID != req.StudyID {
			return appErrors.Clone(appErrors.ErrValidation, "database release does not belong to the given study")
		}
		exists, err := s.repo.LabelExists(ctx, q, req.DatabaseReleaseID, req.Label, "")
		if err != nil {
			return err
		}
		if exists {
			return appErrors.Clone(appErrors.ErrConflict, "a reporting effort with this label already exists in the release")
		}
		if err := s.repo.Insert(ctx, q, effort); err != nil {
			return err
		}
		return s.audit.Record(ctx, q, dto.EntityReportingEffort, effort.ID, models.AuditActionCreate, actor.ActorID(), CreatedPayload{Created: effort})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.MutationCommitted(dto.EntityReportingEffort, models.AuditActionCreate)
	s.hub.Publish(realtime.Event{Type: "reporting_effort_created", Scope: realtime.StudyScope(effort.StudyID), Data: effort})
	return effort, nil
}

// Update patches mutable effort fields.
func (s *EffortService) Update(ctx context.Context, id string, req dto.UpdateEffortRequest, actor *models.JWTClaims) (*models.ReportingEffort, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	dueDate, err := parseDate(req.DueDate)
	if err != nil {
		return nil, err
	}

	var updated *models.ReportingEffort
	err = s.runner.RunInTx(ctx, func(q sqlx.ExtContext) error {
		effort, err := s.repo.Get(ctx, q, id)
		if err != nil {
			return err
		}
		if effort == nil {
			return appErrors.Clone(appErrors.ErrNotFound, "reporting effort not found")
		}
		before := *effort

		if req.Label != nil && *req.Label != effort.Label {
			exists, err := s.repo.LabelExists(ctx, q, effort.DatabaseReleaseID, *req.Label, id)
			if err != nil {
				return err
			}
			if exists {
				return appErrors.Clone(appErrors.ErrConflict, "a reporting effort with this label already exists in the release")
			}
			effort.Label = *req.Label
		}
		if req.Description != nil {
			effort.Description = req.Description
		}
		if dueDate != nil {
			effort.DueDate = dueDate
		}
		effort.UpdatedAt = time.Now().UTC()

		if err := s.repo.Update(ctx, q, effort); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, q, dto.EntityReportingEffort, effort.ID, models.AuditActionUpdate, actor.ActorID(), UpdatedPayload{Before: before, After: effort}); err != nil {
			return err
		}
		updated = effort
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.MutationCommitted(dto.EntityReportingEffort, models.AuditActionUpdate)
	s.hub.Publish(realtime.Event{Type: "reporting_effort_updated", Scope: realtime.StudyScope(updated.StudyID), Data: updated})
	return updated, nil
}
