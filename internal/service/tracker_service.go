package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/clinsight/ctr-registry-api/internal/dto"
	"github.com/clinsight/ctr-registry-api/internal/models"
	"github.com/clinsight/ctr-registry-api/internal/realtime"
	"github.com/clinsight/ctr-registry-api/pkg/database"
	appErrors "github.com/clinsight/ctr-registry-api/pkg/errors"
)

const trackerCacheTTL = 5 * time.Minute

type trackerRepository interface {
	FindByID(ctx context.Context, id string) (*models.Tracker, error)
	Get(ctx context.Context, q sqlx.ExtContext, id string) (*models.Tracker, error)
	FindByItemID(ctx context.Context, itemID string) (*models.Tracker, error)
	ListRowsByEffort(ctx context.Context, effortID string) ([]models.TrackerRow, error)
	Update(ctx context.Context, q sqlx.ExtContext, tracker *models.Tracker) error
}

type trackerItemReader interface {
	Get(ctx context.Context, q sqlx.ExtContext, id string) (*models.ReportingEffortItem, error)
}

type trackerUserReader interface {
	Get(ctx context.Context, q sqlx.ExtContext, id string) (*models.User, error)
}

type trackerCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// TrackerService manages per-item workflow state. The unresolved
// comment counter on a tracker is owned by the comment mutation paths
// and is never written here.
type TrackerService struct {
	runner  database.Runner
	repo    trackerRepository
	items   trackerItemReader
	users   trackerUserReader
	cache   trackerCache
	audit   auditRecorder
	hub     broadcaster
	metrics mutationMetrics
	logger  *zap.Logger
}

// NewTrackerService constructs a TrackerService.
func NewTrackerService(runner database.Runner, repo trackerRepository, items trackerItemReader, users trackerUserReader, cache trackerCache, audit auditRecorder, hub broadcaster, metrics mutationMetrics, logger *zap.Logger) *TrackerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrackerService{runner: runner, repo: repo, items: items, users: users, cache: cache, audit: audit, hub: hub, metrics: metrics, logger: logger}
}

// ListByEffort returns the effort's tracker matrix, serving from cache
// when a fresh copy exists.
func (s *TrackerService) ListByEffort(ctx context.Context, effortID string) ([]models.TrackerRow, error) {
	key := trackerCacheKey(effortID)

	var cached []models.TrackerRow
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	rows, err := s.repo.ListRowsByEffort(ctx, effortID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, rows, trackerCacheTTL); err != nil {
		s.logger.Warn("failed to cache tracker matrix", zap.String("effort_id", effortID), zap.Error(err))
	}
	return rows, nil
}

// GetByID returns one tracker.
func (s *TrackerService) GetByID(ctx context.Context, id string) (*models.Tracker, error) {
	tracker, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tracker == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "tracker not found")
	}
	return tracker, nil
}

// GetByItemID returns the tracker belonging to an item.
func (s *TrackerService) GetByItemID(ctx context.Context, itemID string) (*models.Tracker, error) {
	tracker, err := s.repo.FindByItemID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if tracker == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "tracker not found")
	}
	return tracker, nil
}

// Update patches tracker workflow fields. Assignees must reference
// existing users; the Clear flags null an assignee explicitly.
func (s *TrackerService) Update(ctx context.Context, id string, req dto.UpdateTrackerRequest, actor *models.JWTClaims) (*models.Tracker, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	dueDate, err := parseDate(req.DueDate)
	if err != nil {
		return nil, err
	}

	var updated *models.Tracker
	var effortID string
	err = s.runner.RunInTx(ctx, func(q sqlx.ExtContext) error {
		tracker, err := s.repo.Get(ctx, q, id)
		if err != nil {
			return err
		}
		if tracker == nil {
			return appErrors.Clone(appErrors.ErrNotFound, "tracker not found")
		}
		item, err := s.items.Get(ctx, q, tracker.ReportingEffortItemID)
		if err != nil {
			return err
		}
		if item == nil {
			return appErrors.Clone(appErrors.ErrNotFound, "reporting effort item not found")
		}
		effortID = item.ReportingEffortID
		before := *tracker

		if err := s.applyAssignees(ctx, q, tracker, req); err != nil {
			return err
		}
		if req.ProductionStatus != nil {
			tracker.ProductionStatus = models.ProductionStatus(*req.ProductionStatus)
		}
		if req.QCStatus != nil {
			tracker.QCStatus = models.QCStatus(*req.QCStatus)
		}
		if req.Priority != nil {
			tracker.Priority = models.TrackerPriority(*req.Priority)
		}
		if req.ClearDueDate {
			tracker.DueDate = nil
		} else if dueDate != nil {
			tracker.DueDate = dueDate
		}
		tracker.UpdatedAt = time.Now().UTC()

		if err := s.repo.Update(ctx, q, tracker); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, q, dto.EntityTracker, tracker.ID, models.AuditActionUpdate, actor.ActorID(), UpdatedPayload{Before: before, After: tracker}); err != nil {
			return err
		}
		updated = tracker
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.MutationCommitted(dto.EntityTracker, models.AuditActionUpdate)
	if err := s.cache.DeleteByPattern(ctx, trackerCachePattern(effortID)); err != nil {
		s.logger.Warn("failed to invalidate tracker cache", zap.String("effort_id", effortID), zap.Error(err))
	}
	s.hub.Publish(realtime.Event{Type: "tracker_updated", Scope: realtime.EffortScope(effortID), Data: updated})
	return updated, nil
}

func (s *TrackerService) applyAssignees(ctx context.Context, q sqlx.ExtContext, tracker *models.Tracker, req dto.UpdateTrackerRequest) error {
	if req.ClearProductionUser {
		tracker.ProductionUserID = nil
	} else if req.ProductionUserID != nil {
		if err := s.checkUser(ctx, q, *req.ProductionUserID); err != nil {
			return err
		}
		tracker.ProductionUserID = req.ProductionUserID
	}
	if req.ClearQCUser {
		tracker.QCUserID = nil
	} else if req.QCUserID != nil {
		if err := s.checkUser(ctx, q, *req.QCUserID); err != nil {
			return err
		}
		tracker.QCUserID = req.QCUserID
	}
	return nil
}

func (s *TrackerService) checkUser(ctx context.Context, q sqlx.ExtContext, userID string) error {
	user, err := s.users.Get(ctx, q, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return appErrors.Clone(appErrors.ErrNotFound, "assignee user not found")
	}
	return nil
}
