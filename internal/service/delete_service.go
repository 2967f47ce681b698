package service

import (
	"context"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/clinsight/ctr-registry-api/internal/dto"
	"github.com/clinsight/ctr-registry-api/internal/models"
	"github.com/clinsight/ctr-registry-api/internal/realtime"
	"github.com/clinsight/ctr-registry-api/pkg/database"
	appErrors "github.com/clinsight/ctr-registry-api/pkg/errors"
)

// conflictSampleSize caps how many blocking labels a rejection reports.
const conflictSampleSize = 5

type deleteStudyAccess interface {
	Get(ctx context.Context, q sqlx.ExtContext, id string) (*models.Study, error)
	Delete(ctx context.Context, q sqlx.ExtContext, id string) (int64, error)
}

type deleteReleaseAccess interface {
	Get(ctx context.Context, q sqlx.ExtContext, id string) (*models.DatabaseRelease, error)
	CountByStudy(ctx context.Context, q sqlx.ExtContext, studyID string) (int, error)
	SampleLabelsByStudy(ctx context.Context, q sqlx.ExtContext, studyID string, limit int) ([]string, error)
	Delete(ctx context.Context, q sqlx.ExtContext, id string) (int64, error)
}

type deleteEffortAccess interface {
	Get(ctx context.Context, q sqlx.ExtContext, id string) (*models.ReportingEffort, error)
	CountByRelease(ctx context.Context, q sqlx.ExtContext, releaseID string) (int, error)
	SampleLabelsByRelease(ctx context.Context, q sqlx.ExtContext, releaseID string, limit int) ([]string, error)
	Delete(ctx context.Context, q sqlx.ExtContext, id string) (int64, error)
}

type deleteItemAccess interface {
	Get(ctx context.Context, q sqlx.ExtContext, id string) (*models.ReportingEffortItem, error)
	DeleteByID(ctx context.Context, q sqlx.ExtContext, id string) (int64, error)
	DeleteDetailsByItem(ctx context.Context, q sqlx.ExtContext, itemID string) error
	DeleteByEffort(ctx context.Context, q sqlx.ExtContext, effortID string) (int64, error)
}

type deleteTrackerAccess interface {
	GetByItemID(ctx context.Context, q sqlx.ExtContext, itemID string) (*models.Tracker, error)
	NullifyAssignee(ctx context.Context, q sqlx.ExtContext, userID string) (int64, error)
	DeleteByItem(ctx context.Context, q sqlx.ExtContext, itemID string) (int64, error)
	DeleteByEffort(ctx context.Context, q sqlx.ExtContext, effortID string) (int64, error)
}

type deleteCommentAccess interface {
	DeleteByTracker(ctx context.Context, q sqlx.ExtContext, trackerID string) (int64, error)
	DeleteByEffort(ctx context.Context, q sqlx.ExtContext, effortID string) (int64, error)
	CountByAuthor(ctx context.Context, q sqlx.ExtContext, userID string) (int, error)
}

type deletePackageAccess interface {
	Get(ctx context.Context, q sqlx.ExtContext, id string) (*models.Package, error)
	CountItems(ctx context.Context, q sqlx.ExtContext, packageID string) (int, error)
	SampleItemCodes(ctx context.Context, q sqlx.ExtContext, packageID string, limit int) ([]string, error)
	Delete(ctx context.Context, q sqlx.ExtContext, id string) (int64, error)
	GetItem(ctx context.Context, q sqlx.ExtContext, id string) (*models.PackageItem, error)
	DeleteItem(ctx context.Context, q sqlx.ExtContext, id string) (int64, error)
}

type deleteTextElementAccess interface {
	Get(ctx context.Context, q sqlx.ExtContext, id string) (*models.TextElement, error)
	Delete(ctx context.Context, q sqlx.ExtContext, id string) (int64, error)
}

type deleteUserAccess interface {
	Get(ctx context.Context, q sqlx.ExtContext, id string) (*models.User, error)
	Delete(ctx context.Context, q sqlx.ExtContext, id string) (int64, error)
}

// DeleteService is the single gate for hard deletes. Each entity type
// carries a fixed policy toward its dependents: children that hold
// work product block the delete (restrict), bookkeeping children go
// down with the parent (cascade), and loose references are detached.
// A restricted delete is a normal outcome, not an error: the result
// reports the conflict and nothing is written, audited or broadcast.
type DeleteService struct {
	runner       database.Runner
	studies      deleteStudyAccess
	releases     deleteReleaseAccess
	efforts      deleteEffortAccess
	items        deleteItemAccess
	trackers     deleteTrackerAccess
	comments     deleteCommentAccess
	packages     deletePackageAccess
	textElements deleteTextElementAccess
	users        deleteUserAccess
	audit        auditRecorder
	hub          broadcaster
	cache        cacheInvalidator
	metrics      mutationMetrics
	logger       *zap.Logger
}

// NewDeleteService constructs a DeleteService.
func NewDeleteService(
	runner database.Runner,
	studies deleteStudyAccess,
	releases deleteReleaseAccess,
	efforts deleteEffortAccess,
	items deleteItemAccess,
	trackers deleteTrackerAccess,
	comments deleteCommentAccess,
	packages deletePackageAccess,
	textElements deleteTextElementAccess,
	users deleteUserAccess,
	audit auditRecorder,
	hub broadcaster,
	cache cacheInvalidator,
	metrics mutationMetrics,
	logger *zap.Logger,
) *DeleteService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeleteService{
		runner:       runner,
		studies:      studies,
		releases:     releases,
		efforts:      efforts,
		items:        items,
		trackers:     trackers,
		comments:     comments,
		packages:     packages,
		textElements: textElements,
		users:        users,
		audit:        audit,
		hub:          hub,
		cache:        cache,
		metrics:      metrics,
		logger:       logger,
	}
}

// ApplyDelete removes one entity under its integrity policy. Exactly
// one audit entry and one broadcast follow a successful delete, both
// only after commit.
func (s *DeleteService) ApplyDelete(ctx context.Context, entityType, id string, actor *models.JWTClaims) (*dto.DeleteResult, error) {
	switch entityType {
	case dto.EntityStudy:
		return s.deleteStudy(ctx, id, actor)
	case dto.EntityDatabaseRelease:
		return s.deleteRelease(ctx, id, actor)
	case dto.EntityReportingEffort:
		return s.deleteEffort(ctx, id, actor)
	case dto.EntityItem:
		return s.deleteItem(ctx, id, actor)
	case dto.EntityPackage:
		return s.deletePackage(ctx, id, actor)
	case dto.EntityPackageItem:
		return s.deletePackageItem(ctx, id, actor)
	case dto.EntityTextElement:
		return s.deleteTextElement(ctx, id, actor)
	case dto.EntityUser:
		return s.deleteUser(ctx, id, actor)
	case dto.EntityTracker:
		return nil, appErrors.Clone(appErrors.ErrValidation, "trackers cannot be deleted directly, delete the owning item")
	case dto.EntityComment:
		return nil, appErrors.Clone(appErrors.ErrValidation, "comments are soft-deleted through the comment endpoint")
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown entity type")
	}
}

func (s *DeleteService) deleteStudy(ctx context.Context, id string, actor *models.JWTClaims) (*dto.DeleteResult, error) {
	result := &dto.DeleteResult{}
	err := s.runner.RunInTx(ctx, func(q sqlx.ExtContext) error {
		study, err := s.studies.Get(ctx, q, id)
		if err != nil {
			return err
		}
		if study == nil {
			return appErrors.Clone(appErrors.ErrNotFound, "study not found")
		}
		count, err := s.releases.CountByStudy(ctx, q, id)
		if err != nil {
			return err
		}
		if count > 0 {
			sample, err := s.releases.SampleLabelsByStudy(ctx, q, id, conflictSampleSize)
			if err != nil {
				return err
			}
			result.Rejected = true
			result.ConflictCount = count
			result.ConflictSample = sample
			return nil
		}
		if _, err := s.studies.Delete(ctx, q, id); err != nil {
			return err
		}
		return s.audit.Record(ctx, q, dto.EntityStudy, id, models.AuditActionDelete, actor.ActorID(), DeletedPayload{Deleted: study})
	})
	if err != nil {
		return nil, err
	}
	if !result.Rejected {
		s.metrics.MutationCommitted(dto.EntityStudy, models.AuditActionDelete)
		s.hub.Publish(realtime.Event{Type: "study_deleted", Scope: realtime.ScopeGlobal, Data: map[string]string{"id": id}})
	}
	return result, nil
}

func (s *DeleteService) deleteRelease(ctx context.Context, id string, actor *models.JWTClaims) (*dto.DeleteResult, error) {
	result := &dto.DeleteResult{}
	var studyID string
	err := s.runner.RunInTx(ctx, func(q sqlx.ExtContext) error {
		release, err := s.releases.Get(ctx, q, id)
		if err != nil {
			return err
		}
		if release == nil {
			return appErrors.Clone(appErrors.ErrNotFound, "database release not found")
		}
		studyID = release.StudyID
		count, err := s.efforts.CountByRelease(ctx, q, id)
		if err != nil {
			return err
		}
		if count > 0 {
			sample, err := s.efforts.SampleLabelsByRelease(ctx, q, id, conflictSampleSize)
			if err != nil {
				return err
			}
			result.Rejected = true
			result.ConflictCount = count
			result.ConflictSample = sample
			return nil
		}
		if _, err := s.releases.Delete(ctx, q, id); err != nil {
			return err
		}
		return s.audit.Record(ctx, q, dto.EntityDatabaseRelease, id, models.AuditActionDelete, actor.ActorID(), DeletedPayload{Deleted: release})
	})
	if err != nil {
		return nil, err
	}
	if !result.Rejected {
		s.metrics.MutationCommitted(dto.EntityDatabaseRelease, models.AuditActionDelete)
		s.hub.Publish(realtime.Event{Type: "database_release_deleted", Scope: realtime.StudyScope(studyID), Data: map[string]string{"id": id}})
	}
	return result, nil
}

// deleteEffort removes an effort and its whole subtree. Children are
// removed leaves-first so no foreign key is ever dangling mid-flight:
// comments, then trackers, then item details and items, then the
// effort row itself.
func (s *DeleteService) deleteEffort(ctx context.Context, id string, actor *models.JWTClaims) (*dto.DeleteResult, error) {
	result := &dto.DeleteResult{Cascaded: map[string]int{}}
	var studyID string
	err := s.runner.RunInTx(ctx, func(q sqlx.ExtContext) error {
		effort, err := s.efforts.Get(ctx, q, id)
		if err != nil {
			return err
		}
		if effort == nil {
			return appErrors.Clone(appErrors.ErrNotFound, "reporting effort not found")
		}
		studyID = effort.StudyID

		comments, err := s.comments.DeleteByEffort(ctx, q, id)
		if err != nil {
			return err
		}
		trackers, err := s.trackers.DeleteByEffort(ctx, q, id)
		if err != nil {
			return err
		}
		items, err := s.items.DeleteByEffort(ctx, q, id)
		if err != nil {
			return err
		}
		if _, err := s.efforts.Delete(ctx, q, id); err != nil {
			return err
		}

		result.Cascaded[dto.EntityComment] = int(comments)
		result.Cascaded[dto.EntityTracker] = int(trackers)
		result.Cascaded[dto.EntityItem] = int(items)
		return s.audit.Record(ctx, q, dto.EntityReportingEffort, id, models.AuditActionDelete, actor.ActorID(), DeletedPayload{Deleted: effort, Cascaded: result.Cascaded})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.MutationCommitted(dto.EntityReportingEffort, models.AuditActionDelete)
	s.invalidateEffortCache(ctx, id)
	s.hub.Publish(realtime.Event{Type: "reporting_effort_deleted", Scope: realtime.StudyScope(studyID), Data: map[string]string{"id": id}})
	return result, nil
}

func (s *DeleteService) deleteItem(ctx context.Context, id string, actor *models.JWTClaims) (*dto.DeleteResult, error) {
	result := &dto.DeleteResult{Cascaded: map[string]int{}}
	var effortID string
	err := s.runner.RunInTx(ctx, func(q sqlx.ExtContext) error {
		item, err := s.items.Get(ctx, q, id)
		if err != nil {
			return err
		}
		if item == nil {
			return appErrors.Clone(appErrors.ErrNotFound, "reporting effort item not found")
		}
		effortID = item.ReportingEffortID

		tracker, err := s.trackers.GetByItemID(ctx, q, id)
		if err != nil {
			return err
		}
		var comments int64
		if tracker != nil {
			comments, err = s.comments.DeleteByTracker(ctx, q, tracker.ID)
			if err != nil {
				return err
			}
		}
		trackers, err := s.trackers.DeleteByItem(ctx, q, id)
		if err != nil {
			return err
		}
		if err := s.items.DeleteDetailsByItem(ctx, q, id); err != nil {
			return err
		}
		if _, err := s.items.DeleteByID(ctx, q, id); err != nil {
			return err
		}

		result.Cascaded[dto.EntityComment] = int(comments)
		result.Cascaded[dto.EntityTracker] = int(trackers)
		return s.audit.Record(ctx, q, dto.EntityItem, id, models.AuditActionDelete, actor.ActorID(), DeletedPayload{Deleted: item, Cascaded: result.Cascaded})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.MutationCommitted(dto.EntityItem, models.AuditActionDelete)
	s.invalidateEffortCache(ctx, effortID)
	s.hub.Publish(realtime.Event{Type: "reporting_effort_item_deleted", Scope: realtime.EffortScope(effortID), Data: map[string]string{"id": id}})
	return result, nil
}

func (s *DeleteService) deletePackage(ctx context.Context, id string, actor *models.JWTClaims) (*dto.DeleteResult, error) {
	result := &dto.DeleteResult{}
	err := s.runner.RunInTx(ctx, func(q sqlx.ExtContext) error {
		pkg, err := s.packages.Get(ctx, q, id)
		if err != nil {
			return err
		}
		if pkg == nil {
			return appErrors.Clone(appErrors.ErrNotFound, "package not found")
		}
		count, err := s.packages.CountItems(ctx, q, id)
		if err != nil {
			return err
		}
		if count > 0 {
			sample, err := s.packages.SampleItemCodes(ctx, q, id, conflictSampleSize)
			if err != nil {
				return err
			}
			result.Rejected = true
			result.ConflictCount = count
			result.ConflictSample = sample
			return nil
		}
		if _, err := s.packages.Delete(ctx, q, id); err != nil {
			return err
		}
		return s.audit.Record(ctx, q, dto.EntityPackage, id, models.AuditActionDelete, actor.ActorID(), DeletedPayload{Deleted: pkg})
	})
	if err != nil {
		return nil, err
	}
	if !result.Rejected {
		s.metrics.MutationCommitted(dto.EntityPackage, models.AuditActionDelete)
		s.hub.Publish(realtime.Event{Type: "package_deleted", Scope: realtime.ScopeGlobal, Data: map[string]string{"id": id}})
	}
	return result, nil
}

func (s *DeleteService) deletePackageItem(ctx context.Context, id string, actor *models.JWTClaims) (*dto.DeleteResult, error) {
	result := &dto.DeleteResult{}
	err := s.runner.RunInTx(ctx, func(q sqlx.ExtContext) error {
		item, err := s.packages.GetItem(ctx, q, id)
		if err != nil {
			return err
		}
		if item == nil {
			return appErrors.Clone(appErrors.ErrNotFound, "package item not found")
		}
		if _, err := s.packages.DeleteItem(ctx, q, id); err != nil {
			return err
		}
		return s.audit.Record(ctx, q, dto.EntityPackageItem, id, models.AuditActionDelete, actor.ActorID(), DeletedPayload{Deleted: item})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.MutationCommitted(dto.EntityPackageItem, models.AuditActionDelete)
	s.hub.Publish(realtime.Event{Type: "package_item_deleted", Scope: realtime.ScopeGlobal, Data: map[string]string{"id": id}})
	return result, nil
}

// deleteTextElement removes a dictionary entry. Item detail rows that
// referenced it fall back to null through the schema's SET NULL
// foreign keys, so no application-side sweep is needed.
func (s *DeleteService) deleteTextElement(ctx context.Context, id string, actor *models.JWTClaims) (*dto.DeleteResult, error) {
	result := &dto.DeleteResult{}
	err := s.runner.RunInTx(ctx, func(q sqlx.ExtContext) error {
		element, err := s.textElements.Get(ctx, q, id)
		if err != nil {
			return err
		}
		if element == nil {
			return appErrors.Clone(appErrors.ErrNotFound, "text element not found")
		}
		if _, err := s.textElements.Delete(ctx, q, id); err != nil {
			return err
		}
		return s.audit.Record(ctx, q, dto.EntityTextElement, id, models.AuditActionDelete, actor.ActorID(), DeletedPayload{Deleted: element})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.MutationCommitted(dto.EntityTextElement, models.AuditActionDelete)
	s.hub.Publish(realtime.Event{Type: "text_element_deleted", Scope: realtime.ScopeGlobal, Data: map[string]string{"id": id}})
	return result, nil
}

// deleteUser restricts on authored comments (they are work product),
// detaches tracker assignments, and leaves historical audit rows to
// the schema's SET NULL actor key.
func (s *DeleteService) deleteUser(ctx context.Context, id string, actor *models.JWTClaims) (*dto.DeleteResult, error) {
	result := &dto.DeleteResult{}
	err := s.runner.RunInTx(ctx, func(q sqlx.ExtContext) error {
		user, err := s.users.Get(ctx, q, id)
		if err != nil {
			return err
		}
		if user == nil {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		count, err := s.comments.CountByAuthor(ctx, q, id)
		if err != nil {
			return err
		}
		if count > 0 {
			result.Rejected = true
			result.ConflictCount = count
			result.ConflictSample = []string{"authored comments"}
			return nil
		}
		detached, err := s.trackers.NullifyAssignee(ctx, q, id)
		if err != nil {
			return err
		}
		if detached > 0 {
			result.Cascaded = map[string]int{"tracker_assignments": int(detached)}
		}
		if _, err := s.users.Delete(ctx, q, id); err != nil {
			return err
		}
		return s.audit.Record(ctx, q, dto.EntityUser, id, models.AuditActionDelete, actor.ActorID(), DeletedPayload{Deleted: user, Cascaded: result.Cascaded})
	})
	if err != nil {
		return nil, err
	}
	if !result.Rejected {
		s.metrics.MutationCommitted(dto.EntityUser, models.AuditActionDelete)
		s.hub.Publish(realtime.Event{Type: "user_deleted", Scope: realtime.ScopeGlobal, Data: map[string]string{"id": id}})
	}
	return result, nil
}

func (s *DeleteService) invalidateEffortCache(ctx context.Context, effortID string) {
	if err := s.cache.DeleteByPattern(ctx, trackerCachePattern(effortID)); err != nil {
		s.logger.Warn("failed to invalidate tracker cache", zap.String("effort_id", effortID), zap.Error(err))
	}
}
