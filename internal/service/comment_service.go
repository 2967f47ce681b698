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

type commentRepository interface {
	ListByTracker(ctx context.Context, trackerID string) ([]models.Comment, error)
	Get(ctx context.Context, q sqlx.ExtContext, id string) (*models.Comment, error)
	Insert(ctx context.Context, q sqlx.ExtContext, comment *models.Comment) error
	SetResolved(ctx context.Context, q sqlx.ExtContext, id string, resolved bool, resolvedBy *string, at time.Time) error
	SoftDelete(ctx context.Context, q sqlx.ExtContext, id string, at time.Time) error
}

type commentTrackerAccess interface {
	Get(ctx context.Context, q sqlx.ExtContext, id string) (*models.Tracker, error)
	AdjustUnresolvedCount(ctx context.Context, q sqlx.ExtContext, trackerID string, delta int) (int, error)
	ClampUnresolvedCount(ctx context.Context, q sqlx.ExtContext, trackerID string) error
}

type commentItemReader interface {
	Get(ctx context.Context, q sqlx.ExtContext, id string) (*models.ReportingEffortItem, error)
}

// CommentService manages threaded tracker comments and maintains each
// tracker's unresolved counter incrementally. Every transition that
// changes whether a comment counts as unresolved adjusts the counter
// by exactly one in the same transaction; nothing ever recounts.
type CommentService struct {
	runner   database.Runner
	repo     commentRepository
	trackers commentTrackerAccess
	items    commentItemReader
	audit    auditRecorder
	hub      broadcaster
	cache    cacheInvalidator
	metrics  mutationMetrics
	logger   *zap.Logger
}

// NewCommentService constructs a CommentService.
func NewCommentService(runner database.Runner, repo commentRepository, trackers commentTrackerAccess, items commentItemReader, audit auditRecorder, hub broadcaster, cache cacheInvalidator, metrics mutationMetrics, logger *zap.Logger) *CommentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommentService{runner: runner, repo: repo, trackers: trackers, items: items, audit: audit, hub: hub, cache: cache, metrics: metrics, logger: logger}
}

// ListThread returns the tracker's comments as nested threads. The
// flat rows come back ordered by creation time, so children always
// follow their parents.
func (s *CommentService) ListThread(ctx context.Context, trackerID string) ([]dto.CommentThread, error) {
	comments, err := s.repo.ListByTracker(ctx, trackerID)
	if err != nil {
		return nil, err
	}
	return buildThreads(comments), nil
}

// Create posts a comment or reply. A new comment is always unresolved,
// so the tracker counter goes up by one.
func (s *CommentService) Create(ctx context.Context, req dto.CreateCommentRequest, actor *models.JWTClaims) (*models.Comment, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if actor == nil || actor.UserID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "posting a comment requires an authenticated user")
	}

	now := time.Now().UTC()
	comment := &models.Comment{
		ID:              uuid.NewString(),
		TrackerID:       req.TrackerID,
		UserID:          actor.UserID,
		ParentCommentID: req.ParentCommentID,
		Body:            req.Body,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var effortID string
	err := s.runner.RunInTx(ctx, func(q sqlx.ExtContext) error {
		tracker, err := s.trackers.Get(ctx, q, req.TrackerID)
		if err != nil {
			return err
		}
		if tracker == nil {
			return appErrors.Clone(appErrors.ErrNotFound, "tracker not found")
		}
		effortID, err = s.effortOf(ctx, q, tracker)
		if err != nil {
			return err
		}
		if req.ParentCommentID != nil {
			parent, err := s.repo.Get(ctx, q, *req.ParentCommentID)
			if err != nil {
				return err
			}
			if parent == nil || parent.TrackerID != req.TrackerID {
				return appErrors.Clone(appErrors.ErrValidation, "parent comment does not exist on this tracker")
			}
		}
		if err := s.repo.Insert(ctx, q, comment); err != nil {
			return err
		}
		if err := s.adjustCounter(ctx, q, req.TrackerID, +1); err != nil {
			return err
		}
		return s.audit.Record(ctx, q, dto.EntityComment, comment.ID, models.AuditActionCreate, actor.ActorID(), CreatedPayload{Created: comment})
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, models.AuditActionCreate, effortID, "comment_created", comment)
	return comment, nil
}

// Resolve marks a comment resolved and decrements the counter.
// Resolving an already-resolved comment is a conflict, not a no-op, so
// double submissions surface instead of silently double-decrementing.
func (s *CommentService) Resolve(ctx context.Context, id string, actor *models.JWTClaims) (*models.Comment, error) {
	return s.setResolved(ctx, id, true, actor)
}

// Unresolve reopens a resolved comment and increments the counter.
func (s *CommentService) Unresolve(ctx context.Context, id string, actor *models.JWTClaims) (*models.Comment, error) {
	return s.setResolved(ctx, id, false, actor)
}

func (s *CommentService) setResolved(ctx context.Context, id string, resolved bool, actor *models.JWTClaims) (*models.Comment, error) {
	var result *models.Comment
	var effortID string
	err := s.runner.RunInTx(ctx, func(q sqlx.ExtContext) error {
		comment, err := s.repo.Get(ctx, q, id)
		if err != nil {
			return err
		}
		if comment == nil {
			return appErrors.Clone(appErrors.ErrNotFound, "comment not found")
		}
		if comment.IsDeleted {
			return appErrors.Clone(appErrors.ErrValidation, "comment has been deleted")
		}
		if comment.IsResolved == resolved {
			if resolved {
				return appErrors.Clone(appErrors.ErrConflict, "comment is already resolved")
			}
			return appErrors.Clone(appErrors.ErrConflict, "comment is not resolved")
		}
		tracker, err := s.trackers.Get(ctx, q, comment.TrackerID)
		if err != nil {
			return err
		}
		if tracker == nil {
			return appErrors.Clone(appErrors.ErrNotFound, "tracker not found")
		}
		effortID, err = s.effortOf(ctx, q, tracker)
		if err != nil {
			return err
		}
		before := *comment

		now := time.Now().UTC()
		var resolvedBy *string
		if resolved {
			resolvedBy = actor.ActorID()
			comment.ResolvedAt = &now
		} else {
			comment.ResolvedAt = nil
		}
		comment.IsResolved = resolved
		comment.ResolvedByUserID = resolvedBy
		comment.UpdatedAt = now

		if err := s.repo.SetResolved(ctx, q, id, resolved, resolvedBy, now); err != nil {
			return err
		}
		delta := -1
		if !resolved {
			delta = +1
		}
		if err := s.adjustCounter(ctx, q, comment.TrackerID, delta); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, q, dto.EntityComment, comment.ID, models.AuditActionUpdate, actor.ActorID(), UpdatedPayload{Before: before, After: comment}); err != nil {
			return err
		}
		result = comment
		return nil
	})
	if err != nil {
		return nil, err
	}

	eventType := "comment_resolved"
	if !resolved {
		eventType = "comment_unresolved"
	}
	s.committed(ctx, models.AuditActionUpdate, effortID, eventType, result)
	return result, nil
}

// SoftDelete hides a comment while preserving thread structure. The
// counter only moves when the comment was counting as unresolved;
// deleting an already-resolved comment leaves it untouched.
func (s *CommentService) SoftDelete(ctx context.Context, id string, actor *models.JWTClaims) error {
	var effortID string
	err := s.runner.RunInTx(ctx, func(q sqlx.ExtContext) error {
		comment, err := s.repo.Get(ctx, q, id)
		if err != nil {
			return err
		}
		if comment == nil {
			return appErrors.Clone(appErrors.ErrNotFound, "comment not found")
		}
		if comment.IsDeleted {
			return appErrors.Clone(appErrors.ErrConflict, "comment is already deleted")
		}
		tracker, err := s.trackers.Get(ctx, q, comment.TrackerID)
		if err != nil {
			return err
		}
		if tracker == nil {
			return appErrors.Clone(appErrors.ErrNotFound, "tracker not found")
		}
		effortID, err = s.effortOf(ctx, q, tracker)
		if err != nil {
			return err
		}

		if err := s.repo.SoftDelete(ctx, q, id, time.Now().UTC()); err != nil {
			return err
		}
		if comment.CountsAsUnresolved() {
			if err := s.adjustCounter(ctx, q, comment.TrackerID, -1); err != nil {
				return err
			}
		}
		return s.audit.Record(ctx, q, dto.EntityComment, comment.ID, models.AuditActionDelete, actor.ActorID(), DeletedPayload{Deleted: comment})
	})
	if err != nil {
		return err
	}

	s.committed(ctx, models.AuditActionDelete, effortID, "comment_deleted", map[string]string{"comment_id": id})
	return nil
}

// adjustCounter applies one increment or decrement. A resulting
// negative count means the transition bookkeeping has a defect
// somewhere; the counter is clamped to zero and the signal recorded,
// but the user's operation still goes through.
func (s *CommentService) adjustCounter(ctx context.Context, q sqlx.ExtContext, trackerID string, delta int) error {
	count, err := s.trackers.AdjustUnresolvedCount(ctx, q, trackerID, delta)
	if err != nil {
		return err
	}
	if count < 0 {
		s.logger.Error("unresolved comment counter went negative, clamping",
			zap.String("tracker_id", trackerID),
			zap.Int("count", count),
			zap.Int("delta", delta))
		s.metrics.CounterClamped()
		return s.trackers.ClampUnresolvedCount(ctx, q, trackerID)
	}
	return nil
}

func (s *CommentService) effortOf(ctx context.Context, q sqlx.ExtContext, tracker *models.Tracker) (string, error) {
	item, err := s.items.Get(ctx, q, tracker.ReportingEffortItemID)
	if err != nil {
		return "", err
	}
	if item == nil {
		return "", appErrors.Clone(appErrors.ErrNotFound, "reporting effort item not found")
	}
	return item.ReportingEffortID, nil
}

func (s *CommentService) committed(ctx context.Context, action, effortID, eventType string, data interface{}) {
	s.metrics.MutationCommitted(dto.EntityComment, action)
	if err := s.cache.DeleteByPattern(ctx, trackerCachePattern(effortID)); err != nil {
		s.logger.Warn("failed to invalidate tracker cache", zap.String("effort_id", effortID), zap.Error(err))
	}
	s.hub.Publish(realtime.Event{Type: eventType, Scope: realtime.EffortScope(effortID), Data: data})
}

// buildThreads reconstructs the reply tree from flat rows.
func buildThreads(comments []models.Comment) []dto.CommentThread {
	nodes := make(map[string]*dto.CommentThread, len(comments))
	order := make([]string, 0, len(comments))
	for _, c := range comments {
		nodes[c.ID] = &dto.CommentThread{
			CommentID:        c.ID,
			UserID:           c.UserID,
			Body:             c.Body,
			IsResolved:       c.IsResolved,
			ResolvedByUserID: c.ResolvedByUserID,
			IsDeleted:        c.IsDeleted,
			CreatedAt:        c.CreatedAt.UTC().Format(time.RFC3339),
		}
		order = append(order, c.ID)
	}

	roots := make([]dto.CommentThread, 0)
	// Attach children depth-first from the tail so each node's replies
	// are complete before the node itself is appended to its parent.
	for i := len(order) - 1; i >= 0; i-- {
		c := comments[i]
		node := nodes[c.ID]
		if c.ParentCommentID == nil {
			continue
		}
		parent, ok := nodes[*c.ParentCommentID]
		if !ok {
			continue
		}
		parent.Replies = append([]dto.CommentThread{*node}, parent.Replies...)
	}
	for _, c := range comments {
		if c.ParentCommentID == nil {
			roots = append(roots, *nodes[c.ID])
		}
	}
	return roots
}
