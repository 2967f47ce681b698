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

type itemRepository interface {
	ListByEffort(ctx context.Context, effortID string) ([]models.ReportingEffortItem, error)
	FindByID(ctx context.Context, id string) (*models.ReportingEffortItem, error)
	Get(ctx context.Context, q sqlx.ExtContext, id string) (*models.ReportingEffortItem, error)
	KeyExists(ctx context.Context, q sqlx.ExtContext, effortID string, key models.ItemKey) (bool, error)
	Insert(ctx context.Context, q sqlx.ExtContext, item *models.ReportingEffortItem) error
	UpsertTLFDetail(ctx context.Context, q sqlx.ExtContext, d *models.TLFDetail) error
	UpsertDatasetDetail(ctx context.Context, q sqlx.ExtContext, d *models.DatasetDetail) error
}

type itemEffortReader interface {
	Get(ctx context.Context, q sqlx.ExtContext, id string) (*models.ReportingEffort, error)
}

type itemTrackerWriter interface {
	Insert(ctx context.Context, q sqlx.ExtContext, tracker *models.Tracker) error
}

// ItemService manages reporting effort items and their detail rows.
// Every item gets exactly one tracker, created with it; the pair is a
// single logical mutation with a single audit entry.
type ItemService struct {
	runner   database.Runner
	repo     itemRepository
	efforts  itemEffortReader
	trackers itemTrackerWriter
	audit    auditRecorder
	hub      broadcaster
	cache    cacheInvalidator
	metrics  mutationMetrics
	logger   *zap.Logger
}

// NewItemService constructs an ItemService.
func NewItemService(runner database.Runner, repo itemRepository, efforts itemEffortReader, trackers itemTrackerWriter, audit auditRecorder, hub broadcaster, cache cacheInvalidator, metrics mutationMetrics, logger *zap.Logger) *ItemService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ItemService{runner: runner, repo: repo, efforts: efforts, trackers: trackers, audit: audit, hub: hub, cache: cache, metrics: metrics, logger: logger}
}

// ListByEffort returns the items of one effort with details attached.
func (s *ItemService) ListByEffort(ctx context.Context, effortID string) ([]models.ReportingEffortItem, error) {
	return s.repo.ListByEffort(ctx, effortID)
}

// GetByID returns one item with its detail row.
func (s *ItemService) GetByID(ctx context.Context, id string) (*models.ReportingEffortItem, error) {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "reporting effort item not found")
	}
	return item, nil
}

// Create adds an item to an effort along with its tracker. Exactly one
// detail payload must be present and it must match the item type; the
// natural key (type, subtype, code) must be free within the effort.
func (s *ItemService) Create(ctx context.Context, req dto.CreateItemRequest, actor *models.JWTClaims) (*models.ReportingEffortItem, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if err := checkDetailPayload(models.ItemType(req.ItemType), req.TLFDetail, req.DatasetDetail); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	source := models.SourceCustom
	item := &models.ReportingEffortItem{
		ID:                uuid.NewString(),
		ReportingEffortID: req.ReportingEffortID,
		ItemType:          models.ItemType(req.ItemType),
		ItemSubtype:       req.ItemSubtype,
		ItemCode:          req.ItemCode,
		SourceType:        &source,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	tracker := newTracker(item.ID, now)

	err := s.runner.RunInTx(ctx, func(q sqlx.ExtContext) error {
		effort, err := s.efforts.Get(ctx, q, req.ReportingEffortID)
		if err != nil {
			return err
		}
		if effort == nil {
			return appErrors.Clone(appErrors.ErrNotFound, "reporting effort not found")
		}
		exists, err := s.repo.KeyExists(ctx, q, req.ReportingEffortID, item.Key())
		if err != nil {
			return err
		}
		if exists {
			return appErrors.Clone(appErrors.ErrConflict, "an item with this type, subtype and code already exists in the effort")
		}
		if err := s.repo.Insert(ctx, q, item); err != nil {
			return err
		}
		if err := s.applyDetails(ctx, q, item, req.TLFDetail, req.DatasetDetail); err != nil {
			return err
		}
		if err := s.trackers.Insert(ctx, q, tracker); err != nil {
			return err
		}
		return s.audit.Record(ctx, q, dto.EntityItem, item.ID, models.AuditActionCreate, actor.ActorID(), CreatedPayload{Created: item})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.MutationCommitted(dto.EntityItem, models.AuditActionCreate)
	s.invalidateEffort(ctx, item.ReportingEffortID)
	s.hub.Publish(realtime.Event{Type: "reporting_effort_item_created", Scope: realtime.EffortScope(item.ReportingEffortID), Data: item})
	return item, nil
}

// Update replaces the item's detail associations. The natural key is
// immutable; callers delete and recreate to change it.
func (s *ItemService) Update(ctx context.Context, id string, req dto.UpdateItemRequest, actor *models.JWTClaims) (*models.ReportingEffortItem, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	var updated *models.ReportingEffortItem
	err := s.runner.RunInTx(ctx, func(q sqlx.ExtContext) error {
		item, err := s.repo.Get(ctx, q, id)
		if err != nil {
			return err
		}
		if item == nil {
			return appErrors.Clone(appErrors.ErrNotFound, "reporting effort item not found")
		}
		if err := checkDetailPayload(item.ItemType, req.TLFDetail, req.DatasetDetail); err != nil {
			return err
		}
		before := *item

		item.UpdatedAt = time.Now().UTC()
		if err := s.applyDetails(ctx, q, item, req.TLFDetail, req.DatasetDetail); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, q, dto.EntityItem, item.ID, models.AuditActionUpdate, actor.ActorID(), UpdatedPayload{Before: before, After: item}); err != nil {
			return err
		}
		updated = item
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.MutationCommitted(dto.EntityItem, models.AuditActionUpdate)
	s.invalidateEffort(ctx, updated.ReportingEffortID)
	s.hub.Publish(realtime.Event{Type: "reporting_effort_item_updated", Scope: realtime.EffortScope(updated.ReportingEffortID), Data: updated})
	return updated, nil
}

func (s *ItemService) applyDetails(ctx context.Context, q sqlx.ExtContext, item *models.ReportingEffortItem, tlf *dto.TLFDetailPayload, dataset *dto.DatasetDetailPayload) error {
	switch {
	case tlf != nil:
		detail := &models.TLFDetail{
			ItemID:          item.ID,
			TitleID:         tlf.TitleID,
			PopulationSetID: tlf.PopulationSetID,
			FootnoteSetID:   tlf.FootnoteSetID,
			AcronymSetID:    tlf.AcronymSetID,
			IchCategoryID:   tlf.IchCategoryID,
		}
		if err := s.repo.UpsertTLFDetail(ctx, q, detail); err != nil {
			return err
		}
		item.TLFDetail = detail
	case dataset != nil:
		detail := &models.DatasetDetail{
			ItemID:    item.ID,
			Label:     dataset.Label,
			Structure: dataset.Structure,
		}
		if err := s.repo.UpsertDatasetDetail(ctx, q, detail); err != nil {
			return err
		}
		item.DatasetDetail = detail
	}
	return nil
}

func (s *ItemService) invalidateEffort(ctx context.Context, effortID string) {
	if err := s.cache.DeleteByPattern(ctx, trackerCachePattern(effortID)); err != nil {
		s.logger.Warn("failed to invalidate tracker cache", zap.String("effort_id", effortID), zap.Error(err))
	}
}

// checkDetailPayload enforces the exactly-one-detail rule.
func checkDetailPayload(itemType models.ItemType, tlf *dto.TLFDetailPayload, dataset *dto.DatasetDetailPayload) error {
	if tlf != nil && dataset != nil {
		return appErrors.Clone(appErrors.ErrValidation, "an item carries either a TLF detail or a dataset detail, not both")
	}
	switch itemType {
	case models.ItemTypeTLF:
		if tlf == nil {
			return appErrors.Clone(appErrors.ErrValidation, "TLF items require a tlf_detail payload")
		}
	case models.ItemTypeDataset:
		if dataset == nil {
			return appErrors.Clone(appErrors.ErrValidation, "Dataset items require a dataset_detail payload")
		}
	}
	return nil
}

// newTracker builds the per-item workflow record in its initial state.
func newTracker(itemID string, now time.Time) *models.Tracker {
	return &models.Tracker{
		ID:                    uuid.NewString(),
		ReportingEffortItemID: itemID,
		ProductionStatus:      models.ProductionNotStarted,
		QCStatus:              models.QCNotStarted,
		Priority:              models.PriorityMedium,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}
