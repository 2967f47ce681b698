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

const (
	skipReasonDuplicate = "Duplicate item already exists"
	skipReasonNotFound  = "item not found in source"
)

type copyItemAccess interface {
	NaturalKeySet(ctx context.Context, q sqlx.ExtContext, effortID string) (map[models.ItemKey]struct{}, error)
	ListByEffortTx(ctx context.Context, q sqlx.ExtContext, effortID string) ([]models.ReportingEffortItem, error)
	Insert(ctx context.Context, q sqlx.ExtContext, item *models.ReportingEffortItem) error
	UpsertTLFDetail(ctx context.Context, q sqlx.ExtContext, d *models.TLFDetail) error
	UpsertDatasetDetail(ctx context.Context, q sqlx.ExtContext, d *models.DatasetDetail) error
}

type copyEffortReader interface {
	Get(ctx context.Context, q sqlx.ExtContext, id string) (*models.ReportingEffort, error)
}

type copyPackageAccess interface {
	Get(ctx context.Context, q sqlx.ExtContext, id string) (*models.Package, error)
	ListItemsTx(ctx context.Context, q sqlx.ExtContext, packageID string) ([]models.PackageItem, error)
}

type copyTrackerWriter interface {
	Insert(ctx context.Context, q sqlx.ExtContext, tracker *models.Tracker) error
}

// candidate is one source item normalized across the two source kinds.
type candidate struct {
	sourceItemID  string
	key           models.ItemKey
	tlfDetail     *models.TLFDetail
	datasetDetail *models.DatasetDetail
}

// CopyService copies items from a package or another reporting effort
// into a target effort. The whole copy is one transaction and one
// audit entry; items whose natural key already exists in the target
// are skipped with a reason rather than failing the batch, which makes
// re-running the same copy a clean no-op.
type CopyService struct {
	runner   database.Runner
	items    copyItemAccess
	efforts  copyEffortReader
	packages copyPackageAccess
	trackers copyTrackerWriter
	audit    auditRecorder
	hub      broadcaster
	cache    cacheInvalidator
	metrics  mutationMetrics
	logger   *zap.Logger
}

// NewCopyService constructs a CopyService.
func NewCopyService(runner database.Runner, items copyItemAccess, efforts copyEffortReader, packages copyPackageAccess, trackers copyTrackerWriter, audit auditRecorder, hub broadcaster, cache cacheInvalidator, metrics mutationMetrics, logger *zap.Logger) *CopyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CopyService{runner: runner, items: items, efforts: efforts, packages: packages, trackers: trackers, audit: audit, hub: hub, cache: cache, metrics: metrics, logger: logger}
}

// CopyItems runs one copy operation and returns its report.
func (s *CopyService) CopyItems(ctx context.Context, req dto.CopyItemsRequest, actor *models.JWTClaims) (*dto.CopyReport, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if req.SourceKind == dto.CopySourceReportingEffort && req.SourceID == req.TargetReportingEffortID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "source and target reporting effort are the same")
	}

	report := &dto.CopyReport{
		SourceKind:   req.SourceKind,
		SourceID:     req.SourceID,
		TargetID:     req.TargetReportingEffortID,
		CreatedIDs:   []string{},
		SkippedItems: []dto.SkippedItem{},
	}

	err := s.runner.RunInTx(ctx, func(q sqlx.ExtContext) error {
		target, err := s.efforts.Get(ctx, q, req.TargetReportingEffortID)
		if err != nil {
			return err
		}
		if target == nil {
			return appErrors.Clone(appErrors.ErrNotFound, "target reporting effort not found")
		}

		candidates, err := s.loadSource(ctx, q, req)
		if err != nil {
			return err
		}
		candidates, skipped := filterRequested(candidates, req.ItemIDs)
		report.SkippedItems = append(report.SkippedItems, skipped...)
		report.Attempted = len(candidates) + len(skipped)

		// One snapshot of the target's keys up front; items created in
		// this batch extend it so in-batch duplicates are caught too.
		existing, err := s.items.NaturalKeySet(ctx, q, req.TargetReportingEffortID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		sourceType := models.SourceType(req.SourceKind)
		for _, c := range candidates {
			if _, dup := existing[c.key]; dup {
				report.SkippedItems = append(report.SkippedItems, dto.SkippedItem{
					ItemCode:    c.key.Code,
					ItemType:    string(c.key.Type),
					ItemSubtype: c.key.Subtype,
					Reason:      skipReasonDuplicate,
				})
				continue
			}
			sourceID := req.SourceID
			sourceItemID := c.sourceItemID
			item := &models.ReportingEffortItem{
				ID:                uuid.NewString(),
				ReportingEffortID: req.TargetReportingEffortID,
				ItemType:          c.key.Type,
				ItemSubtype:       c.key.Subtype,
				ItemCode:          c.key.Code,
				SourceType:        &sourceType,
				SourceID:          &sourceID,
				SourceItemID:      &sourceItemID,
				CreatedAt:         now,
				UpdatedAt:         now,
			}
			if err := s.items.Insert(ctx, q, item); err != nil {
				return err
			}
			if err := s.copyDetails(ctx, q, item.ID, c); err != nil {
				return err
			}
			if err := s.trackers.Insert(ctx, q, newTracker(item.ID, now)); err != nil {
				return err
			}
			existing[c.key] = struct{}{}
			report.CreatedIDs = append(report.CreatedIDs, item.ID)
		}

		report.Created = len(report.CreatedIDs)
		report.Skipped = len(report.SkippedItems)
		return s.audit.Record(ctx, q, dto.EntityItem, req.TargetReportingEffortID, models.AuditActionCopy, actor.ActorID(), report)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.MutationCommitted(dto.EntityItem, models.AuditActionCopy)
	if err := s.cache.DeleteByPattern(ctx, trackerCachePattern(req.TargetReportingEffortID)); err != nil {
		s.logger.Warn("failed to invalidate tracker cache", zap.String("effort_id", req.TargetReportingEffortID), zap.Error(err))
	}
	s.hub.Publish(realtime.Event{Type: "reporting_effort_items_copied", Scope: realtime.EffortScope(req.TargetReportingEffortID), Data: report})
	return report, nil
}

func (s *CopyService) loadSource(ctx context.Context, q sqlx.ExtContext, req dto.CopyItemsRequest) ([]candidate, error) {
	switch req.SourceKind {
	case dto.CopySourcePackage:
		pkg, err := s.packages.Get(ctx, q, req.SourceID)
		if err != nil {
			return nil, err
		}
		if pkg == nil {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "source package not found")
		}
		items, err := s.packages.ListItemsTx(ctx, q, req.SourceID)
		if err != nil {
			return nil, err
		}
		candidates := make([]candidate, 0, len(items))
		for _, item := range items {
			candidates = append(candidates, candidate{
				sourceItemID:  item.ID,
				key:           item.Key(),
				tlfDetail:     item.TLFDetail,
				datasetDetail: item.DatasetDetail,
			})
		}
		return candidates, nil
	case dto.CopySourceReportingEffort:
		effort, err := s.efforts.Get(ctx, q, req.SourceID)
		if err != nil {
			return nil, err
		}
		if effort == nil {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "source reporting effort not found")
		}
		items, err := s.items.ListByEffortTx(ctx, q, req.SourceID)
		if err != nil {
			return nil, err
		}
		candidates := make([]candidate, 0, len(items))
		for _, item := range items {
			candidates = append(candidates, candidate{
				sourceItemID:  item.ID,
				key:           item.Key(),
				tlfDetail:     item.TLFDetail,
				datasetDetail: item.DatasetDetail,
			})
		}
		return candidates, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown copy source kind")
	}
}

// copyDetails clones the source's detail row for the new item. Tracker
// state never travels with a copy; the new item starts clean.
func (s *CopyService) copyDetails(ctx context.Context, q sqlx.ExtContext, itemID string, c candidate) error {
	switch {
	case c.tlfDetail != nil:
		detail := *c.tlfDetail
		detail.ItemID = itemID
		return s.items.UpsertTLFDetail(ctx, q, &detail)
	case c.datasetDetail != nil:
		detail := *c.datasetDetail
		detail.ItemID = itemID
		return s.items.UpsertDatasetDetail(ctx, q, &detail)
	}
	return nil
}

// filterRequested narrows candidates to the requested ids. An empty
// request list selects everything; ids that are not in the source are
// reported as skipped rather than failing the copy.
func filterRequested(candidates []candidate, itemIDs []string) ([]candidate, []dto.SkippedItem) {
	if len(itemIDs) == 0 {
		return candidates, nil
	}
	byID := make(map[string]candidate, len(candidates))
	for _, c := range candidates {
		byID[c.sourceItemID] = c
	}
	selected := make([]candidate, 0, len(itemIDs))
	var skipped []dto.SkippedItem
	for _, id := range itemIDs {
		c, ok := byID[id]
		if !ok {
			skipped = append(skipped, dto.SkippedItem{
				ItemCode: id,
				Reason:   skipReasonNotFound,
			})
			continue
		}
		selected = append(selected, c)
	}
	return selected, skipped
}
