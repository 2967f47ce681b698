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

type packageRepository interface {
	List(ctx context.Context) ([]models.Package, error)
	FindByID(ctx context.Context, id string) (*models.Package, error)
	Get(ctx context.Context, q sqlx.ExtContext, id string) (*models.Package, error)
	LabelExists(ctx context.Context, q sqlx.ExtContext, label, excludeID string) (bool, error)
	Insert(ctx context.Context, q sqlx.ExtContext, pkg *models.Package) error
	Update(ctx context.Context, q sqlx.ExtContext, pkg *models.Package) error
	ListItems(ctx context.Context, packageID string) ([]models.PackageItem, error)
	FindItemByID(ctx context.Context, id string) (*models.PackageItem, error)
	ItemKeyExists(ctx context.Context, q sqlx.ExtContext, packageID string, key models.ItemKey) (bool, error)
	InsertItem(ctx context.Context, q sqlx.ExtContext, item *models.PackageItem) error
	UpsertItemTLFDetail(ctx context.Context, q sqlx.ExtContext, d *models.TLFDetail) error
	UpsertItemDatasetDetail(ctx context.Context, q sqlx.ExtContext, d *models.DatasetDetail) error
}

// PackageService manages reusable item template packages.
type PackageService struct {
	runner  database.Runner
	repo    packageRepository
	audit   auditRecorder
	hub     broadcaster
	metrics mutationMetrics
	logger  *zap.Logger
}

// NewPackageService constructs a PackageService.
func NewPackageService(runner database.Runner, repo packageRepository, audit auditRecorder, hub broadcaster, metrics mutationMetrics, logger *zap.Logger) *PackageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PackageService{runner: runner, repo: repo, audit: audit, hub: hub, metrics: metrics, logger: logger}
}

// List returns all packages.
func (s *PackageService) List(ctx context.Context) ([]models.Package, error) {
	return s.repo.List(ctx)
}

// GetByID returns one package.
func (s *PackageService) GetByID(ctx context.Context, id string) (*models.Package, error) {
	pkg, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "package not found")
	}
	return pkg, nil
}

// ListItems returns the package's template items with details.
func (s *PackageService) ListItems(ctx context.Context, packageID string) ([]models.PackageItem, error) {
	return s.repo.ListItems(ctx, packageID)
}

// GetItemByID returns one template item.
func (s *PackageService) GetItemByID(ctx context.Context, id string) (*models.PackageItem, error) {
	item, err := s.repo.FindItemByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "package item not found")
	}
	return item, nil
}

// Create adds a package. Labels are globally unique.
func (s *PackageService) Create(ctx context.Context, req dto.CreatePackageRequest, actor *models.JWTClaims) (*models.Package, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	pkg := &models.Package{
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
			return appErrors.Clone(appErrors.ErrConflict, "a package with this label already exists")
		}
		if err := s.repo.Insert(ctx, q, pkg); err != nil {
			return err
		}
		return s.audit.Record(ctx, q, dto.EntityPackage, pkg.ID, models.AuditActionCreate, actor.ActorID(), CreatedPayload{Created: pkg})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.MutationCommitted(dto.EntityPackage, models.AuditActionCreate)
	s.hub.Publish(realtime.Event{Type: "package_created", Scope: realtime.ScopeGlobal, Data: pkg})
	return pkg, nil
}

// Update patches mutable package fields.
func (s *PackageService) Update(ctx context.Context, id string, req dto.UpdatePackageRequest, actor *models.JWTClaims) (*models.Package, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	var updated *models.Package
	err := s.runner.RunInTx(ctx, func(q sqlx.ExtContext) error {
		pkg, err := s.repo.Get(ctx, q, id)
		if err != nil {
			return err
		}
		if pkg == nil {
			return appErrors.Clone(appErrors.ErrNotFound, "package not found")
		}
		before := *pkg

		if req.Label != nil && *req.Label != pkg.Label {
			exists, err := s.repo.LabelExists(ctx, q, *req.Label, id)
			if err != nil {
				return err
			}
			if exists {
				return appErrors.Clone(appErrors.ErrConflict, "a package with this label already exists")
			}
			pkg.Label = *req.Label
		}
		if req.Description != nil {
			pkg.Description = req.Description
		}
		pkg.UpdatedAt = time.Now().UTC()

		if err := s.repo.Update(ctx, q, pkg); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, q, dto.EntityPackage, pkg.ID, models.AuditActionUpdate, actor.ActorID(), UpdatedPayload{Before: before, After: pkg}); err != nil {
			return err
		}
		updated = pkg
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.MutationCommitted(dto.EntityPackage, models.AuditActionUpdate)
	s.hub.Publish(realtime.Event{Type: "package_updated", Scope: realtime.ScopeGlobal, Data: updated})
	return updated, nil
}

// AddItem adds a template item to a package. The natural key must be
// free within the package; exactly one detail payload is required.
func (s *PackageService) AddItem(ctx context.Context, req dto.CreatePackageItemRequest, actor *models.JWTClaims) (*models.PackageItem, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if err := checkDetailPayload(models.ItemType(req.ItemType), req.TLFDetail, req.DatasetDetail); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	item := &models.PackageItem{
		ID:          uuid.NewString(),
		PackageID:   req.PackageID,
		ItemType:    models.ItemType(req.ItemType),
		ItemSubtype: req.ItemSubtype,
		ItemCode:    req.ItemCode,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.runner.RunInTx(ctx, func(q sqlx.ExtContext) error {
		pkg, err := s.repo.Get(ctx, q, req.PackageID)
		if err != nil {
			return err
		}
		if pkg == nil {
			return appErrors.Clone(appErrors.ErrNotFound, "package not found")
		}
		exists, err := s.repo.ItemKeyExists(ctx, q, req.PackageID, item.Key())
		if err != nil {
			return err
		}
		if exists {
			return appErrors.Clone(appErrors.ErrConflict, "an item with this type, subtype and code already exists in the package")
		}
		if err := s.repo.InsertItem(ctx, q, item); err != nil {
			return err
		}
		if err := s.applyItemDetails(ctx, q, item, req.TLFDetail, req.DatasetDetail); err != nil {
			return err
		}
		return s.audit.Record(ctx, q, dto.EntityPackageItem, item.ID, models.AuditActionCreate, actor.ActorID(), CreatedPayload{Created: item})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.MutationCommitted(dto.EntityPackageItem, models.AuditActionCreate)
	s.hub.Publish(realtime.Event{Type: "package_item_created", Scope: realtime.ScopeGlobal, Data: item})
	return item, nil
}

// UpdateItem replaces a template item's detail payload.
func (s *PackageService) UpdateItem(ctx context.Context, id string, req dto.UpdatePackageItemRequest, actor *models.JWTClaims) (*models.PackageItem, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	var updated *models.PackageItem
	err := s.runner.RunInTx(ctx, func(q sqlx.ExtContext) error {
		item, err := s.repo.FindItemByID(ctx, id)
		if err != nil {
			return err
		}
		if item == nil {
			return appErrors.Clone(appErrors.ErrNotFound, "package item not found")
		}
		if err := checkDetailPayload(item.ItemType, req.TLFDetail, req.DatasetDetail); err != nil {
			return err
		}
		before := *item

		item.UpdatedAt = time.Now().UTC()
		if err := s.applyItemDetails(ctx, q, item, req.TLFDetail, req.DatasetDetail); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, q, dto.EntityPackageItem, item.ID, models.AuditActionUpdate, actor.ActorID(), UpdatedPayload{Before: before, After: item}); err != nil {
			return err
		}
		updated = item
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.MutationCommitted(dto.EntityPackageItem, models.AuditActionUpdate)
	s.hub.Publish(realtime.Event{Type: "package_item_updated", Scope: realtime.ScopeGlobal, Data: updated})
	return updated, nil
}

func (s *PackageService) applyItemDetails(ctx context.Context, q sqlx.ExtContext, item *models.PackageItem, tlf *dto.TLFDetailPayload, dataset *dto.DatasetDetailPayload) error {
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
		if err := s.repo.UpsertItemTLFDetail(ctx, q, detail); err != nil {
			return err
		}
		item.TLFDetail = detail
	case dataset != nil:
		detail := &models.DatasetDetail{
			ItemID:    item.ID,
			Label:     dataset.Label,
			Structure: dataset.Structure,
		}
		if err := s.repo.UpsertItemDatasetDetail(ctx, q, detail); err != nil {
			return err
		}
		item.DatasetDetail = detail
	}
	return nil
}
