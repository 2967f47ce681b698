package service

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinsight/ctr-registry-api/internal/dto"
	"github.com/clinsight/ctr-registry-api/internal/models"
	appErrors "github.com/clinsight/ctr-registry-api/pkg/errors"
)

type stubCopyItems struct {
	targetKeys map[models.ItemKey]struct{}
	sourceRows []models.ReportingEffortItem
	inserted   []*models.ReportingEffortItem
	tlfDetails []*models.TLFDetail
	dsDetails  []*models.DatasetDetail
}

func (r *stubCopyItems) NaturalKeySet(_ context.Context, _ sqlx.ExtContext, _ string) (map[models.ItemKey]struct{}, error) {
	keys := make(map[models.ItemKey]struct{}, len(r.targetKeys))
	for k := range r.targetKeys {
		keys[k] = struct{}{}
	}
	return keys, nil
}

func (r *stubCopyItems) ListByEffortTx(_ context.Context, _ sqlx.ExtContext, _ string) ([]models.ReportingEffortItem, error) {
	return r.sourceRows, nil
}

func (r *stubCopyItems) Insert(_ context.Context, _ sqlx.ExtContext, item *models.ReportingEffortItem) error {
	r.inserted = append(r.inserted, item)
	return nil
}

func (r *stubCopyItems) UpsertTLFDetail(_ context.Context, _ sqlx.ExtContext, d *models.TLFDetail) error {
	r.tlfDetails = append(r.tlfDetails, d)
	return nil
}

func (r *stubCopyItems) UpsertDatasetDetail(_ context.Context, _ sqlx.ExtContext, d *models.DatasetDetail) error {
	r.dsDetails = append(r.dsDetails, d)
	return nil
}

type stubCopyEfforts struct {
	efforts map[string]*models.ReportingEffort
}

func (r *stubCopyEfforts) Get(_ context.Context, _ sqlx.ExtContext, id string) (*models.ReportingEffort, error) {
	return r.efforts[id], nil
}

type stubCopyPackages struct {
	pkg   *models.Package
	items []models.PackageItem
}

func (r *stubCopyPackages) Get(_ context.Context, _ sqlx.ExtContext, id string) (*models.Package, error) {
	if r.pkg == nil || r.pkg.ID != id {
		return nil, nil
	}
	return r.pkg, nil
}

func (r *stubCopyPackages) ListItemsTx(_ context.Context, _ sqlx.ExtContext, _ string) ([]models.PackageItem, error) {
	return r.items, nil
}

type stubCopyTrackers struct {
	inserted []*models.Tracker
}

func (r *stubCopyTrackers) Insert(_ context.Context, _ sqlx.ExtContext, tracker *models.Tracker) error {
	r.inserted = append(r.inserted, tracker)
	return nil
}

func packageFixture() (*stubCopyItems, *stubCopyEfforts, *stubCopyPackages, *stubCopyTrackers) {
	title := "te-1"
	items := &stubCopyItems{targetKeys: map[models.ItemKey]struct{}{}}
	efforts := &stubCopyEfforts{efforts: map[string]*models.ReportingEffort{
		uuidEffort: {ID: uuidEffort, StudyID: uuidStudy},
	}}
	packages := &stubCopyPackages{
		pkg: &models.Package{ID: uuidPackage, Label: "Safety Core"},
		items: []models.PackageItem{
			{ID: uuidPkgItem, PackageID: uuidPackage, ItemType: models.ItemTypeTLF, ItemSubtype: "Table", ItemCode: "14.1.1", TLFDetail: &models.TLFDetail{ItemID: uuidPkgItem, TitleID: &title}},
			{ID: uuidPkgItm2, PackageID: uuidPackage, ItemType: models.ItemTypeDataset, ItemSubtype: "ADaM", ItemCode: "ADSL", DatasetDetail: &models.DatasetDetail{ItemID: uuidPkgItm2, Label: "Subject-Level"}},
		},
	}
	return items, efforts, packages, &stubCopyTrackers{}
}

func newCopyService(runner *stubRunner, items *stubCopyItems, efforts *stubCopyEfforts, packages *stubCopyPackages, trackers *stubCopyTrackers, audit *stubAudit, hub *stubHub, cache *stubCache, metrics *stubMetrics) *CopyService {
	return NewCopyService(runner, items, efforts, packages, trackers, audit, hub, cache, metrics, nil)
}

func TestCopyFromPackageCreatesItemsAndTrackers(t *testing.T) {
	items, efforts, packages, trackers := packageFixture()
	audit, hub, cache, metrics := &stubAudit{}, &stubHub{}, &stubCache{}, &stubMetrics{}
	svc := newCopyService(&stubRunner{}, items, efforts, packages, trackers, audit, hub, cache, metrics)

	report, err := svc.CopyItems(context.Background(), dto.CopyItemsRequest{
		SourceKind:              dto.CopySourcePackage,
		SourceID:                uuidPackage,
		TargetReportingEffortID: uuidEffort,
	}, testActor())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 0, report.Skipped)
	require.Len(t, items.inserted, 2)
	require.Len(t, trackers.inserted, 2)
	require.Len(t, items.tlfDetails, 1)
	require.Len(t, items.dsDetails, 1)

	// Provenance points back at the package.
	first := items.inserted[0]
	require.NotNil(t, first.SourceType)
	assert.Equal(t, models.SourcePackage, *first.SourceType)
	require.NotNil(t, first.SourceItemID)
	assert.Equal(t, uuidPkgItem, *first.SourceItemID)

	// A fresh tracker, not a copy of anything.
	assert.Equal(t, 0, trackers.inserted[0].UnresolvedCommentCount)
	assert.Equal(t, models.ProductionNotStarted, trackers.inserted[0].ProductionStatus)

	// Exactly one audit entry for the whole batch, carrying the report.
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionCopy, audit.entries[0].Action)
	assert.Equal(t, uuidEffort, audit.entries[0].RecordID)
	assert.Same(t, report, audit.entries[0].Payload)

	require.Len(t, hub.events, 1)
	assert.Equal(t, "reporting_effort_items_copied", hub.events[0].Type)
	assert.Equal(t, "effort:"+uuidEffort, hub.events[0].Scope)
	assert.Equal(t, []string{"trackers:effort:" + uuidEffort + "*"}, cache.deleted)
}

func TestCopySkipsDuplicatesAndIsIdempotent(t *testing.T) {
	items, efforts, packages, trackers := packageFixture()
	items.targetKeys[models.ItemKey{Type: models.ItemTypeTLF, Subtype: "Table", Code: "14.1.1"}] = struct{}{}
	svc := newCopyService(&stubRunner{}, items, efforts, packages, trackers, &stubAudit{}, &stubHub{}, &stubCache{}, &stubMetrics{})

	report, err := svc.CopyItems(context.Background(), dto.CopyItemsRequest{
		SourceKind:              dto.CopySourcePackage,
		SourceID:                uuidPackage,
		TargetReportingEffortID: uuidEffort,
	}, testActor())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.SkippedItems, 1)
	assert.Equal(t, "14.1.1", report.SkippedItems[0].ItemCode)
	assert.Equal(t, "Duplicate item already exists", report.SkippedItems[0].Reason)

	// Re-run against a target that now holds both keys: clean no-op.
	items.targetKeys[models.ItemKey{Type: models.ItemTypeDataset, Subtype: "ADaM", Code: "ADSL"}] = struct{}{}
	items.inserted = nil
	report, err = svc.CopyItems(context.Background(), dto.CopyItemsRequest{
		SourceKind:              dto.CopySourcePackage,
		SourceID:                uuidPackage,
		TargetReportingEffortID: uuidEffort,
	}, testActor())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 2, report.Skipped)
	assert.Empty(t, items.inserted)
}

func TestCopyUnknownRequestedItemIsSkipped(t *testing.T) {
	items, efforts, packages, trackers := packageFixture()
	svc := newCopyService(&stubRunner{}, items, efforts, packages, trackers, &stubAudit{}, &stubHub{}, &stubCache{}, &stubMetrics{})

	report, err := svc.CopyItems(context.Background(), dto.CopyItemsRequest{
		SourceKind:              dto.CopySourcePackage,
		SourceID:                uuidPackage,
		TargetReportingEffortID: uuidEffort,
		ItemIDs:                 []string{uuidPkgItem, "00000000-0000-4000-8000-000000000000"},
	}, testActor())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Created)
	require.Len(t, report.SkippedItems, 1)
	assert.Equal(t, skipReasonNotFound, report.SkippedItems[0].Reason)
}

func TestCopyEffortToItselfRejected(t *testing.T) {
	items, efforts, packages, trackers := packageFixture()
	svc := newCopyService(&stubRunner{}, items, efforts, packages, trackers, &stubAudit{}, &stubHub{}, &stubCache{}, &stubMetrics{})

	_, err := svc.CopyItems(context.Background(), dto.CopyItemsRequest{
		SourceKind:              dto.CopySourceReportingEffort,
		SourceID:                uuidEffort,
		TargetReportingEffortID: uuidEffort,
	}, testActor())
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestCopyRollbackSkipsBroadcast(t *testing.T) {
	items, efforts, packages, trackers := packageFixture()
	hub, metrics := &stubHub{}, &stubMetrics{}
	svc := newCopyService(&stubRunner{failWith: errStoreDown}, items, efforts, packages, trackers, &stubAudit{}, hub, &stubCache{}, metrics)

	_, err := svc.CopyItems(context.Background(), dto.CopyItemsRequest{
		SourceKind:              dto.CopySourcePackage,
		SourceID:                uuidPackage,
		TargetReportingEffortID: uuidEffort,
	}, testActor())
	require.Error(t, err)
	assert.Empty(t, hub.events)
	assert.Empty(t, metrics.mutations)
}
