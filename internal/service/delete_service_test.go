package service

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinsight/ctr-registry-api/internal/dto"
	"github.com/clinsight/ctr-registry-api/internal/models"
	"github.com/clinsight/ctr-registry-api/internal/realtime"
	appErrors "github.com/clinsight/ctr-registry-api/pkg/errors"
)

type stubDelStudies struct {
	study   *models.Study
	deleted []string
}

func (r *stubDelStudies) Get(_ context.Context, _ sqlx.ExtContext, id string) (*models.Study, error) {
	if r.study == nil || r.study.ID != id {
		return nil, nil
	}
	return r.study, nil
}

func (r *stubDelStudies) Delete(_ context.Context, _ sqlx.ExtContext, id string) (int64, error) {
	r.deleted = append(r.deleted, id)
	return 1, nil
}

type stubDelReleases struct {
	release *models.DatabaseRelease
	count   int
	labels  []string
	deleted []string
}

func (r *stubDelReleases) Get(_ context.Context, _ sqlx.ExtContext, id string) (*models.DatabaseRelease, error) {
	if r.release == nil || r.release.ID != id {
		return nil, nil
	}
	return r.release, nil
}

func (r *stubDelReleases) CountByStudy(_ context.Context, _ sqlx.ExtContext, _ string) (int, error) {
	return r.count, nil
}

func (r *stubDelReleases) SampleLabelsByStudy(_ context.Context, _ sqlx.ExtContext, _ string, limit int) ([]string, error) {
	if len(r.labels) > limit {
		return r.labels[:limit], nil
	}
	return r.labels, nil
}

func (r *stubDelReleases) Delete(_ context.Context, _ sqlx.ExtContext, id string) (int64, error) {
	r.deleted = append(r.deleted, id)
	return 1, nil
}

type stubDelEfforts struct {
	effort  *models.ReportingEffort
	count   int
	labels  []string
	deleted []string
}

func (r *stubDelEfforts) Get(_ context.Context, _ sqlx.ExtContext, id string) (*models.ReportingEffort, error) {
	if r.effort == nil || r.effort.ID != id {
		return nil, nil
	}
	return r.effort, nil
}

func (r *stubDelEfforts) CountByRelease(_ context.Context, _ sqlx.ExtContext, _ string) (int, error) {
	return r.count, nil
}

func (r *stubDelEfforts) SampleLabelsByRelease(_ context.Context, _ sqlx.ExtContext, _ string, limit int) ([]string, error) {
	if len(r.labels) > limit {
		return r.labels[:limit], nil
	}
	return r.labels, nil
}

func (r *stubDelEfforts) Delete(_ context.Context, _ sqlx.ExtContext, id string) (int64, error) {
	r.deleted = append(r.deleted, id)
	return 1, nil
}

type stubDelItems struct {
	item           *models.ReportingEffortItem
	byEffort       int64
	deleted        []string
	detailsDeleted []string
}

func (r *stubDelItems) Get(_ context.Context, _ sqlx.ExtContext, id string) (*models.ReportingEffortItem, error) {
	if r.item == nil || r.item.ID != id {
		return nil, nil
	}
	return r.item, nil
}

func (r *stubDelItems) DeleteByID(_ context.Context, _ sqlx.ExtContext, id string) (int64, error) {
	r.deleted = append(r.deleted, id)
	return 1, nil
}

func (r *stubDelItems) DeleteDetailsByItem(_ context.Context, _ sqlx.ExtContext, itemID string) error {
	r.detailsDeleted = append(r.detailsDeleted, itemID)
	return nil
}

func (r *stubDelItems) DeleteByEffort(_ context.Context, _ sqlx.ExtContext, _ string) (int64, error) {
	return r.byEffort, nil
}

type stubDelTrackers struct {
	tracker   *models.Tracker
	byEffort  int64
	nullified []string
	detached  int64
	deleted   []string
}

func (r *stubDelTrackers) GetByItemID(_ context.Context, _ sqlx.ExtContext, itemID string) (*models.Tracker, error) {
	if r.tracker == nil || r.tracker.ReportingEffortItemID != itemID {
		return nil, nil
	}
	return r.tracker, nil
}

func (r *stubDelTrackers) NullifyAssignee(_ context.Context, _ sqlx.ExtContext, userID string) (int64, error) {
	r.nullified = append(r.nullified, userID)
	return r.detached, nil
}

func (r *stubDelTrackers) DeleteByItem(_ context.Context, _ sqlx.ExtContext, itemID string) (int64, error) {
	r.deleted = append(r.deleted, itemID)
	return 1, nil
}

func (r *stubDelTrackers) DeleteByEffort(_ context.Context, _ sqlx.ExtContext, _ string) (int64, error) {
	return r.byEffort, nil
}

type stubDelComments struct {
	byTracker  int64
	byEffort   int64
	authored   int
	deletedFor []string
}

func (r *stubDelComments) DeleteByTracker(_ context.Context, _ sqlx.ExtContext, trackerID string) (int64, error) {
	r.deletedFor = append(r.deletedFor, trackerID)
	return r.byTracker, nil
}

func (r *stubDelComments) DeleteByEffort(_ context.Context, _ sqlx.ExtContext, _ string) (int64, error) {
	return r.byEffort, nil
}

func (r *stubDelComments) CountByAuthor(_ context.Context, _ sqlx.ExtContext, _ string) (int, error) {
	return r.authored, nil
}

type stubDelPackages struct {
	pkg     *models.Package
	item    *models.PackageItem
	count   int
	codes   []string
	deleted []string
}

func (r *stubDelPackages) Get(_ context.Context, _ sqlx.ExtContext, id string) (*models.Package, error) {
	if r.pkg == nil || r.pkg.ID != id {
		return nil, nil
	}
	return r.pkg, nil
}

func (r *stubDelPackages) CountItems(_ context.Context, _ sqlx.ExtContext, _ string) (int, error) {
	return r.count, nil
}

func (r *stubDelPackages) SampleItemCodes(_ context.Context, _ sqlx.ExtContext, _ string, limit int) ([]string, error) {
	if len(r.codes) > limit {
		return r.codes[:limit], nil
	}
	return r.codes, nil
}

func (r *stubDelPackages) Delete(_ context.Context, _ sqlx.ExtContext, id string) (int64, error) {
	r.deleted = append(r.deleted, id)
	return 1, nil
}

func (r *stubDelPackages) GetItem(_ context.Context, _ sqlx.ExtContext, id string) (*models.PackageItem, error) {
	if r.item == nil || r.item.ID != id {
		return nil, nil
	}
	return r.item, nil
}

func (r *stubDelPackages) DeleteItem(_ context.Context, _ sqlx.ExtContext, id string) (int64, error) {
	r.deleted = append(r.deleted, id)
	return 1, nil
}

type stubDelTextElements struct {
	element *models.TextElement
	deleted []string
}

func (r *stubDelTextElements) Get(_ context.Context, _ sqlx.ExtContext, id string) (*models.TextElement, error) {
	if r.element == nil || r.element.ID != id {
		return nil, nil
	}
	return r.element, nil
}

func (r *stubDelTextElements) Delete(_ context.Context, _ sqlx.ExtContext, id string) (int64, error) {
	r.deleted = append(r.deleted, id)
	return 1, nil
}

type stubDelUsers struct {
	user    *models.User
	deleted []string
}

func (r *stubDelUsers) Get(_ context.Context, _ sqlx.ExtContext, id string) (*models.User, error) {
	if r.user == nil || r.user.ID != id {
		return nil, nil
	}
	return r.user, nil
}

func (r *stubDelUsers) Delete(_ context.Context, _ sqlx.ExtContext, id string) (int64, error) {
	r.deleted = append(r.deleted, id)
	return 1, nil
}

type deleteFixture struct {
	runner       *stubRunner
	studies      *stubDelStudies
	releases     *stubDelReleases
	efforts      *stubDelEfforts
	items        *stubDelItems
	trackers     *stubDelTrackers
	comments     *stubDelComments
	packages     *stubDelPackages
	textElements *stubDelTextElements
	users        *stubDelUsers
	audit        *stubAudit
	hub          *stubHub
	cache        *stubCache
	metrics      *stubMetrics
}

func newDeleteFixture() *deleteFixture {
	return &deleteFixture{
		runner:       &stubRunner{},
		studies:      &stubDelStudies{study: &models.Study{ID: uuidStudy, Label: "CT-001"}},
		releases:     &stubDelReleases{release: &models.DatabaseRelease{ID: uuidRelease, StudyID: uuidStudy, Label: "DBR-2026-01"}},
		efforts:      &stubDelEfforts{effort: &models.ReportingEffort{ID: uuidEffort, StudyID: uuidStudy, DatabaseReleaseID: uuidRelease, Label: "Interim 1"}},
		items:        &stubDelItems{item: &models.ReportingEffortItem{ID: uuidItem, ReportingEffortID: uuidEffort, ItemType: models.ItemTypeTLF, ItemSubtype: "Table", ItemCode: "14.1.1"}},
		trackers:     &stubDelTrackers{tracker: &models.Tracker{ID: uuidTracker, ReportingEffortItemID: uuidItem}},
		comments:     &stubDelComments{},
		packages:     &stubDelPackages{pkg: &models.Package{ID: uuidPackage, Label: "Safety Core"}},
		textElements: &stubDelTextElements{element: &models.TextElement{ID: uuidPkgItem, Kind: models.TextElementTitle, Label: "Demographics"}},
		users:        &stubDelUsers{user: &models.User{ID: uuidUser, Email: "stat@example.com"}},
		audit:        &stubAudit{},
		hub:          &stubHub{},
		cache:        &stubCache{},
		metrics:      &stubMetrics{},
	}
}

func (f *deleteFixture) service() *DeleteService {
	return NewDeleteService(
		f.runner,
		f.studies,
		f.releases,
		f.efforts,
		f.items,
		f.trackers,
		f.comments,
		f.packages,
		f.textElements,
		f.users,
		f.audit,
		f.hub,
		f.cache,
		f.metrics,
		nil,
	)
}

func TestDeleteStudyRejectedByReleases(t *testing.T) {
	f := newDeleteFixture()
	f.releases.count = 7
	f.releases.labels = []string{"DBR-1", "DBR-2", "DBR-3", "DBR-4", "DBR-5", "DBR-6", "DBR-7"}

	result, err := f.service().ApplyDelete(context.Background(), dto.EntityStudy, uuidStudy, testActor())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Rejected)
	assert.Equal(t, 7, result.ConflictCount)
	assert.Len(t, result.ConflictSample, conflictSampleSize)

	// A rejection writes nothing and tells nobody.
	assert.Empty(t, f.studies.deleted)
	assert.Empty(t, f.audit.entries)
	assert.Empty(t, f.hub.events)
	assert.Empty(t, f.metrics.mutations)
}

func TestDeleteStudyWithoutReleases(t *testing.T) {
	f := newDeleteFixture()

	result, err := f.service().ApplyDelete(context.Background(), dto.EntityStudy, uuidStudy, testActor())
	require.NoError(t, err)
	assert.False(t, result.Rejected)
	assert.Equal(t, []string{uuidStudy}, f.studies.deleted)

	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, models.AuditActionDelete, f.audit.entries[0].Action)
	payload, ok := f.audit.entries[0].Payload.(DeletedPayload)
	require.True(t, ok)
	assert.Equal(t, f.studies.study, payload.Deleted)

	require.Len(t, f.hub.events, 1)
	assert.Equal(t, "study_deleted", f.hub.events[0].Type)
	assert.Equal(t, realtime.ScopeGlobal, f.hub.events[0].Scope)
	assert.Equal(t, 1, f.metrics.mutations[dto.EntityStudy+"/"+models.AuditActionDelete])
}

func TestDeleteEffortCascadesSubtree(t *testing.T) {
	f := newDeleteFixture()
	f.comments.byEffort = 12
	f.trackers.byEffort = 4
	f.items.byEffort = 4

	result, err := f.service().ApplyDelete(context.Background(), dto.EntityReportingEffort, uuidEffort, testActor())
	require.NoError(t, err)

	assert.False(t, result.Rejected)
	assert.Equal(t, map[string]int{
		dto.EntityComment: 12,
		dto.EntityTracker: 4,
		dto.EntityItem:    4,
	}, result.Cascaded)
	assert.Equal(t, []string{uuidEffort}, f.efforts.deleted)

	// One audit entry for the whole subtree, carrying the counts.
	require.Len(t, f.audit.entries, 1)
	payload, ok := f.audit.entries[0].Payload.(DeletedPayload)
	require.True(t, ok)
	assert.Equal(t, result.Cascaded, payload.Cascaded)

	require.Len(t, f.hub.events, 1)
	assert.Equal(t, "reporting_effort_deleted", f.hub.events[0].Type)
	assert.Equal(t, realtime.StudyScope(uuidStudy), f.hub.events[0].Scope)
	assert.Equal(t, []string{trackerCachePattern(uuidEffort)}, f.cache.deleted)
}

func TestDeleteItemCascadesTrackerAndComments(t *testing.T) {
	f := newDeleteFixture()
	f.comments.byTracker = 3

	result, err := f.service().ApplyDelete(context.Background(), dto.EntityItem, uuidItem, testActor())
	require.NoError(t, err)

	assert.Equal(t, 3, result.Cascaded[dto.EntityComment])
	assert.Equal(t, 1, result.Cascaded[dto.EntityTracker])
	assert.Equal(t, []string{uuidTracker}, f.comments.deletedFor)
	assert.Equal(t, []string{uuidItem}, f.trackers.deleted)
	assert.Equal(t, []string{uuidItem}, f.items.detailsDeleted)
	assert.Equal(t, []string{uuidItem}, f.items.deleted)

	require.Len(t, f.hub.events, 1)
	assert.Equal(t, "reporting_effort_item_deleted", f.hub.events[0].Type)
	assert.Equal(t, realtime.EffortScope(uuidEffort), f.hub.events[0].Scope)
}

func TestDeletePackageRejectedByItems(t *testing.T) {
	f := newDeleteFixture()
	f.packages.count = 2
	f.packages.codes = []string{"14.1.1", "ADSL"}

	result, err := f.service().ApplyDelete(context.Background(), dto.EntityPackage, uuidPackage, testActor())
	require.NoError(t, err)
	assert.True(t, result.Rejected)
	assert.Equal(t, []string{"14.1.1", "ADSL"}, result.ConflictSample)
	assert.Empty(t, f.packages.deleted)
	assert.Empty(t, f.audit.entries)
}

func TestDeletePackageItem(t *testing.T) {
	f := newDeleteFixture()
	f.packages.item = &models.PackageItem{ID: uuidPkgItm2, PackageID: uuidPackage, ItemCode: "14.1.1"}

	result, err := f.service().ApplyDelete(context.Background(), dto.EntityPackageItem, uuidPkgItm2, testActor())
	require.NoError(t, err)
	assert.False(t, result.Rejected)
	assert.Equal(t, []string{uuidPkgItm2}, f.packages.deleted)

	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, dto.EntityPackageItem, f.audit.entries[0].TableName)
	payload, ok := f.audit.entries[0].Payload.(DeletedPayload)
	require.True(t, ok)
	assert.Equal(t, f.packages.item, payload.Deleted)
}

func TestDeleteTextElement(t *testing.T) {
	f := newDeleteFixture()

	result, err := f.service().ApplyDelete(context.Background(), dto.EntityTextElement, uuidPkgItem, testActor())
	require.NoError(t, err)
	assert.False(t, result.Rejected)
	assert.Equal(t, []string{uuidPkgItem}, f.textElements.deleted)

	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, dto.EntityTextElement, f.audit.entries[0].TableName)
	require.Len(t, f.hub.events, 1)
	assert.Equal(t, "text_element_deleted", f.hub.events[0].Type)
}

func TestDeleteUserRejectedByAuthoredComments(t *testing.T) {
	f := newDeleteFixture()
	f.comments.authored = 9

	result, err := f.service().ApplyDelete(context.Background(), dto.EntityUser, uuidUser, testActor())
	require.NoError(t, err)
	assert.True(t, result.Rejected)
	assert.Equal(t, 9, result.ConflictCount)
	assert.Empty(t, f.users.deleted)
	assert.Empty(t, f.trackers.nullified)
	assert.Empty(t, f.hub.events)
}

func TestDeleteUserDetachesTrackerAssignments(t *testing.T) {
	f := newDeleteFixture()
	f.trackers.detached = 5

	result, err := f.service().ApplyDelete(context.Background(), dto.EntityUser, uuidUser, testActor())
	require.NoError(t, err)
	assert.False(t, result.Rejected)
	assert.Equal(t, map[string]int{"tracker_assignments": 5}, result.Cascaded)
	assert.Equal(t, []string{uuidUser}, f.trackers.nullified)
	assert.Equal(t, []string{uuidUser}, f.users.deleted)

	require.Len(t, f.hub.events, 1)
	assert.Equal(t, "user_deleted", f.hub.events[0].Type)
}

func TestDeleteTrackerAndCommentDirectlyRejected(t *testing.T) {
	f := newDeleteFixture()
	svc := f.service()

	_, err := svc.ApplyDelete(context.Background(), dto.EntityTracker, uuidTracker, testActor())
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.ApplyDelete(context.Background(), dto.EntityComment, uuidItem, testActor())
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	assert.Equal(t, 0, f.runner.calls)
}

func TestDeleteUnknownEntityRejected(t *testing.T) {
	f := newDeleteFixture()
	_, err := f.service().ApplyDelete(context.Background(), "widgets", uuidStudy, testActor())
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestDeleteEffortRollbackSkipsBroadcast(t *testing.T) {
	f := newDeleteFixture()
	f.runner.failWith = errStoreDown

	_, err := f.service().ApplyDelete(context.Background(), dto.EntityReportingEffort, uuidEffort, testActor())
	require.Error(t, err)
	assert.Empty(t, f.hub.events)
	assert.Empty(t, f.metrics.mutations)
	assert.Empty(t, f.cache.deleted)
}

func TestDeleteStudyNotFound(t *testing.T) {
	f := newDeleteFixture()
	f.studies.study = nil

	_, err := f.service().ApplyDelete(context.Background(), dto.EntityStudy, uuidStudy, testActor())
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}
