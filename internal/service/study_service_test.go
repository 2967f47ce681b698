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

type stubStudyRepo struct {
	studies  map[string]*models.Study
	labels   map[string]string
	inserted []*models.Study
	updated  []*models.Study
}

func newStubStudyRepo() *stubStudyRepo {
	return &stubStudyRepo{studies: map[string]*models.Study{}, labels: map[string]string{}}
}

func (r *stubStudyRepo) List(_ context.Context) ([]models.Study, error) {
	out := make([]models.Study, 0, len(r.studies))
	for _, s := range r.studies {
		out = append(out, *s)
	}
	return out, nil
}

func (r *stubStudyRepo) FindByID(_ context.Context, id string) (*models.Study, error) {
	return r.studies[id], nil
}

func (r *stubStudyRepo) Get(_ context.Context, _ sqlx.ExtContext, id string) (*models.Study, error) {
	return r.studies[id], nil
}

func (r *stubStudyRepo) LabelExists(_ context.Context, _ sqlx.ExtContext, label, excludeID string) (bool, error) {
	id, ok := r.labels[label]
	return ok && id != excludeID, nil
}

func (r *stubStudyRepo) Insert(_ context.Context, _ sqlx.ExtContext, study *models.Study) error {
	r.inserted = append(r.inserted, study)
	r.studies[study.ID] = study
	r.labels[study.Label] = study.ID
	return nil
}

func (r *stubStudyRepo) Update(_ context.Context, _ sqlx.ExtContext, study *models.Study) error {
	r.updated = append(r.updated, study)
	r.studies[study.ID] = study
	return nil
}

func TestStudyCreate(t *testing.T) {
	repo := newStubStudyRepo()
	audit, hub, metrics := &stubAudit{}, &stubHub{}, &stubMetrics{}
	svc := NewStudyService(&stubRunner{}, repo, audit, hub, metrics, nil)

	desc := "Phase III pivotal"
	study, err := svc.Create(context.Background(), dto.CreateStudyRequest{
		Label:       "CT-2026-014",
		Description: &desc,
	}, testActor())
	require.NoError(t, err)
	require.NotNil(t, study)
	assert.NotEmpty(t, study.ID)
	require.Len(t, repo.inserted, 1)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, dto.EntityStudy, audit.entries[0].TableName)
	assert.Equal(t, models.AuditActionCreate, audit.entries[0].Action)
	require.NotNil(t, audit.entries[0].ActorID)
	assert.Equal(t, uuidUser, *audit.entries[0].ActorID)

	require.Len(t, hub.events, 1)
	assert.Equal(t, "study_created", hub.events[0].Type)
	assert.Equal(t, realtime.ScopeGlobal, hub.events[0].Scope)
	assert.Equal(t, 1, metrics.mutations[dto.EntityStudy+"/"+models.AuditActionCreate])
}

func TestStudyCreateDuplicateLabel(t *testing.T) {
	repo := newStubStudyRepo()
	repo.labels["CT-2026-014"] = uuidStudy
	audit, hub := &stubAudit{}, &stubHub{}
	svc := NewStudyService(&stubRunner{}, repo, audit, hub, &stubMetrics{}, nil)

	_, err := svc.Create(context.Background(), dto.CreateStudyRequest{Label: "CT-2026-014"}, testActor())
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
	assert.Empty(t, repo.inserted)
	assert.Empty(t, audit.entries)
	assert.Empty(t, hub.events)
}

func TestStudyCreateInvalidRequest(t *testing.T) {
	svc := NewStudyService(&stubRunner{}, newStubStudyRepo(), &stubAudit{}, &stubHub{}, &stubMetrics{}, nil)

	_, err := svc.Create(context.Background(), dto.CreateStudyRequest{Label: ""}, testActor())
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestStudyUpdate(t *testing.T) {
	repo := newStubStudyRepo()
	repo.studies[uuidStudy] = &models.Study{ID: uuidStudy, Label: "CT-old"}
	repo.labels["CT-old"] = uuidStudy
	audit, hub := &stubAudit{}, &stubHub{}
	svc := NewStudyService(&stubRunner{}, repo, audit, hub, &stubMetrics{}, nil)

	label := "CT-new"
	study, err := svc.Update(context.Background(), uuidStudy, dto.UpdateStudyRequest{Label: &label}, testActor())
	require.NoError(t, err)
	assert.Equal(t, "CT-new", study.Label)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionUpdate, audit.entries[0].Action)
	payload, ok := audit.entries[0].Payload.(UpdatedPayload)
	require.True(t, ok)
	before, ok := payload.Before.(models.Study)
	require.True(t, ok)
	assert.Equal(t, "CT-old", before.Label)

	require.Len(t, hub.events, 1)
	assert.Equal(t, "study_updated", hub.events[0].Type)
}

func TestStudyUpdateNotFound(t *testing.T) {
	svc := NewStudyService(&stubRunner{}, newStubStudyRepo(), &stubAudit{}, &stubHub{}, &stubMetrics{}, nil)

	label := "CT-new"
	_, err := svc.Update(context.Background(), uuidStudy, dto.UpdateStudyRequest{Label: &label}, testActor())
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestStudyGetByIDNotFound(t *testing.T) {
	svc := NewStudyService(&stubRunner{}, newStubStudyRepo(), &stubAudit{}, &stubHub{}, &stubMetrics{}, nil)

	_, err := svc.GetByID(context.Background(), uuidStudy)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestStudyCreateRollbackSkipsBroadcast(t *testing.T) {
	repo := newStubStudyRepo()
	hub, metrics := &stubHub{}, &stubMetrics{}
	svc := NewStudyService(&stubRunner{failWith: errStoreDown}, repo, &stubAudit{}, hub, metrics, nil)

	_, err := svc.Create(context.Background(), dto.CreateStudyRequest{Label: "CT-2026-014"}, testActor())
	require.Error(t, err)
	assert.Empty(t, hub.events)
	assert.Empty(t, metrics.mutations)
}
