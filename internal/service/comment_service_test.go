package service

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinsight/ctr-registry-api/internal/dto"
	"github.com/clinsight/ctr-registry-api/internal/models"
	appErrors "github.com/clinsight/ctr-registry-api/pkg/errors"
)

type stubCommentRepo struct {
	comments map[string]*models.Comment
	inserted []*models.Comment
}

func (r *stubCommentRepo) ListByTracker(_ context.Context, trackerID string) ([]models.Comment, error) {
	var out []models.Comment
	for _, c := range r.comments {
		if c.TrackerID == trackerID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *stubCommentRepo) Get(_ context.Context, _ sqlx.ExtContext, id string) (*models.Comment, error) {
	c, ok := r.comments[id]
	if !ok {
		return nil, nil
	}
	copied := *c
	return &copied, nil
}

func (r *stubCommentRepo) Insert(_ context.Context, _ sqlx.ExtContext, comment *models.Comment) error {
	if r.comments == nil {
		r.comments = make(map[string]*models.Comment)
	}
	r.comments[comment.ID] = comment
	r.inserted = append(r.inserted, comment)
	return nil
}

func (r *stubCommentRepo) SetResolved(_ context.Context, _ sqlx.ExtContext, id string, resolved bool, resolvedBy *string, at time.Time) error {
	c := r.comments[id]
	c.IsResolved = resolved
	c.ResolvedByUserID = resolvedBy
	return nil
}

func (r *stubCommentRepo) SoftDelete(_ context.Context, _ sqlx.ExtContext, id string, _ time.Time) error {
	r.comments[id].IsDeleted = true
	return nil
}

type stubCommentTrackers struct {
	tracker     *models.Tracker
	count       int
	adjustments []int
	clampCalls  int
}

func (r *stubCommentTrackers) Get(_ context.Context, _ sqlx.ExtContext, id string) (*models.Tracker, error) {
	if r.tracker == nil || r.tracker.ID != id {
		return nil, nil
	}
	return r.tracker, nil
}

func (r *stubCommentTrackers) AdjustUnresolvedCount(_ context.Context, _ sqlx.ExtContext, _ string, delta int) (int, error) {
	r.count += delta
	r.adjustments = append(r.adjustments, delta)
	return r.count, nil
}

func (r *stubCommentTrackers) ClampUnresolvedCount(_ context.Context, _ sqlx.ExtContext, _ string) error {
	r.clampCalls++
	r.count = 0
	return nil
}

type stubCommentItems struct {
	item *models.ReportingEffortItem
}

func (r *stubCommentItems) Get(_ context.Context, _ sqlx.ExtContext, id string) (*models.ReportingEffortItem, error) {
	if r.item == nil || r.item.ID != id {
		return nil, nil
	}
	return r.item, nil
}

func commentFixture() (*stubCommentRepo, *stubCommentTrackers, *stubCommentItems) {
	item := &models.ReportingEffortItem{ID: uuidItem, ReportingEffortID: uuidEffort}
	tracker := &models.Tracker{ID: uuidTracker, ReportingEffortItemID: uuidItem}
	return &stubCommentRepo{comments: map[string]*models.Comment{}},
		&stubCommentTrackers{tracker: tracker},
		&stubCommentItems{item: item}
}

func testActor() *models.JWTClaims {
	return &models.JWTClaims{UserID: uuidUser}
}

func newCommentService(runner *stubRunner, repo *stubCommentRepo, trackers *stubCommentTrackers, items *stubCommentItems, audit *stubAudit, hub *stubHub, cache *stubCache, metrics *stubMetrics) *CommentService {
	return NewCommentService(runner, repo, trackers, items, audit, hub, cache, metrics, nil)
}

func TestCommentCreateIncrementsCounter(t *testing.T) {
	repo, trackers, items := commentFixture()
	audit, hub, cache, metrics := &stubAudit{}, &stubHub{}, &stubCache{}, &stubMetrics{}
	svc := newCommentService(&stubRunner{}, repo, trackers, items, audit, hub, cache, metrics)

	comment, err := svc.Create(context.Background(), dto.CreateCommentRequest{
		TrackerID: uuidTracker,
		Body:      "please check the footnote",
	}, testActor())
	require.NoError(t, err)
	require.NotNil(t, comment)

	assert.Equal(t, []int{1}, trackers.adjustments)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, dto.EntityComment, audit.entries[0].TableName)
	assert.Equal(t, models.AuditActionCreate, audit.entries[0].Action)
	require.Len(t, hub.events, 1)
	assert.Equal(t, "comment_created", hub.events[0].Type)
	assert.Equal(t, "effort:"+uuidEffort, hub.events[0].Scope)
	assert.Equal(t, []string{"trackers:effort:" + uuidEffort + "*"}, cache.deleted)
}

func TestCommentCreateRequiresActor(t *testing.T) {
	repo, trackers, items := commentFixture()
	svc := newCommentService(&stubRunner{}, repo, trackers, items, &stubAudit{}, &stubHub{}, &stubCache{}, &stubMetrics{})

	_, err := svc.Create(context.Background(), dto.CreateCommentRequest{
		TrackerID: uuidTracker,
		Body:      "anonymous",
	}, nil)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
	assert.Empty(t, trackers.adjustments)
}

func TestCommentResolveDecrementsCounter(t *testing.T) {
	repo, trackers, items := commentFixture()
	trackers.count = 1
	repo.comments["c1"] = &models.Comment{ID: "c1", TrackerID: uuidTracker, UserID: uuidUser}
	audit, hub := &stubAudit{}, &stubHub{}
	svc := newCommentService(&stubRunner{}, repo, trackers, items, audit, hub, &stubCache{}, &stubMetrics{})

	comment, err := svc.Resolve(context.Background(), "c1", testActor())
	require.NoError(t, err)
	assert.True(t, comment.IsResolved)
	assert.Equal(t, []int{-1}, trackers.adjustments)
	assert.Equal(t, 0, trackers.count)
	require.Len(t, hub.events, 1)
	assert.Equal(t, "comment_resolved", hub.events[0].Type)
}

func TestCommentResolveTwiceConflicts(t *testing.T) {
	repo, trackers, items := commentFixture()
	repo.comments["c1"] = &models.Comment{ID: "c1", TrackerID: uuidTracker, IsResolved: true}
	hub := &stubHub{}
	svc := newCommentService(&stubRunner{}, repo, trackers, items, &stubAudit{}, hub, &stubCache{}, &stubMetrics{})

	_, err := svc.Resolve(context.Background(), "c1", testActor())
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
	assert.Empty(t, trackers.adjustments)
	assert.Empty(t, hub.events)
}

func TestCommentUnresolveIncrementsCounter(t *testing.T) {
	repo, trackers, items := commentFixture()
	repo.comments["c1"] = &models.Comment{ID: "c1", TrackerID: uuidTracker, IsResolved: true}
	svc := newCommentService(&stubRunner{}, repo, trackers, items, &stubAudit{}, &stubHub{}, &stubCache{}, &stubMetrics{})

	comment, err := svc.Unresolve(context.Background(), "c1", testActor())
	require.NoError(t, err)
	assert.False(t, comment.IsResolved)
	assert.Equal(t, []int{1}, trackers.adjustments)
}

func TestCommentSoftDeleteUnresolvedDecrements(t *testing.T) {
	repo, trackers, items := commentFixture()
	trackers.count = 1
	repo.comments["c1"] = &models.Comment{ID: "c1", TrackerID: uuidTracker}
	svc := newCommentService(&stubRunner{}, repo, trackers, items, &stubAudit{}, &stubHub{}, &stubCache{}, &stubMetrics{})

	require.NoError(t, svc.SoftDelete(context.Background(), "c1", testActor()))
	assert.Equal(t, []int{-1}, trackers.adjustments)
	assert.True(t, repo.comments["c1"].IsDeleted)
}

func TestCommentSoftDeleteResolvedLeavesCounter(t *testing.T) {
	repo, trackers, items := commentFixture()
	repo.comments["c1"] = &models.Comment{ID: "c1", TrackerID: uuidTracker, IsResolved: true}
	svc := newCommentService(&stubRunner{}, repo, trackers, items, &stubAudit{}, &stubHub{}, &stubCache{}, &stubMetrics{})

	require.NoError(t, svc.SoftDelete(context.Background(), "c1", testActor()))
	assert.Empty(t, trackers.adjustments)
}

func TestCommentCounterClampSignalsDefect(t *testing.T) {
	repo, trackers, items := commentFixture()
	// Counter already at zero: a decrement would drive it negative.
	trackers.count = 0
	repo.comments["c1"] = &models.Comment{ID: "c1", TrackerID: uuidTracker}
	metrics := &stubMetrics{}
	svc := newCommentService(&stubRunner{}, repo, trackers, items, &stubAudit{}, &stubHub{}, &stubCache{}, metrics)

	// The delete still succeeds; the clamp is a defect signal, not a
	// user-facing failure.
	require.NoError(t, svc.SoftDelete(context.Background(), "c1", testActor()))
	assert.Equal(t, 1, trackers.clampCalls)
	assert.Equal(t, 1, metrics.clamped)
	assert.Equal(t, 0, trackers.count)
}

func TestCommentCreateRollbackSkipsBroadcast(t *testing.T) {
	repo, trackers, items := commentFixture()
	hub, cache, metrics := &stubHub{}, &stubCache{}, &stubMetrics{}
	svc := newCommentService(&stubRunner{failWith: errStoreDown}, repo, trackers, items, &stubAudit{}, hub, cache, metrics)

	_, err := svc.Create(context.Background(), dto.CreateCommentRequest{
		TrackerID: uuidTracker,
		Body:      "never committed",
	}, testActor())
	require.Error(t, err)
	assert.Empty(t, hub.events)
	assert.Empty(t, cache.deleted)
	assert.Empty(t, metrics.mutations)
}

func TestCommentListThreadNesting(t *testing.T) {
	repo, trackers, items := commentFixture()
	base := time.Now().UTC()
	repo.comments["c1"] = &models.Comment{ID: "c1", TrackerID: uuidTracker, Body: "root", CreatedAt: base}
	parent := "c1"
	repo.comments["c2"] = &models.Comment{ID: "c2", TrackerID: uuidTracker, ParentCommentID: &parent, Body: "reply", CreatedAt: base.Add(time.Minute)}
	svc := newCommentService(&stubRunner{}, repo, trackers, items, &stubAudit{}, &stubHub{}, &stubCache{}, &stubMetrics{})

	threads, err := svc.ListThread(context.Background(), uuidTracker)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	require.Len(t, threads[0].Replies, 1)
	assert.Equal(t, "reply", threads[0].Replies[0].Body)
}
