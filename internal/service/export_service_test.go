package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinsight/ctr-registry-api/internal/dto"
	"github.com/clinsight/ctr-registry-api/internal/models"
	appErrors "github.com/clinsight/ctr-registry-api/pkg/errors"
	"github.com/clinsight/ctr-registry-api/pkg/jobs"
)

type stubExportEfforts struct {
	effort *models.ReportingEffort
}

func (r *stubExportEfforts) FindByID(_ context.Context, id string) (*models.ReportingEffort, error) {
	if r.effort == nil || r.effort.ID != id {
		return nil, nil
	}
	return r.effort, nil
}

type stubExportTrackers struct {
	rows []models.TrackerRow
}

func (r *stubExportTrackers) ListRowsByEffort(_ context.Context, _ string) ([]models.TrackerRow, error) {
	return r.rows, nil
}

type stubExportQueue struct {
	jobs     []jobs.Job
	failWith error
}

func (q *stubExportQueue) Enqueue(job jobs.Job) error {
	if q.failWith != nil {
		return q.failWith
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func exportFixture() (*ExportService, *stubExportQueue) {
	efforts := &stubExportEfforts{effort: &models.ReportingEffort{ID: uuidEffort, Label: "CSR Final"}}
	trackers := &stubExportTrackers{rows: []models.TrackerRow{
		{TrackerID: uuidTracker, ItemType: models.ItemTypeTLF, ItemCode: "t-14-1-1", UnresolvedCommentCount: 2},
	}}
	queue := &stubExportQueue{}
	return NewExportService(efforts, trackers, queue, time.Minute, nil), queue
}

func TestExportRequestQueuesJob(t *testing.T) {
	svc, queue := exportFixture()

	status, err := svc.Request(context.Background(), uuidEffort, dto.CreateExportRequest{Format: dto.ExportFormatCSV})
	require.NoError(t, err)
	assert.Equal(t, dto.ExportStatusPending, status.Status)
	assert.Equal(t, uuidEffort, status.ReportingEffortID)

	require.Len(t, queue.jobs, 1)
	payload, ok := queue.jobs[0].Payload.(exportPayload)
	require.True(t, ok)
	assert.Equal(t, status.ID, payload.ExportID)
	assert.Equal(t, "CSR Final", payload.EffortLabel)
}

func TestExportRequestUnknownEffort(t *testing.T) {
	svc, _ := exportFixture()

	_, err := svc.Request(context.Background(), uuidStudy, dto.CreateExportRequest{Format: dto.ExportFormatCSV})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestExportQueueFullDropsRecord(t *testing.T) {
	svc, queue := exportFixture()
	queue.failWith = errors.New("queue exports full")

	_, err := svc.Request(context.Background(), uuidEffort, dto.CreateExportRequest{Format: dto.ExportFormatPDF})
	require.Error(t, err)

	// The pending record must not linger once the enqueue failed.
	assert.Empty(t, queue.jobs)
	svc.mu.Lock()
	assert.Empty(t, svc.results)
	svc.mu.Unlock()
}

func TestExportHandleJobRendersCSV(t *testing.T) {
	svc, queue := exportFixture()

	status, err := svc.Request(context.Background(), uuidEffort, dto.CreateExportRequest{Format: dto.ExportFormatCSV})
	require.NoError(t, err)
	require.NoError(t, svc.HandleJob(context.Background(), queue.jobs[0]))

	current, err := svc.Status(status.ID)
	require.NoError(t, err)
	assert.Equal(t, dto.ExportStatusReady, current.Status)

	content, format, err := svc.Result(status.ID)
	require.NoError(t, err)
	assert.Equal(t, dto.ExportFormatCSV, format)
	assert.True(t, strings.Contains(string(content), "t-14-1-1"))
}

func TestExportResultBeforeReadyConflicts(t *testing.T) {
	svc, _ := exportFixture()

	status, err := svc.Request(context.Background(), uuidEffort, dto.CreateExportRequest{Format: dto.ExportFormatCSV})
	require.NoError(t, err)

	_, _, err = svc.Result(status.ID)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
}

func TestExportStatusSafeDuringRender(t *testing.T) {
	svc, queue := exportFixture()

	status, err := svc.Request(context.Background(), uuidEffort, dto.CreateExportRequest{Format: dto.ExportFormatCSV})
	require.NoError(t, err)

	// Poll concurrently with the worker: readers get copies, never the
	// record the worker is writing to.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			_, _ = svc.Status(status.ID)
			_, _, _ = svc.Result(status.ID)
		}
	}()

	require.NoError(t, svc.HandleJob(context.Background(), queue.jobs[0]))
	<-done

	current, err := svc.Status(status.ID)
	require.NoError(t, err)
	assert.Equal(t, dto.ExportStatusReady, current.Status)
}
