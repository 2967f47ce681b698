package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinsight/ctr-registry-api/internal/dto"
	"github.com/clinsight/ctr-registry-api/internal/models"
	"github.com/clinsight/ctr-registry-api/pkg/export"
	appErrors "github.com/clinsight/ctr-registry-api/pkg/errors"
	"github.com/clinsight/ctr-registry-api/pkg/jobs"
)

const exportJobKind = "tracker_matrix_export"

type exportEffortReader interface {
	FindByID(ctx context.Context, id string) (*models.ReportingEffort, error)
}

type exportTrackerReader interface {
	ListRowsByEffort(ctx context.Context, effortID string) ([]models.TrackerRow, error)
}

type exportQueue interface {
	Enqueue(job jobs.Job) error
}

type exportPayload struct {
	ExportID          string
	ReportingEffortID string
	EffortLabel       string
	Format            string
}

type exportRecord struct {
	status  dto.ExportStatus
	content []byte
	expires time.Time
}

// ExportService renders an effort's tracker matrix to CSV or PDF in
// the background. Results are process-local and expire after a TTL;
// clients poll the status endpoint and download when ready.
type ExportService struct {
	efforts  exportEffortReader
	trackers exportTrackerReader
	queue    exportQueue
	ttl      time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	results map[string]*exportRecord
}

// NewExportService constructs an ExportService.
func NewExportService(efforts exportEffortReader, trackers exportTrackerReader, queue exportQueue, ttl time.Duration, logger *zap.Logger) *ExportService {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		efforts:  efforts,
		trackers: trackers,
		queue:    queue,
		ttl:      ttl,
		logger:   logger,
		results:  make(map[string]*exportRecord),
	}
}

// SetQueue attaches the worker queue. The queue's handler is this
// service's HandleJob, so construction happens in two steps.
func (s *ExportService) SetQueue(queue exportQueue) {
	s.queue = queue
}

// Request queues an export and returns its pending status.
func (s *ExportService) Request(ctx context.Context, effortID string, req dto.CreateExportRequest) (*dto.ExportStatus, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	effort, err := s.efforts.FindByID(ctx, effortID)
	if err != nil {
		return nil, err
	}
	if effort == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "reporting effort not found")
	}

	status := dto.ExportStatus{
		ID:                uuid.NewString(),
		ReportingEffortID: effortID,
		Format:            req.Format,
		Status:            dto.ExportStatusPending,
	}
	s.store(status.ID, &exportRecord{status: status, expires: time.Now().Add(s.ttl)})

	err = s.queue.Enqueue(jobs.Job{
		ID:   status.ID,
		Kind: exportJobKind,
		Payload: exportPayload{
			ExportID:          status.ID,
			ReportingEffortID: effortID,
			EffortLabel:       effort.Label,
			Format:            req.Format,
		},
	})
	if err != nil {
		s.drop(status.ID)
		return nil, appErrors.Wrap(err, "EXPORT_QUEUE_FULL", 503, "export queue is full, retry later")
	}
	return &status, nil
}

// Status returns the current state of one export.
func (s *ExportService) Status(id string) (*dto.ExportStatus, error) {
	rec, ok := s.lookup(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export not found or expired")
	}
	return &rec.status, nil
}

// Result returns the rendered bytes of a finished export along with
// its format.
func (s *ExportService) Result(id string) ([]byte, string, error) {
	rec, ok := s.lookup(id)
	if !ok {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export not found or expired")
	}
	if rec.status.Status != dto.ExportStatusReady {
		return nil, "", appErrors.Clone(appErrors.ErrConflict, "export is not ready")
	}
	return rec.content, rec.status.Format, nil
}

// HandleJob is the queue handler rendering one export.
func (s *ExportService) HandleJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(exportPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type for job %s", job.ID)
	}

	rows, err := s.trackers.ListRowsByEffort(ctx, payload.ReportingEffortID)
	if err != nil {
		s.fail(payload.ExportID, err)
		return err
	}

	table := trackerMatrixTable(payload.EffortLabel, rows)
	var content []byte
	switch payload.Format {
	case dto.ExportFormatCSV:
		content, err = export.RenderCSV(table)
	case dto.ExportFormatPDF:
		content, err = export.RenderPDF(table)
	default:
		err = fmt.Errorf("unknown export format %q", payload.Format)
	}
	if err != nil {
		s.fail(payload.ExportID, err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.results[payload.ExportID]; ok {
		rec.status.Status = dto.ExportStatusReady
		rec.content = content
		rec.expires = time.Now().Add(s.ttl)
	}
	return nil
}

func (s *ExportService) fail(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.results[id]; ok {
		rec.status.Status = dto.ExportStatusFailed
		rec.status.Error = err.Error()
	}
}

func (s *ExportService) store(id string, rec *exportRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	s.results[id] = rec
}

func (s *ExportService) drop(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.results, id)
}

// lookup copies the record out under the lock; the worker mutates the
// stored record concurrently, so callers never see the live pointer.
func (s *ExportService) lookup(id string) (exportRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	rec, ok := s.results[id]
	if !ok {
		return exportRecord{}, false
	}
	return *rec, true
}

// pruneLocked drops expired results. Called with the mutex held.
func (s *ExportService) pruneLocked() {
	now := time.Now()
	for id, rec := range s.results {
		if now.After(rec.expires) {
			delete(s.results, id)
		}
	}
}

// trackerMatrixTable flattens tracker rows into the export table shape.
func trackerMatrixTable(effortLabel string, rows []models.TrackerRow) export.Table {
	table := export.Table{
		Title: "Tracker Matrix - " + effortLabel,
		Columns: []export.Column{
			{Header: "Type", Width: 18},
			{Header: "Subtype", Width: 22},
			{Header: "Code", Width: 35},
			{Header: "Production Status", Width: 32},
			{Header: "QC Status", Width: 26},
			{Header: "Priority", Width: 20},
			{Header: "Due Date", Width: 24},
			{Header: "Production User"},
			{Header: "QC User"},
			{Header: "Open Comments", Width: 26},
		},
	}
	for _, row := range rows {
		dueDate := ""
		if row.DueDate != nil {
			dueDate = row.DueDate.Format("2006-01-02")
		}
		table.Rows = append(table.Rows, []string{
			string(row.ItemType),
			row.ItemSubtype,
			row.ItemCode,
			string(row.ProductionStatus),
			string(row.QCStatus),
			string(row.Priority),
			dueDate,
			strValue(row.ProductionUserName),
			strValue(row.QCUserName),
			strconv.Itoa(row.UnresolvedCommentCount),
		})
	}
	return table
}

func strValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
